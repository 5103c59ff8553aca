package l1

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/0xPolygon/cdk-opnode/derive"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

const (
	defaultBufferSize   = 256
	defaultPollInterval = 2 * time.Second
)

var errReorged = errors.New("L1 reorg detected")

// systemConfigAt is the system config in force after L1 block Number.
type systemConfigAt struct {
	Number uint64
	Config rollup.SystemConfig
}

// Watcher follows L1 block by block and turns every block into an L1Info:
// header, user deposits, batcher transactions and system config. It detects
// reorgs by parent hash and reports L1 finality.
type Watcher struct {
	cfg       Config
	rollupCfg *rollup.Config
	client    EthClienter
	limiter   *rate.Limiter
	rh        *RetryHandler
	signer    types.Signer
	log       *log.Logger

	mu            sync.RWMutex
	status        Status
	systemConfigs []systemConfigAt
	updates       chan BlockUpdate
	errs          chan error
	cancel        context.CancelFunc
	done          chan struct{}
}

func NewWatcher(cfg Config, rollupCfg *rollup.Config, client EthClienter) *Watcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.PollInterval.Duration <= 0 {
		cfg.PollInterval.Duration = defaultPollInterval
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Watcher{
		cfg:       cfg,
		rollupCfg: rollupCfg,
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		rh: &RetryHandler{
			RetryAfterErrorPeriod:      cfg.RetryAfterErrorPeriod.Duration,
			MaxRetryAttemptsAfterError: cfg.MaxRetryAttemptsAfterError,
		},
		signer:  types.LatestSignerForChainID(rollupCfg.L1ChainID),
		log:     log.WithFields("module", "l1-watcher"),
		updates: make(chan BlockUpdate, cfg.BufferSize),
		errs:    make(chan error, 1),
	}
}

// Start (re)starts watching from L1 block from with sysCfg, the system
// config in force before that block. A running watch is stopped first and its
// pending updates are dropped.
func (w *Watcher) Start(ctx context.Context, from uint64, sysCfg rollup.SystemConfig) {
	w.Stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.updates = make(chan BlockUpdate, w.cfg.BufferSize)
	// the start config holds after block from - 1, the new watch replays the rest
	if from > 0 {
		w.truncateSystemConfigs(from - 1)
		w.systemConfigs = append(w.systemConfigs, systemConfigAt{Number: from - 1, Config: sysCfg})
	} else {
		w.truncateSystemConfigs(0)
	}
	w.log.Infow("starting L1 watcher", "from", from, "batcher", sysCfg.BatcherAddr, "gas_limit", sysCfg.GasLimit)
	go w.run(runCtx, from, sysCfg, w.updates, w.done)
}

// Stop stops the current watch and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.RLock()
	cancel, done := w.cancel, w.done
	w.mu.RUnlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Updates returns the queue of the current watch.
func (w *Watcher) Updates() <-chan BlockUpdate {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.updates
}

// Errors delivers the error that made the watcher give up.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

func (w *Watcher) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// SystemConfigAt returns the system config in force after L1 block number.
func (w *Watcher) SystemConfigAt(number uint64) rollup.SystemConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cfg := w.rollupCfg.Genesis.SystemConfig
	for _, c := range w.systemConfigs {
		if c.Number > number {
			break
		}
		cfg = c.Config
	}
	return cfg
}

// truncateSystemConfigs forgets config changes from block from on. Callers
// hold the lock.
func (w *Watcher) truncateSystemConfigs(from uint64) {
	i := sort.Search(len(w.systemConfigs), func(i int) bool { return w.systemConfigs[i].Number >= from })
	w.systemConfigs = w.systemConfigs[:i]
}

func (w *Watcher) recordSystemConfig(number uint64, cfg rollup.SystemConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.truncateSystemConfigs(number)
	w.systemConfigs = append(w.systemConfigs, systemConfigAt{Number: number, Config: cfg})
}

// cursor is the progress of one watch.
type cursor struct {
	next      uint64
	head      uint64
	finalized uint64
	parent    *rollup.BlockInfo
	sysCfg    rollup.SystemConfig
}

func (w *Watcher) run(ctx context.Context, from uint64, sysCfg rollup.SystemConfig, out chan<- BlockUpdate,
	done chan<- struct{}) {
	defer close(done)
	cur := &cursor{next: from, sysCfg: sysCfg}
	ticker := time.NewTicker(w.cfg.PollInterval.Duration)
	defer ticker.Stop()
	for {
		progressed, err := w.step(ctx, cur, out)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, errReorged):
			return
		case err != nil:
			w.log.Errorw("L1 watcher stopped", "error", err)
			select {
			case w.errs <- err:
			default:
			}
			return
		case progressed:
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// step emits the next L1 block if there is one.
func (w *Watcher) step(ctx context.Context, cur *cursor, out chan<- BlockUpdate) (bool, error) {
	if cur.next > cur.head {
		if err := w.refreshHeads(ctx, cur, out); err != nil {
			return false, err
		}
		if cur.next > cur.head {
			return false, nil
		}
	}
	if cur.parent == nil && cur.next > 0 {
		header, err := w.headerByNumber(ctx, new(big.Int).SetUint64(cur.next-1))
		if err != nil {
			return false, err
		}
		parent := rollup.L1BlockRefFromHeader(header).BlockInfo
		cur.parent = &parent
	}

	block, err := w.blockByNumber(ctx, cur.next)
	if err != nil {
		return false, err
	}
	if block.ParentHash() != cur.parent.Hash {
		w.log.Warnw("L1 reorg detected", "block", block.NumberU64(), "parent", block.ParentHash(),
			"expected_parent", cur.parent.Hash)
		if err := send(ctx, out, BlockUpdate{Type: Reorg}); err != nil {
			return false, err
		}
		return false, errReorged
	}

	info, err := w.l1Info(ctx, cur, block)
	if err != nil {
		return false, err
	}
	info.Finalized = info.Block.Number <= cur.finalized
	w.mu.Lock()
	w.status.Current = info.Block
	w.mu.Unlock()
	if err := send(ctx, out, BlockUpdate{Type: NewBlock, Info: info}); err != nil {
		return false, err
	}

	cur.parent = &info.Block.BlockInfo
	cur.next++
	return true, nil
}

func send(ctx context.Context, out chan<- BlockUpdate, u BlockUpdate) error {
	select {
	case out <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refreshHeads reads the latest, safe and finalized L1 headers.
func (w *Watcher) refreshHeads(ctx context.Context, cur *cursor, out chan<- BlockUpdate) error {
	head, err := w.headerByNumber(ctx, nil)
	if err != nil {
		return err
	}
	safe, err := w.headerByNumber(ctx, big.NewInt(int64(rpc.SafeBlockNumber)))
	if err != nil {
		return err
	}
	finalized, err := w.headerByNumber(ctx, big.NewInt(int64(rpc.FinalizedBlockNumber)))
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.status.Head = rollup.L1BlockRefFromHeader(head)
	w.status.Safe = rollup.L1BlockRefFromHeader(safe)
	w.status.Finalized = rollup.L1BlockRefFromHeader(finalized)
	w.mu.Unlock()

	cur.head = head.Number.Uint64()
	if n := finalized.Number.Uint64(); n > cur.finalized {
		cur.finalized = n
		w.log.Debugw("L1 finality update", "finalized", n)
		return send(ctx, out, BlockUpdate{Type: FinalityUpdate, Finalized: n})
	}
	return nil
}

// l1Info collects what derivation needs from block.
func (w *Watcher) l1Info(ctx context.Context, cur *cursor, block *types.Block) (*derive.L1Info, error) {
	hash := block.Hash()
	logs, err := w.filterLogs(ctx, ethereum.FilterQuery{
		BlockHash: &hash,
		Addresses: []common.Address{w.rollupCfg.DepositContractAddress, w.rollupCfg.L1SystemConfigAddress},
	})
	if err != nil {
		return nil, err
	}

	changed := false
	for i := range logs {
		l := &logs[i]
		if l.Address != w.rollupCfg.L1SystemConfigAddress || len(l.Topics) == 0 ||
			l.Topics[0] != rollup.ConfigUpdateEventABIHash || l.Removed {
			continue
		}
		if err := cur.sysCfg.ProcessConfigUpdateLog(l); err != nil {
			w.log.Warnw("ignoring system config update", "block", block.NumberU64(), "tx", l.TxHash, "error", err)
			continue
		}
		changed = true
	}
	if changed {
		w.log.Infow("system config updated", "block", block.NumberU64(), "batcher", cur.sysCfg.BatcherAddr,
			"gas_limit", cur.sysCfg.GasLimit)
		w.recordSystemConfig(block.NumberU64(), cur.sysCfg)
	}

	deposits, err := derive.UserDeposits(logs, w.rollupCfg.DepositContractAddress)
	if err != nil {
		w.log.Errorw("failed to decode some user deposits", "block", block.NumberU64(), "error", err)
	}

	return &derive.L1Info{
		Block:               rollup.L1BlockRefFromHeader(block.Header()),
		SystemConfig:        cur.sysCfg,
		UserDeposits:        deposits,
		BatcherTransactions: w.batcherTransactions(block, cur.sysCfg.BatcherAddr),
	}, nil
}

// batcherTransactions returns the calldata of the txs sent by batcher to the batch inbox.
// Blob transactions carry their data out of the block and are not read.
func (w *Watcher) batcherTransactions(block *types.Block, batcher common.Address) [][]byte {
	var out [][]byte
	for i, tx := range block.Transactions() {
		to := tx.To()
		if to == nil || *to != w.rollupCfg.BatchInboxAddress {
			continue
		}
		if tx.Type() == types.BlobTxType {
			w.log.Debugw("skipping blob batcher transaction", "block", block.NumberU64(), "index", i)
			continue
		}
		from, err := types.Sender(w.signer, tx)
		if err != nil {
			w.log.Warnw("invalid signature on batch inbox transaction", "block", block.NumberU64(), "index", i,
				"error", err)
			continue
		}
		if from != batcher {
			continue
		}
		out = append(out, tx.Data())
	}
	return out
}

// withRetry runs fn under the rate limit until it succeeds or the retry handler gives up.
func (w *Watcher) withRetry(ctx context.Context, name string, fn func() error) error {
	for attempts := 1; ; attempts++ {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Warnw("L1 call failed", "call", name, "attempt", attempts, "error", err)
		if herr := w.rh.Handle(ctx, name, attempts); herr != nil {
			return fmt.Errorf("%w: %w", herr, err)
		}
	}
}

func (w *Watcher) headerByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := w.withRetry(ctx, "headerByNumber", func() error {
		var err error
		header, err = w.client.HeaderByNumber(ctx, number)
		return err
	})
	return header, err
}

func (w *Watcher) blockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	var block *types.Block
	err := w.withRetry(ctx, "blockByNumber", func() error {
		var err error
		block, err = w.client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	return block, err
}

func (w *Watcher) filterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := w.withRetry(ctx, "filterLogs", func() error {
		var err error
		logs, err = w.client.FilterLogs(ctx, q)
		return err
	})
	return logs, err
}
