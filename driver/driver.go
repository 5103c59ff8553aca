package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/0xPolygon/cdk-opnode/derive"
	"github.com/0xPolygon/cdk-opnode/engine"
	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/etherman"
	"github.com/0xPolygon/cdk-opnode/l1"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/0xPolygon/cdk-opnode/safedb"
)

const (
	defaultTickInterval        = 100 * time.Millisecond
	defaultEngineReadyInterval = time.Second
	defaultUnsafeLookahead     = 1024
)

// ErrUnfinalizedChainBroken is returned when a new safe block does not build
// on the previous one.
var ErrUnfinalizedChainBroken = errors.New("safe block does not build on the previous safe block")

// EngineDriver applies blocks to the execution engine.
type EngineDriver interface {
	State() engine.State
	IsEngineSyncing() bool
	HandleAttributes(ctx context.Context, attrs *enginetypes.PayloadAttributes) error
	HandleUnsafePayload(ctx context.Context, envelope *enginetypes.ExecutionPayloadEnvelope) error
	UpdateFinalized(head rollup.BlockInfo, epoch rollup.Epoch)
	Reorg()
	EngineReady(ctx context.Context) bool
}

// Pipeline turns L1 data into payload attributes.
type Pipeline interface {
	PushBatcherTransactions(txs [][]byte, l1InclusionBlock uint64)
	UpdateL1Info(info *derive.L1Info)
	Next(ctx context.Context) (*enginetypes.PayloadAttributes, error)
	UpdateSafeHead(head rollup.BlockInfo, epoch rollup.Epoch)
	Purge(safeHead rollup.BlockInfo, safeEpoch rollup.Epoch)
}

// ChainWatcher follows L1 and reports new blocks, reorgs and finality.
type ChainWatcher interface {
	Start(ctx context.Context, from uint64, sysCfg rollup.SystemConfig)
	Stop()
	Updates() <-chan l1.BlockUpdate
	Errors() <-chan error
	Status() l1.Status
}

// Sequencer builds new blocks on the unsafe head.
type Sequencer interface {
	RunNextSequencerAction(ctx context.Context) (*enginetypes.ExecutionPayloadEnvelope, error)
}

// Network delivers unsafe payloads once started.
type Network interface {
	Start()
	Started() bool
	Payloads() <-chan *enginetypes.ExecutionPayloadEnvelope
}

// L2Fetcher resolves L2 block refs from the execution engine.
type L2Fetcher interface {
	L2BlockRefByNumber(ctx context.Context, number uint64) (rollup.L2BlockRef, error)
	L2BlockRefByLabel(ctx context.Context, label etherman.BlockNumberFinality) (rollup.L2BlockRef, error)
	SystemConfigByNumber(ctx context.Context, number uint64) (rollup.SystemConfig, error)
}

// Driver runs the node: it feeds L1 into the derivation pipeline, applies
// derived and unsafe blocks to the engine, finalizes, sequences and handles
// reorgs. Run owns every field except the sync status snapshot.
type Driver struct {
	cfg       Config
	rollupCfg *rollup.Config
	engine    EngineDriver
	pipeline  Pipeline
	watcher   ChainWatcher
	sequencer Sequencer
	network   Network
	l2        L2Fetcher
	safeDB    safedb.Listener
	log       *log.Logger
	metrics   *metrics

	elSyncDone         bool
	watcherPending     bool
	unfinalized        []UnfinalizedBlock
	futureUnsafe       []*enginetypes.ExecutionPayloadEnvelope
	currentL1          rollup.L1BlockRef
	currentL1Finalized rollup.L1BlockRef
	finalizedL1        uint64

	mu            sync.RWMutex
	status        SyncStatus
	engineSyncing bool
}

// New builds a driver. seq is nil when the node does not sequence and
// safeDB may be safedb.Disabled.
func New(cfg Config, rollupCfg *rollup.Config, eng EngineDriver, pipeline Pipeline, watcher ChainWatcher,
	seq Sequencer, network Network, l2 L2Fetcher, safeDB safedb.Listener) *Driver {
	if cfg.TickInterval.Duration <= 0 {
		cfg.TickInterval.Duration = defaultTickInterval
	}
	if cfg.EngineReadyInterval.Duration <= 0 {
		cfg.EngineReadyInterval.Duration = defaultEngineReadyInterval
	}
	if cfg.UnsafeLookahead == 0 {
		cfg.UnsafeLookahead = defaultUnsafeLookahead
	}
	if safeDB == nil {
		safeDB = safedb.Disabled{}
	}
	logger := log.WithFields("module", "driver")
	d := &Driver{
		cfg:       cfg,
		rollupCfg: rollupCfg,
		engine:    eng,
		pipeline:  pipeline,
		watcher:   watcher,
		sequencer: seq,
		network:   network,
		l2:        l2,
		safeDB:    safeDB,
		log:       logger,
	}
	d.metrics = newMetrics(logger, func() SyncStatus {
		d.mu.RLock()
		defer d.mu.RUnlock()
		return d.status
	})
	return d
}

// InitialHead returns the block the node starts from: the engine's finalized
// block, or the L2 genesis when the engine has none.
func InitialHead(ctx context.Context, l2 L2Fetcher, cfg *rollup.Config) (rollup.L2BlockRef, error) {
	ref, err := l2.L2BlockRefByLabel(ctx, etherman.FinalizedBlock)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, derive.ErrL2BlockNotFound) {
		return rollup.L2BlockRef{}, fmt.Errorf("failed to fetch finalized L2 block: %w", err)
	}
	ref, err = l2.L2BlockRefByNumber(ctx, cfg.Genesis.L2.Number)
	if err != nil {
		return rollup.L2BlockRef{}, fmt.Errorf("failed to fetch L2 genesis: %w", err)
	}
	return ref, nil
}

// Run drives the node until ctx is done or a critical error happens.
func (d *Driver) Run(ctx context.Context) error {
	if err := d.awaitEngineReady(ctx); err != nil {
		return nil //nolint:nilerr
	}
	d.log.Infow("engine ready", "finalized", d.engine.State().FinalizedHead.String(), "el_sync", d.cfg.ELSync)
	if !d.cfg.ELSync {
		d.restartWatcher(ctx)
	}
	defer d.watcher.Stop()

	ticker := time.NewTicker(d.cfg.TickInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-d.watcher.Errors():
			return fmt.Errorf("L1 watcher stopped: %w", err)
		default:
		}

		progressed, err := d.tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if progressed {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case err := <-d.watcher.Errors():
			return fmt.Errorf("L1 watcher stopped: %w", err)
		case <-ticker.C:
		}
	}
}

func (d *Driver) awaitEngineReady(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if d.engine.EngineReady(ctx) {
			return nil
		}
		d.log.Infow("waiting for execution engine")
		timer.Reset(d.cfg.EngineReadyInterval.Duration)
	}
}

// tick runs one round of the loop. It reports whether anything moved, in
// which case the next round runs without waiting.
func (d *Driver) tick(ctx context.Context) (bool, error) {
	if d.watcherPending {
		d.restartWatcher(ctx)
	}
	progressed := d.handleL1Update(ctx)

	advanced, stepErr := d.advanceSafeHead(ctx)
	if err := d.handleError(ctx, "advance safe head", stepErr); err != nil {
		return false, err
	}
	progressed = progressed || advanced

	advanced, stepErr = d.advanceUnsafeHead(ctx)
	if err := d.handleError(ctx, "advance unsafe head", stepErr); err != nil {
		return false, err
	}
	progressed = progressed || advanced

	d.updateFinalized()

	if err := d.handleError(ctx, "sequence", d.runSequencer(ctx)); err != nil {
		return false, err
	}

	d.tryStartNetwork()
	d.updateStatus()
	return progressed, nil
}

func (d *Driver) handleL1Update(ctx context.Context) bool {
	if d.watcherPending {
		return false
	}
	var u l1.BlockUpdate
	select {
	case u = <-d.watcher.Updates():
	default:
		return false
	}

	switch u.Type {
	case l1.NewBlock:
		d.pipeline.UpdateL1Info(u.Info)
		d.pipeline.PushBatcherTransactions(u.Info.BatcherTransactions, u.Info.Block.Number)
		d.currentL1 = u.Info.Block
		if u.Info.Finalized {
			d.currentL1Finalized = u.Info.Block
		}
	case l1.Reorg:
		d.log.Warnw("L1 reorg detected", "current_l1", d.currentL1.BlockInfo.String())
		d.reorg(ctx)
	case l1.FinalityUpdate:
		d.finalizedL1 = u.Finalized
	}
	return true
}

// advanceSafeHead applies every attributes the pipeline can derive.
func (d *Driver) advanceSafeHead(ctx context.Context) (bool, error) {
	if d.engine.IsEngineSyncing() {
		return false, nil
	}
	st := d.engine.State()
	d.pipeline.UpdateSafeHead(st.SafeHead, st.SafeEpoch)

	progressed := false
	for {
		attrs, err := d.pipeline.Next(ctx)
		if err != nil {
			return progressed, err
		}
		if attrs == nil {
			return progressed, nil
		}
		if err := d.engine.HandleAttributes(ctx, attrs); err != nil {
			return progressed, err
		}
		progressed = true
		d.metrics.attributes.Add(ctx, 1)

		st = d.engine.State()
		epoch := st.SafeEpoch
		epoch.SequenceNumber = attrs.SeqNumber
		d.pipeline.UpdateSafeHead(st.SafeHead, epoch)

		block := UnfinalizedBlock{
			Head:             st.SafeHead,
			Epoch:            epoch,
			L1InclusionBlock: attrs.L1InclusionBlock,
			SeqNumber:        attrs.SeqNumber,
		}
		if n := len(d.unfinalized); n > 0 && d.unfinalized[n-1].Head.Hash != block.Head.ParentHash {
			return progressed, derive.NewResetError(fmt.Errorf("%w: %s after %s", ErrUnfinalizedChainBroken,
				block.Head.String(), d.unfinalized[n-1].Head.String()))
		}
		d.unfinalized = append(d.unfinalized, block)
		d.recordSafeHead(ctx, st.SafeHead)
	}
}

func (d *Driver) recordSafeHead(ctx context.Context, head rollup.BlockInfo) {
	if !d.safeDB.Enabled() {
		return
	}
	if err := d.safeDB.SafeHeadUpdated(ctx, head.ID(), d.currentL1.ID()); err != nil {
		d.log.Errorw("failed to record safe head", "safe", head.String(), "l1", d.currentL1.BlockInfo.String(),
			"error", err)
	}
}

// advanceUnsafeHead queues the payloads received from the network and
// applies the one building on the unsafe head.
func (d *Driver) advanceUnsafeHead(ctx context.Context) (bool, error) {
	d.drainPayloads()
	syncing := d.engine.IsEngineSyncing()
	d.pruneFutureUnsafe(syncing)

	next := d.nextUnsafePayload(syncing)
	if next < 0 {
		return false, nil
	}
	envelope := d.futureUnsafe[next]
	d.futureUnsafe = append(d.futureUnsafe[:next], d.futureUnsafe[next+1:]...)

	if err := d.engine.HandleUnsafePayload(ctx, envelope); err != nil {
		var fcuErr *engine.ForkchoiceUpdateError
		var invalidErr *engine.InvalidExecutionPayloadError
		if d.cfg.ELSync && (errors.As(err, &fcuErr) || errors.As(err, &invalidErr)) {
			d.log.Warnw("ignoring unsafe payload rejected by the engine", "payload",
				envelope.ExecutionPayload.String(), "error", err)
			return true, nil
		}
		return true, err
	}
	d.metrics.unsafePayloads.Add(ctx, 1)

	if d.cfg.ELSync && !d.elSyncDone && !d.engine.IsEngineSyncing() {
		if err := d.finishELSync(ctx); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (d *Driver) drainPayloads() {
	for {
		select {
		case envelope := <-d.network.Payloads():
			d.queueUnsafe(envelope)
		default:
			return
		}
	}
}

func (d *Driver) queueUnsafe(envelope *enginetypes.ExecutionPayloadEnvelope) {
	if envelope == nil || envelope.ExecutionPayload == nil {
		return
	}
	payload := envelope.ExecutionPayload
	if !d.acceptUnsafe(uint64(payload.BlockNumber), d.engine.IsEngineSyncing()) {
		d.log.Debugw("dropping unsafe payload outside the lookahead", "payload", payload.String(),
			"unsafe", d.engine.State().UnsafeHead.Number)
		return
	}
	for _, queued := range d.futureUnsafe {
		if queued.ExecutionPayload.BlockHash == payload.BlockHash {
			return
		}
	}
	d.futureUnsafe = append(d.futureUnsafe, envelope)
}

// acceptUnsafe tells whether a payload of the given number is worth keeping.
// While the engine syncs any payload past the unsafe head is a sync target.
func (d *Driver) acceptUnsafe(number uint64, syncing bool) bool {
	unsafeNum := d.engine.State().UnsafeHead.Number
	if number <= unsafeNum {
		return false
	}
	return syncing || number-unsafeNum < d.cfg.UnsafeLookahead
}

func (d *Driver) pruneFutureUnsafe(syncing bool) {
	kept := d.futureUnsafe[:0]
	for _, envelope := range d.futureUnsafe {
		if d.acceptUnsafe(uint64(envelope.ExecutionPayload.BlockNumber), syncing) {
			kept = append(kept, envelope)
		}
	}
	for i := len(kept); i < len(d.futureUnsafe); i++ {
		d.futureUnsafe[i] = nil
	}
	d.futureUnsafe = kept
}

// nextUnsafePayload returns the index of the payload to apply, or -1.
func (d *Driver) nextUnsafePayload(syncing bool) int {
	if len(d.futureUnsafe) == 0 {
		return -1
	}
	if syncing {
		return 0
	}
	head := d.engine.State().UnsafeHead.Hash
	for i, envelope := range d.futureUnsafe {
		if envelope.ExecutionPayload.ParentHash == head {
			return i
		}
	}
	return -1
}

// finishELSync adopts the finalized block the engine synced to and starts
// deriving from L1 on top of it.
func (d *Driver) finishELSync(ctx context.Context) error {
	finalized := d.engine.State().FinalizedHead
	var (
		ref rollup.L2BlockRef
		err error
	)
	if finalized.Number == 0 {
		ref, err = d.l2.L2BlockRefByLabel(ctx, etherman.FinalizedBlock)
	} else {
		ref, err = d.l2.L2BlockRefByNumber(ctx, finalized.Number)
	}
	if err != nil {
		return derive.NewTemporaryError(fmt.Errorf("failed to fetch finalized block after EL sync: %w", err))
	}
	epoch := ref.L1Origin
	epoch.SequenceNumber = ref.SequenceNumber
	d.engine.UpdateFinalized(ref.BlockInfo, epoch)
	d.elSyncDone = true
	d.log.Infow("EL sync finished, deriving from L1", "finalized", ref.BlockInfo.String(), "origin", epoch.String())
	d.reorg(ctx)
	return nil
}

// updateFinalized promotes the newest epoch start whose L1 inclusion block is
// finalized and forgets every block included at or before it.
func (d *Driver) updateFinalized() {
	var (
		newest UnfinalizedBlock
		found  bool
	)
	kept := make([]UnfinalizedBlock, 0, len(d.unfinalized))
	for _, b := range d.unfinalized {
		if b.L1InclusionBlock > d.finalizedL1 {
			kept = append(kept, b)
			continue
		}
		if b.SeqNumber == 0 {
			newest, found = b, true
		}
	}
	d.unfinalized = kept
	if !found || newest.Head.Number <= d.engine.State().FinalizedHead.Number {
		return
	}
	d.engine.UpdateFinalized(newest.Head, newest.Epoch)
	d.log.Infow("finalized L2 block", "block", newest.Head.String(), "origin", newest.Epoch.String(),
		"finalized_l1", d.finalizedL1)
}

func (d *Driver) runSequencer(ctx context.Context) error {
	if d.sequencer == nil || !d.network.Started() {
		return nil
	}
	envelope, err := d.sequencer.RunNextSequencerAction(ctx)
	if err != nil {
		return err
	}
	if envelope != nil {
		d.metrics.sequenced.Add(ctx, 1)
	}
	return nil
}

// tryStartNetwork opens the unsafe payload feed once the node derived a safe
// block, or right away when the engine syncs from its peers.
func (d *Driver) tryStartNetwork() {
	if d.network.Started() {
		return
	}
	if len(d.unfinalized) > 0 || d.cfg.ELSync {
		d.log.Infow("starting network")
		d.network.Start()
	}
}

// handleError classifies err: temporary errors are retried on the next tick,
// reset errors rewind to the finalized head and anything else stops the node.
func (d *Driver) handleError(ctx context.Context, step string, err error) error {
	if err == nil {
		return nil
	}
	switch derive.SeverityOf(err) {
	case derive.SeverityTemporary:
		d.log.Warnw("temporary error", "step", step, "error", err)
		return nil
	case derive.SeverityReset:
		d.log.Errorw("resetting to finalized head", "step", step, "error", err)
		d.reorg(ctx)
		return nil
	default:
		return fmt.Errorf("%s: %w", step, err)
	}
}

// reorg rewinds everything to the finalized head and restarts the L1 watcher.
func (d *Driver) reorg(ctx context.Context) {
	d.metrics.reorgs.Add(ctx, 1)
	d.unfinalized = nil
	d.engine.Reorg()

	st := d.engine.State()
	d.pipeline.Purge(st.FinalizedHead, st.FinalizedEpoch)
	d.restartWatcher(ctx)
	if d.safeDB.Enabled() {
		if err := d.safeDB.SafeHeadReset(ctx, st.FinalizedHead.ID()); err != nil {
			d.log.Errorw("failed to reset safe head records", "finalized", st.FinalizedHead.String(), "error", err)
		}
	}
}

// restartWatcher watches L1 again from one channel timeout before the
// finalized epoch, so channels still open at that point are seen whole. The
// watch starts with the system config the finalized block was built with;
// while it cannot be read the watcher stays stopped and every tick retries.
func (d *Driver) restartWatcher(ctx context.Context) {
	if d.cfg.ELSync && !d.elSyncDone {
		return
	}
	d.currentL1 = rollup.L1BlockRef{}
	st := d.engine.State()
	sysCfg, err := d.l2.SystemConfigByNumber(ctx, st.FinalizedHead.Number)
	if err != nil {
		d.log.Warnw("failed to read system config of the finalized block", "finalized", st.FinalizedHead.String(),
			"error", err)
		d.watcher.Stop()
		d.watcherPending = true
		return
	}
	d.watcherPending = false

	epoch := st.FinalizedEpoch
	timeout := d.rollupCfg.ChannelTimeoutAt(epoch.Timestamp)
	from := uint64(0)
	if epoch.Number > timeout {
		from = epoch.Number - timeout
	}
	d.watcher.Start(ctx, from, sysCfg)
}
