package derive

import (
	"context"
	"fmt"
	"sort"

	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BatchValidity is the verdict of checking a batch against the safe head.
type BatchValidity uint8

const (
	// BatchDrop batches are invalid and discarded.
	BatchDrop BatchValidity = iota
	// BatchAccept batches are applied on top of the safe head.
	BatchAccept
	// BatchUndecided batches need more L1 data to be checked.
	BatchUndecided
	// BatchFuture batches start after the next expected block.
	BatchFuture
)

func (v BatchValidity) String() string {
	switch v {
	case BatchDrop:
		return "drop"
	case BatchAccept:
		return "accept"
	case BatchUndecided:
		return "undecided"
	case BatchFuture:
		return "future"
	default:
		return fmt.Sprintf("validity(%d)", uint8(v))
	}
}

// BatchQueue orders decoded batches by timestamp and emits, one at a time,
// the singular batches that extend the safe head.
type BatchQueue struct {
	cfg   *rollup.Config
	log   *log.Logger
	state *State

	// sorted by timestamp, at most one batch per timestamp
	batches []Batch
	// singular batches of an accepted span batch not handed out yet
	pending []Batch
}

func NewBatchQueue(cfg *rollup.Config, logger *log.Logger, state *State) *BatchQueue {
	return &BatchQueue{cfg: cfg, log: logger, state: state}
}

// AddBatch queues a batch. A batch with the same timestamp as a queued one replaces it.
func (q *BatchQueue) AddBatch(b Batch) {
	ts := b.Timestamp()
	i := sort.Search(len(q.batches), func(i int) bool { return q.batches[i].Timestamp() >= ts })
	if i < len(q.batches) && q.batches[i].Timestamp() == ts {
		q.log.Warnw("replacing queued batch with the same timestamp", "timestamp", ts,
			"l1_inclusion_old", q.batches[i].L1InclusionBlock, "l1_inclusion_new", b.L1InclusionBlock)
		q.batches[i] = b
		return
	}
	q.batches = append(q.batches, Batch{})
	copy(q.batches[i+1:], q.batches[i:])
	q.batches[i] = b
}

// Len returns the number of queued batches, pending singular batches excluded.
func (q *BatchQueue) Len() int {
	return len(q.batches)
}

// Reset drops every queued batch.
func (q *BatchQueue) Reset() {
	q.batches = nil
	q.pending = nil
}

// Next returns the next singular batch on top of the safe head, or nil when
// none is available with the L1 data seen so far.
func (q *BatchQueue) Next(ctx context.Context) (*Batch, error) {
	for {
		if len(q.pending) > 0 {
			b := q.pending[0]
			q.pending = q.pending[1:]
			return &b, nil
		}

		accepted, err := q.nextAccepted(ctx)
		if err != nil {
			return nil, err
		}
		if accepted == nil {
			return q.emptyBatch(), nil
		}

		current := q.state.CurrentEpochNum()
		switch data := accepted.Data.(type) {
		case *SingularBatch:
			return &Batch{Data: data, L1InclusionBlock: current}, nil
		case *SpanBatch:
			singulars, err := data.SingularBatches(q.state.Epoch, q.state.SafeHead().Timestamp)
			if err != nil {
				return nil, NewResetError(err)
			}
			if len(singulars) == 0 {
				q.log.Debugw("span batch has no block past the safe head", "blocks", len(data.Batches))
			}
			for _, sb := range singulars {
				q.pending = append(q.pending, Batch{Data: sb, L1InclusionBlock: current})
			}
		default:
			return nil, NewCriticalError(fmt.Errorf("unexpected batch type %T", accepted.Data))
		}
	}
}

func (q *BatchQueue) nextAccepted(ctx context.Context) (*Batch, error) {
	remaining := make([]Batch, 0, len(q.batches))
	for i, b := range q.batches {
		validity, err := q.checkBatch(ctx, b)
		if err != nil {
			remaining = append(remaining, q.batches[i:]...)
			q.batches = remaining
			return nil, err
		}
		switch validity {
		case BatchAccept:
			remaining = append(remaining, q.batches[i+1:]...)
			q.batches = remaining
			return &b, nil
		case BatchDrop:
			q.log.Warnw("dropping batch", "timestamp", b.Timestamp(), "l1_inclusion", b.L1InclusionBlock,
				"type", b.Data.GetBatchType())
		case BatchFuture:
			remaining = append(remaining, b)
		case BatchUndecided:
			remaining = append(remaining, q.batches[i:]...)
			q.batches = remaining
			return nil, nil
		}
	}
	q.batches = remaining
	return nil, nil
}

// emptyBatch returns the empty batch forced once the sequencing window of the
// safe epoch has passed without a valid batch.
func (q *BatchQueue) emptyBatch() *Batch {
	safe := q.state.SafeHead()
	epoch := q.state.SafeEpoch()
	current := q.state.CurrentEpochNum()
	if current <= epoch.Number+q.cfg.SeqWindowSize {
		return nil
	}
	nextEpoch, ok := q.state.Epoch(epoch.Number + 1)
	if !ok {
		return nil
	}
	if origin, ok := q.state.Epoch(epoch.Number); ok {
		epoch = origin
	}
	// moves to the next origin as soon as its timestamp is reached, whether or
	// not the window of that origin has expired too
	nextTimestamp := safe.Timestamp + q.cfg.BlockTime
	if nextTimestamp >= nextEpoch.Timestamp {
		epoch = nextEpoch
	}
	q.log.Infow("sequencing window expired, deriving empty batch", "timestamp", nextTimestamp,
		"epoch", epoch.Number, "l1_current", current)
	return &Batch{
		Data: &SingularBatch{
			ParentHash: safe.Hash,
			EpochNum:   epoch.Number,
			EpochHash:  epoch.Hash,
			Timestamp:  nextTimestamp,
		},
		L1InclusionBlock: current,
	}
}

func (q *BatchQueue) checkBatch(ctx context.Context, b Batch) (BatchValidity, error) {
	switch data := b.Data.(type) {
	case *SingularBatch:
		return q.checkSingularBatch(data, b.L1InclusionBlock), nil
	case *SpanBatch:
		return q.checkSpanBatch(ctx, data, b.L1InclusionBlock)
	default:
		return BatchDrop, NewCriticalError(fmt.Errorf("unexpected batch type %T", b.Data))
	}
}

func (q *BatchQueue) checkSingularBatch(b *SingularBatch, l1Inclusion uint64) BatchValidity {
	logger := q.log.WithFields("timestamp", b.Timestamp, "epoch", b.EpochNum)
	safe := q.state.SafeHead()
	epoch := q.state.SafeEpoch()
	nextTimestamp := safe.Timestamp + q.cfg.BlockTime

	if b.Timestamp > nextTimestamp {
		return BatchFuture
	}
	if b.Timestamp < nextTimestamp {
		logger.Debugw("batch too old", "next_timestamp", nextTimestamp)
		return BatchDrop
	}
	if b.ParentHash != safe.Hash {
		logger.Warnw("batch parent hash does not match safe head", "parent", b.ParentHash, "safe", safe.Hash)
		return BatchDrop
	}
	if b.EpochNum+q.cfg.SeqWindowSize < l1Inclusion {
		logger.Warnw("batch included after its sequencing window", "l1_inclusion", l1Inclusion)
		return BatchDrop
	}

	var origin rollup.Epoch
	switch {
	case b.EpochNum < epoch.Number:
		logger.Warnw("batch origin older than safe epoch", "safe_epoch", epoch.Number)
		return BatchDrop
	case b.EpochNum == epoch.Number:
		origin = epoch
		if known, ok := q.state.Epoch(epoch.Number); ok {
			origin = known
		}
	case b.EpochNum == epoch.Number+1:
		next, ok := q.state.Epoch(b.EpochNum)
		if !ok {
			return BatchUndecided
		}
		origin = next
	default:
		logger.Warnw("batch origin skips an epoch", "safe_epoch", epoch.Number)
		return BatchDrop
	}

	if b.EpochHash != origin.Hash {
		logger.Warnw("batch epoch hash does not match L1 origin", "expected", origin.Hash, "got", b.EpochHash)
		return BatchDrop
	}
	if b.Timestamp < origin.Timestamp {
		logger.Warnw("batch timestamp before L1 origin", "origin_timestamp", origin.Timestamp)
		return BatchDrop
	}

	if b.Timestamp > origin.Timestamp+q.cfg.MaxSequencerDriftAt(origin.Timestamp) {
		if len(b.Transactions) > 0 {
			logger.Warnw("batch exceeded sequencer time drift with transactions")
			return BatchDrop
		}
		// an empty batch may exceed the drift only while the origin cannot advance
		if origin.Number == epoch.Number {
			next, ok := q.state.Epoch(epoch.Number + 1)
			if !ok {
				return BatchUndecided
			}
			if b.Timestamp >= next.Timestamp {
				logger.Warnw("batch exceeded sequencer time drift without adopting next origin")
				return BatchDrop
			}
		}
	}

	if i, ok := invalidTransaction(b.Transactions); ok {
		logger.Warnw("batch has an empty or deposit transaction", "index", i)
		return BatchDrop
	}
	return BatchAccept
}

func (q *BatchQueue) checkSpanBatch(ctx context.Context, b *SpanBatch, l1Inclusion uint64) (BatchValidity, error) {
	if len(b.Batches) == 0 {
		return BatchDrop, nil
	}
	logger := q.log.WithFields("timestamp", b.GetTimestamp(), "blocks", b.GetBlockCount())
	safe := q.state.SafeHead()
	epoch := q.state.SafeEpoch()
	nextTimestamp := safe.Timestamp + q.cfg.BlockTime

	startTimestamp := b.GetTimestamp()
	endTimestamp := b.GetBlockTimestamp(b.GetBlockCount() - 1)
	if endTimestamp < nextTimestamp {
		logger.Debugw("span batch ends before the next block", "next_timestamp", nextTimestamp)
		return BatchDrop, nil
	}
	if startTimestamp > nextTimestamp {
		return BatchFuture, nil
	}
	if (startTimestamp-q.cfg.Genesis.L2Time)%q.cfg.BlockTime != 0 {
		logger.Warnw("span batch timestamp not aligned to block time")
		return BatchDrop, nil
	}

	startEpochNum := b.GetStartEpochNum()
	batchOrigin := epoch
	if known, ok := q.state.Epoch(epoch.Number); ok {
		batchOrigin = known
	}
	if startEpochNum == epoch.Number+1 {
		next, ok := q.state.Epoch(startEpochNum)
		if !ok {
			return BatchUndecided, nil
		}
		batchOrigin = next
	}
	if !q.cfg.IsDelta(batchOrigin.Timestamp) {
		logger.Warnw("span batch origin before delta activation", "origin_timestamp", batchOrigin.Timestamp)
		return BatchDrop, nil
	}

	prev, err := q.state.L2Info(ctx, startTimestamp-q.cfg.BlockTime)
	if err != nil {
		if isNotFound(err) {
			logger.Warnw("span batch parent not found", "error", err)
			return BatchDrop, nil
		}
		return BatchUndecided, NewTemporaryError(fmt.Errorf("span batch parent lookup: %w", err))
	}
	if !b.CheckParentHash(prev.Hash) {
		logger.Warnw("span batch parent check failed", "parent", prev.Hash)
		return BatchDrop, nil
	}
	if startEpochNum+q.cfg.SeqWindowSize < l1Inclusion {
		logger.Warnw("span batch included after its sequencing window", "l1_inclusion", l1Inclusion)
		return BatchDrop, nil
	}
	if startEpochNum > prev.L1Origin.Number+1 {
		logger.Warnw("span batch skips an epoch", "parent_epoch", prev.L1Origin.Number)
		return BatchDrop, nil
	}

	endEpochNum := b.GetBlockEpochNum(b.GetBlockCount() - 1)
	endOrigin, ok := q.state.Epoch(endEpochNum)
	if !ok {
		logger.Warnw("span batch L1 origin not found", "epoch", endEpochNum)
		return BatchDrop, nil
	}
	if !b.CheckOriginHash(endOrigin.Hash) {
		logger.Warnw("span batch L1 origin check failed", "origin", endOrigin.Hash)
		return BatchDrop, nil
	}
	if startEpochNum < prev.L1Origin.Number {
		logger.Warnw("span batch origin older than its parent's", "parent_epoch", prev.L1Origin.Number)
		return BatchDrop, nil
	}

	for i := 0; i < b.GetBlockCount(); i++ {
		ts := b.GetBlockTimestamp(i)
		if ts <= safe.Timestamp {
			continue
		}
		epochNum := b.GetBlockEpochNum(i)
		origin, ok := q.state.Epoch(epochNum)
		if !ok {
			logger.Warnw("span batch block origin not found", "block", i, "epoch", epochNum)
			return BatchDrop, nil
		}
		if ts < origin.Timestamp {
			logger.Warnw("span batch block before its L1 origin", "block", i, "origin_timestamp", origin.Timestamp)
			return BatchDrop, nil
		}
		txs := b.GetBlockTransactions(i)
		if ts > origin.Timestamp+q.cfg.MaxSequencerDriftAt(origin.Timestamp) {
			if len(txs) > 0 {
				logger.Warnw("span batch block exceeded sequencer time drift with transactions", "block", i)
				return BatchDrop, nil
			}
			var originAdvanced bool
			if i == 0 {
				originAdvanced = startEpochNum == prev.L1Origin.Number+1
			} else {
				originAdvanced = epochNum > b.GetBlockEpochNum(i-1)
			}
			if !originAdvanced {
				next, ok := q.state.Epoch(epochNum + 1)
				if !ok {
					return BatchUndecided, nil
				}
				if ts >= next.Timestamp {
					logger.Warnw("span batch block exceeded sequencer time drift without adopting next origin", "block", i)
					return BatchDrop, nil
				}
			}
		}
		if j, ok := invalidTransaction(txs); ok {
			logger.Warnw("span batch block has an empty or deposit transaction", "block", i, "index", j)
			return BatchDrop, nil
		}
	}

	// blocks already derived must agree with the span batch
	for i := 0; i < b.GetBlockCount(); i++ {
		ts := b.GetBlockTimestamp(i)
		if ts >= nextTimestamp {
			break
		}
		existing, err := q.state.L2Info(ctx, ts)
		if err != nil {
			if isNotFound(err) {
				logger.Warnw("overlapped block not found", "block", i, "error", err)
				return BatchDrop, nil
			}
			return BatchUndecided, NewTemporaryError(fmt.Errorf("overlapped block lookup: %w", err))
		}
		if existing.L1Origin.Number != b.GetBlockEpochNum(i) {
			logger.Warnw("overlapped block epoch does not match", "block", i,
				"expected", existing.L1Origin.Number, "got", b.GetBlockEpochNum(i))
			return BatchDrop, nil
		}
	}
	return BatchAccept, nil
}

// invalidTransaction returns the index of the first empty or deposit transaction.
func invalidTransaction(txs []hexutil.Bytes) (int, bool) {
	for i, tx := range txs {
		if len(tx) == 0 || tx[0] == rollup.DepositTxType {
			return i, true
		}
	}
	return 0, false
}
