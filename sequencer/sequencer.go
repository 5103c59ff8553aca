package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0xPolygon/cdk-opnode/derive"
	"github.com/0xPolygon/cdk-opnode/engine"
	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/rollup"
)

const (
	defaultSealingDuration = 50 * time.Millisecond
	temporaryBackoff       = time.Second
)

var ErrNextOriginUnavailable = errors.New("sequencer drift exceeded and next L1 origin is not known yet")

// EngineControl is the part of the engine driver the sequencer builds blocks with.
type EngineControl interface {
	State() engine.State
	StartPayload(ctx context.Context, parent rollup.L2BlockRef, attrs *enginetypes.PayloadAttributes, isSafe bool) error
	ConfirmPayload(ctx context.Context) (*enginetypes.ExecutionPayloadEnvelope, error)
	CancelPayload(ctx context.Context, force bool) error
}

// AttributesPreparer builds the deposit only attributes of a block.
type AttributesPreparer interface {
	PreparePayloadAttributes(l2Parent rollup.L2BlockRef, epoch rollup.BlockID,
		timestamp uint64) (*enginetypes.PayloadAttributes, error)
}

// L1Blocks gives access to the L1 blocks the node has seen.
type L1Blocks interface {
	L1InfoByNumber(number uint64) (*derive.L1Info, bool)
}

// Sequencer produces a block every block time on top of the unsafe head.
// It is driven by the driver loop and not safe for concurrent use.
type Sequencer struct {
	cfg       Config
	rollupCfg *rollup.Config
	engine    EngineControl
	attrs     AttributesPreparer
	l1        L1Blocks
	log       *log.Logger
	now       func() time.Time

	nextAction time.Time
}

func New(cfg Config, rollupCfg *rollup.Config, eng EngineControl, attrs AttributesPreparer, l1 L1Blocks) *Sequencer {
	if cfg.SealingDuration.Duration <= 0 {
		cfg.SealingDuration.Duration = defaultSealingDuration
	}
	return &Sequencer{
		cfg:       cfg,
		rollupCfg: rollupCfg,
		engine:    eng,
		attrs:     attrs,
		l1:        l1,
		log:       log.WithFields("module", "sequencer"),
		now:       time.Now,
	}
}

func (s *Sequencer) blockTime() time.Duration {
	return time.Duration(s.rollupCfg.BlockTime) * time.Second
}

// RunNextSequencerAction starts a new block or seals the one being built, once
// the planned action time is reached. A sealed block is returned.
// Temporary failures are absorbed and retried later; reset and critical
// failures are returned.
func (s *Sequencer) RunNextSequencerAction(ctx context.Context) (*enginetypes.ExecutionPayloadEnvelope, error) {
	now := s.now()
	if now.Before(s.nextAction) {
		return nil, nil
	}

	st := s.engine.State()
	if b := st.Building; b != nil {
		if b.IsSafe {
			// derivation owns the block being built
			s.nextAction = now.Add(s.blockTime())
			return nil, nil
		}
		envelope, err := s.CompleteBuildingBlock(ctx)
		if err != nil {
			return nil, s.handleError(ctx, "seal block", err)
		}
		s.nextAction = s.now().Add(s.PlanNextSequencerAction())
		return envelope, nil
	}

	if lag := s.cfg.MaxSafeLag; lag > 0 && st.UnsafeHead.Number >= st.SafeHead.Number+lag {
		s.log.Warnw("unsafe head too far ahead of safe head, pausing sequencing", "unsafe", st.UnsafeHead.Number,
			"safe", st.SafeHead.Number, "max_safe_lag", lag)
		s.nextAction = now.Add(s.blockTime())
		return nil, nil
	}
	if err := s.StartBuildingBlock(ctx); err != nil {
		return nil, s.handleError(ctx, "start block", err)
	}
	s.nextAction = s.now().Add(s.PlanNextSequencerAction())
	return nil, nil
}

func (s *Sequencer) handleError(ctx context.Context, action string, err error) error {
	var classified derive.Error
	if !errors.As(err, &classified) {
		s.log.Errorw("sequencer failed with unclassified error", "action", action, "error", err)
		s.nextAction = s.now().Add(temporaryBackoff)
		s.CancelBuildingBlock(ctx)
		return nil
	}
	switch classified.Severity() {
	case derive.SeverityCritical:
		return err
	case derive.SeverityReset:
		s.log.Errorw("sequencer failed, requiring derivation reset", "action", action, "error", err)
		s.nextAction = s.now().Add(s.blockTime())
		s.CancelBuildingBlock(ctx)
		return err
	default:
		s.log.Warnw("sequencer temporarily failed", "action", action, "error", err)
		s.nextAction = s.now().Add(temporaryBackoff)
		return nil
	}
}

// PlanNextSequencerAction returns how long to wait before the next
// RunNextSequencerAction is useful.
func (s *Sequencer) PlanNextSequencerAction() time.Duration {
	st := s.engine.State()
	blockTime := s.blockTime()
	b := st.Building
	if b != nil && b.IsSafe {
		return blockTime
	}
	head := st.UnsafeHead
	now := s.now()
	buildingOnHead := b != nil && b.Onto.Hash == head.Hash

	if delay := s.nextAction.Sub(now); delay > 0 && buildingOnHead {
		return delay
	}
	payloadTime := time.Unix(int64(head.Timestamp+s.rollupCfg.BlockTime), 0)
	remaining := payloadTime.Sub(now)
	if buildingOnHead {
		if remaining < s.cfg.SealingDuration.Duration {
			return 0
		}
		return remaining - s.cfg.SealingDuration.Duration
	}
	if remaining > blockTime {
		return remaining - blockTime
	}
	return 0
}

// StartBuildingBlock asks the engine to build the next block on the unsafe head.
func (s *Sequencer) StartBuildingBlock(ctx context.Context) error {
	head := s.engine.State().UnsafeRef()
	timestamp := head.Timestamp + s.rollupCfg.BlockTime

	origin, err := s.findL1Origin(head, timestamp)
	if err != nil {
		return err
	}
	attrs, err := s.attrs.PreparePayloadAttributes(head, rollup.BlockID{Hash: origin.Hash, Number: origin.Number},
		timestamp)
	if err != nil {
		return err
	}
	// past the drift only the deposits are included
	attrs.NoTxPool = timestamp > origin.Timestamp+s.rollupCfg.MaxSequencerDriftAt(origin.Timestamp)

	if err := s.engine.StartPayload(ctx, head, attrs, false); err != nil {
		return err
	}
	s.log.Infow("started building block", "parent", head.BlockInfo.String(), "origin", origin.Epoch().String(),
		"timestamp", timestamp, "no_tx_pool", attrs.NoTxPool)
	return nil
}

// findL1Origin keeps the L1 origin of the parent unless the next L1 block is
// due, and moves on when the sequencer drift would be exceeded.
func (s *Sequencer) findL1Origin(parent rollup.L2BlockRef, timestamp uint64) (rollup.L1BlockRef, error) {
	current, ok := s.l1.L1InfoByNumber(parent.L1Origin.Number)
	if !ok || current.Block.Hash != parent.L1Origin.Hash {
		return rollup.L1BlockRef{}, derive.NewTemporaryError(fmt.Errorf("%w: origin %s of %s", derive.ErrL1InfoNotFound,
			parent.L1Origin, parent.BlockInfo))
	}
	pastDrift := timestamp > current.Block.Timestamp+s.rollupCfg.MaxSequencerDriftAt(current.Block.Timestamp)

	next, ok := s.l1.L1InfoByNumber(current.Block.Number + 1)
	if !ok {
		if pastDrift {
			return rollup.L1BlockRef{}, derive.NewTemporaryError(fmt.Errorf("%w: block at %d, origin %s",
				ErrNextOriginUnavailable, timestamp, current.Block.BlockInfo))
		}
		return current.Block, nil
	}
	if next.Block.ParentHash != current.Block.Hash {
		return rollup.L1BlockRef{}, derive.NewResetError(fmt.Errorf("next L1 origin %s does not build on %s",
			next.Block.BlockInfo, current.Block.BlockInfo))
	}
	if timestamp >= next.Block.Timestamp {
		return next.Block, nil
	}
	return current.Block, nil
}

// CompleteBuildingBlock seals the block being built and makes it the unsafe head.
func (s *Sequencer) CompleteBuildingBlock(ctx context.Context) (*enginetypes.ExecutionPayloadEnvelope, error) {
	envelope, err := s.engine.ConfirmPayload(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Infow("sequenced block", "block", envelope.ExecutionPayload.String(),
		"txs", len(envelope.ExecutionPayload.Transactions))
	return envelope, nil
}

// BuildingOnto returns the block the current build is on top of, if any.
func (s *Sequencer) BuildingOnto() (rollup.L2BlockRef, bool) {
	b := s.engine.State().Building
	if b == nil {
		return rollup.L2BlockRef{}, false
	}
	return b.Onto, true
}

// CancelBuildingBlock drops the current build.
func (s *Sequencer) CancelBuildingBlock(ctx context.Context) {
	if err := s.engine.CancelPayload(ctx, true); err != nil {
		s.log.Errorw("failed to cancel block building", "error", err)
	}
}
