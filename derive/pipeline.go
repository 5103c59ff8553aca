package derive

import (
	"context"
	"errors"

	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/rollup"
)

// Pipeline turns batcher transactions into payload attributes:
// frames -> channels -> batches -> attributes.
type Pipeline struct {
	cfg *rollup.Config
	log *log.Logger

	state      *State
	bank       *ChannelBank
	queue      *BatchQueue
	attributes *AttributesBuilder

	// batch whose attributes could not be built yet
	pendingBatch *Batch
	// attributes returned by Peek and not consumed by Next
	peeked *enginetypes.PayloadAttributes
}

// NewPipeline creates a pipeline deriving on top of the given safe head.
func NewPipeline(cfg *rollup.Config, fetcher L2Fetcher, safeHead rollup.BlockInfo, safeEpoch rollup.Epoch) *Pipeline {
	logger := log.WithFields("module", "pipeline")
	state := NewState(cfg, logger, fetcher, safeHead, safeEpoch)
	return &Pipeline{
		cfg:        cfg,
		log:        logger,
		state:      state,
		bank:       NewChannelBank(cfg, logger),
		queue:      NewBatchQueue(cfg, logger, state),
		attributes: NewAttributesBuilder(cfg, state),
	}
}

// PushBatcherTransactions feeds the batcher transactions of L1 block l1InclusionBlock.
// The L1 info of the block must have been given first.
func (p *Pipeline) PushBatcherTransactions(txs [][]byte, l1InclusionBlock uint64) {
	var l1Time uint64
	if info, ok := p.state.L1InfoByNumber(l1InclusionBlock); ok {
		l1Time = info.Block.Timestamp
	} else {
		p.log.Warnw("batcher transactions for unknown L1 block", "l1_block", l1InclusionBlock)
	}
	for i, tx := range txs {
		frames, err := ParseFrames(tx)
		if err != nil {
			p.log.Warnw("dropping batcher transaction", "l1_block", l1InclusionBlock, "index", i, "error", err)
			continue
		}
		for _, frame := range frames {
			ch, ready := p.bank.Ingest(frame, l1InclusionBlock, l1Time)
			if !ready {
				continue
			}
			batches, err := DecodeChannel(p.cfg, ch)
			if err != nil {
				p.log.Warnw("failed to decode channel", "channel", ch.ID(), "decoded", len(batches), "error", err)
			}
			for _, b := range batches {
				p.queue.AddBatch(b)
			}
			p.log.Debugw("channel ready", "channel", ch.ID(), "batches", len(batches), "l1_block", ch.L1InclusionBlock())
		}
	}
}

// UpdateL1Info moves the pipeline to a new L1 block.
func (p *Pipeline) UpdateL1Info(info *L1Info) {
	p.state.UpdateL1Info(info)
	p.bank.Prune(info.Block.Number, info.Block.Timestamp)
}

// Next returns the next payload attributes, or nil when none can be derived yet.
func (p *Pipeline) Next(ctx context.Context) (*enginetypes.PayloadAttributes, error) {
	if p.peeked != nil {
		attrs := p.peeked
		p.peeked = nil
		return attrs, nil
	}
	return p.derive(ctx)
}

// Peek returns the attributes Next would return without consuming them.
func (p *Pipeline) Peek(ctx context.Context) (*enginetypes.PayloadAttributes, error) {
	if p.peeked != nil {
		return p.peeked, nil
	}
	attrs, err := p.derive(ctx)
	if err != nil {
		return nil, err
	}
	p.peeked = attrs
	return attrs, nil
}

func (p *Pipeline) derive(ctx context.Context) (*enginetypes.PayloadAttributes, error) {
	batch := p.pendingBatch
	if batch == nil {
		var err error
		if batch, err = p.queue.Next(ctx); err != nil {
			return nil, err
		}
		if batch == nil {
			return nil, nil
		}
	}
	attrs, err := p.attributes.DeriveAttributes(ctx, *batch)
	if err != nil {
		if errors.Is(err, ErrTemporary) {
			p.pendingBatch = batch
		} else {
			p.pendingBatch = nil
		}
		return nil, err
	}
	p.pendingBatch = nil
	return attrs, nil
}

// UpdateSafeHead tells the pipeline the engine accepted a new safe head.
func (p *Pipeline) UpdateSafeHead(head rollup.BlockInfo, epoch rollup.Epoch) {
	p.state.UpdateSafeHead(head, epoch)
}

// Purge drops all derivation progress and restarts from the given safe head.
func (p *Pipeline) Purge(safeHead rollup.BlockInfo, safeEpoch rollup.Epoch) {
	p.bank.Reset()
	p.queue.Reset()
	p.pendingBatch = nil
	p.peeked = nil
	p.state.Purge(safeHead, safeEpoch)
}

// State exposes the derivation state for read-only use by the driver and sequencer.
func (p *Pipeline) State() *State {
	return p.state
}

// AttributesBuilder returns the builder the sequencer shares with derivation.
func (p *Pipeline) AttributesBuilder() *AttributesBuilder {
	return p.attributes
}
