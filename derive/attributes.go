package derive

import (
	"context"
	"fmt"

	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// AttributesBuilder turns an L2 parent and an L1 origin into payload attributes.
type AttributesBuilder struct {
	cfg   *rollup.Config
	state *State
}

func NewAttributesBuilder(cfg *rollup.Config, state *State) *AttributesBuilder {
	return &AttributesBuilder{cfg: cfg, state: state}
}

// PreparePayloadAttributes builds the attributes of the block at timestamp on
// top of l2Parent with L1 origin epoch. Only the deposit transactions are
// included; batch transactions are appended by the caller.
func (ab *AttributesBuilder) PreparePayloadAttributes(l2Parent rollup.L2BlockRef, epoch rollup.BlockID,
	timestamp uint64) (*enginetypes.PayloadAttributes, error) {
	info, ok := ab.state.L1Info(epoch.Hash)
	if !ok {
		return nil, NewTemporaryError(fmt.Errorf("%w: %d %s", ErrL1InfoNotFound, epoch.Number, epoch.Hash))
	}

	var seqNumber uint64
	switch {
	case l2Parent.L1Origin.Number == epoch.Number:
		if l2Parent.L1Origin.Hash != epoch.Hash {
			return nil, NewResetError(fmt.Errorf("cannot create new block with L1 origin %s in conflict with L1 origin %s",
				epoch.Hash, l2Parent.L1Origin.Hash))
		}
		seqNumber = l2Parent.SequenceNumber + 1
	case l2Parent.L1Origin.Number+1 == epoch.Number:
		if info.Block.ParentHash != l2Parent.L1Origin.Hash {
			return nil, NewResetError(fmt.Errorf("cannot create new block with L1 origin %s (parent %s) on top of L1 origin %s",
				epoch.Hash, info.Block.ParentHash, l2Parent.L1Origin.Hash))
		}
	default:
		return nil, NewResetError(fmt.Errorf("cannot derive block with L1 origin %d on top of L1 origin %d",
			epoch.Number, l2Parent.L1Origin.Number))
	}

	if want := l2Parent.Timestamp + ab.cfg.BlockTime; timestamp != want {
		return nil, NewResetError(fmt.Errorf("block timestamp %d does not follow parent %s at %d", timestamp,
			l2Parent.BlockInfo, l2Parent.Timestamp))
	}

	l1InfoTx, err := rollup.L1InfoDepositBytes(ab.cfg, info.SystemConfig, seqNumber, info.Block, timestamp)
	if err != nil {
		return nil, NewCriticalError(err)
	}
	txs := make([]hexutil.Bytes, 0, 1+len(info.UserDeposits))
	txs = append(txs, l1InfoTx)
	if seqNumber == 0 {
		txs = append(txs, info.UserDeposits...)
	}

	gasLimit := hexutil.Uint64(info.SystemConfig.GasLimit)
	attrs := &enginetypes.PayloadAttributes{
		Timestamp:             hexutil.Uint64(timestamp),
		PrevRandao:            info.Block.MixDigest,
		SuggestedFeeRecipient: rollup.SequencerFeeVault,
		Transactions:          txs,
		NoTxPool:              true,
		GasLimit:              &gasLimit,
		Epoch: rollup.Epoch{
			Number:         info.Block.Number,
			Hash:           info.Block.Hash,
			Timestamp:      info.Block.Timestamp,
			SequenceNumber: seqNumber,
		},
		SeqNumber: seqNumber,
	}
	if ab.cfg.IsCanyon(timestamp) {
		attrs.Withdrawals = &types.Withdrawals{}
	}
	if ab.cfg.IsEcotone(timestamp) {
		root := common.Hash{}
		if info.Block.ParentBeaconRoot != nil {
			root = *info.Block.ParentBeaconRoot
		}
		attrs.ParentBeaconBlockRoot = &root
	}
	return attrs, nil
}

// DeriveAttributes builds the attributes of a singular batch.
func (ab *AttributesBuilder) DeriveAttributes(ctx context.Context, batch Batch) (*enginetypes.PayloadAttributes, error) {
	sb, ok := batch.Data.(*SingularBatch)
	if !ok {
		return nil, NewCriticalError(fmt.Errorf("expected singular batch, got %T", batch.Data))
	}
	parent, err := ab.state.L2Info(ctx, sb.Timestamp-ab.cfg.BlockTime)
	if err != nil {
		if isNotFound(err) {
			return nil, NewTemporaryError(fmt.Errorf("%w: batch at %d: %w", ErrBlockNotIncluded, sb.Timestamp, err))
		}
		return nil, NewTemporaryError(fmt.Errorf("failed to fetch L2 parent of batch at %d: %w", sb.Timestamp, err))
	}
	attrs, err := ab.PreparePayloadAttributes(parent, sb.Epoch(), sb.Timestamp)
	if err != nil {
		return nil, err
	}
	attrs.Transactions = append(attrs.Transactions, sb.Transactions...)
	attrs.L1InclusionBlock = batch.L1InclusionBlock
	return attrs, nil
}
