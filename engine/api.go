package engine

import (
	"context"

	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/etherman"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/common"
)

// API is the execution engine as seen by the node: the engine API plus the
// L2 block lookups needed to consolidate derived blocks.
type API interface {
	ForkchoiceUpdate(ctx context.Context, state *enginetypes.ForkchoiceState,
		attrs *enginetypes.PayloadAttributes) (*enginetypes.ForkchoiceUpdatedResult, error)
	NewPayload(ctx context.Context, payload *enginetypes.ExecutionPayload,
		parentBeaconBlockRoot *common.Hash) (*enginetypes.PayloadStatusV1, error)
	GetPayload(ctx context.Context, info enginetypes.PayloadInfo) (*enginetypes.ExecutionPayloadEnvelope, error)

	// BlockByNumber returns an error wrapping ethereum.NotFound for unknown blocks.
	BlockByNumber(ctx context.Context, number uint64) (*enginetypes.L2Block, error)
	BlockByLabel(ctx context.Context, label etherman.BlockNumberFinality) (*enginetypes.L2Block, error)
	L2BlockRefByNumber(ctx context.Context, number uint64) (rollup.L2BlockRef, error)
	L2BlockRefByLabel(ctx context.Context, label etherman.BlockNumberFinality) (rollup.L2BlockRef, error)
}
