package l1

import (
	"context"
	"fmt"
	"math/big"

	"github.com/0xPolygon/cdk-opnode/derive"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// EthClienter is the part of the L1 client the watcher uses.
type EthClienter interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

type UpdateType uint8

const (
	// NewBlock carries the next L1 block
	NewBlock UpdateType = iota
	// Reorg means the last emitted blocks are no longer canonical. The watcher
	// stops until it is restarted.
	Reorg
	// FinalityUpdate carries a new L1 finalized block number
	FinalityUpdate
)

func (t UpdateType) String() string {
	switch t {
	case NewBlock:
		return "new-block"
	case Reorg:
		return "reorg"
	case FinalityUpdate:
		return "finality-update"
	default:
		return fmt.Sprintf("update(%d)", uint8(t))
	}
}

// BlockUpdate is what the watcher tells the driver.
type BlockUpdate struct {
	Type UpdateType
	// set for NewBlock
	Info *derive.L1Info
	// set for FinalityUpdate
	Finalized uint64
}

// Status is the watcher's view of L1.
type Status struct {
	Current   rollup.L1BlockRef
	Head      rollup.L1BlockRef
	Safe      rollup.L1BlockRef
	Finalized rollup.L1BlockRef
}
