package derive

import (
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// L1Info is everything derivation needs from one L1 block.
type L1Info struct {
	Block        rollup.L1BlockRef
	SystemConfig rollup.SystemConfig
	// encoded user deposit txs, in log order
	UserDeposits []hexutil.Bytes
	// calldata of the txs sent by the batcher to the batch inbox
	BatcherTransactions [][]byte
	Finalized           bool
}

func (i *L1Info) Epoch() rollup.Epoch {
	return i.Block.Epoch()
}
