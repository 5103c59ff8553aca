package engine

import (
	"math/big"
	"testing"

	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

const testGasLimit = 30_000_000

func testHash(prefix byte, n uint64) common.Hash {
	var h common.Hash
	h[0] = prefix
	new(big.Int).SetUint64(n).FillBytes(h[24:])
	return h
}

func testRollupConfig() *rollup.Config {
	return &rollup.Config{
		Genesis: rollup.Genesis{
			L1:     rollup.BlockID{Hash: testHash(0xA1, 100), Number: 100},
			L2:     rollup.BlockID{Hash: testHash(0xB2, 0), Number: 0},
			L2Time: 1000,
			SystemConfig: rollup.SystemConfig{
				BatcherAddr: common.HexToAddress("0xba7c4e5"),
				GasLimit:    testGasLimit,
			},
		},
		BlockTime:              2,
		MaxSequencerDrift:      600,
		SeqWindowSize:          10,
		ChannelTimeout:         30,
		L1ChainID:              big.NewInt(1),
		L2ChainID:              big.NewInt(10),
		BatchInboxAddress:      common.HexToAddress("0xff00"),
		DepositContractAddress: common.HexToAddress("0xde90"),
	}
}

func testEpoch(n, seq uint64) rollup.Epoch {
	return rollup.Epoch{Number: n, Hash: testHash(0xA1, n), Timestamp: 990 + (n-100)*12, SequenceNumber: seq}
}

// testL2Block is L2 block n of a chain with one block every 2 seconds from time 1000.
func testL2Block(n uint64) rollup.BlockInfo {
	return rollup.BlockInfo{
		Hash:       testHash(0xB2, n),
		Number:     n,
		ParentHash: testHash(0xB2, n-1),
		Timestamp:  1000 + 2*n,
	}
}

// testPayload returns a payload for block n with a valid L1 info deposit for epoch.
func testPayload(t *testing.T, cfg *rollup.Config, n uint64, epoch rollup.Epoch) *enginetypes.ExecutionPayload {
	t.Helper()
	block := testL2Block(n)
	l1Block := rollup.L1BlockRef{
		BlockInfo: rollup.BlockInfo{Hash: epoch.Hash, Number: epoch.Number, Timestamp: epoch.Timestamp},
		BaseFee:   big.NewInt(7),
	}
	l1InfoTx, err := rollup.L1InfoDepositBytes(cfg, cfg.Genesis.SystemConfig, epoch.SequenceNumber, l1Block, block.Timestamp)
	require.NoError(t, err)
	return &enginetypes.ExecutionPayload{
		ParentHash:   block.ParentHash,
		FeeRecipient: rollup.SequencerFeeVault,
		BlockNumber:  hexutil.Uint64(block.Number),
		GasLimit:     testGasLimit,
		Timestamp:    hexutil.Uint64(block.Timestamp),
		BlockHash:    block.Hash,
		Transactions: []hexutil.Bytes{l1InfoTx, {0x02, 0xc0}},
	}
}

func testAttributes(t *testing.T, cfg *rollup.Config, n uint64, epoch rollup.Epoch) *enginetypes.PayloadAttributes {
	t.Helper()
	payload := testPayload(t, cfg, n, epoch)
	gasLimit := hexutil.Uint64(testGasLimit)
	return &enginetypes.PayloadAttributes{
		Timestamp:             payload.Timestamp,
		PrevRandao:            testHash(0xC3, epoch.Number),
		SuggestedFeeRecipient: rollup.SequencerFeeVault,
		Transactions:          payload.Transactions,
		NoTxPool:              true,
		GasLimit:              &gasLimit,
		Epoch:                 epoch,
		SeqNumber:             epoch.SequenceNumber,
		L1InclusionBlock:      epoch.Number + 1,
	}
}

func fcState(head, safe, finalized common.Hash) *enginetypes.ForkchoiceState {
	return &enginetypes.ForkchoiceState{HeadBlockHash: head, SafeBlockHash: safe, FinalizedBlockHash: finalized}
}

func fcResult(status enginetypes.ExecutePayloadStatus, id *enginetypes.PayloadID) *enginetypes.ForkchoiceUpdatedResult {
	return &enginetypes.ForkchoiceUpdatedResult{
		PayloadStatus: enginetypes.PayloadStatusV1{Status: status},
		PayloadID:     id,
	}
}

func payloadStatus(status enginetypes.ExecutePayloadStatus) *enginetypes.PayloadStatusV1 {
	return &enginetypes.PayloadStatusV1{Status: status}
}

var (
	noAttributes = (*enginetypes.PayloadAttributes)(nil)
	noRoot       = (*common.Hash)(nil)
	testID       = enginetypes.PayloadID{1, 2, 3, 4, 5, 6, 7, 8}
)
