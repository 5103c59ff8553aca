package rollup

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BlockInfo is the minimal identity of a block.
type BlockInfo struct {
	Hash       common.Hash `json:"hash"`
	Number     uint64      `json:"number"`
	ParentHash common.Hash `json:"parentHash"`
	Timestamp  uint64      `json:"timestamp"`
}

func (b BlockInfo) ID() BlockID {
	return BlockID{Hash: b.Hash, Number: b.Number}
}

func (b BlockInfo) String() string {
	return fmt.Sprintf("%s:%d", b.Hash.TerminalString(), b.Number)
}

// Epoch is the L1 origin of an L2 block.
type Epoch struct {
	Number         uint64      `json:"number"`
	Hash           common.Hash `json:"hash"`
	Timestamp      uint64      `json:"timestamp"`
	SequenceNumber uint64      `json:"sequenceNumber"`
}

func (e Epoch) String() string {
	return fmt.Sprintf("%s:%d", e.Hash.TerminalString(), e.Number)
}

// L2BlockRef is an L2 block plus its derivation metadata.
type L2BlockRef struct {
	BlockInfo
	L1Origin       Epoch  `json:"l1origin"`
	SequenceNumber uint64 `json:"sequenceNumber"`
}

// L1BlockRef is an L1 header reduced to the fields derivation needs.
type L1BlockRef struct {
	BlockInfo
	BaseFee          *big.Int     `json:"baseFee"`
	MixDigest        common.Hash  `json:"mixDigest"`
	ExcessBlobGas    *uint64      `json:"excessBlobGas,omitempty"`
	ParentBeaconRoot *common.Hash `json:"parentBeaconBlockRoot,omitempty"`
}

// L1BlockRefFromHeader extracts an L1BlockRef from a full header.
func L1BlockRefFromHeader(h *types.Header) L1BlockRef {
	return L1BlockRef{
		BlockInfo: BlockInfo{
			Hash:       h.Hash(),
			Number:     h.Number.Uint64(),
			ParentHash: h.ParentHash,
			Timestamp:  h.Time,
		},
		BaseFee:          h.BaseFee,
		MixDigest:        h.MixDigest,
		ExcessBlobGas:    h.ExcessBlobGas,
		ParentBeaconRoot: h.ParentBeaconRoot,
	}
}

// Epoch returns the block as an epoch with sequence number zero.
func (r L1BlockRef) Epoch() Epoch {
	return Epoch{Number: r.Number, Hash: r.Hash, Timestamp: r.Timestamp}
}
