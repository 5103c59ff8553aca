package derive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MaxSpanBatchSize bounds the encoded size of a span batch.
const MaxSpanBatchSize = 10_000_000

var ErrSpanBatchTooLarge = errors.New("span batch exceeds size limit")

// spanBatchPrefix is the fixed part of a span batch.
type spanBatchPrefix struct {
	relTimestamp  uint64
	l1OriginNum   uint64
	parentCheck   [20]byte
	l1OriginCheck [20]byte
}

type spanBatchPayload struct {
	blockCount    uint64
	originBits    *big.Int
	blockTxCounts []uint64
	txs           *spanBatchTxs
}

// RawSpanBatch is the wire form of a span batch.
type RawSpanBatch struct {
	spanBatchPrefix
	spanBatchPayload
}

func (b *RawSpanBatch) decodePrefix(r *bytes.Reader) error {
	var err error
	if b.relTimestamp, err = readUvarint(r, "relative timestamp"); err != nil {
		return err
	}
	if b.l1OriginNum, err = readUvarint(r, "L1 origin number"); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, b.parentCheck[:]); err != nil {
		return fmt.Errorf("failed to read parent check: %w", err)
	}
	if _, err := io.ReadFull(r, b.l1OriginCheck[:]); err != nil {
		return fmt.Errorf("failed to read L1 origin check: %w", err)
	}
	return nil
}

func (b *RawSpanBatch) decodePayload(r *bytes.Reader) error {
	var err error
	if b.blockCount, err = readUvarint(r, "block count"); err != nil {
		return err
	}
	if b.blockCount > MaxSpanBatchElementCount {
		return ErrTooBigSpanBatchSize
	}
	if b.blockCount == 0 {
		return ErrEmptySpanBatch
	}
	if b.originBits, err = decodeSpanBatchBits(r, b.blockCount); err != nil {
		return fmt.Errorf("origin bits: %w", err)
	}

	b.blockTxCounts = make([]uint64, b.blockCount)
	var total uint64
	for i := range b.blockTxCounts {
		count, err := readUvarint(r, "block tx count")
		if err != nil {
			return err
		}
		if count > MaxSpanBatchElementCount {
			return ErrTooBigSpanBatchSize
		}
		b.blockTxCounts[i] = count
		total += count
		if total > MaxSpanBatchElementCount {
			return ErrTooBigSpanBatchSize
		}
	}

	b.txs = &spanBatchTxs{totalBlockTxCount: total}
	return b.txs.decode(r)
}

// UnmarshalRawSpanBatch decodes a span batch payload without its type byte.
func UnmarshalRawSpanBatch(data []byte) (*RawSpanBatch, error) {
	if len(data) > MaxSpanBatchSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrSpanBatchTooLarge, len(data))
	}
	r := bytes.NewReader(data)
	b := &RawSpanBatch{}
	if err := b.decodePrefix(r); err != nil {
		return nil, fmt.Errorf("span batch prefix: %w", err)
	}
	if err := b.decodePayload(r); err != nil {
		return nil, fmt.Errorf("span batch payload: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("span batch has %d trailing bytes", r.Len())
	}
	return b, nil
}

// MarshalBinary encodes the span batch, type byte included.
func (b *RawSpanBatch) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(SpanBatchType)
	if err := writeUvarint(&buf, b.relTimestamp); err != nil {
		return nil, err
	}
	if err := writeUvarint(&buf, b.l1OriginNum); err != nil {
		return nil, err
	}
	buf.Write(b.parentCheck[:])
	buf.Write(b.l1OriginCheck[:])

	if err := writeUvarint(&buf, b.blockCount); err != nil {
		return nil, err
	}
	if err := encodeSpanBatchBits(&buf, b.blockCount, b.originBits); err != nil {
		return nil, fmt.Errorf("origin bits: %w", err)
	}
	for _, count := range b.blockTxCounts {
		if err := writeUvarint(&buf, count); err != nil {
			return nil, err
		}
	}
	if err := b.txs.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Derive expands the raw batch into per-block elements.
func (b *RawSpanBatch) Derive(blockTime, genesisTimestamp uint64, chainID *big.Int) (*SpanBatch, error) {
	if b.blockCount == 0 {
		return nil, ErrEmptySpanBatch
	}
	epochs := make([]uint64, b.blockCount)
	epochs[b.blockCount-1] = b.l1OriginNum
	for i := int(b.blockCount) - 1; i > 0; i-- {
		epochs[i-1] = epochs[i]
		if b.originBits.Bit(i) == 1 {
			if epochs[i] == 0 {
				return nil, errors.New("span batch L1 origin underflows genesis")
			}
			epochs[i-1]--
		}
	}

	fullTxs, err := b.txs.fullTxs(chainID)
	if err != nil {
		return nil, err
	}

	sb := &SpanBatch{
		ParentCheck:      b.parentCheck,
		L1OriginCheck:    b.l1OriginCheck,
		GenesisTimestamp: genesisTimestamp,
		ChainID:          chainID,
		OriginChanged:    b.originBits.Bit(0) == 1,
	}
	txIdx := 0
	for i := 0; i < int(b.blockCount); i++ {
		el := &SpanBatchElement{
			EpochNum:  epochs[i],
			Timestamp: genesisTimestamp + b.relTimestamp + uint64(i)*blockTime,
		}
		for j := uint64(0); j < b.blockTxCounts[i]; j++ {
			el.Transactions = append(el.Transactions, fullTxs[txIdx])
			txIdx++
		}
		sb.Batches = append(sb.Batches, el)
	}
	return sb, nil
}

// SpanBatchElement is one L2 block of a span batch.
type SpanBatchElement struct {
	EpochNum     uint64
	Timestamp    uint64
	Transactions []hexutil.Bytes
}

// SpanBatch is the derived form of a span batch: a run of consecutive L2 blocks.
type SpanBatch struct {
	ParentCheck      [20]byte
	L1OriginCheck    [20]byte
	GenesisTimestamp uint64
	ChainID          *big.Int
	// OriginChanged is set when the first block starts a new epoch relative to its parent.
	OriginChanged bool
	Batches       []*SpanBatchElement
}

// NewSpanBatch returns an empty span batch to append singular batches to.
func NewSpanBatch(genesisTimestamp uint64, chainID *big.Int) *SpanBatch {
	return &SpanBatch{GenesisTimestamp: genesisTimestamp, ChainID: chainID}
}

func (b *SpanBatch) isBatchData() {}

func (b *SpanBatch) GetBatchType() int { return SpanBatchType }

// GetTimestamp returns the timestamp of the first block.
func (b *SpanBatch) GetTimestamp() uint64 { return b.Batches[0].Timestamp }

func (b *SpanBatch) GetStartEpochNum() uint64 { return b.Batches[0].EpochNum }

func (b *SpanBatch) GetBlockCount() int { return len(b.Batches) }

func (b *SpanBatch) GetBlockTimestamp(i int) uint64 { return b.Batches[i].Timestamp }

func (b *SpanBatch) GetBlockEpochNum(i int) uint64 { return b.Batches[i].EpochNum }

func (b *SpanBatch) GetBlockTransactions(i int) []hexutil.Bytes { return b.Batches[i].Transactions }

// CheckParentHash compares the parent check with the first 20 bytes of hash.
func (b *SpanBatch) CheckParentHash(hash common.Hash) bool {
	return bytes.Equal(b.ParentCheck[:], hash[:20])
}

// CheckOriginHash compares the L1 origin check with the first 20 bytes of hash.
func (b *SpanBatch) CheckOriginHash(hash common.Hash) bool {
	return bytes.Equal(b.L1OriginCheck[:], hash[:20])
}

// AppendSingularBatch adds a block. The first one sets the parent check and
// every one moves the L1 origin check.
func (b *SpanBatch) AppendSingularBatch(sb *SingularBatch) {
	if len(b.Batches) == 0 {
		copy(b.ParentCheck[:], sb.ParentHash[:20])
	}
	copy(b.L1OriginCheck[:], sb.EpochHash[:20])
	b.Batches = append(b.Batches, &SpanBatchElement{
		EpochNum:     sb.EpochNum,
		Timestamp:    sb.Timestamp,
		Transactions: sb.Transactions,
	})
}

// ToRawSpanBatch converts to the wire form. originChangedBit is bit 0 of the
// origin bits: whether the first block starts a new epoch.
func (b *SpanBatch) ToRawSpanBatch(originChangedBit uint, genesisTimestamp uint64, chainID *big.Int) (*RawSpanBatch, error) {
	if len(b.Batches) == 0 {
		return nil, ErrEmptySpanBatch
	}
	first := b.Batches[0]
	last := b.Batches[len(b.Batches)-1]
	if first.Timestamp < genesisTimestamp {
		return nil, fmt.Errorf("span batch starts at %d before genesis %d", first.Timestamp, genesisTimestamp)
	}

	raw := &RawSpanBatch{}
	raw.relTimestamp = first.Timestamp - genesisTimestamp
	raw.l1OriginNum = last.EpochNum
	raw.parentCheck = b.ParentCheck
	raw.l1OriginCheck = b.L1OriginCheck
	raw.blockCount = uint64(len(b.Batches))

	raw.originBits = new(big.Int)
	raw.originBits.SetBit(raw.originBits, 0, originChangedBit)
	raw.blockTxCounts = make([]uint64, len(b.Batches))
	var txs [][]byte
	for i, el := range b.Batches {
		if i > 0 && el.EpochNum != b.Batches[i-1].EpochNum {
			raw.originBits.SetBit(raw.originBits, i, 1)
		}
		raw.blockTxCounts[i] = uint64(len(el.Transactions))
		for _, tx := range el.Transactions {
			txs = append(txs, tx)
		}
	}
	var err error
	if raw.txs, err = newSpanBatchTxs(txs, chainID); err != nil {
		return nil, err
	}
	return raw, nil
}

// SingularBatches expands the span batch into singular batches, skipping
// blocks at or before the safe head timestamp. l1Origins resolves epoch hashes.
func (b *SpanBatch) SingularBatches(l1Origins func(num uint64) (rollup.Epoch, bool), safeTimestamp uint64) ([]*SingularBatch, error) {
	var out []*SingularBatch
	for _, el := range b.Batches {
		if el.Timestamp <= safeTimestamp {
			continue
		}
		origin, ok := l1Origins(el.EpochNum)
		if !ok {
			return nil, fmt.Errorf("unknown L1 origin %d for span batch block at %d", el.EpochNum, el.Timestamp)
		}
		out = append(out, &SingularBatch{
			EpochNum:     el.EpochNum,
			EpochHash:    origin.Hash,
			Timestamp:    el.Timestamp,
			Transactions: el.Transactions,
		})
	}
	return out, nil
}
