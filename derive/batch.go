package derive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
)

const (
	SingularBatchType = 0
	SpanBatchType     = 1
)

var (
	ErrUnknownBatchType = errors.New("unknown batch type")
	ErrEmptyBatch       = errors.New("empty batch data")
)

// BatchData is either a *SingularBatch or a *SpanBatch.
type BatchData interface {
	GetBatchType() int
	GetTimestamp() uint64
	isBatchData()
}

// Batch is a decoded batch and the L1 block of the channel it came from.
type Batch struct {
	Data             BatchData
	L1InclusionBlock uint64
}

// Timestamp returns the timestamp of the first L2 block of the batch.
func (b Batch) Timestamp() uint64 {
	return b.Data.GetTimestamp()
}

// SingularBatch describes one L2 block.
type SingularBatch struct {
	ParentHash   common.Hash
	EpochNum     uint64
	EpochHash    common.Hash
	Timestamp    uint64
	Transactions []hexutil.Bytes
}

func (b *SingularBatch) isBatchData() {}

func (b *SingularBatch) GetBatchType() int { return SingularBatchType }

func (b *SingularBatch) GetTimestamp() uint64 { return b.Timestamp }

// Epoch returns the L1 origin of the batch, without its timestamp.
func (b *SingularBatch) Epoch() rollup.BlockID {
	return rollup.BlockID{Hash: b.EpochHash, Number: b.EpochNum}
}

func (b *SingularBatch) String() string {
	return fmt.Sprintf("SingularBatch{parent: %s, epoch: %d, ts: %d, txs: %d}",
		b.ParentHash.TerminalString(), b.EpochNum, b.Timestamp, len(b.Transactions))
}

// MarshalBinary encodes the batch, type byte included.
func (b *SingularBatch) MarshalBinary() ([]byte, error) {
	enc, err := rlp.EncodeToBytes(b)
	if err != nil {
		return nil, err
	}
	return append([]byte{SingularBatchType}, enc...), nil
}

// DecodeBatch decodes one batch from an RLP string read out of a channel.
func DecodeBatch(data []byte, l1InclusionBlock uint64, cfg *rollup.Config) (Batch, error) {
	if len(data) == 0 {
		return Batch{}, ErrEmptyBatch
	}
	switch data[0] {
	case SingularBatchType:
		var sb SingularBatch
		if err := rlp.DecodeBytes(data[1:], &sb); err != nil {
			return Batch{}, fmt.Errorf("singular batch: %w", err)
		}
		return Batch{Data: &sb, L1InclusionBlock: l1InclusionBlock}, nil
	case SpanBatchType:
		raw, err := UnmarshalRawSpanBatch(data[1:])
		if err != nil {
			return Batch{}, err
		}
		sb, err := raw.Derive(cfg.BlockTime, cfg.Genesis.L2Time, cfg.L2ChainID)
		if err != nil {
			return Batch{}, fmt.Errorf("span batch derive: %w", err)
		}
		return Batch{Data: sb, L1InclusionBlock: l1InclusionBlock}, nil
	default:
		return Batch{}, fmt.Errorf("%w: %d", ErrUnknownBatchType, data[0])
	}
}

// DecodeChannel decompresses a ready channel and decodes every batch in it.
// Batches decoded before an error are returned together with the error.
func DecodeChannel(cfg *rollup.Config, ch *Channel) ([]Batch, error) {
	l1Time := ch.L1InclusionTime()
	r, _, err := newChannelReader(ch.Data(), cfg.IsFjord(l1Time))
	if err != nil {
		return nil, err
	}
	limit := cfg.MaxRLPBytesPerChannel(l1Time)
	stream := rlp.NewStream(io.LimitReader(r, int64(limit)), limit)

	var batches []Batch
	for {
		data, err := stream.Bytes()
		if errors.Is(err, io.EOF) {
			return batches, nil
		}
		if err != nil {
			return batches, fmt.Errorf("read batch %d: %w", len(batches), err)
		}
		if len(data) > 0 && data[0] == SpanBatchType && !cfg.IsDelta(l1Time) {
			// not a valid batch before the delta upgrade
			continue
		}
		batch, err := DecodeBatch(data, ch.L1InclusionBlock(), cfg)
		if err != nil {
			return batches, fmt.Errorf("decode batch %d: %w", len(batches), err)
		}
		batches = append(batches, batch)
	}
}

// EncodeChannel builds raw channel data from encoded batches, compressed with algo.
func EncodeChannel(algo CompressionAlgo, batches ...[]byte) ([]byte, error) {
	var buf bytes.Buffer
	for _, b := range batches {
		if err := rlp.Encode(&buf, b); err != nil {
			return nil, err
		}
	}
	return CompressChannel(algo, buf.Bytes())
}
