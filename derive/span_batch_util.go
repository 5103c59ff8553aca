package derive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// MaxSpanBatchElementCount bounds every count and buffer read while decoding a span batch.
const MaxSpanBatchElementCount = 10_000_000

var (
	ErrTooBigSpanBatchSize = errors.New("span batch size limit reached")
	ErrInvalidBitlist      = errors.New("bitlist has bits set beyond its length")
	ErrEmptySpanBatch      = errors.New("span batch must not be empty")
)

// decodeSpanBatchBits reads a bitlist of bitLength bits, stored as a big-endian
// integer padded to a whole number of bytes.
func decodeSpanBatchBits(r *bytes.Reader, bitLength uint64) (*big.Int, error) {
	bufLen := bitLength / 8
	if bitLength%8 != 0 {
		bufLen++
	}
	if bufLen > MaxSpanBatchElementCount {
		return nil, ErrTooBigSpanBatchSize
	}
	buf := make([]byte, bufLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read bits: %w", err)
	}
	out := new(big.Int).SetBytes(buf)
	if l := uint64(out.BitLen()); l > bitLength {
		return nil, fmt.Errorf("%w: %d bits set, length %d", ErrInvalidBitlist, l, bitLength)
	}
	return out, nil
}

// encodeSpanBatchBits writes bits as a bitlist of bitLength bits.
func encodeSpanBatchBits(w io.Writer, bitLength uint64, bits *big.Int) error {
	if l := uint64(bits.BitLen()); l > bitLength {
		return fmt.Errorf("%w: %d bits set, length %d", ErrInvalidBitlist, l, bitLength)
	}
	bufLen := bitLength / 8
	if bitLength%8 != 0 {
		bufLen++
	}
	if bufLen > MaxSpanBatchElementCount {
		return ErrTooBigSpanBatchSize
	}
	buf := make([]byte, bufLen)
	bits.FillBytes(buf)
	_, err := w.Write(buf)
	return err
}

func readUvarint(r *bytes.Reader, what string) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", what, err)
	}
	return v, nil
}

func writeUvarint(w io.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

// popCount returns the number of set bits among the first n bits.
func popCount(bits *big.Int, n uint64) uint64 {
	var count uint64
	for i := 0; i < int(n); i++ {
		count += uint64(bits.Bit(i))
	}
	return count
}
