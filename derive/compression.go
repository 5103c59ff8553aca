package derive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zlib"
)

const (
	zlibCM8  = 8
	zlibCM15 = 15

	// ChannelVersionBrotli prefixes brotli compressed channels.
	ChannelVersionBrotli byte = 0x01
)

var (
	ErrEmptyChannel       = errors.New("empty channel data")
	ErrUnknownCompression = errors.New("unknown compression type")
	ErrBrotliBeforeFjord  = errors.New("brotli compressed channel before fjord")
	ErrChannelTooLarge    = errors.New("decompressed channel exceeds size limit")
)

// CompressionAlgo names the compression applied to a channel.
type CompressionAlgo string

const (
	Zlib   CompressionAlgo = "zlib"
	Brotli CompressionAlgo = "brotli"
)

// newChannelReader returns a reader over the decompressed channel data.
func newChannelReader(data []byte, fjord bool) (io.Reader, CompressionAlgo, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyChannel
	}
	switch b := data[0]; {
	case b&0x0F == zlibCM8 || b&0x0F == zlibCM15:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, Zlib, fmt.Errorf("zlib reader: %w", err)
		}
		return r, Zlib, nil
	case b == ChannelVersionBrotli:
		if !fjord {
			return nil, Brotli, ErrBrotliBeforeFjord
		}
		return brotli.NewReader(bytes.NewReader(data[1:])), Brotli, nil
	default:
		return nil, "", fmt.Errorf("%w: first byte %#x", ErrUnknownCompression, b)
	}
}

// CompressChannel compresses raw channel data. Used to build batcher
// payloads in tests and tooling.
func CompressChannel(algo CompressionAlgo, raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch algo {
	case Zlib:
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case Brotli:
		buf.WriteByte(ChannelVersionBrotli)
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompression, algo)
	}
	return buf.Bytes(), nil
}
