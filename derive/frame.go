package derive

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// DerivationVersion0 is the only supported batcher transaction version.
	DerivationVersion0 = 0

	ChannelIDLength = 16
	// MaxFrameLen is the largest frame data length accepted.
	MaxFrameLen = 1_000_000
	// FrameOverhead is the encoded size of a frame without its data.
	FrameOverhead = ChannelIDLength + 2 + 4 + 1
)

var (
	ErrInvalidFrameSize = errors.New("invalid frame size")
	ErrFrameParse       = errors.New("frame parse error")
)

// ChannelID identifies a channel. Chosen randomly by the batcher.
type ChannelID [ChannelIDLength]byte

func (id ChannelID) String() string {
	return hex.EncodeToString(id[:])
}

// Frame is a chunk of channel data carried in a batcher transaction.
//
// Layout:
//
//	channel_id (16) ++ frame_number (uint16 BE) ++ frame_data_length (uint32 BE) ++ frame_data ++ is_last (1)
type Frame struct {
	ID          ChannelID
	FrameNumber uint16
	Data        []byte
	IsLast      bool
}

// MarshalBinary encodes the frame.
func (f *Frame) MarshalBinary() ([]byte, error) {
	if len(f.Data) > MaxFrameLen {
		return nil, fmt.Errorf("%w: data length %d exceeds %d", ErrInvalidFrameSize, len(f.Data), MaxFrameLen)
	}
	out := make([]byte, FrameOverhead+len(f.Data))
	copy(out, f.ID[:])
	binary.BigEndian.PutUint16(out[16:18], f.FrameNumber)
	binary.BigEndian.PutUint32(out[18:22], uint32(len(f.Data)))
	copy(out[22:], f.Data)
	if f.IsLast {
		out[len(out)-1] = 1
	}
	return out, nil
}

// UnmarshalFrame decodes one frame from the front of data and returns the
// number of bytes consumed.
func UnmarshalFrame(data []byte) (Frame, int, error) {
	if len(data) < FrameOverhead {
		return Frame{}, 0, fmt.Errorf("%w: %d bytes is below the %d byte minimum", ErrInvalidFrameSize, len(data), FrameOverhead)
	}
	var f Frame
	copy(f.ID[:], data[:16])
	f.FrameNumber = binary.BigEndian.Uint16(data[16:18])
	dataLen := binary.BigEndian.Uint32(data[18:22])
	if dataLen > MaxFrameLen {
		return Frame{}, 0, fmt.Errorf("%w: data length %d exceeds %d", ErrInvalidFrameSize, dataLen, MaxFrameLen)
	}
	end := 22 + int(dataLen)
	if end+1 > len(data) {
		return Frame{}, 0, fmt.Errorf("%w: %w: data length %d overruns input of %d bytes",
			ErrInvalidFrameSize, ErrFrameParse, dataLen, len(data))
	}
	f.Data = make([]byte, dataLen)
	copy(f.Data, data[22:end])
	switch data[end] {
	case 0:
	case 1:
		f.IsLast = true
	default:
		return Frame{}, 0, fmt.Errorf("%w: invalid is_last byte %d", ErrFrameParse, data[end])
	}
	return f, end + 1, nil
}

// ParseFrames decodes the payload of a batcher transaction.
func ParseFrames(data []byte) ([]Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty batcher transaction", ErrFrameParse)
	}
	if data[0] != DerivationVersion0 {
		return nil, fmt.Errorf("%w: unsupported derivation version %d", ErrFrameParse, data[0])
	}
	buf := data[1:]
	var frames []Frame
	for len(buf) > 0 {
		f, n, err := UnmarshalFrame(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %w", ErrFrameParse, len(frames), err)
		}
		frames = append(frames, f)
		buf = buf[n:]
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrFrameParse)
	}
	return frames, nil
}
