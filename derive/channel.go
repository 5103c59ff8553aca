package derive

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrWrongChannel    = errors.New("frame belongs to another channel")
	ErrChannelClosed   = errors.New("channel already closed")
	ErrFrameAfterClose = errors.New("frame number beyond the closing frame")
	ErrDuplicateFrame  = errors.New("duplicate frame")
)

// Channel collects the frames of one channel until it can be read.
type Channel struct {
	id        ChannelID
	openBlock uint64

	// highest L1 block a frame of this channel was included in, and its time
	highestL1Block uint64
	highestL1Time  uint64

	closed         bool
	endFrameNumber uint16
	size           uint64
	frames         map[uint16]Frame
}

// NewChannel opens a channel first seen in L1 block openBlock.
func NewChannel(id ChannelID, openBlock uint64) *Channel {
	return &Channel{
		id:        id,
		openBlock: openBlock,
		frames:    make(map[uint16]Frame),
	}
}

// AddFrame adds a frame included in the given L1 block.
func (c *Channel) AddFrame(frame Frame, l1Block, l1Time uint64) error {
	if frame.ID != c.id {
		return fmt.Errorf("%w: frame %s, channel %s", ErrWrongChannel, frame.ID, c.id)
	}
	if frame.IsLast && c.closed {
		return fmt.Errorf("%w: closing frame %d, end frame %d", ErrChannelClosed, frame.FrameNumber, c.endFrameNumber)
	}
	if _, ok := c.frames[frame.FrameNumber]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateFrame, frame.FrameNumber)
	}
	if c.closed && frame.FrameNumber >= c.endFrameNumber {
		return fmt.Errorf("%w: frame %d, end frame %d", ErrFrameAfterClose, frame.FrameNumber, c.endFrameNumber)
	}

	if frame.IsLast {
		c.endFrameNumber = frame.FrameNumber
		c.closed = true
		// frames past the closing frame can never be read
		for n, f := range c.frames {
			if n > frame.FrameNumber {
				c.size -= frameSize(f)
				delete(c.frames, n)
			}
		}
	}

	if l1Block > c.highestL1Block {
		c.highestL1Block = l1Block
		c.highestL1Time = l1Time
	}
	c.frames[frame.FrameNumber] = frame
	c.size += frameSize(frame)
	return nil
}

func frameSize(f Frame) uint64 {
	return uint64(len(f.Data)) + FrameOverhead
}

// IsReady reports whether the channel is closed and holds every frame up to the closing one.
func (c *Channel) IsReady() bool {
	if !c.closed {
		return false
	}
	if len(c.frames) != int(c.endFrameNumber)+1 {
		return false
	}
	for i := uint16(0); i <= c.endFrameNumber; i++ {
		if _, ok := c.frames[i]; !ok {
			return false
		}
		if i == c.endFrameNumber {
			break
		}
	}
	return true
}

// Data concatenates the frame data in frame order. Only meaningful once IsReady.
func (c *Channel) Data() []byte {
	var buf bytes.Buffer
	buf.Grow(int(c.size))
	for i := uint16(0); i <= c.endFrameNumber; i++ {
		buf.Write(c.frames[i].Data)
		if i == c.endFrameNumber {
			break
		}
	}
	return buf.Bytes()
}

// IsTimedOut reports whether the channel can no longer be completed at L1 block current.
func (c *Channel) IsTimedOut(current, channelTimeout uint64) bool {
	return current > c.openBlock+channelTimeout
}

func (c *Channel) ID() ChannelID            { return c.id }
func (c *Channel) OpenBlockNumber() uint64  { return c.openBlock }
func (c *Channel) L1InclusionBlock() uint64 { return c.highestL1Block }
func (c *Channel) L1InclusionTime() uint64  { return c.highestL1Time }
func (c *Channel) Size() uint64             { return c.size }
func (c *Channel) Closed() bool             { return c.closed }
func (c *Channel) FrameCount() int          { return len(c.frames) }
