package derive

import (
	"errors"

	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/rollup"
	lru "github.com/hashicorp/golang-lru/v2"
)

const closedChannelsCacheSize = 1024

// ChannelBank buffers incoming frames per channel and hands out channels
// once they are complete.
type ChannelBank struct {
	cfg *rollup.Config
	log *log.Logger

	channels map[ChannelID]*Channel
	// channel ids in the order they were opened
	queue []ChannelID
	// closed or timed out channels whose late frames are ignored
	closed *lru.Cache[ChannelID, struct{}]
}

func NewChannelBank(cfg *rollup.Config, logger *log.Logger) *ChannelBank {
	closed, err := lru.New[ChannelID, struct{}](closedChannelsCacheSize)
	if err != nil {
		// only fails on a non positive size
		panic(err)
	}
	return &ChannelBank{
		cfg:      cfg,
		log:      logger,
		channels: make(map[ChannelID]*Channel),
		closed:   closed,
	}
}

// Ingest adds a frame included in L1 block l1Block with timestamp l1Time.
// It returns the channel when the frame completed it.
func (cb *ChannelBank) Ingest(frame Frame, l1Block, l1Time uint64) (*Channel, bool) {
	if cb.closed.Contains(frame.ID) {
		cb.log.Debugw("ignoring frame of closed channel", "channel", frame.ID, "frame", frame.FrameNumber)
		return nil, false
	}

	ch, ok := cb.channels[frame.ID]
	if ok && ch.IsTimedOut(l1Block, cb.cfg.ChannelTimeoutAt(l1Time)) {
		cb.log.Warnw("dropping timed out channel", "channel", frame.ID, "open_block", ch.OpenBlockNumber(), "l1_block", l1Block)
		cb.remove(frame.ID)
		return nil, false
	}
	if !ok {
		ch = NewChannel(frame.ID, l1Block)
		cb.channels[frame.ID] = ch
		cb.queue = append(cb.queue, frame.ID)
	}

	if err := ch.AddFrame(frame, l1Block, l1Time); err != nil {
		if errors.Is(err, ErrDuplicateFrame) {
			cb.log.Debugw("ignoring frame", "channel", frame.ID, "frame", frame.FrameNumber, "reason", err)
		} else {
			cb.log.Warnw("ignoring frame", "channel", frame.ID, "frame", frame.FrameNumber, "error", err)
		}
		return nil, false
	}

	if ch.IsReady() {
		cb.remove(frame.ID)
		return ch, true
	}
	cb.prune(l1Time)
	return nil, false
}

// Prune drops channels that timed out at L1 block current and then the oldest
// channels while the bank is over its size limit.
func (cb *ChannelBank) Prune(current, l1Time uint64) {
	timeout := cb.cfg.ChannelTimeoutAt(l1Time)
	for _, id := range append([]ChannelID(nil), cb.queue...) {
		if cb.channels[id].IsTimedOut(current, timeout) {
			cb.log.Infow("channel timed out", "channel", id, "open_block", cb.channels[id].OpenBlockNumber(), "l1_block", current)
			cb.remove(id)
		}
	}
	cb.prune(l1Time)
}

func (cb *ChannelBank) prune(l1Time uint64) {
	limit := cb.cfg.MaxChannelSize(l1Time)
	for total := cb.TotalSize(); total > limit && len(cb.queue) > 0; total = cb.TotalSize() {
		id := cb.queue[0]
		cb.log.Warnw("pruning channel bank", "channel", id, "total_size", total, "limit", limit)
		cb.remove(id)
	}
}

func (cb *ChannelBank) remove(id ChannelID) {
	delete(cb.channels, id)
	for i, qid := range cb.queue {
		if qid == id {
			cb.queue = append(cb.queue[:i], cb.queue[i+1:]...)
			break
		}
	}
	cb.closed.Add(id, struct{}{})
}

// TotalSize is the sum of the sizes of all pending channels.
func (cb *ChannelBank) TotalSize() uint64 {
	var total uint64
	for _, ch := range cb.channels {
		total += ch.Size()
	}
	return total
}

// Len returns the number of pending channels.
func (cb *ChannelBank) Len() int {
	return len(cb.queue)
}

// Reset drops every pending channel and forgets closed ids.
func (cb *ChannelBank) Reset() {
	cb.channels = make(map[ChannelID]*Channel)
	cb.queue = nil
	cb.closed.Purge()
}
