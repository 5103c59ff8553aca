package p2p

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultQueueSize     = 1024
	defaultSeenCacheSize = 1000
	maxFutureSkew        = 5 * time.Second
)

var (
	ErrNotStarted     = errors.New("unsafe payload feed not started")
	ErrQueueFull      = errors.New("unsafe payload queue full")
	ErrDuplicate      = errors.New("payload already seen")
	ErrInvalidPayload = errors.New("invalid unsafe payload")
)

// Feed is the bounded queue of unsafe payloads handed to the driver. Payloads
// are only accepted once the driver started the network.
type Feed struct {
	cfg       *rollup.Config
	log       *log.Logger
	payloads  chan *enginetypes.ExecutionPayloadEnvelope
	seen      *lru.Cache[common.Hash, struct{}]
	started   atomic.Bool
	published atomic.Uint64
	now       func() time.Time
}

func NewFeed(cfg Config, rollupCfg *rollup.Config) *Feed {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.SeenCacheSize <= 0 {
		cfg.SeenCacheSize = defaultSeenCacheSize
	}
	seen, err := lru.New[common.Hash, struct{}](cfg.SeenCacheSize)
	if err != nil {
		panic(err)
	}
	return &Feed{
		cfg:      rollupCfg,
		log:      log.WithFields("module", "p2p"),
		payloads: make(chan *enginetypes.ExecutionPayloadEnvelope, cfg.QueueSize),
		seen:     seen,
		now:      time.Now,
	}
}

// Start opens the feed. Calling it again is a no-op.
func (f *Feed) Start() {
	if f.started.CompareAndSwap(false, true) {
		f.log.Info("unsafe payload feed started")
	}
}

func (f *Feed) Started() bool {
	return f.started.Load()
}

// Payloads is drained by the driver.
func (f *Feed) Payloads() <-chan *enginetypes.ExecutionPayloadEnvelope {
	return f.payloads
}

// Published is the number of payloads queued so far.
func (f *Feed) Published() uint64 {
	return f.published.Load()
}

// Publish validates env and queues it without blocking.
func (f *Feed) Publish(env *enginetypes.ExecutionPayloadEnvelope) error {
	if !f.Started() {
		return ErrNotStarted
	}
	if err := f.check(env); err != nil {
		return err
	}
	hash := env.ExecutionPayload.BlockHash
	if ok, _ := f.seen.ContainsOrAdd(hash, struct{}{}); ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, env.ExecutionPayload)
	}
	select {
	case f.payloads <- env:
		f.published.Add(1)
		f.log.Debugw("queued unsafe payload", "block", env.ExecutionPayload.String())
		return nil
	default:
		f.seen.Remove(hash)
		f.log.Warnw("dropping unsafe payload, queue full", "block", env.ExecutionPayload.String())
		return ErrQueueFull
	}
}

// check applies the timestamp and per fork field presence rules of the gossip topic.
func (f *Feed) check(env *enginetypes.ExecutionPayloadEnvelope) error {
	if env == nil || env.ExecutionPayload == nil {
		return fmt.Errorf("%w: missing execution payload", ErrInvalidPayload)
	}
	p := env.ExecutionPayload
	if len(p.Transactions) == 0 {
		return fmt.Errorf("%w: %s has no transactions", ErrInvalidPayload, p)
	}
	ts := uint64(p.Timestamp)
	if limit := uint64(f.now().Add(maxFutureSkew).Unix()); ts > limit {
		return fmt.Errorf("%w: %s timestamp %d too far in the future", ErrInvalidPayload, p, ts)
	}

	canyon := f.cfg.IsCanyon(ts)
	if canyon && p.Withdrawals == nil {
		return fmt.Errorf("%w: %s missing withdrawals", ErrInvalidPayload, p)
	}
	if !canyon && p.Withdrawals != nil {
		return fmt.Errorf("%w: %s has withdrawals before canyon", ErrInvalidPayload, p)
	}
	if canyon && len(*p.Withdrawals) != 0 {
		return fmt.Errorf("%w: %s has non empty withdrawals", ErrInvalidPayload, p)
	}

	if f.cfg.IsEcotone(ts) {
		if env.ParentBeaconBlockRoot == nil {
			return fmt.Errorf("%w: %s missing parent beacon block root", ErrInvalidPayload, p)
		}
		if p.BlobGasUsed == nil || uint64(*p.BlobGasUsed) != 0 {
			return fmt.Errorf("%w: %s blob gas used must be 0", ErrInvalidPayload, p)
		}
		if p.ExcessBlobGas == nil || uint64(*p.ExcessBlobGas) != 0 {
			return fmt.Errorf("%w: %s excess blob gas must be 0", ErrInvalidPayload, p)
		}
	} else if env.ParentBeaconBlockRoot != nil || p.BlobGasUsed != nil || p.ExcessBlobGas != nil {
		return fmt.Errorf("%w: %s has ecotone fields before ecotone", ErrInvalidPayload, p)
	}
	return nil
}
