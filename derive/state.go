package derive

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
)

const l2RefCacheSize = 4096

// L2Fetcher resolves L2 blocks the derivation state has not seen itself.
// Implementations return an error wrapping ErrL2BlockNotFound for unknown blocks.
type L2Fetcher interface {
	L2BlockRefByNumber(ctx context.Context, number uint64) (rollup.L2BlockRef, error)
}

// State is the derivation view of L1 and L2. It is owned by the pipeline and
// not safe for concurrent use.
type State struct {
	cfg     *rollup.Config
	log     *log.Logger
	fetcher L2Fetcher

	l1Infos  map[common.Hash]*L1Info
	l1Hashes map[uint64]common.Hash
	l2Refs   *lru.Cache[uint64, rollup.L2BlockRef]

	safeHead        rollup.BlockInfo
	safeEpoch       rollup.Epoch
	currentEpochNum uint64
}

func NewState(cfg *rollup.Config, logger *log.Logger, fetcher L2Fetcher,
	safeHead rollup.BlockInfo, safeEpoch rollup.Epoch) *State {
	refs, err := lru.New[uint64, rollup.L2BlockRef](l2RefCacheSize)
	if err != nil {
		panic(err)
	}
	s := &State{
		cfg:       cfg,
		log:       logger,
		fetcher:   fetcher,
		l1Infos:   make(map[common.Hash]*L1Info),
		l1Hashes:  make(map[uint64]common.Hash),
		l2Refs:    refs,
		safeHead:  safeHead,
		safeEpoch: safeEpoch,
	}
	s.l2Refs.Add(safeHead.Number, rollup.L2BlockRef{BlockInfo: safeHead, L1Origin: safeEpoch, SequenceNumber: safeEpoch.SequenceNumber})
	return s
}

// L1Info returns the L1 info of the block with the given hash.
func (s *State) L1Info(hash common.Hash) (*L1Info, bool) {
	info, ok := s.l1Infos[hash]
	return info, ok
}

// L1InfoByNumber returns the L1 info of the canonical block at number.
func (s *State) L1InfoByNumber(number uint64) (*L1Info, bool) {
	hash, ok := s.l1Hashes[number]
	if !ok {
		return nil, false
	}
	return s.L1Info(hash)
}

// Epoch returns the L1 block at number as an epoch.
func (s *State) Epoch(number uint64) (rollup.Epoch, bool) {
	info, ok := s.L1InfoByNumber(number)
	if !ok {
		return rollup.Epoch{}, false
	}
	return info.Epoch(), true
}

// EpochByHash returns the L1 block with the given hash as an epoch.
func (s *State) EpochByHash(hash common.Hash) (rollup.Epoch, bool) {
	info, ok := s.L1Info(hash)
	if !ok {
		return rollup.Epoch{}, false
	}
	return info.Epoch(), true
}

// L2Info returns the L2 block at the given timestamp, asking the fetcher on a cache miss.
func (s *State) L2Info(ctx context.Context, timestamp uint64) (rollup.L2BlockRef, error) {
	number, err := s.cfg.TargetBlockNumber(timestamp)
	if err != nil {
		return rollup.L2BlockRef{}, fmt.Errorf("%w: %w", ErrL2BlockNotFound, err)
	}
	if ref, ok := s.l2Refs.Get(number); ok {
		return ref, nil
	}
	if s.fetcher == nil {
		return rollup.L2BlockRef{}, fmt.Errorf("%w: %d", ErrL2BlockNotFound, number)
	}
	ref, err := s.fetcher.L2BlockRefByNumber(ctx, number)
	if err != nil {
		return rollup.L2BlockRef{}, err
	}
	s.l2Refs.Add(number, ref)
	return ref, nil
}

// UpdateL1Info records a new L1 block and prunes L1 blocks outside the sequencing window.
func (s *State) UpdateL1Info(info *L1Info) {
	s.currentEpochNum = info.Block.Number
	s.l1Hashes[info.Block.Number] = info.Block.Hash
	s.l1Infos[info.Block.Hash] = info
	s.prune()
}

// UpdateSafeHead moves the safe head and remembers it as an L2 ref.
func (s *State) UpdateSafeHead(head rollup.BlockInfo, epoch rollup.Epoch) {
	s.safeHead = head
	s.safeEpoch = epoch
	s.l2Refs.Add(head.Number, rollup.L2BlockRef{BlockInfo: head, L1Origin: epoch, SequenceNumber: epoch.SequenceNumber})
}

// Purge forgets every L1 block and resets the safe head.
func (s *State) Purge(safeHead rollup.BlockInfo, safeEpoch rollup.Epoch) {
	s.l1Infos = make(map[common.Hash]*L1Info)
	s.l1Hashes = make(map[uint64]common.Hash)
	s.l2Refs.Purge()
	s.currentEpochNum = 0
	s.UpdateSafeHead(safeHead, safeEpoch)
}

func (s *State) prune() {
	if s.safeEpoch.Number < s.cfg.SeqWindowSize {
		return
	}
	pruneBefore := s.safeEpoch.Number - s.cfg.SeqWindowSize
	for number, hash := range s.l1Hashes {
		if number < pruneBefore {
			delete(s.l1Hashes, number)
			delete(s.l1Infos, hash)
		}
	}
}

func (s *State) SafeHead() rollup.BlockInfo { return s.safeHead }
func (s *State) SafeEpoch() rollup.Epoch    { return s.safeEpoch }
func (s *State) CurrentEpochNum() uint64    { return s.currentEpochNum }

// CurrentL1 returns the most recent L1 block given to the state.
func (s *State) CurrentL1() (rollup.L1BlockRef, bool) {
	info, ok := s.L1InfoByNumber(s.currentEpochNum)
	if !ok {
		return rollup.L1BlockRef{}, false
	}
	return info.Block, true
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrL2BlockNotFound)
}
