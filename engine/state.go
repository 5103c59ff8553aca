package engine

import (
	"fmt"

	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/rollup"
)

// SyncStatus tracks how the engine is being brought to the tip of the chain.
type SyncStatus uint8

const (
	// SyncStatusCL derives every block from L1. Nodes not using EL sync never leave it.
	SyncStatusCL SyncStatus = iota
	// SyncStatusWillStartEL waits for the first unsafe payload to decide whether to EL sync.
	SyncStatusWillStartEL
	// SyncStatusStartedEL lets the engine sync from its peers towards the unsafe payloads.
	SyncStatusStartedEL
	// SyncStatusFinishedELNotFinalized is reached on the first VALID forkchoice
	// update. The next payload becomes the safe and finalized head.
	SyncStatusFinishedELNotFinalized
	// SyncStatusFinishedEL derives from L1 on top of the EL synced chain.
	SyncStatusFinishedEL
)

func (s SyncStatus) String() string {
	switch s {
	case SyncStatusCL:
		return "cl"
	case SyncStatusWillStartEL:
		return "will-start-el"
	case SyncStatusStartedEL:
		return "started-el"
	case SyncStatusFinishedELNotFinalized:
		return "finished-el-not-finalized"
	case SyncStatusFinishedEL:
		return "finished-el"
	default:
		return fmt.Sprintf("sync-status(%d)", uint8(s))
	}
}

// IsEngineSyncing is true while the engine, not the derivation, moves the chain.
func (s SyncStatus) IsEngineSyncing() bool {
	switch s {
	case SyncStatusWillStartEL, SyncStatusStartedEL, SyncStatusFinishedELNotFinalized:
		return true
	default:
		return false
	}
}

// BuildingState is the block the engine is building for the sequencer.
type BuildingState struct {
	Onto       rollup.L2BlockRef
	Info       enginetypes.PayloadInfo
	IsSafe     bool
	Attributes *enginetypes.PayloadAttributes
}

// State is the view of the L2 chain the node holds the engine to.
// Transitions return a new value; the Driver is the only owner of the current one.
type State struct {
	UnsafeHead     rollup.BlockInfo
	UnsafeEpoch    rollup.Epoch
	SafeHead       rollup.BlockInfo
	SafeEpoch      rollup.Epoch
	FinalizedHead  rollup.BlockInfo
	FinalizedEpoch rollup.Epoch
	SyncStatus     SyncStatus
	Building       *BuildingState
}

func refOf(head rollup.BlockInfo, epoch rollup.Epoch) rollup.L2BlockRef {
	return rollup.L2BlockRef{BlockInfo: head, L1Origin: epoch, SequenceNumber: epoch.SequenceNumber}
}

func (s State) UnsafeRef() rollup.L2BlockRef    { return refOf(s.UnsafeHead, s.UnsafeEpoch) }
func (s State) SafeRef() rollup.L2BlockRef      { return refOf(s.SafeHead, s.SafeEpoch) }
func (s State) FinalizedRef() rollup.L2BlockRef { return refOf(s.FinalizedHead, s.FinalizedEpoch) }

func (s State) forkchoice() *enginetypes.ForkchoiceState {
	return &enginetypes.ForkchoiceState{
		HeadBlockHash:      s.UnsafeHead.Hash,
		SafeBlockHash:      s.SafeHead.Hash,
		FinalizedBlockHash: s.FinalizedHead.Hash,
	}
}

func (s State) withUnsafeHead(head rollup.BlockInfo, epoch rollup.Epoch) State {
	s.UnsafeHead = head
	s.UnsafeEpoch = epoch
	return s
}

// withSafeHead moves the safe head. The unsafe head follows when reorgUnsafe
// is set or when it would fall behind.
func (s State) withSafeHead(head rollup.BlockInfo, epoch rollup.Epoch, reorgUnsafe bool) State {
	s.SafeHead = head
	s.SafeEpoch = epoch
	if reorgUnsafe || head.Number > s.UnsafeHead.Number {
		s.UnsafeHead = head
		s.UnsafeEpoch = epoch
	}
	return s
}

func (s State) withFinalizedHead(head rollup.BlockInfo, epoch rollup.Epoch) State {
	s.FinalizedHead = head
	s.FinalizedEpoch = epoch
	return s
}

func (s State) withSyncStatus(status SyncStatus) State {
	s.SyncStatus = status
	return s
}

func (s State) withBuilding(b *BuildingState) State {
	s.Building = b
	return s
}

// reorged rewinds the unsafe and safe heads to the finalized head.
func (s State) reorged() State {
	s.UnsafeHead = s.FinalizedHead
	s.UnsafeEpoch = s.FinalizedEpoch
	s.SafeHead = s.FinalizedHead
	s.SafeEpoch = s.FinalizedEpoch
	s.Building = nil
	return s
}
