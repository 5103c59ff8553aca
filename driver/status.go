package driver

import "github.com/0xPolygon/cdk-opnode/rollup"

// SyncStatus is the node's view of both chains, as served by optimism_syncStatus.
type SyncStatus struct {
	CurrentL1          rollup.L1BlockRef `json:"currentL1"`
	CurrentL1Finalized rollup.L1BlockRef `json:"currentL1Finalized"`
	HeadL1             rollup.L1BlockRef `json:"headL1"`
	SafeL1             rollup.L1BlockRef `json:"safeL1"`
	FinalizedL1        rollup.L1BlockRef `json:"finalizedL1"`
	UnsafeL2           rollup.L2BlockRef `json:"unsafeL2"`
	SafeL2             rollup.L2BlockRef `json:"safeL2"`
	FinalizedL2        rollup.L2BlockRef `json:"finalizedL2"`
	UnsafeL2SyncTarget rollup.L2BlockRef `json:"unsafeL2SyncTarget"`
}

// UnfinalizedBlock is a safe block waiting for its L1 inclusion block to finalize.
type UnfinalizedBlock struct {
	Head             rollup.BlockInfo
	Epoch            rollup.Epoch
	L1InclusionBlock uint64
	SeqNumber        uint64
}

// SyncStatus returns the last snapshot. It is not available while the engine
// syncs from its peers.
func (d *Driver) SyncStatus() (SyncStatus, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.engineSyncing {
		return SyncStatus{}, false
	}
	return d.status, true
}

// UnfinalizedBlocks returns a copy of the safe blocks not finalized yet.
func (d *Driver) UnfinalizedBlocks() []UnfinalizedBlock {
	return append([]UnfinalizedBlock(nil), d.unfinalized...)
}

func (d *Driver) updateStatus() {
	st := d.engine.State()
	l1Status := d.watcher.Status()
	s := SyncStatus{
		CurrentL1:          d.currentL1,
		CurrentL1Finalized: d.currentL1Finalized,
		HeadL1:             l1Status.Head,
		SafeL1:             l1Status.Safe,
		FinalizedL1:        l1Status.Finalized,
		UnsafeL2:           st.UnsafeRef(),
		SafeL2:             st.SafeRef(),
		FinalizedL2:        st.FinalizedRef(),
	}
	if len(d.futureUnsafe) > 0 {
		payload := d.futureUnsafe[0].ExecutionPayload
		ref, err := payload.ToL2BlockRef(d.rollupCfg)
		if err != nil {
			ref = rollup.L2BlockRef{BlockInfo: payload.BlockInfo()}
		}
		s.UnsafeL2SyncTarget = ref
	}

	d.mu.Lock()
	d.status = s
	d.engineSyncing = d.engine.IsEngineSyncing()
	d.mu.Unlock()
}
