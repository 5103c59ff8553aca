package driver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/0xPolygon/cdk-opnode/derive"
	"github.com/0xPolygon/cdk-opnode/driver/mocks"
	"github.com/0xPolygon/cdk-opnode/engine"
	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/etherman"
	"github.com/0xPolygon/cdk-opnode/l1"
	"github.com/0xPolygon/cdk-opnode/p2p"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testDriver struct {
	*Driver
	engine   *mocks.EngineDriverMock
	pipeline *mocks.PipelineMock
	watcher  *mocks.ChainWatcherMock
	l2       *mocks.L2FetcherMock
	feed     *p2p.Feed
	state    engine.State
	syncing  bool

	// answers of SystemConfigByNumber
	sysCfg    rollup.SystemConfig
	sysCfgErr error
}

func testRollupConfig() *rollup.Config {
	return &rollup.Config{
		Genesis: rollup.Genesis{
			L1: rollup.BlockID{Hash: common.Hash{0x01}, Number: 10},
			L2: rollup.BlockID{Hash: common.Hash{0x02}, Number: 0},
		},
		BlockTime:      2,
		SeqWindowSize:  100,
		ChannelTimeout: 300,
		L1ChainID:      big.NewInt(900),
		L2ChainID:      big.NewInt(901),
	}
}

func newTestDriver(t *testing.T, cfg Config) *testDriver {
	t.Helper()
	rollupCfg := testRollupConfig()
	td := &testDriver{
		engine:   mocks.NewEngineDriverMock(t),
		pipeline: mocks.NewPipelineMock(t),
		watcher:  mocks.NewChainWatcherMock(t),
		l2:       mocks.NewL2FetcherMock(t),
		feed:     p2p.NewFeed(p2p.Config{}, rollupCfg),
	}
	td.engine.On("State").Return(func() engine.State { return td.state }).Maybe()
	td.engine.On("IsEngineSyncing").Return(func() bool { return td.syncing }).Maybe()
	td.l2.On("SystemConfigByNumber", mock.Anything, mock.Anything).
		Return(func(context.Context, uint64) (rollup.SystemConfig, error) { return td.sysCfg, td.sysCfgErr }).Maybe()
	td.sysCfg = rollupCfg.Genesis.SystemConfig
	td.Driver = New(cfg, rollupCfg, td.engine, td.pipeline, td.watcher, nil, td.feed, td.l2, nil)
	return td
}

func block(n uint64, parent common.Hash) rollup.BlockInfo {
	return rollup.BlockInfo{Hash: common.Hash{0xb0, byte(n)}, Number: n, ParentHash: parent, Timestamp: 1000 + 2*n}
}

func envelope(n uint64, parent common.Hash) *enginetypes.ExecutionPayloadEnvelope {
	return &enginetypes.ExecutionPayloadEnvelope{
		ExecutionPayload: &enginetypes.ExecutionPayload{
			ParentHash:  parent,
			BlockNumber: hexutil.Uint64(n),
			BlockHash:   common.Hash{0xe0, byte(n >> 8), byte(n)},
			Timestamp:   hexutil.Uint64(1000 + 2*n),
		},
	}
}

func TestUpdateFinalized(t *testing.T) {
	unfinalized := func(seqNumbers ...uint64) []UnfinalizedBlock {
		blocks := make([]UnfinalizedBlock, 0, len(seqNumbers))
		for i, seq := range seqNumbers {
			n := uint64(i + 1)
			blocks = append(blocks, UnfinalizedBlock{
				Head:             block(n, common.Hash{0xb0, byte(n - 1)}),
				Epoch:            rollup.Epoch{Number: 10 * n, Hash: common.Hash{0xa0, byte(n)}},
				L1InclusionBlock: 10 * n,
				SeqNumber:        seq,
			})
		}
		return blocks
	}

	tests := []struct {
		name        string
		blocks      []UnfinalizedBlock
		finalizedL1 uint64
		promoted    int
		remaining   int
	}{
		{name: "newest epoch start at or before finalized L1", blocks: unfinalized(0, 0, 0), finalizedL1: 25,
			promoted: 1, remaining: 1},
		{name: "non epoch start is dropped but not promoted", blocks: unfinalized(0, 1, 0), finalizedL1: 25,
			promoted: 0, remaining: 1},
		{name: "nothing finalized", blocks: unfinalized(0, 0, 0), finalizedL1: 5, promoted: -1, remaining: 3},
		{name: "everything finalized", blocks: unfinalized(0, 0, 0), finalizedL1: 30, promoted: 2, remaining: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := newTestDriver(t, Config{})
			td.unfinalized = tt.blocks
			td.finalizedL1 = tt.finalizedL1
			if tt.promoted >= 0 {
				b := tt.blocks[tt.promoted]
				td.engine.On("UpdateFinalized", b.Head, b.Epoch).Once()
			}
			td.updateFinalized()
			require.Len(t, td.UnfinalizedBlocks(), tt.remaining)
			for _, b := range td.UnfinalizedBlocks() {
				require.Greater(t, b.L1InclusionBlock, tt.finalizedL1)
			}
		})
	}
}

func TestUpdateFinalizedKeepsNewerFinalizedHead(t *testing.T) {
	td := newTestDriver(t, Config{})
	td.state.FinalizedHead = block(5, common.Hash{})
	td.unfinalized = []UnfinalizedBlock{{Head: block(3, common.Hash{}), L1InclusionBlock: 10}}
	td.finalizedL1 = 20

	td.updateFinalized()
	require.Empty(t, td.UnfinalizedBlocks())
	td.engine.AssertNotCalled(t, "UpdateFinalized", mock.Anything, mock.Anything)
}

func TestAdvanceSafeHead(t *testing.T) {
	ctx := context.Background()
	td := newTestDriver(t, Config{})
	genesis := block(0, common.Hash{})
	td.state.SafeHead = genesis
	b1 := block(1, genesis.Hash)
	b2 := block(2, b1.Hash)

	attrs1 := &enginetypes.PayloadAttributes{Timestamp: hexutil.Uint64(b1.Timestamp), L1InclusionBlock: 20,
		SeqNumber: 0}
	attrs2 := &enginetypes.PayloadAttributes{Timestamp: hexutil.Uint64(b2.Timestamp), L1InclusionBlock: 20,
		SeqNumber: 1}
	epoch := rollup.Epoch{Number: 11, Hash: common.Hash{0xa1}}

	td.pipeline.On("UpdateSafeHead", mock.Anything, mock.Anything)
	td.pipeline.On("Next", ctx).Return(attrs1, nil).Once()
	td.pipeline.On("Next", ctx).Return(attrs2, nil).Once()
	td.pipeline.On("Next", ctx).Return(nil, nil).Once()
	td.engine.On("HandleAttributes", ctx, attrs1).Run(func(mock.Arguments) {
		td.state.SafeHead, td.state.SafeEpoch = b1, epoch
	}).Return(nil).Once()
	td.engine.On("HandleAttributes", ctx, attrs2).Run(func(mock.Arguments) {
		td.state.SafeHead, td.state.SafeEpoch = b2, epoch
	}).Return(nil).Once()

	progressed, err := td.advanceSafeHead(ctx)
	require.NoError(t, err)
	require.True(t, progressed)

	blocks := td.UnfinalizedBlocks()
	require.Len(t, blocks, 2)
	require.Equal(t, b1, blocks[0].Head)
	require.Equal(t, uint64(20), blocks[0].L1InclusionBlock)
	require.Equal(t, uint64(0), blocks[0].Epoch.SequenceNumber)
	require.Equal(t, b2, blocks[1].Head)
	require.Equal(t, uint64(1), blocks[1].SeqNumber)
	require.Equal(t, uint64(1), blocks[1].Epoch.SequenceNumber)

	expected := epoch
	expected.SequenceNumber = 1
	td.pipeline.AssertCalled(t, "UpdateSafeHead", b2, expected)
}

func TestAdvanceSafeHeadSkippedWhileSyncing(t *testing.T) {
	td := newTestDriver(t, Config{})
	td.syncing = true

	progressed, err := td.advanceSafeHead(context.Background())
	require.NoError(t, err)
	require.False(t, progressed)
	td.pipeline.AssertNotCalled(t, "Next", mock.Anything)
}

func TestParentHashBreakResets(t *testing.T) {
	ctx := context.Background()
	td := newTestDriver(t, Config{})
	finalized := block(0, common.Hash{})
	td.state.FinalizedHead = finalized
	td.state.FinalizedEpoch = rollup.Epoch{Number: 500, Hash: common.Hash{0xa5}}
	prev := block(1, finalized.Hash)
	td.unfinalized = []UnfinalizedBlock{{Head: prev, L1InclusionBlock: 501}}

	orphan := block(2, common.Hash{0xde, 0xad})
	attrs := &enginetypes.PayloadAttributes{Timestamp: hexutil.Uint64(orphan.Timestamp), L1InclusionBlock: 502}
	td.pipeline.On("UpdateSafeHead", mock.Anything, mock.Anything)
	td.pipeline.On("Next", ctx).Return(attrs, nil).Once()
	td.engine.On("HandleAttributes", ctx, attrs).Run(func(mock.Arguments) {
		td.state.SafeHead = orphan
	}).Return(nil).Once()

	_, err := td.advanceSafeHead(ctx)
	require.ErrorIs(t, err, ErrUnfinalizedChainBroken)
	require.ErrorIs(t, err, derive.ErrReset)

	td.engine.On("Reorg").Once()
	td.pipeline.On("Purge", finalized, td.state.FinalizedEpoch).Once()
	td.watcher.On("Start", ctx, uint64(200), td.sysCfg).Once()
	require.NoError(t, td.handleError(ctx, "advance safe head", err))
	require.Empty(t, td.UnfinalizedBlocks())
}

func TestHandleError(t *testing.T) {
	ctx := context.Background()
	td := newTestDriver(t, Config{})

	require.NoError(t, td.handleError(ctx, "step", nil))
	require.NoError(t, td.handleError(ctx, "step", derive.NewTemporaryError(errors.New("later"))))

	critical := td.handleError(ctx, "step", derive.NewCriticalError(errors.New("boom")))
	require.ErrorIs(t, critical, derive.ErrCritical)
	unclassified := td.handleError(ctx, "step", errors.New("unknown"))
	require.EqualError(t, unclassified, "step: unknown")

	td.engine.On("Reorg").Once()
	td.pipeline.On("Purge", mock.Anything, mock.Anything).Once()
	td.watcher.On("Start", ctx, uint64(0), td.sysCfg).Once()
	require.NoError(t, td.handleError(ctx, "step", derive.NewResetError(errors.New("reorg"))))
}

func TestHandleL1Update(t *testing.T) {
	ctx := context.Background()
	td := newTestDriver(t, Config{})
	updates := make(chan l1.BlockUpdate, 3)
	td.watcher.On("Updates").Return(func() <-chan l1.BlockUpdate { return updates })

	require.False(t, td.handleL1Update(ctx))

	info := &derive.L1Info{
		Block:               rollup.L1BlockRef{BlockInfo: block(7, common.Hash{})},
		BatcherTransactions: [][]byte{{0x00, 0x01}},
		Finalized:           true,
	}
	td.pipeline.On("UpdateL1Info", info).Once()
	td.pipeline.On("PushBatcherTransactions", info.BatcherTransactions, uint64(7)).Once()
	updates <- l1.BlockUpdate{Type: l1.NewBlock, Info: info}
	updates <- l1.BlockUpdate{Type: l1.FinalityUpdate, Finalized: 6}

	require.True(t, td.handleL1Update(ctx))
	require.Equal(t, info.Block, td.currentL1)
	require.Equal(t, info.Block, td.currentL1Finalized)
	require.True(t, td.handleL1Update(ctx))
	require.Equal(t, uint64(6), td.finalizedL1)

	td.engine.On("Reorg").Once()
	td.pipeline.On("Purge", mock.Anything, mock.Anything).Once()
	td.watcher.On("Start", ctx, uint64(0), td.sysCfg).Once()
	updates <- l1.BlockUpdate{Type: l1.Reorg}
	require.True(t, td.handleL1Update(ctx))
	require.Equal(t, rollup.L1BlockRef{}, td.currentL1)
}

func TestUnsafeQueue(t *testing.T) {
	ctx := context.Background()
	td := newTestDriver(t, Config{UnsafeLookahead: 8})
	head := block(10, common.Hash{})
	td.state.UnsafeHead = head

	child := envelope(11, head.Hash)
	grandChild := envelope(12, child.ExecutionPayload.BlockHash)
	td.queueUnsafe(envelope(9, common.Hash{}))
	td.queueUnsafe(envelope(10, common.Hash{}))
	td.queueUnsafe(envelope(18, common.Hash{}))
	td.queueUnsafe(grandChild)
	td.queueUnsafe(child)
	td.queueUnsafe(child)
	require.Len(t, td.futureUnsafe, 2)
	require.True(t, td.acceptUnsafe(17, false))
	require.False(t, td.acceptUnsafe(18, false))
	require.True(t, td.acceptUnsafe(18, true))

	td.engine.On("HandleUnsafePayload", ctx, child).Run(func(mock.Arguments) {
		td.state.UnsafeHead = child.ExecutionPayload.BlockInfo()
	}).Return(nil).Once()
	progressed, err := td.advanceUnsafeHead(ctx)
	require.NoError(t, err)
	require.True(t, progressed)
	require.Equal(t, []*enginetypes.ExecutionPayloadEnvelope{grandChild}, td.futureUnsafe)

	// a gap leaves the queue untouched
	td.state.UnsafeHead = block(11, common.Hash{})
	progressed, err = td.advanceUnsafeHead(ctx)
	require.NoError(t, err)
	require.False(t, progressed)
	require.Len(t, td.futureUnsafe, 1)

	// payloads behind the unsafe head are pruned
	td.state.UnsafeHead = block(12, common.Hash{})
	_, err = td.advanceUnsafeHead(ctx)
	require.NoError(t, err)
	require.Empty(t, td.futureUnsafe)
}

func TestUnsafePayloadFromNetwork(t *testing.T) {
	ctx := context.Background()
	td := newTestDriver(t, Config{})
	head := block(10, common.Hash{})
	td.state.UnsafeHead = head

	child := envelope(11, head.Hash)
	child.ExecutionPayload.Transactions = []hexutil.Bytes{{0x7e}}
	td.feed.Start()
	require.NoError(t, td.feed.Publish(child))

	td.engine.On("HandleUnsafePayload", ctx, child).Return(derive.NewTemporaryError(errors.New("busy"))).Once()
	progressed, err := td.advanceUnsafeHead(ctx)
	require.True(t, progressed)
	require.ErrorIs(t, err, derive.ErrTemporary)
	require.Empty(t, td.futureUnsafe)
}

func TestELSync(t *testing.T) {
	ctx := context.Background()
	td := newTestDriver(t, Config{ELSync: true})
	td.syncing = true
	genesis := block(0, common.Hash{})
	td.state.UnsafeHead = genesis
	td.state.FinalizedHead = genesis

	// the watcher stays off until the engine synced
	td.restartWatcher(ctx)

	first := envelope(40, common.Hash{0x39})
	second := envelope(41, first.ExecutionPayload.BlockHash)
	td.queueUnsafe(first)
	td.queueUnsafe(second)

	td.engine.On("HandleUnsafePayload", ctx, first).
		Return(&engine.ForkchoiceUpdateError{Status: enginetypes.PayloadStatusV1{
			Status: enginetypes.ExecutionInvalid}}).Once()
	progressed, err := td.advanceUnsafeHead(ctx)
	require.NoError(t, err)
	require.True(t, progressed)
	require.False(t, td.elSyncDone)

	synced := second.ExecutionPayload.BlockInfo()
	finalizedRef := rollup.L2BlockRef{
		BlockInfo:      synced,
		L1Origin:       rollup.Epoch{Number: 420, Hash: common.Hash{0xa4}, Timestamp: 5000},
		SequenceNumber: 3,
	}
	td.engine.On("HandleUnsafePayload", ctx, second).Run(func(mock.Arguments) {
		td.syncing = false
		td.state.UnsafeHead, td.state.SafeHead, td.state.FinalizedHead = synced, synced, synced
	}).Return(nil).Once()
	td.l2.On("L2BlockRefByNumber", ctx, uint64(41)).Return(finalizedRef, nil).Once()
	expectedEpoch := finalizedRef.L1Origin
	expectedEpoch.SequenceNumber = 3
	td.engine.On("UpdateFinalized", synced, expectedEpoch).Run(func(mock.Arguments) {
		td.state.FinalizedEpoch = expectedEpoch
	}).Once()
	td.engine.On("Reorg").Once()
	td.pipeline.On("Purge", synced, expectedEpoch).Once()
	td.watcher.On("Start", ctx, uint64(120), td.sysCfg).Once()

	progressed, err = td.advanceUnsafeHead(ctx)
	require.NoError(t, err)
	require.True(t, progressed)
	require.True(t, td.elSyncDone)
}

func TestELSyncRetriesFinalizedLookup(t *testing.T) {
	ctx := context.Background()
	td := newTestDriver(t, Config{ELSync: true})
	td.syncing = true
	payload := envelope(5, common.Hash{})
	td.queueUnsafe(payload)

	td.engine.On("HandleUnsafePayload", ctx, payload).Run(func(mock.Arguments) {
		td.syncing = false
	}).Return(nil).Once()
	td.l2.On("L2BlockRefByLabel", ctx, etherman.FinalizedBlock).
		Return(rollup.L2BlockRef{}, fmt.Errorf("dial: %w", context.DeadlineExceeded)).Once()

	_, err := td.advanceUnsafeHead(ctx)
	require.ErrorIs(t, err, derive.ErrTemporary)
	require.False(t, td.elSyncDone)
}

func TestTryStartNetwork(t *testing.T) {
	td := newTestDriver(t, Config{})
	td.tryStartNetwork()
	require.False(t, td.feed.Started())

	td.unfinalized = []UnfinalizedBlock{{Head: block(1, common.Hash{})}}
	td.tryStartNetwork()
	require.True(t, td.feed.Started())

	elSync := newTestDriver(t, Config{ELSync: true})
	elSync.tryStartNetwork()
	require.True(t, elSync.feed.Started())
}

func TestRunSequencer(t *testing.T) {
	ctx := context.Background()
	td := newTestDriver(t, Config{})
	seq := mocks.NewSequencerMock(t)
	td.sequencer = seq

	// not before the network started
	require.NoError(t, td.runSequencer(ctx))

	td.feed.Start()
	seq.On("RunNextSequencerAction", ctx).Return(envelope(1, common.Hash{}), nil).Once()
	require.NoError(t, td.runSequencer(ctx))

	seq.On("RunNextSequencerAction", ctx).Return(nil, derive.NewResetError(errors.New("origin reorged"))).Once()
	require.ErrorIs(t, td.runSequencer(ctx), derive.ErrReset)
}

func TestSyncStatus(t *testing.T) {
	td := newTestDriver(t, Config{})
	td.syncing = true
	td.watcher.On("Status").Return(l1.Status{
		Head:      rollup.L1BlockRef{BlockInfo: block(30, common.Hash{})},
		Safe:      rollup.L1BlockRef{BlockInfo: block(25, common.Hash{})},
		Finalized: rollup.L1BlockRef{BlockInfo: block(20, common.Hash{})},
	})
	target := envelope(50, common.Hash{})
	td.futureUnsafe = []*enginetypes.ExecutionPayloadEnvelope{target}

	td.updateStatus()
	_, ok := td.SyncStatus()
	require.False(t, ok)

	td.syncing = false
	td.state.UnsafeHead = block(9, common.Hash{})
	td.state.SafeHead = block(8, common.Hash{})
	td.state.SafeEpoch = rollup.Epoch{Number: 21}
	td.currentL1 = rollup.L1BlockRef{BlockInfo: block(28, common.Hash{})}
	td.updateStatus()

	status, ok := td.SyncStatus()
	require.True(t, ok)
	require.Equal(t, uint64(28), status.CurrentL1.Number)
	require.Equal(t, uint64(30), status.HeadL1.Number)
	require.Equal(t, uint64(25), status.SafeL1.Number)
	require.Equal(t, uint64(20), status.FinalizedL1.Number)
	require.Equal(t, uint64(9), status.UnsafeL2.Number)
	require.Equal(t, uint64(8), status.SafeL2.Number)
	require.Equal(t, uint64(21), status.SafeL2.L1Origin.Number)
	require.Equal(t, uint64(50), status.UnsafeL2SyncTarget.Number)
}

func TestInitialHead(t *testing.T) {
	ctx := context.Background()
	cfg := testRollupConfig()

	l2 := mocks.NewL2FetcherMock(t)
	finalized := rollup.L2BlockRef{BlockInfo: block(77, common.Hash{})}
	l2.On("L2BlockRefByLabel", ctx, etherman.FinalizedBlock).Return(finalized, nil).Once()
	ref, err := InitialHead(ctx, l2, cfg)
	require.NoError(t, err)
	require.Equal(t, finalized, ref)

	l2 = mocks.NewL2FetcherMock(t)
	genesis := rollup.L2BlockRef{BlockInfo: rollup.BlockInfo{Hash: cfg.Genesis.L2.Hash}}
	l2.On("L2BlockRefByLabel", ctx, etherman.FinalizedBlock).
		Return(rollup.L2BlockRef{}, fmt.Errorf("%w: unknown", derive.ErrL2BlockNotFound)).Once()
	l2.On("L2BlockRefByNumber", ctx, uint64(0)).Return(genesis, nil).Once()
	ref, err = InitialHead(ctx, l2, cfg)
	require.NoError(t, err)
	require.Equal(t, genesis, ref)

	l2 = mocks.NewL2FetcherMock(t)
	l2.On("L2BlockRefByLabel", ctx, etherman.FinalizedBlock).Return(rollup.L2BlockRef{}, errors.New("refused")).Once()
	_, err = InitialHead(ctx, l2, cfg)
	require.ErrorContains(t, err, "refused")
}

func TestRunWaitsForEngine(t *testing.T) {
	td := newTestDriver(t, Config{})
	td.engine.On("EngineReady", mock.Anything).Return(false)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, td.Run(ctx))
	td.watcher.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunStopsOnWatcherError(t *testing.T) {
	td := newTestDriver(t, Config{})
	td.state.FinalizedEpoch = rollup.Epoch{Number: 1000}
	errs := make(chan error, 1)
	errs <- errors.New("failed too many times")

	td.engine.On("EngineReady", mock.Anything).Return(true).Once()
	td.watcher.On("Start", mock.Anything, uint64(700), td.sysCfg).Once()
	td.watcher.On("Errors").Return(func() <-chan error { return errs })
	td.watcher.On("Stop").Once()

	err := td.Run(context.Background())
	require.ErrorContains(t, err, "failed too many times")
}

func TestRestartWatcherUsesFinalizedSystemConfig(t *testing.T) {
	ctx := context.Background()
	td := newTestDriver(t, Config{})
	td.state.FinalizedHead = block(50, common.Hash{})
	td.state.FinalizedEpoch = rollup.Epoch{Number: 1000}
	td.currentL1 = rollup.L1BlockRef{BlockInfo: block(990, common.Hash{})}

	// the watcher stays stopped until the config is readable
	td.sysCfgErr = errors.New("connection refused")
	td.watcher.On("Stop").Once()
	td.restartWatcher(ctx)
	require.True(t, td.watcherPending)
	require.Equal(t, rollup.L1BlockRef{}, td.currentL1)
	require.False(t, td.handleL1Update(ctx))
	td.watcher.AssertNotCalled(t, "Updates")

	// the batcher was rotated before the finalized block
	td.sysCfgErr = nil
	td.sysCfg = rollup.SystemConfig{BatcherAddr: common.HexToAddress("0x152b"), GasLimit: 25_000_000}
	td.watcher.On("Start", ctx, uint64(700), td.sysCfg).Once()
	td.restartWatcher(ctx)
	require.False(t, td.watcherPending)
	td.l2.AssertCalled(t, "SystemConfigByNumber", ctx, uint64(50))
}
