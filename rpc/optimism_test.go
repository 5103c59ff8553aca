package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/0xPolygon/cdk-opnode/driver"
	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/0xPolygon/cdk-opnode/rpc/mocks"
	"github.com/0xPolygon/cdk-opnode/rpc/types"
	"github.com/0xPolygon/cdk-opnode/safedb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type optimismWithMocks struct {
	*OptimismEndpoints
	status    *mocks.SyncStatuserMock
	safeHeads *mocks.SafeHeadReaderMock
}

func newOptimismWithMocks(t *testing.T) optimismWithMocks {
	t.Helper()
	o := optimismWithMocks{
		status:    mocks.NewSyncStatuserMock(t),
		safeHeads: mocks.NewSafeHeadReaderMock(t),
	}
	logger := log.WithFields("module", "optimism-rpc")
	cfg := &rollup.Config{BlockTime: 2, L2ChainID: big.NewInt(901)}
	o.OptimismEndpoints = NewOptimismEndpoints(logger, time.Second, cfg, o.status, o.safeHeads)
	return o
}

func TestSyncStatus(t *testing.T) {
	o := newOptimismWithMocks(t)

	o.status.On("SyncStatus").Return(driver.SyncStatus{}, false).Once()
	res, rerr := o.SyncStatus()
	require.Nil(t, rerr)
	require.Nil(t, res)

	status := driver.SyncStatus{UnsafeL2: rollup.L2BlockRef{BlockInfo: rollup.BlockInfo{Number: 12}}}
	o.status.On("SyncStatus").Return(status, true).Once()
	res, rerr = o.SyncStatus()
	require.Nil(t, rerr)
	require.Equal(t, status, res)
}

func TestRollupConfigAndVersion(t *testing.T) {
	o := newOptimismWithMocks(t)

	res, rerr := o.RollupConfig()
	require.Nil(t, rerr)
	require.Equal(t, uint64(2), res.(*rollup.Config).BlockTime)

	res, rerr = o.Version()
	require.Nil(t, rerr)
	require.NotEmpty(t, res.(types.VersionResponse).Version)
}

func TestSafeHeadAtL1Block(t *testing.T) {
	record := safedb.Record{
		L1BlockNum:  100,
		L1BlockHash: common.HexToHash("0x01"),
		L2BlockNum:  40,
		L2BlockHash: common.HexToHash("0x02"),
	}
	tests := []struct {
		name        string
		record      safedb.Record
		err         error
		expected    interface{}
		expectedErr string
	}{
		{
			name:   "found",
			record: record,
			expected: types.SafeHeadResponse{
				L1Block:  rollup.BlockID{Number: 100, Hash: common.HexToHash("0x01")},
				SafeHead: rollup.BlockID{Number: 40, Hash: common.HexToHash("0x02")},
			},
		},
		{
			name:        "not found",
			err:         fmt.Errorf("no record: %w", safedb.ErrNotFound),
			expectedErr: "no safe head recorded at or before L1 block 105",
		},
		{
			name:        "db failure",
			err:         errors.New("disk I/O error"),
			expectedErr: "failed to get safe head at L1 block 105, error: disk I/O error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOptimismWithMocks(t)
			o.safeHeads.On("SafeHeadAtL1", mock.Anything, uint64(105)).Return(tt.record, tt.err).Once()

			res, rerr := o.SafeHeadAtL1Block(hexutil.Uint64(105))
			if tt.expectedErr != "" {
				require.NotNil(t, rerr)
				require.Equal(t, tt.expectedErr, rerr.Error())
				return
			}
			require.Nil(t, rerr)
			require.Equal(t, tt.expected, res)
		})
	}
}

func TestSafeHeadAtL1BlockDisabled(t *testing.T) {
	logger := log.WithFields("module", "optimism-rpc")
	o := NewOptimismEndpoints(logger, time.Second, &rollup.Config{}, mocks.NewSyncStatuserMock(t), nil)

	_, rerr := o.SafeHeadAtL1Block(1)
	require.NotNil(t, rerr)
	require.Equal(t, ErrSafeDBDisabled.Error(), rerr.Error())
}

func TestPostUnsafePayload(t *testing.T) {
	publisher := mocks.NewPayloadPublisherMock(t)
	a := NewAdminEndpoints(log.WithFields("module", "admin-rpc"), publisher)

	_, rerr := a.PostUnsafePayload(nil)
	require.NotNil(t, rerr)

	envelope := &enginetypes.ExecutionPayloadEnvelope{
		ExecutionPayload: &enginetypes.ExecutionPayload{BlockNumber: 7, Transactions: []hexutil.Bytes{{0x7e}}},
	}
	publisher.On("Publish", envelope).Return(nil).Once()
	_, rerr = a.PostUnsafePayload(envelope)
	require.Nil(t, rerr)

	publisher.On("Publish", envelope).Return(errors.New("queue full")).Once()
	_, rerr = a.PostUnsafePayload(envelope)
	require.NotNil(t, rerr)
	require.Contains(t, rerr.Error(), "queue full")
}

func TestSafeHeadReaderContext(t *testing.T) {
	o := newOptimismWithMocks(t)
	o.safeHeads.On("SafeHeadAtL1", mock.Anything, uint64(3)).
		Run(func(args mock.Arguments) {
			ctx, ok := args.Get(0).(context.Context)
			require.True(t, ok)
			_, hasDeadline := ctx.Deadline()
			require.True(t, hasDeadline)
		}).
		Return(safedb.Record{}, nil).Once()

	_, rerr := o.SafeHeadAtL1Block(3)
	require.Nil(t, rerr)
}
