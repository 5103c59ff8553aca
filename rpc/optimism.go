package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	opnode "github.com/0xPolygon/cdk-opnode"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/0xPolygon/cdk-opnode/rpc/types"
	"github.com/0xPolygon/cdk-opnode/safedb"
	"github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	// OPTIMISM is the namespace of the rollup node service
	OPTIMISM  = "optimism"
	meterName = "github.com/0xPolygon/cdk-opnode/rpc"
)

var ErrSafeDBDisabled = errors.New("safe head database is disabled")

// OptimismEndpoints contains implementations for the "optimism" RPC endpoints
type OptimismEndpoints struct {
	logger      *log.Logger
	meter       metric.Meter
	readTimeout time.Duration
	rollupCfg   *rollup.Config
	status      SyncStatuser
	safeHeads   SafeHeadReader
}

// NewOptimismEndpoints returns OptimismEndpoints. safeHeads is nil when the
// safe head database is disabled.
func NewOptimismEndpoints(
	logger *log.Logger,
	readTimeout time.Duration,
	rollupCfg *rollup.Config,
	status SyncStatuser,
	safeHeads SafeHeadReader,
) *OptimismEndpoints {
	return &OptimismEndpoints{
		logger:      logger,
		meter:       otel.Meter(meterName),
		readTimeout: readTimeout,
		rollupCfg:   rollupCfg,
		status:      status,
		safeHeads:   safeHeads,
	}
}

func (o *OptimismEndpoints) count(ctx context.Context, name string) {
	c, merr := o.meter.Int64Counter(name)
	if merr != nil {
		o.logger.Warnf("failed to create %s counter: %s", name, merr)
		return
	}
	c.Add(ctx, 1)
}

// SyncStatus returns the heads of both chains. The result is null while the
// execution engine syncs from its peers.
func (o *OptimismEndpoints) SyncStatus() (interface{}, rpc.Error) {
	o.count(context.Background(), "sync_status")

	status, ok := o.status.SyncStatus()
	if !ok {
		return nil, nil
	}
	return status, nil
}

// RollupConfig returns the chain configuration the node derives with.
func (o *OptimismEndpoints) RollupConfig() (interface{}, rpc.Error) {
	o.count(context.Background(), "rollup_config")
	return o.rollupCfg, nil
}

// Version returns the version of the node.
func (o *OptimismEndpoints) Version() (interface{}, rpc.Error) {
	o.count(context.Background(), "version")
	v := opnode.GetVersion()
	return types.VersionResponse{Version: v.Version, GitRev: v.GitRev, GoVersion: v.GoVersion}, nil
}

// SafeHeadAtL1Block returns the safe head recorded at or before the given L1 block.
func (o *OptimismEndpoints) SafeHeadAtL1Block(l1BlockNum hexutil.Uint64) (interface{}, rpc.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), o.readTimeout)
	defer cancel()
	o.count(ctx, "safe_head_at_l1_block")

	if o.safeHeads == nil {
		return nil, rpc.NewRPCError(rpc.DefaultErrorCode, ErrSafeDBDisabled.Error())
	}
	record, err := o.safeHeads.SafeHeadAtL1(ctx, uint64(l1BlockNum))
	if err != nil {
		if errors.Is(err, safedb.ErrNotFound) {
			return nil, rpc.NewRPCError(rpc.DefaultErrorCode,
				fmt.Sprintf("no safe head recorded at or before L1 block %d", uint64(l1BlockNum)))
		}
		return nil, rpc.NewRPCError(rpc.DefaultErrorCode,
			fmt.Sprintf("failed to get safe head at L1 block %d, error: %s", uint64(l1BlockNum), err))
	}
	return types.SafeHeadResponse{L1Block: record.L1(), SafeHead: record.L2()}, nil
}
