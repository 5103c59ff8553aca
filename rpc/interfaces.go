package rpc

import (
	"context"

	"github.com/0xPolygon/cdk-opnode/driver"
	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/safedb"
)

type SyncStatuser interface {
	SyncStatus() (driver.SyncStatus, bool)
}

type SafeHeadReader interface {
	SafeHeadAtL1(ctx context.Context, l1BlockNum uint64) (safedb.Record, error)
}

type PayloadPublisher interface {
	Publish(envelope *enginetypes.ExecutionPayloadEnvelope) error
}
