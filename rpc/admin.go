package rpc

import (
	"context"
	"fmt"

	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-rpc/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ADMIN is the namespace of the admin service
const ADMIN = "admin"

// AdminEndpoints contains implementations for the "admin" RPC endpoints
type AdminEndpoints struct {
	logger    *log.Logger
	meter     metric.Meter
	publisher PayloadPublisher
}

func NewAdminEndpoints(logger *log.Logger, publisher PayloadPublisher) *AdminEndpoints {
	return &AdminEndpoints{
		logger:    logger,
		meter:     otel.Meter(meterName),
		publisher: publisher,
	}
}

// PostUnsafePayload hands a block received out of band to the driver, as if
// it came from the network.
func (a *AdminEndpoints) PostUnsafePayload(envelope *enginetypes.ExecutionPayloadEnvelope) (interface{}, rpc.Error) {
	c, merr := a.meter.Int64Counter("post_unsafe_payload")
	if merr != nil {
		a.logger.Warnf("failed to create post_unsafe_payload counter: %s", merr)
	} else {
		c.Add(context.Background(), 1)
	}

	if envelope == nil || envelope.ExecutionPayload == nil {
		return nil, rpc.NewRPCError(rpc.DefaultErrorCode, "missing execution payload")
	}
	if err := a.publisher.Publish(envelope); err != nil {
		return nil, rpc.NewRPCError(rpc.DefaultErrorCode,
			fmt.Sprintf("failed to post unsafe payload %s, error: %s", envelope.ExecutionPayload, err))
	}
	a.logger.Infow("received unsafe payload", "payload", envelope.ExecutionPayload.String())
	return nil, nil
}
