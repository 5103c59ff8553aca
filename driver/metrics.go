package driver

import (
	"context"

	"github.com/0xPolygon/cdk-opnode/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/0xPolygon/cdk-opnode/driver"

type metrics struct {
	reorgs         metric.Int64Counter
	attributes     metric.Int64Counter
	unsafePayloads metric.Int64Counter
	sequenced      metric.Int64Counter
}

func newMetrics(logger *log.Logger, status func() SyncStatus) *metrics {
	meter := otel.Meter(meterName)
	m := &metrics{
		reorgs:         counter(logger, meter, "driver_reorgs"),
		attributes:     counter(logger, meter, "driver_attributes_applied"),
		unsafePayloads: counter(logger, meter, "driver_unsafe_payloads_applied"),
		sequenced:      counter(logger, meter, "driver_blocks_sequenced"),
	}

	_, err := meter.Int64ObservableGauge("driver_head_number",
		metric.WithDescription("block number of each head tracked by the driver"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			s := status()
			observe := func(head string, number uint64) {
				o.Observe(int64(number), metric.WithAttributes(attribute.String("head", head))) //nolint:gosec
			}
			observe("l1_current", s.CurrentL1.Number)
			observe("l1_head", s.HeadL1.Number)
			observe("l1_finalized", s.FinalizedL1.Number)
			observe("l2_unsafe", s.UnsafeL2.Number)
			observe("l2_safe", s.SafeL2.Number)
			observe("l2_finalized", s.FinalizedL2.Number)
			return nil
		}))
	if err != nil {
		logger.Warnf("failed to create driver_head_number gauge: %s", err)
	}
	return m
}

func counter(logger *log.Logger, meter metric.Meter, name string) metric.Int64Counter {
	c, err := meter.Int64Counter(name)
	if err != nil {
		logger.Warnf("failed to create %s counter: %s", name, err)
		return noop.Int64Counter{}
	}
	return c
}
