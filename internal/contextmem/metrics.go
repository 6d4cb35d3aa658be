package contextmem

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/meridianapps/contextmem"

// storeMetrics bundles the engine's counters. All instruments come from the
// global meter provider; with no SDK installed they are no-ops.
type storeMetrics struct {
	itemsCreated   metric.Int64Counter
	reinforcements metric.Int64Counter
	evictions      metric.Int64Counter
	prunes         metric.Int64Counter
	itemsAccessed  metric.Int64Counter
}

func newStoreMetrics() *storeMetrics {
	meter := otel.Meter(meterName)

	m := &storeMetrics{}
	m.itemsCreated, _ = meter.Int64Counter("contextmem.items.created",
		metric.WithDescription("Context items created"))
	m.reinforcements, _ = meter.Int64Counter("contextmem.items.reinforced",
		metric.WithDescription("Reinforcements applied to existing items"))
	m.evictions, _ = meter.Int64Counter("contextmem.items.evicted",
		metric.WithDescription("Items evicted to hold the capacity cap"))
	m.prunes, _ = meter.Int64Counter("contextmem.items.pruned",
		metric.WithDescription("Items removed by maintenance passes"))
	m.itemsAccessed, _ = meter.Int64Counter("contextmem.items.accessed",
		metric.WithDescription("Items returned by ranked retrieval"))
	return m
}

func (m *storeMetrics) addPruned(ctx context.Context, pass string, n int) {
	if m == nil || m.prunes == nil {
		return
	}
	m.prunes.Add(ctx, int64(n), metric.WithAttributes(attribute.String("pass", pass)))
}
