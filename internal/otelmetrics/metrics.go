// Package otelmetrics instruments the core's own operational counters
// through the OpenTelemetry Metrics API, following the teacher pack's
// observability package shape (MrWong99-glyphoxa's internal/observe/metrics.go:
// a struct of named instruments built from a metric.MeterProvider, plus
// Record* convenience methods). The GET /metrics surface (an excluded
// collaborator per spec.md §1) reads these counters through a snapshot
// function rather than a Prometheus scrape endpoint.
package otelmetrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/kgmemory/kgmemory"

// Metrics holds every instrument the core records against, per spec.md §2's
// component list: one counter per tool call outcome, one per breaker trip,
// and one per cache tier hit/miss.
type Metrics struct {
	ToolCalls      metric.Int64Counter // attrs: tool, status
	BreakerTrips   metric.Int64Counter // attrs: breaker
	CacheAccesses  metric.Int64Counter // attrs: tier, outcome (hit|miss)
	IngestEntities metric.Int64Counter // attrs: source
	SearchLatency  metric.Float64Histogram
}

// NewMetrics builds every instrument from mp, mirroring observe.NewMetrics's
// construct-and-check-each-error shape.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.ToolCalls, err = m.Int64Counter("kgmemory.tool.calls",
		metric.WithDescription("Total tools/call invocations by tool name and outcome."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTrips, err = m.Int64Counter("kgmemory.breaker.trips",
		metric.WithDescription("Total circuit breaker trips to Open, by breaker name."),
	); err != nil {
		return nil, err
	}
	if met.CacheAccesses, err = m.Int64Counter("kgmemory.cache.accesses",
		metric.WithDescription("Total memory-optimizer cache accesses by tier and outcome."),
	); err != nil {
		return nil, err
	}
	if met.IngestEntities, err = m.Int64Counter("kgmemory.ingest.entities",
		metric.WithDescription("Total entities extracted and persisted during add_memory, by source kind."),
	); err != nil {
		return nil, err
	}
	if met.SearchLatency, err = m.Float64Histogram("kgmemory.search.duration",
		metric.WithDescription("Latency of search_memory operations."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordToolCall increments the tool-call counter with its outcome.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	if m == nil {
		return
	}
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
}

// RecordBreakerTrip increments the breaker-trip counter for name.
func (m *Metrics) RecordBreakerTrip(ctx context.Context, name string) {
	if m == nil {
		return
	}
	m.BreakerTrips.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", name)))
}

// RecordCacheAccess increments the cache-access counter for tier/outcome.
func (m *Metrics) RecordCacheAccess(ctx context.Context, tier string, hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheAccesses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("outcome", outcome),
	))
}

// RecordIngestEntities records the number of entities an add_memory call
// persisted, tagged by source kind.
func (m *Metrics) RecordIngestEntities(ctx context.Context, source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.IngestEntities.Add(ctx, int64(n), metric.WithAttributes(attribute.String("source", source)))
}

// RecordSearchLatency records how long a search_memory call took, tagged by
// operation.
func (m *Metrics) RecordSearchLatency(ctx context.Context, operation string, seconds float64) {
	if m == nil {
		return
	}
	m.SearchLatency.Record(ctx, seconds, metric.WithAttributes(attribute.String("operation", operation)))
}
