package otelmetrics

import (
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// NewProvider builds a MeterProvider that periodically exports the
// process's metrics as JSON to w. The caller must route w away from a
// stdio JSON-RPC transport's stdout (spec.md §6: stdio framing owns
// stdout), typically to stderr or a log file instead.
func NewProvider(w io.Writer, interval time.Duration) (*metric.MeterProvider, error) {
	if interval <= 0 {
		interval = time.Minute
	}
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, err
	}
	reader := metric.NewPeriodicReader(exporter, metric.WithInterval(interval))
	return metric.NewMeterProvider(metric.WithReader(reader)), nil
}
