package scan

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/praetorian-inc/scanrt/pkg/scan"

// metrics are recorded per scan, feed and close call.
type metrics struct {
	calls      metric.Int64Counter
	bytes      metric.Int64Counter
	matches    metric.Int64Counter
	terminated metric.Int64Counter
	errors     metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(meterName)
	m := &metrics{}
	var err error
	if m.calls, err = meter.Int64Counter("scanrt.scan.calls",
		metric.WithDescription("Scan, feed and close calls"),
		metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	if m.bytes, err = meter.Int64Counter("scanrt.scan.bytes",
		metric.WithDescription("Bytes handed to the backend"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.matches, err = meter.Int64Counter("scanrt.scan.matches",
		metric.WithDescription("Matches delivered to handlers"),
		metric.WithUnit("{match}")); err != nil {
		return nil, err
	}
	if m.terminated, err = meter.Int64Counter("scanrt.scan.terminated",
		metric.WithDescription("Calls stopped by a handler"),
		metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	if m.errors, err = meter.Int64Counter("scanrt.scan.errors",
		metric.WithDescription("Calls that failed"),
		metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) record(op, mode, backendName string, bytes, matches int64, outcome Outcome, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("mode", mode),
		attribute.String("backend", backendName),
	)
	m.calls.Add(ctx, 1, attrs)
	m.bytes.Add(ctx, bytes, attrs)
	m.matches.Add(ctx, matches, attrs)
	if err != nil {
		m.errors.Add(ctx, 1, attrs)
	} else if outcome == Terminated {
		m.terminated.Add(ctx, 1, attrs)
	}
}
