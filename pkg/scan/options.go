package scan

import (
	"log/slog"

	"github.com/praetorian-inc/scanrt/pkg/backend"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// DefaultBufferSize is the chunk size ScanReader feeds to a stream.
const DefaultBufferSize = 4096

// Option configures databases created by this package.
type Option func(*config)

type config struct {
	backend       backend.Backend
	logger        *slog.Logger
	meterProvider metric.MeterProvider
	bufferSize    int
}

// WithBackend selects the matching backend. The default is the portable
// backend, or hyperscan when built with -tags=hyperscan.
func WithBackend(b backend.Backend) Option {
	return func(c *config) {
		c.backend = b
	}
}

// WithLogger sets the logger for the runtime and the default backend.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMeterProvider sets where scan metrics are recorded. The default is the
// global OpenTelemetry provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}

// WithBufferSize sets the ScanReader chunk size.
func WithBufferSize(n int) Option {
	return func(c *config) {
		c.bufferSize = n
	}
}

func newConfig(opts []Option) *config {
	c := &config{bufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.meterProvider == nil {
		c.meterProvider = otel.GetMeterProvider()
	}
	if c.backend == nil {
		c.backend = defaultBackend(c.logger)
	}
	if c.bufferSize <= 0 {
		c.bufferSize = DefaultBufferSize
	}
	return c
}
