package central

import (
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/srg/blecentral/pkg/adapter"
	"github.com/srg/blecentral/pkg/config"
)

type options struct {
	name           string
	logger         *logrus.Logger
	config         *config.Config
	tracerProvider trace.TracerProvider
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session logger. Defaults to logrus.New().
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithConfig sets observer buffering and scan defaults.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithTracerProvider sets the provider for operation spans. Defaults to the
// global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithName labels the session's event loop goroutine and log entries.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// ScanOptions tune a Scan.
type ScanOptions struct {
	AllowDuplicates bool

	// Match further restricts which discovery completes the scan. It runs on
	// the session event loop and must not block.
	Match func(adapter.PeripheralDiscovered) bool
}
