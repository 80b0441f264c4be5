// Package observability wires OpenTelemetry tracing and metrics together
// with structured logging for the rewind CLI and watch daemon.
package observability

import (
	"io"
	"log/slog"
)

// AppMode identifies how the binary was launched.
type AppMode string

const (
	// ModeCLI is a one-shot command.
	ModeCLI AppMode = "cli"
	// ModeWatch is the long-running auto-checkpoint daemon.
	ModeWatch AppMode = "watch"
)

const (
	defaultServiceName        = "rewind"
	defaultShutdownTimeoutSec = 5
)

// Config selects exporters and log format for one process.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Environment tags telemetry and log records, e.g. "ci". Optional.
	Environment string
	Mode        AppMode

	// OTLPEndpoint is a collector host:port. Empty keeps spans and metrics
	// in-process (no-op providers unless Prometheus is set).
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool

	// DebugTrace forces 100% trace sampling and logs blocked span attributes.
	DebugTrace bool

	// SampleRatio in (0, 1] forces ratio sampling. Zero defers to the
	// OTEL_TRACES_SAMPLER environment variables.
	SampleRatio float64

	// Prometheus enables an in-process Prometheus registry; Providers.MetricsHandler
	// then serves it.
	Prometheus bool

	LogLevel slog.Level
	LogJSON  bool
	// LogOutput receives log records. Nil means os.Stderr.
	LogOutput io.Writer

	// ShutdownTimeoutSec bounds the final telemetry flush.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a CLI configuration that exports nothing.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
