package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Sumatoshi-tech/rewind/pkg/archive"
	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
	"github.com/Sumatoshi-tech/rewind/pkg/observability"
)

// Config is the full rewind configuration.
type Config struct {
	Store       StoreConfig       `mapstructure:"store"`
	Retention   RetentionConfig   `mapstructure:"retention"`
	Incremental IncrementalConfig `mapstructure:"incremental"`
	Create      CreateConfig      `mapstructure:"create"`
	Tracking    TrackingConfig    `mapstructure:"tracking"`
	Hashing     HashingConfig     `mapstructure:"hashing"`
	Changelog   ChangelogConfig   `mapstructure:"changelog"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Watch       WatchConfig       `mapstructure:"watch"`

	source string
}

// StoreConfig locates and encodes checkpoint payloads.
type StoreConfig struct {
	// Dir is the checkpoint directory, relative to the project root unless absolute.
	Dir              string `mapstructure:"dir"`
	Codec            string `mapstructure:"codec"`
	CompressionLevel int    `mapstructure:"compression_level"`
}

// RetentionConfig bounds the store. Zero disables a bound.
type RetentionConfig struct {
	MaxAgeDays     int `mapstructure:"max_age_days"`
	MaxCheckpoints int `mapstructure:"max_checkpoints"`
}

// IncrementalConfig controls FULL/INCREMENTAL selection.
type IncrementalConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	FullInterval   int     `mapstructure:"full_interval"`
	MaxChainLength int     `mapstructure:"max_chain_length"`
	ChangeRatio    float64 `mapstructure:"change_ratio"`
}

// CreateConfig holds create-time settings.
type CreateConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// TrackingConfig selects the files checkpoints capture.
type TrackingConfig struct {
	UseGitignore bool     `mapstructure:"use_gitignore"`
	Ignore       []string `mapstructure:"ignore"`
}

// HashingConfig tunes fingerprinting. Zero workers means one per CPU.
type HashingConfig struct {
	Workers int `mapstructure:"workers"`
}

// ChangelogConfig controls the SQLite action history.
type ChangelogConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Path defaults to changelog.db inside the store directory.
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// WatchConfig holds watch daemon settings.
type WatchConfig struct {
	Debounce    time.Duration `mapstructure:"debounce"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

// Sentinel validation errors.
var (
	// ErrInvalidCodec indicates an unknown store.codec.
	ErrInvalidCodec = errors.New("store.codec must be lz4 or zstd")
	// ErrInvalidCompressionLevel indicates a compression level outside 1..22.
	ErrInvalidCompressionLevel = errors.New("store.compression_level must be between 1 and 22")
	// ErrInvalidMaxAge indicates a negative retention age.
	ErrInvalidMaxAge = errors.New("retention.max_age_days must be non-negative")
	// ErrInvalidMaxCheckpoints indicates a negative retention count.
	ErrInvalidMaxCheckpoints = errors.New("retention.max_checkpoints must be non-negative")
	// ErrInvalidFullInterval indicates a negative full interval.
	ErrInvalidFullInterval = errors.New("incremental.full_interval must be non-negative")
	// ErrInvalidMaxChainLength indicates a negative chain bound.
	ErrInvalidMaxChainLength = errors.New("incremental.max_chain_length must be non-negative")
	// ErrUnboundedChain indicates incremental mode with neither chain bound set.
	ErrUnboundedChain = errors.New("incremental.full_interval and incremental.max_chain_length cannot both be 0")
	// ErrInvalidChangeRatio indicates a change ratio outside 0..1.
	ErrInvalidChangeRatio = errors.New("incremental.change_ratio must be between 0 and 1")
	// ErrInvalidCooldown indicates a negative cooldown.
	ErrInvalidCooldown = errors.New("create.cooldown must be non-negative")
	// ErrInvalidWorkers indicates a negative worker count.
	ErrInvalidWorkers = errors.New("hashing.workers must be non-negative")
	// ErrInvalidLogLevel indicates an unknown logging.level.
	ErrInvalidLogLevel = errors.New("logging.level must be debug, info, warn, or error")
	// ErrInvalidSampleRatio indicates a sample ratio outside 0..1.
	ErrInvalidSampleRatio = errors.New("telemetry.sample_ratio must be between 0 and 1")
	// ErrInvalidDebounce indicates a non-positive debounce.
	ErrInvalidDebounce = errors.New("watch.debounce must be positive")
)

const (
	minCompressionLevel = 1
	maxCompressionLevel = 22
)

// Source returns the config file that was read, or "" when defaults and
// environment were used alone.
func (c *Config) Source() string {
	return c.source
}

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	storeErr := c.validateStore()
	if storeErr != nil {
		return storeErr
	}

	policyErr := c.validatePolicy()
	if policyErr != nil {
		return policyErr
	}

	return c.validateRuntime()
}

func (c *Config) validateStore() error {
	_, err := archive.ParseCodec(c.Store.Codec)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidCodec, c.Store.Codec)
	}

	if c.Store.CompressionLevel < minCompressionLevel || c.Store.CompressionLevel > maxCompressionLevel {
		return fmt.Errorf("%w: %d", ErrInvalidCompressionLevel, c.Store.CompressionLevel)
	}

	return nil
}

func (c *Config) validatePolicy() error {
	switch {
	case c.Retention.MaxAgeDays < 0:
		return ErrInvalidMaxAge
	case c.Retention.MaxCheckpoints < 0:
		return ErrInvalidMaxCheckpoints
	case c.Incremental.FullInterval < 0:
		return ErrInvalidFullInterval
	case c.Incremental.MaxChainLength < 0:
		return ErrInvalidMaxChainLength
	case c.Incremental.Enabled && c.Incremental.FullInterval == 0 && c.Incremental.MaxChainLength == 0:
		return ErrUnboundedChain
	case c.Incremental.ChangeRatio < 0 || c.Incremental.ChangeRatio > 1:
		return ErrInvalidChangeRatio
	case c.Create.Cooldown < 0:
		return ErrInvalidCooldown
	}

	return nil
}

func (c *Config) validateRuntime() error {
	if c.Hashing.Workers < 0 {
		return ErrInvalidWorkers
	}

	_, err := c.LogLevel()
	if err != nil {
		return err
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return ErrInvalidSampleRatio
	}

	if c.Watch.Debounce <= 0 {
		return ErrInvalidDebounce
	}

	return nil
}

// Policy converts the configuration into the engine's immutable policy.
func (c *Config) Policy() (checkpoint.Policy, error) {
	codec, err := archive.ParseCodec(c.Store.Codec)
	if err != nil {
		return checkpoint.Policy{}, fmt.Errorf("%w: %q", ErrInvalidCodec, c.Store.Codec)
	}

	return checkpoint.Policy{
		Incremental:    c.Incremental.Enabled,
		FullInterval:   c.Incremental.FullInterval,
		MaxChainLength: c.Incremental.MaxChainLength,
		ChangeRatio:    c.Incremental.ChangeRatio,
		Cooldown:       c.Create.Cooldown,
		Retention: checkpoint.RetentionPolicy{
			MaxAge:         time.Duration(c.Retention.MaxAgeDays) * day,
			MaxCheckpoints: c.Retention.MaxCheckpoints,
		},
		Codec:            codec,
		CompressionLevel: c.Store.CompressionLevel,
	}, nil
}

// StoreDir resolves store.dir against projectRoot.
func (c *Config) StoreDir(projectRoot string) string {
	dir := c.Store.Dir
	if dir == "" {
		dir = DefaultStoreDir
	}

	if filepath.IsAbs(dir) {
		return dir
	}

	return filepath.Join(projectRoot, filepath.FromSlash(dir))
}

// ChangelogPath resolves changelog.path, defaulting into the store directory.
func (c *Config) ChangelogPath(projectRoot string) string {
	if c.Changelog.Path == "" {
		return filepath.Join(c.StoreDir(projectRoot), DefaultChangelogFile)
	}

	if filepath.IsAbs(c.Changelog.Path) {
		return c.Changelog.Path
	}

	return filepath.Join(projectRoot, filepath.FromSlash(c.Changelog.Path))
}

// LogLevel parses logging.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.Logging.Level))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	return level, nil
}

// Observability builds the telemetry configuration for mode.
func (c *Config) Observability(mode observability.AppMode, version string) observability.Config {
	obs := observability.DefaultConfig()
	obs.ServiceVersion = version
	obs.Mode = mode
	obs.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	obs.OTLPInsecure = c.Telemetry.OTLPInsecure
	obs.OTLPHeaders = observability.ParseOTLPHeaders(c.Telemetry.OTLPHeaders)
	obs.SampleRatio = c.Telemetry.SampleRatio
	obs.LogJSON = c.Logging.JSON

	level, err := c.LogLevel()
	if err == nil {
		obs.LogLevel = level
	}

	return obs
}
