package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rewind/pkg/archive"
	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
	"github.com/Sumatoshi-tech/rewind/pkg/config"
	"github.com/Sumatoshi-tech/rewind/pkg/observability"
	"github.com/Sumatoshi-tech/rewind/pkg/tracked"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, ".rewind.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_EmptyFile_UsesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "")

	cfg, err := config.LoadConfig(path, "")
	require.NoError(t, err)

	assert.Equal(t, config.DefaultStoreDir, cfg.Store.Dir)
	assert.Equal(t, config.DefaultStoreCodec, cfg.Store.Codec)
	assert.Equal(t, config.DefaultRetentionMaxAgeDays, cfg.Retention.MaxAgeDays)
	assert.Equal(t, config.DefaultRetentionMaxCheckpoints, cfg.Retention.MaxCheckpoints)
	assert.True(t, cfg.Incremental.Enabled)
	assert.Equal(t, config.DefaultCreateCooldown, cfg.Create.Cooldown)
	assert.Equal(t, tracked.DefaultIgnore, cfg.Tracking.Ignore)
	assert.True(t, cfg.Tracking.UseGitignore)
	assert.True(t, cfg.Changelog.Enabled)
	assert.Equal(t, config.DefaultWatchDebounce, cfg.Watch.Debounce)
	assert.Equal(t, path, cfg.Source())

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, checkpoint.DefaultPolicy(), policy)
}

func TestLoadConfig_ProjectFile(t *testing.T) {
	t.Parallel()

	project := t.TempDir()
	writeConfig(t, project, `store:
  dir: /var/rewind
  codec: zstd
  compression_level: 9
retention:
  max_age_days: 7
  max_checkpoints: 0
incremental:
  enabled: false
  change_ratio: 0.25
create:
  cooldown: 1m
tracking:
  ignore: ["*.log"]
watch:
  debounce: 500ms
logging:
  level: debug
`)

	cfg, err := config.LoadConfig("", project)
	require.NoError(t, err)

	assert.Equal(t, "/var/rewind", cfg.StoreDir(project))
	assert.Equal(t, []string{"*.log"}, cfg.Tracking.Ignore)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, archive.CodecZstd, policy.Codec)
	assert.Equal(t, 9, policy.CompressionLevel)
	assert.Equal(t, 7*24*time.Hour, policy.Retention.MaxAge)
	assert.Zero(t, policy.Retention.MaxCheckpoints)
	assert.False(t, policy.Incremental)
	assert.InDelta(t, 0.25, policy.ChangeRatio, 0.0001)
	assert.Equal(t, time.Minute, policy.Cooldown)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("REWIND_STORE_CODEC", "zstd")
	t.Setenv("REWIND_INCREMENTAL_FULL_INTERVAL", "3")
	t.Setenv("REWIND_CREATE_COOLDOWN", "5s")

	cfg, err := config.LoadConfig("", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "zstd", cfg.Store.Codec)
	assert.Equal(t, 3, cfg.Incremental.FullInterval)
	assert.Equal(t, 5*time.Second, cfg.Create.Cooldown)
}

func TestLoadConfig_ExplicitPathNotFound(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.Error(t, err)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "store: [unclosed")

	_, err := config.LoadConfig(path, "")
	require.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"codec", "store:\n  codec: gzip\n", config.ErrInvalidCodec},
		{"level", "store:\n  compression_level: 40\n", config.ErrInvalidCompressionLevel},
		{"age", "retention:\n  max_age_days: -1\n", config.ErrInvalidMaxAge},
		{"count", "retention:\n  max_checkpoints: -1\n", config.ErrInvalidMaxCheckpoints},
		{"interval", "incremental:\n  full_interval: -2\n", config.ErrInvalidFullInterval},
		{"chain", "incremental:\n  max_chain_length: -2\n", config.ErrInvalidMaxChainLength},
		{"unbounded", "incremental:\n  full_interval: 0\n  max_chain_length: 0\n", config.ErrUnboundedChain},
		{"ratio", "incremental:\n  change_ratio: 1.5\n", config.ErrInvalidChangeRatio},
		{"cooldown", "create:\n  cooldown: -1s\n", config.ErrInvalidCooldown},
		{"workers", "hashing:\n  workers: -1\n", config.ErrInvalidWorkers},
		{"log level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"sample ratio", "telemetry:\n  sample_ratio: 2\n", config.ErrInvalidSampleRatio},
		{"debounce", "watch:\n  debounce: 0s\n", config.ErrInvalidDebounce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, t.TempDir(), tt.content)

			_, err := config.LoadConfig(path, "")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadConfig_ChainBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  string
		interval int
		chain    int
	}{
		{"interval only", "incremental:\n  full_interval: 5\n  max_chain_length: 0\n", 5, 0},
		{"chain only", "incremental:\n  full_interval: 0\n  max_chain_length: 7\n", 0, 7},
		{"always full", "incremental:\n  enabled: false\n  full_interval: 0\n  max_chain_length: 0\n", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := config.LoadConfig(writeConfig(t, t.TempDir(), tt.content), "")
			require.NoError(t, err)

			policy, err := cfg.Policy()
			require.NoError(t, err)
			assert.Equal(t, tt.interval, policy.FullInterval)
			assert.Equal(t, tt.chain, policy.MaxChainLength)
		})
	}
}

func TestConfig_Paths(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	root := filepath.FromSlash("/work/project")

	assert.Equal(t, filepath.Join(root, ".rewind", "checkpoints"), cfg.StoreDir(root))
	assert.Equal(t, filepath.Join(root, ".rewind", "checkpoints", "changelog.db"), cfg.ChangelogPath(root))

	cfg.Changelog.Path = "history.db"
	assert.Equal(t, filepath.Join(root, "history.db"), cfg.ChangelogPath(root))
}

func TestConfig_Observability(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Logging:   config.LoggingConfig{Level: "warn", JSON: true},
		Telemetry: config.TelemetryConfig{OTLPEndpoint: "localhost:4317", OTLPHeaders: "k=v", SampleRatio: 0.5},
	}

	obs := cfg.Observability(observability.ModeWatch, "1.2.3")

	assert.Equal(t, "rewind", obs.ServiceName)
	assert.Equal(t, "1.2.3", obs.ServiceVersion)
	assert.Equal(t, observability.ModeWatch, obs.Mode)
	assert.Equal(t, "localhost:4317", obs.OTLPEndpoint)
	assert.Equal(t, map[string]string{"k": "v"}, obs.OTLPHeaders)
	assert.Equal(t, slog.LevelWarn, obs.LogLevel)
	assert.True(t, obs.LogJSON)
}
