package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/rewind/pkg/tracked"
)

// configName is the config file name without extension.
const configName = ".rewind"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for rewind settings.
const envPrefix = "REWIND"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise .rewind.yaml is searched in projectDir and then $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath, projectDir string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)

		if projectDir != "" {
			viperCfg.AddConfigPath(projectDir)
		}

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	cfg.source = viperCfg.ConfigFileUsed()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("store.dir", DefaultStoreDir)
	viperCfg.SetDefault("store.codec", DefaultStoreCodec)
	viperCfg.SetDefault("store.compression_level", DefaultCompressionLevel)

	viperCfg.SetDefault("retention.max_age_days", DefaultRetentionMaxAgeDays)
	viperCfg.SetDefault("retention.max_checkpoints", DefaultRetentionMaxCheckpoints)

	viperCfg.SetDefault("incremental.enabled", DefaultIncrementalEnabled)
	viperCfg.SetDefault("incremental.full_interval", DefaultFullInterval)
	viperCfg.SetDefault("incremental.max_chain_length", DefaultMaxChainLength)
	viperCfg.SetDefault("incremental.change_ratio", DefaultChangeRatio)

	viperCfg.SetDefault("create.cooldown", DefaultCreateCooldown)

	viperCfg.SetDefault("tracking.use_gitignore", DefaultTrackingUseGitignore)
	viperCfg.SetDefault("tracking.ignore", tracked.DefaultIgnore)

	viperCfg.SetDefault("hashing.workers", DefaultHashingWorkers)

	viperCfg.SetDefault("changelog.enabled", DefaultChangelogEnabled)
	viperCfg.SetDefault("changelog.path", "")

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.json", DefaultLogJSON)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.sample_ratio", 0.0)

	viperCfg.SetDefault("watch.debounce", DefaultWatchDebounce)
	viperCfg.SetDefault("watch.metrics_addr", DefaultWatchMetricsAddr)
}
