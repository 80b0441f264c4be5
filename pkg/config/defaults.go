// Package config loads rewind settings from .rewind.yaml, REWIND_* environment
// variables, and built-in defaults.
package config

import (
	"time"

	"github.com/Sumatoshi-tech/rewind/pkg/archive"
	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
)

// Store defaults.
const (
	DefaultStoreDir         = checkpoint.DefaultStoreDir
	DefaultStoreCodec       = string(archive.CodecLZ4)
	DefaultCompressionLevel = archive.DefaultZstdLevel
)

// Retention defaults.
const (
	DefaultRetentionMaxAgeDays     = 30
	DefaultRetentionMaxCheckpoints = checkpoint.DefaultMaxCheckpoints
)

// Incremental defaults.
const (
	DefaultIncrementalEnabled   = true
	DefaultFullInterval         = checkpoint.DefaultFullInterval
	DefaultMaxChainLength       = checkpoint.DefaultMaxChainLength
	DefaultChangeRatio          = checkpoint.DefaultChangeRatio
	DefaultCreateCooldown       = checkpoint.DefaultCooldown
	DefaultTrackingUseGitignore = true
	DefaultHashingWorkers       = 0
)

// Changelog defaults.
const (
	DefaultChangelogEnabled = true
	// DefaultChangelogFile is placed inside the store directory when
	// changelog.path is empty.
	DefaultChangelogFile = "changelog.db"
)

// Logging defaults.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false
)

// Watch defaults.
const (
	DefaultWatchDebounce    = 2 * time.Second
	DefaultWatchMetricsAddr = ""
)

const day = 24 * time.Hour
