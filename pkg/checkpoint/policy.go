package checkpoint

import (
	"time"

	"github.com/Sumatoshi-tech/rewind/pkg/archive"
)

// Policy defaults.
const (
	DefaultFullInterval   = 10
	DefaultMaxChainLength = 20
	DefaultChangeRatio    = 0.5
	DefaultCooldown       = 30 * time.Second
	DefaultMaxAge         = 30 * 24 * time.Hour
	DefaultMaxCheckpoints = 50
)

// Policy is the immutable set of knobs an Engine runs with.
type Policy struct {
	// Incremental enables INCREMENTAL checkpoints. When false every
	// checkpoint is FULL.
	Incremental bool
	// FullInterval forces FULL once this many INCREMENTAL checkpoints follow
	// the last FULL one.
	FullInterval int
	// MaxChainLength bounds the INCREMENTAL links after a FULL checkpoint.
	MaxChainLength int
	// ChangeRatio forces FULL when the changed-file count exceeds this
	// fraction of the file count.
	ChangeRatio float64
	// Cooldown rejects unforced creates this soon after the latest checkpoint.
	Cooldown time.Duration
	// Retention bounds the store.
	Retention RetentionPolicy
	// Codec compresses payload archives.
	Codec archive.Codec
	// CompressionLevel applies to zstd payloads.
	CompressionLevel int
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Incremental:    true,
		FullInterval:   DefaultFullInterval,
		MaxChainLength: DefaultMaxChainLength,
		ChangeRatio:    DefaultChangeRatio,
		Cooldown:       DefaultCooldown,
		Retention: RetentionPolicy{
			MaxAge:         DefaultMaxAge,
			MaxCheckpoints: DefaultMaxCheckpoints,
		},
		Codec:            archive.CodecLZ4,
		CompressionLevel: archive.DefaultZstdLevel,
	}
}

// SelectionInput is what the selector knows about a pending checkpoint.
type SelectionInput struct {
	// ForceFull is an explicit caller request for a FULL checkpoint.
	ForceFull bool
	// Last is the newest existing checkpoint, nil when the store is empty.
	Last *Checkpoint
	// LastChain is the resolved chain of Last. Nil when Last is unrestorable.
	LastChain Chain
	// Changed is the number of changed paths relative to Last.
	Changed int
	// Files is the number of files in the pending checkpoint.
	Files int
}

// IncrementalsSinceFull returns the INCREMENTAL links after the FULL root
// of the last checkpoint's chain.
func (in SelectionInput) IncrementalsSinceFull() int {
	if len(in.LastChain) == 0 {
		return 0
	}

	return len(in.LastChain) - 1
}

// SelectKind chooses FULL or INCREMENTAL. The first matching rule wins:
// forced, incremental disabled, no prior checkpoint, unrestorable prior
// checkpoint, FullInterval reached, MaxChainLength reached, change ratio
// exceeded. Otherwise INCREMENTAL.
func (p Policy) SelectKind(in SelectionInput) Kind {
	if in.ForceFull || !p.Incremental || in.Last == nil || len(in.LastChain) == 0 {
		return KindFull
	}

	since := in.IncrementalsSinceFull()

	if p.FullInterval > 0 && since >= p.FullInterval {
		return KindFull
	}

	if p.MaxChainLength > 0 && since >= p.MaxChainLength {
		return KindFull
	}

	// Measured against the larger of the previous and pending file counts.
	denominator := max(len(in.Last.Files), in.Files)
	if p.ChangeRatio > 0 && float64(in.Changed) > p.ChangeRatio*float64(denominator) {
		return KindFull
	}

	return KindIncremental
}
