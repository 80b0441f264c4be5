package checkpoint

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNotFound indicates the named checkpoint does not exist.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrChainBroken indicates a base reference cannot be resolved.
	ErrChainBroken = errors.New("checkpoint chain broken")
	// ErrBackupFailed indicates the pre-restore emergency backup could not be written.
	ErrBackupFailed = errors.New("emergency backup failed")
	// ErrFileNotTracked indicates a path is not part of a checkpoint.
	ErrFileNotTracked = errors.New("file not tracked by checkpoint")
	// ErrInvalidManifest indicates a manifest missing required fields.
	ErrInvalidManifest = errors.New("invalid manifest")
)

// ChainError reports an unrestorable checkpoint.
type ChainError struct {
	// Target is the checkpoint being resolved.
	Target string
	// Missing is the base that could not be found, or the repeated name of a cycle.
	Missing string
	// Cycle is set when base references loop.
	Cycle bool
}

func (e *ChainError) Error() string {
	if e.Cycle {
		return fmt.Sprintf("checkpoint %q: base references loop at %q", e.Target, e.Missing)
	}

	return fmt.Sprintf("checkpoint %q: base %q not found", e.Target, e.Missing)
}

// Is matches ErrChainBroken.
func (e *ChainError) Is(target error) bool {
	return target == ErrChainBroken
}
