package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// StaleStagingAge is how old a staging directory must be before it is
// treated as the leftover of a crashed write.
const StaleStagingAge = time.Hour

// RetentionPolicy bounds the store. Zero values mean unlimited.
type RetentionPolicy struct {
	// MaxAge evicts checkpoints older than this.
	MaxAge time.Duration
	// MaxCheckpoints evicts the oldest checkpoints beyond this count.
	MaxCheckpoints int
}

// RetentionPlan is the outcome of applying a RetentionPolicy to a graph.
type RetentionPlan struct {
	// Evict lists checkpoints to delete, oldest first.
	Evict []string
	// Protected lists checkpoints that matched the policy but are kept
	// because a retained or pinned checkpoint's chain depends on them.
	Protected []string
}

// Plan selects checkpoints to evict. A checkpoint is never evicted while it
// is pinned or lies on the chain of any checkpoint that is kept.
func (r RetentionPolicy) Plan(g *Graph, now time.Time, pinned []string) RetentionPlan {
	ordered := g.Checkpoints()
	marked := make(map[string]bool, len(ordered))

	if r.MaxAge > 0 {
		for _, cp := range ordered {
			if now.Sub(cp.Timestamp) > r.MaxAge {
				marked[cp.Name] = true
			}
		}
	}

	if r.MaxCheckpoints > 0 && len(ordered) > r.MaxCheckpoints {
		for _, cp := range ordered[r.MaxCheckpoints:] {
			marked[cp.Name] = true
		}
	}

	if len(marked) == 0 {
		return RetentionPlan{}
	}

	roots := slices.Clone(pinned)

	for _, cp := range ordered {
		if !marked[cp.Name] {
			roots = append(roots, cp.Name)
		}
	}

	protected := map[string]bool{}

	for _, root := range roots {
		for _, member := range g.Members(root) {
			if marked[member] {
				delete(marked, member)
				protected[member] = true
			}
		}
	}

	var plan RetentionPlan

	for i := len(ordered) - 1; i >= 0; i-- {
		name := ordered[i].Name

		switch {
		case marked[name]:
			plan.Evict = append(plan.Evict, name)
		case protected[name]:
			plan.Protected = append(plan.Protected, name)
		}
	}

	return plan
}

// evict deletes the planned checkpoints and returns the names removed.
func (s *Store) evict(plan RetentionPlan) ([]string, error) {
	var (
		removed []string
		errs    []error
	)

	for _, name := range plan.Evict {
		err := s.Remove(name)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		removed = append(removed, name)
	}

	return removed, errors.Join(errs...)
}

// SweepStaging removes staging directories last modified before cutoff.
func (s *Store) SweepStaging(cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}

	var (
		swept []string
		errs  []error
	)

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), stagingPrefix) {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil || info.ModTime().After(cutoff) {
			continue
		}

		rmErr := os.RemoveAll(filepath.Join(s.dir, entry.Name()))
		if rmErr != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", entry.Name(), rmErr))

			continue
		}

		swept = append(swept, entry.Name())
	}

	return swept, errors.Join(errs...)
}
