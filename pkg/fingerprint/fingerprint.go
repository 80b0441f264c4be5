// Package fingerprint computes content digests for tracked project files.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Entry is the fingerprint of a single file.
type Entry struct {
	// Hash is the hex-encoded SHA-256 digest of the raw file bytes.
	Hash string `json:"hash"`

	// Size is the number of bytes hashed.
	Size int64 `json:"size"`
}

// Set maps a slash-separated relative path to its fingerprint.
// Files that could not be read are absent from the set.
type Set map[string]Entry

// Hashes returns the path to digest mapping of the set.
func (s Set) Hashes() map[string]string {
	out := make(map[string]string, len(s))

	for path, entry := range s {
		out[path] = entry.Hash
	}

	return out
}

// TotalSize returns the sum of all entry sizes.
func (s Set) TotalSize() int64 {
	var total int64

	for _, entry := range s {
		total += entry.Size
	}

	return total
}

// Hasher computes fingerprints for files under a project root.
type Hasher struct {
	workers int
	logger  *slog.Logger
}

// NewHasher creates a hasher that uses up to workers goroutines.
// A non-positive worker count selects runtime.NumCPU().
func NewHasher(workers int, logger *slog.Logger) *Hasher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Hasher{workers: workers, logger: logger}
}

// Workers returns the configured concurrency limit.
func (h *Hasher) Workers() int {
	return h.workers
}

// Hash fingerprints every path under root. Unreadable files are skipped and
// logged rather than failing the whole set. The only error returned is
// context cancellation.
func (h *Hasher) Hash(ctx context.Context, root string, paths []string) (Set, error) {
	result := make(Set, len(paths))

	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(h.workers)

	for _, rel := range paths {
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}

			entry, err := File(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				h.logger.DebugContext(groupCtx, "fingerprint skipped unreadable file",
					slog.String("path", rel), slog.String("error", err.Error()))

				return nil
			}

			mu.Lock()
			result[rel] = entry
			mu.Unlock()

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("hash files: %w", err)
	}

	return result, nil
}

// File fingerprints a single regular file.
func File(path string) (Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Entry{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Entry{}, fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.Mode().IsRegular() {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotRegular, path)
	}

	digest := sha256.New()

	written, err := io.Copy(digest, f)
	if err != nil {
		return Entry{}, fmt.Errorf("read %s: %w", path, err)
	}

	return Entry{Hash: hex.EncodeToString(digest.Sum(nil)), Size: written}, nil
}

// Bytes returns the hex-encoded SHA-256 digest of data.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}
