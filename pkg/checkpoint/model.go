// Package checkpoint captures point-in-time copies of a project's tracked
// files and reconstructs any captured state on demand.
//
// A FULL checkpoint stores every tracked file. An INCREMENTAL checkpoint stores
// only the files added or modified since its base, plus the paths deleted
// since then. Restoring walks the chain from the nearest FULL checkpoint to
// the target.
package checkpoint

import (
	"slices"
	"time"

	"github.com/Sumatoshi-tech/rewind/pkg/archive"
)

// ManifestVersion is the current manifest format version.
const ManifestVersion = 1

// Kind is the storage strategy of a checkpoint.
type Kind string

// Checkpoint kinds.
const (
	KindFull        Kind = "full"
	KindIncremental Kind = "incremental"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindFull || k == KindIncremental
}

// ChangeSet describes how one tracked-file state differs from another.
// Each list is sorted and the three lists are disjoint.
type ChangeSet struct {
	Added    []string `json:"added"    yaml:"added"`
	Modified []string `json:"modified" yaml:"modified"`
	Deleted  []string `json:"deleted"  yaml:"deleted"`
}

// Len returns the number of changed paths.
func (c ChangeSet) Len() int {
	return len(c.Added) + len(c.Modified) + len(c.Deleted)
}

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool {
	return c.Len() == 0
}

// Stored returns the paths whose content a delta must carry (added and
// modified), sorted.
func (c ChangeSet) Stored() []string {
	stored := make([]string, 0, len(c.Added)+len(c.Modified))
	stored = append(stored, c.Added...)
	stored = append(stored, c.Modified...)
	slices.Sort(stored)

	return stored
}

// Stats are derived figures recorded in a manifest.
type Stats struct {
	FilesChanged int   `json:"files_changed" yaml:"files_changed"`
	BytesStored  int64 `json:"bytes_stored"  yaml:"bytes_stored"`
}

// Checkpoint is the manifest of one stored checkpoint. It is never modified
// after it has been written.
type Checkpoint struct {
	Version     int               `json:"version"`
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Timestamp   time.Time         `json:"timestamp"`
	Description string            `json:"description"`
	Kind        Kind              `json:"kind"`
	Emergency   bool              `json:"emergency,omitempty"`
	Files       []string          `json:"files"`
	Size        int64             `json:"size"`
	FileHashes  map[string]string `json:"file_hashes"`
	Base        string            `json:"base,omitempty"`
	Changes     *ChangeSet        `json:"changes,omitempty"`
	Stats       Stats             `json:"stats"`
	Codec       archive.Codec     `json:"codec,omitempty"`
}

// PayloadCodec returns the codec of the payload archive.
func (c *Checkpoint) PayloadCodec() archive.Codec {
	if c.Codec == "" {
		return archive.CodecLZ4
	}

	return c.Codec
}

// PayloadFile returns the file name of the payload archive.
func (c *Checkpoint) PayloadFile() string {
	return payloadFile(c.Kind, c.PayloadCodec())
}

// Tracks reports whether path is part of the checkpoint's file list.
func (c *Checkpoint) Tracks(path string) bool {
	_, ok := c.FileHashes[path]

	return ok
}

// Stores reports whether the checkpoint's own payload carries path.
func (c *Checkpoint) Stores(path string) bool {
	if c.Kind == KindFull {
		return c.Tracks(path)
	}

	if c.Changes == nil {
		return false
	}

	return slices.Contains(c.Changes.Added, path) || slices.Contains(c.Changes.Modified, path)
}

func payloadFile(kind Kind, codec archive.Codec) string {
	if kind == KindIncremental {
		return deltaBasename + codec.Extension()
	}

	return archiveBasename + codec.Extension()
}

// Summary is the listing view of a checkpoint.
type Summary struct {
	Name        string    `json:"name"                  yaml:"name"`
	Timestamp   time.Time `json:"timestamp"             yaml:"timestamp"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        Kind      `json:"kind"                  yaml:"kind"`
	Emergency   bool      `json:"emergency,omitempty"   yaml:"emergency,omitempty"`
	Files       int       `json:"files"                 yaml:"files"`
	Size        int64     `json:"size"                  yaml:"size"`
	Base        string    `json:"base,omitempty"        yaml:"base,omitempty"`
	Stats       Stats     `json:"stats"                 yaml:"stats"`
	ChainLength int       `json:"chain_length"          yaml:"chain_length"`
	Restorable  bool      `json:"restorable"            yaml:"restorable"`
}

// Chain is an ordered restore sequence: a FULL checkpoint followed by the
// INCREMENTAL checkpoints leading to the target.
type Chain []*Checkpoint

// Target returns the last link.
func (c Chain) Target() *Checkpoint {
	if len(c) == 0 {
		return nil
	}

	return c[len(c)-1]
}

// Names returns the link names in restore order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, cp := range c {
		names[i] = cp.Name
	}

	return names
}

// Restore strategies reported by dry runs.
const (
	StrategyDirect  = "direct"
	StrategyChained = "chained"
)

// Strategy returns StrategyDirect for a single FULL link, else StrategyChained.
func (c Chain) Strategy() string {
	if len(c) == 1 {
		return StrategyDirect
	}

	return StrategyChained
}
