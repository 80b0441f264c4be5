package checkpoint

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/rewind/pkg/persist"
)

// Store layout.
const (
	manifestBasename = "manifest"
	deletedBasename  = "deleted"
	archiveBasename  = "archive"
	deltaBasename    = "delta"
	stagingPrefix    = ".staging-"

	dirPerm = 0o750
)

// Store is the on-disk checkpoint directory. It holds no state between
// calls; every query reads the directory again.
type Store struct {
	dir       string
	logger    *slog.Logger
	manifests *persist.Persister[Checkpoint]
	deleted   *persist.Persister[[]string]
}

// NewStore returns a store rooted at dir. The directory is created on the
// first write.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	codec := persist.NewJSONCodec()

	return &Store{
		dir:       dir,
		logger:    logger,
		manifests: persist.NewPersister[Checkpoint](manifestBasename, codec),
		deleted:   persist.NewPersister[[]string](deletedBasename, codec),
	}
}

// Dir returns the store root.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the directory of the named checkpoint.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// PayloadPath returns the payload archive of cp.
func (s *Store) PayloadPath(cp *Checkpoint) string {
	return filepath.Join(s.Path(cp.Name), cp.PayloadFile())
}

// List returns every valid checkpoint, newest first. Entries whose manifest
// is missing, corrupt, or incomplete are skipped.
func (s *Store) List() ([]*Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}

	checkpoints := make([]*Checkpoint, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		cp, loadErr := s.load(entry.Name())
		if loadErr != nil {
			s.logger.Debug("registry: skipping checkpoint",
				slog.String("name", entry.Name()),
				slog.String("error", loadErr.Error()))

			continue
		}

		checkpoints = append(checkpoints, cp)
	}

	sortNewestFirst(checkpoints)

	return checkpoints, nil
}

// Load reads the named checkpoint's manifest.
func (s *Store) Load(name string) (*Checkpoint, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	cp, err := s.load(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", name, err)
	}

	return cp, nil
}

// Graph returns a name-indexed snapshot of the store.
func (s *Store) Graph() (*Graph, error) {
	checkpoints, err := s.List()
	if err != nil {
		return nil, err
	}

	return NewGraph(checkpoints), nil
}

// Remove deletes the named checkpoint directory.
func (s *Store) Remove(name string) error {
	if !validName(name) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	err := os.RemoveAll(s.Path(name))
	if err != nil {
		return fmt.Errorf("remove checkpoint %s: %w", name, err)
	}

	return nil
}

// Deleted reads the deleted-paths document of an INCREMENTAL checkpoint.
func (s *Store) Deleted(cp *Checkpoint) ([]string, error) {
	deleted, err := s.deleted.Load(s.Path(cp.Name))
	if err != nil {
		return nil, fmt.Errorf("load deleted list of %s: %w", cp.Name, err)
	}

	return *deleted, nil
}

func (s *Store) load(name string) (*Checkpoint, error) {
	cp, err := s.manifests.Load(s.Path(name))
	if err != nil {
		return nil, err
	}

	err = validateManifest(cp, name)
	if err != nil {
		return nil, err
	}

	return cp, nil
}

func validateManifest(cp *Checkpoint, dirName string) error {
	switch {
	case cp.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidManifest)
	case cp.Name != dirName:
		return fmt.Errorf("%w: name %q does not match directory", ErrInvalidManifest, cp.Name)
	case cp.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidManifest)
	case !cp.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidManifest, cp.Kind)
	case cp.FileHashes == nil:
		return fmt.Errorf("%w: missing file_hashes", ErrInvalidManifest)
	case cp.Kind == KindIncremental && cp.Base == "":
		return fmt.Errorf("%w: incremental without base", ErrInvalidManifest)
	}

	if cp.Files == nil {
		cp.Files = []string{}
	}

	return nil
}

// validName rejects names that are not a single plain directory entry.
func validName(name string) bool {
	return name != "" && !strings.HasPrefix(name, ".") && filepath.Base(name) == name && filepath.IsLocal(name)
}

// sortNewestFirst orders by timestamp, then by collision sequence, then by
// name, each descending.
func sortNewestFirst(checkpoints []*Checkpoint) {
	slices.SortFunc(checkpoints, func(a, b *Checkpoint) int {
		return cmp.Or(
			b.Timestamp.Compare(a.Timestamp),
			cmp.Compare(nameSequence(b.Name), nameSequence(a.Name)),
			strings.Compare(b.Name, a.Name),
		)
	})
}
