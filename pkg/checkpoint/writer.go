package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/rewind/pkg/archive"
	"github.com/Sumatoshi-tech/rewind/pkg/fingerprint"
)

// snapshot is everything needed to write one checkpoint.
type snapshot struct {
	name        string
	description string
	kind        Kind
	emergency   bool
	timestamp   time.Time
	files       []string
	set         fingerprint.Set
	base        *Checkpoint
	changes     ChangeSet
	codec       archive.Codec
	level       int
}

// write stores snap under a staging directory and publishes it with a
// single rename. The payload is written before the manifest, and the
// manifest before the rename, so a crash leaves at most a dot-directory
// the registry ignores.
func (s *Store) write(ctx context.Context, root string, snap snapshot) (cp *Checkpoint, err error) {
	err = os.MkdirAll(s.dir, dirPerm)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	staging := filepath.Join(s.dir, stagingPrefix+snap.name)

	err = os.Mkdir(staging, dirPerm)
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	defer func() {
		if err != nil {
			err = errors.Join(err, os.RemoveAll(staging))
		}
	}()

	stored := snap.files
	if snap.kind == KindIncremental {
		stored = snap.changes.Stored()
	}

	bytesStored, err := writePayload(ctx, filepath.Join(staging, payloadFile(snap.kind, snap.codec)), root, stored, snap)
	if err != nil {
		return nil, err
	}

	cp = &Checkpoint{
		Version:     ManifestVersion,
		ID:          uuid.NewString(),
		Name:        snap.name,
		Timestamp:   snap.timestamp.UTC(),
		Description: snap.description,
		Kind:        snap.kind,
		Emergency:   snap.emergency,
		Files:       snap.files,
		Size:        snap.set.TotalSize(),
		FileHashes:  snap.set.Hashes(),
		Stats: Stats{
			FilesChanged: snap.changes.Len(),
			BytesStored:  bytesStored,
		},
		Codec: snap.codec,
	}

	if snap.kind == KindIncremental {
		changes := snap.changes
		cp.Base = snap.base.Name
		cp.Changes = &changes

		err = s.deleted.Save(staging, &changes.Deleted)
		if err != nil {
			return nil, fmt.Errorf("write deleted list: %w", err)
		}
	}

	err = s.manifests.Save(staging, cp)
	if err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	err = os.Rename(staging, s.Path(snap.name))
	if err != nil {
		return nil, fmt.Errorf("publish checkpoint: %w", err)
	}

	return cp, nil
}

func writePayload(ctx context.Context, path, root string, files []string, snap snapshot) (int64, error) {
	w, err := archive.Create(path, snap.codec, snap.level)
	if err != nil {
		return 0, err
	}

	for _, rel := range files {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, errors.Join(ctxErr, w.Close())
		}

		_, addErr := w.AddFile(root, rel)
		if addErr != nil {
			return 0, errors.Join(fmt.Errorf("archive %s: %w", rel, addErr), w.Close())
		}
	}

	err = w.Close()
	if err != nil {
		return 0, err
	}

	return w.Bytes(), nil
}
