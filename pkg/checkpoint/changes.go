package checkpoint

import (
	"slices"

	"github.com/Sumatoshi-tech/rewind/pkg/fingerprint"
)

// DetectChanges compares the current state with reference.
//
// Only paths listed in files and present in current count as present;
// a listed file without a fingerprint could not be read and is treated as
// absent. A nil reference reports every present file as added.
func DetectChanges(current fingerprint.Set, files []string, reference *Checkpoint) ChangeSet {
	changes := ChangeSet{
		Added:    []string{},
		Modified: []string{},
		Deleted:  []string{},
	}

	present := make(map[string]struct{}, len(files))

	for _, path := range files {
		entry, ok := current[path]
		if !ok {
			continue
		}

		present[path] = struct{}{}

		if reference == nil {
			changes.Added = append(changes.Added, path)

			continue
		}

		refHash, tracked := reference.FileHashes[path]

		switch {
		case !tracked:
			changes.Added = append(changes.Added, path)
		case refHash != entry.Hash:
			changes.Modified = append(changes.Modified, path)
		}
	}

	if reference != nil {
		for path := range reference.FileHashes {
			if _, ok := present[path]; !ok {
				changes.Deleted = append(changes.Deleted, path)
			}
		}
	}

	slices.Sort(changes.Added)
	changes.Added = slices.Compact(changes.Added)
	slices.Sort(changes.Modified)
	changes.Modified = slices.Compact(changes.Modified)
	slices.Sort(changes.Deleted)

	return changes
}
