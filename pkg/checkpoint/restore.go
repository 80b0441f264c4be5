package checkpoint

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Sumatoshi-tech/rewind/pkg/archive"
	"github.com/Sumatoshi-tech/rewind/pkg/changelog"
	"github.com/Sumatoshi-tech/rewind/pkg/observability"
)

// RestoreResult reports a restore or a restore dry run.
type RestoreResult struct {
	Target      string   `json:"target"                  yaml:"target"`
	Kind        Kind     `json:"kind"                    yaml:"kind"`
	DryRun      bool     `json:"dry_run"                 yaml:"dry_run"`
	Chain       []string `json:"chain"                   yaml:"chain"`
	ChainLength int      `json:"chain_length"            yaml:"chain_length"`
	Strategy    string   `json:"strategy"                yaml:"strategy"`
	BackupName  string   `json:"backup_name,omitempty"   yaml:"backup_name,omitempty"`
	Written     int      `json:"written"                 yaml:"written"`
	Deleted     int      `json:"deleted"                 yaml:"deleted"`
	Warnings    []string `json:"warnings,omitempty"      yaml:"warnings,omitempty"`
}

// Restore brings the project back to the state captured by name.
//
// A dry run only resolves the chain. A real restore first validates the
// chain, then writes an emergency FULL backup of the current state and
// aborts with ErrBackupFailed if that fails. Only then is the tree touched.
// Individual file failures become warnings.
func (e *Engine) Restore(ctx context.Context, name string, dryRun bool) (result *RestoreResult, err error) {
	ctx, span := e.tracer.Start(ctx, spanRestore)
	start := e.now()

	defer func() {
		status := observability.Status(err)
		if !dryRun {
			e.metrics.RecordRestore(ctx, status)
		}

		e.metrics.RecordDuration(ctx, "restore", status, e.now().Sub(start))
		endSpan(span, err)
	}()

	span.SetAttributes(attribute.Bool("restore.dry_run", dryRun))

	graph, err := e.store.Graph()
	if err != nil {
		return nil, err
	}

	chain, err := graph.Resolve(name)
	if err != nil {
		return nil, err
	}

	result = &RestoreResult{
		Target:      name,
		Kind:        chain.Target().Kind,
		DryRun:      dryRun,
		Chain:       chain.Names(),
		ChainLength: len(chain),
		Strategy:    chain.Strategy(),
	}

	span.SetAttributes(attribute.Int("restore.chain_length", len(chain)))

	if dryRun {
		return result, nil
	}

	backup, err := e.backup(ctx, name, chain.Names())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}

	result.BackupName = backup.Name

	// Re-read: the backup's retention pass may have changed the store.
	graph, err = e.store.Graph()
	if err != nil {
		return nil, err
	}

	chain, err = graph.Resolve(name)
	if err != nil {
		return nil, err
	}

	applier := &chainApplier{
		engine:  e,
		ctx:     ctx,
		present: setOf(backup.Files),
		dirs:    map[string]struct{}{},
	}

	for _, link := range chain {
		applier.apply(link)
	}

	applier.verify(chain.Target())

	result.Written = applier.written
	result.Deleted = applier.deleted
	result.Warnings = applier.warnings

	span.SetAttributes(attribute.Int("restore.warnings", len(result.Warnings)))

	e.logger.InfoContext(ctx, "checkpoint restored",
		slog.String("name", name),
		slog.String("backup", backup.Name),
		slog.Int("chain_length", len(chain)),
		slog.Int("written", applier.written),
		slog.Int("deleted", applier.deleted),
		slog.Int("warnings", len(applier.warnings)))

	e.sink.Record(ctx, changelog.Entry{
		Time:       e.now(),
		Op:         changelog.OpRestore,
		Checkpoint: name,
		Kind:       string(result.Kind),
		Files:      len(chain.Target().Files),
		Detail:     "backup " + backup.Name,
	})

	return result, nil
}

// chainApplier mutates the project tree one chain link at a time and
// collects per-file problems as warnings.
type chainApplier struct {
	engine   *Engine
	ctx      context.Context //nolint:containedctx // scoped to one restore.
	present  map[string]struct{}
	dirs     map[string]struct{}
	written  int
	deleted  int
	warnings []string
}

// apply deletes the paths link removes and the directories that leaves
// empty, then extracts its payload. Deleting first lets a file replace a
// directory of the same name and the reverse.
func (a *chainApplier) apply(link *Checkpoint) {
	var remove []string

	if link.Kind == KindFull {
		for path := range a.present {
			if !link.Tracks(path) {
				remove = append(remove, path)
			}
		}

		slices.Sort(remove)
	} else {
		deleted, err := a.engine.store.Deleted(link)
		if err != nil {
			a.warn("%s: %v; using manifest change record", link.Name, err)

			if link.Changes != nil {
				deleted = link.Changes.Deleted
			}
		}

		remove = deleted
	}

	for _, path := range remove {
		a.remove(path)
	}

	a.pruneEmptyDirs()

	stats, err := archive.Extract(a.engine.store.PayloadPath(link), link.PayloadCodec(), a.engine.root,
		func(rel string, fileErr error) {
			a.warn("%s: extract %s: %v", link.Name, rel, fileErr)
		})
	if err != nil {
		a.warn("%s: payload unreadable: %v", link.Name, err)
	}

	for _, replaced := range stats.ReplacedLinks {
		a.warn("%s: replaced symlink %s with a directory", link.Name, replaced)
	}

	a.written += len(stats.Written)

	if link.Kind == KindFull {
		a.present = setOf(link.Files)

		return
	}

	for _, path := range stats.Written {
		a.present[path] = struct{}{}
	}
}

func (a *chainApplier) remove(rel string) {
	target, err := archive.LocalPath(a.engine.root, rel)
	if err != nil {
		a.warn("delete %s: %v", rel, err)

		return
	}

	delete(a.present, rel)

	// A file behind a symlinked directory is outside the project tree.
	err = archive.CheckParents(a.engine.root, rel)
	if errors.Is(err, archive.ErrSymlinkParent) {
		return
	}

	if err != nil {
		a.warn("delete %s: %v", rel, err)

		return
	}

	a.dirs[filepath.Dir(target)] = struct{}{}

	err = os.Remove(target)
	if errors.Is(err, os.ErrNotExist) {
		return
	}

	if err != nil {
		a.warn("delete %s: %v", rel, err)

		return
	}

	a.deleted++
}

// pruneEmptyDirs removes directories emptied by deletions, deepest first,
// walking up until a non-empty directory or the project root.
func (a *chainApplier) pruneEmptyDirs() {
	dirs := make([]string, 0, len(a.dirs))
	for dir := range a.dirs {
		dirs = append(dirs, dir)
	}

	slices.SortFunc(dirs, func(x, y string) int {
		return cmp.Or(
			cmp.Compare(strings.Count(y, string(filepath.Separator)), strings.Count(x, string(filepath.Separator))),
			strings.Compare(x, y),
		)
	})

	clear(a.dirs)

	root := a.engine.root

	for _, dir := range dirs {
		for dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)) {
			entries, err := os.ReadDir(dir)
			if err != nil || len(entries) > 0 {
				break
			}

			err = os.Remove(dir)
			if err != nil {
				a.warn("remove empty dir %s: %v", dir, err)

				break
			}

			dir = filepath.Dir(dir)
		}
	}
}

// verify compares the restored files with the target fingerprints.
func (a *chainApplier) verify(target *Checkpoint) {
	set, err := a.engine.hasher.Hash(a.ctx, a.engine.root, target.Files)
	if err != nil {
		a.warn("verify: %v", err)

		return
	}

	for _, path := range target.Files {
		entry, ok := set[path]

		switch {
		case !ok:
			a.warn("verify %s: missing after restore", path)
		case entry.Hash != target.FileHashes[path]:
			a.warn("verify %s: content differs from checkpoint", path)
		}
	}
}

func (a *chainApplier) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	a.warnings = append(a.warnings, msg)
	a.engine.logger.WarnContext(a.ctx, "restore: "+msg)
}

func setOf(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		set[path] = struct{}{}
	}

	return set
}
