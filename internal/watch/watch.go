// Package watch turns file system activity under a project into checkpoints.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
)

// DefaultDebounce is the quiet period that ends a burst of changes.
const DefaultDebounce = 2 * time.Second

// minRetry bounds how soon a create refused by the cooldown is retried.
const minRetry = 10 * time.Millisecond

// Checkpointer creates checkpoints. *checkpoint.Engine satisfies it.
type Checkpointer interface {
	Create(ctx context.Context, opts checkpoint.CreateOptions) (*checkpoint.CreateResult, error)
}

// ResultFunc observes the outcome of each debounced create.
type ResultFunc func(result *checkpoint.CreateResult, err error)

// Watcher recursively watches a project and creates a checkpoint after each
// burst of changes settles.
type Watcher struct {
	root     string
	target   Checkpointer
	debounce time.Duration
	matcher  gitignore.Matcher
	skip     []string
	onResult ResultFunc
	logger   *slog.Logger
	fs       *fsnotify.Watcher
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithMatcher sets the ignore matcher. Ignored paths neither trigger
// checkpoints nor get watched.
func WithMatcher(m gitignore.Matcher) Option {
	return func(w *Watcher) { w.matcher = m }
}

// WithSkipDirs excludes absolute directories such as the checkpoint store.
func WithSkipDirs(dirs ...string) Option {
	return func(w *Watcher) { w.skip = append(w.skip, dirs...) }
}

// WithResultFunc registers a callback for create outcomes.
func WithResultFunc(fn ResultFunc) Option {
	return func(w *Watcher) { w.onResult = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New creates a watcher for root. Call Run to start it.
func New(root string, target Checkpointer, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}

	w := &Watcher{
		root:     abs,
		target:   target,
		debounce: DefaultDebounce,
		matcher:  gitignore.NewMatcher(nil),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w.fs = fsw

	err = w.addTree(abs)
	if err != nil {
		fsw.Close()

		return nil, err
	}

	return w, nil
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	pending := 0

	for {
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}

			if !w.handle(event) {
				continue
			}

			pending++

			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}

			if errors.Is(err, fsnotify.ErrEventOverflow) {
				pending++

				timer.Reset(w.debounce)
			}

			w.logger.WarnContext(ctx, "watch: fsnotify error", slog.String("error", err.Error()))

		case <-timer.C:
			retry := w.checkpoint(ctx, pending)
			if retry > 0 {
				timer.Reset(retry)

				continue
			}

			pending = 0
		}
	}
}

// handle reports whether event counts as a project change. Newly created
// directories are added to the watch set.
func (w *Watcher) handle(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	info, statErr := os.Lstat(event.Name)
	isDir := statErr == nil && info.IsDir()

	if w.ignored(event.Name, isDir) {
		return false
	}

	if isDir && event.Has(fsnotify.Create) {
		err := w.addTree(event.Name)
		if err != nil {
			w.logger.Warn("watch: cannot watch new directory",
				slog.String("path", event.Name), slog.String("error", err.Error()))
		}
	}

	return true
}

// checkpoint creates a checkpoint for the accumulated changes. A positive
// result is the remaining cooldown; the changes stay pending until then.
func (w *Watcher) checkpoint(ctx context.Context, changes int) time.Duration {
	result, err := w.target.Create(ctx, checkpoint.CreateOptions{
		Description: fmt.Sprintf("auto: %d file events", changes),
	})

	switch {
	case err != nil:
		w.logger.ErrorContext(ctx, "watch: create checkpoint", slog.String("error", err.Error()))
	case result.Created():
		w.logger.InfoContext(ctx, "watch: checkpoint created",
			slog.String("checkpoint.name", result.Checkpoint.Name),
			slog.String("checkpoint.kind", string(result.Checkpoint.Kind)),
			slog.Int("checkpoint.changes", result.Changes.Len()))
	default:
		w.logger.DebugContext(ctx, "watch: checkpoint skipped", slog.String("outcome", string(result.Outcome)))
	}

	if w.onResult != nil {
		w.onResult(result, err)
	}

	if err != nil || result.Outcome != checkpoint.OutcomeTooRecent {
		return 0
	}

	return max(result.RetryAfter, minRetry)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("watch %s: %w", path, err)
			}

			return nil
		}

		if !entry.IsDir() {
			return nil
		}

		if path != w.root && w.ignored(path, true) {
			return fs.SkipDir
		}

		addErr := w.fs.Add(path)
		if addErr != nil {
			return fmt.Errorf("watch %s: %w", path, addErr)
		}

		return nil
	})
}

func (w *Watcher) ignored(path string, isDir bool) bool {
	for _, skip := range w.skip {
		if path == skip || strings.HasPrefix(path, skip+string(filepath.Separator)) {
			return true
		}
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil || !filepath.IsLocal(rel) {
		return true
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")

	// A path is ignored when any of its parent directories is.
	for i := 1; i < len(parts); i++ {
		if w.matcher.Match(parts[:i], true) {
			return true
		}
	}

	return w.matcher.Match(parts, isDir)
}
