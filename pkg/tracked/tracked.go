// Package tracked decides which project files are captured by checkpoints.
package tracked

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Lister enumerates tracked files of a project.
// Implementations return sorted, slash-separated paths relative to root.
type Lister interface {
	List(ctx context.Context, root string) ([]string, error)
}

// ListerFunc adapts a function to the Lister interface.
type ListerFunc func(ctx context.Context, root string) ([]string, error)

// List implements Lister.
func (f ListerFunc) List(ctx context.Context, root string) ([]string, error) {
	return f(ctx, root)
}

// DefaultIgnore are the patterns ignored in every project.
var DefaultIgnore = []string{
	".git/",
	".rewind/",
	".hg/",
	".svn/",
	"node_modules/",
	"__pycache__/",
	".venv/",
	"venv/",
	".idea/",
	".vscode/",
	".DS_Store",
	"*.swp",
	"*.tmp",
	"*~",
}

// ErrNotDirectory is returned when the project root is not a directory.
var ErrNotDirectory = errors.New("project root is not a directory")

// GitignoreLister lists regular files that are not excluded by its patterns
// or, when enabled, by the project's .gitignore files.
type GitignoreLister struct {
	patterns     []string
	useGitignore bool
	logger       *slog.Logger
}

// Option configures a GitignoreLister.
type Option func(*GitignoreLister)

// WithPatterns replaces the base ignore patterns (gitignore syntax).
func WithPatterns(patterns []string) Option {
	return func(l *GitignoreLister) {
		l.patterns = slices.Clone(patterns)
	}
}

// WithExtraPatterns appends ignore patterns to the base set.
func WithExtraPatterns(patterns ...string) Option {
	return func(l *GitignoreLister) {
		l.patterns = append(l.patterns, patterns...)
	}
}

// WithGitignore toggles reading .gitignore and .git/info/exclude files.
func WithGitignore(enabled bool) Option {
	return func(l *GitignoreLister) {
		l.useGitignore = enabled
	}
}

// WithLogger sets the logger used for skipped entries.
func WithLogger(logger *slog.Logger) Option {
	return func(l *GitignoreLister) {
		l.logger = logger
	}
}

// NewGitignoreLister creates a lister with DefaultIgnore patterns and
// .gitignore support enabled.
func NewGitignoreLister(opts ...Option) *GitignoreLister {
	l := &GitignoreLister{
		patterns:     slices.Clone(DefaultIgnore),
		useGitignore: true,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Matcher builds the ignore matcher for root.
func (l *GitignoreLister) Matcher(root string) (gitignore.Matcher, error) {
	patterns := make([]gitignore.Pattern, 0, len(l.patterns))

	for _, raw := range l.patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		patterns = append(patterns, gitignore.ParsePattern(raw, nil))
	}

	if l.useGitignore {
		fromFiles, err := gitignore.ReadPatterns(osfs.New(root), nil)
		if err != nil {
			return nil, fmt.Errorf("read gitignore patterns: %w", err)
		}

		patterns = append(patterns, fromFiles...)
	}

	return gitignore.NewMatcher(patterns), nil
}

// List implements Lister.
func (l *GitignoreLister) List(ctx context.Context, root string) ([]string, error) {
	matcher, err := l.Matcher(root)
	if err != nil {
		return nil, err
	}

	var files []string

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == root {
				return err
			}

			l.logger.DebugContext(ctx, "tracked: skipping unreadable entry",
				slog.String("path", path), slog.String("error", err.Error()))

			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}

			return nil
		}

		if path == root {
			if !entry.IsDir() {
				return fmt.Errorf("%w: %s", ErrNotDirectory, root)
			}

			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return fmt.Errorf("relative path: %w", relErr)
		}

		parts := strings.Split(filepath.ToSlash(rel), "/")

		if entry.IsDir() {
			if matcher.Match(parts, true) {
				return fs.SkipDir
			}

			return nil
		}

		if !entry.Type().IsRegular() || matcher.Match(parts, false) {
			return nil
		}

		files = append(files, filepath.ToSlash(rel))

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("list tracked files: %w", walkErr)
	}

	slices.Sort(files)

	return files, nil
}
