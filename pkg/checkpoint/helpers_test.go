package checkpoint_test

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
	"github.com/Sumatoshi-tech/rewind/pkg/observability"
)

type fakeClock struct {
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// testPolicy disables cooldown and retention so tests opt into them.
func testPolicy() checkpoint.Policy {
	policy := checkpoint.DefaultPolicy()
	policy.Cooldown = 0
	policy.Retention = checkpoint.RetentionPolicy{}

	return policy
}

type fixture struct {
	root   string
	clock  *fakeClock
	engine *checkpoint.Engine
}

func newFixture(t *testing.T, policy checkpoint.Policy, opts ...checkpoint.Option) *fixture {
	t.Helper()

	root := t.TempDir()
	clock := newClock()

	opts = append([]checkpoint.Option{
		checkpoint.WithClock(clock.Now),
		checkpoint.WithLogger(observability.Discard()),
	}, opts...)

	engine, err := checkpoint.NewEngine(root, policy, opts...)
	require.NoError(t, err)

	return &fixture{root: root, clock: clock, engine: engine}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()

	path := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func (f *fixture) remove(t *testing.T, rel string) {
	t.Helper()

	require.NoError(t, os.RemoveAll(filepath.Join(f.root, filepath.FromSlash(rel))))
}

// create advances the clock by a second and creates a checkpoint.
func (f *fixture) create(t *testing.T, opts checkpoint.CreateOptions) *checkpoint.CreateResult {
	t.Helper()

	f.clock.Advance(time.Second)

	result, err := f.engine.Create(context.Background(), opts)
	require.NoError(t, err)

	return result
}

func (f *fixture) mustCreate(t *testing.T, description string) *checkpoint.Checkpoint {
	t.Helper()

	result := f.create(t, checkpoint.CreateOptions{Description: description})
	require.Equal(t, checkpoint.OutcomeCreated, result.Outcome)

	return result.Checkpoint
}

// tree returns every file under the project root outside the store.
func (f *fixture) tree(t *testing.T) map[string]string {
	t.Helper()

	files := map[string]string{}

	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(f.root, path)
		if relErr != nil {
			return relErr
		}

		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == ".rewind" {
				return fs.SkipDir
			}

			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}

		files[rel] = string(data)

		return nil
	})
	require.NoError(t, err)

	return files
}

// dirs returns every directory under the project root outside the store.
func (f *fixture) dirs(t *testing.T) []string {
	t.Helper()

	var dirs []string

	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() || path == f.root {
			return nil
		}

		rel, _ := filepath.Rel(f.root, path)
		if strings.HasPrefix(filepath.ToSlash(rel), ".rewind") {
			return fs.SkipDir
		}

		dirs = append(dirs, filepath.ToSlash(rel))

		return nil
	})
	require.NoError(t, err)

	return dirs
}
