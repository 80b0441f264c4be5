package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rewind/cmd/rewind/commands"
	"github.com/Sumatoshi-tech/rewind/pkg/changelog"
	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
)

const testConfig = `create:
  cooldown: 0s
logging:
  level: error
`

type project struct {
	root   string
	config string
}

func newProject(t *testing.T, configBody string) *project {
	t.Helper()

	root := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "rewind.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configBody), 0o600))

	return &project{root: root, config: cfgPath}
}

func (p *project) write(t *testing.T, rel, content string) {
	t.Helper()

	path := filepath.Join(p.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func (p *project) read(t *testing.T, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(p.root, filepath.FromSlash(rel)))
	require.NoError(t, err)

	return string(data)
}

func (p *project) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := commands.NewRootCommand()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--no-color", "--config", p.config, "-C", p.root}, args...))

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func (p *project) mustRun(t *testing.T, args ...string) string {
	t.Helper()

	out, err := p.run(t, args...)
	require.NoError(t, err, out)

	return out
}

func (p *project) list(t *testing.T) []checkpoint.Summary {
	t.Helper()

	var summaries []checkpoint.Summary

	require.NoError(t, json.Unmarshal([]byte(p.mustRun(t, "list", "--format", "json")), &summaries))

	return summaries
}

func TestCreateListRestore(t *testing.T) {
	t.Parallel()

	p := newProject(t, testConfig)
	p.write(t, "a.txt", "one\n")
	p.write(t, "src/b.txt", "bee\n")

	out := p.mustRun(t, "create", "base", "-d", "first capture")
	assert.Contains(t, out, "Created full checkpoint base_")

	p.write(t, "a.txt", "two\n")

	out = p.mustRun(t, "create")
	assert.Contains(t, out, "Created incremental checkpoint checkpoint_")

	summaries := p.list(t)
	require.Len(t, summaries, 2)
	assert.Equal(t, checkpoint.KindIncremental, summaries[0].Kind)
	assert.Equal(t, 2, summaries[0].ChainLength)
	assert.True(t, summaries[0].Restorable)

	base := summaries[1].Name
	assert.Equal(t, "first capture", summaries[1].Description)

	table := p.mustRun(t, "list")
	assert.Contains(t, table, base)
	assert.Contains(t, table, "Total: 2 checkpoints")

	diff := p.mustRun(t, "diff", base, "a.txt")
	assert.Contains(t, diff, "-one")
	assert.Contains(t, diff, "+two")

	assert.Contains(t, p.mustRun(t, "diff", base), "+++ a.txt")

	out = p.mustRun(t, "restore", base)
	assert.Contains(t, out, "Restored "+base)
	assert.Contains(t, out, "backup: pre_restore_")
	assert.Equal(t, "one\n", p.read(t, "a.txt"))

	assert.Len(t, p.list(t), 3)

	var entries []changelog.Entry

	require.NoError(t, json.Unmarshal([]byte(p.mustRun(t, "log", "--format", "json")), &entries))

	ops := make([]changelog.Op, 0, len(entries))
	for _, entry := range entries {
		ops = append(ops, entry.Op)
	}

	assert.Equal(t, []changelog.Op{changelog.OpRestore, changelog.OpBackup, changelog.OpCreate, changelog.OpCreate}, ops)
}

func TestCreate_Outcomes(t *testing.T) {
	t.Parallel()

	p := newProject(t, testConfig)

	assert.Contains(t, p.mustRun(t, "create"), "No tracked files")

	p.write(t, "a.txt", "x")
	p.mustRun(t, "create")

	assert.Contains(t, p.mustRun(t, "create"), "No changes since the latest checkpoint")
	assert.Contains(t, p.mustRun(t, "create", "--force", "--full"), "Created full checkpoint")

	cooled := newProject(t, "create:\n  cooldown: 1h\n")
	cooled.write(t, "a.txt", "x")
	cooled.mustRun(t, "create")
	cooled.write(t, "a.txt", "y")

	assert.Contains(t, cooled.mustRun(t, "create"), "too recent")
}

func TestChanges(t *testing.T) {
	t.Parallel()

	p := newProject(t, testConfig)
	p.write(t, "a.txt", "x")
	p.mustRun(t, "create")

	assert.Contains(t, p.mustRun(t, "changes"), "No changes")

	p.write(t, "a.txt", "y")
	p.write(t, "new.txt", "n")

	out := p.mustRun(t, "changes")
	assert.Contains(t, out, "+ new.txt")
	assert.Contains(t, out, "~ a.txt")

	var changes checkpoint.ChangeSet

	require.NoError(t, json.Unmarshal([]byte(p.mustRun(t, "changes", "--format", "json")), &changes))
	assert.Equal(t, []string{"new.txt"}, changes.Added)

	assert.Contains(t, p.mustRun(t, "changes", "--format", "yaml"), "modified:\n    - a.txt")
}

func TestPrune(t *testing.T) {
	t.Parallel()

	p := newProject(t, "create:\n  cooldown: 0s\nretention:\n  max_checkpoints: 1\nincremental:\n  enabled: false\n")
	p.write(t, "a.txt", "1")
	p.mustRun(t, "create")
	p.write(t, "a.txt", "2")
	p.mustRun(t, "create")

	assert.Len(t, p.list(t), 1)
	assert.Contains(t, p.mustRun(t, "prune"), "Nothing to evict")
}

func TestErrors(t *testing.T) {
	t.Parallel()

	p := newProject(t, testConfig)

	_, err := p.run(t, "list", "--format", "xml")
	require.ErrorIs(t, err, commands.ErrUnknownFormat)

	_, err = p.run(t, "restore", "missing")
	require.ErrorIs(t, err, checkpoint.ErrNotFound)

	_, err = p.run(t, "restore")
	require.Error(t, err)

	disabled := newProject(t, "changelog:\n  enabled: false\n")

	_, err = disabled.run(t, "log")
	require.ErrorIs(t, err, commands.ErrChangelogDisabled)

	bad := newProject(t, "store:\n  codec: gzip\n")

	_, err = bad.run(t, "list")
	require.Error(t, err)
}

func TestDiff_BinaryAndUnchanged(t *testing.T) {
	t.Parallel()

	p := newProject(t, testConfig)
	p.write(t, "blob.bin", "\x00\x01\x02")
	p.write(t, "same.txt", "steady\n")

	p.mustRun(t, "create", "bin")
	name := p.list(t)[0].Name

	p.write(t, "blob.bin", "\x00\x03\x04")

	out := p.mustRun(t, "diff", name, "blob.bin")
	assert.Contains(t, out, "+++ blob.bin")
	assert.Contains(t, out, "Binary files differ")

	assert.Empty(t, p.mustRun(t, "diff", name, "same.txt"))
}
