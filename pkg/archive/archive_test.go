package archive_test

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rewind/pkg/archive"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func buildArchive(t *testing.T, codec archive.Codec, root string, rels ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "payload"+codec.Extension())

	w, err := archive.Create(path, codec, 0)
	require.NoError(t, err)

	for _, rel := range rels {
		_, addErr := w.AddFile(root, rel)
		require.NoError(t, addErr)
	}

	require.NoError(t, w.Close())

	return path
}

func TestParseCodec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    archive.Codec
		wantErr bool
	}{
		{in: "", want: archive.CodecLZ4},
		{in: "lz4", want: archive.CodecLZ4},
		{in: " ZSTD ", want: archive.CodecZstd},
		{in: "gzip", wantErr: true},
	}

	for _, tt := range tests {
		got, err := archive.ParseCodec(tt.in)
		if tt.wantErr {
			require.ErrorIs(t, err, archive.ErrUnknownCodec)

			continue
		}

		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestArchive_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, codec := range []archive.Codec{archive.CodecLZ4, archive.CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			t.Parallel()

			src := t.TempDir()
			writeFile(t, src, "a.txt", "alpha")
			writeFile(t, src, "nested/deep/b.txt", "beta beta")

			path := buildArchive(t, codec, src, "a.txt", "nested/deep/b.txt")

			names, err := archive.Entries(path, codec)
			require.NoError(t, err)
			assert.Equal(t, []string{"a.txt", "nested/deep/b.txt"}, names)

			dest := t.TempDir()
			writeFile(t, dest, "a.txt", "stale content")

			stats, err := archive.Extract(path, codec, dest, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"a.txt", "nested/deep/b.txt"}, stats.Written)
			assert.Empty(t, stats.Failed)

			got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
			require.NoError(t, err)
			assert.Equal(t, "alpha", string(got))

			got, err = os.ReadFile(filepath.Join(dest, "nested", "deep", "b.txt"))
			require.NoError(t, err)
			assert.Equal(t, "beta beta", string(got))
		})
	}
}

func TestArchive_ReadFile(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, src, "one.txt", "1")
	writeFile(t, src, "two.txt", "2")

	path := buildArchive(t, archive.CodecLZ4, src, "one.txt", "two.txt")

	data, err := archive.ReadFile(path, archive.CodecLZ4, "two.txt")
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))

	_, err = archive.ReadFile(path, archive.CodecLZ4, "three.txt")
	assert.ErrorIs(t, err, archive.ErrEntryNotFound)
}

func TestWriter_AddFileMissing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "x.tar.lz4")

	w, err := archive.Create(path, archive.CodecLZ4, 0)
	require.NoError(t, err)

	_, err = w.AddFile(t.TempDir(), "ghost.txt")
	require.Error(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 0, w.Files())
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "evil.tar.lz4")

	f, err := os.Create(path)
	require.NoError(t, err)

	zw := lz4.NewWriter(f)
	tw := tar.NewWriter(zw)

	for _, name := range []string{"../escape.txt", "ok.txt"} {
		require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: name, Mode: 0o644, Size: 1}))
		_, err = tw.Write([]byte("x"))
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(t.TempDir(), "dest")
	require.NoError(t, os.MkdirAll(dest, 0o750))

	var failed []string

	stats, err := archive.Extract(path, archive.CodecLZ4, dest, func(rel string, fileErr error) {
		assert.ErrorIs(t, fileErr, archive.ErrUnsafePath)

		failed = append(failed, rel)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"../escape.txt"}, failed)
	assert.Equal(t, []string{"ok.txt"}, stats.Written)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "escape.txt"))
}

func TestLocalPath(t *testing.T) {
	t.Parallel()

	got, err := archive.LocalPath("/root", "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/root", "a", "b.txt"), got)

	for _, bad := range []string{"", "/abs", "../x", "a/../../x"} {
		_, err = archive.LocalPath("/root", bad)
		assert.ErrorIs(t, err, archive.ErrUnsafePath, bad)
	}
}

func TestExtract_ReplacesSymlinkedParent(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, src, "nested/deep/b.txt", "beta")

	path := buildArchive(t, archive.CodecLZ4, src, "nested/deep/b.txt")

	dest := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(dest, "nested")))

	stats, err := archive.Extract(path, archive.CodecLZ4, dest, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"nested/deep/b.txt"}, stats.Written)
	assert.Equal(t, []string{"nested"}, stats.ReplacedLinks)
	assert.NoDirExists(t, filepath.Join(outside, "deep"))
	assert.FileExists(t, filepath.Join(dest, "nested", "deep", "b.txt"))
}

func TestExtract_ParentIsFile(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, src, "dir/x.txt", "x")

	path := buildArchive(t, archive.CodecLZ4, src, "dir/x.txt")

	dest := t.TempDir()
	writeFile(t, dest, "dir", "i am a file")

	var failed []error

	stats, err := archive.Extract(path, archive.CodecLZ4, dest, func(_ string, fileErr error) {
		failed = append(failed, fileErr)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"dir/x.txt"}, stats.Failed)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], archive.ErrParentNotDir)
}

func TestCheckParents(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "real/a.txt", "a")
	require.NoError(t, os.Symlink(t.TempDir(), filepath.Join(root, "link")))

	require.NoError(t, archive.CheckParents(root, "top.txt"))
	require.NoError(t, archive.CheckParents(root, "real/a.txt"))
	require.NoError(t, archive.CheckParents(root, "missing/deeper/x.txt"))
	require.ErrorIs(t, archive.CheckParents(root, "link/a.txt"), archive.ErrSymlinkParent)
	require.ErrorIs(t, archive.CheckParents(root, "link/sub/a.txt"), archive.ErrSymlinkParent)
}
