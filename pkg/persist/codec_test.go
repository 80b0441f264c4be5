package persist_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rewind/pkg/persist"
)

type doc struct {
	Name  string            `json:"name"`
	Files map[string]string `json:"files,omitempty"`
}

func TestJSONCodec_Layout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		codec    *persist.JSONCodec
		newlines int
	}{
		{name: "indented", codec: persist.NewJSONCodec(), newlines: 6},
		{name: "compact", codec: &persist.JSONCodec{}, newlines: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			require.NoError(t, tt.codec.Encode(&buf, doc{Name: "x", Files: map[string]string{"a": "1"}}))
			assert.Equal(t, tt.newlines, strings.Count(buf.String(), "\n"), buf.String())

			var back doc

			require.NoError(t, tt.codec.Decode(&buf, &back))
			assert.Equal(t, "1", back.Files["a"])
		})
	}
}

func TestJSONCodec_IgnoresUnknownFields(t *testing.T) {
	t.Parallel()

	var got doc

	require.NoError(t, persist.NewJSONCodec().Decode(strings.NewReader(`{"name":"n","future":true}`), &got))
	assert.Equal(t, "n", got.Name)
}

func TestJSONCodec_Errors(t *testing.T) {
	t.Parallel()

	codec := persist.NewJSONCodec()

	err := codec.Encode(&bytes.Buffer{}, make(chan int))
	require.ErrorContains(t, err, "json encode")

	var got doc

	err = codec.Decode(strings.NewReader("{broken"), &got)
	require.ErrorContains(t, err, "json decode")
}

func TestWriteFile_ReplacesAtomically(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	codec := persist.NewJSONCodec()

	require.NoError(t, persist.WriteFile(path, codec, doc{Name: "first"}))
	require.NoError(t, persist.WriteFile(path, codec, doc{Name: "second"}))

	var got doc

	require.NoError(t, persist.ReadFile(path, codec, &got))
	assert.Equal(t, "second", got.Name)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "manifest.json", entries[0].Name())
}

func TestWriteFile_FailureLeavesNoTemp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	err := persist.WriteFile(filepath.Join(dir, "bad.json"), persist.NewJSONCodec(), make(chan int))
	require.Error(t, err)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)

	err = persist.WriteFile(filepath.Join(dir, "missing", "x.json"), persist.NewJSONCodec(), doc{})
	assert.Error(t, err)
}

func TestReadFile_Missing(t *testing.T) {
	t.Parallel()

	var got doc

	err := persist.ReadFile(filepath.Join(t.TempDir(), "absent.json"), persist.NewJSONCodec(), &got)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
