package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rewind/pkg/archive"
	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
)

// diffContextLines is the number of unchanged lines shown around a change.
const diffContextLines = 3

// binarySniffLength is how many leading bytes are scanned for a NUL byte.
const binarySniffLength = 8000

type diffCommand struct {
	global *globalOptions
}

func newDiffCommand(global *globalOptions) *cobra.Command {
	dc := &diffCommand{global: global}

	return &cobra.Command{
		Use:   "diff <name> [paths...]",
		Short: "Compare working files with a checkpoint",
		Long: `Print a line diff between the content captured by a checkpoint and the
working tree. Without paths, every file that differs is shown.`,
		Args: cobra.MinimumNArgs(1),
		RunE: dc.run,
	}
}

func (dc *diffCommand) run(cmd *cobra.Command, args []string) error {
	name := args[0]

	return dc.global.withSession(cmd, sessionOptions{}, func(ctx context.Context, s *session) error {
		paths := slices.Clone(args[1:])

		if len(paths) == 0 {
			changes, err := s.engine.ChangesSince(ctx, name)
			if err != nil {
				return err
			}

			paths = append(paths, changes.Added...)
			paths = append(paths, changes.Modified...)
			paths = append(paths, changes.Deleted...)
			slices.Sort(paths)
		}

		out := cmd.OutOrStdout()

		for _, path := range paths {
			err := dc.diffFile(ctx, out, s, name, filepath.ToSlash(path))
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func (dc *diffCommand) diffFile(ctx context.Context, w io.Writer, s *session, name, path string) error {
	before, err := s.engine.ReadFile(ctx, name, path)
	if err != nil && !errors.Is(err, checkpoint.ErrFileNotTracked) {
		return err
	}

	local, err := archive.LocalPath(s.root, path)
	if err != nil {
		return err
	}

	after, err := os.ReadFile(local)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if string(before) == string(after) {
		return nil
	}

	fmt.Fprintf(w, "--- %s/%s\n+++ %s\n", name, path, path)

	if isBinary(before) || isBinary(after) {
		warnColor.Fprintln(w, "Binary files differ")

		return nil
	}

	writeLineDiff(w, string(before), string(after))

	return nil
}

// writeLineDiff renders a line-level diff with diffContextLines of context
// around each change.
func writeLineDiff(w io.Writer, before, after string) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for i, d := range diffs {
		body := splitLines(d.Text)

		switch d.Type {
		case diffmatchpatch.DiffInsert:
			for _, line := range body {
				okColor.Fprintf(w, "+%s\n", line)
			}
		case diffmatchpatch.DiffDelete:
			for _, line := range body {
				errColor.Fprintf(w, "-%s\n", line)
			}
		case diffmatchpatch.DiffEqual:
			writeContext(w, body, i > 0, i < len(diffs)-1)
		}
	}
}

func writeContext(w io.Writer, lines []string, afterChange, beforeChange bool) {
	head, tail := 0, 0
	if afterChange {
		head = diffContextLines
	}

	if beforeChange {
		tail = diffContextLines
	}

	if head+tail >= len(lines) {
		for _, line := range lines {
			fmt.Fprintf(w, " %s\n", line)
		}

		return
	}

	for _, line := range lines[:head] {
		fmt.Fprintf(w, " %s\n", line)
	}

	infoColor.Fprintf(w, "@@ %d unchanged lines @@\n", len(lines)-head-tail)

	for _, line := range lines[len(lines)-tail:] {
		fmt.Fprintf(w, " %s\n", line)
	}
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}

	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// isBinary reports content with a NUL byte near the start, as git does.
func isBinary(data []byte) bool {
	return bytes.IndexByte(data[:min(len(data), binarySniffLength)], 0) >= 0
}
