package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Sentinel errors for archive reading.
var (
	// ErrNotRegular indicates a non-regular file was offered to or found in an archive.
	ErrNotRegular = errors.New("not a regular file")
	// ErrUnsafePath indicates an entry name that would escape the destination.
	ErrUnsafePath = errors.New("unsafe archive entry path")
	// ErrEntryNotFound indicates ReadFile did not find the requested entry.
	ErrEntryNotFound = errors.New("archive entry not found")
	// ErrSymlinkParent indicates a path whose parent directory is a symbolic link.
	ErrSymlinkParent = errors.New("parent directory is a symbolic link")
	// ErrParentNotDir indicates a path whose parent exists but is not a directory.
	ErrParentNotDir = errors.New("parent is not a directory")
)

// tempFilePattern is the pattern for files staged during extraction.
const tempFilePattern = ".rewind-extract-*"

// dirPerm is the permission for directories created during extraction.
const dirPerm = 0o755

// ExtractStats summarizes an extraction.
type ExtractStats struct {
	// Written lists entries written to the destination.
	Written []string
	// Failed lists entries that could not be written.
	Failed []string
	// ReplacedLinks lists symbolic links that stood where an entry needed a
	// directory and were replaced by one.
	ReplacedLinks []string
}

// FileErrorFunc receives per-entry failures during extraction.
type FileErrorFunc func(rel string, err error)

// Extract writes every entry of the archive at path into dest, replacing
// existing files. Per-entry failures are reported to onError and skipped.
// A returned error means the archive itself could not be read; stats still
// describe the entries processed before the failure.
func Extract(path string, codec Codec, dest string, onError FileErrorFunc) (ExtractStats, error) {
	var stats ExtractStats

	err := walk(path, codec, func(hdr *tar.Header, body io.Reader) (bool, error) {
		replaced, writeErr := writeEntry(dest, hdr, body)
		stats.ReplacedLinks = append(stats.ReplacedLinks, replaced...)

		if writeErr != nil {
			stats.Failed = append(stats.Failed, hdr.Name)

			if onError != nil {
				onError(hdr.Name, writeErr)
			}

			return true, nil
		}

		stats.Written = append(stats.Written, hdr.Name)

		return true, nil
	})

	return stats, err
}

// ReadFile returns the content of the entry named rel.
func ReadFile(path string, codec Codec, rel string) ([]byte, error) {
	var content []byte

	found := false

	err := walk(path, codec, func(hdr *tar.Header, body io.Reader) (bool, error) {
		if hdr.Name != rel {
			return true, nil
		}

		data, readErr := io.ReadAll(body)
		if readErr != nil {
			return false, fmt.Errorf("read entry %s: %w", rel, readErr)
		}

		content = data
		found = true

		return false, nil
	})
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, rel)
	}

	return content, nil
}

// Entries lists the entry names of the archive in stored order.
func Entries(path string, codec Codec) ([]string, error) {
	var names []string

	err := walk(path, codec, func(hdr *tar.Header, _ io.Reader) (bool, error) {
		names = append(names, hdr.Name)

		return true, nil
	})
	if err != nil {
		return nil, err
	}

	return names, nil
}

// entryFunc handles one archive entry; returning false stops the walk.
type entryFunc func(hdr *tar.Header, body io.Reader) (bool, error)

func walk(path string, codec Codec, fn entryFunc) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	decomp, err := codec.decompressor(file)
	if err != nil {
		return err
	}
	defer decomp.Close()

	tr := tar.NewReader(decomp)

	for {
		hdr, nextErr := tr.Next()
		if errors.Is(nextErr, io.EOF) {
			return nil
		}

		if nextErr != nil {
			return fmt.Errorf("read archive %s: %w", filepath.Base(path), nextErr)
		}

		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		more, fnErr := fn(hdr, tr)
		if fnErr != nil {
			return fnErr
		}

		if !more {
			return nil
		}
	}
}

// LocalPath converts a slash-separated entry name into a path under root,
// rejecting names that are absolute or escape root.
func LocalPath(root, rel string) (string, error) {
	local := filepath.FromSlash(rel)
	if rel == "" || !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, rel)
	}

	return filepath.Join(root, local), nil
}

// CheckParents returns ErrSymlinkParent when an existing parent directory of
// rel under root is a symbolic link. Missing parents are not an error.
func CheckParents(root, rel string) error {
	dir := root

	for _, part := range parentParts(rel) {
		dir = filepath.Join(dir, part)

		info, err := os.Lstat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("stat parent: %w", err)
		}

		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s", ErrSymlinkParent, relTo(root, dir))
		}
	}

	return nil
}

// makeParents creates the parent directories of rel under dest one level at
// a time. A symbolic link in the way is removed and replaced by a directory,
// so nothing is written through it; the replaced links are returned.
func makeParents(dest, rel string) ([]string, error) {
	var replaced []string

	dir := dest

	for _, part := range parentParts(rel) {
		dir = filepath.Join(dir, part)

		info, err := os.Lstat(dir)

		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return replaced, fmt.Errorf("stat parent: %w", err)
		case info.IsDir():
			continue
		case info.Mode()&fs.ModeSymlink != 0:
			err = os.Remove(dir)
			if err != nil {
				return replaced, fmt.Errorf("remove symlink %s: %w", relTo(dest, dir), err)
			}

			replaced = append(replaced, relTo(dest, dir))
		default:
			return replaced, fmt.Errorf("%w: %s", ErrParentNotDir, relTo(dest, dir))
		}

		err = os.Mkdir(dir, dirPerm)
		if err != nil {
			return replaced, fmt.Errorf("create parent dir: %w", err)
		}
	}

	return replaced, nil
}

// parentParts splits the directory part of a slash-separated name.
func parentParts(rel string) []string {
	dir := path.Dir(rel)
	if dir == "." {
		return nil
	}

	return strings.Split(dir, "/")
}

func relTo(root, target string) string {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return target
	}

	return filepath.ToSlash(rel)
}

func writeEntry(dest string, hdr *tar.Header, body io.Reader) (replaced []string, err error) {
	target, err := LocalPath(dest, hdr.Name)
	if err != nil {
		return nil, err
	}

	replaced, err = makeParents(dest, hdr.Name)
	if err != nil {
		return replaced, err
	}

	dir := filepath.Dir(target)

	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return replaced, fmt.Errorf("create temp file: %w", err)
	}

	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	_, err = io.Copy(tmp, body)
	if err != nil {
		tmp.Close()

		return replaced, fmt.Errorf("write content: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return replaced, fmt.Errorf("close temp file: %w", err)
	}

	err = os.Chmod(tmpName, os.FileMode(hdr.Mode).Perm())
	if err != nil {
		return replaced, fmt.Errorf("chmod: %w", err)
	}

	err = os.Rename(tmpName, target)
	if err != nil {
		return replaced, fmt.Errorf("replace file: %w", err)
	}

	if !hdr.ModTime.IsZero() {
		// Best effort: content is already in place.
		_ = os.Chtimes(target, hdr.ModTime, hdr.ModTime)
	}

	return replaced, nil
}
