package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Writer appends project files to a compressed tar archive on disk.
type Writer struct {
	file  *os.File
	comp  io.WriteCloser
	tw    *tar.Writer
	files int
	bytes int64
}

// Create opens a new archive at path using codec. Level only applies to zstd.
func Create(path string, codec Codec, level int) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	comp, err := codec.compressor(file, level)
	if err != nil {
		file.Close()

		return nil, err
	}

	return &Writer{file: file, comp: comp, tw: tar.NewWriter(comp)}, nil
}

// AddFile copies root/rel into the archive under the slash-separated name rel.
// It returns the number of content bytes written.
func (w *Writer) AddFile(root, rel string) (int64, error) {
	src, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", rel, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", rel, err)
	}

	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s", ErrNotRegular, rel)
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     rel,
		Mode:     int64(info.Mode().Perm()),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}

	err = w.tw.WriteHeader(hdr)
	if err != nil {
		return 0, fmt.Errorf("write header %s: %w", rel, err)
	}

	// A file that shrinks while being copied fails with io.EOF; one that
	// grows is truncated to the header size.
	written, err := io.CopyN(w.tw, src, info.Size())
	if err != nil {
		return written, fmt.Errorf("copy %s: %w", rel, err)
	}

	w.files++
	w.bytes += written

	return written, nil
}

// Files returns the number of files added so far.
func (w *Writer) Files() int {
	return w.files
}

// Bytes returns the number of uncompressed content bytes added so far.
func (w *Writer) Bytes() int64 {
	return w.bytes
}

// Close flushes the tar stream and compressor, syncs, and closes the file.
func (w *Writer) Close() error {
	tarErr := w.tw.Close()
	compErr := w.comp.Close()

	var syncErr error
	if tarErr == nil && compErr == nil {
		syncErr = w.file.Sync()
	}

	closeErr := w.file.Close()

	err := errors.Join(tarErr, compErr, syncErr, closeErr)
	if err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	return nil
}
