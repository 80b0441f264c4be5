// Package persist reads and writes small documents next to checkpoint
// payloads. Writes go to a temporary sibling that is synced and renamed
// into place, so a reader sees either the old document or the new one.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	docPerm     = 0o644
	tempPattern = ".tmp-*"
)

// Codec serializes documents of any type.
type Codec interface {
	Encode(w io.Writer, doc any) error
	Decode(r io.Reader, doc any) error
	// Extension is appended to document basenames, e.g. ".json".
	Extension() string
}

// JSONCodec encodes documents as JSON. An empty Indent writes compact JSON.
type JSONCodec struct {
	Indent string
}

// NewJSONCodec returns a codec that indents with two spaces.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: "  "}
}

// Encode implements Codec.
func (c *JSONCodec) Encode(w io.Writer, doc any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", c.Indent)

	err := enc.Encode(doc)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec. Unknown fields are ignored.
func (c *JSONCodec) Decode(r io.Reader, doc any) error {
	err := json.NewDecoder(r).Decode(doc)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.
func (c *JSONCodec) Extension() string {
	return ".json"
}

// WriteFile encodes doc into path atomically.
func WriteFile(path string, codec Codec, doc any) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), tempPattern)
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}

	defer func() {
		if err == nil {
			return
		}

		removeErr := os.Remove(tmp.Name())
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			err = errors.Join(err, removeErr)
		}
	}()

	err = codec.Encode(tmp, doc)
	if err == nil {
		err = tmp.Sync()
	}

	closeErr := tmp.Close()

	err = errors.Join(err, closeErr)
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}

	err = os.Chmod(tmp.Name(), docPerm)
	if err != nil {
		return fmt.Errorf("chmod %s: %w", filepath.Base(path), err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		return fmt.Errorf("publish %s: %w", filepath.Base(path), err)
	}

	return nil
}

// ReadFile decodes the document at path into doc, which must be a pointer.
func ReadFile(path string, codec Codec, doc any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer file.Close()

	err = codec.Decode(file, doc)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	return nil
}
