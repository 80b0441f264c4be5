package persist

import "path/filepath"

// Persister stores one document of type T per directory under a fixed name.
type Persister[T any] struct {
	filename string
	codec    Codec
}

// NewPersister returns a persister for basename plus the codec's extension.
func NewPersister[T any](basename string, codec Codec) *Persister[T] {
	return &Persister[T]{filename: basename + codec.Extension(), codec: codec}
}

// Filename returns the document's file name within a directory.
func (p *Persister[T]) Filename() string {
	return p.filename
}

// Save writes doc into dir atomically.
func (p *Persister[T]) Save(dir string, doc *T) error {
	return WriteFile(filepath.Join(dir, p.filename), p.codec, doc)
}

// Load reads the document stored in dir.
func (p *Persister[T]) Load(dir string) (*T, error) {
	doc := new(T)

	err := ReadFile(filepath.Join(dir, p.filename), p.codec, doc)
	if err != nil {
		return nil, err
	}

	return doc, nil
}
