// Package archive stores sets of project files as a single compressed tar stream.
package archive

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names a compression codec for archive payloads.
type Codec string

// Supported codecs.
const (
	CodecLZ4  Codec = "lz4"
	CodecZstd Codec = "zstd"
)

// DefaultZstdLevel is the zstd level used when none is configured.
const DefaultZstdLevel = 3

// ErrUnknownCodec is returned when a codec name is not supported.
var ErrUnknownCodec = errors.New("unknown archive codec")

// ParseCodec parses a codec name. The empty string selects lz4.
func ParseCodec(name string) (Codec, error) {
	switch Codec(strings.ToLower(strings.TrimSpace(name))) {
	case "", CodecLZ4:
		return CodecLZ4, nil
	case CodecZstd:
		return CodecZstd, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// Extension returns the file extension for an archive using this codec.
func (c Codec) Extension() string {
	switch c {
	case CodecZstd:
		return ".tar.zst"
	default:
		return ".tar.lz4"
	}
}

// String implements fmt.Stringer.
func (c Codec) String() string {
	return string(c)
}

// compressor wraps w with the codec's compressing writer.
func (c Codec) compressor(w io.Writer, level int) (io.WriteCloser, error) {
	switch c {
	case CodecLZ4, "":
		return lz4.NewWriter(w), nil
	case CodecZstd:
		if level <= 0 {
			level = DefaultZstdLevel
		}

		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}

		return enc, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, string(c))
	}
}

// decompressor wraps r with the codec's decompressing reader.
func (c Codec) decompressor(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CodecLZ4, "":
		return io.NopCloser(lz4.NewReader(r)), nil
	case CodecZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}

		return zstdReadCloser{dec}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, string(c))
	}
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()

	return nil
}
