package extsort

import (
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Codec names a compression scheme applied to spilled sort runs (§6).
type Codec string

const (
	CodecNone   Codec = "none"
	CodecSnappy Codec = "snappy"
	CodecZlib   Codec = "zlib"
	CodecZstd   Codec = "zstd"
	// CodecLZ4 is served by github.com/klauspost/compress/s2, an
	// LZ4-class block compressor; no lz4 library is available, and s2
	// targets the same speed/ratio tradeoff.
	CodecLZ4 Codec = "lz4"
)

// nopWriteCloser adapts an io.Writer with no meaningful Close (the
// uncompressed CodecNone path) into an io.WriteCloser.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type nopReadCloser struct{ io.Reader }

func (nopReadCloser) Close() error { return nil }

// zstdReadCloser adapts *zstd.Decoder's argument-less Close into
// io.ReadCloser.
type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// newWriter wraps w so that writes are compressed per codec, at level
// (ignored by codecs that don't support tunable levels).
func newWriter(codec Codec, level int, w io.Writer) (io.WriteCloser, error) {
	switch codec {
	case CodecNone, "":
		return nopWriteCloser{w}, nil
	case CodecSnappy:
		return snappy.NewBufferedWriter(w), nil
	case CodecZlib:
		return zlib.NewWriterLevel(w, level)
	case CodecZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	case CodecLZ4:
		return s2.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("extsort: unknown compression codec %q", codec)
	}
}

// newReader wraps r to decompress data written by a writer created with
// the same codec.
func newReader(codec Codec, r io.Reader) (io.ReadCloser, error) {
	switch codec {
	case CodecNone, "":
		return nopReadCloser{r}, nil
	case CodecSnappy:
		return nopReadCloser{snappy.NewReader(r)}, nil
	case CodecZlib:
		return zlib.NewReader(r)
	case CodecZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{dec}, nil
	case CodecLZ4:
		return nopReadCloser{s2.NewReader(r)}, nil
	default:
		return nil, fmt.Errorf("extsort: unknown compression codec %q", codec)
	}
}
