package compression

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec identifies how a manifest dump is compressed on disk.
type Codec uint8

const (
	None Codec = iota
	Gzip
	Zstd
)

var ErrUnknownCodec = errors.New("unknown compression codec")

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec maps a Content-Encoding style name to a codec. The empty
// string and "identity" mean no compression.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "identity", "none":
		return None, nil
	case "gzip", "x-gzip":
		return Gzip, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// FromPath picks a codec from the file extension and returns the path with
// the compression suffix stripped, so callers can look at the inner format.
func FromPath(path string) (Codec, string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return Gzip, strings.TrimSuffix(path, filepath.Ext(path))
	case ".zst", ".zstd":
		return Zstd, strings.TrimSuffix(path, filepath.Ext(path))
	default:
		return None, path
	}
}

// NewReader wraps r with a decompressor for codec.
func NewReader(r io.Reader, codec Codec) (io.ReadCloser, error) {
	switch codec {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return gz, nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, codec)
	}
}

// Compress copies r into w using codec and returns the number of compressed
// bytes written.
func Compress(r io.Reader, w io.Writer, codec Codec) (int64, error) {
	switch codec {
	case None:
		return io.Copy(w, r)
	case Gzip:
		return CompressGzip(r, w)
	case Zstd:
		return CompressZstd(r, w)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownCodec, codec)
	}
}

// CompressGzip compresses r into w with gzip.
func CompressGzip(r io.Reader, w io.Writer) (int64, error) {
	counter := &countingWriter{w: w}
	gz := gzip.NewWriter(counter)

	if _, err := io.Copy(gz, r); err != nil {
		gz.Close()
		return 0, err
	}

	if err := gz.Close(); err != nil {
		return 0, err
	}

	return counter.n, nil
}

// CompressZstd compresses r into w with zstd.
func CompressZstd(r io.Reader, w io.Writer) (int64, error) {
	counter := &countingWriter{w: w}
	enc, err := zstd.NewWriter(counter)
	if err != nil {
		return 0, err
	}

	if _, err := io.Copy(enc, r); err != nil {
		enc.Close()
		return 0, err
	}

	if err := enc.Close(); err != nil {
		return 0, err
	}

	return counter.n, nil
}

// countingWriter counts the bytes that reach w.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
