package blobstore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression selects how documents are compressed at rest.
type Compression string

const (
	CompressionZstd Compression = "zstd"
	CompressionGzip Compression = "gzip"
	CompressionNone Compression = "none"
)

// codec compresses whole documents.
type codec interface {
	encode(data []byte) ([]byte, error)
	decode(data []byte) ([]byte, error)
	// extension is appended to object keys, without the dot.
	extension() string
}

func newCodec(c Compression) (codec, error) {
	switch c {
	case CompressionZstd, "":
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		return &zstdCodec{enc: enc, dec: dec}, nil
	case CompressionGzip:
		return gzipCodec{}, nil
	case CompressionNone:
		return noneCodec{}, nil
	default:
		return nil, fmt.Errorf("blobstore: unknown compression %q", c)
	}
}

// zstdCodec shares one encoder and decoder; EncodeAll and DecodeAll are
// safe for concurrent use.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func (c *zstdCodec) encode(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, nil), nil
}

func (c *zstdCodec) decode(data []byte) ([]byte, error) {
	return c.dec.DecodeAll(data, nil)
}

func (c *zstdCodec) extension() string { return "zst" }

type gzipCodec struct{}

func (gzipCodec) encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) decode(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (gzipCodec) extension() string { return "gz" }

type noneCodec struct{}

func (noneCodec) encode(data []byte) ([]byte, error) { return data, nil }
func (noneCodec) decode(data []byte) ([]byte, error) { return data, nil }
func (noneCodec) extension() string                  { return "" }
