package state

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshotMagic opens every encoded snapshot.
var snapshotMagic = []byte("WZS")

const (
	frameRaw  byte = 0
	frameGzip byte = 1
)

// Codec frames msgpack payloads for snapshot files: magic, a flag byte
// saying whether the body is gzipped, then the body.
type Codec struct {
	// GzipAbove is the msgpack size from which bodies are compressed.
	// Zero or less disables compression.
	GzipAbove int
}

// DefaultCodec compresses bodies of 1 KiB or more.
func DefaultCodec() Codec {
	return Codec{GzipAbove: 1 << 10}
}

// Encode frames v.
func (c Codec) Encode(v any) ([]byte, error) {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}

	flag := frameRaw
	if c.GzipAbove > 0 && len(body) >= c.GzipAbove {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		body, flag = buf.Bytes(), frameGzip
	}

	out := make([]byte, 0, len(snapshotMagic)+1+len(body))
	out = append(out, snapshotMagic...)
	out = append(out, flag)
	return append(out, body...), nil
}

// Decode reads a frame produced by Encode into v.
func (c Codec) Decode(data []byte, v any) error {
	if len(data) <= len(snapshotMagic) || !bytes.HasPrefix(data, snapshotMagic) {
		return ErrInvalidData
	}
	flag := data[len(snapshotMagic)]
	body := data[len(snapshotMagic)+1:]

	switch flag {
	case frameRaw:
	case frameGzip:
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		defer zr.Close()
		if body, err = io.ReadAll(zr); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
	default:
		return ErrInvalidData
	}
	return msgpack.Unmarshal(body, v)
}
