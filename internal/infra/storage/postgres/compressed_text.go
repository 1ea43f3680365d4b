package postgres

import (
	"bytes"
	"compress/gzip"
	"database/sql/driver"
	"fmt"
	"io"
)

// CompressedText is a string stored gzip-compressed in a BYTEA column.
type CompressedText string

// Value compresses the text on write.
func (t CompressedText) Value() (driver.Value, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(t)); err != nil {
		return nil, fmt.Errorf("failed to compress text: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress text: %w", err)
	}
	return buf.Bytes(), nil
}

// Scan decompresses the text on read.
func (t *CompressedText) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*t = ""
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CompressedText", src)
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decompress text: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("failed to decompress text: %w", err)
	}
	*t = CompressedText(out)
	return nil
}
