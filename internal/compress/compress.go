// Package compress provides the response body encoders offered during
// Accept-Encoding negotiation.
package compress

import (
	"bytes"
	"fmt"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zlib"
)

// Deflate encodes bodies as zlib streams, which is what HTTP calls "deflate".
type Deflate struct{}

// Encoding returns the Content-Encoding token.
func (Deflate) Encoding() string { return "deflate" }

// Compress encodes body at level, clamped to 1..9.
func (Deflate) Compress(body []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(body)/2 + 16)
	w, err := zlib.NewWriterLevel(&buf, clamp(level, zlib.BestSpeed, zlib.BestCompression))
	if err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	return buf.Bytes(), nil
}

// Brotli encodes bodies with brotli.
type Brotli struct{}

// Encoding returns the Content-Encoding token.
func (Brotli) Encoding() string { return "br" }

// Compress encodes body at level, clamped to 0..11.
func (Brotli) Compress(body []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(body)/2 + 16)
	w := brotli.NewWriterLevel(&buf, clamp(level, brotli.BestSpeed, brotli.BestCompression))
	if _, err := w.Write(body); err != nil {
		return nil, fmt.Errorf("brotli: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli: %w", err)
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
