package compress

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zlib"
)

func TestCompressors(t *testing.T) {
	body := []byte(strings.Repeat("<html><body><h1>IN THREAD!</h1></body></html>\n", 40))

	tests := []struct {
		name     string
		encoding string
		compress func([]byte, int) ([]byte, error)
		reader   func(io.Reader) (io.Reader, error)
	}{
		{
			name:     "deflate",
			encoding: "deflate",
			compress: Deflate{}.Compress,
			reader: func(r io.Reader) (io.Reader, error) {
				return zlib.NewReader(r)
			},
		},
		{
			name:     "brotli",
			encoding: "br",
			compress: Brotli{}.Compress,
			reader: func(r io.Reader) (io.Reader, error) {
				return brotli.NewReader(r), nil
			},
		},
	}

	for _, tt := range tests {
		for _, level := range []int{-5, 0, 1, 5, 9, 11, 42} {
			out, err := tt.compress(body, level)
			if err != nil {
				t.Fatalf("%s level %d: Compress() error = %v", tt.name, level, err)
			}
			if len(out) >= len(body) {
				t.Errorf("%s level %d: expected output smaller than %d, got %d", tt.name, level, len(body), len(out))
			}
			r, err := tt.reader(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("%s: reader error = %v", tt.name, err)
			}
			plain, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("%s level %d: decompress error = %v", tt.name, level, err)
			}
			if !bytes.Equal(plain, body) {
				t.Errorf("%s level %d: round trip mismatch", tt.name, level)
			}
		}
	}

	if (Deflate{}).Encoding() != "deflate" || (Brotli{}).Encoding() != "br" {
		t.Error("Unexpected Content-Encoding tokens")
	}
}

func TestClamp(t *testing.T) {
	if clamp(-1, 1, 9) != 1 || clamp(10, 1, 9) != 9 || clamp(5, 1, 9) != 5 {
		t.Error("clamp does not bound its input")
	}
}
