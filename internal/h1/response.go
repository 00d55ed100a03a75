package h1

import (
	"strconv"
	"strings"
)

// DefaultCompressionLevel is used when the handler leaves the level unset.
const DefaultCompressionLevel = 5

// Response is the builder a handler fills in. Header keys are unique under
// case-insensitive comparison; the last write wins and keeps the position of
// the first one.
type Response struct {
	headers [][2]string
	body    []byte
	level   int
}

// SetHeader sets key to value, replacing any earlier value.
func (r *Response) SetHeader(key, value string) {
	if i := r.index(key); i >= 0 {
		r.headers[i] = [2]string{key, value}
		return
	}
	r.headers = append(r.headers, [2]string{key, value})
}

// SetHeaderInt sets key to the decimal form of value.
func (r *Response) SetHeaderInt(key string, value int64) {
	r.SetHeader(key, strconv.FormatInt(value, 10))
}

// Header returns the value stored under key.
func (r *Response) Header(key string) (string, bool) {
	if i := r.index(key); i >= 0 {
		return r.headers[i][1], true
	}
	return "", false
}

// DelHeader removes key if present.
func (r *Response) DelHeader(key string) {
	if i := r.index(key); i >= 0 {
		r.headers = append(r.headers[:i], r.headers[i+1:]...)
	}
}

// VisitHeaders calls fn for each header in serialization order.
func (r *Response) VisitHeaders(fn func(key, value string)) {
	for _, h := range r.headers {
		fn(h[0], h[1])
	}
}

// SetBody sets the body. The slice is retained until the response is written.
func (r *Response) SetBody(body []byte) { r.body = body }

// SetBodyString sets the body from s.
func (r *Response) SetBodyString(s string) { r.body = []byte(s) }

// Body returns the current body.
func (r *Response) Body() []byte { return r.body }

// SetCompressionLevel sets the level handed to the compressor. Zero selects
// DefaultCompressionLevel; a negative level disables compression for this
// response.
func (r *Response) SetCompressionLevel(level int) { r.level = level }

// CompressionLevel returns the effective compression level, or a negative
// value when compression is disabled.
func (r *Response) CompressionLevel() int {
	if r.level == 0 {
		return DefaultCompressionLevel
	}
	return r.level
}

func (r *Response) has(key string) bool {
	return r.index(key) >= 0
}

func (r *Response) setDefault(key, value string) {
	if !r.has(key) {
		r.headers = append(r.headers, [2]string{key, value})
	}
}

func (r *Response) index(key string) int {
	for i := range r.headers {
		if strings.EqualFold(r.headers[i][0], key) {
			return i
		}
	}
	return -1
}

// Reset clears the response, keeping the header slice capacity.
func (r *Response) Reset() {
	clear(r.headers)
	r.headers = r.headers[:0]
	r.body = nil
	r.level = 0
}
