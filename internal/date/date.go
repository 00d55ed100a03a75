// Package date keeps a cached HTTP Date header value so responses don't
// format the clock on every request.
package date

import (
	"sync/atomic"
	"time"
)

// layout is the IMF-fixdate form required for the Date header.
const layout = "Mon, 02 Jan 2006 15:04:05 GMT"

var current atomic.Pointer[[]byte]

// Refresh re-renders the cached value from the wall clock. The server calls it
// from the event loop ticker.
func Refresh() {
	b := Format(time.Now())
	current.Store(&b)
}

// Current returns the cached header value. The returned slice must not be
// modified.
func Current() []byte {
	if p := current.Load(); p != nil {
		return *p
	}
	return Format(time.Now())
}

// Format renders t as a Date header value.
func Format(t time.Time) []byte {
	return t.UTC().AppendFormat(make([]byte, 0, len(layout)), layout)
}
