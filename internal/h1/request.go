package h1

import (
	"context"
	"maps"
	"strings"
)

// Method is the request verb. Only the verbs the parser accepts are enumerated.
type Method uint8

const (
	MethodInvalid Method = iota
	MethodGET
	MethodPOST
	MethodHEAD
	MethodPUT
)

func (m Method) String() string {
	switch m {
	case MethodGET:
		return "GET"
	case MethodPOST:
		return "POST"
	case MethodHEAD:
		return "HEAD"
	case MethodPUT:
		return "PUT"
	default:
		return "INVALID"
	}
}

// hasBody reports whether requests with this method carry a Content-Length body.
func (m Method) hasBody() bool {
	return m == MethodPOST || m == MethodPUT
}

// Request is the parsed view of one request. It is populated by the parser,
// handed to the handler by reference and cleared once the response is written.
// Handlers must treat it as read-only and must not retain it after returning.
type Request struct {
	method     Method
	path       string
	headers    map[string]string
	body       []byte
	inPool     bool
	connID     string
	remoteAddr string
	ctx        context.Context
}

// Method returns the request verb.
func (r *Request) Method() Method { return r.method }

// Path returns the raw request target, exactly as received.
func (r *Request) Path() string { return r.path }

// Body returns the request body. It is empty unless the method is POST or PUT.
func (r *Request) Body() []byte { return r.body }

// ContentLength returns the number of body bytes received.
func (r *Request) ContentLength() int { return len(r.body) }

// InPool reports whether the current handler invocation runs on a pool worker.
func (r *Request) InPool() bool { return r.inPool }

// ConnID identifies the connection the request arrived on.
func (r *Request) ConnID() string { return r.connID }

// RemoteAddr returns the peer address of the connection.
func (r *Request) RemoteAddr() string { return r.remoteAddr }

// Lookup returns the header value stored under key. Keys are matched exactly
// first and then case-insensitively.
func (r *Request) Lookup(key string) (string, bool) {
	if v, ok := r.headers[key]; ok {
		return v, true
	}
	for k, v := range r.headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Header is Lookup without the presence flag.
func (r *Request) Header(key string) string {
	v, _ := r.Lookup(key)
	return v
}

// Headers returns a copy of the header mapping with keys as received.
func (r *Request) Headers() map[string]string {
	return maps.Clone(r.headers)
}

// Context returns the context of the current handler invocation.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// SetContext replaces the invocation context. Middleware uses it to hand
// span or deadline information down the chain.
func (r *Request) SetContext(ctx context.Context) {
	r.ctx = ctx
}

// wantsClose reports whether the client asked for the connection to be closed
// after this response.
func (r *Request) wantsClose() bool {
	return strings.EqualFold(strings.TrimSpace(r.Header("Connection")), "close")
}

func (r *Request) setHeader(key, value string) {
	if r.headers == nil {
		r.headers = make(map[string]string, 8)
	}
	r.headers[key] = value
}

// Reset clears the request for the next cycle on the same connection. The
// connection identity is kept.
func (r *Request) Reset() {
	r.method = MethodInvalid
	r.path = ""
	clear(r.headers)
	r.body = nil
	r.inPool = false
	r.ctx = nil
}
