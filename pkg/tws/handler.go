package tws

import "github.com/FumingPower3925/tws/internal/h1"

type (
	// Request is the read-only view of a parsed request.
	Request = h1.Request
	// Response is the builder a handler fills in.
	Response = h1.Response
	// Status is a handler result: a status code or StatusSwitchThread.
	Status = h1.Status
	// Method is the request verb.
	Method = h1.Method
	// Handler serves one request on the event loop or on a pool worker.
	Handler = h1.Handler
	// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
	HandlerFunc = h1.HandlerFunc
)

const (
	StatusSwitchThread       = h1.StatusSwitchThread
	StatusOK                 = h1.StatusOK
	StatusNotFound           = h1.StatusNotFound
	StatusNotImplemented     = h1.StatusNotImplemented
	StatusServiceUnavailable = h1.StatusServiceUnavailable
	StatusRecursiveSwitch    = h1.StatusRecursiveSwitch
)

const (
	MethodInvalid = h1.MethodInvalid
	MethodGET     = h1.MethodGET
	MethodPOST    = h1.MethodPOST
	MethodHEAD    = h1.MethodHEAD
	MethodPUT     = h1.MethodPUT
)

// DefaultHandler echoes the method and path as an HTML page.
var DefaultHandler = h1.DefaultHandler

// Middleware is a function that wraps a Handler with additional functionality.
type Middleware func(Handler) Handler

// MiddlewareFunc is a function-based middleware that receives the request,
// the response and the next handler.
type MiddlewareFunc func(req *Request, resp *Response, next Handler) Status

// ToMiddleware converts a MiddlewareFunc to a Middleware.
func (m MiddlewareFunc) ToMiddleware() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(req *Request, resp *Response) Status {
			return m(req, resp, next)
		})
	}
}

// Chain combines multiple middlewares into a single middleware. The first
// middleware is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(final Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
