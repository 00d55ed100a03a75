package h1

// Handler serves one request. It may run on the event loop or on a pool
// worker (see Request.InPool) and must be safe for both.
type Handler interface {
	Serve(req *Request, resp *Response) Status
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(req *Request, resp *Response) Status

// Serve calls f(req, resp).
func (f HandlerFunc) Serve(req *Request, resp *Response) Status {
	return f(req, resp)
}

// DefaultHandler answers every request with an HTML page naming the method
// and path.
var DefaultHandler Handler = HandlerFunc(func(req *Request, resp *Response) Status {
	resp.SetBodyString("<html><body><h1>Type: " + req.Method().String() +
		"    Path: " + req.Path() + "</h1></body></html>")
	resp.SetHeader("Server", "TinyWebServer")
	resp.SetHeader("Content-Type", "text/html")
	return StatusOK
})
