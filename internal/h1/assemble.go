package h1

import (
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"
)

// DefaultServerName is sent as the Server header unless the handler sets one.
const DefaultServerName = "SimpleWebSvr/1.0"

const (
	keepAliveValue = "keep-alive"
	closeValue     = "close"
)

// Compressor encodes response bodies for one Content-Encoding token.
// Implementations must be safe for concurrent use.
type Compressor interface {
	Encoding() string
	Compress(body []byte, level int) ([]byte, error)
}

// Assembler turns a handler result into wire bytes.
type Assembler struct {
	ServerName  string
	Compressors []Compressor
	// Date returns the cached Date header value; nil disables the header.
	Date   func() []byte
	Logger *zap.Logger
}

// Assemble completes resp for status and serializes it into a pooled buffer.
// The caller owns the buffer and must return it with bytebufferpool.Put once
// the bytes are written. keepAlive selects the default Connection header.
func (a *Assembler) Assemble(req *Request, resp *Response, status Status, keepAlive bool) *bytebufferpool.ByteBuffer {
	if !status.Known() {
		status = StatusServiceUnavailable
	}

	switch {
	case status == StatusRecursiveSwitch:
		resp.Reset()
	case status != StatusOK && len(resp.body) == 0:
		resp.SetBodyString("<html><body><h1>HTTP/1.1 " + strconv.Itoa(int(status)) + " " +
			status.Reason() + "</h1></body></html>")
		resp.SetHeader("Content-Type", "text/html")
	}

	name := a.ServerName
	if name == "" {
		name = DefaultServerName
	}
	resp.setDefault("Server", name)
	if keepAlive {
		resp.setDefault("Connection", keepAliveValue)
	} else {
		resp.setDefault("Connection", closeValue)
	}
	if a.Date != nil {
		resp.setDefault("Date", string(a.Date()))
	}

	if a.compress(req, resp) {
		resp.SetHeader("Content-Length", strconv.Itoa(len(resp.body)))
	} else {
		resp.setDefault("Content-Length", strconv.Itoa(len(resp.body)))
	}

	buf := bytebufferpool.Get()
	buf.B = append(buf.B, status.line()...)
	for _, h := range resp.headers {
		if !httpguts.ValidHeaderFieldName(h[0]) || !httpguts.ValidHeaderFieldValue(h[1]) {
			a.logger().Warn("dropping invalid response header", zap.String("key", h[0]))
			continue
		}
		buf.B = append(buf.B, h[0]...)
		buf.B = append(buf.B, headerSep...)
		buf.B = append(buf.B, h[1]...)
		buf.B = append(buf.B, crlf...)
	}
	buf.B = append(buf.B, crlf...)

	if req.method != MethodHEAD {
		buf.B = append(buf.B, resp.body...)
	}
	return buf
}

// compress replaces the body with the first acceptable encoding. It reports
// whether the body was replaced.
func (a *Assembler) compress(req *Request, resp *Response) bool {
	if len(a.Compressors) == 0 || len(resp.body) == 0 {
		return false
	}
	level := resp.CompressionLevel()
	if level < 0 || resp.has("Content-Encoding") {
		return false
	}
	accept, ok := req.Lookup("Accept-Encoding")
	if !ok {
		return false
	}

	for _, c := range a.Compressors {
		if !acceptsEncoding(accept, c.Encoding()) {
			continue
		}
		out, err := c.Compress(resp.body, level)
		if err != nil {
			a.logger().Warn("compression failed",
				zap.String("encoding", c.Encoding()), zap.Error(err))
			continue
		}
		if len(out) == 0 {
			continue
		}
		resp.body = out
		resp.SetHeader("Content-Encoding", c.Encoding())
		resp.setDefault("Vary", "Accept-Encoding")
		return true
	}
	return false
}

func (a *Assembler) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// acceptsEncoding reports whether an Accept-Encoding value lists token with a
// non-zero quality.
func acceptsEncoding(header, token string) bool {
	for part := range strings.SplitSeq(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(name), token) {
			continue
		}
		q, found := strings.CutPrefix(strings.TrimSpace(params), "q=")
		if !found {
			return true
		}
		v, err := strconv.ParseFloat(q, 64)
		return err == nil && v > 0
	}
	return false
}
