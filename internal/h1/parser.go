// Package h1 provides the HTTP/1.x request engine served over gnet: an
// incremental parser, the per-connection state machine and response assembly.
package h1

import (
	"bytes"
	"fmt"
)

const (
	// MaxHeaderBytes caps the request line plus header block, terminator included.
	MaxHeaderBytes = 8192
	// maxContentLengthDigits rejects absurd Content-Length values before parsing.
	maxContentLengthDigits = 16
	// initialBodyCap bounds the up-front allocation for a declared body.
	initialBodyCap = 64 << 10
)

var (
	headerTerminator = []byte("\r\n\r\n")
	crlf             = []byte("\r\n")
	versionMarker    = []byte(" HTTP/1.")
	headerSep        = []byte(": ")

	methodPrefixes = [...]struct {
		prefix []byte
		method Method
	}{
		{[]byte("GET "), MethodGET},
		{[]byte("POST "), MethodPOST},
		{[]byte("HEAD "), MethodHEAD},
		{[]byte("PUT "), MethodPUT},
	}
)

type parseMode uint8

const (
	modeHeader parseMode = iota
	modeBody
)

// Parser is a resumable request parser. All of its state lives in the struct,
// so it can be fed any split of the input, down to one byte at a time, and
// reach the same verdict. Bytes read past a complete request are kept and
// become the start of the next one after Reset.
type Parser struct {
	buf      []byte
	rest     []byte
	scanned  int
	mode     parseMode
	bodyLen  int
	maxBytes int
}

// NewParser creates a parser with the default header limit.
func NewParser() *Parser {
	return &Parser{maxBytes: MaxHeaderBytes}
}

// Reset returns the parser to header collection, keeping its buffer capacity.
// Bytes left over from the previous request are moved to the front of the
// buffer; Buffered reports them.
func (p *Parser) Reset() {
	p.buf = append(p.buf[:0], p.rest...)
	p.rest = p.rest[:0]
	p.scanned = 0
	p.mode = modeHeader
	p.bodyLen = 0
}

// Buffered returns the number of bytes held for the request being collected.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// InBody reports whether the header block is done and body bytes are awaited.
func (p *Parser) InBody() bool {
	return p.mode == modeBody
}

// Feed appends data and advances req. It reports complete=true once a whole
// request is available, complete=false when more bytes are needed, and an
// error wrapping ErrMalformed when the input can never become a request.
func (p *Parser) Feed(data []byte, req *Request) (bool, error) {
	if p.mode == modeBody {
		return p.appendBody(data, req), nil
	}

	limit := p.maxBytes
	if limit <= 0 {
		limit = MaxHeaderBytes
	}

	p.buf = append(p.buf, data...)
	start := max(p.scanned-len(headerTerminator)+1, 0)
	idx := bytes.Index(p.buf[start:], headerTerminator)
	if idx < 0 {
		if len(p.buf) > limit {
			return false, ErrHeaderTooLarge
		}
		p.scanned = len(p.buf)
		return false, nil
	}

	end := start + idx + len(headerTerminator)
	if end > limit {
		return false, ErrHeaderTooLarge
	}
	if err := p.parseHead(p.buf[:end], req); err != nil {
		return false, err
	}
	if !req.method.hasBody() {
		p.keep(p.buf[end:])
		return true, nil
	}

	p.mode = modeBody
	req.body = make([]byte, 0, min(p.bodyLen, initialBodyCap))
	return p.appendBody(p.buf[end:], req), nil
}

// appendBody accumulates up to the declared length. Bytes beyond it belong to
// the next request.
func (p *Parser) appendBody(data []byte, req *Request) bool {
	need := p.bodyLen - len(req.body)
	if len(data) > need {
		p.keep(data[need:])
		data = data[:need]
	}
	req.body = append(req.body, data...)
	return len(req.body) == p.bodyLen
}

// keep saves bytes that follow the current request.
func (p *Parser) keep(b []byte) {
	p.rest = append(p.rest[:0], b...)
}

// parseHead parses the request line and header block. head ends with the
// blank-line terminator.
func (p *Parser) parseHead(head []byte, req *Request) error {
	lineEnd := bytes.Index(head, crlf)
	line := head[:lineEnd]

	for _, m := range methodPrefixes {
		if bytes.HasPrefix(line, m.prefix) {
			req.method = m.method
			line = line[len(m.prefix):]
			break
		}
	}
	if req.method == MethodInvalid {
		return fmt.Errorf("%w: %q", ErrBadMethod, firstToken(line))
	}

	v := bytes.Index(line, versionMarker)
	if v < 0 {
		return ErrMissingVersion
	}
	req.path = string(line[:v])

	// Header lines sit between the request line and the final CRLF.
	block := head[lineEnd+len(crlf) : len(head)-len(crlf)]
	for len(block) > 0 {
		var raw []byte
		if i := bytes.Index(block, crlf); i >= 0 {
			raw, block = block[:i], block[i+len(crlf):]
		} else {
			raw, block = block, nil
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		key, value, ok := splitHeaderLine(raw)
		if !ok {
			return fmt.Errorf("%w: %q", ErrBadHeader, raw)
		}
		req.setHeader(string(key), string(value))
	}

	if req.method.hasBody() {
		n, err := declaredLength(req)
		if err != nil {
			return err
		}
		p.bodyLen = n
	}
	return nil
}

// splitHeaderLine splits "key: value" or "key : value".
func splitHeaderLine(line []byte) (key, value []byte, ok bool) {
	i := bytes.Index(line, headerSep)
	if i < 0 {
		return nil, nil, false
	}
	key = line[:i]
	if n := len(key); n > 0 && key[n-1] == ' ' {
		key = key[:n-1]
	}
	if len(key) == 0 {
		return nil, nil, false
	}
	return key, bytes.Trim(line[i+len(headerSep):], " \t"), true
}

func declaredLength(req *Request) (int, error) {
	raw, ok := req.Lookup("Content-Length")
	if !ok {
		return 0, fmt.Errorf("%w: missing for %s", ErrBadContentLength, req.method)
	}
	if len(raw) == 0 || len(raw) > maxContentLengthDigits {
		return 0, fmt.Errorf("%w: field width %d", ErrBadContentLength, len(raw))
	}
	n, ok := parseInt64Bytes([]byte(raw))
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadContentLength, raw)
	}
	return int(n), nil
}

// parseInt64Bytes parses a base-10 int64 from ASCII bytes, returning ok=false on error
func parseInt64Bytes(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var n int64
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}

func firstToken(line []byte) []byte {
	if i := bytes.IndexByte(line, ' '); i >= 0 {
		return line[:i]
	}
	if len(line) > 16 {
		return line[:16]
	}
	return line
}
