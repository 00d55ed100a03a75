package h1

import "errors"

// ErrMalformed is wrapped by every parse failure. A malformed request closes the
// connection without a response.
var ErrMalformed = errors.New("h1: malformed request")

var (
	ErrHeaderTooLarge   = newParseError("header block exceeds limit")
	ErrBadMethod        = newParseError("unsupported method")
	ErrMissingVersion   = newParseError("missing HTTP/1.x marker")
	ErrBadHeader        = newParseError("invalid header line")
	ErrBadContentLength = newParseError("invalid content-length")
)

// parseError is a sentinel that also matches ErrMalformed under errors.Is.
type parseError struct {
	msg string
}

func newParseError(msg string) error {
	return &parseError{msg: msg}
}

func (e *parseError) Error() string { return "h1: " + e.msg }

func (e *parseError) Unwrap() error { return ErrMalformed }
