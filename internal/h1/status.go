package h1

import "strconv"

// Status is a handler result: a response status code or StatusSwitchThread.
type Status int

const (
	// StatusSwitchThread asks the connection to re-run the handler on a pool
	// worker instead of the event loop.
	StatusSwitchThread Status = -100

	StatusOK                 Status = 200
	StatusNotFound           Status = 404
	StatusNotImplemented     Status = 501
	StatusServiceUnavailable Status = 503
	// StatusRecursiveSwitch reports a handler that asked to switch threads
	// while already running on a pool worker.
	StatusRecursiveSwitch Status = 508
)

var reasons = map[Status]string{
	StatusOK:                 "OK",
	StatusNotFound:           "Not Found",
	StatusServiceUnavailable: "Service Unavailable",
	StatusRecursiveSwitch:    "Bad Handler (Recursive threaded switch)",
	StatusNotImplemented:     "Not Implemented",
}

// statusLines holds the pre-rendered "HTTP/1.1 <code> <reason>" lines.
var statusLines = func() map[Status][]byte {
	lines := make(map[Status][]byte, len(reasons))
	for s, reason := range reasons {
		lines[s] = []byte("HTTP/1.1 " + strconv.Itoa(int(s)) + " " + reason + "\r\n")
	}
	return lines
}()

// Known reports whether s has an entry in the status table.
func (s Status) Known() bool {
	_, ok := reasons[s]
	return ok
}

// Reason returns the reason phrase, or "" for unknown statuses.
func (s Status) Reason() string {
	return reasons[s]
}

func (s Status) String() string {
	if s == StatusSwitchThread {
		return "switch-thread"
	}
	if r, ok := reasons[s]; ok {
		return strconv.Itoa(int(s)) + " " + r
	}
	return strconv.Itoa(int(s))
}

// line returns the status line including the trailing CRLF.
func (s Status) line() []byte {
	return statusLines[s]
}
