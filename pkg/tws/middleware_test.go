package tws

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_Middleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := Logger(zap.New(core))(HandlerFunc(func(_ *Request, resp *Response) Status {
		resp.SetBodyString("hello")
		return StatusOK
	}))

	var resp Response
	if status := handler.Serve(newRequest(t, "GET /test HTTP/1.1\r\n\r\n"), &resp); status != StatusOK {
		t.Fatalf("Expected StatusOK, got %v", status)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["method"] != "GET" || fields["path"] != "/test" {
		t.Errorf("Unexpected fields %v", fields)
	}
	if fields["status"] != "200 OK" {
		t.Errorf("Expected status field '200 OK', got %v", fields["status"])
	}
	if fields["body_bytes"] != int64(5) {
		t.Errorf("Expected body_bytes 5, got %v", fields["body_bytes"])
	}
	if fields["in_pool"] != false {
		t.Errorf("Expected in_pool false, got %v", fields["in_pool"])
	}
}

func TestLoggerWithConfig_SkipPaths(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := LoggerWithConfig(LoggerConfig{
		Logger:    zap.New(core),
		SkipPaths: []string{"/health"},
	})(DefaultHandler)

	var resp Response
	handler.Serve(newRequest(t, "GET /health HTTP/1.1\r\n\r\n"), &resp)
	if logs.Len() != 0 {
		t.Errorf("Expected skipped path not to be logged, got %d entries", logs.Len())
	}

	resp.Reset()
	handler.Serve(newRequest(t, "GET /other HTTP/1.1\r\n\r\n"), &resp)
	if logs.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", logs.Len())
	}
}

func TestRequestID_Middleware(t *testing.T) {
	handler := RequestID()(DefaultHandler)

	var resp Response
	handler.Serve(newRequest(t, "GET / HTTP/1.1\r\n\r\n"), &resp)
	id, ok := resp.Header("X-Request-ID")
	if !ok || len(id) != 36 {
		t.Errorf("Expected a generated UUID, got %q", id)
	}

	// A second invocation for the same response keeps the first ID.
	handler.Serve(newRequest(t, "GET / HTTP/1.1\r\n\r\n"), &resp)
	if again, _ := resp.Header("X-Request-ID"); again != id {
		t.Errorf("Expected ID %s to be kept, got %s", id, again)
	}
}

func TestRequestID_ExistingHeader(t *testing.T) {
	handler := RequestID()(DefaultHandler)

	var resp Response
	handler.Serve(newRequest(t, "GET / HTTP/1.1\r\nx-request-id: abc-123\r\n\r\n"), &resp)
	if id, _ := resp.Header("X-Request-ID"); id != "abc-123" {
		t.Errorf("Expected client ID abc-123, got %q", id)
	}
}

func TestHealthMiddleware(t *testing.T) {
	nextCalled := false
	handler := Health()(HandlerFunc(func(*Request, *Response) Status {
		nextCalled = true
		return StatusNotFound
	}))

	var resp Response
	if status := handler.Serve(newRequest(t, "GET /health HTTP/1.1\r\n\r\n"), &resp); status != StatusOK {
		t.Errorf("Expected StatusOK, got %v", status)
	}
	if nextCalled {
		t.Error("Expected health endpoint to be answered by the middleware")
	}
	if !strings.Contains(string(resp.Body()), `"status":"ok"`) {
		t.Errorf("Unexpected health body %q", resp.Body())
	}

	resp.Reset()
	if status := handler.Serve(newRequest(t, "GET /other HTTP/1.1\r\n\r\n"), &resp); status != StatusNotFound || !nextCalled {
		t.Errorf("Expected other paths to reach the next handler, got %v", status)
	}
}

func TestHealthWithConfig_CustomHandler(t *testing.T) {
	handler := HealthWithConfig(HealthConfig{
		Path: "/ready",
		Handler: HandlerFunc(func(_ *Request, resp *Response) Status {
			resp.SetBodyString("ready")
			return StatusOK
		}),
	})(DefaultHandler)

	var resp Response
	handler.Serve(newRequest(t, "GET /ready HTTP/1.1\r\n\r\n"), &resp)
	if string(resp.Body()) != "ready" {
		t.Errorf("Expected custom health body, got %q", resp.Body())
	}
}
