package tws

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var testPortCounter uint32

func getTestPort() string {
	port := 21000 + atomic.AddUint32(&testPortCounter, 1)
	return fmt.Sprintf(":%d", port)
}

// demo mirrors the example handler: /thread switches once, /recurse always.
var demo = HandlerFunc(func(req *Request, resp *Response) Status {
	switch {
	case strings.HasPrefix(req.Path(), "/recurse"):
		return StatusSwitchThread
	case strings.HasPrefix(req.Path(), "/thread") && !req.InPool():
		return StatusSwitchThread
	case req.Path() == "/missing":
		return StatusNotFound
	}
	if req.InPool() {
		resp.SetBodyString("IN THREAD! " + req.Path() + " " + string(req.Body()))
	} else {
		resp.SetBodyString("LOOP " + req.Path() + " " + string(req.Body()))
	}
	return StatusOK
})

func startServer(t *testing.T, config Config, handler Handler) *Server {
	t.Helper()
	config.Addr = getTestPort()
	config.Multicore = false
	server := New(config).Handler(handler)
	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func dial(t *testing.T, server *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1"+server.config.Addr, time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn, bufio.NewReader(conn)
}

func roundTrip(t *testing.T, conn net.Conn, r *bufio.Reader, raw, method string) (*http.Response, string) {
	t.Helper()
	if _, err := io.WriteString(conn, raw); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	resp, err := http.ReadResponse(r, &http.Request{Method: method})
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, string(body)
}

func TestNew(t *testing.T) {
	config := DefaultConfig()
	server := New(config)

	if server == nil {
		t.Fatal("Expected non-nil server")
	}

	if server.config.Addr != config.Addr {
		t.Errorf("Expected addr %s, got %s", config.Addr, server.config.Addr)
	}
}

func TestServer_Handler(t *testing.T) {
	server := NewWithDefaults()
	if server.Handler(DefaultHandler) != server {
		t.Error("Expected Handler to return server for chaining")
	}
	if server.handler == nil {
		t.Error("Expected handler to be set")
	}
}

func TestServer_StopBeforeStart(t *testing.T) {
	server := NewWithDefaults()
	if err := server.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestServer_DefaultHandler(t *testing.T) {
	server := startServer(t, DefaultConfig(), nil)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://127.0.0.1" + server.config.Addr + "/foo")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<html><body><h1>Type: GET    Path: /foo</h1></body></html>" {
		t.Errorf("Unexpected body %q", body)
	}
	if resp.Header.Get("Server") != "TinyWebServer" {
		t.Errorf("Expected Server TinyWebServer, got %q", resp.Header.Get("Server"))
	}
	if resp.Header.Get("Date") == "" {
		t.Error("Expected a Date header")
	}
}

func TestServer_KeepAliveAndSwitch(t *testing.T) {
	server := startServer(t, DefaultConfig(), demo)
	conn, r := dial(t, server)

	tests := []struct {
		name     string
		raw      string
		method   string
		wantCode int
		wantBody string
	}{
		{"event loop", "GET /a HTTP/1.1\r\n\r\n", "GET", 200, "LOOP /a "},
		{"switched", "GET /thread/x HTTP/1.1\r\n\r\n", "GET", 200, "IN THREAD! /thread/x "},
		{"post body", "POST /thread HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello", "POST", 200, "IN THREAD! /thread hello"},
		{"put on loop", "PUT /b HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc", "PUT", 200, "LOOP /b abc"},
		{"not found", "GET /missing HTTP/1.1\r\n\r\n", "GET", 404, "<html><body><h1>HTTP/1.1 404 Not Found</h1></body></html>"},
		{"recursive", "GET /recurse HTTP/1.1\r\n\r\n", "GET", 508, ""},
		{"head", "HEAD /h HTTP/1.1\r\n\r\n", "HEAD", 200, ""},
	}

	// All requests share one connection.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := roundTrip(t, conn, r, tt.raw, tt.method)
			if resp.StatusCode != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, resp.StatusCode)
			}
			if body != tt.wantBody {
				t.Errorf("Expected body %q, got %q", tt.wantBody, body)
			}
			if resp.Header.Get("Connection") != "keep-alive" {
				t.Errorf("Expected keep-alive, got %q", resp.Header.Get("Connection"))
			}
		})
	}
}

func TestServer_ConnectionClose(t *testing.T) {
	server := startServer(t, DefaultConfig(), demo)
	conn, r := dial(t, server)

	resp, _ := roundTrip(t, conn, r, "GET /a HTTP/1.1\r\nConnection: close\r\n\r\n", "GET")
	if !resp.Close {
		t.Error("Expected the response to announce Connection close")
	}
	if _, err := r.ReadByte(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected the server to close the connection, got %v", err)
	}
}

func TestServer_RequestsInOneWrite(t *testing.T) {
	server := startServer(t, DefaultConfig(), demo)
	conn, r := dial(t, server)

	raw := "GET /a HTTP/1.1\r\n\r\n" +
		"POST /thread HTTP/1.1\r\nContent-Length: 2\r\n\r\nhi" +
		"GET /c HTTP/1.1\r\n\r\n"
	if _, err := io.WriteString(conn, raw); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	for _, want := range []string{"LOOP /a ", "IN THREAD! /thread hi", "LOOP /c "} {
		resp, err := http.ReadResponse(r, &http.Request{Method: "GET"})
		if err != nil {
			t.Fatalf("ReadResponse() error = %v", err)
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			t.Fatalf("reading body: %v", err)
		}
		if resp.StatusCode != 200 || string(body) != want {
			t.Errorf("Expected 200 %q, got %d %q", want, resp.StatusCode, body)
		}
	}
}

func TestServer_MalformedClosesWithoutResponse(t *testing.T) {
	server := startServer(t, DefaultConfig(), demo)
	conn, r := dial(t, server)

	if _, err := io.WriteString(conn, "BREW /pot HTTP/1.1\r\n\r\n"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := io.ReadAll(r)
	if err != nil && !isReset(err) {
		t.Fatalf("Expected EOF, got %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected no response bytes, got %q", data)
	}
}

func TestServer_Compression(t *testing.T) {
	config := DefaultConfig()
	config.Compression = true
	body := strings.Repeat("compress me ", 100)
	server := startServer(t, config, HandlerFunc(func(_ *Request, resp *Response) Status {
		resp.SetBodyString(body)
		return StatusOK
	}))

	client := &http.Client{Timeout: 5 * time.Second}
	req, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1"+server.config.Addr+"/", nil)
	req.Header.Set("Accept-Encoding", "br")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Encoding") != "br" {
		t.Errorf("Expected br encoding, got %q", resp.Header.Get("Content-Encoding"))
	}
	if resp.ContentLength <= 0 || resp.ContentLength >= int64(len(body)) {
		t.Errorf("Expected a compressed Content-Length, got %d", resp.ContentLength)
	}
}

func TestServer_MaxConnections(t *testing.T) {
	config := DefaultConfig()
	config.MaxConnections = 1
	server := startServer(t, config, demo)

	first, r1 := dial(t, server)
	if resp, _ := roundTrip(t, first, r1, "GET /a HTTP/1.1\r\n\r\n", "GET"); resp.StatusCode != 200 {
		t.Fatalf("Expected 200 on the first connection, got %d", resp.StatusCode)
	}

	_, r2 := dial(t, server)
	resp, err := http.ReadResponse(r2, &http.Request{Method: "GET"})
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != 503 {
		t.Errorf("Expected 503 for the over-limit connection, got %d", resp.StatusCode)
	}
}

func TestServer_NoWorkersIsFatal(t *testing.T) {
	config := DefaultConfig()
	config.Workers = 0
	config.Addr = getTestPort()
	config.Multicore = false
	server := New(config)

	errc := make(chan error, 1)
	go func() { errc <- server.ListenAndServe(demo) }()
	if err := waitForServer(config.Addr, 2*time.Second); err != nil {
		t.Fatal(err)
	}

	conn, err := net.DialTimeout("tcp", "127.0.0.1"+config.Addr, time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, "GET /thread HTTP/1.1\r\n\r\n"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, _ := io.ReadAll(conn)
	if len(data) != 0 {
		t.Errorf("Expected no response bytes, got %q", data)
	}

	select {
	case <-server.Fatal():
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the server to report a fatal configuration error")
	}
	if !errors.Is(server.Err(), ErrNoWorkers) {
		t.Errorf("Expected ErrNoWorkers, got %v", server.Err())
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrNoWorkers) {
			t.Errorf("Expected ListenAndServe to return ErrNoWorkers, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("ListenAndServe did not return after the fatal error")
	}
}

func waitForServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", "127.0.0.1"+addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("server %s not ready", addr)
}

func isReset(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
