package tws

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FumingPower3925/tws/internal/compress"
	"github.com/FumingPower3925/tws/internal/date"
	"github.com/FumingPower3925/tws/internal/dispatch"
	"github.com/FumingPower3925/tws/internal/h1"
)

// ErrNoWorkers is reported when a handler asks to switch threads on a server
// configured with zero workers.
var ErrNoWorkers = dispatch.ErrNoWorkers

// fatalStopTimeout bounds the shutdown triggered by a configuration error.
const fatalStopTimeout = 5 * time.Second

// Server represents a server instance.
type Server struct {
	config    Config
	handler   Handler
	pool      *dispatch.Pool
	transport *h1.Server

	mu       sync.Mutex
	err      error
	fatal    chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// New creates a new Server with the provided configuration.
func New(config Config) *Server {
	if err := config.Validate(); err != nil {
		panic(err)
	}

	return &Server{
		config: config,
		fatal:  make(chan struct{}),
	}
}

// NewWithDefaults creates a new Server with default configuration.
func NewWithDefaults() *Server {
	return New(DefaultConfig())
}

// Handler sets the request handler and returns the server for method chaining.
func (s *Server) Handler(handler Handler) *Server {
	s.handler = handler
	return s
}

// ListenAndServe sets the handler, starts the server and blocks until it
// stops. It returns the configuration error that stopped it, if any.
func (s *Server) ListenAndServe(handler Handler) error {
	s.handler = handler
	if err := s.Start(); err != nil {
		return err
	}
	<-s.transport.Done()
	return s.Err()
}

// Start begins accepting connections and returns once the listener is bound.
// A nil handler serves DefaultHandler.
func (s *Server) Start() error {
	handler := s.handler
	if handler == nil {
		handler = DefaultHandler
	}
	logger := s.config.Logger

	s.pool = dispatch.New(s.config.Workers, logger.Named("dispatch"))

	assembler := &h1.Assembler{
		ServerName: s.config.ServerName,
		Date:       date.Current,
		Logger:     logger.Named("assemble"),
	}
	if s.config.Compression {
		assembler.Compressors = []h1.Compressor{compress.Deflate{}, compress.Brotli{}}
	}

	engine := &h1.Engine{
		Handler:     handler,
		Dispatcher:  s.pool,
		Assembler:   assembler,
		KeepAlive:   s.config.KeepAlive,
		BaseContext: context.Background(),
		Logger:      logger.Named("conn"),
	}

	s.transport = h1.NewServer(engine, h1.Config{
		Addr:           s.config.Addr,
		Multicore:      s.config.Multicore,
		NumEventLoop:   s.config.NumEventLoop,
		ReusePort:      s.config.ReusePort,
		MaxConnections: s.config.MaxConnections,
		Logger:         logger.Named("server"),
		OnFatal:        s.fail,
	})

	if err := s.transport.Start(); err != nil {
		_ = s.pool.Close()
		return err
	}
	return nil
}

// Stop shuts down the listener and the worker pool. Requests already queued
// on the pool are drained before it returns.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		var errs []error
		if s.transport != nil {
			errs = append(errs, s.transport.Stop(ctx))
		}
		if s.pool != nil {
			errs = append(errs, s.pool.Close())
		}
		s.stopErr = errors.Join(errs...)
	})
	return s.stopErr
}

// Err returns the configuration error that stopped the server, or nil.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Fatal is closed when a configuration error is detected while serving.
func (s *Server) Fatal() <-chan struct{} {
	return s.fatal
}

// fail records a configuration error and stops the server. It is called from
// an event loop, so the shutdown runs on its own goroutine.
func (s *Server) fail(err error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.mu.Unlock()

	close(s.fatal)
	s.config.Logger.Error("stopping server after configuration error", zap.Error(err))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fatalStopTimeout)
		defer cancel()
		_ = s.Stop(ctx)
	}()
}
