package h1

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/FumingPower3925/tws/internal/date"
	"github.com/FumingPower3925/tws/internal/dispatch"
	"github.com/FumingPower3925/tws/internal/metrics"
)

// dateRefreshInterval is how often OnTick refreshes the cached Date header.
const dateRefreshInterval = 500 * time.Millisecond

// Config defines the listener options of the HTTP/1.x server.
type Config struct {
	Addr           string
	Multicore      bool
	NumEventLoop   int
	ReusePort      bool
	MaxConnections uint32
	Logger         *zap.Logger
	// OnFatal receives configuration errors detected while serving. It is
	// called at most once.
	OnFatal func(err error)
}

// Server implements gnet.EventHandler for HTTP/1.x.
type Server struct {
	gnet.BuiltinEventEngine
	engine         *Engine
	logger         *zap.Logger
	addr           string
	multicore      bool
	numEventLoop   int
	reusePort      bool
	maxConnections uint32
	activeConns    atomic.Uint32
	onFatal        func(err error)
	fatalOnce      sync.Once

	eng    gnet.Engine
	booted chan struct{}
	done   chan struct{}
}

// NewServer creates a server that serves engine's handler on config.Addr.
func NewServer(engine *Engine, config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if engine.Logger == nil {
		engine.Logger = config.Logger
	}
	return &Server{
		engine:         engine,
		logger:         config.Logger,
		addr:           config.Addr,
		multicore:      config.Multicore,
		numEventLoop:   config.NumEventLoop,
		reusePort:      config.ReusePort,
		maxConnections: config.MaxConnections,
		onFatal:        config.OnFatal,
		booted:         make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start runs the event loops in the background and returns once the listener
// is bound, or with the error that prevented it.
func (s *Server) Start() error {
	options := []gnet.Option{
		gnet.WithMulticore(s.multicore),
		gnet.WithReusePort(s.reusePort),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithLogger(s.logger.Named("gnet").Sugar()),
		gnet.WithLockOSThread(false),
		gnet.WithReadBufferCap(64 << 10),
		gnet.WithWriteBufferCap(64 << 10),
		gnet.WithTicker(true),
		gnet.WithLoadBalancing(gnet.RoundRobin),
	}
	if s.numEventLoop > 0 {
		options = append(options, gnet.WithNumEventLoop(s.numEventLoop))
	}

	s.logger.Info("starting HTTP/1.x server", zap.String("addr", s.addr), zap.Bool("multicore", s.multicore))

	errc := make(chan error, 1)
	go func() {
		defer close(s.done)
		errc <- gnet.Run(s, "tcp://"+s.addr, options...)
	}()

	select {
	case <-s.booted:
		return nil
	case err := <-errc:
		if err == nil {
			err = errors.New("engine exited before boot")
		}
		return fmt.Errorf("h1: listen on %s: %w", s.addr, err)
	}
}

// Stop stops the event loops and waits for them to exit.
func (s *Server) Stop(ctx context.Context) error {
	select {
	case <-s.booted:
	default:
		return nil
	}

	s.logger.Info("initiating graceful shutdown")
	if err := s.eng.Stop(ctx); err != nil {
		s.logger.Error("error stopping gnet engine", zap.Error(err))
		return err
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info("HTTP/1.x server shutdown complete")
	return nil
}

// Done is closed once the event loops have exited.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// OnBoot is called when the server is ready to accept connections.
func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.eng = eng
	date.Refresh()
	close(s.booted)
	s.logger.Info("HTTP/1.x server is listening", zap.String("addr", s.addr))
	return gnet.None
}

// OnTick refreshes the cached Date header.
func (s *Server) OnTick() (time.Duration, gnet.Action) {
	date.Refresh()
	return dateRefreshInterval, gnet.None
}

// OnOpen is called when a new connection is accepted.
func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	if !s.admit() {
		metrics.RejectedConnections.Inc()
		s.logger.Warn("connection rejected: too many connections",
			zap.String("remote", c.RemoteAddr().String()),
			zap.Uint32("limit", s.maxConnections))
		return s.reject(), gnet.Close
	}

	metrics.ActiveConnections.Inc()

	conn := NewConnection(c, c.RemoteAddr().String(), s.engine)
	c.SetContext(conn)
	conn.logger.Debug("connection opened")
	return nil, gnet.None
}

// admit reserves a connection slot. Event loops call it concurrently, so the
// limit check and the increment are one step.
func (s *Server) admit() bool {
	for {
		n := s.activeConns.Load()
		if s.maxConnections > 0 && n >= s.maxConnections {
			return false
		}
		if s.activeConns.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// reject renders the 503 sent to an over-limit connection before it is closed.
func (s *Server) reject() []byte {
	var req Request
	var resp Response
	buf := s.engine.Assembler.Assemble(&req, &resp, StatusServiceUnavailable, false)
	defer bytebufferpool.Put(buf)
	return append([]byte(nil), buf.B...)
}

// OnClose is called when a connection is closed.
func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	conn, ok := c.Context().(*Connection)
	if !ok {
		return gnet.None
	}
	conn.MarkClosed()
	s.activeConns.Add(^uint32(0))
	metrics.ActiveConnections.Dec()

	if err != nil {
		conn.logger.Debug("connection closed with error", zap.Error(err), zap.Stringer("state", conn.state))
	} else {
		conn.logger.Debug("connection closed", zap.Stringer("state", conn.state))
	}
	return gnet.None
}

// OnTraffic is called when data is received on a connection.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	conn, ok := c.Context().(*Connection)
	if !ok {
		s.logger.Warn("traffic on connection without state", zap.String("remote", c.RemoteAddr().String()))
		return gnet.Close
	}

	err := conn.OnReadable(c)
	if err == nil {
		return gnet.None
	}
	if errors.Is(err, dispatch.ErrNoWorkers) {
		s.fatal(err)
	}
	return gnet.Close
}

func (s *Server) fatal(err error) {
	s.fatalOnce.Do(func() {
		s.logger.Error("configuration error while serving", zap.Error(err))
		if s.onFatal != nil {
			s.onFatal(err)
		}
	})
}
