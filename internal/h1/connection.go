package h1

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/gnet/v2"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/FumingPower3925/tws/internal/dispatch"
	"github.com/FumingPower3925/tws/internal/metrics"
)

// readScratchSize is the size of the fixed per-connection read buffer.
const readScratchSize = 8192

// Dispatcher runs a task off the event loop.
type Dispatcher interface {
	Submit(t dispatch.Task) error
}

// Engine is the configuration shared by every connection of a server.
type Engine struct {
	Handler    Handler
	Dispatcher Dispatcher
	Assembler  *Assembler
	KeepAlive  bool
	// BaseContext is the parent of every Request.Context.
	BaseContext context.Context
	Logger      *zap.Logger
}

// netConn is the part of gnet.Conn a Connection drives.
type netConn interface {
	AsyncWrite(buf []byte, callback gnet.AsyncCallback) error
	Wake(callback gnet.AsyncCallback) error
	Close() error
}

// inbound is the read side of gnet.Conn.
type inbound interface {
	io.Reader
	InboundBuffered() int
}

type connState uint8

const (
	stateReadingHeader connState = iota
	stateReadingBody
	stateProcessing
)

func (s connState) String() string {
	switch s {
	case stateReadingHeader:
		return "reading-header"
	case stateReadingBody:
		return "reading-body"
	case stateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Connection drives one client socket through read, parse, handle and write.
//
// Exactly one of these is outstanding at a time: a read on the event loop, a
// handler invocation, or a write. While Processing the connection does not
// read, so bytes that arrive early stay in gnet's inbound buffer until the
// write completes. The only hand-off to another goroutine is Submit; the
// worker gives the connection back by issuing the write.
type Connection struct {
	id      string
	conn    netConn
	engine  *Engine
	logger  *zap.Logger
	scratch [readScratchSize]byte

	state     connState
	parser    Parser
	req       Request
	resp      Response
	status    Status
	keepAlive bool
	out       *bytebufferpool.ByteBuffer
	// replay is set when the parser holds bytes of the next request that were
	// read together with the previous one.
	replay bool

	closed atomic.Bool
}

// NewConnection creates the state for a freshly accepted socket.
func NewConnection(c netConn, remoteAddr string, engine *Engine) *Connection {
	id := uuid.NewString()
	logger := engine.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	conn := &Connection{
		id:     id,
		conn:   c,
		engine: engine,
		logger: logger.With(zap.String("conn_id", id), zap.String("remote", remoteAddr)),
		parser: Parser{maxBytes: MaxHeaderBytes},
	}
	conn.req.connID = id
	conn.req.remoteAddr = remoteAddr
	return conn
}

// ID returns the connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// OnReadable reads everything buffered in src through the parser. It stops
// early once a request is complete. A returned error means the connection
// must be closed without a response.
func (c *Connection) OnReadable(src inbound) error {
	if c.replay && c.state == stateReadingHeader {
		c.replay = false
		if err := c.feed(nil); err != nil {
			return err
		}
	}
	for c.state != stateProcessing && src.InboundBuffered() > 0 {
		n, err := src.Read(c.scratch[:])
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			return nil
		}
		if err := c.feed(c.scratch[:n]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) feed(data []byte) error {
	complete, err := c.parser.Feed(data, &c.req)
	if err != nil {
		metrics.MalformedRequests.Inc()
		c.logger.Debug("malformed request", zap.Error(err))
		return err
	}
	if !complete {
		if c.parser.InBody() {
			c.state = stateReadingBody
		}
		return nil
	}

	c.state = stateProcessing
	c.keepAlive = c.engine.KeepAlive && !c.req.wantsClose()
	return c.process()
}

// process invokes the handler and applies the switch-thread protocol.
func (c *Connection) process() error {
	c.status = c.invoke()
	if c.status != StatusSwitchThread {
		return c.respond()
	}

	if c.req.inPool {
		metrics.RecursiveSwitches.Inc()
		c.logger.Warn("handler requested a thread switch from inside the pool",
			zap.String("path", c.req.path))
		c.status = StatusRecursiveSwitch
		return c.respond()
	}

	if c.engine.Dispatcher == nil {
		return fmt.Errorf("switch thread: %w", dispatch.ErrNoWorkers)
	}
	c.req.inPool = true
	if err := c.engine.Dispatcher.Submit(c.runInPool); err != nil {
		return fmt.Errorf("switch thread: %w", err)
	}
	metrics.PoolDispatches.Inc()
	return nil
}

// invoke runs the handler, answering 503 if it panics.
func (c *Connection) invoke() (status Status) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panicked", zap.Any("panic", r), zap.Bool("in_pool", c.req.inPool))
			c.resp.Reset()
			status = StatusServiceUnavailable
		}
		metrics.HandlerDuration.
			WithLabelValues(c.req.method.String(), strconv.FormatBool(c.req.inPool)).
			Observe(time.Since(start).Seconds())
	}()

	if c.req.ctx == nil {
		c.req.ctx = c.engine.BaseContext
	}
	return c.engine.Handler.Serve(&c.req, &c.resp)
}

// runInPool is the task a worker runs for a switched connection.
func (c *Connection) runInPool() {
	if c.closed.Load() {
		c.logger.Debug("peer left before the pool picked up the request")
		return
	}
	if err := c.process(); err != nil {
		c.logger.Error("failed to respond from the pool", zap.Error(err))
		_ = c.conn.Close()
	}
}

// respond assembles the response and queues it on the socket.
func (c *Connection) respond() error {
	c.out = c.engine.Assembler.Assemble(&c.req, &c.resp, c.status, c.keepAlive)
	if v, ok := c.resp.Header("Connection"); ok && strings.EqualFold(v, closeValue) {
		c.keepAlive = false
	}

	status := c.status
	if !status.Known() {
		status = StatusServiceUnavailable
	}
	metrics.RequestsTotal.WithLabelValues(c.req.method.String(), strconv.Itoa(int(status))).Inc()
	metrics.ResponseSize.Observe(float64(c.out.Len()))

	if err := c.conn.AsyncWrite(c.out.B, c.onWritten); err != nil {
		bytebufferpool.Put(c.out)
		c.out = nil
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// onWritten runs on the event loop once the response has left the buffer.
func (c *Connection) onWritten(_ gnet.Conn, err error) error {
	if c.out != nil {
		bytebufferpool.Put(c.out)
		c.out = nil
	}
	if err != nil {
		c.logger.Debug("write failed", zap.Error(err))
		return c.conn.Close()
	}

	keepAlive := c.keepAlive
	c.reset()
	if !keepAlive {
		return c.conn.Close()
	}
	// Bytes that arrived while processing are still buffered, in gnet or in
	// the parser; wake the connection so the next read cycle picks them up.
	return c.conn.Wake(nil)
}

func (c *Connection) reset() {
	c.req.Reset()
	c.resp.Reset()
	c.parser.Reset()
	c.status = 0
	c.keepAlive = false
	c.state = stateReadingHeader
	c.replay = c.parser.Buffered() > 0
}

// MarkClosed records that the socket is gone. A queued pool task for this
// connection will then be dropped.
func (c *Connection) MarkClosed() {
	c.closed.Store(true)
}
