package tws

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoggerConfig defines the configuration options for the Logger middleware.
type LoggerConfig struct {
	// Logger receives one entry per handler invocation (default: no-op)
	Logger *zap.Logger
	// SkipPaths lists paths to skip logging (e.g., health checks)
	SkipPaths []string
}

// Logger returns a middleware that writes an access log entry per handler
// invocation to logger.
func Logger(logger *zap.Logger) Middleware {
	return LoggerWithConfig(LoggerConfig{Logger: logger})
}

// LoggerWithConfig returns a middleware that logs requests with custom configuration.
// A request that switches threads is logged twice, once per invocation.
func LoggerWithConfig(config LoggerConfig) Middleware {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	skipMap := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}

	return func(next Handler) Handler {
		return HandlerFunc(func(req *Request, resp *Response) Status {
			if skipMap[req.Path()] {
				return next.Serve(req, resp)
			}

			start := time.Now()
			status := next.Serve(req, resp)

			config.Logger.Info("request",
				zap.String("method", req.Method().String()),
				zap.String("path", req.Path()),
				zap.Stringer("status", status),
				zap.Bool("in_pool", req.InPool()),
				zap.Int("body_bytes", len(resp.Body())),
				zap.Duration("duration", time.Since(start)),
				zap.String("conn_id", req.ConnID()),
			)
			return status
		})
	}
}

// RequestID returns a middleware that echoes the client's X-Request-ID or
// assigns a new one. The ID is kept across a thread switch.
func RequestID() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(req *Request, resp *Response) Status {
			if _, ok := resp.Header("X-Request-ID"); !ok {
				requestID := req.Header("X-Request-ID")
				if requestID == "" {
					requestID = uuid.NewString()
				}
				resp.SetHeader("X-Request-ID", requestID)
			}
			return next.Serve(req, resp)
		})
	}
}

// HealthConfig holds configuration for the Health middleware.
type HealthConfig struct {
	// Path is the endpoint path for health checks (default: "/health")
	Path string
	// Handler answers the health check (default: a small JSON status document)
	Handler Handler
}

var startTime = time.Now()

// DefaultHealthConfig returns a HealthConfig with sensible defaults.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Path: "/health",
		Handler: HandlerFunc(func(req *Request, resp *Response) Status {
			resp.SetHeader("Content-Type", "application/json")
			resp.SetBodyString(`{"status":"ok","uptime":"` + time.Since(startTime).Round(time.Second).String() + `"}`)
			return StatusOK
		}),
	}
}

// Health returns a middleware that answers /health on the event loop.
func Health() Middleware {
	return HealthWithConfig(DefaultHealthConfig())
}

// HealthWithConfig returns a middleware that sets up a health check endpoint with custom configuration.
func HealthWithConfig(config HealthConfig) Middleware {
	defaults := DefaultHealthConfig()
	if config.Path == "" {
		config.Path = defaults.Path
	}
	if config.Handler == nil {
		config.Handler = defaults.Handler
	}

	return func(next Handler) Handler {
		return HandlerFunc(func(req *Request, resp *Response) Status {
			if req.Path() == config.Path {
				return config.Handler.Serve(req, resp)
			}
			return next.Serve(req, resp)
		})
	}
}
