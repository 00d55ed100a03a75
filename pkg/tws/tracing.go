package tws

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig defines the configuration options for the OpenTelemetry tracing middleware.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "tws")
	TracerName string
	// SkipPaths lists paths to skip tracing (e.g., health checks)
	SkipPaths []string
	// Propagator is the propagation format (default: TraceContext)
	Propagator propagation.TextMapPropagator
	// TracerProvider overrides the global provider when set
	TracerProvider trace.TracerProvider
}

// DefaultTracingConfig returns a TracingConfig with sensible defaults.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		TracerName: "tws",
		SkipPaths:  []string{"/health", "/metrics"},
		Propagator: propagation.TraceContext{},
	}
}

// Tracing returns a middleware that adds OpenTelemetry tracing to requests.
func Tracing() Middleware {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig returns a middleware that creates one span per handler
// invocation. The span context is stored in Request.Context, so the pool
// invocation of a switched request becomes a sibling of the event loop one.
func TracingWithConfig(config TracingConfig) Middleware {
	if config.TracerName == "" {
		config.TracerName = "tws"
	}
	if config.Propagator == nil {
		config.Propagator = propagation.TraceContext{}
	}
	provider := config.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}

	skipMap := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}

	tracer := provider.Tracer(config.TracerName)

	return func(next Handler) Handler {
		return HandlerFunc(func(req *Request, resp *Response) Status {
			if skipMap[req.Path()] {
				return next.Serve(req, resp)
			}

			parent := req.Context()
			parentCtx := config.Propagator.Extract(parent, requestCarrier{req: req})

			spanCtx, span := tracer.Start(
				parentCtx,
				req.Method().String()+" "+req.Path(),
				trace.WithSpanKind(trace.SpanKindServer),
			)
			defer span.End()

			span.SetAttributes(
				attribute.String("http.method", req.Method().String()),
				attribute.String("http.target", req.Path()),
				attribute.Int("http.request_content_length", req.ContentLength()),
				attribute.Bool("tws.in_pool", req.InPool()),
				attribute.String("tws.conn_id", req.ConnID()),
			)

			req.SetContext(spanCtx)
			status := next.Serve(req, resp)
			req.SetContext(parent)

			switch {
			case status == StatusSwitchThread:
				span.AddEvent("switch-thread")
			case !status.Known() || int(status) >= 500:
				span.SetAttributes(attribute.Int("http.status_code", int(status)))
				span.SetStatus(codes.Error, "HTTP error")
			default:
				span.SetAttributes(attribute.Int("http.status_code", int(status)))
				span.SetStatus(codes.Ok, "")
			}
			return status
		})
	}
}

// requestCarrier adapts Request headers to propagation.TextMapCarrier.
// Requests are read-only, so Set is a no-op.
type requestCarrier struct {
	req *Request
}

func (c requestCarrier) Get(key string) string {
	return c.req.Header(key)
}

func (c requestCarrier) Set(string, string) {}

func (c requestCarrier) Keys() []string {
	headers := c.req.Headers()
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	return keys
}
