// Package tracing provides OpenTelemetry integration for adm.
//
// This package enables distributed tracing for data layer requests and
// response caching.
//
// Basic usage:
//
//	tp := sdktrace.NewTracerProvider(...)
//	otel.SetTracerProvider(tp)
//
//	tracer := tracing.NewTracer()
//	gateway := tracing.NewGatewayMiddleware(adm.NewDataGateway(url), tracer)
//	cache := tracing.NewCacheMiddleware(memory.NewCache(), tracer)
//
// The tracing middleware captures:
//   - Request method, path and duration
//   - Whether a request went through the response cache
//   - Cache hits and expired key counts
//   - Error details when requests fail
//
// Gateway spans propagate their context to the data layer through the
// W3C traceparent header.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/AshkanYarmoradi/go-adm"
)

const (
	// TracerName is the name of the adm tracer.
	TracerName = "github.com/AshkanYarmoradi/go-adm"

	// DefaultServiceName is the default service name for spans.
	DefaultServiceName = "adm"
)

// Ensure wrappers implement the interfaces they wrap.
var (
	_ adm.Gateway = (*GatewayMiddleware)(nil)
	_ adm.Cache   = (*CacheMiddleware)(nil)
)

// Tracer wraps OpenTelemetry tracer for adm operations.
type Tracer struct {
	tracer      trace.Tracer
	propagator  propagation.TextMapPropagator
	serviceName string
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerProvider sets a custom TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *Tracer) {
		t.tracer = tp.Tracer(TracerName)
	}
}

// WithPropagator sets the propagator used to inject span context into
// gateway requests.
func WithPropagator(p propagation.TextMapPropagator) TracerOption {
	return func(t *Tracer) {
		t.propagator = p
	}
}

// WithServiceName sets the service name for spans.
func WithServiceName(name string) TracerOption {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// NewTracer creates a new Tracer with the global TracerProvider.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{
		tracer:      otel.Tracer(TracerName),
		propagator:  propagation.TraceContext{},
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Tracer returns the underlying OpenTelemetry tracer.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

// =============================================================================
// Gateway Middleware
// =============================================================================

// GatewayMiddleware wraps an adm.Gateway with tracing.
type GatewayMiddleware struct {
	gateway adm.Gateway
	tracer  *Tracer
}

// NewGatewayMiddleware wraps a gateway with tracing.
func NewGatewayMiddleware(gateway adm.Gateway, tracer *Tracer) *GatewayMiddleware {
	return &GatewayMiddleware{
		gateway: gateway,
		tracer:  tracer,
	}
}

// Perform performs the request inside a client span.
// Not-found responses end the span with an Ok status.
func (m *GatewayMiddleware) Perform(ctx context.Context, method, path string, opts ...adm.RequestOption) (any, error) {
	ctx, span := m.tracer.StartSpan(ctx, fmt.Sprintf("gateway.%s", method),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	o := adm.NewRequestOptions(opts...)
	span.SetAttributes(
		attribute.String("adm.service", m.tracer.serviceName),
		attribute.String("adm.request.method", method),
		attribute.String("adm.request.path", path),
		attribute.Bool("adm.request.cached", o.CacheAdaptor != nil && o.CacheAdaptor.Enabled()),
	)

	carrier := propagation.MapCarrier{}
	m.tracer.propagator.Inject(ctx, carrier)
	for _, k := range carrier.Keys() {
		opts = append(opts, adm.WithHeader(k, carrier.Get(k)))
	}

	result, err := m.gateway.Perform(ctx, method, path, opts...)

	switch {
	case adm.IsNotFound(err):
		span.SetAttributes(attribute.Bool("adm.request.not_found", true))
		span.SetStatus(codes.Ok, "")
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		span.SetStatus(codes.Ok, "")
	}

	return result, err
}

// =============================================================================
// Cache Middleware
// =============================================================================

// CacheMiddleware wraps an adm.Cache with tracing.
type CacheMiddleware struct {
	cache  adm.Cache
	tracer *Tracer
}

// NewCacheMiddleware wraps a cache with tracing.
func NewCacheMiddleware(cache adm.Cache, tracer *Tracer) *CacheMiddleware {
	return &CacheMiddleware{
		cache:  cache,
		tracer: tracer,
	}
}

func (m *CacheMiddleware) start(ctx context.Context, operation, key string, opts adm.CacheOptions) (context.Context, trace.Span) {
	ctx, span := m.tracer.StartSpan(ctx, "cache."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("adm.service", m.tracer.serviceName),
		attribute.String("adm.cache.key", key),
	)
	if opts.Namespace != "" {
		span.SetAttributes(attribute.String("adm.cache.namespace", opts.Namespace))
	}
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// Exist checks a key with tracing.
func (m *CacheMiddleware) Exist(ctx context.Context, key string, opts adm.CacheOptions) (bool, error) {
	ctx, span := m.start(ctx, "exist", key, opts)
	defer span.End()

	ok, err := m.cache.Exist(ctx, key, opts)
	span.SetAttributes(attribute.Bool("adm.cache.exists", ok))
	finish(span, err)
	return ok, err
}

// Read reads a key with tracing.
func (m *CacheMiddleware) Read(ctx context.Context, key string, opts adm.CacheOptions) (any, bool, error) {
	ctx, span := m.start(ctx, "read", key, opts)
	defer span.End()

	v, found, err := m.cache.Read(ctx, key, opts)
	span.SetAttributes(attribute.Bool("adm.cache.hit", found))
	finish(span, err)
	return v, found, err
}

// Write writes a key with tracing.
func (m *CacheMiddleware) Write(ctx context.Context, key string, value any, opts adm.CacheOptions) error {
	ctx, span := m.start(ctx, "write", key, opts)
	defer span.End()

	if opts.ExpiresIn > 0 {
		span.SetAttributes(attribute.Int64("adm.cache.expires_in_ms", opts.ExpiresIn.Milliseconds()))
	}
	err := m.cache.Write(ctx, key, value, opts)
	finish(span, err)
	return err
}

// DeleteMatched deletes keys with tracing.
func (m *CacheMiddleware) DeleteMatched(ctx context.Context, pattern string) (int, error) {
	ctx, span := m.tracer.StartSpan(ctx, "cache.delete_matched",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	span.SetAttributes(
		attribute.String("adm.service", m.tracer.serviceName),
		attribute.String("adm.cache.pattern", pattern),
	)
	n, err := m.cache.DeleteMatched(ctx, pattern)
	span.SetAttributes(attribute.Int("adm.cache.deleted", n))
	finish(span, err)
	return n, err
}

// =============================================================================
// Span Helpers
// =============================================================================

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, opts...)
}

// SetError sets an error on the current span.
func SetError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attrs...)
}
