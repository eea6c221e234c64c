// Package metrics provides Prometheus metrics integration for adm.
//
// This package enables observability through Prometheus metrics for
// data layer requests and response caching.
//
// Basic usage:
//
//	metrics := metrics.New()
//	// Register with Prometheus
//	prometheus.MustRegister(metrics.Collectors()...)
//
//	// Wrap the gateway used by DAOs
//	gateway := metrics.WrapGateway(adm.NewDataGateway(url))
//
//	// Wrap the cache behind the CacheService
//	cache := metrics.WrapCache(memory.NewCache())
//
// The metrics collected include:
//   - Gateway request counts, durations and in-flight requests
//   - Cache operations with hit and miss counts
//   - Keys removed by expiry
//   - Error counts by type
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/AshkanYarmoradi/go-adm/adapters"
)

// Default metric labels.
const (
	LabelMethod    = "method"
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelErrorType = "error_type"
	LabelService   = "service"
)

// Status values.
const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
	StatusError    = "error"
)

// Operation values.
const (
	OperationExist         = "exist"
	OperationRead          = "read"
	OperationWrite         = "write"
	OperationDeleteMatched = "delete_matched"
)

// Ensure wrappers implement the interfaces they wrap.
var (
	_ adm.Gateway = (*GatewayMiddleware)(nil)
	_ adm.Cache   = (*CacheMiddleware)(nil)
)

// Metrics holds all Prometheus metrics for adm.
type Metrics struct {
	namespace   string
	subsystem   string
	serviceName string

	// Gateway metrics
	gatewayRequestsTotal    *prometheus.CounterVec
	gatewayRequestDuration  *prometheus.HistogramVec
	gatewayRequestsInFlight *prometheus.GaugeVec

	// Cache metrics
	cacheOperationsTotal   *prometheus.CounterVec
	cacheOperationDuration *prometheus.HistogramVec
	cacheHitsTotal         *prometheus.CounterVec
	cacheMissesTotal       *prometheus.CounterVec
	cacheKeysExpiredTotal  *prometheus.CounterVec

	// Error metrics
	errorsTotal *prometheus.CounterVec
}

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithNamespace sets the Prometheus namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(m *Metrics) {
		m.namespace = namespace
	}
}

// WithSubsystem sets the Prometheus subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(m *Metrics) {
		m.subsystem = subsystem
	}
}

// WithMetricsServiceName sets the service name label.
func WithMetricsServiceName(name string) MetricsOption {
	return func(m *Metrics) {
		m.serviceName = name
	}
}

// New creates a new Metrics instance with default settings.
func New(opts ...MetricsOption) *Metrics {
	m := &Metrics{
		namespace:   "adm",
		serviceName: "unknown",
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initMetrics()
	return m
}

func (m *Metrics) initMetrics() {
	m.gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "gateway_requests_total",
			Help:      "Total number of data layer requests.",
		},
		[]string{LabelService, LabelMethod, LabelStatus},
	)

	m.gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "gateway_request_duration_seconds",
			Help:      "Duration of data layer requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelService, LabelMethod},
	)

	m.gatewayRequestsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "gateway_requests_in_flight",
			Help:      "Number of data layer requests currently in flight.",
		},
		[]string{LabelService, LabelMethod},
	)

	m.cacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations.",
		},
		[]string{LabelService, LabelOperation, LabelStatus},
	)

	m.cacheOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "cache_operation_duration_seconds",
			Help:      "Duration of cache operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelService, LabelOperation},
	)

	m.cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "cache_hits_total",
			Help:      "Total number of cache reads that found an entry.",
		},
		[]string{LabelService},
	)

	m.cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "cache_misses_total",
			Help:      "Total number of cache reads that found nothing.",
		},
		[]string{LabelService},
	)

	m.cacheKeysExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "cache_keys_expired_total",
			Help:      "Total number of cache keys removed by pattern expiry.",
		},
		[]string{LabelService},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors by type.",
		},
		[]string{LabelService, LabelErrorType},
	)
}

// Collectors returns all Prometheus collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.gatewayRequestsTotal,
		m.gatewayRequestDuration,
		m.gatewayRequestsInFlight,
		m.cacheOperationsTotal,
		m.cacheOperationDuration,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.cacheKeysExpiredTotal,
		m.errorsTotal,
	}
}

// MustRegister registers all collectors with the default registry.
// Panics if registration fails.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.Collectors()...)
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, collector := range m.Collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// errorTypeName extracts the error type name based on sentinel errors.
func errorTypeName(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, adm.ErrNotFound):
		return "not_found"
	case errors.Is(err, adm.ErrConnection):
		return "connection"
	case errors.Is(err, adm.ErrParse):
		return "parse"
	case errors.Is(err, adm.ErrBadRequest):
		return "bad_request"
	case errors.Is(err, adm.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, adm.ErrForbidden):
		return "forbidden"
	case errors.Is(err, adm.ErrConflict):
		return "conflict"
	case errors.Is(err, adm.ErrUnprocessableEntity):
		return "unprocessable_entity"
	case errors.Is(err, adm.ErrRequestTimeout):
		return "request_timeout"
	case errors.Is(err, adm.ErrTooManyRequests):
		return "too_many_requests"
	case errors.Is(err, adm.ErrServerError):
		return "server_error"
	case errors.Is(err, adm.ErrGateway):
		return "gateway"
	case errors.Is(err, adapters.ErrAdapterClosed):
		return "adapter_closed"
	case errors.Is(err, adapters.ErrInvalidPattern):
		return "invalid_pattern"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}

// =============================================================================
// Gateway Middleware
// =============================================================================

// GatewayMiddleware wraps an adm.Gateway with metrics.
type GatewayMiddleware struct {
	gateway adm.Gateway
	metrics *Metrics
}

// WrapGateway wraps a gateway with metrics collection.
func (m *Metrics) WrapGateway(gateway adm.Gateway) *GatewayMiddleware {
	return &GatewayMiddleware{
		gateway: gateway,
		metrics: m,
	}
}

// Perform performs the request with metrics. Not-found responses are
// counted with their own status since DAOs treat them as normal results.
func (gm *GatewayMiddleware) Perform(ctx context.Context, method, path string, opts ...adm.RequestOption) (any, error) {
	m := gm.metrics
	m.gatewayRequestsInFlight.WithLabelValues(m.serviceName, method).Inc()
	defer m.gatewayRequestsInFlight.WithLabelValues(m.serviceName, method).Dec()

	start := time.Now()
	result, err := gm.gateway.Perform(ctx, method, path, opts...)
	m.gatewayRequestDuration.WithLabelValues(m.serviceName, method).Observe(time.Since(start).Seconds())

	status := StatusSuccess
	switch {
	case adm.IsNotFound(err):
		status = StatusNotFound
	case err != nil:
		status = StatusError
		m.errorsTotal.WithLabelValues(m.serviceName, errorTypeName(err)).Inc()
	}
	m.gatewayRequestsTotal.WithLabelValues(m.serviceName, method, status).Inc()

	return result, err
}

// =============================================================================
// Cache Middleware
// =============================================================================

// CacheMiddleware wraps an adm.Cache with metrics.
type CacheMiddleware struct {
	cache   adm.Cache
	metrics *Metrics
}

// WrapCache wraps a cache with metrics collection.
func (m *Metrics) WrapCache(cache adm.Cache) *CacheMiddleware {
	return &CacheMiddleware{
		cache:   cache,
		metrics: m,
	}
}

func (cm *CacheMiddleware) observe(operation string, start time.Time, err error) {
	m := cm.metrics
	m.cacheOperationDuration.WithLabelValues(m.serviceName, operation).Observe(time.Since(start).Seconds())

	status := StatusSuccess
	if err != nil {
		status = StatusError
		m.errorsTotal.WithLabelValues(m.serviceName, errorTypeName(err)).Inc()
	}
	m.cacheOperationsTotal.WithLabelValues(m.serviceName, operation, status).Inc()
}

// Exist checks a key with metrics.
func (cm *CacheMiddleware) Exist(ctx context.Context, key string, opts adm.CacheOptions) (bool, error) {
	start := time.Now()
	ok, err := cm.cache.Exist(ctx, key, opts)
	cm.observe(OperationExist, start, err)
	return ok, err
}

// Read reads a key with metrics, counting hits and misses.
func (cm *CacheMiddleware) Read(ctx context.Context, key string, opts adm.CacheOptions) (any, bool, error) {
	start := time.Now()
	v, found, err := cm.cache.Read(ctx, key, opts)
	cm.observe(OperationRead, start, err)

	if err == nil {
		if found {
			cm.metrics.cacheHitsTotal.WithLabelValues(cm.metrics.serviceName).Inc()
		} else {
			cm.metrics.cacheMissesTotal.WithLabelValues(cm.metrics.serviceName).Inc()
		}
	}
	return v, found, err
}

// Write writes a key with metrics.
func (cm *CacheMiddleware) Write(ctx context.Context, key string, value any, opts adm.CacheOptions) error {
	start := time.Now()
	err := cm.cache.Write(ctx, key, value, opts)
	cm.observe(OperationWrite, start, err)
	return err
}

// DeleteMatched deletes keys with metrics.
func (cm *CacheMiddleware) DeleteMatched(ctx context.Context, pattern string) (int, error) {
	start := time.Now()
	n, err := cm.cache.DeleteMatched(ctx, pattern)
	cm.observe(OperationDeleteMatched, start, err)
	if n > 0 {
		cm.metrics.cacheKeysExpiredTotal.WithLabelValues(cm.metrics.serviceName).Add(float64(n))
	}
	return n, err
}

// Unwrap returns the wrapped cache.
func (cm *CacheMiddleware) Unwrap() adm.Cache {
	return cm.cache
}

// =============================================================================
// Manual Metric Recording
// =============================================================================

// RecordError records a custom error.
func (m *Metrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(m.serviceName, errorType).Inc()
}

// =============================================================================
// Getters for testing
// =============================================================================

// GatewayRequestsTotal returns the gateway requests counter.
func (m *Metrics) GatewayRequestsTotal() *prometheus.CounterVec {
	return m.gatewayRequestsTotal
}

// GatewayRequestDuration returns the gateway duration histogram.
func (m *Metrics) GatewayRequestDuration() *prometheus.HistogramVec {
	return m.gatewayRequestDuration
}

// GatewayRequestsInFlight returns the in-flight requests gauge.
func (m *Metrics) GatewayRequestsInFlight() *prometheus.GaugeVec {
	return m.gatewayRequestsInFlight
}

// CacheOperationsTotal returns the cache operations counter.
func (m *Metrics) CacheOperationsTotal() *prometheus.CounterVec {
	return m.cacheOperationsTotal
}

// CacheOperationDuration returns the cache duration histogram.
func (m *Metrics) CacheOperationDuration() *prometheus.HistogramVec {
	return m.cacheOperationDuration
}

// CacheHitsTotal returns the cache hits counter.
func (m *Metrics) CacheHitsTotal() *prometheus.CounterVec {
	return m.cacheHitsTotal
}

// CacheMissesTotal returns the cache misses counter.
func (m *Metrics) CacheMissesTotal() *prometheus.CounterVec {
	return m.cacheMissesTotal
}

// CacheKeysExpiredTotal returns the expired keys counter.
func (m *Metrics) CacheKeysExpiredTotal() *prometheus.CounterVec {
	return m.cacheKeysExpiredTotal
}

// ErrorsTotal returns the errors counter.
func (m *Metrics) ErrorsTotal() *prometheus.CounterVec {
	return m.errorsTotal
}
