package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/AshkanYarmoradi/go-adm/adapters"
	"github.com/AshkanYarmoradi/go-adm/adapters/memory"
)

// =============================================================================
// Metrics Tests
// =============================================================================

func TestNew(t *testing.T) {
	t.Run("creates metrics with defaults", func(t *testing.T) {
		m := New()

		assert.NotNil(t, m)
		assert.Equal(t, "adm", m.namespace)
		assert.Equal(t, "unknown", m.serviceName)
	})

	t.Run("with custom options", func(t *testing.T) {
		m := New(
			WithNamespace("custom"),
			WithSubsystem("data"),
			WithMetricsServiceName("catalog"),
		)

		assert.Equal(t, "custom", m.namespace)
		assert.Equal(t, "data", m.subsystem)
		assert.Equal(t, "catalog", m.serviceName)
	})
}

func TestMetrics_Collectors(t *testing.T) {
	m := New()
	assert.Len(t, m.Collectors(), 9)
}

func TestMetrics_Register(t *testing.T) {
	t.Run("registers with custom registry", func(t *testing.T) {
		m := New(WithNamespace("test_register"))
		registry := prometheus.NewRegistry()

		require.NoError(t, m.Register(registry))
	})

	t.Run("returns error on duplicate registration", func(t *testing.T) {
		m := New(WithNamespace("test_dup"))
		registry := prometheus.NewRegistry()

		require.NoError(t, m.Register(registry))
		require.Error(t, m.Register(registry))
	})
}

// =============================================================================
// Gateway Middleware Tests
// =============================================================================

func TestGatewayMiddleware(t *testing.T) {
	ctx := context.Background()
	m := New(WithMetricsServiceName("svc"))

	gateway := m.WrapGateway(adm.GatewayFunc(func(_ context.Context, method, path string, _ ...adm.RequestOption) (any, error) {
		switch path {
		case "/article/1":
			return adm.ObjectOf("id", "1"), nil
		case "/article/404":
			return nil, adm.NewNotFoundError(method, path)
		default:
			return nil, &adm.GatewayError{Kind: adm.ErrServerError, Method: method, Path: path, Status: 503}
		}
	}))

	t.Run("success", func(t *testing.T) {
		v, err := gateway.Perform(ctx, "GET", "/article/1")
		require.NoError(t, err)
		assert.Equal(t, "1", v.(*adm.Object).Value("id"))

		assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayRequestsTotal().WithLabelValues("svc", "GET", StatusSuccess)))
		assert.Equal(t, 0.0, testutil.ToFloat64(m.GatewayRequestsInFlight().WithLabelValues("svc", "GET")))
	})

	t.Run("not found is not an error", func(t *testing.T) {
		_, err := gateway.Perform(ctx, "GET", "/article/404")
		assert.True(t, adm.IsNotFound(err))

		assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayRequestsTotal().WithLabelValues("svc", "GET", StatusNotFound)))
		assert.Equal(t, 0.0, testutil.ToFloat64(m.ErrorsTotal().WithLabelValues("svc", "not_found")))
	})

	t.Run("failures are typed", func(t *testing.T) {
		_, err := gateway.Perform(ctx, "POST", "/article/_search")
		assert.True(t, errors.Is(err, adm.ErrServerError))

		assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayRequestsTotal().WithLabelValues("svc", "POST", StatusError)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal().WithLabelValues("svc", "server_error")))
	})

	t.Run("durations are observed", func(t *testing.T) {
		assert.Equal(t, 2, testutil.CollectAndCount(m.GatewayRequestDuration()))
	})
}

// =============================================================================
// Cache Middleware Tests
// =============================================================================

func TestCacheMiddleware(t *testing.T) {
	ctx := context.Background()
	none := adm.CacheOptions{}
	m := New(WithMetricsServiceName("svc"))
	cache := m.WrapCache(memory.NewCache())

	t.Run("hits and misses", func(t *testing.T) {
		_, found, err := cache.Read(ctx, "k", none)
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, cache.Write(ctx, "k", "v", none))
		_, found, err = cache.Read(ctx, "k", none)
		require.NoError(t, err)
		assert.True(t, found)

		ok, err := cache.Exist(ctx, "k", none)
		require.NoError(t, err)
		assert.True(t, ok)

		assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal().WithLabelValues("svc")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal().WithLabelValues("svc")))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheOperationsTotal().WithLabelValues("svc", OperationRead, StatusSuccess)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheOperationsTotal().WithLabelValues("svc", OperationWrite, StatusSuccess)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheOperationsTotal().WithLabelValues("svc", OperationExist, StatusSuccess)))
	})

	t.Run("expired keys", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, cache.Write(ctx, fmt.Sprintf("app__dao_get/article/%d", i), "v", none))
		}
		n, err := cache.DeleteMatched(ctx, "*article*")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		assert.Equal(t, 3.0, testutil.ToFloat64(m.CacheKeysExpiredTotal().WithLabelValues("svc")))
	})

	t.Run("errors", func(t *testing.T) {
		_, err := cache.DeleteMatched(ctx, "")
		assert.True(t, errors.Is(err, adapters.ErrInvalidPattern))

		assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheOperationsTotal().WithLabelValues("svc", OperationDeleteMatched, StatusError)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal().WithLabelValues("svc", "invalid_pattern")))
	})

	t.Run("works behind a cache service", func(t *testing.T) {
		service := adm.NewCacheService(cache, adm.WithCachePrefix("app"))
		calls := 0
		compute := func(context.Context) (any, error) {
			calls++
			return adm.ObjectOf("id", "9"), nil
		}

		for i := 0; i < 2; i++ {
			_, err := service.GetAdaptor("article", "9").Fetch(ctx, compute)
			require.NoError(t, err)
		}
		assert.Equal(t, 1, calls)
		assert.IsType(t, &memory.Cache{}, cache.Unwrap())
	})
}

func TestErrorTypeName(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{adm.NewNotFoundError("GET", "/x"), "not_found"},
		{&adm.GatewayError{Kind: adm.ErrConnection, Err: context.DeadlineExceeded}, "connection"},
		{fmt.Errorf("wrapped: %w", adm.ErrParse), "parse"},
		{&adm.GatewayError{Kind: adm.ErrTooManyRequests}, "too_many_requests"},
		{&adm.GatewayError{}, "gateway"},
		{adapters.ErrAdapterClosed, "adapter_closed"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, errorTypeName(tt.err))
	}
}
