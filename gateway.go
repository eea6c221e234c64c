package adm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Gateway performs calls against the data layer and returns parsed JSON
// (see DecodeJSON). Failures are *GatewayError values; a missing resource
// matches ErrNotFound.
type Gateway interface {
	Perform(ctx context.Context, method, path string, opts ...RequestOption) (any, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, method, path string, opts ...RequestOption) (any, error)

// Perform calls f.
func (f GatewayFunc) Perform(ctx context.Context, method, path string, opts ...RequestOption) (any, error) {
	return f(ctx, method, path, opts...)
}

// RequestOptions configures one gateway call.
type RequestOptions struct {
	// Body is sent as is when it is a string or []byte, JSON encoded otherwise.
	Body    any
	Headers map[string]string

	// Timeout bounds this call. Zero uses the gateway default.
	Timeout time.Duration

	// CacheAdaptor caches the parsed response.
	CacheAdaptor *CachedActionAdaptor

	// ResponseAdaptor turns the parsed response into the returned value.
	ResponseAdaptor ResponseAdaptor
}

// RequestOption configures a gateway call.
type RequestOption func(*RequestOptions)

// WithBody sets the request body.
func WithBody(body any) RequestOption {
	return func(o *RequestOptions) {
		o.Body = body
	}
}

// WithHeader adds a request header.
func WithHeader(key, value string) RequestOption {
	return func(o *RequestOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}
		o.Headers[key] = value
	}
}

// WithRequestTimeout bounds the call duration.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(o *RequestOptions) {
		o.Timeout = d
	}
}

// WithCacheAdaptor caches the call through a.
func WithCacheAdaptor(a *CachedActionAdaptor) RequestOption {
	return func(o *RequestOptions) {
		o.CacheAdaptor = a
	}
}

// WithResponseAdaptor adapts the parsed response.
func WithResponseAdaptor(a ResponseAdaptor) RequestOption {
	return func(o *RequestOptions) {
		o.ResponseAdaptor = a
	}
}

// NewRequestOptions applies opts.
func NewRequestOptions(opts ...RequestOption) RequestOptions {
	var o RequestOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PerformWith runs call honouring the cache and response adaptors in o.
//
// The parsed response is what gets cached. On a miss the response adaptor
// runs before the cache write so adaptors that update a model (reloads)
// are visible to the cache key computation; on a hit it runs on the cached
// value.
func PerformWith(ctx context.Context, o RequestOptions, call ComputeFunc) (any, error) {
	if o.CacheAdaptor == nil {
		raw, err := call(ctx)
		if err != nil {
			return nil, err
		}
		return adapt(o.ResponseAdaptor, raw)
	}

	var (
		adapted    any
		wasAdapted bool
	)
	raw, err := o.CacheAdaptor.Fetch(ctx, func(ctx context.Context) (any, error) {
		raw, err := call(ctx)
		if err != nil {
			return nil, err
		}
		adapted, err = adapt(o.ResponseAdaptor, raw)
		if err != nil {
			return nil, err
		}
		wasAdapted = true
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	if wasAdapted {
		return adapted, nil
	}
	return adapt(o.ResponseAdaptor, raw)
}

func adapt(a ResponseAdaptor, raw any) (any, error) {
	if a == nil {
		return raw, nil
	}
	return a.Adapt(raw)
}

// DataGateway is the HTTP implementation of Gateway.
type DataGateway struct {
	baseURL    string
	token      string
	headers    map[string]string
	httpClient *http.Client
	timeout    time.Duration
	logger     Logger
}

// Ensure interface compliance at compile time
var _ Gateway = (*DataGateway)(nil)

// DataGatewayOption configures a DataGateway.
type DataGatewayOption func(*DataGateway)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) DataGatewayOption {
	return func(g *DataGateway) { g.httpClient = hc }
}

// WithTimeout sets the HTTP client timeout. The gateway applies it to its
// own copy of the client, so a shared client passed to WithHTTPClient is
// left untouched.
func WithTimeout(d time.Duration) DataGatewayOption {
	return func(g *DataGateway) { g.timeout = d }
}

// WithBearerToken sends "Authorization: Bearer <token>".
func WithBearerToken(token string) DataGatewayOption {
	return func(g *DataGateway) { g.token = token }
}

// WithDefaultHeader adds a header to every request.
func WithDefaultHeader(key, value string) DataGatewayOption {
	return func(g *DataGateway) { g.headers[key] = value }
}

// WithGatewayLogger sets the logger.
func WithGatewayLogger(l Logger) DataGatewayOption {
	return func(g *DataGateway) { g.logger = l }
}

// NewDataGateway creates a gateway for baseURL (e.g. "http://localhost:9200").
func NewDataGateway(baseURL string, opts ...DataGatewayOption) *DataGateway {
	g := &DataGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    make(map[string]string),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     &noopLogger{},
	}
	for _, o := range opts {
		o(g)
	}
	if g.httpClient == nil {
		g.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if g.timeout > 0 {
		hc := *g.httpClient
		hc.Timeout = g.timeout
		g.httpClient = &hc
	}
	g.logger = loggerOrNoop(g.logger)
	return g
}

// BaseURL returns the data layer URL.
func (g *DataGateway) BaseURL() string {
	return g.baseURL
}

// Perform executes the call.
func (g *DataGateway) Perform(ctx context.Context, method, path string, opts ...RequestOption) (any, error) {
	o := NewRequestOptions(opts...)
	return PerformWith(ctx, o, func(ctx context.Context) (any, error) {
		return g.do(ctx, method, path, o)
	})
}

func (g *DataGateway) do(ctx context.Context, method, path string, o RequestOptions) (any, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	body, err := encodeBody(o.Body)
	if err != nil {
		return nil, &GatewayError{Kind: ErrBadRequest, Method: method, Path: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, &GatewayError{Kind: ErrGateway, Method: method, Path: path, Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if o.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	for k, v := range g.headers {
		req.Header.Set(k, v)
	}
	for k, v := range o.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Warn("Gateway request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return nil, &GatewayError{Kind: ErrConnection, Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Kind: ErrConnection, Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}
	g.logger.Debug("Gateway request", "method", method, "path", path, "status", resp.StatusCode,
		"request_id", requestID, "duration", time.Since(start))

	if kind := StatusKind(resp.StatusCode); kind != nil {
		return nil, &GatewayError{Kind: kind, Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
	}

	parsed, err := DecodeJSON(data)
	if err != nil {
		return nil, &GatewayError{Kind: ErrParse, Method: method, Path: path, Status: resp.StatusCode, Body: string(data), Err: err}
	}
	return parsed, nil
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(b), nil
	case []byte:
		return bytes.NewReader(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		return bytes.NewReader(data), nil
	}
}
