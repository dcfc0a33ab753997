// Package pokeapi provides the HTTP client for the PokeAPI remote data source
// with outbound rate limiting, optional retries, schema validation and
// error classification.
package pokeapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/pokeref/pkg/logging"
	"github.com/Sternrassler/pokeref/pkg/ratelimit"
	"github.com/Sternrassler/pokeref/pkg/resource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"resty.dev/v3"
)

// Prometheus metrics for upstream operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pokeref_upstream_requests_total",
		Help: "Total PokeAPI requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pokeref_upstream_request_duration_seconds",
		Help:    "PokeAPI request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pokeref_upstream_errors_total",
		Help: "Total PokeAPI errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the public PokeAPI v2 root.
const DefaultBaseURL = "https://pokeapi.co/api/v2"

// DefaultListLimit asks list endpoints for every entry in one page.
const DefaultListLimit = 100000

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. https://pokeapi.co/api/v2
	BaseURL string

	// UserAgent identifies this application to PokeAPI.
	UserAgent string

	// Timeout bounds each outbound request. Zero disables the timeout.
	Timeout time.Duration

	// ListLimit is the limit query parameter sent to list endpoints.
	ListLimit int

	// Retry configures retries (off by default).
	Retry RetryConfig

	// RateLimit configures the outbound token bucket.
	RateLimit ratelimit.Config
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		ListLimit: DefaultListLimit,
		Retry:     DefaultRetryConfig(),
		RateLimit: ratelimit.DefaultConfig(),
	}
}

// Client talks to the PokeAPI.
type Client struct {
	http    *resty.Client
	limiter *ratelimit.Limiter
	config  Config
	logger  zerolog.Logger
}

// New creates a new PokeAPI client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.ListLimit < 1 {
		return nil, fmt.Errorf("list_limit must be >= 1 (got %d)", cfg.ListLimit)
	}

	logger := logging.NewLogger("pokeapi-client")

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent)
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}
	applyRetry(httpClient, cfg.Retry, logger)

	return &Client{
		http:    httpClient,
		limiter: ratelimit.New(cfg.RateLimit, logger),
		config:  cfg,
		logger:  logger,
	}, nil
}

// List fetches every list entry of kind in one request.
func (c *Client) List(ctx context.Context, kind resource.Kind) ([]resource.ListEntry, error) {
	page, err := c.ListPage(ctx, kind, 0, c.config.ListLimit)
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

// ListPage fetches one page of a list endpoint: GET /{kind}?offset=&limit=
func (c *Client) ListPage(ctx context.Context, kind resource.Kind, offset, limit int) (*resource.ListPage, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("list: %w", resource.ErrUnknownKind)
	}

	endpoint := kind.Endpoint() + ":list"
	query := map[string]string{"limit": strconv.Itoa(limit)}
	if offset > 0 {
		query["offset"] = strconv.Itoa(offset)
	}

	var page resource.ListPage
	err := c.get(ctx, endpoint, "/{kind}", map[string]string{"kind": kind.Endpoint()}, query, &page)
	if err != nil {
		return nil, err
	}

	if err := page.Validate(); err != nil {
		return nil, c.validationError(endpoint, err)
	}

	return &page, nil
}

// FetchDetail fetches and validates one detail record: GET /{kind}/{name}
func FetchDetail[D resource.Detail](ctx context.Context, c *Client, kind resource.Kind, name string) (D, error) {
	var detail D
	if !kind.Valid() {
		return detail, fmt.Errorf("detail: %w", resource.ErrUnknownKind)
	}

	endpoint := kind.Endpoint() + ":detail"
	pathParams := map[string]string{"kind": kind.Endpoint(), "name": name}
	if err := c.get(ctx, endpoint, "/{kind}/{name}", pathParams, nil, &detail); err != nil {
		return detail, err
	}

	if err := resource.ValidateDetail(detail, name); err != nil {
		return detail, c.validationError(endpoint, err)
	}

	return detail, nil
}

// get performs a rate limited GET and decodes a successful JSON body into out.
func (c *Client) get(ctx context.Context, endpoint, path string, pathParams, query map[string]string, out any) error {
	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		// The upstream was never contacted, so this is not an upstream error
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", endpoint, ctxErr)
		}
		// rate.Limiter refuses waits that would outlast the deadline
		return fmt.Errorf("%s: %w: %w", endpoint, context.DeadlineExceeded, err)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("path", path).
		Interface("params", pathParams).
		Msg("Executing PokeAPI request")

	req := c.http.R().
		SetContext(ctx).
		SetResult(out)
	if len(pathParams) > 0 {
		req.SetPathParams(pathParams)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Get(path)
	if err != nil {
		// A successful status with an error means the body did not decode
		if resp != nil && resp.IsSuccess() {
			upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode())).Inc()
			return c.fail(endpoint, resp.StatusCode(), ErrorClassValidation, "decode body", err)
		}
		upstreamRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return c.fail(endpoint, 0, ErrorClassNetwork, "request failed", err)
	}

	status := resp.StatusCode()
	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()

	if !resp.IsSuccess() {
		class := classifyStatus(status)
		if class == "" {
			class = ErrorClassClient
		}
		return c.fail(endpoint, status, class, resp.Status(), nil)
	}

	return nil
}

// validationError wraps a schema violation.
func (c *Client) validationError(endpoint string, err error) error {
	return c.fail(endpoint, 0, ErrorClassValidation, "schema violation", err)
}

// fail records and logs an upstream failure.
func (c *Client) fail(endpoint string, status int, class ErrorClass, msg string, err error) error {
	upstreamErrorsTotal.WithLabelValues(string(class)).Inc()

	c.logger.Warn().
		Err(err).
		Str("endpoint", endpoint).
		Int("status", status).
		Str("error_class", string(class)).
		Msg("PokeAPI request error")

	return &UpstreamError{
		Endpoint:   endpoint,
		StatusCode: status,
		ErrorClass: class,
		Message:    msg,
		Err:        err,
	}
}

// RateLimitState returns the outbound limiter state.
func (c *Client) RateLimitState() ratelimit.State {
	return c.limiter.State()
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// Close releases the underlying HTTP resources.
func (c *Client) Close() error {
	return c.http.Close()
}
