package pokeapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"resty.dev/v3"
)

// Prometheus metrics for retry operations.
var (
	upstreamRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pokeref_upstream_retries_total",
		Help: "Total number of upstream retry attempts by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for upstream retries.
// Retries are off unless MaxRetries > 0.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial request.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration: no retries.
// Upstream failures surface to the caller verbatim.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     0,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
	}
}

// classifyAttempt classifies a finished attempt for retry decisions.
func classifyAttempt(r *resty.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	if r == nil {
		return ""
	}
	return classifyStatus(r.StatusCode())
}

// retryCondition determines whether a request should be retried.
func retryCondition(r *resty.Response, err error) bool {
	return shouldRetry(classifyAttempt(r, err))
}

// newRetryHook logs retry attempts and records retry metrics.
func newRetryHook(logger zerolog.Logger) func(*resty.Response, error) {
	return func(r *resty.Response, err error) {
		class := classifyAttempt(r, err)
		upstreamRetriesTotal.WithLabelValues(string(class)).Inc()

		event := logger.Debug().Str("error_class", string(class))
		if r != nil && r.Request != nil {
			event = event.Str("url", r.Request.URL).Int("attempt", r.Request.Attempt)
		}
		if err != nil {
			event = event.Err(err)
		} else if r != nil {
			event = event.Int("status", r.StatusCode())
		}
		event.Msg("Retrying upstream request")
	}
}

// applyRetry configures retries on a resty client.
func applyRetry(c *resty.Client, cfg RetryConfig, logger zerolog.Logger) {
	if cfg.MaxRetries <= 0 {
		return
	}
	c.SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.InitialBackoff).
		SetRetryMaxWaitTime(cfg.MaxBackoff).
		AddRetryConditions(retryCondition).
		AddRetryHooks(newRetryHook(logger))
}
