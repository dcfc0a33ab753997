package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for outbound rate limiting.
var (
	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pokeref_ratelimit_waits_total",
		Help: "Total number of outbound requests that had to wait for a token",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pokeref_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a rate limit token",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	rateLimitRejectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pokeref_ratelimit_rejects_total",
		Help: "Total number of waits abandoned because the context ended",
	})
)

// Config holds limiter configuration.
type Config struct {
	// RequestsPerSecond is the sustained rate. Zero or negative disables limiting.
	RequestsPerSecond float64

	// Burst is the bucket size. Defaults to 1 when limiting is enabled.
	Burst int
}

// DefaultConfig returns a conservative limit for the public PokeAPI.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 50,
		Burst:             25,
	}
}

// Limiter gates outbound requests.
type Limiter struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// New creates a limiter from cfg.
func New(cfg Config, logger zerolog.Logger) *Limiter {
	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if burst <= 0 {
			burst = 1
		}
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Unlimited returns a limiter that never blocks.
func Unlimited() *Limiter {
	return New(Config{}, zerolog.Nop())
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}

	// Fast path: a token is available right now
	if l.limiter.Allow() {
		return nil
	}

	rateLimitWaitsTotal.Inc()
	start := time.Now()

	if err := l.limiter.Wait(ctx); err != nil {
		rateLimitRejectsTotal.Inc()
		l.logger.Warn().Err(err).Msg("Rate limit wait abandoned")
		return fmt.Errorf("rate limit wait: %w", err)
	}

	waited := time.Since(start)
	rateLimitWaitSeconds.Observe(waited.Seconds())
	l.logger.Debug().Dur("waited", waited).Msg("Request throttled")
	return nil
}

// State returns the current limiter state.
func (l *Limiter) State() State {
	return State{
		Limit:  float64(l.limiter.Limit()),
		Burst:  l.limiter.Burst(),
		Tokens: l.limiter.Tokens(),
	}
}
