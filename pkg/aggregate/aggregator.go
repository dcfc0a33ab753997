package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/pokeref/pkg/logging"
	"github.com/Sternrassler/pokeref/pkg/pokeapi"
	"github.com/Sternrassler/pokeref/pkg/resource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Prometheus metrics for fan-out operations.
var (
	fanoutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pokeref_fanout_duration_seconds",
		Help:    "Duration of list+detail aggregations by kind",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"kind"})

	fanoutEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pokeref_fanout_entries",
		Help: "Number of entries in the last successful aggregation by kind",
	}, []string{"kind"})

	fanoutFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pokeref_fanout_failures_total",
		Help: "Aggregations that failed by kind and stage (list, detail)",
	}, []string{"kind", "stage"})
)

// Config holds aggregator configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel detail requests.
	MaxConcurrency int

	// Timeout bounds a whole aggregation. Zero means no bound beyond the
	// caller's context.
	Timeout time.Duration
}

// DefaultConfig returns the default aggregator configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 16,
	}
}

// Source is the upstream an Aggregator fans out against.
type Source[D resource.Detail] interface {
	// List returns every list entry of kind.
	List(ctx context.Context, kind resource.Kind) ([]resource.ListEntry, error)

	// Detail returns the validated detail record kind/name.
	Detail(ctx context.Context, kind resource.Kind, name string) (D, error)
}

// upstream adapts a PokeAPI client to Source.
type upstream[D resource.Detail] struct {
	client *pokeapi.Client
}

// Upstream returns a Source backed by the PokeAPI client, or nil if client
// is nil so that New rejects it.
func Upstream[D resource.Detail](client *pokeapi.Client) Source[D] {
	if client == nil {
		return nil
	}
	return upstream[D]{client: client}
}

func (u upstream[D]) List(ctx context.Context, kind resource.Kind) ([]resource.ListEntry, error) {
	return u.client.List(ctx, kind)
}

func (u upstream[D]) Detail(ctx context.Context, kind resource.Kind, name string) (D, error) {
	return pokeapi.FetchDetail[D](ctx, u.client, kind, name)
}

// Aggregator joins a kind's list with its detail records.
type Aggregator[D resource.Detail] struct {
	source Source[D]
	kind   resource.Kind
	config Config
	logger zerolog.Logger
}

// New creates an aggregator for kind.
func New[D resource.Detail](source Source[D], kind resource.Kind, config Config) (*Aggregator[D], error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if !kind.IsAggregated() {
		return nil, fmt.Errorf("%w: %q does not support aggregation", resource.ErrUnknownKind, kind)
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}

	return &Aggregator[D]{
		source: source,
		kind:   kind,
		config: config,
		logger: logging.NewLogger("aggregator").With().Str("kind", kind.String()).Logger(),
	}, nil
}

// Kind returns the kind this aggregator serves.
func (a *Aggregator[D]) Kind() resource.Kind {
	return a.kind
}

// Aggregate fetches the list and every detail record, preserving list order.
// Any failure discards all partial results.
func (a *Aggregator[D]) Aggregate(ctx context.Context) ([]resource.EnrichedItem[D], error) {
	start := time.Now()

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	entries, err := a.source.List(ctx, a.kind)
	if err != nil {
		fanoutFailuresTotal.WithLabelValues(a.kind.String(), "list").Inc()
		return nil, fmt.Errorf("list %s: %w", a.kind, err)
	}

	a.logger.Debug().
		Int("entries", len(entries)).
		Int("concurrency", a.config.MaxConcurrency).
		Msg("Starting detail fan-out")

	details := make([]D, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.MaxConcurrency)

	for i, entry := range entries {
		g.Go(func() error {
			// Skip remaining work once a sibling has failed
			if err := gctx.Err(); err != nil {
				return err
			}

			detail, err := a.source.Detail(gctx, a.kind, entry.Name)
			if err != nil {
				return fmt.Errorf("detail %s/%s: %w", a.kind, entry.Name, err)
			}
			details[i] = detail
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		fanoutFailuresTotal.WithLabelValues(a.kind.String(), "detail").Inc()
		a.logger.Warn().
			Err(err).
			Int("entries", len(entries)).
			Dur("duration", time.Since(start)).
			Msg("Fan-out failed")
		return nil, err
	}

	items := make([]resource.EnrichedItem[D], len(entries))
	for i, entry := range entries {
		items[i] = resource.EnrichedItem[D]{ListEntry: entry, Details: details[i]}
	}

	duration := time.Since(start)
	fanoutDuration.WithLabelValues(a.kind.String()).Observe(duration.Seconds())
	fanoutEntries.WithLabelValues(a.kind.String()).Set(float64(len(items)))

	a.logger.Info().
		Int("entries", len(items)).
		Dur("duration", duration).
		Msg("Fan-out complete")

	return items, nil
}

// FindByName aggregates the full list and returns the item named name,
// or nil when no entry has that name.
func (a *Aggregator[D]) FindByName(ctx context.Context, name string) (*resource.EnrichedItem[D], error) {
	items, err := a.Aggregate(ctx)
	if err != nil {
		return nil, err
	}
	return resource.Find(items, name), nil
}
