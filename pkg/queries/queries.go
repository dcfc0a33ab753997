package queries

import (
	"context"
	"fmt"

	"github.com/Sternrassler/pokeref/pkg/cache"
	"github.com/Sternrassler/pokeref/pkg/logging"
	"github.com/Sternrassler/pokeref/pkg/resource"
	"github.com/Sternrassler/pokeref/pkg/rpc"
	"github.com/rs/zerolog"
)

// Queries serves the procedures through the query cache. Every list is
// aggregated at most once until it is invalidated or collected, no matter
// how many callers ask for it concurrently.
type Queries struct {
	cache  *cache.Cache
	procs  rpc.Procedures
	logger zerolog.Logger
}

var (
	_ rpc.Procedures  = (*Queries)(nil)
	_ rpc.Prefetcher  = (*Queries)(nil)
	_ rpc.Invalidator = (*Queries)(nil)
)

// New binds procs to c.
func New(c *cache.Cache, procs rpc.Procedures) (*Queries, error) {
	if c == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if procs == nil {
		return nil, fmt.Errorf("procedures are required")
	}
	return &Queries{
		cache:  c,
		procs:  procs,
		logger: logging.NewLogger("queries"),
	}, nil
}

// Cache returns the underlying query cache.
func (q *Queries) Cache() *cache.Cache {
	return q.cache
}

func list[D resource.Detail](ctx context.Context, q *Queries, kind resource.Kind, load cache.Loader[[]resource.EnrichedItem[D]]) ([]resource.EnrichedItem[D], error) {
	return cache.Ensure(ctx, q.cache, Keys(kind).List(), load, ListOptions)
}

// detailLoader answers from a cached list of the same kind when there is
// one and calls the get procedure otherwise.
func detailLoader[D resource.Detail](q *Queries, kind resource.Kind, name string, get func(context.Context, string) (*resource.EnrichedItem[D], error)) cache.Loader[*resource.EnrichedItem[D]] {
	return func(ctx context.Context) (*resource.EnrichedItem[D], error) {
		if items, ok := cache.Get[[]resource.EnrichedItem[D]](q.cache, Keys(kind).List()); ok {
			q.logger.Debug().
				Str("kind", kind.String()).
				Str("name", name).
				Msg("Detail served from cached list")
			return resource.Find(items, name), nil
		}
		return get(ctx, name)
	}
}

func detail[D resource.Detail](ctx context.Context, q *Queries, kind resource.Kind, name string, get func(context.Context, string) (*resource.EnrichedItem[D], error)) (*resource.EnrichedItem[D], error) {
	if err := rpc.ValidateName(name); err != nil {
		return nil, err
	}
	return cache.Ensure(ctx, q.cache, Keys(kind).Detail(name), detailLoader(q, kind, name, get), DetailOptions)
}

// ListAbilities implements rpc.Procedures.
func (q *Queries) ListAbilities(ctx context.Context) ([]resource.EnrichedItem[resource.AbilityDetail], error) {
	return list[resource.AbilityDetail](ctx, q, resource.Abilities, q.procs.ListAbilities)
}

// GetAbilityByName implements rpc.Procedures.
func (q *Queries) GetAbilityByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.AbilityDetail], error) {
	return detail(ctx, q, resource.Abilities, name, q.procs.GetAbilityByName)
}

// ListBerries implements rpc.Procedures.
func (q *Queries) ListBerries(ctx context.Context) ([]resource.EnrichedItem[resource.BerryDetail], error) {
	return list[resource.BerryDetail](ctx, q, resource.Berries, q.procs.ListBerries)
}

// GetBerryByName implements rpc.Procedures.
func (q *Queries) GetBerryByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.BerryDetail], error) {
	return detail(ctx, q, resource.Berries, name, q.procs.GetBerryByName)
}

// ListItems implements rpc.Procedures.
func (q *Queries) ListItems(ctx context.Context) ([]resource.EnrichedItem[resource.ItemDetail], error) {
	return list[resource.ItemDetail](ctx, q, resource.Items, q.procs.ListItems)
}

// GetItemByName implements rpc.Procedures.
func (q *Queries) GetItemByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.ItemDetail], error) {
	return detail(ctx, q, resource.Items, name, q.procs.GetItemByName)
}

// ListMoves implements rpc.Procedures.
func (q *Queries) ListMoves(ctx context.Context) ([]resource.EnrichedItem[resource.MoveDetail], error) {
	return list[resource.MoveDetail](ctx, q, resource.Moves, q.procs.ListMoves)
}

// GetMoveByName implements rpc.Procedures.
func (q *Queries) GetMoveByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.MoveDetail], error) {
	return detail(ctx, q, resource.Moves, name, q.procs.GetMoveByName)
}

// ListTypes implements rpc.Procedures.
func (q *Queries) ListTypes(ctx context.Context) ([]resource.EnrichedItem[resource.TypeDetail], error) {
	return list[resource.TypeDetail](ctx, q, resource.Types, q.procs.ListTypes)
}

// GetTypeByName implements rpc.Procedures.
func (q *Queries) GetTypeByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.TypeDetail], error) {
	return detail(ctx, q, resource.Types, name, q.procs.GetTypeByName)
}

// ListPokemon implements rpc.Procedures.
func (q *Queries) ListPokemon(ctx context.Context) ([]resource.ListEntry, error) {
	return cache.Ensure[[]resource.ListEntry](ctx, q.cache, Keys(resource.Pokemon).List(), q.procs.ListPokemon, ListOptions)
}

// ListPokemonRange implements rpc.Procedures.
func (q *Queries) ListPokemonRange(ctx context.Context, offset, limit int) ([]resource.ListEntry, error) {
	if err := rpc.ValidateRange(offset, limit); err != nil {
		return nil, err
	}
	load := func(ctx context.Context) ([]resource.ListEntry, error) {
		return q.procs.ListPokemonRange(ctx, offset, limit)
	}
	return cache.Ensure[[]resource.ListEntry](ctx, q.cache, Keys(resource.Pokemon).Range(offset, limit), load, ListOptions)
}

// List runs the cached list query of kind.
func (q *Queries) List(ctx context.Context, kind resource.Kind) (any, error) {
	return rpc.List(ctx, q, kind)
}

// GetByName runs the cached detail query of kind.
func (q *Queries) GetByName(ctx context.Context, kind resource.Kind, name string) (any, error) {
	return rpc.GetByName(ctx, q, kind, name)
}

// PrefetchList warms the list query of kind in the background.
func (q *Queries) PrefetchList(ctx context.Context, kind resource.Kind) error {
	key := Keys(kind).List()

	switch kind {
	case resource.Abilities:
		cache.Prefetch[[]resource.EnrichedItem[resource.AbilityDetail]](ctx, q.cache, key, q.procs.ListAbilities, ListOptions)
	case resource.Berries:
		cache.Prefetch[[]resource.EnrichedItem[resource.BerryDetail]](ctx, q.cache, key, q.procs.ListBerries, ListOptions)
	case resource.Items:
		cache.Prefetch[[]resource.EnrichedItem[resource.ItemDetail]](ctx, q.cache, key, q.procs.ListItems, ListOptions)
	case resource.Moves:
		cache.Prefetch[[]resource.EnrichedItem[resource.MoveDetail]](ctx, q.cache, key, q.procs.ListMoves, ListOptions)
	case resource.Types:
		cache.Prefetch[[]resource.EnrichedItem[resource.TypeDetail]](ctx, q.cache, key, q.procs.ListTypes, ListOptions)
	case resource.Pokemon:
		cache.Prefetch[[]resource.ListEntry](ctx, q.cache, key, q.procs.ListPokemon, ListOptions)
	default:
		return fmt.Errorf("prefetch: %w: %q", resource.ErrUnknownKind, kind)
	}

	q.logger.Debug().Str("kind", kind.String()).Msg("List prefetch queued")
	return nil
}

// PrefetchDetail warms the detail query of kind/name in the background.
func (q *Queries) PrefetchDetail(ctx context.Context, kind resource.Kind, name string) error {
	if err := rpc.ValidateName(name); err != nil {
		return err
	}
	key := Keys(kind).Detail(name)

	switch kind {
	case resource.Abilities:
		cache.Prefetch(ctx, q.cache, key, detailLoader(q, kind, name, q.procs.GetAbilityByName), DetailOptions)
	case resource.Berries:
		cache.Prefetch(ctx, q.cache, key, detailLoader(q, kind, name, q.procs.GetBerryByName), DetailOptions)
	case resource.Items:
		cache.Prefetch(ctx, q.cache, key, detailLoader(q, kind, name, q.procs.GetItemByName), DetailOptions)
	case resource.Moves:
		cache.Prefetch(ctx, q.cache, key, detailLoader(q, kind, name, q.procs.GetMoveByName), DetailOptions)
	case resource.Types:
		cache.Prefetch(ctx, q.cache, key, detailLoader(q, kind, name, q.procs.GetTypeByName), DetailOptions)
	default:
		return fmt.Errorf("prefetch: %w: %q has no detail query", resource.ErrUnknownKind, kind)
	}

	q.logger.Debug().Str("kind", kind.String()).Str("name", name).Msg("Detail prefetch queued")
	return nil
}

// InvalidateAll drops every cached query of kind.
func (q *Queries) InvalidateAll(ctx context.Context, kind resource.Kind) int {
	return q.invalidate(ctx, Keys(kind).All())
}

// InvalidateList drops the cached list queries of kind.
func (q *Queries) InvalidateList(ctx context.Context, kind resource.Kind) int {
	return q.invalidate(ctx, Keys(kind).Lists())
}

// InvalidateDetail drops the cached detail query of kind/name.
func (q *Queries) InvalidateDetail(ctx context.Context, kind resource.Kind, name string) int {
	return q.invalidate(ctx, Keys(kind).Detail(name))
}

func (q *Queries) invalidate(ctx context.Context, prefix cache.Key) int {
	removed := q.cache.Invalidate(ctx, prefix)
	q.logger.Info().
		Str("key", prefix.String()).
		Int("removed", removed).
		Msg("Queries invalidated")
	return removed
}

// Stats returns the query cache statistics.
func (q *Queries) Stats() cache.Stats {
	return q.cache.Stats()
}
