package rpc

import (
	"context"
	"fmt"

	"github.com/Sternrassler/pokeref/pkg/aggregate"
	"github.com/Sternrassler/pokeref/pkg/logging"
	"github.com/Sternrassler/pokeref/pkg/pokeapi"
	"github.com/Sternrassler/pokeref/pkg/resource"
	"github.com/rs/zerolog"
)

// Router implements Procedures server side by fanning out against the
// PokeAPI. It does not cache: every call costs 1+N upstream requests.
type Router struct {
	client    *pokeapi.Client
	abilities *aggregate.Aggregator[resource.AbilityDetail]
	berries   *aggregate.Aggregator[resource.BerryDetail]
	items     *aggregate.Aggregator[resource.ItemDetail]
	moves     *aggregate.Aggregator[resource.MoveDetail]
	types     *aggregate.Aggregator[resource.TypeDetail]
	logger    zerolog.Logger
}

// NewRouter creates a router with one aggregator per kind.
func NewRouter(client *pokeapi.Client, cfg aggregate.Config) (*Router, error) {
	if client == nil {
		return nil, fmt.Errorf("pokeapi client is required")
	}

	r := &Router{
		client: client,
		logger: logging.NewLogger("rpc-router"),
	}

	var err error
	if r.abilities, err = aggregate.New(aggregate.Upstream[resource.AbilityDetail](client), resource.Abilities, cfg); err != nil {
		return nil, err
	}
	if r.berries, err = aggregate.New(aggregate.Upstream[resource.BerryDetail](client), resource.Berries, cfg); err != nil {
		return nil, err
	}
	if r.items, err = aggregate.New(aggregate.Upstream[resource.ItemDetail](client), resource.Items, cfg); err != nil {
		return nil, err
	}
	if r.moves, err = aggregate.New(aggregate.Upstream[resource.MoveDetail](client), resource.Moves, cfg); err != nil {
		return nil, err
	}
	if r.types, err = aggregate.New(aggregate.Upstream[resource.TypeDetail](client), resource.Types, cfg); err != nil {
		return nil, err
	}

	return r, nil
}

func listAll[D resource.Detail](ctx context.Context, r *Router, a *aggregate.Aggregator[D]) ([]resource.EnrichedItem[D], error) {
	r.logger.Debug().Str("procedure", ListProcedure(a.Kind())).Msg("Procedure called")
	return a.Aggregate(ctx)
}

func getByName[D resource.Detail](ctx context.Context, r *Router, a *aggregate.Aggregator[D], name string) (*resource.EnrichedItem[D], error) {
	r.logger.Debug().Str("procedure", GetProcedure(a.Kind())).Str("name", name).Msg("Procedure called")
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return a.FindByName(ctx, name)
}

// ListAbilities implements Procedures.
func (r *Router) ListAbilities(ctx context.Context) ([]resource.EnrichedItem[resource.AbilityDetail], error) {
	return listAll(ctx, r, r.abilities)
}

// GetAbilityByName implements Procedures.
func (r *Router) GetAbilityByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.AbilityDetail], error) {
	return getByName(ctx, r, r.abilities, name)
}

// ListBerries implements Procedures.
func (r *Router) ListBerries(ctx context.Context) ([]resource.EnrichedItem[resource.BerryDetail], error) {
	return listAll(ctx, r, r.berries)
}

// GetBerryByName implements Procedures.
func (r *Router) GetBerryByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.BerryDetail], error) {
	return getByName(ctx, r, r.berries, name)
}

// ListItems implements Procedures.
func (r *Router) ListItems(ctx context.Context) ([]resource.EnrichedItem[resource.ItemDetail], error) {
	return listAll(ctx, r, r.items)
}

// GetItemByName implements Procedures.
func (r *Router) GetItemByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.ItemDetail], error) {
	return getByName(ctx, r, r.items, name)
}

// ListMoves implements Procedures.
func (r *Router) ListMoves(ctx context.Context) ([]resource.EnrichedItem[resource.MoveDetail], error) {
	return listAll(ctx, r, r.moves)
}

// GetMoveByName implements Procedures.
func (r *Router) GetMoveByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.MoveDetail], error) {
	return getByName(ctx, r, r.moves, name)
}

// ListTypes implements Procedures.
func (r *Router) ListTypes(ctx context.Context) ([]resource.EnrichedItem[resource.TypeDetail], error) {
	return listAll(ctx, r, r.types)
}

// GetTypeByName implements Procedures.
func (r *Router) GetTypeByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.TypeDetail], error) {
	return getByName(ctx, r, r.types, name)
}

// ListPokemon implements Procedures.
func (r *Router) ListPokemon(ctx context.Context) ([]resource.ListEntry, error) {
	r.logger.Debug().Str("procedure", "listPokemon").Msg("Procedure called")
	return r.client.List(ctx, resource.Pokemon)
}

// ListPokemonRange implements Procedures.
func (r *Router) ListPokemonRange(ctx context.Context, offset, limit int) ([]resource.ListEntry, error) {
	r.logger.Debug().
		Str("procedure", RangeProcedure).
		Int("offset", offset).
		Int("limit", limit).
		Msg("Procedure called")

	if err := ValidateRange(offset, limit); err != nil {
		return nil, err
	}

	page, err := r.client.ListPage(ctx, resource.Pokemon, offset, limit)
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

var _ Procedures = (*Router)(nil)
