// Package rpc provides the consolidation boundary: one procedure per
// resource kind that returns the fully aggregated list (or one element of
// it) in a single round trip, plus the HTTP transports that expose it.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/pokeref/pkg/resource"
)

var (
	// ErrBadRequest indicates procedure input that fails shape checks.
	ErrBadRequest = errors.New("bad request")

	// ErrUnknownProcedure indicates a procedure name that is not registered.
	ErrUnknownProcedure = errors.New("unknown procedure")
)

// Procedures is the consolidation boundary. Router implements it against
// the PokeAPI, Client against a remote pokeref server.
//
// List procedures return every entry joined with its detail record.
// Get procedures return the entry named name, or nil if there is none.
type Procedures interface {
	ListAbilities(ctx context.Context) ([]resource.EnrichedItem[resource.AbilityDetail], error)
	GetAbilityByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.AbilityDetail], error)

	ListBerries(ctx context.Context) ([]resource.EnrichedItem[resource.BerryDetail], error)
	GetBerryByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.BerryDetail], error)

	ListItems(ctx context.Context) ([]resource.EnrichedItem[resource.ItemDetail], error)
	GetItemByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.ItemDetail], error)

	ListMoves(ctx context.Context) ([]resource.EnrichedItem[resource.MoveDetail], error)
	GetMoveByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.MoveDetail], error)

	ListTypes(ctx context.Context) ([]resource.EnrichedItem[resource.TypeDetail], error)
	GetTypeByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.TypeDetail], error)

	// ListPokemon returns the plain Pokémon index without details.
	ListPokemon(ctx context.Context) ([]resource.ListEntry, error)

	// ListPokemonRange returns one window of the Pokémon index.
	ListPokemonRange(ctx context.Context, offset, limit int) ([]resource.ListEntry, error)
}

// Input is the JSON input of every procedure. List procedures take {},
// get procedures {"name": ...}, listPokemonRange {"offset": ..., "limit": ...}.
type Input struct {
	Name   string `json:"name,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// ValidateName checks the input of a get procedure.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrBadRequest)
	}
	return nil
}

// ValidateRange checks the input of listPokemonRange.
func ValidateRange(offset, limit int) error {
	if offset < 0 {
		return fmt.Errorf("%w: offset must be >= 0 (got %d)", ErrBadRequest, offset)
	}
	if limit < 1 {
		return fmt.Errorf("%w: limit must be >= 1 (got %d)", ErrBadRequest, limit)
	}
	return nil
}

var (
	pluralNames = map[resource.Kind]string{
		resource.Abilities: "Abilities",
		resource.Berries:   "Berries",
		resource.Items:     "Items",
		resource.Moves:     "Moves",
		resource.Types:     "Types",
		resource.Pokemon:   "Pokemon",
	}
	singularNames = map[resource.Kind]string{
		resource.Abilities: "Ability",
		resource.Berries:   "Berry",
		resource.Items:     "Item",
		resource.Moves:     "Move",
		resource.Types:     "Type",
	}
)

// ListProcedure returns the list procedure name for kind, e.g. "listBerries".
func ListProcedure(kind resource.Kind) string {
	return "list" + pluralNames[kind]
}

// GetProcedure returns the get procedure name for kind, e.g. "getBerryByName".
// Kinds without a get procedure return "".
func GetProcedure(kind resource.Kind) string {
	name, ok := singularNames[kind]
	if !ok {
		return ""
	}
	return "get" + name + "ByName"
}

// RangeProcedure is the name of the windowed Pokémon index procedure.
const RangeProcedure = "listPokemonRange"

type handler func(ctx context.Context, p Procedures, in Input) (any, error)

// found converts an absent item to an untyped nil so it encodes as null.
func found[T any](v *T, err error) (any, error) {
	if err != nil || v == nil {
		return nil, err
	}
	return v, nil
}

var handlers = map[string]handler{
	"listAbilities": func(ctx context.Context, p Procedures, _ Input) (any, error) {
		return p.ListAbilities(ctx)
	},
	"getAbilityByName": func(ctx context.Context, p Procedures, in Input) (any, error) {
		v, err := p.GetAbilityByName(ctx, in.Name)
		return found(v, err)
	},
	"listBerries": func(ctx context.Context, p Procedures, _ Input) (any, error) {
		return p.ListBerries(ctx)
	},
	"getBerryByName": func(ctx context.Context, p Procedures, in Input) (any, error) {
		v, err := p.GetBerryByName(ctx, in.Name)
		return found(v, err)
	},
	"listItems": func(ctx context.Context, p Procedures, _ Input) (any, error) {
		return p.ListItems(ctx)
	},
	"getItemByName": func(ctx context.Context, p Procedures, in Input) (any, error) {
		v, err := p.GetItemByName(ctx, in.Name)
		return found(v, err)
	},
	"listMoves": func(ctx context.Context, p Procedures, _ Input) (any, error) {
		return p.ListMoves(ctx)
	},
	"getMoveByName": func(ctx context.Context, p Procedures, in Input) (any, error) {
		v, err := p.GetMoveByName(ctx, in.Name)
		return found(v, err)
	},
	"listTypes": func(ctx context.Context, p Procedures, _ Input) (any, error) {
		return p.ListTypes(ctx)
	},
	"getTypeByName": func(ctx context.Context, p Procedures, in Input) (any, error) {
		v, err := p.GetTypeByName(ctx, in.Name)
		return found(v, err)
	},
	"listPokemon": func(ctx context.Context, p Procedures, _ Input) (any, error) {
		return p.ListPokemon(ctx)
	},
	RangeProcedure: func(ctx context.Context, p Procedures, in Input) (any, error) {
		return p.ListPokemonRange(ctx, in.Offset, in.Limit)
	},
}

// Call dispatches a procedure by name. A get procedure that finds nothing
// returns (nil, nil).
func Call(ctx context.Context, p Procedures, procedure string, in Input) (any, error) {
	h, ok := handlers[procedure]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcedure, procedure)
	}
	return h(ctx, p, in)
}

// List runs the list procedure of kind.
func List(ctx context.Context, p Procedures, kind resource.Kind) (any, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("list: %w", resource.ErrUnknownKind)
	}
	return Call(ctx, p, ListProcedure(kind), Input{})
}

// GetByName runs the get procedure of kind.
func GetByName(ctx context.Context, p Procedures, kind resource.Kind, name string) (any, error) {
	if !kind.IsAggregated() {
		return nil, fmt.Errorf("%w: %q has no detail procedure", resource.ErrUnknownKind, kind)
	}
	return Call(ctx, p, GetProcedure(kind), Input{Name: name})
}

// ProcedureNames returns every registered procedure name.
func ProcedureNames() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	return names
}
