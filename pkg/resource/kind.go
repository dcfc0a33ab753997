// Package resource defines the PokeAPI resource kinds served by pokeref and
// the typed schemas of their list and detail records.
package resource

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when a kind identifier is not recognised.
var ErrUnknownKind = errors.New("unknown resource kind")

// Kind identifies a category of static reference data.
// The value is the plural name used in cache keys and routes (e.g. "berries").
type Kind string

const (
	// Abilities is the ability resource (/ability).
	Abilities Kind = "abilities"

	// Berries is the berry resource (/berry).
	Berries Kind = "berries"

	// Items is the item resource (/item).
	Items Kind = "items"

	// Moves is the move resource (/move).
	Moves Kind = "moves"

	// Types is the elemental type resource (/type).
	Types Kind = "types"

	// Pokemon is the Pokémon index (/pokemon). It is listed but never
	// aggregated with details.
	Pokemon Kind = "pokemon"
)

// endpoints maps each kind to its PokeAPI path segment.
var endpoints = map[Kind]string{
	Abilities: "ability",
	Berries:   "berry",
	Items:     "item",
	Moves:     "move",
	Types:     "type",
	Pokemon:   "pokemon",
}

// Aggregated lists the kinds that support list+detail aggregation.
var Aggregated = []Kind{Abilities, Berries, Items, Moves, Types}

// Endpoint returns the PokeAPI path segment for the kind (e.g. "berry").
func (k Kind) Endpoint() string {
	return endpoints[k]
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := endpoints[k]
	return ok
}

// IsAggregated reports whether k supports list+detail aggregation.
func (k Kind) IsAggregated() bool {
	return k.Valid() && k != Pokemon
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// ParseKind resolves either the plural kind name ("berries") or the
// PokeAPI endpoint name ("berry"), case-insensitively.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if k := Kind(s); k.Valid() {
		return k, nil
	}
	for k, endpoint := range endpoints {
		if endpoint == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}
