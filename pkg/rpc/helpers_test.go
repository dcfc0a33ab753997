package rpc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/pokeref/internal/testutil"
	"github.com/Sternrassler/pokeref/pkg/aggregate"
	"github.com/Sternrassler/pokeref/pkg/pokeapi"
	"github.com/Sternrassler/pokeref/pkg/ratelimit"
	"github.com/Sternrassler/pokeref/pkg/resource"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter creates a router against the mock with rate limiting off.
func newTestRouter(t *testing.T, mock *testutil.MockPokeAPI) *Router {
	t.Helper()
	return newTestRouterWith(t, mock, aggregate.DefaultConfig())
}

// newTestRouterWith is newTestRouter with a custom fan-out configuration.
func newTestRouterWith(t *testing.T, mock *testutil.MockPokeAPI, aggCfg aggregate.Config) *Router {
	t.Helper()

	cfg := pokeapi.DefaultConfig("pokeref-test/1.0")
	cfg.BaseURL = mock.URL()
	cfg.Timeout = 5 * time.Second
	cfg.RateLimit = ratelimit.Config{}

	client, err := pokeapi.New(cfg)
	if err != nil {
		t.Fatalf("pokeapi.New() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	router, err := NewRouter(client, aggCfg)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router
}

// fakeProcedures serves fixed berries and pokemon. Other kinds are empty.
type fakeProcedures struct {
	mu      sync.Mutex
	calls   map[string]int
	berries []resource.EnrichedItem[resource.BerryDetail]
	pokemon []resource.ListEntry
	err     error
}

func newFakeProcedures() *fakeProcedures {
	f := &fakeProcedures{calls: make(map[string]int)}
	for i, name := range testutil.BerryNames {
		f.berries = append(f.berries, resource.EnrichedItem[resource.BerryDetail]{
			ListEntry: resource.ListEntry{Name: name, URL: "https://pokeapi.co/api/v2/berry/" + name + "/"},
			Details: resource.BerryDetail{
				ID:       i + 1,
				Name:     name,
				Firmness: resource.NamedResource{Name: "soft"},
			},
		})
	}
	for _, name := range []string{"bulbasaur", "ivysaur", "venusaur", "charmander"} {
		f.pokemon = append(f.pokemon, resource.ListEntry{Name: name})
	}
	return f
}

func (f *fakeProcedures) record(procedure string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[procedure]++
	return f.err
}

func (f *fakeProcedures) count(procedure string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[procedure]
}

func emptyList[D resource.Detail](f *fakeProcedures, procedure string) ([]resource.EnrichedItem[D], error) {
	if err := f.record(procedure); err != nil {
		return nil, err
	}
	return []resource.EnrichedItem[D]{}, nil
}

func notFound[D resource.Detail](f *fakeProcedures, procedure, name string) (*resource.EnrichedItem[D], error) {
	if err := f.record(procedure); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeProcedures) ListAbilities(context.Context) ([]resource.EnrichedItem[resource.AbilityDetail], error) {
	return emptyList[resource.AbilityDetail](f, "listAbilities")
}

func (f *fakeProcedures) GetAbilityByName(_ context.Context, name string) (*resource.EnrichedItem[resource.AbilityDetail], error) {
	return notFound[resource.AbilityDetail](f, "getAbilityByName", name)
}

func (f *fakeProcedures) ListBerries(context.Context) ([]resource.EnrichedItem[resource.BerryDetail], error) {
	if err := f.record("listBerries"); err != nil {
		return nil, err
	}
	return f.berries, nil
}

func (f *fakeProcedures) GetBerryByName(_ context.Context, name string) (*resource.EnrichedItem[resource.BerryDetail], error) {
	if err := f.record("getBerryByName"); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return resource.Find(f.berries, name), nil
}

func (f *fakeProcedures) ListItems(context.Context) ([]resource.EnrichedItem[resource.ItemDetail], error) {
	return emptyList[resource.ItemDetail](f, "listItems")
}

func (f *fakeProcedures) GetItemByName(_ context.Context, name string) (*resource.EnrichedItem[resource.ItemDetail], error) {
	return notFound[resource.ItemDetail](f, "getItemByName", name)
}

func (f *fakeProcedures) ListMoves(context.Context) ([]resource.EnrichedItem[resource.MoveDetail], error) {
	return emptyList[resource.MoveDetail](f, "listMoves")
}

func (f *fakeProcedures) GetMoveByName(_ context.Context, name string) (*resource.EnrichedItem[resource.MoveDetail], error) {
	return notFound[resource.MoveDetail](f, "getMoveByName", name)
}

func (f *fakeProcedures) ListTypes(context.Context) ([]resource.EnrichedItem[resource.TypeDetail], error) {
	return emptyList[resource.TypeDetail](f, "listTypes")
}

func (f *fakeProcedures) GetTypeByName(_ context.Context, name string) (*resource.EnrichedItem[resource.TypeDetail], error) {
	return notFound[resource.TypeDetail](f, "getTypeByName", name)
}

func (f *fakeProcedures) ListPokemon(context.Context) ([]resource.ListEntry, error) {
	if err := f.record("listPokemon"); err != nil {
		return nil, err
	}
	return f.pokemon, nil
}

func (f *fakeProcedures) ListPokemonRange(_ context.Context, offset, limit int) ([]resource.ListEntry, error) {
	if err := f.record(RangeProcedure); err != nil {
		return nil, err
	}
	if err := ValidateRange(offset, limit); err != nil {
		return nil, err
	}
	if offset >= len(f.pokemon) {
		return []resource.ListEntry{}, nil
	}
	end := min(offset+limit, len(f.pokemon))
	return f.pokemon[offset:end], nil
}

// fakeCacheOps records prefetch and invalidation calls.
type fakeCacheOps struct {
	mu          sync.Mutex
	prefetched  []string
	invalidated []string
	removed     int
}

func (f *fakeCacheOps) PrefetchList(_ context.Context, kind resource.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetched = append(f.prefetched, kind.String())
	return nil
}

func (f *fakeCacheOps) PrefetchDetail(_ context.Context, kind resource.Kind, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetched = append(f.prefetched, kind.String()+"/"+name)
	return nil
}

func (f *fakeCacheOps) InvalidateAll(_ context.Context, kind resource.Kind) int {
	return f.invalidate(kind.String())
}

func (f *fakeCacheOps) InvalidateList(_ context.Context, kind resource.Kind) int {
	return f.invalidate(kind.String() + ":list")
}

func (f *fakeCacheOps) InvalidateDetail(_ context.Context, kind resource.Kind, name string) int {
	return f.invalidate(kind.String() + ":detail:" + name)
}

func (f *fakeCacheOps) invalidate(what string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, what)
	return f.removed
}

func (f *fakeCacheOps) prefetches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prefetched...)
}
