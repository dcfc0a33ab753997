package rpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sternrassler/pokeref/internal/testutil"
	"github.com/Sternrassler/pokeref/pkg/pokeapi"
	"github.com/Sternrassler/pokeref/pkg/resource"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	cfg := DefaultClientConfig(baseURL)
	cfg.Timeout = 5 * time.Second

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Error("NewClient() without base url should fail")
	}
}

func TestClient_RoundTrip(t *testing.T) {
	ts := newTestServer(t, nil)
	client := newTestClient(t, ts.URL)
	ctx := context.Background()

	berries, err := client.ListBerries(ctx)
	if err != nil {
		t.Fatalf("ListBerries() error = %v", err)
	}
	if len(berries) != 3 || berries[2].Name != "pecha" || berries[2].Details.ID != 3 {
		t.Errorf("ListBerries() = %+v", berries)
	}

	berry, err := client.GetBerryByName(ctx, "cheri")
	if err != nil {
		t.Fatalf("GetBerryByName() error = %v", err)
	}
	if berry == nil || berry.Details.Firmness.Name != "soft" {
		t.Errorf("GetBerryByName(cheri) = %+v", berry)
	}

	missing, err := client.GetBerryByName(ctx, "missingno")
	if err != nil || missing != nil {
		t.Errorf("GetBerryByName(missingno) = %+v, %v, want nil, nil", missing, err)
	}

	moves, err := client.ListMoves(ctx)
	if err != nil || len(moves) != 0 {
		t.Errorf("ListMoves() = %+v, %v", moves, err)
	}

	page, err := client.ListPokemonRange(ctx, 0, 2)
	if err != nil || len(page) != 2 || page[0].Name != "bulbasaur" {
		t.Errorf("ListPokemonRange(0, 2) = %v, %v", page, err)
	}

	all, err := client.ListPokemon(ctx)
	if err != nil || len(all) != 4 {
		t.Errorf("ListPokemon() = %v, %v", all, err)
	}

	// Exactly one server procedure call per logical query
	for procedure, want := range map[string]int{"listBerries": 1, "getBerryByName": 2, "listMoves": 1, RangeProcedure: 1, "listPokemon": 1} {
		if got := ts.procs.count(procedure); got != want {
			t.Errorf("%s called %d times, want %d", procedure, got, want)
		}
	}
}

func TestClient_RemoteErrors(t *testing.T) {
	tests := []struct {
		name       string
		serverErr  error
		call       func(context.Context, *Client) error
		wantIs     error
		wantStatus int
	}{
		{
			name:      "upstream unavailable",
			serverErr: pokeapi.ErrUpstreamUnavailable,
			call: func(ctx context.Context, c *Client) error {
				_, err := c.ListTypes(ctx)
				return err
			},
			wantIs:     pokeapi.ErrUpstreamUnavailable,
			wantStatus: http.StatusBadGateway,
		},
		{
			name: "bad request",
			call: func(ctx context.Context, c *Client) error {
				_, err := c.GetItemByName(ctx, "")
				return err
			},
			wantIs:     ErrBadRequest,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.procs.err = tt.serverErr
			client := newTestClient(t, ts.URL)

			err := tt.call(context.Background(), client)
			if !errors.Is(err, tt.wantIs) {
				t.Fatalf("error = %v, want %v", err, tt.wantIs)
			}

			var remote *RemoteError
			if !errors.As(err, &remote) {
				t.Fatalf("error %v is not a RemoteError", err)
			}
			if remote.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", remote.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestClient_RangeValidatedLocally(t *testing.T) {
	ts := newTestServer(t, nil)
	client := newTestClient(t, ts.URL)

	if _, err := client.ListPokemonRange(context.Background(), 0, 0); !errors.Is(err, ErrBadRequest) {
		t.Errorf("error = %v, want ErrBadRequest", err)
	}
	if got := ts.procs.count(RangeProcedure); got != 0 {
		t.Errorf("invalid range reached the server %d times", got)
	}
}

func TestClient_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := newTestClient(t, url)
	if _, err := client.ListBerries(context.Background()); !errors.Is(err, pokeapi.ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestClient_NonEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "proxy exploded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ListBerries(context.Background())

	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("error %v is not a RemoteError", err)
	}
	if remote.StatusCode != http.StatusServiceUnavailable || remote.Code != CodeInternalError {
		t.Errorf("remote = %+v", remote)
	}
}

// End to end: remote client, HTTP surface, router, mock PokeAPI.
func TestClient_AgainstRouter(t *testing.T) {
	mock := testutil.NewMockPokeAPI()
	defer mock.Close()
	mock.SeedBerries()

	srv, err := NewServer(ServerOptions{Procedures: newTestRouter(t, mock)})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	client := newTestClient(t, httpSrv.URL)

	berry, err := client.GetBerryByName(context.Background(), "pecha")
	if err != nil {
		t.Fatalf("GetBerryByName() error = %v", err)
	}
	if berry == nil || berry.Details.ID != 3 {
		t.Errorf("GetBerryByName(pecha) = %+v", berry)
	}

	mock.SetResponse("/berry", testutil.NewServerErrorResponse())
	if _, err := client.ListBerries(context.Background()); !errors.Is(err, pokeapi.ErrUpstreamUnavailable) {
		t.Errorf("ListBerries() with failing upstream error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestClient_CacheAdmin(t *testing.T) {
	ts := newTestServer(t, nil)
	client := newTestClient(t, ts.URL)
	ctx := context.Background()

	stats, err := client.CacheStats(ctx)
	if err != nil {
		t.Fatalf("CacheStats() error = %v", err)
	}
	if stats.Entries != 7 || stats.Hits != 3 {
		t.Errorf("CacheStats() = %+v", stats)
	}

	removed, err := client.InvalidateCache(ctx, resource.Berries, "")
	if err != nil || removed != 2 {
		t.Errorf("InvalidateCache(berries) = %d, %v, want 2", removed, err)
	}
	if _, err := client.InvalidateCache(ctx, resource.Moves, "pound"); err != nil {
		t.Errorf("InvalidateCache(moves, pound) error = %v", err)
	}

	ts.ops.mu.Lock()
	got := append([]string(nil), ts.ops.invalidated...)
	ts.ops.mu.Unlock()
	want := []string{"berries", "moves:detail:pound"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("invalidated = %v, want %v", got, want)
	}
}

func TestClient_CacheAdminDisabled(t *testing.T) {
	ts := newTestServer(t, func(o *ServerOptions) {
		o.Invalidator = nil
		o.Stats = nil
	})
	client := newTestClient(t, ts.URL)
	ctx := context.Background()

	if _, err := client.CacheStats(ctx); !errors.Is(err, ErrUnknownProcedure) {
		t.Errorf("CacheStats() error = %v, want not found", err)
	}
	if _, err := client.InvalidateCache(ctx, resource.Berries, ""); !errors.Is(err, ErrUnknownProcedure) {
		t.Errorf("InvalidateCache() error = %v, want not found", err)
	}
}
