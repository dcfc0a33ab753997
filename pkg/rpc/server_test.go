package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/pokeref/internal/testutil"
	"github.com/Sternrassler/pokeref/pkg/aggregate"
	"github.com/Sternrassler/pokeref/pkg/cache"
	"github.com/Sternrassler/pokeref/pkg/pokeapi"
	"github.com/google/uuid"
)

type testServer struct {
	*httptest.Server
	procs *fakeProcedures
	ops   *fakeCacheOps
}

func newTestServer(t *testing.T, mutate func(*ServerOptions)) *testServer {
	t.Helper()

	ts := &testServer{procs: newFakeProcedures(), ops: &fakeCacheOps{removed: 2}}
	opts := ServerOptions{
		Procedures:  ts.procs,
		Prefetcher:  ts.ops,
		Invalidator: ts.ops,
		Stats:       func() cache.Stats { return cache.Stats{Entries: 7, Hits: 3} },
		CacheMaxAge: time.Hour,
	}
	if mutate != nil {
		mutate(&opts)
	}

	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ts.Server = httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, header http.Header) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for key, values := range header {
		req.Header[key] = values
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func decodeError(t *testing.T, body []byte) APIError {
	t.Helper()
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		t.Fatalf("body is not an error envelope: %s", body)
	}
	return *envelope.Error
}

func TestNewServer_RequiresProcedures(t *testing.T) {
	if _, err := NewServer(ServerOptions{}); err == nil {
		t.Error("NewServer() without procedures should fail")
	}
}

func TestServer_RPC(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name       string
		procedure  string
		body       string
		wantStatus int
		wantCode   string
		check      func(t *testing.T, data json.RawMessage)
	}{
		{
			name:       "list with empty body",
			procedure:  "listBerries",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, data json.RawMessage) {
				var berries []map[string]any
				if err := json.Unmarshal(data, &berries); err != nil || len(berries) != 3 {
					t.Errorf("data = %s, want 3 berries", data)
				}
				if _, ok := berries[0]["details"]; !ok {
					t.Errorf("berry has no details: %v", berries[0])
				}
			},
		},
		{
			name:       "list with empty object",
			procedure:  "listPokemon",
			body:       `{}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "get existing",
			procedure:  "getBerryByName",
			body:       `{"name":"chesto"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, data json.RawMessage) {
				if !strings.Contains(string(data), `"name":"chesto"`) {
					t.Errorf("data = %s, want chesto", data)
				}
			},
		},
		{
			name:       "get missing is null",
			procedure:  "getBerryByName",
			body:       `{"name":"missingno"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, data json.RawMessage) {
				if string(data) != "null" {
					t.Errorf("data = %s, want null", data)
				}
			},
		},
		{
			name:       "get without name",
			procedure:  "getBerryByName",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeBadRequest,
		},
		{
			name:       "malformed input",
			procedure:  "getBerryByName",
			body:       `{"name":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeBadRequest,
		},
		{
			name:       "range",
			procedure:  RangeProcedure,
			body:       `{"offset":2,"limit":10}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, data json.RawMessage) {
				var page []map[string]any
				if err := json.Unmarshal(data, &page); err != nil || len(page) != 2 {
					t.Errorf("data = %s, want 2 entries", data)
				}
			},
		},
		{
			name:       "range without limit",
			procedure:  RangeProcedure,
			body:       `{"offset":2}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeBadRequest,
		},
		{
			name:       "unknown procedure",
			procedure:  "listDigimon",
			wantStatus: http.StatusNotFound,
			wantCode:   CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodPost, "/rpc/"+tt.procedure, tt.body, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, body)
			}

			if tt.wantCode != "" {
				if got := decodeError(t, body); got.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
				}
				return
			}

			var envelope struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(body, &envelope); err != nil {
				t.Fatalf("decode envelope: %v (body %s)", err, body)
			}
			if tt.check != nil {
				tt.check(t, envelope.Data)
			}
		})
	}
}

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"upstream", fmt.Errorf("list berry: %w", pokeapi.ErrUpstreamUnavailable), http.StatusBadGateway, CodeUpstreamUnavailable},
		{"typed upstream", &pokeapi.UpstreamError{Endpoint: "berry:list", StatusCode: 500, ErrorClass: pokeapi.ErrorClassServer, Message: "boom"}, http.StatusBadGateway, CodeUpstreamUnavailable},
		{"timeout", fmt.Errorf("aggregate: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, CodeTimeout},
		{"typed upstream timeout", &pokeapi.UpstreamError{Endpoint: "berry:detail", ErrorClass: pokeapi.ErrorClassNetwork, Message: "request failed", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, CodeTimeout},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.procs.err = tt.err

			for _, path := range []string{"/rpc/listBerries", "/api/berries"} {
				method := http.MethodPost
				if strings.HasPrefix(path, "/api") {
					method = http.MethodGet
				}
				resp, body := ts.do(t, method, path, "", nil)
				if resp.StatusCode != tt.wantStatus {
					t.Fatalf("%s status = %d, want %d", path, resp.StatusCode, tt.wantStatus)
				}
				if got := decodeError(t, body); got.Code != tt.wantCode || got.Message == "" {
					t.Errorf("%s error = %+v, want code %q with message", path, got, tt.wantCode)
				}
			}
		})
	}
}

func TestServer_FanOutTimeout(t *testing.T) {
	mock := testutil.NewMockPokeAPI()
	defer mock.Close()
	mock.SeedBerries()
	mock.SetHandler("/berry/chesto", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
			w.WriteHeader(http.StatusServiceUnavailable)
		case <-r.Context().Done():
		}
	})

	cfg := aggregate.DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	router := newTestRouterWith(t, mock, cfg)
	ts := newTestServer(t, func(o *ServerOptions) { o.Procedures = router })

	for _, tt := range []struct{ method, path string }{
		{http.MethodPost, "/rpc/listBerries"},
		{http.MethodGet, "/api/berries"},
		{http.MethodGet, "/api/berries/cheri"},
	} {
		resp, body := ts.do(t, tt.method, tt.path, "", nil)
		if resp.StatusCode != http.StatusGatewayTimeout {
			t.Errorf("%s %s status = %d, want %d (body %s)", tt.method, tt.path, resp.StatusCode, http.StatusGatewayTimeout, body)
			continue
		}
		if got := decodeError(t, body); got.Code != CodeTimeout {
			t.Errorf("%s %s code = %q, want %q", tt.method, tt.path, got.Code, CodeTimeout)
		}
	}
}

func TestServer_REST(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
		wantLen    int
	}{
		{"list", "/api/berries", http.StatusOK, "", 3},
		{"list by endpoint name", "/api/berry", http.StatusOK, "", 3},
		{"empty list", "/api/moves", http.StatusOK, "", 0},
		{"pokemon index", "/api/pokemon", http.StatusOK, "", 4},
		{"pokemon range", "/api/pokemon?offset=1&limit=2", http.StatusOK, "", 2},
		{"pokemon range default limit", "/api/pokemon?offset=3", http.StatusOK, "", 1},
		{"pokemon bad limit", "/api/pokemon?limit=many", http.StatusBadRequest, CodeBadRequest, 0},
		{"pokemon zero limit", "/api/pokemon?limit=0", http.StatusBadRequest, CodeBadRequest, 0},
		{"unknown kind", "/api/digimon", http.StatusBadRequest, CodeBadRequest, 0},
		{"detail", "/api/berries/pecha", http.StatusOK, "", -1},
		{"missing detail", "/api/berries/missingno", http.StatusNotFound, CodeNotFound, 0},
		{"pokemon detail", "/api/pokemon/bulbasaur", http.StatusBadRequest, CodeBadRequest, 0},
		{"unknown route", "/api/berries/pecha/flavors", http.StatusNotFound, CodeNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodGet, tt.path, "", nil)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, body)
			}

			if tt.wantCode != "" {
				if got := decodeError(t, body); got.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
				}
				return
			}

			if resp.Header.Get("ETag") == "" {
				t.Error("missing ETag")
			}
			if got := resp.Header.Get("Cache-Control"); got != "public, max-age=3600" {
				t.Errorf("Cache-Control = %q", got)
			}

			if tt.wantLen < 0 {
				var item map[string]any
				if err := json.Unmarshal(body, &item); err != nil || item["name"] != "pecha" {
					t.Errorf("body = %s, want pecha", body)
				}
				return
			}
			var list []any
			if err := json.Unmarshal(body, &list); err != nil {
				t.Fatalf("body is not a list: %s", body)
			}
			if len(list) != tt.wantLen {
				t.Errorf("got %d entries, want %d", len(list), tt.wantLen)
			}
		})
	}
}

func TestServer_ConditionalGet(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodGet, "/api/berries", "", nil)
	etag := resp.Header.Get("ETag")
	if resp.StatusCode != http.StatusOK || etag == "" {
		t.Fatalf("first GET: status %d, etag %q", resp.StatusCode, etag)
	}

	resp, notModifiedBody := ts.do(t, http.MethodGet, "/api/berries", "", http.Header{"If-None-Match": {etag}})
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("conditional GET status = %d, want 304", resp.StatusCode)
	}
	if len(notModifiedBody) != 0 {
		t.Errorf("304 carried a body: %s", notModifiedBody)
	}

	resp, again := ts.do(t, http.MethodGet, "/api/berries", "", http.Header{"If-None-Match": {`"stale"`}})
	if resp.StatusCode != http.StatusOK || string(again) != string(body) {
		t.Errorf("mismatched etag: status %d", resp.StatusCode)
	}
}

func TestServer_Prefetch(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/prefetch/berries", "/prefetch/berry/cheri"} {
		resp, body := ts.do(t, http.MethodPost, path, "", nil)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("POST %s status = %d, want 202", path, resp.StatusCode)
		}
		if !strings.Contains(string(body), `"queued"`) {
			t.Errorf("POST %s body = %s", path, body)
		}
	}

	got := ts.ops.prefetches()
	if len(got) != 2 || got[0] != "berries" || got[1] != "berries/cheri" {
		t.Errorf("prefetches = %v", got)
	}

	resp, body := ts.do(t, http.MethodPost, "/prefetch/pokemon/bulbasaur", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("pokemon detail prefetch status = %d, want 400", resp.StatusCode)
	}
	if decodeError(t, body).Code != CodeBadRequest {
		t.Errorf("pokemon detail prefetch body = %s", body)
	}
}

func TestServer_Invalidate(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		path string
		want string
	}{
		{"/cache/berries", "berries"},
		{"/cache/berries/list", "berries:list"},
		{"/cache/berries/detail/cheri", "berries:detail:cheri"},
	}

	for _, tt := range tests {
		resp, body := ts.do(t, http.MethodDelete, tt.path, "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("DELETE %s status = %d", tt.path, resp.StatusCode)
		}
		var out struct {
			Removed int `json:"removed"`
		}
		if err := json.Unmarshal(body, &out); err != nil || out.Removed != 2 {
			t.Errorf("DELETE %s body = %s", tt.path, body)
		}
	}

	ts.ops.mu.Lock()
	defer ts.ops.mu.Unlock()
	for i, tt := range tests {
		if i >= len(ts.ops.invalidated) || ts.ops.invalidated[i] != tt.want {
			t.Errorf("invalidated = %v, want %s at %d", ts.ops.invalidated, tt.want, i)
		}
	}
}

func TestServer_OptionalRoutes(t *testing.T) {
	ts := newTestServer(t, func(o *ServerOptions) {
		o.Prefetcher = nil
		o.Invalidator = nil
		o.Stats = nil
	})

	for _, req := range []struct{ method, path string }{
		{http.MethodPost, "/prefetch/berries"},
		{http.MethodDelete, "/cache/berries"},
		{http.MethodGet, "/cache/stats"},
	} {
		resp, _ := ts.do(t, req.method, req.path, "", nil)
		if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want route absent", req.method, req.path, resp.StatusCode)
		}
	}
}

func TestServer_Stats(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodGet, "/cache/stats", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var stats cache.Stats
	if err := json.Unmarshal(body, &stats); err != nil || stats.Entries != 7 || stats.Hits != 3 {
		t.Errorf("stats = %s", body)
	}
}

func TestServer_HealthAndReady(t *testing.T) {
	ready := errors.New("store unreachable")
	ts := newTestServer(t, func(o *ServerOptions) {
		o.Ready = func(context.Context) error { return ready }
	})

	if resp, _ := ts.do(t, http.MethodGet, "/health", "", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d", resp.StatusCode)
	}

	resp, body := ts.do(t, http.MethodGet, "/ready", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable || !strings.Contains(string(body), "store unreachable") {
		t.Errorf("/ready = %d %s, want 503", resp.StatusCode, body)
	}

	ready = nil
	if resp, _ := ts.do(t, http.MethodGet, "/ready", "", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("/ready after recovery status = %d", resp.StatusCode)
	}
}

func TestServer_RequestIDAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := ts.do(t, http.MethodGet, "/health", "", nil)
	if _, err := uuid.Parse(resp.Header.Get(RequestIDHeader)); err != nil {
		t.Errorf("generated request ID %q is not a UUID", resp.Header.Get(RequestIDHeader))
	}

	resp, _ = ts.do(t, http.MethodGet, "/health", "", http.Header{RequestIDHeader: {"trace-me"}})
	if got := resp.Header.Get(RequestIDHeader); got != "trace-me" {
		t.Errorf("request ID = %q, want echoed trace-me", got)
	}

	resp, body := ts.do(t, http.MethodGet, "/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `pokeref_http_requests_total{method="GET",route="/health",status="200"}`) {
		t.Error("/metrics does not report the /health requests")
	}
}
