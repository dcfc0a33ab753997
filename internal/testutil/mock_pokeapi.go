// Package testutil provides testing utilities for the pokeref packages.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// APIPrefix is the path prefix the mock serves, mirroring PokeAPI v2.
const APIPrefix = "/api/v2"

// MockResponse defines a canned response for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockPokeAPI is a configurable in-process PokeAPI for testing.
//
// List endpoints (/api/v2/{kind}) are served from names registered with
// SetList, detail endpoints (/api/v2/{kind}/{name}) from bodies registered
// with SetDetail. SetResponse overrides either for a single path.
type MockPokeAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	lists    map[string][]string
	details  map[string]map[string]any

	// Tracking
	RequestCount      int
	pathCounts        map[string]int
	LastRequestHeader http.Header
}

// NewMockPokeAPI creates a new mock PokeAPI server.
func NewMockPokeAPI() *MockPokeAPI {
	mock := &MockPokeAPI{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		lists:      make(map[string][]string),
		details:    make(map[string]map[string]any),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, APIPrefix), "/")

		mock.mu.Lock()
		mock.RequestCount++
		mock.pathCounts[path]++
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r, path)
	}))

	return mock
}

// URL returns the mock API root, usable as a client base URL.
func (m *MockPokeAPI) URL() string {
	return m.server.URL + APIPrefix
}

// Close shuts down the mock server.
func (m *MockPokeAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockPokeAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.pathCounts = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetList registers the names returned by GET /{endpoint}.
func (m *MockPokeAPI) SetList(endpoint string, names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[endpoint] = append([]string(nil), names...)
}

// SetDetail registers the JSON body returned by GET /{endpoint}/{name}.
func (m *MockPokeAPI) SetDetail(endpoint, name string, body any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.details[endpoint] == nil {
		m.details[endpoint] = make(map[string]any)
	}
	m.details[endpoint][name] = body
}

// SetHandler sets a custom handler for a path relative to the API root,
// e.g. "/berry/chesto".
func (m *MockPokeAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path relative to the API root.
func (m *MockPokeAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// ClearHandler removes a custom handler so the path is served from the
// registered lists and details again.
func (m *MockPokeAPI) ClearHandler(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, path)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPokeAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// RequestsFor returns the number of requests made to a path relative to the
// API root.
func (m *MockPokeAPI) RequestsFor(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// defaultHandler serves registered lists and details.
func (m *MockPokeAPI) defaultHandler(w http.ResponseWriter, r *http.Request, path string) {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")

	switch len(parts) {
	case 1:
		m.mu.RLock()
		names, ok := m.lists[parts[0]]
		m.mu.RUnlock()
		if !ok {
			writeNotFound(w)
			return
		}
		m.writeList(w, r, parts[0], names)
	case 2:
		m.mu.RLock()
		body, ok := m.details[parts[0]][parts[1]]
		m.mu.RUnlock()
		if !ok {
			writeNotFound(w)
			return
		}
		writeJSON(w, http.StatusOK, body)
	default:
		writeNotFound(w)
	}
}

func (m *MockPokeAPI) writeList(w http.ResponseWriter, r *http.Request, endpoint string, names []string) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		limit = 20
	}

	if offset > len(names) {
		offset = len(names)
	}
	end := offset + limit
	if end > len(names) {
		end = len(names)
	}

	results := make([]map[string]string, 0, end-offset)
	for _, name := range names[offset:end] {
		results = append(results, map[string]string{
			"name": name,
			"url":  fmt.Sprintf("%s/%s/%s/", m.URL(), endpoint, name),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(names),
		"next":     nil,
		"previous": nil,
		"results":  results,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte("Not Found"))
}

// BerryNames are the berries registered by SeedBerries, in list order.
var BerryNames = []string{"cheri", "chesto", "pecha"}

// BerryBody builds a minimal berry detail body.
func BerryBody(id int, name, firmness string) map[string]any {
	return map[string]any{
		"id":                 id,
		"name":               name,
		"growth_time":        3,
		"max_harvest":        5,
		"natural_gift_power": 60,
		"size":               20,
		"smoothness":         25,
		"soil_dryness":       15,
		"firmness":           map[string]string{"name": firmness, "url": ""},
		"flavors":            []any{},
		"item":               map[string]string{"name": name + "-berry", "url": ""},
		"natural_gift_type":  map[string]string{"name": "fire", "url": ""},
	}
}

// SeedBerries registers the berry list and a "soft" detail for each berry.
func (m *MockPokeAPI) SeedBerries() {
	m.SetList("berry", BerryNames...)
	for i, name := range BerryNames {
		m.SetDetail("berry", name, BerryBody(i+1, name, "soft"))
	}
}

// SeedPokemon registers n pokemon named pokemon-1 .. pokemon-n.
func (m *MockPokeAPI) SeedPokemon(n int) {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("pokemon-%d", i+1)
	}
	m.SetList("pokemon", names...)
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewMalformedResponse creates a 200 response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html>maintenance</html>`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
