package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/pokeref/pkg/cache"
	"github.com/Sternrassler/pokeref/pkg/logging"
	"github.com/Sternrassler/pokeref/pkg/pokeapi"
	"github.com/Sternrassler/pokeref/pkg/resource"
	"github.com/rs/zerolog"
	"resty.dev/v3"
)

// ClientConfig holds configuration for the remote procedure client.
type ClientConfig struct {
	// BaseURL is the pokeref server root (e.g. "http://localhost:8080").
	BaseURL string

	// UserAgent identifies the caller.
	UserAgent string

	// Timeout bounds one procedure call. Aggregating a large kind cold
	// takes a while, so keep this generous. Zero disables it.
	Timeout time.Duration
}

// DefaultClientConfig returns a client configuration for baseURL.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:   baseURL,
		UserAgent: "pokeref-client",
		Timeout:   2 * time.Minute,
	}
}

// Client implements Procedures against a remote pokeref server: every
// logical query is exactly one HTTP round trip.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

var _ Procedures = (*Client)(nil)

// NewClient creates a remote procedure client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if cfg.UserAgent != "" {
		httpClient.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}

	return &Client{
		http:   httpClient,
		logger: logging.NewLogger("rpc-client"),
	}, nil
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

// remoteError decodes an error envelope from a failed response.
func remoteError(resp *resty.Response) *RemoteError {
	remote := &RemoteError{StatusCode: resp.StatusCode(), Code: CodeInternalError, Message: resp.Status()}

	var envelope errorEnvelope
	if json.Unmarshal([]byte(resp.String()), &envelope) == nil && envelope.Error != nil {
		remote.Code = envelope.Error.Code
		remote.Message = envelope.Error.Message
	}
	return remote
}

// transportError wraps a failed round trip.
func transportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	return fmt.Errorf("%s: %w: %v", op, pokeapi.ErrUpstreamUnavailable, err)
}

// invoke calls one procedure and decodes the data envelope into T.
func invoke[T any](ctx context.Context, c *Client, procedure string, in Input) (T, error) {
	var out struct {
		Data T `json:"data"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("procedure", procedure).
		SetBody(in).
		SetResult(&out).
		Post("/rpc/{procedure}")
	if err != nil {
		if resp != nil && resp.IsSuccess() {
			return out.Data, fmt.Errorf("%s: decode response: %w", procedure, err)
		}
		return out.Data, transportError(ctx, procedure, err)
	}

	if !resp.IsSuccess() {
		remote := remoteError(resp)
		c.logger.Debug().
			Str("procedure", procedure).
			Int("status_code", remote.StatusCode).
			Str("code", remote.Code).
			Msg("Procedure failed")
		return out.Data, fmt.Errorf("%s: %w", procedure, remote)
	}

	return out.Data, nil
}

func (c *Client) ListAbilities(ctx context.Context) ([]resource.EnrichedItem[resource.AbilityDetail], error) {
	return invoke[[]resource.EnrichedItem[resource.AbilityDetail]](ctx, c, ListProcedure(resource.Abilities), Input{})
}

func (c *Client) GetAbilityByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.AbilityDetail], error) {
	return invoke[*resource.EnrichedItem[resource.AbilityDetail]](ctx, c, GetProcedure(resource.Abilities), Input{Name: name})
}

func (c *Client) ListBerries(ctx context.Context) ([]resource.EnrichedItem[resource.BerryDetail], error) {
	return invoke[[]resource.EnrichedItem[resource.BerryDetail]](ctx, c, ListProcedure(resource.Berries), Input{})
}

func (c *Client) GetBerryByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.BerryDetail], error) {
	return invoke[*resource.EnrichedItem[resource.BerryDetail]](ctx, c, GetProcedure(resource.Berries), Input{Name: name})
}

func (c *Client) ListItems(ctx context.Context) ([]resource.EnrichedItem[resource.ItemDetail], error) {
	return invoke[[]resource.EnrichedItem[resource.ItemDetail]](ctx, c, ListProcedure(resource.Items), Input{})
}

func (c *Client) GetItemByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.ItemDetail], error) {
	return invoke[*resource.EnrichedItem[resource.ItemDetail]](ctx, c, GetProcedure(resource.Items), Input{Name: name})
}

func (c *Client) ListMoves(ctx context.Context) ([]resource.EnrichedItem[resource.MoveDetail], error) {
	return invoke[[]resource.EnrichedItem[resource.MoveDetail]](ctx, c, ListProcedure(resource.Moves), Input{})
}

func (c *Client) GetMoveByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.MoveDetail], error) {
	return invoke[*resource.EnrichedItem[resource.MoveDetail]](ctx, c, GetProcedure(resource.Moves), Input{Name: name})
}

func (c *Client) ListTypes(ctx context.Context) ([]resource.EnrichedItem[resource.TypeDetail], error) {
	return invoke[[]resource.EnrichedItem[resource.TypeDetail]](ctx, c, ListProcedure(resource.Types), Input{})
}

func (c *Client) GetTypeByName(ctx context.Context, name string) (*resource.EnrichedItem[resource.TypeDetail], error) {
	return invoke[*resource.EnrichedItem[resource.TypeDetail]](ctx, c, GetProcedure(resource.Types), Input{Name: name})
}

func (c *Client) ListPokemon(ctx context.Context) ([]resource.ListEntry, error) {
	return invoke[[]resource.ListEntry](ctx, c, ListProcedure(resource.Pokemon), Input{})
}

func (c *Client) ListPokemonRange(ctx context.Context, offset, limit int) ([]resource.ListEntry, error) {
	if err := ValidateRange(offset, limit); err != nil {
		return nil, err
	}
	return invoke[[]resource.ListEntry](ctx, c, RangeProcedure, Input{Offset: offset, Limit: limit})
}

// CacheStats fetches the server's query cache statistics.
func (c *Client) CacheStats(ctx context.Context) (cache.Stats, error) {
	var stats cache.Stats

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&stats).
		Get("/cache/stats")
	if err != nil {
		return stats, transportError(ctx, "cache stats", err)
	}
	if !resp.IsSuccess() {
		return stats, fmt.Errorf("cache stats: %w", remoteError(resp))
	}
	return stats, nil
}

// InvalidateCache drops the server's cached queries of kind, or only the
// detail query of name when name is set. Returns the number removed.
func (c *Client) InvalidateCache(ctx context.Context, kind resource.Kind, name string) (int, error) {
	var out struct {
		Removed int `json:"removed"`
	}

	req := c.http.R().
		SetContext(ctx).
		SetPathParam("kind", kind.String()).
		SetResult(&out)

	path := "/cache/{kind}"
	if name != "" {
		req.SetPathParam("name", name)
		path = "/cache/{kind}/detail/{name}"
	}

	resp, err := req.Delete(path)
	if err != nil {
		return 0, transportError(ctx, "invalidate", err)
	}
	if !resp.IsSuccess() {
		return 0, fmt.Errorf("invalidate: %w", remoteError(resp))
	}
	return out.Removed, nil
}
