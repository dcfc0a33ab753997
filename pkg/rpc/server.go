package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/pokeref/pkg/cache"
	"github.com/Sternrassler/pokeref/pkg/logging"
	"github.com/Sternrassler/pokeref/pkg/metrics"
	"github.com/Sternrassler/pokeref/pkg/resource"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// maxInputBytes bounds the JSON input of a procedure call.
const maxInputBytes = 64 << 10

// Prefetcher warms query results without waiting for them.
type Prefetcher interface {
	PrefetchList(ctx context.Context, kind resource.Kind) error
	PrefetchDetail(ctx context.Context, kind resource.Kind, name string) error
}

// Invalidator drops cached query results and reports how many were removed.
type Invalidator interface {
	InvalidateAll(ctx context.Context, kind resource.Kind) int
	InvalidateList(ctx context.Context, kind resource.Kind) int
	InvalidateDetail(ctx context.Context, kind resource.Kind, name string) int
}

// ServerOptions configures the HTTP surface.
type ServerOptions struct {
	// Procedures serves /rpc and /api. Required.
	Procedures Procedures

	// Prefetcher serves /prefetch and /ws/intent. Routes are not
	// registered when nil.
	Prefetcher Prefetcher

	// Invalidator serves DELETE /cache. Routes are not registered when nil.
	Invalidator Invalidator

	// Ready reports readiness for /ready. Nil means always ready.
	Ready func(ctx context.Context) error

	// Stats serves /cache/stats when set.
	Stats func() cache.Stats

	// CacheMaxAge is advertised in Cache-Control on /api responses.
	// Zero omits the header.
	CacheMaxAge time.Duration
}

// Server is the gin HTTP surface of the consolidation boundary.
type Server struct {
	opts   ServerOptions
	engine *gin.Engine
	logger zerolog.Logger
}

// NewServer builds the router and registers all routes.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Procedures == nil {
		return nil, fmt.Errorf("procedures are required")
	}

	s := &Server{
		opts:   opts,
		engine: gin.New(),
		logger: logging.NewLogger("rpc-server"),
	}

	s.engine.Use(gin.Recovery(), requestID(), requestLogger(), instrument())
	s.engine.HandleMethodNotAllowed = true
	s.engine.NoRoute(func(c *gin.Context) {
		writeNotFound(c, "no route for %s %s", c.Request.Method, c.Request.URL.Path)
	})

	s.routes()
	return s, nil
}

// Handler returns the http.Handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.POST("/rpc/:procedure", s.call)

	r.GET("/api/:kind", s.restList)
	r.GET("/api/:kind/:name", s.restGet)

	if s.opts.Prefetcher != nil {
		r.POST("/prefetch/:kind", s.prefetch)
		r.POST("/prefetch/:kind/:name", s.prefetch)
		r.GET("/ws/intent", s.intents)
	}

	if s.opts.Invalidator != nil {
		r.DELETE("/cache/:kind", s.invalidateAll)
		r.DELETE("/cache/:kind/list", s.invalidateList)
		r.DELETE("/cache/:kind/detail/:name", s.invalidateDetail)
	}

	if s.opts.Stats != nil {
		r.GET("/cache/stats", s.stats)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ready(c *gin.Context) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// call serves POST /rpc/{procedure}. An empty body is the empty input.
func (s *Server) call(c *gin.Context) {
	var in Input

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxInputBytes+1))
	if err != nil {
		writeError(c, fmt.Errorf("%w: read input: %v", ErrBadRequest, err))
		return
	}
	if len(body) > maxInputBytes {
		writeError(c, fmt.Errorf("%w: input exceeds %d bytes", ErrBadRequest, maxInputBytes))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &in); err != nil {
			writeError(c, fmt.Errorf("%w: decode input: %v", ErrBadRequest, err))
			return
		}
	}

	out, err := Call(c.Request.Context(), s.opts.Procedures, c.Param("procedure"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dataEnvelope{Data: out})
}

func (s *Server) restList(c *gin.Context) {
	kind, err := resource.ParseKind(c.Param("kind"))
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()

	var out any
	offset, hasOffset := c.GetQuery("offset")
	limit, hasLimit := c.GetQuery("limit")
	if kind == resource.Pokemon && (hasOffset || hasLimit) {
		in, err := rangeInput(offset, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		out, err = Call(ctx, s.opts.Procedures, RangeProcedure, in)
		if err != nil {
			writeError(c, err)
			return
		}
	} else if out, err = List(ctx, s.opts.Procedures, kind); err != nil {
		writeError(c, err)
		return
	}

	s.writeRepresentation(c, out)
}

func (s *Server) restGet(c *gin.Context) {
	kind, err := resource.ParseKind(c.Param("kind"))
	if err != nil {
		writeError(c, err)
		return
	}

	name := c.Param("name")
	out, err := GetByName(c.Request.Context(), s.opts.Procedures, kind, name)
	if err != nil {
		writeError(c, err)
		return
	}
	if out == nil {
		writeNotFound(c, "%s %q not found", kind, name)
		return
	}

	s.writeRepresentation(c, out)
}

// writeRepresentation writes a REST body with validators, answering 304
// when the client already holds it.
func (s *Server) writeRepresentation(c *gin.Context, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(c, fmt.Errorf("encode response: %w", err))
		return
	}

	etag := cache.ETag(body)
	cache.SetValidators(c.Writer.Header(), etag, s.opts.CacheMaxAge)
	if cache.NotModified(c.Request, etag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// rangeInput parses the offset/limit query of GET /api/pokemon.
// A missing offset is 0, a missing limit is 20 as on the PokeAPI.
func rangeInput(offset, limit string) (Input, error) {
	in := Input{Offset: 0, Limit: 20}

	var err error
	if offset != "" {
		if in.Offset, err = strconv.Atoi(offset); err != nil {
			return Input{}, fmt.Errorf("%w: offset %q is not a number", ErrBadRequest, offset)
		}
	}
	if limit != "" {
		if in.Limit, err = strconv.Atoi(limit); err != nil {
			return Input{}, fmt.Errorf("%w: limit %q is not a number", ErrBadRequest, limit)
		}
	}
	return in, ValidateRange(in.Offset, in.Limit)
}

func (s *Server) prefetch(c *gin.Context) {
	kind, err := resource.ParseKind(c.Param("kind"))
	if err != nil {
		writeError(c, err)
		return
	}

	if err := s.queueIntent(c.Request.Context(), kind, c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// queueIntent starts a prefetch for a list (name empty) or one detail.
// It does not wait for the prefetch to finish.
func (s *Server) queueIntent(ctx context.Context, kind resource.Kind, name string) error {
	if name == "" {
		return s.opts.Prefetcher.PrefetchList(ctx, kind)
	}
	if !kind.IsAggregated() {
		return fmt.Errorf("%w: %q has no detail procedure", resource.ErrUnknownKind, kind)
	}
	return s.opts.Prefetcher.PrefetchDetail(ctx, kind, name)
}

func (s *Server) invalidateAll(c *gin.Context) {
	s.invalidate(c, func(ctx context.Context, kind resource.Kind) int {
		return s.opts.Invalidator.InvalidateAll(ctx, kind)
	})
}

func (s *Server) invalidateList(c *gin.Context) {
	s.invalidate(c, func(ctx context.Context, kind resource.Kind) int {
		return s.opts.Invalidator.InvalidateList(ctx, kind)
	})
}

func (s *Server) invalidateDetail(c *gin.Context) {
	name := c.Param("name")
	s.invalidate(c, func(ctx context.Context, kind resource.Kind) int {
		return s.opts.Invalidator.InvalidateDetail(ctx, kind, name)
	})
}

func (s *Server) invalidate(c *gin.Context, fn func(context.Context, resource.Kind) int) {
	kind, err := resource.ParseKind(c.Param("kind"))
	if err != nil {
		writeError(c, err)
		return
	}

	removed := fn(c.Request.Context(), kind)
	logger := logging.FromContext(c.Request.Context(), "rpc-server")
	logger.Info().
		Str("kind", kind.String()).
		Int("removed", removed).
		Msg("Cache invalidated")
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Stats())
}

// ListenAndServe runs the server on addr until ctx is cancelled, then
// shuts down gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
