package main

import (
	"context"
	"fmt"

	"github.com/Sternrassler/pokeref/pkg/cache"
	"github.com/Sternrassler/pokeref/pkg/cache/sqlite"
	"github.com/Sternrassler/pokeref/pkg/config"
	"github.com/Sternrassler/pokeref/pkg/logging"
	"github.com/Sternrassler/pokeref/pkg/pokeapi"
	"github.com/Sternrassler/pokeref/pkg/queries"
	"github.com/Sternrassler/pokeref/pkg/rpc"
	"github.com/redis/go-redis/v9"
)

// loadConfig loads the configuration and sets up logging from it.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging())
	return cfg, nil
}

// openStore opens the configured persistent store. The memory store
// returns nil.
func openStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Cache.RedisAddr, err)
		}
		return cache.NewRedisStore(client), nil
	case config.StoreSQLite:
		store, err := sqlite.New(cfg.Cache.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, nil
	}
}

// app is the in-process stack: PokeAPI client, fan-out router and the
// cached query layer on top.
type app struct {
	client  *pokeapi.Client
	cache   *cache.Cache
	queries *queries.Queries
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	client, err := pokeapi.New(cfg.PokeAPI())
	if err != nil {
		return nil, fmt.Errorf("failed to create PokeAPI client: %w", err)
	}

	router, err := rpc.NewRouter(client, cfg.Aggregate())
	if err != nil {
		client.Close()
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}

	c := cache.New(cfg.QueryCache(store))
	q, err := queries.New(c, router)
	if err != nil {
		c.Close()
		client.Close()
		return nil, err
	}

	return &app{client: client, cache: c, queries: q}, nil
}

// server builds the HTTP surface over the cached queries.
func (a *app) server(cfg *config.Config) (*rpc.Server, error) {
	return rpc.NewServer(rpc.ServerOptions{
		Procedures:  a.queries,
		Prefetcher:  a.queries,
		Invalidator: a.queries,
		Ready:       a.cache.Ping,
		Stats:       a.queries.Stats,
		CacheMaxAge: cfg.Server.CacheMaxAge,
	})
}

// Close drains prefetches and releases the store and HTTP client.
func (a *app) Close() error {
	err := a.cache.Close()
	if cerr := a.client.Close(); err == nil {
		err = cerr
	}
	return err
}
