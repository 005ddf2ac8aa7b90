// Package store opens the todo adapter a configuration names.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/store/cache"
	"github.com/Makepad-fr/tada/internal/store/graph"
	"github.com/Makepad-fr/tada/internal/store/kv"
	"github.com/Makepad-fr/tada/internal/store/local"
	"github.com/Makepad-fr/tada/internal/store/tables"
	"github.com/Makepad-fr/tada/internal/todo"
)

const redisPrefix = "tada:"

// Open returns the adapter for cfg.Backend. Remote backends get the Redis
// read cache when cache.redis_url is set. Callers close the adapter when it
// implements todo.Closer.
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger) (todo.Adapter, error) {
	var (
		a   todo.Adapter
		err error
	)
	switch cfg.Backend {
	case config.BackendMemory:
		a = todo.NewMemory()
	case config.BackendLocal:
		f, ferr := kv.NewFile(cfg.Local.Dir)
		if ferr != nil {
			return nil, fmt.Errorf("local store: %w", ferr)
		}
		a = local.New(f, local.WithSlot(cfg.Local.Slot), local.WithLogger(logger))
	case config.BackendRedis:
		client, rerr := redisClient(cfg.Redis.URL)
		if rerr != nil {
			return nil, rerr
		}
		a = local.New(kv.NewRedis(client, redisPrefix), local.WithSlot(cfg.Local.Slot), local.WithLogger(logger))
	case config.BackendTables:
		a, err = tables.New(ctx, cfg.Tables.ConnectionString, cfg.Tables.Table)
	case config.BackendNeo4j:
		a, err = graph.New(ctx, graph.Config{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.Username,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%s store: %w", cfg.Backend, err)
	}

	if cfg.Remote() && cfg.Cache.RedisURL != "" {
		client, err := redisClient(cfg.Cache.RedisURL)
		if err != nil {
			if c, ok := a.(todo.Closer); ok {
				_ = c.Close(ctx)
			}
			return nil, err
		}
		a = cache.New(a, client, cfg.Cache.TTL.Duration, cache.WithLogger(logger))
	}
	return a, nil
}

func redisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
