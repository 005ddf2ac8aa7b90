// Package cache puts a Redis read-through cache in front of any todo adapter.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/todo"
	"github.com/Makepad-fr/tada/internal/view"
)

const DefaultPrefix = "tada:"

// Adapter caches ReadAll results per query. Every write bumps a generation
// counter that is part of the key, so stale entries are never read again and
// simply expire. When a bump fails the cache is bypassed until the next
// bump succeeds.
type Adapter struct {
	base   todo.Adapter
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *log.Logger

	stale atomic.Bool
}

type Option func(*Adapter)

func WithPrefix(p string) Option { return func(a *Adapter) { a.prefix = p } }

func WithLogger(l *log.Logger) Option { return func(a *Adapter) { a.logger = l } }

// New wraps base. A zero ttl disables storing but reads still go through.
func New(base todo.Adapter, client *redis.Client, ttl time.Duration, opts ...Option) *Adapter {
	if base == nil {
		panic("cache.New: base adapter is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	a := &Adapter{base: base, redis: client, ttl: ttl, prefix: DefaultPrefix}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger = log.New()
		a.logger.SetOutput(io.Discard)
	}
	return a
}

func (a *Adapter) Create(ctx context.Context, t model.Todo) (string, error) {
	id, err := a.base.Create(ctx, t)
	if err != nil {
		return "", err
	}
	a.bump(ctx)
	return id, nil
}

func (a *Adapter) ReadAll(ctx context.Context, q view.Query) ([]model.Todo, error) {
	key, ok := a.key(ctx, q)
	if ok {
		if items, hit := a.load(ctx, key); hit {
			return items, nil
		}
	}
	items, err := a.base.ReadAll(ctx, q)
	if err != nil {
		return nil, err
	}
	if ok {
		a.store(ctx, key, items)
	}
	return items, nil
}

func (a *Adapter) Update(ctx context.Context, id string, p model.Patch) error {
	err := a.base.Update(ctx, id, p)
	// A failed write may still have landed.
	a.bump(ctx)
	return err
}

func (a *Adapter) Delete(ctx context.Context, id string) error {
	err := a.base.Delete(ctx, id)
	a.bump(ctx)
	return err
}

// Close closes the backend if it holds connections, then the Redis client.
func (a *Adapter) Close(ctx context.Context) error {
	var errs []error
	if c, ok := a.base.(todo.Closer); ok {
		errs = append(errs, c.Close(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}

func (a *Adapter) genKey() string { return a.prefix + "gen" }

func (a *Adapter) key(ctx context.Context, q view.Query) (string, bool) {
	if a.redis == nil {
		return "", false
	}
	if a.stale.Load() && !a.bump(ctx) {
		return "", false
	}
	gen, err := a.redis.Get(ctx, a.genKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		a.logger.WithError(err).Warn("cache unavailable, reading from backend")
		return "", false
	}
	return queryKey(a.prefix, gen, q), true
}

func queryKey(prefix string, gen int64, q view.Query) string {
	return prefix + "todos:" + strconv.FormatInt(gen, 10) + ":" + q.Owner + ":" + q.Filter.String() + ":" + q.Sort.String()
}

func (a *Adapter) load(ctx context.Context, key string) ([]model.Todo, bool) {
	data, err := a.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			_ = a.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var items []model.Todo
	if err := json.Unmarshal(data, &items); err != nil {
		_ = a.redis.Del(ctx, key).Err()
		return nil, false
	}
	return items, true
}

func (a *Adapter) store(ctx context.Context, key string, items []model.Todo) {
	if a.ttl == 0 {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	_ = a.redis.Set(ctx, key, data, a.ttl).Err()
}

// bump moves to a new generation and reports whether Redis took it.
func (a *Adapter) bump(ctx context.Context) bool {
	if a.redis == nil {
		return false
	}
	if err := a.redis.Incr(ctx, a.genKey()).Err(); err != nil {
		a.stale.Store(true)
		a.logger.WithError(err).Warn("cache generation not bumped")
		return false
	}
	a.stale.Store(false)
	return true
}
