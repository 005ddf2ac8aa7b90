package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/store/local"
	"github.com/Makepad-fr/tada/internal/todo"
	"github.com/Makepad-fr/tada/internal/view"
)

func testConfig(backend string) *config.Config {
	return &config.Config{
		Backend: backend,
		Local:   config.LocalConfig{Slot: config.DefaultSlot},
		Cache:   config.CacheConfig{TTL: config.Duration{Duration: time.Minute}},
	}
}

func nullLogger() *log.Logger {
	l, _ := test.NewNullLogger()
	return l
}

func TestOpenMemory(t *testing.T) {
	a, err := Open(context.Background(), testConfig(config.BackendMemory), nullLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.(*todo.Memory); !ok {
		t.Fatalf("got %T", a)
	}
}

func TestOpenLocalWritesSlotFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(config.BackendLocal)
	cfg.Local.Dir = dir
	cfg.Local.Slot = "work"

	a, err := Open(context.Background(), cfg, nullLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.(*local.Adapter); !ok {
		t.Fatalf("got %T", a)
	}
	s := todo.New(a)
	if _, err := s.Add(context.Background(), "Buy milk", nil, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "work.json")); err != nil {
		t.Fatalf("slot file: %v", err)
	}
}

func TestOpenRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := testConfig(config.BackendRedis)
	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"
	ctx := context.Background()
	a, err := Open(ctx, cfg, nullLogger())
	if err != nil {
		t.Fatal(err)
	}
	s := todo.New(a)
	defer s.Close(ctx)
	if _, err := s.Add(ctx, "Buy milk", nil, ""); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(redisPrefix + config.DefaultSlot) {
		t.Fatalf("expected key %q, have %v", redisPrefix+config.DefaultSlot, mr.Keys())
	}

	a2, err := Open(ctx, cfg, nullLogger())
	other := todo.New(must(t, a2, err))
	items, err := other.Load(ctx, view.Query{})
	if err != nil || len(items) != 1 {
		t.Fatalf("reload: %+v %v", items, err)
	}
}

func TestOpenErrors(t *testing.T) {
	bad := testConfig(config.BackendRedis)
	bad.Redis.URL = "not a url"
	if _, err := Open(context.Background(), bad, nullLogger()); err == nil {
		t.Fatal("expected redis url error")
	}
	if _, err := Open(context.Background(), testConfig("sqlite"), nullLogger()); err == nil {
		t.Fatal("expected unknown backend error")
	}
}

func must(t *testing.T, a todo.Adapter, err error) todo.Adapter {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	return a
}
