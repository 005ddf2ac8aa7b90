// Package config loads tada settings from defaults, TOML files, the
// environment and root flags, in that order.
package config

import (
	"fmt"
	"time"
)

// Backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendRedis  = "redis"
	BackendTables = "tables"
	BackendNeo4j  = "neo4j"
)

// Default values.
const (
	DefaultBackend    = BackendLocal
	DefaultTheme      = "classic"
	DefaultSlot       = "todoList"
	DefaultTable      = "todos"
	DefaultServerAddr = ":8080"
	DefaultLogLevel   = "warn"
	DefaultLogFormat  = "text"
	DefaultCacheTTL   = time.Minute
)

type Config struct {
	Backend string `toml:"backend"`
	Theme   string `toml:"theme"`
	Group   bool   `toml:"group"`

	Local  LocalConfig  `toml:"local"`
	Redis  RedisConfig  `toml:"redis"`
	Tables TablesConfig `toml:"tables"`
	Neo4j  Neo4jConfig  `toml:"neo4j"`
	Cache  CacheConfig  `toml:"cache"`
	Auth   AuthConfig   `toml:"auth"`
	Server ServerConfig `toml:"server"`
	Store  StoreConfig  `toml:"store"`
	Log    LogConfig    `toml:"log"`

	// File is the project file that was read, if any.
	File string `toml:"-"`
}

type LocalConfig struct {
	// Dir holds <slot>.json. Empty means the working directory.
	Dir  string `toml:"dir"`
	Slot string `toml:"slot"`
}

type RedisConfig struct {
	URL string `toml:"url"`
}

type TablesConfig struct {
	ConnectionString string `toml:"connection_string"`
	Table            string `toml:"table"`
}

type Neo4jConfig struct {
	URI      string `toml:"uri"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

// CacheConfig enables the Redis read cache in front of remote backends.
type CacheConfig struct {
	RedisURL string   `toml:"redis_url"`
	TTL      Duration `toml:"ttl"`
}

type AuthConfig struct {
	Secret   string `toml:"secret"`
	JWKSURL  string `toml:"jwks_url"`
	Audience string `toml:"audience"`
	Issuer   string `toml:"issuer"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type StoreConfig struct {
	Rollback bool `toml:"rollback"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration reads "30s" style values.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func setDefaults(cfg *Config) {
	cfg.Backend = DefaultBackend
	cfg.Theme = DefaultTheme
	cfg.Local.Slot = DefaultSlot
	cfg.Tables.Table = DefaultTable
	cfg.Neo4j.Username = "neo4j"
	cfg.Cache.TTL = Duration{DefaultCacheTTL}
	cfg.Server.Addr = DefaultServerAddr
	cfg.Log.Level = DefaultLogLevel
	cfg.Log.Format = DefaultLogFormat
}

// Remote reports whether the backend lives outside the process and its
// files.
func (c *Config) Remote() bool {
	return c.Backend == BackendTables || c.Backend == BackendNeo4j
}
