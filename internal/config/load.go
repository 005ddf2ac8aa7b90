package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

const (
	userConfigName    = "config.toml"
	projectConfigName = "tada.toml"
)

// Flags are the root flags that override configuration. Bind them to the
// root FlagSet before parsing.
type Flags struct {
	Config  string
	Backend string
	Theme   string
	Group   bool

	fs *flag.FlagSet
}

func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.Config, "config", "", "path to a tada.toml (default ./tada.toml)")
	fs.StringVar(&f.Backend, "backend", "", "storage backend: memory|local|redis|tables|neo4j")
	fs.StringVar(&f.Theme, "theme", "", "color theme: classic|neon|mono")
	fs.BoolVar(&f.Group, "group", false, "group output by pending/done")
	return f
}

func (f *Flags) set(name string) bool {
	if f == nil || f.fs == nil {
		return false
	}
	found := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

// Loader finds files and environment values. The zero value uses the real
// home directory, working directory and environment.
type Loader struct {
	UserDir string
	WorkDir string
	Getenv  func(string) string
}

// Load loads configuration from multiple sources in priority order:
// 1. Defaults
// 2. User config file (~/.tada/config.toml)
// 3. Project config file (./tada.toml, or -config)
// 4. Environment variables (TADA_*)
// 5. Root flags
func Load(f *Flags) (*Config, error) {
	return Loader{}.Load(f)
}

func (l Loader) Load(f *Flags) (*Config, error) {
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := &Config{}

	// 1. Set defaults
	setDefaults(cfg)

	// 2. Try to load from user config file
	if p := l.userFile(); p != "" {
		if err := loadOptional(cfg, p); err != nil {
			return nil, fmt.Errorf("loading user config file %s: %w", p, err)
		}
	}

	// 3. Project file; an explicit -config must exist
	if f != nil && f.Config != "" {
		if _, err := toml.DecodeFile(f.Config, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", f.Config, err)
		}
		cfg.File = f.Config
	} else if p := l.projectFile(); p != "" {
		if err := loadOptional(cfg, p); err != nil {
			return nil, fmt.Errorf("loading project config file %s: %w", p, err)
		}
		if _, err := os.Stat(p); err == nil {
			cfg.File = p
		}
	}

	// 4. Override from environment
	if err := loadFromEnv(cfg, getenv); err != nil {
		return nil, err
	}

	// 5. Flags explicitly given on the command line win
	if f.set("backend") {
		cfg.Backend = f.Backend
	}
	if f.set("theme") {
		cfg.Theme = f.Theme
	}
	if f.set("group") {
		cfg.Group = f.Group
	}

	if err := finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l Loader) userFile() string {
	dir := l.UserDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".tada")
	}
	return filepath.Join(dir, userConfigName)
}

func (l Loader) projectFile() string {
	dir := l.WorkDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ""
		}
		dir = wd
	}
	return filepath.Join(dir, projectConfigName)
}

// loadOptional decodes path into cfg, ignoring a missing file.
func loadOptional(cfg *Config, path string) error {
	_, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func loadFromEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("TADA_BACKEND", &cfg.Backend)
	str("TADA_THEME", &cfg.Theme)
	if err := boolean("TADA_GROUP", &cfg.Group); err != nil {
		return err
	}
	str("TADA_LOCAL_DIR", &cfg.Local.Dir)
	str("TADA_LOCAL_SLOT", &cfg.Local.Slot)
	str("TADA_REDIS_URL", &cfg.Redis.URL)
	str("TADA_TABLES_CONNECTION_STRING", &cfg.Tables.ConnectionString)
	str("TADA_TABLES_TABLE", &cfg.Tables.Table)
	str("TADA_NEO4J_URI", &cfg.Neo4j.URI)
	str("TADA_NEO4J_USERNAME", &cfg.Neo4j.Username)
	str("TADA_NEO4J_PASSWORD", &cfg.Neo4j.Password)
	str("TADA_NEO4J_DATABASE", &cfg.Neo4j.Database)
	str("TADA_CACHE_REDIS_URL", &cfg.Cache.RedisURL)
	if v := strings.TrimSpace(getenv("TADA_CACHE_TTL")); v != "" {
		if err := cfg.Cache.TTL.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("TADA_CACHE_TTL: %w", err)
		}
	}
	str("TADA_AUTH_SECRET", &cfg.Auth.Secret)
	str("TADA_AUTH_JWKS_URL", &cfg.Auth.JWKSURL)
	str("TADA_AUTH_AUDIENCE", &cfg.Auth.Audience)
	str("TADA_AUTH_ISSUER", &cfg.Auth.Issuer)
	str("TADA_SERVER_ADDR", &cfg.Server.Addr)
	if err := boolean("TADA_STORE_ROLLBACK", &cfg.Store.Rollback); err != nil {
		return err
	}
	str("TADA_LOG_LEVEL", &cfg.Log.Level)
	str("TADA_LOG_FORMAT", &cfg.Log.Format)
	return nil
}

// finalize normalizes values and validates enums.
func finalize(cfg *Config) error {
	cfg.Backend = strings.ToLower(cfg.Backend)
	cfg.Theme = strings.ToLower(cfg.Theme)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.Local.Dir = expandPath(cfg.Local.Dir)
	if cfg.Local.Slot == "" {
		cfg.Local.Slot = DefaultSlot
	}
	return cfg.Validate()
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendLocal:
	case BackendRedis:
		if c.Redis.URL == "" {
			return errors.New("backend redis needs redis.url")
		}
	case BackendTables:
		if c.Tables.ConnectionString == "" {
			return errors.New("backend tables needs tables.connection_string")
		}
		if c.Tables.Table == "" {
			return errors.New("backend tables needs tables.table")
		}
	case BackendNeo4j:
		if c.Neo4j.URI == "" {
			return errors.New("backend neo4j needs neo4j.uri")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.Theme {
	case "classic", "neon", "mono":
	default:
		return fmt.Errorf("unknown theme %q", c.Theme)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	if c.Cache.TTL.Duration < 0 {
		return errors.New("cache.ttl must not be negative")
	}
	if c.Auth.Secret != "" && c.Auth.JWKSURL != "" {
		return errors.New("set auth.secret or auth.jwks_url, not both")
	}
	return nil
}

// expandPath expands ~/ and environment variables.
func expandPath(p string) string {
	if p == "" {
		return p
	}
	expanded := os.ExpandEnv(p)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return expanded
		}
		return filepath.Join(home, strings.TrimPrefix(expanded[1:], "/"))
	}
	return expanded
}
