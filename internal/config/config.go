// Package config loads fieldkit configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fieldkit/internal/idgen"
	"github.com/roach88/fieldkit/internal/store"
)

// Config is the full configuration. Zero values are replaced by defaults.
type Config struct {
	DataDir string       `yaml:"data_dir"`
	Store   StoreConfig  `yaml:"store"`
	Remote  RemoteConfig `yaml:"remote"`
	Cache   CacheConfig  `yaml:"cache"`
	IDs     IDConfig     `yaml:"ids"`
	Server  ServerConfig `yaml:"server"`
	Probe   ProbeConfig  `yaml:"probe"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // sqlite | leveldb | memory
	Path    string `yaml:"path"`    // defaults under DataDir
}

type RemoteConfig struct {
	BaseURL string        `yaml:"base_url"` // empty disables remote fetches
	Timeout time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	MemorySize int `yaml:"memory_size"` // decoded schemas kept in memory, -1 disables
}

type IDConfig struct {
	Strategy string `yaml:"strategy"` // ulid | uuidv7
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

type ProbeConfig struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"` // defaults to remote.base_url
	Interval time.Duration `yaml:"interval"`
}

// Defaults.
const (
	DefaultDataDir    = ".fieldkit"
	DefaultTimeout    = 15 * time.Second
	DefaultMemorySize = 64
	DefaultListen     = "127.0.0.1:8787"
	DefaultInterval   = 30 * time.Second
)

// Default returns the configuration used when no file is given.
func Default() Config {
	c := Config{}
	c.applyDefaults()
	return c
}

// Load reads and validates the YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, rejecting unknown fields, then applies defaults and
// validates.
func Parse(data []byte) (Config, error) {
	var c Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Store.Backend == "" {
		c.Store.Backend = store.BackendSQLite
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = DefaultTimeout
	}
	if c.Cache.MemorySize == 0 {
		c.Cache.MemorySize = DefaultMemorySize
	}
	if c.IDs.Strategy == "" {
		c.IDs.Strategy = idgen.StrategyULID
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Probe.Interval == 0 {
		c.Probe.Interval = DefaultInterval
	}
}

// Validate checks field values. It assumes defaults were applied.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case store.BackendSQLite, store.BackendLevelDB, store.BackendMemory:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	if c.Remote.BaseURL != "" {
		u, err := url.Parse(c.Remote.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("remote.base_url: %q is not an absolute URL", c.Remote.BaseURL)
		}
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout: must be positive")
	}
	if c.Cache.MemorySize < -1 {
		return fmt.Errorf("cache.memory_size: must be -1 or more")
	}
	if _, err := idgen.FromName(c.IDs.Strategy); err != nil {
		return fmt.Errorf("ids.strategy: %w", err)
	}
	if c.Probe.Enabled && c.ProbeURL() == "" {
		return fmt.Errorf("probe.url: required when probe is enabled and remote.base_url is empty")
	}
	if c.Probe.Interval < 0 {
		return fmt.Errorf("probe.interval: must be positive")
	}
	return nil
}

// StorePath returns the configured store location, defaulting to a file or
// directory under DataDir that depends on the backend.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	switch c.Store.Backend {
	case store.BackendLevelDB:
		return filepath.Join(c.DataDir, "leveldb")
	default:
		return filepath.Join(c.DataDir, "fieldkit.db")
	}
}

// MemorySize returns the schema memory cache size, 0 when disabled.
func (c *Config) MemorySize() int {
	if c.Cache.MemorySize < 0 {
		return 0
	}
	return c.Cache.MemorySize
}

// ProbeURL returns the URL the connectivity prober checks.
func (c *Config) ProbeURL() string {
	if c.Probe.URL != "" {
		return c.Probe.URL
	}
	return c.Remote.BaseURL
}
