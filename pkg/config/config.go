// Package config loads bridgezip settings from defaults, an optional YAML
// file and BRIDGEZIP_* environment variables, in that order of priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultCatalogURL = "http://127.0.0.1:8188"
	DefaultTimeout    = 10 * time.Second
	DefaultTTL        = 60 * time.Second
	DefaultCacheKey   = "object_info"
	DefaultModel      = "anthropic:claude-sonnet-4-6"
	DefaultMaxTokens  = 8192
)

// Config is the full settings tree.
type Config struct {
	Catalog CatalogConfig `yaml:"catalog"`
	Log     LogConfig     `yaml:"log"`
	Planner PlannerConfig `yaml:"planner"`
}

// CatalogConfig locates the node catalog and controls its cache.
type CatalogConfig struct {
	// URL of the graph server. Ignored when File is set.
	URL     string        `yaml:"url"`
	File    string        `yaml:"file,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
	TTL     time.Duration `yaml:"ttl"`
	// RedisAddr switches the cache from memory to redis when set.
	RedisAddr string `yaml:"redis_addr,omitempty"`
	CacheKey  string `yaml:"cache_key"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PlannerConfig selects the model used by the plan command.
type PlannerConfig struct {
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Catalog: CatalogConfig{
			URL:      DefaultCatalogURL,
			Timeout:  DefaultTimeout,
			TTL:      DefaultTTL,
			CacheKey: DefaultCacheKey,
		},
		Log:     LogConfig{Level: "info", Format: "text"},
		Planner: PlannerConfig{Model: DefaultModel, MaxTokens: DefaultMaxTokens},
	}
}

// Load reads path over the defaults and applies the environment. A missing
// file is not an error; an empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Save writes cfg as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Environment variable names.
const (
	EnvCatalogURL   = "BRIDGEZIP_CATALOG_URL"
	EnvCatalogFile  = "BRIDGEZIP_CATALOG_FILE"
	EnvCatalogTTL   = "BRIDGEZIP_CATALOG_TTL"
	EnvRedisAddr    = "BRIDGEZIP_REDIS_ADDR"
	EnvLogLevel     = "BRIDGEZIP_LOG_LEVEL"
	EnvLogFormat    = "BRIDGEZIP_LOG_FORMAT"
	EnvPlannerModel = "BRIDGEZIP_PLANNER_MODEL"
)

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str(EnvCatalogURL, &c.Catalog.URL)
	str(EnvCatalogFile, &c.Catalog.File)
	str(EnvRedisAddr, &c.Catalog.RedisAddr)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvLogFormat, &c.Log.Format)
	str(EnvPlannerModel, &c.Planner.Model)

	if v, ok := lookup(EnvCatalogTTL); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvCatalogTTL, err)
		}
		c.Catalog.TTL = d
	}
	return nil
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90").
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate rejects settings the commands cannot use.
func (c Config) Validate() error {
	var errs []error
	if c.Catalog.TTL < 0 {
		errs = append(errs, fmt.Errorf("catalog.ttl must not be negative"))
	}
	if c.Catalog.Timeout < 0 {
		errs = append(errs, fmt.Errorf("catalog.timeout must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: use debug, info, warn or error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: use text or json", c.Log.Format))
	}
	if c.Planner.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("planner.max_tokens must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
