package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. A missing file is not
// an error.
const DefaultPath = "ecorecipes.yaml"

// Config holds all ecorecipes configuration.
type Config struct {
	Catalog CatalogConfig `yaml:"catalog"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// CatalogConfig says where the catalog document comes from.
type CatalogConfig struct {
	// Location is a file path, an http(s) URL, or "embedded:".
	Location       string `yaml:"location"`
	Checksum       string `yaml:"checksum"`
	AllowShadowing bool   `yaml:"allow_shadowing"`
	FetchTimeout   string `yaml:"fetch_timeout"`
	MaxBytes       int64  `yaml:"max_bytes"`
}

type ServerConfig struct {
	Addr            string  `yaml:"addr"`
	ReadTimeout     string  `yaml:"read_timeout"`
	WriteTimeout    string  `yaml:"write_timeout"`
	ShutdownTimeout string  `yaml:"shutdown_timeout"`
	CacheTTL        string  `yaml:"cache_ttl"`
	MaxQuantity     float64 `yaml:"max_quantity"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

var (
	ValidLogLevels  = []string{"debug", "info", "warn", "error"}
	ValidLogFormats = []string{"json", "console"}
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			Location:     "embedded:",
			FetchTimeout: "20s",
			MaxBytes:     32 << 20,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     "10s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "5s",
			CacheTTL:        "10m",
			MaxQuantity:     1e6,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults and then applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ECORECIPES_CATALOG"); v != "" {
		c.Catalog.Location = v
	}
	if v := os.Getenv("ECORECIPES_CHECKSUM"); v != "" {
		c.Catalog.Checksum = v
	}
	if v := os.Getenv("ECORECIPES_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ECORECIPES_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("ECORECIPES_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
}

// Save writes the configuration as YAML, replacing path atomically.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "ecorecipes-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	cleanup = false
	return nil
}

// GetFetchTimeout returns the catalog fetch timeout as a duration.
func (c *Config) GetFetchTimeout() time.Duration {
	return parseDuration(c.Catalog.FetchTimeout, 20*time.Second)
}

func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 10*time.Second)
}

func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 30*time.Second)
}

func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 5*time.Second)
}

// GetCacheTTL returns how long cost results stay memoised. Zero disables the
// cache.
func (c *Config) GetCacheTTL() time.Duration {
	return parseDuration(c.Server.CacheTTL, 10*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Catalog.Location) == "" {
		return fmt.Errorf("catalog location not configured (set catalog.location or ECORECIPES_CATALOG)")
	}
	if sum := strings.TrimSpace(c.Catalog.Checksum); sum != "" && !isHexDigest(sum) {
		return fmt.Errorf("catalog checksum must be 64 hex characters, got %q", sum)
	}
	if c.Catalog.MaxBytes <= 0 {
		return fmt.Errorf("catalog.max_bytes must be positive")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.MaxQuantity <= 0 {
		return fmt.Errorf("server.max_quantity must be positive")
	}
	for name, v := range map[string]string{
		"catalog.fetch_timeout":   c.Catalog.FetchTimeout,
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"server.cache_ttl":        c.Server.CacheTTL,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
	}
	if !slices.Contains(ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	if !slices.Contains(ValidLogFormats, c.Logging.Format) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}
	return nil
}

func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range strings.ToLower(s) {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
