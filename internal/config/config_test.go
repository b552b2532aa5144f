package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, cfg.Validate())
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecorecipes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog:
  location: ./data.json
  allow_shadowing: true
server:
  addr: ":9090"
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./data.json", cfg.Catalog.Location)
	assert.True(t, cfg.Catalog.AllowShadowing)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 10*time.Minute, cfg.GetCacheTTL())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("catalog: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ECORECIPES_CATALOG", "https://example.com/data.json")
	t.Setenv("ECORECIPES_ADDR", ":7000")
	t.Setenv("ECORECIPES_LOG_LEVEL", "WARN")
	t.Setenv("ECORECIPES_LOG_FORMAT", "json")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/data.json", cfg.Catalog.Location)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "location", mutate: func(c *Config) { c.Catalog.Location = " " }, want: "catalog location"},
		{name: "checksum", mutate: func(c *Config) { c.Catalog.Checksum = "abc" }, want: "checksum"},
		{name: "max bytes", mutate: func(c *Config) { c.Catalog.MaxBytes = 0 }, want: "max_bytes"},
		{name: "addr", mutate: func(c *Config) { c.Server.Addr = "" }, want: "server.addr"},
		{name: "quantity", mutate: func(c *Config) { c.Server.MaxQuantity = -1 }, want: "max_quantity"},
		{name: "duration", mutate: func(c *Config) { c.Server.CacheTTL = "soon" }, want: "server.cache_ttl"},
		{name: "level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: "log level"},
		{name: "format", mutate: func(c *Config) { c.Logging.Format = "xml" }, want: "log format"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	cfg := DefaultConfig()
	cfg.Catalog.Checksum = strings.Repeat("aB", 32)
	assert.NoError(t, cfg.Validate())
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Catalog.FetchTimeout = "nope"
	cfg.Server.ShutdownTimeout = "-1s"
	cfg.Server.CacheTTL = "0s"
	assert.Equal(t, 20*time.Second, cfg.GetFetchTimeout())
	assert.Equal(t, 5*time.Second, cfg.GetShutdownTimeout())
	assert.Equal(t, time.Duration(0), cfg.GetCacheTTL())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ecorecipes.yaml")
	cfg := DefaultConfig()
	cfg.Catalog.Location = "catalog.yaml"
	cfg.Server.MaxQuantity = 500
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}
