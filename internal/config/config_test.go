package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Cache.TrendTTL != 600*time.Second {
		t.Errorf("default trend ttl = %s, want 10m", cfg.Cache.TrendTTL)
	}
	if cfg.Store.Path != filepath.Join(cfg.DataDir, "ledger.db") {
		t.Errorf("store path not resolved: %q", cfg.Store.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"redis without url", func(c *Config) { c.Cache.Type = CacheRedis }, false},
		{"redis with url", func(c *Config) { c.Cache.Type = CacheRedis; c.Cache.RedisURL = "redis://localhost:6379/0" }, true},
		{"unknown cache", func(c *Config) { c.Cache.Type = "memcached" }, false},
		{"zero ttl", func(c *Config) { c.Cache.TrendTTL = 0 }, false},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = StorageS3 }, false},
		{"archive without storage", func(c *Config) { c.Ingest.ArchiveUploads = true }, false},
		{"archive with local", func(c *Config) { c.Ingest.ArchiveUploads = true; c.Storage.Type = StorageLocal }, true},
		{"zero workers", func(c *Config) { c.Ingest.Workers = 0 }, false},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFileExpandsEnv(t *testing.T) {
	t.Setenv("LEDGER_TEST_REDIS", "redis://cache:6379/2")

	path := filepath.Join(t.TempDir(), "ghgledger.yaml")
	content := `
data_dir: /var/lib/ghgledger
cache:
  type: redis
  redis_url: ${LEDGER_TEST_REDIS}
  trend_ttl: 5m
http:
  addr: ${LEDGER_TEST_ADDR:-:9999}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Cache.RedisURL != "redis://cache:6379/2" {
		t.Errorf("redis url = %q", cfg.Cache.RedisURL)
	}
	if cfg.HTTP.Addr != ":9999" {
		t.Errorf("http addr = %q, want default from expansion", cfg.HTTP.Addr)
	}
	if cfg.Cache.TrendTTL != 5*time.Minute {
		t.Errorf("trend ttl = %s", cfg.Cache.TrendTTL)
	}
	// Untouched fields keep their defaults.
	if cfg.Ingest.Workers != 8 {
		t.Errorf("workers = %d, want default 8", cfg.Ingest.Workers)
	}
}

func TestLoadFromFileUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ghgledger.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GHGLEDGER_CACHE_TYPE", "redis")
	t.Setenv("GHGLEDGER_REDIS_URL", "redis://localhost:6379")
	t.Setenv("GHGLEDGER_INGEST_WORKERS", "3")
	t.Setenv("GHGLEDGER_CACHE_TREND_TTL", "90s")
	t.Setenv("GHGLEDGER_GRPC_ENABLED", "1")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Cache.Type != CacheRedis || cfg.Cache.RedisURL != "redis://localhost:6379" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Ingest.Workers != 3 {
		t.Errorf("workers = %d", cfg.Ingest.Workers)
	}
	if cfg.Cache.TrendTTL != 90*time.Second {
		t.Errorf("ttl = %s", cfg.Cache.TrendTTL)
	}
	if !cfg.GRPC.Enabled {
		t.Error("grpc should be enabled")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("LEDGER_SET", "value")
	t.Setenv("LEDGER_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"${LEDGER_SET}", "value"},
		{"${LEDGER_UNSET_XYZ}", ""},
		{"${LEDGER_UNSET_XYZ:-fallback}", "fallback"},
		{"${LEDGER_EMPTY:-fallback}", "fallback"},
		{"a-${LEDGER_SET}-b", "a-value-b"},
		{"$LEDGER_SET", "$LEDGER_SET"},
	}
	for _, tt := range tests {
		if got := ExpandEnv(tt.in); got != tt.want {
			t.Errorf("ExpandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
