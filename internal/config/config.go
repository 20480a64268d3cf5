// Package config provides unified configuration for the ledger services.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Upload archive backends.
const (
	StorageNone  = "none"
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds the unified configuration for the ledger.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	HTTP    HTTPConfig    `json:"http" yaml:"http"`
	GRPC    GRPCConfig    `json:"grpc" yaml:"grpc"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Cache   CacheConfig   `json:"cache" yaml:"cache"`
	Ingest  IngestConfig  `json:"ingest" yaml:"ingest"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr"`

	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// MaxUploadBytes caps the size of a CSV upload body
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes"`

	// ShutdownTimeout bounds the drain of in-flight requests
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	Addr    string `json:"addr" yaml:"addr"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// StoreConfig holds record store configuration.
type StoreConfig struct {
	// Path is the SQLite database file; defaults to <data_dir>/ledger.db
	Path string `json:"path" yaml:"path"`

	// ReadPoolSize is the number of read-only connections
	ReadPoolSize int `json:"read_pool_size" yaml:"read_pool_size"`
}

// CacheConfig holds trend cache configuration.
type CacheConfig struct {
	// Type is the cache backend: memory or redis
	Type string `json:"type" yaml:"type"`

	// RedisURL is a redis:// URL (redis type only)
	RedisURL string `json:"redis_url" yaml:"redis_url"`

	// KeyPrefix namespaces every key written by this deployment
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// TrendTTL is how long a cached trend stays valid
	TrendTTL time.Duration `json:"trend_ttl" yaml:"trend_ttl"`

	// Shards is the number of in-memory shards (memory type only)
	Shards int `json:"shards" yaml:"shards"`

	// JanitorInterval is how often expired in-memory entries are swept
	JanitorInterval time.Duration `json:"janitor_interval" yaml:"janitor_interval"`

	// PrefixInvalidationThreshold switches batch invalidation to a prefix
	// delete once a batch touches more countries than this
	PrefixInvalidationThreshold int `json:"prefix_invalidation_threshold" yaml:"prefix_invalidation_threshold"`
}

// IngestConfig holds ingestion configuration.
type IngestConfig struct {
	// Workers bounds concurrent row processing within one CSV batch
	Workers int `json:"workers" yaml:"workers"`

	// TaskRetention is how long finished async tasks stay pollable
	TaskRetention time.Duration `json:"task_retention" yaml:"task_retention"`

	// ArchiveUploads stores each uploaded CSV in the configured storage
	ArchiveUploads bool `json:"archive_uploads" yaml:"archive_uploads"`
}

// StorageConfig holds upload archive configuration.
type StorageConfig struct {
	// Type is the storage type: none, local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Prefix is prepended to every object key.
	Prefix string `json:"prefix" yaml:"prefix"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Format is json or console
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/ghgledger",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			MaxUploadBytes:  32 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: false,
		},
		Store: StoreConfig{
			ReadPoolSize: 8,
		},
		Cache: CacheConfig{
			Type:                        CacheMemory,
			KeyPrefix:                   "ghgledger:",
			TrendTTL:                    600 * time.Second,
			Shards:                      16,
			JanitorInterval:             time.Minute,
			PrefixInvalidationThreshold: 64,
		},
		Ingest: IngestConfig{
			Workers:       8,
			TaskRetention: time.Hour,
		},
		Storage: StorageConfig{
			Type: StorageNone,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/ghgledger"
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "ledger.db")
	}
	if c.Storage.Type == StorageLocal && c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "archive")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.Cache.Type {
	case CacheMemory:
		if c.Cache.Shards <= 0 {
			return fmt.Errorf("cache.shards must be positive, got %d", c.Cache.Shards)
		}
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required when cache type is redis")
		}
	default:
		return fmt.Errorf("invalid cache type: %s (must be memory or redis)", c.Cache.Type)
	}
	if c.Cache.TrendTTL <= 0 {
		return fmt.Errorf("cache.trend_ttl must be positive, got %s", c.Cache.TrendTTL)
	}

	switch c.Storage.Type {
	case StorageNone, StorageLocal:
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required when storage type is s3")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be none, local or s3)", c.Storage.Type)
	}
	if c.Ingest.ArchiveUploads && c.Storage.Type == StorageNone {
		return fmt.Errorf("ingest.archive_uploads requires a storage type")
	}

	if c.Ingest.Workers < 1 || c.Ingest.Workers > 256 {
		return fmt.Errorf("ingest.workers must be between 1 and 256, got %d", c.Ingest.Workers)
	}
	if c.Store.ReadPoolSize < 1 {
		return fmt.Errorf("store.read_pool_size must be positive, got %d", c.Store.ReadPoolSize)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
// ${VAR} and ${VAR:-default} references are expanded before parsing.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	expanded := []byte(ExpandEnv(string(data)))

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the GHGLEDGER_ prefix.
func LoadFromEnv(cfg *Config) {
	setString(&cfg.DataDir, "GHGLEDGER_DATA_DIR")

	setString(&cfg.HTTP.Addr, "GHGLEDGER_HTTP_ADDR")
	setInt64(&cfg.HTTP.MaxUploadBytes, "GHGLEDGER_HTTP_MAX_UPLOAD_BYTES")

	setString(&cfg.GRPC.Addr, "GHGLEDGER_GRPC_ADDR")
	if v := os.Getenv("GHGLEDGER_GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}

	setString(&cfg.Store.Path, "GHGLEDGER_STORE_PATH")

	setString(&cfg.Cache.Type, "GHGLEDGER_CACHE_TYPE")
	setString(&cfg.Cache.RedisURL, "GHGLEDGER_REDIS_URL")
	setString(&cfg.Cache.KeyPrefix, "GHGLEDGER_CACHE_KEY_PREFIX")
	setDuration(&cfg.Cache.TrendTTL, "GHGLEDGER_CACHE_TREND_TTL")

	setInt(&cfg.Ingest.Workers, "GHGLEDGER_INGEST_WORKERS")
	if v := os.Getenv("GHGLEDGER_INGEST_ARCHIVE_UPLOADS"); v != "" {
		cfg.Ingest.ArchiveUploads = v == "true" || v == "1"
	}

	setString(&cfg.Storage.Type, "GHGLEDGER_STORAGE_TYPE")
	setString(&cfg.Storage.Path, "GHGLEDGER_STORAGE_PATH")
	setString(&cfg.Storage.S3.Bucket, "GHGLEDGER_S3_BUCKET")
	setString(&cfg.Storage.S3.Region, "GHGLEDGER_S3_REGION")
	setString(&cfg.Storage.S3.Endpoint, "GHGLEDGER_S3_ENDPOINT")
	setString(&cfg.Storage.S3.Prefix, "GHGLEDGER_S3_PREFIX")

	setString(&cfg.Log.Level, "GHGLEDGER_LOG_LEVEL")
	setString(&cfg.Log.Format, "GHGLEDGER_LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.Store.Path),
	}
	if c.Storage.Type == StorageLocal {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
