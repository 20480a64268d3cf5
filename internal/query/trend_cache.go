package query

import (
	"context"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/ghgledger/ghgledger/internal/cache"
)

// DefaultTrendTTL is how long a cached trend stays valid.
const DefaultTrendTTL = 600 * time.Second

const trendSegment = "trend:"

// TrendCache stores computed trends keyed by country code. Values are
// msgpack-encoded and snappy-compressed. Read and write failures are logged
// and reported as misses so the caller falls back to the store.
type TrendCache struct {
	backend cache.Cache
	prefix  string
	ttl     time.Duration
	logger  *zap.Logger
}

// NewTrendCache creates a trend cache over backend. namespace is prepended
// to every key (e.g. "ghgledger:").
func NewTrendCache(backend cache.Cache, namespace string, ttl time.Duration, logger *zap.Logger) *TrendCache {
	if ttl <= 0 {
		ttl = DefaultTrendTTL
	}
	return &TrendCache{
		backend: backend,
		prefix:  namespace + trendSegment,
		ttl:     ttl,
		logger:  logger,
	}
}

// Key returns the cache key for a country code.
func (c *TrendCache) Key(alpha3 string) string {
	return c.prefix + strings.TrimSpace(alpha3)
}

// Get returns the cached trend for alpha3, if any.
func (c *TrendCache) Get(ctx context.Context, alpha3 string) (*TrendResult, bool) {
	key := c.Key(alpha3)
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("trend cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	decoded, err := snappy.Decode(nil, raw)
	if err != nil {
		c.logger.Warn("trend cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	var res TrendResult
	if err := msgpack.Unmarshal(decoded, &res); err != nil {
		c.logger.Warn("trend cache entry undecodable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &res, true
}

// Set stores res for alpha3 with the configured TTL.
func (c *TrendCache) Set(ctx context.Context, alpha3 string, res *TrendResult) {
	key := c.Key(alpha3)
	encoded, err := msgpack.Marshal(res)
	if err != nil {
		c.logger.Warn("trend cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.backend.Set(ctx, key, snappy.Encode(nil, encoded), c.ttl); err != nil {
		c.logger.Warn("trend cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops the cached trends of the given countries.
func (c *TrendCache) Invalidate(ctx context.Context, countries ...string) error {
	if len(countries) == 0 {
		return nil
	}
	keys := make([]string, len(countries))
	for i, alpha3 := range countries {
		keys[i] = c.Key(alpha3)
	}
	return c.backend.Delete(ctx, keys...)
}

// InvalidateAll drops every cached trend.
func (c *TrendCache) InvalidateAll(ctx context.Context) (int, error) {
	return c.backend.DeletePrefix(ctx, c.prefix)
}

// Stats returns the backend counters.
func (c *TrendCache) Stats() cache.Stats {
	return c.backend.Stats()
}
