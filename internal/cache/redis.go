package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
)

// scanCount is the COUNT hint passed to SCAN during prefix deletes.
const scanCount = 200

// RedisOptions configures a Redis cache.
type RedisOptions struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string

	// Timeout bounds each command (default 2s)
	Timeout time.Duration
}

// Redis is a Cache backed by a Redis server.
type Redis struct {
	client  *goredis.Client
	timeout time.Duration
	metrics Metrics
}

// NewRedis connects lazily to the server described by opts.URL.
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.URL == "" {
		return nil, errors.New("redis cache requires a URL")
	}
	parsed, err := goredis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	parsed.ReadTimeout = opts.Timeout
	parsed.WriteTimeout = opts.Timeout

	return &Redis{client: goredis.NewClient(parsed), timeout: opts.Timeout}, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return ledgererr.NewCacheError("redis ping", err)
	}
	return nil
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		r.metrics.Misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ledgererr.NewCacheError("redis get", err)
	}
	r.metrics.Hits.Add(1)
	return val, true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return ledgererr.NewCacheError("redis set", err)
	}
	return nil
}

// Delete implements Cache.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return ledgererr.NewCacheError("redis del", err)
	}
	r.metrics.Deletes.Add(n)
	return nil
}

// DeletePrefix implements Cache by walking SCAN MATCH <prefix>* and deleting
// each returned batch.
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	pattern := escapeGlob(prefix) + "*"
	removed := 0

	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return removed, ledgererr.NewCacheError("redis scan", err)
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, ledgererr.NewCacheError("redis del", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	r.metrics.Deletes.Add(int64(removed))
	return removed, nil
}

// Stats implements Cache. Entries is not tracked for Redis.
func (r *Redis) Stats() Stats {
	return r.metrics.snapshot("redis", -1)
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// escapeGlob escapes Redis glob metacharacters.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
