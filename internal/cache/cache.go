// Package cache provides the key/value backends behind the trend cache: an
// in-process sharded map and Redis. Values are opaque bytes; encoding is the
// caller's concern.
package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// Cache is a TTL key/value store with prefix invalidation.
type Cache interface {
	// Get returns the value for key. A missing or expired key is a miss, not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A non-positive ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix removes every key starting with prefix and returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Stats returns a snapshot of the backend counters.
	Stats() Stats

	Close() error
}

// Metrics holds cache counters for observability.
type Metrics struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Evictions atomic.Int64
	Deletes   atomic.Int64
}

// Stats is a point-in-time copy of Metrics.
type Stats struct {
	Backend   string  `json:"backend"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Deletes   int64   `json:"deletes"`
	Entries   int64   `json:"entries"`
	HitRate   float64 `json:"hit_rate"`
}

func (m *Metrics) snapshot(backend string, entries int64) Stats {
	s := Stats{
		Backend:   backend,
		Hits:      m.Hits.Load(),
		Misses:    m.Misses.Load(),
		Evictions: m.Evictions.Load(),
		Deletes:   m.Deletes.Load(),
		Entries:   entries,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
