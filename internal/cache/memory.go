package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

// MemoryOptions configures a Memory cache.
type MemoryOptions struct {
	// Shards is the number of independently locked maps (default 16)
	Shards int

	// JanitorInterval is how often expired entries are swept (default 1m, <0 disables)
	JanitorInterval time.Duration
}

// Memory is an in-process cache sharded by murmur3 key hash. Expired entries
// are dropped lazily on read and periodically by a janitor goroutine.
type Memory struct {
	shards  []*shard
	metrics Metrics
	now     func() time.Time

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type shard struct {
	mu    sync.RWMutex
	items map[string]memEntry
}

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemory creates an in-process cache and starts its janitor.
func NewMemory(opts MemoryOptions) *Memory {
	if opts.Shards <= 0 {
		opts.Shards = 16
	}
	if opts.JanitorInterval == 0 {
		opts.JanitorInterval = time.Minute
	}

	m := &Memory{
		shards: make([]*shard, opts.Shards),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i] = &shard{items: make(map[string]memEntry)}
	}

	if opts.JanitorInterval > 0 {
		m.wg.Add(1)
		go m.janitor(opts.JanitorInterval)
	}
	return m
}

func (m *Memory) shardFor(key string) *shard {
	return m.shards[murmur3.Sum32([]byte(key))%uint32(len(m.shards))]
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	sh := m.shardFor(key)
	now := m.now()

	sh.mu.RLock()
	e, ok := sh.items[key]
	sh.mu.RUnlock()

	if !ok {
		m.metrics.Misses.Add(1)
		return nil, false, nil
	}
	if e.expired(now) {
		sh.mu.Lock()
		if cur, ok := sh.items[key]; ok && cur.expired(now) {
			delete(sh.items, key)
			m.metrics.Evictions.Add(1)
		}
		sh.mu.Unlock()
		m.metrics.Misses.Add(1)
		return nil, false, nil
	}

	m.metrics.Hits.Add(1)
	return e.value, true, nil
}

// Set implements Cache. The value slice is copied.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	sh := m.shardFor(key)
	sh.mu.Lock()
	sh.items[key] = e
	sh.mu.Unlock()
	return nil
}

// Delete implements Cache.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		sh := m.shardFor(key)
		sh.mu.Lock()
		if _, ok := sh.items[key]; ok {
			delete(sh.items, key)
			m.metrics.Deletes.Add(1)
		}
		sh.mu.Unlock()
	}
	return nil
}

// DeletePrefix implements Cache.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) (int, error) {
	removed := 0
	for _, sh := range m.shards {
		sh.mu.Lock()
		for key := range sh.items {
			if strings.HasPrefix(key, prefix) {
				delete(sh.items, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	m.metrics.Deletes.Add(int64(removed))
	return removed, nil
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (m *Memory) Len() int {
	n := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// Stats implements Cache.
func (m *Memory) Stats() Stats {
	return m.metrics.snapshot("memory", int64(m.Len()))
}

// Close stops the janitor.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
	return nil
}

func (m *Memory) janitor(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep removes every expired entry.
func (m *Memory) sweep() {
	now := m.now()
	for _, sh := range m.shards {
		sh.mu.Lock()
		for key, e := range sh.items {
			if e.expired(now) {
				delete(sh.items, key)
				m.metrics.Evictions.Add(1)
			}
		}
		sh.mu.Unlock()
	}
}
