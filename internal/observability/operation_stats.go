// Package observability tracks per-operation call counts, error counts and
// latency for the ledger's read and write paths.
package observability

import (
	"sort"
	"sync"
	"time"
)

// OperationStats aggregates statistics per named operation.
type OperationStats struct {
	mu     sync.RWMutex
	ops    map[string]*OpStats
	window time.Duration
	now    func() time.Time
}

// OpStats holds statistics for one operation.
type OpStats struct {
	Operation   string        `json:"operation"`
	Calls       int64         `json:"calls"`
	Errors      int64         `json:"errors"`
	TotalTime   time.Duration `json:"-"`
	MaxDuration time.Duration `json:"max_duration_ns"`
	AvgDuration time.Duration `json:"avg_duration_ns"`
	LastSeen    time.Time     `json:"last_seen"`

	// ErrorCodes counts failures by error code (e.g. "NOT_FOUND" → 3)
	ErrorCodes map[string]int64 `json:"error_codes,omitempty"`
}

// NewOperationStats creates a tracker. Entries idle for longer than window
// are dropped by Prune.
func NewOperationStats(window time.Duration) *OperationStats {
	return &OperationStats{
		ops:    make(map[string]*OpStats),
		window: window,
		now:    time.Now,
	}
}

// Record records one call of op. code is the error code of a failed call,
// or empty on success. Safe for concurrent use; a nil receiver is a no-op.
func (s *OperationStats) Record(op string, d time.Duration, code string) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.ops[op]
	if !ok {
		st = &OpStats{Operation: op, ErrorCodes: make(map[string]int64)}
		s.ops[op] = st
	}

	st.Calls++
	st.TotalTime += d
	if d > st.MaxDuration {
		st.MaxDuration = d
	}
	st.LastSeen = s.now()
	if code != "" {
		st.Errors++
		st.ErrorCodes[code]++
	}
}

// Snapshot returns copies of all operation stats sorted by call count, descending.
func (s *OperationStats) Snapshot() []OpStats {
	if s == nil {
		return []OpStats{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]OpStats, 0, len(s.ops))
	for _, st := range s.ops {
		cp := *st
		cp.ErrorCodes = make(map[string]int64, len(st.ErrorCodes))
		for code, n := range st.ErrorCodes {
			cp.ErrorCodes[code] = n
		}
		if cp.Calls > 0 {
			cp.AvgDuration = cp.TotalTime / time.Duration(cp.Calls)
		}
		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		return out[i].Operation < out[j].Operation
	})
	return out
}

// Prune removes operations not seen within the window.
func (s *OperationStats) Prune() {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := s.now().Add(-s.window)
	for op, st := range s.ops {
		if st.LastSeen.Before(threshold) {
			delete(s.ops, op)
		}
	}
}
