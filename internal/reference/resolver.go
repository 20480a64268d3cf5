// Package reference resolves natural codes (country alpha-3, sector series
// code) to live reference entities and seeds the reference tables.
package reference

import (
	"context"
	"strings"
	"sync"

	"github.com/ghgledger/ghgledger/pkg/types"
)

// Lookup is the store surface the resolver needs. Both methods return a
// NOT_FOUND error for missing or soft-deleted entities.
type Lookup interface {
	CountryByAlpha3(ctx context.Context, alpha3 string) (*types.Country, error)
	SectorBySeriesCode(ctx context.Context, code string) (*types.Sector, error)
}

// Resolver maps natural codes to reference entities.
type Resolver struct {
	lookup Lookup
}

// NewResolver creates a resolver over lookup.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Country resolves an alpha-3 code. Surrounding whitespace is ignored.
func (r *Resolver) Country(ctx context.Context, alpha3 string) (*types.Country, error) {
	return r.lookup.CountryByAlpha3(ctx, strings.TrimSpace(alpha3))
}

// Sector resolves a series code. Surrounding whitespace is ignored.
func (r *Resolver) Sector(ctx context.Context, seriesCode string) (*types.Sector, error) {
	return r.lookup.SectorBySeriesCode(ctx, strings.TrimSpace(seriesCode))
}

// Memo caches resolutions for the lifetime of one batch so that concurrent
// rows sharing a code hit the store once. Failures are memoized too.
type Memo struct {
	resolver *Resolver

	mu        sync.Mutex
	countries map[string]*memoEntry[types.Country]
	sectors   map[string]*memoEntry[types.Sector]
}

type memoEntry[T any] struct {
	once  sync.Once
	value *T
	err   error
}

// NewMemo wraps resolver with a per-batch memo.
func NewMemo(resolver *Resolver) *Memo {
	return &Memo{
		resolver:  resolver,
		countries: make(map[string]*memoEntry[types.Country]),
		sectors:   make(map[string]*memoEntry[types.Sector]),
	}
}

// Country resolves alpha3 once per memo.
func (m *Memo) Country(ctx context.Context, alpha3 string) (*types.Country, error) {
	e := entry(&m.mu, m.countries, strings.TrimSpace(alpha3))
	e.once.Do(func() {
		e.value, e.err = m.resolver.Country(ctx, alpha3)
	})
	return e.value, e.err
}

// Sector resolves seriesCode once per memo.
func (m *Memo) Sector(ctx context.Context, seriesCode string) (*types.Sector, error) {
	e := entry(&m.mu, m.sectors, strings.TrimSpace(seriesCode))
	e.once.Do(func() {
		e.value, e.err = m.resolver.Sector(ctx, seriesCode)
	})
	return e.value, e.err
}

func entry[T any](mu *sync.Mutex, m map[string]*memoEntry[T], key string) *memoEntry[T] {
	mu.Lock()
	defer mu.Unlock()
	e, ok := m[key]
	if !ok {
		e = &memoEntry[T]{}
		m[key] = e
	}
	return e
}
