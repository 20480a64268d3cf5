// Package query answers the analytical questions over live emission
// records: yearly trend per country, sector breakdown, gas-type listing and
// the country×sector summary, plus paginated record listings.
package query

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
	"github.com/ghgledger/ghgledger/internal/gas"
	"github.com/ghgledger/ghgledger/internal/observability"
	"github.com/ghgledger/ghgledger/internal/store"
	"github.com/ghgledger/ghgledger/pkg/types"
)

// Store is the read surface the engine needs.
type Store interface {
	CountryByAlpha3(ctx context.Context, alpha3 string) (*types.Country, error)
	TrendByCountry(ctx context.Context, countryID string) ([]types.TrendPoint, error)
	SectorBreakdown(ctx context.Context, countryID string, year *int) ([]types.SectorGroup, error)
	CountLive(ctx context.Context, year *int) (int64, error)
	GasRecords(ctx context.Context, gasType string, year *int, skip, limit int) ([]types.GasRecord, error)
	CountSummaryGroups(ctx context.Context, year int) (int64, error)
	Summary(ctx context.Context, year, skip, limit int) ([]types.SummaryRow, error)
	List(ctx context.Context, f store.ListFilter, skip, limit int) ([]types.EmissionView, int64, error)
	Get(ctx context.Context, id string) (*types.EmissionRecord, error)
}

// TrendResult is the yearly trend of one country.
type TrendResult struct {
	TS      time.Time        `json:"ts" msgpack:"ts"`
	Country types.CountryRef `json:"country" msgpack:"country"`

	// TotalRecords is the number of distinct years in Data
	TotalRecords int                `json:"total_records" msgpack:"total_records"`
	Data         []types.TrendPoint `json:"data" msgpack:"data"`
}

// SectorFilter narrows the sector breakdown. Zero values mean no filter.
type SectorFilter struct {
	Country string
	Year    *int
}

// SectorBreakdown is the result of Engine.SectorBreakdown.
type SectorBreakdown struct {
	TS      time.Time           `json:"ts"`
	Country *types.CountryRef   `json:"country,omitempty"`
	Year    *int                `json:"year,omitempty"`
	Data    []types.SectorGroup `json:"data"`
}

// GasFilter selects records by gas type.
type GasFilter struct {
	Gas  string
	Year *int
	Page PageRequest
}

// GasPage is one page of Engine.FilterByGas.
type GasPage struct {
	TS      time.Time `json:"ts"`
	GasType string    `json:"gas_type"`
	Year    *int      `json:"year,omitempty"`
	PageInfo
	Data []types.GasRecord `json:"data"`
}

// SummaryRequest selects one page of the yearly summary. Year is required.
type SummaryRequest struct {
	Year *int
	Page PageRequest
}

// SummaryPage is one page of Engine.Summary.
type SummaryPage struct {
	TS   time.Time `json:"ts"`
	Year int       `json:"year"`
	PageInfo
	Data []types.SummaryRow `json:"data"`
}

// ListFilter selects records for Engine.List.
type ListFilter struct {
	Country string
	Year    *int
	Page    PageRequest
}

// ListPage is one page of Engine.List.
type ListPage struct {
	TS time.Time `json:"ts"`
	PageInfo
	Data []types.EmissionView `json:"data"`
}

// Engine runs the aggregation queries.
type Engine struct {
	store  Store
	gases  *gas.Table
	trends *TrendCache
	stats  *observability.OperationStats
	logger *zap.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTrendCache enables the read-through trend cache.
func WithTrendCache(c *TrendCache) Option {
	return func(e *Engine) { e.trends = c }
}

// WithStats records per-query statistics.
func WithStats(s *observability.OperationStats) Option {
	return func(e *Engine) { e.stats = s }
}

// NewEngine creates an engine.
func NewEngine(st Store, gases *gas.Table, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		gases:  gases,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) observe(op string, start time.Time, err error) {
	e.stats.Record(op, time.Since(start), ledgererr.GetCode(err))
}

// Trend returns the yearly trend for a country, served from the trend cache
// when possible. A miss computes the trend and populates the cache.
//
// The fill is not atomic with the computation: a miss that reads the store
// before a concurrent commit can store its result after that commit's
// invalidation, and the stale entry then lives until its TTL expires.
func (e *Engine) Trend(ctx context.Context, alpha3 string) (res *TrendResult, err error) {
	defer func(start time.Time) { e.observe("trend", start, err) }(time.Now())

	alpha3 = strings.TrimSpace(alpha3)

	if e.trends != nil {
		if cached, ok := e.trends.Get(ctx, alpha3); ok {
			return cached, nil
		}
	}

	res, err = e.ComputeTrend(ctx, alpha3)
	if err != nil {
		return nil, err
	}
	if e.trends != nil {
		e.trends.Set(ctx, alpha3, res)
	}
	return res, nil
}

// ComputeTrend computes the trend from the store, bypassing the cache.
func (e *Engine) ComputeTrend(ctx context.Context, alpha3 string) (*TrendResult, error) {
	country, err := e.store.CountryByAlpha3(ctx, strings.TrimSpace(alpha3))
	if err != nil {
		return nil, err
	}
	points, err := e.store.TrendByCountry(ctx, country.ID)
	if err != nil {
		return nil, err
	}
	return &TrendResult{
		TS:           e.now().UTC(),
		Country:      country.Ref(),
		TotalRecords: len(points),
		Data:         points,
	}, nil
}

// SectorBreakdown groups live records by sector, optionally restricted to a
// country and/or year. The joined country is reported only when a country
// filter was given.
func (e *Engine) SectorBreakdown(ctx context.Context, f SectorFilter) (res *SectorBreakdown, err error) {
	defer func(start time.Time) { e.observe("sector_breakdown", start, err) }(time.Now())

	var country *types.Country
	if f.Country != "" {
		if country, err = e.store.CountryByAlpha3(ctx, f.Country); err != nil {
			return nil, err
		}
	}

	countryID := ""
	if country != nil {
		countryID = country.ID
	}
	groups, err := e.store.SectorBreakdown(ctx, countryID, f.Year)
	if err != nil {
		return nil, err
	}

	res = &SectorBreakdown{TS: e.now().UTC(), Year: f.Year, Data: groups}
	if country != nil {
		ref := country.Ref()
		res.Country = &ref
		for i := range res.Data {
			res.Data[i].Country = &ref
		}
	}
	return res, nil
}

// FilterByGas lists live records whose sector has the given gas type.
// Total counts records matching the year filter alone, before the sector
// join, so it can exceed the number of records of that gas.
func (e *Engine) FilterByGas(ctx context.Context, f GasFilter) (res *GasPage, err error) {
	defer func(start time.Time) { e.observe("filter_by_gas", start, err) }(time.Now())

	gasType, err := e.gases.Canonical(f.Gas)
	if err != nil {
		return nil, err
	}
	if err := f.Page.Validate(); err != nil {
		return nil, err
	}
	page := f.Page.withDefaults()

	total, err := e.store.CountLive(ctx, f.Year)
	if err != nil {
		return nil, err
	}
	records, err := e.store.GasRecords(ctx, gasType, f.Year, page.Skip(), page.Limit)
	if err != nil {
		return nil, err
	}

	return &GasPage{
		TS:       e.now().UTC(),
		GasType:  gasType,
		Year:     f.Year,
		PageInfo: NewPageInfo(total, page),
		Data:     records,
	}, nil
}

// Summary sums one year's live amounts per (country, sector). Total is the
// number of groups before pagination.
func (e *Engine) Summary(ctx context.Context, req SummaryRequest) (res *SummaryPage, err error) {
	defer func(start time.Time) { e.observe("summary", start, err) }(time.Now())

	if req.Year == nil {
		return nil, ledgererr.InvalidArgument("year is required")
	}
	if err := req.Page.Validate(); err != nil {
		return nil, err
	}
	page := req.Page.withDefaults()
	year := *req.Year

	total, err := e.store.CountSummaryGroups(ctx, year)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.Summary(ctx, year, page.Skip(), page.Limit)
	if err != nil {
		return nil, err
	}

	return &SummaryPage{
		TS:       e.now().UTC(),
		Year:     year,
		PageInfo: NewPageInfo(total, page),
		Data:     rows,
	}, nil
}

// List returns a page of live records, optionally filtered by country and year.
func (e *Engine) List(ctx context.Context, f ListFilter) (res *ListPage, err error) {
	defer func(start time.Time) { e.observe("list", start, err) }(time.Now())

	if err := f.Page.Validate(); err != nil {
		return nil, err
	}
	page := f.Page.withDefaults()

	var sf store.ListFilter
	sf.Year = f.Year
	if f.Country != "" {
		country, err := e.store.CountryByAlpha3(ctx, f.Country)
		if err != nil {
			return nil, err
		}
		sf.CountryID = country.ID
	}

	views, total, err := e.store.List(ctx, sf, page.Skip(), page.Limit)
	if err != nil {
		return nil, err
	}
	return &ListPage{
		TS:       e.now().UTC(),
		PageInfo: NewPageInfo(total, page),
		Data:     views,
	}, nil
}

// Get returns one live record.
func (e *Engine) Get(ctx context.Context, id string) (rec *types.EmissionRecord, err error) {
	defer func(start time.Time) { e.observe("get", start, err) }(time.Now())
	return e.store.Get(ctx, id)
}
