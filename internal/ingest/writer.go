// Package ingest owns every write path over emission records: single and
// bulk creation, CSV ingestion, partial updates, soft delete and restore.
// Each successful write invalidates the trend cache of the affected
// countries.
package ingest

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
	"github.com/ghgledger/ghgledger/internal/observability"
	"github.com/ghgledger/ghgledger/internal/reference"
	"github.com/ghgledger/ghgledger/pkg/types"
)

// DefaultPrefixThreshold is the distinct-country count above which a commit
// drops every cached trend instead of one key per country.
const DefaultPrefixThreshold = 64

// Store is the record store surface the writer needs.
type Store interface {
	reference.Lookup
	CountryByID(ctx context.Context, id string) (*types.Country, error)
	Exists(ctx context.Context, key types.EmissionKey) (bool, error)
	ExistingKeys(ctx context.Context, keys []types.EmissionKey) (map[types.EmissionKey]bool, error)
	Insert(ctx context.Context, c types.Candidate) (*types.EmissionRecord, error)
	InsertBatch(ctx context.Context, candidates []types.Candidate) ([]*types.EmissionRecord, error)
	Update(ctx context.Context, id string, apply func(*types.EmissionRecord) error) (before, after *types.EmissionRecord, err error)
	SoftDelete(ctx context.Context, id string) (*types.EmissionRecord, error)
	Restore(ctx context.Context, id string) (*types.EmissionRecord, error)
}

// Invalidator drops cached trends. query.TrendCache implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, countries ...string) error
	InvalidateAll(ctx context.Context) (int, error)
}

// CommitResult describes a committed batch.
type CommitResult struct {
	// Candidates is the number of candidates offered to the commit
	Candidates int `json:"candidates"`

	// BatchDuplicates were dropped because an earlier candidate had the same key
	BatchDuplicates int `json:"batch_duplicates"`

	// ExistingDuplicates were dropped because a live record holds the key
	ExistingDuplicates int `json:"existing_duplicates"`

	Inserted  int      `json:"inserted"`
	Countries []string `json:"countries"`

	Records []*types.EmissionRecord `json:"-"`
}

// Writer applies writes to the store and keeps the trend cache fresh.
type Writer struct {
	store           Store
	resolver        *reference.Resolver
	invalidator     Invalidator
	prefixThreshold int
	stats           *observability.OperationStats
	logger          *zap.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithInvalidator sets the trend cache invalidator.
func WithInvalidator(inv Invalidator) WriterOption {
	return func(w *Writer) { w.invalidator = inv }
}

// WithPrefixThreshold overrides DefaultPrefixThreshold. Zero or less
// disables prefix invalidation.
func WithPrefixThreshold(n int) WriterOption {
	return func(w *Writer) { w.prefixThreshold = n }
}

// WithWriterStats records per-operation statistics.
func WithWriterStats(s *observability.OperationStats) WriterOption {
	return func(w *Writer) { w.stats = s }
}

// NewWriter creates a writer over st.
func NewWriter(st Store, logger *zap.Logger, opts ...WriterOption) *Writer {
	w := &Writer{
		store:           st,
		resolver:        reference.NewResolver(st),
		prefixThreshold: DefaultPrefixThreshold,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) observe(op string, start time.Time, err error) {
	w.stats.Record(op, time.Since(start), ledgererr.GetCode(err))
}

// Create inserts one record. It fails with CONFLICT when a live record
// already holds the key, and with NOT_FOUND when a reference is missing.
func (w *Writer) Create(ctx context.Context, in types.NewEmission) (rec *types.EmissionRecord, err error) {
	defer func(start time.Time) { w.observe("create", start, err) }(time.Now())

	if err := validateValues(in.Year, in.Amount); err != nil {
		return nil, err
	}
	cand, err := w.resolve(ctx, w.resolver, in)
	if err != nil {
		return nil, err
	}

	exists, err := w.store.Exists(ctx, cand.Key())
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ledgererr.Conflict("emission record already exists", cand.Key().String())
	}

	rec, err = w.store.Insert(ctx, cand)
	if err != nil {
		return nil, err
	}
	w.invalidate(ctx, []string{cand.Alpha3})
	return rec, nil
}

// CreateMany resolves and inserts a list of records with the same
// dedup-then-insert contract as CSV ingestion. Items with missing references
// or invalid values are skipped.
func (w *Writer) CreateMany(ctx context.Context, items []types.NewEmission) (res *CommitResult, err error) {
	defer func(start time.Time) { w.observe("create_many", start, err) }(time.Now())

	memo := reference.NewMemo(w.resolver)
	candidates := make([]types.Candidate, 0, len(items))
	for i, in := range items {
		if err := validateValues(in.Year, in.Amount); err != nil {
			w.logger.Warn("skipping bulk item", zap.Int("index", i), zap.Error(err))
			continue
		}
		cand, err := w.resolve(ctx, memo, in)
		if errors.Is(err, ledgererr.ErrNotFound) {
			w.logger.Warn("skipping bulk item", zap.Int("index", i), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, cand)
	}
	return w.commit(ctx, candidates)
}

// commit deduplicates candidates within the batch and against live records,
// then inserts the remainder in one transaction.
func (w *Writer) commit(ctx context.Context, candidates []types.Candidate) (*CommitResult, error) {
	if len(candidates) == 0 {
		return nil, ledgererr.NoValidData("no valid emission records to insert")
	}
	res := &CommitResult{Candidates: len(candidates)}

	unique := Dedupe(candidates)
	res.BatchDuplicates = len(candidates) - len(unique)

	keys := make([]types.EmissionKey, len(unique))
	for i, c := range unique {
		keys[i] = c.Key()
	}
	existing, err := w.store.ExistingKeys(ctx, keys)
	if err != nil {
		return nil, err
	}

	fresh := unique[:0:0]
	for _, c := range unique {
		if !existing[c.Key()] {
			fresh = append(fresh, c)
		}
	}
	res.ExistingDuplicates = len(unique) - len(fresh)
	if len(fresh) == 0 {
		return nil, ledgererr.AllDuplicates("all emission records already exist")
	}

	records, err := w.store.InsertBatch(ctx, fresh)
	if err != nil {
		return nil, err
	}
	res.Records = records
	res.Inserted = len(records)
	res.Countries = distinctCountries(fresh)

	w.invalidate(ctx, res.Countries)
	w.logger.Info("emission batch committed",
		zap.Int("inserted", res.Inserted),
		zap.Int("batch_duplicates", res.BatchDuplicates),
		zap.Int("existing_duplicates", res.ExistingDuplicates),
		zap.Int("countries", len(res.Countries)))
	return res, nil
}

// Update applies a partial update. Changing the key to one held by another
// live record fails with CONFLICT.
func (w *Writer) Update(ctx context.Context, id string, patch types.EmissionPatch) (rec *types.EmissionRecord, err error) {
	defer func(start time.Time) { w.observe("update", start, err) }(time.Now())

	if patch.Empty() {
		return nil, ledgererr.InvalidArgument("no fields to update")
	}
	if patch.Year != nil && !types.ValidYear(*patch.Year) {
		return nil, ledgererr.InvalidArgument("year %d outside %d-%d", *patch.Year, types.MinYear, types.MaxYear)
	}
	if patch.Amount != nil && !finite(*patch.Amount) {
		return nil, ledgererr.InvalidArgument("amount must be a finite number")
	}

	var country *types.Country
	if patch.CountryAlpha3 != nil {
		if country, err = w.resolver.Country(ctx, *patch.CountryAlpha3); err != nil {
			return nil, err
		}
	}
	var sector *types.Sector
	if patch.SectorSeriesCode != nil {
		if sector, err = w.resolver.Sector(ctx, *patch.SectorSeriesCode); err != nil {
			return nil, err
		}
	}

	before, after, err := w.store.Update(ctx, id, func(r *types.EmissionRecord) error {
		if country != nil {
			r.CountryID = country.ID
		}
		if sector != nil {
			r.SectorID = sector.ID
		}
		if patch.Year != nil {
			r.Year = *patch.Year
		}
		if patch.Amount != nil {
			r.Amount = *patch.Amount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	affected := []string{w.countryCode(ctx, before.CountryID)}
	if after.CountryID != before.CountryID {
		affected = append(affected, country.Alpha3)
	}
	w.invalidate(ctx, affected)
	return after, nil
}

// SoftDelete hides a live record from every query and frees its key.
func (w *Writer) SoftDelete(ctx context.Context, id string) (rec *types.EmissionRecord, err error) {
	defer func(start time.Time) { w.observe("delete", start, err) }(time.Now())

	if rec, err = w.store.SoftDelete(ctx, id); err != nil {
		return nil, err
	}
	w.invalidate(ctx, []string{w.countryCode(ctx, rec.CountryID)})
	return rec, nil
}

// Restore un-deletes a soft-deleted record.
func (w *Writer) Restore(ctx context.Context, id string) (rec *types.EmissionRecord, err error) {
	defer func(start time.Time) { w.observe("restore", start, err) }(time.Now())

	if rec, err = w.store.Restore(ctx, id); err != nil {
		return nil, err
	}
	w.invalidate(ctx, []string{w.countryCode(ctx, rec.CountryID)})
	return rec, nil
}

type codeResolver interface {
	Country(ctx context.Context, alpha3 string) (*types.Country, error)
	Sector(ctx context.Context, seriesCode string) (*types.Sector, error)
}

func (w *Writer) resolve(ctx context.Context, r codeResolver, in types.NewEmission) (types.Candidate, error) {
	country, err := r.Country(ctx, in.CountryAlpha3)
	if err != nil {
		return types.Candidate{}, err
	}
	sector, err := r.Sector(ctx, in.SectorSeriesCode)
	if err != nil {
		return types.Candidate{}, err
	}
	return types.Candidate{
		CountryID: country.ID,
		SectorID:  sector.ID,
		Year:      in.Year,
		Amount:    in.Amount,
		Alpha3:    country.Alpha3,
	}, nil
}

// countryCode returns the alpha-3 code of a country id, soft-deleted
// countries included. An empty string means the lookup failed.
func (w *Writer) countryCode(ctx context.Context, countryID string) string {
	c, err := w.store.CountryByID(ctx, countryID)
	if err != nil {
		w.logger.Warn("country lookup for cache invalidation failed",
			zap.String("country_id", countryID), zap.Error(err))
		return ""
	}
	return c.Alpha3
}

// invalidate drops the cached trends of countries. An empty code or a
// country set above the threshold drops every cached trend. Failures are
// logged; the write has already been committed.
func (w *Writer) invalidate(ctx context.Context, countries []string) {
	if w.invalidator == nil || len(countries) == 0 {
		return
	}

	all := w.prefixThreshold > 0 && len(countries) > w.prefixThreshold
	for _, c := range countries {
		if c == "" {
			all = true
		}
	}

	if all {
		n, err := w.invalidator.InvalidateAll(ctx)
		if err != nil {
			w.logger.Warn("trend cache prefix invalidation failed", zap.Error(err))
			return
		}
		w.logger.Debug("trend cache cleared", zap.Int("keys", n))
		return
	}
	if err := w.invalidator.Invalidate(ctx, countries...); err != nil {
		w.logger.Warn("trend cache invalidation failed", zap.Strings("countries", countries), zap.Error(err))
	}
}

// Dedupe drops candidates whose key was already seen, keeping the first
// occurrence and the original order.
func Dedupe(candidates []types.Candidate) []types.Candidate {
	seen := make(map[types.EmissionKey]struct{}, len(candidates))
	out := make([]types.Candidate, 0, len(candidates))
	for _, c := range candidates {
		k := c.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

func distinctCountries(candidates []types.Candidate) []string {
	set := make(map[string]struct{})
	for _, c := range candidates {
		set[c.Alpha3] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func validateValues(year int, amount float64) error {
	if !types.ValidYear(year) {
		return ledgererr.InvalidArgument("year %d outside %d-%d", year, types.MinYear, types.MaxYear)
	}
	if !finite(amount) {
		return ledgererr.InvalidArgument("amount must be a finite number")
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
