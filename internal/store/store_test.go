package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
	"github.com/ghgledger/ghgledger/pkg/types"
)

type fixture struct {
	store   *Store
	usa     *types.Country
	fra     *types.Country
	co2     *types.Sector
	methane *types.Sector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"), Options{})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	f := &fixture{
		store:   s,
		usa:     &types.Country{Name: "United States", Alpha3: "USA"},
		fra:     &types.Country{Name: "France", Alpha3: "FRA"},
		co2:     &types.Sector{Industry: "Energy", GasType: "CO₂", Unit: "Mt", SeriesCode: "EN.GHG.CO2.EN.MT.CE.AR5"},
		methane: &types.Sector{Industry: "Agriculture", GasType: "Methane", Unit: "Mt", SeriesCode: "EN.GHG.CH4.AG.MT.CE.AR5"},
	}
	for _, c := range []*types.Country{f.usa, f.fra} {
		if err := s.CreateCountry(ctx, c); err != nil {
			t.Fatalf("create country: %v", err)
		}
	}
	for _, sec := range []*types.Sector{f.co2, f.methane} {
		if err := s.CreateSector(ctx, sec); err != nil {
			t.Fatalf("create sector: %v", err)
		}
	}
	return f
}

func (f *fixture) candidate(c *types.Country, sec *types.Sector, year int, amount float64) types.Candidate {
	return types.Candidate{CountryID: c.ID, SectorID: sec.ID, Year: year, Amount: amount, Alpha3: c.Alpha3}
}

func intPtr(v int) *int { return &v }

func TestReferenceLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.store.CountryByAlpha3(ctx, "USA")
	if err != nil {
		t.Fatalf("CountryByAlpha3: %v", err)
	}
	if got.ID != f.usa.ID || got.Name != "United States" {
		t.Errorf("unexpected country: %+v", got)
	}

	if _, err := f.store.CountryByAlpha3(ctx, "XXX"); !errors.Is(err, ledgererr.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}

	sec, err := f.store.SectorBySeriesCode(ctx, f.co2.SeriesCode)
	if err != nil {
		t.Fatalf("SectorBySeriesCode: %v", err)
	}
	if sec.GasType != "CO₂" {
		t.Errorf("gas type = %q", sec.GasType)
	}

	// Soft-deleted references are invisible to lookups.
	if err := f.store.SetCountryDeleted(ctx, "FRA", true); err != nil {
		t.Fatalf("SetCountryDeleted: %v", err)
	}
	if _, err := f.store.CountryByAlpha3(ctx, "FRA"); !errors.Is(err, ledgererr.ErrNotFound) {
		t.Errorf("deleted country should not resolve, got %v", err)
	}

	if err := f.store.CreateCountry(ctx, &types.Country{Name: "Dup", Alpha3: "USA"}); !errors.Is(err, ledgererr.ErrConflict) {
		t.Errorf("duplicate alpha3 should conflict, got %v", err)
	}
}

func TestInsertBatch_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.store.Insert(ctx, f.candidate(f.usa, f.co2, 2020, 7)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	batch := []types.Candidate{
		f.candidate(f.usa, f.co2, 2019, 10),
		f.candidate(f.usa, f.co2, 2020, 1), // collides with the live record
	}
	_, err := f.store.InsertBatch(ctx, batch)
	if !errors.Is(err, ledgererr.ErrConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
	keys, _ := ledgererr.GetDetails(err)["keys"].([]string)
	if len(keys) != 1 || keys[0] != batch[1].Key().String() {
		t.Errorf("conflict should name the offending key, got %v", keys)
	}

	n, err := f.store.CountLive(ctx, nil)
	if err != nil {
		t.Fatalf("CountLive: %v", err)
	}
	if n != 1 {
		t.Errorf("batch must not partially commit: %d live records, want 1", n)
	}
}

func TestExistingKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.InsertBatch(ctx, []types.Candidate{
		f.candidate(f.usa, f.co2, 2019, 1),
		f.candidate(f.usa, f.co2, 2020, 1),
		f.candidate(f.fra, f.methane, 2020, 1),
	})
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	keys := []types.EmissionKey{
		{CountryID: f.usa.ID, SectorID: f.co2.ID, Year: 2019},
		{CountryID: f.usa.ID, SectorID: f.co2.ID, Year: 2021},
		{CountryID: f.fra.ID, SectorID: f.methane.ID, Year: 2020},
		{CountryID: f.fra.ID, SectorID: f.co2.ID, Year: 2020},
	}
	existing, err := f.store.ExistingKeys(ctx, keys)
	if err != nil {
		t.Fatalf("ExistingKeys: %v", err)
	}
	if len(existing) != 2 || !existing[keys[0]] || !existing[keys[2]] {
		t.Errorf("unexpected existing set: %v", existing)
	}
}

func TestInsertDuplicateKeyConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.store.Insert(ctx, f.candidate(f.usa, f.co2, 2020, 5)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	_, err := f.store.Insert(ctx, f.candidate(f.usa, f.co2, 2020, 6))
	if !errors.Is(err, ledgererr.ErrConflict) {
		t.Fatalf("duplicate live key: got %v, want CONFLICT", err)
	}

	n, err := f.store.CountLive(ctx, nil)
	if err != nil {
		t.Fatalf("CountLive: %v", err)
	}
	if n != 1 {
		t.Errorf("live = %d, want 1", n)
	}
}

func TestSoftDeleteFreesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.store.Insert(ctx, f.candidate(f.usa, f.co2, 2020, 5))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if _, err := f.store.SoftDelete(ctx, rec.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := f.store.Get(ctx, rec.ID); !errors.Is(err, ledgererr.ErrNotFound) {
		t.Errorf("deleted record should be invisible, got %v", err)
	}
	if _, err := f.store.SoftDelete(ctx, rec.ID); !errors.Is(err, ledgererr.ErrNotFound) {
		t.Errorf("double delete should be NOT_FOUND, got %v", err)
	}

	// The key is free again.
	replacement, err := f.store.Insert(ctx, f.candidate(f.usa, f.co2, 2020, 9))
	if err != nil {
		t.Fatalf("re-insert after soft delete: %v", err)
	}

	// Restoring the old record would duplicate the live key.
	if _, err := f.store.Restore(ctx, rec.ID); !errors.Is(err, ledgererr.ErrConflict) {
		t.Errorf("restore over a live key should conflict, got %v", err)
	}

	if _, err := f.store.SoftDelete(ctx, replacement.ID); err != nil {
		t.Fatalf("SoftDelete replacement: %v", err)
	}
	restored, err := f.store.Restore(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Deleted || restored.Amount != 5 {
		t.Errorf("unexpected restored record: %+v", restored)
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.store.Insert(ctx, f.candidate(f.usa, f.co2, 2019, 1))
	if _, err := f.store.Insert(ctx, f.candidate(f.usa, f.co2, 2020, 1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	before, after, err := f.store.Update(ctx, a.ID, func(r *types.EmissionRecord) error {
		r.Amount = 42
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if before.Amount != 1 || after.Amount != 42 {
		t.Errorf("before=%v after=%v", before.Amount, after.Amount)
	}

	_, _, err = f.store.Update(ctx, a.ID, func(r *types.EmissionRecord) error {
		r.Year = 2020
		return nil
	})
	if !errors.Is(err, ledgererr.ErrConflict) {
		t.Errorf("moving onto a live key should conflict, got %v", err)
	}

	got, _ := f.store.Get(ctx, a.ID)
	if got.Year != 2019 || got.Amount != 42 {
		t.Errorf("failed update must not change the record: %+v", got)
	}
}

func TestTrendByCountry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.InsertBatch(ctx, []types.Candidate{
		f.candidate(f.usa, f.co2, 2020, 7),
		f.candidate(f.usa, f.co2, 2019, 10),
		f.candidate(f.usa, f.methane, 2019, 5),
		f.candidate(f.fra, f.co2, 2019, 100),
	})
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	points, err := f.store.TrendByCountry(ctx, f.usa.ID)
	if err != nil {
		t.Fatalf("TrendByCountry: %v", err)
	}
	want := []types.TrendPoint{{Year: 2019, TotalEmissions: 15}, {Year: 2020, TotalEmissions: 7}}
	if len(points) != len(want) {
		t.Fatalf("got %v, want %v", points, want)
	}
	for i := range want {
		if points[i] != want[i] {
			t.Errorf("point %d: got %v, want %v", i, points[i], want[i])
		}
	}
}

func TestSectorBreakdown_FirstObserved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.InsertBatch(ctx, []types.Candidate{
		f.candidate(f.fra, f.co2, 2018, 1),
		f.candidate(f.usa, f.co2, 2019, 2),
		f.candidate(f.usa, f.methane, 2020, 3),
	})
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	groups, err := f.store.SectorBreakdown(ctx, "", nil)
	if err != nil {
		t.Fatalf("SectorBreakdown: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}

	byCode := map[string]types.SectorGroup{}
	for _, g := range groups {
		byCode[g.Sector.SeriesCode] = g
	}
	co2 := byCode[f.co2.SeriesCode]
	if co2.Count != 2 || co2.TotalEmissions != 3 {
		t.Errorf("co2 group = %+v", co2)
	}
	// The earliest inserted record of the group decides year and country.
	if co2.Year != 2018 || co2.CountryID != f.fra.ID {
		t.Errorf("co2 group should report first observed row, got year=%d country=%s", co2.Year, co2.CountryID)
	}

	filtered, err := f.store.SectorBreakdown(ctx, f.usa.ID, intPtr(2019))
	if err != nil {
		t.Fatalf("SectorBreakdown filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].TotalEmissions != 2 {
		t.Errorf("filtered breakdown = %+v", filtered)
	}
}

func TestGasRecordsAndSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.InsertBatch(ctx, []types.Candidate{
		f.candidate(f.usa, f.co2, 2019, 1),
		f.candidate(f.usa, f.methane, 2019, 2),
		f.candidate(f.fra, f.co2, 2019, 3),
		f.candidate(f.fra, f.co2, 2020, 4),
	})
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	recs, err := f.store.GasRecords(ctx, "CO₂", intPtr(2019), 0, 10)
	if err != nil {
		t.Fatalf("GasRecords: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d gas records, want 2", len(recs))
	}
	if recs[0].Country.Alpha3 != "USA" || recs[1].Country.Alpha3 != "FRA" {
		t.Errorf("records should follow insertion order: %+v", recs)
	}

	total, err := f.store.CountLive(ctx, intPtr(2019))
	if err != nil {
		t.Fatalf("CountLive: %v", err)
	}
	if total != 3 {
		t.Errorf("pre-join count = %d, want 3", total)
	}

	groups, err := f.store.CountSummaryGroups(ctx, 2019)
	if err != nil {
		t.Fatalf("CountSummaryGroups: %v", err)
	}
	if groups != 3 {
		t.Errorf("summary groups = %d, want 3", groups)
	}

	rows, err := f.store.Summary(ctx, 2019, 0, 2)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Country.Alpha3 != "FRA" {
		t.Errorf("summary should be ordered by country code, got %s first", rows[0].Country.Alpha3)
	}
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for year := 2000; year < 2005; year++ {
		if _, err := f.store.Insert(ctx, f.candidate(f.usa, f.co2, year, float64(year))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	page, total, err := f.store.List(ctx, ListFilter{CountryID: f.usa.ID}, 2, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("total=%d len=%d", total, len(page))
	}
	if page[0].Year != 2002 || page[0].Country == nil || page[0].Sector == nil {
		t.Errorf("unexpected first row: %+v", page[0])
	}

	page, total, err = f.store.List(ctx, ListFilter{Year: intPtr(2003)}, 0, 10)
	if err != nil {
		t.Fatalf("List by year: %v", err)
	}
	if total != 1 || len(page) != 1 {
		t.Errorf("year filter: total=%d len=%d", total, len(page))
	}
}
