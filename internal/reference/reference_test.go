package reference

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
	"github.com/ghgledger/ghgledger/internal/gas"
	"github.com/ghgledger/ghgledger/internal/store"
	"github.com/ghgledger/ghgledger/pkg/types"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResolver(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCountry(ctx, &types.Country{Name: "Brazil", Alpha3: "BRA"}))
	require.NoError(t, s.CreateSector(ctx, &types.Sector{Industry: "Energy", GasType: gas.CO2, SeriesCode: "EN.CO2.ETOT.ZS"}))

	r := NewResolver(s)

	c, err := r.Country(ctx, " BRA ")
	require.NoError(t, err)
	assert.Equal(t, "Brazil", c.Name)

	sec, err := r.Sector(ctx, "EN.CO2.ETOT.ZS")
	require.NoError(t, err)
	assert.Equal(t, gas.CO2, sec.GasType)

	_, err = r.Country(ctx, "ZZZ")
	assert.True(t, errors.Is(err, ledgererr.ErrNotFound))

	require.NoError(t, s.SetCountryDeleted(ctx, "BRA", true))
	_, err = r.Country(ctx, "BRA")
	assert.True(t, errors.Is(err, ledgererr.ErrNotFound), "soft-deleted countries must not resolve")
}

type countingLookup struct {
	countries atomic.Int32
	sectors   atomic.Int32
}

func (l *countingLookup) CountryByAlpha3(_ context.Context, alpha3 string) (*types.Country, error) {
	l.countries.Add(1)
	if alpha3 == "MISSING" {
		return nil, ledgererr.NotFound("country %q not found", alpha3)
	}
	return &types.Country{ID: "id-" + alpha3, Alpha3: alpha3}, nil
}

func (l *countingLookup) SectorBySeriesCode(_ context.Context, code string) (*types.Sector, error) {
	l.sectors.Add(1)
	return &types.Sector{ID: "id-" + code, SeriesCode: code}, nil
}

func TestMemoResolvesOncePerCode(t *testing.T) {
	lookup := &countingLookup{}
	memo := NewMemo(NewResolver(lookup))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = memo.Country(ctx, "USA")
			_, _ = memo.Sector(ctx, "EN.X")
			_, _ = memo.Country(ctx, "MISSING")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(2), lookup.countries.Load())
	assert.Equal(t, int32(1), lookup.sectors.Load())

	_, err := memo.Country(ctx, "MISSING")
	assert.True(t, errors.Is(err, ledgererr.ErrNotFound), "failures are memoized")
}

func TestSeed(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	doc := `
countries:
  - {name: France, alpha3: fra}
  - {name: Germany, alpha3: DEU}
sectors:
  - {series_code: EN.ATM.PFCG.KT.CE, series_name: PFC gas emissions}
  - {series_code: CUSTOM.1, industry: Waste, gas_type: CH4, unit: kt}
`
	sf, err := DecodeSeed(strings.NewReader(doc))
	require.NoError(t, err)

	seeder := NewSeeder(s, gas.DefaultTable(), zap.NewNop())
	res, err := seeder.Seed(ctx, sf)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{CountriesCreated: 2, SectorsCreated: 2}, res)

	fra, err := s.CountryByAlpha3(ctx, "FRA")
	require.NoError(t, err)
	assert.Equal(t, "France", fra.Name)

	pfc, err := s.SectorBySeriesCode(ctx, "EN.ATM.PFCG.KT.CE")
	require.NoError(t, err)
	assert.Equal(t, gas.PFC, pfc.GasType)
	assert.Equal(t, "Industry", pfc.Industry)

	custom, err := s.SectorBySeriesCode(ctx, "CUSTOM.1")
	require.NoError(t, err)
	assert.Equal(t, gas.Methane, custom.GasType, "gas aliases are normalized on seed")

	// Seeding again skips existing entities.
	res, err = seeder.Seed(ctx, sf)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{CountriesSkipped: 2, SectorsSkipped: 2}, res)
}

func TestSeedRejectsInvalidEntries(t *testing.T) {
	seeder := NewSeeder(newStore(t), gas.DefaultTable(), zap.NewNop())
	ctx := context.Background()

	_, err := seeder.Seed(ctx, &SeedFile{Countries: []types.Country{{Name: "X", Alpha3: "TOOLONG"}}})
	assert.True(t, errors.Is(err, ledgererr.ErrInvalidArgument))

	_, err = seeder.Seed(ctx, &SeedFile{Sectors: []types.Sector{{SeriesCode: "S", Industry: "I", GasType: "Ozone"}}})
	assert.True(t, errors.Is(err, ledgererr.ErrInvalidArgument))

	_, err = DecodeSeed(strings.NewReader("countries: [{name: A, alpha3: AAA, color: red}]"))
	assert.True(t, errors.Is(err, ledgererr.ErrInvalidFormat))
}
