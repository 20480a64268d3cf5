package reference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
	"github.com/ghgledger/ghgledger/internal/gas"
	"github.com/ghgledger/ghgledger/pkg/types"
)

// SeedFile is the YAML document accepted by Seed.
//
//	countries:
//	  - {name: France, alpha3: FRA}
//	sectors:
//	  - {series_code: EN.ATM.METH.KT.CE, series_name: "Methane emissions (kt of CO2 equivalent)"}
type SeedFile struct {
	Countries []types.Country `yaml:"countries"`
	Sectors   []types.Sector  `yaml:"sectors"`
}

// LoadSeed reads a seed file from path.
func LoadSeed(path string) (*SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return DecodeSeed(f)
}

// DecodeSeed parses a seed document.
func DecodeSeed(r io.Reader) (*SeedFile, error) {
	var sf SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil && !errors.Is(err, io.EOF) {
		return nil, ledgererr.InvalidFormat("invalid seed file: %v", err)
	}
	return &sf, nil
}

// Creator is the store surface used for seeding.
type Creator interface {
	CreateCountry(ctx context.Context, c *types.Country) error
	CreateSector(ctx context.Context, s *types.Sector) error
}

// SeedResult counts what Seed did.
type SeedResult struct {
	CountriesCreated int `json:"countries_created"`
	CountriesSkipped int `json:"countries_skipped"`
	SectorsCreated   int `json:"sectors_created"`
	SectorsSkipped   int `json:"sectors_skipped"`
}

// Seeder inserts reference entities. Entities whose natural key already
// exists are skipped, never updated.
type Seeder struct {
	creator Creator
	gases   *gas.Table
	logger  *zap.Logger
}

// NewSeeder creates a seeder.
func NewSeeder(creator Creator, gases *gas.Table, logger *zap.Logger) *Seeder {
	return &Seeder{creator: creator, gases: gases, logger: logger}
}

// Seed validates the whole file first, then inserts countries and sectors.
func (s *Seeder) Seed(ctx context.Context, sf *SeedFile) (SeedResult, error) {
	var res SeedResult

	countries := make([]*types.Country, 0, len(sf.Countries))
	for i := range sf.Countries {
		c := sf.Countries[i]
		c.Alpha3 = strings.ToUpper(strings.TrimSpace(c.Alpha3))
		c.Name = strings.TrimSpace(c.Name)
		if len(c.Alpha3) != 3 {
			return res, ledgererr.InvalidArgument("country %d: alpha3 must be 3 letters, got %q", i, c.Alpha3)
		}
		if c.Name == "" {
			return res, ledgererr.InvalidArgument("country %s: name is required", c.Alpha3)
		}
		countries = append(countries, &c)
	}

	sectors := make([]*types.Sector, 0, len(sf.Sectors))
	for i := range sf.Sectors {
		sec := sf.Sectors[i]
		sec.SeriesCode = strings.TrimSpace(sec.SeriesCode)
		if sec.SeriesCode == "" {
			return res, ledgererr.InvalidArgument("sector %d: series_code is required", i)
		}
		if info, ok := WorldBankSeries[sec.SeriesCode]; ok {
			sec.Industry, sec.GasType, sec.Unit = info.Industry, info.GasType, info.Unit
		}
		canon, err := s.gases.Canonical(sec.GasType)
		if err != nil {
			return res, fmt.Errorf("sector %s: %w", sec.SeriesCode, err)
		}
		sec.GasType = canon
		if sec.Industry == "" {
			return res, ledgererr.InvalidArgument("sector %s: industry is required", sec.SeriesCode)
		}
		sectors = append(sectors, &sec)
	}

	for _, c := range countries {
		err := s.creator.CreateCountry(ctx, c)
		switch {
		case errors.Is(err, ledgererr.ErrConflict):
			res.CountriesSkipped++
			s.logger.Debug("country exists, skipping", zap.String("alpha3", c.Alpha3))
		case err != nil:
			return res, err
		default:
			res.CountriesCreated++
		}
	}
	for _, sec := range sectors {
		err := s.creator.CreateSector(ctx, sec)
		switch {
		case errors.Is(err, ledgererr.ErrConflict):
			res.SectorsSkipped++
			s.logger.Debug("sector exists, skipping", zap.String("series_code", sec.SeriesCode))
		case err != nil:
			return res, err
		default:
			res.SectorsCreated++
		}
	}

	s.logger.Info("reference seed applied",
		zap.Int("countries_created", res.CountriesCreated),
		zap.Int("countries_skipped", res.CountriesSkipped),
		zap.Int("sectors_created", res.SectorsCreated),
		zap.Int("sectors_skipped", res.SectorsSkipped))
	return res, nil
}
