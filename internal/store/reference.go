package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
	"github.com/ghgledger/ghgledger/pkg/types"
)

const countryColumns = "id, name, alpha3, deleted, created_at, updated_at"

const sectorColumns = "id, industry, gas_type, unit, series_name, series_code, deleted, created_at, updated_at"

// CreateCountry inserts a country. The ID and timestamps are assigned here.
func (s *Store) CreateCountry(ctx context.Context, c *types.Country) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	c.ID = newID()
	c.CreatedAt, c.UpdatedAt = now, now

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO countries (`+countryColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Alpha3, boolToInt(c.Deleted), toMillis(now), toMillis(now))
		if isUniqueViolation(err) {
			return ledgererr.Conflict("country already exists", c.Alpha3)
		}
		if err != nil {
			return ledgererr.NewStoreError("insert country", err)
		}
		return nil
	})
}

// CreateSector inserts a sector. The ID and timestamps are assigned here.
func (s *Store) CreateSector(ctx context.Context, sec *types.Sector) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	sec.ID = newID()
	sec.CreatedAt, sec.UpdatedAt = now, now

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sectors (`+sectorColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sec.ID, sec.Industry, sec.GasType, sec.Unit, sec.SeriesName, sec.SeriesCode,
			boolToInt(sec.Deleted), toMillis(now), toMillis(now))
		if isUniqueViolation(err) {
			return ledgererr.Conflict("sector already exists", sec.SeriesCode)
		}
		if err != nil {
			return ledgererr.NewStoreError("insert sector", err)
		}
		return nil
	})
}

// SetCountryDeleted flips the soft-delete flag of a country.
func (s *Store) SetCountryDeleted(ctx context.Context, alpha3 string, deleted bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE countries SET deleted = ?, updated_at = ? WHERE alpha3 = ?`,
			boolToInt(deleted), toMillis(time.Now()), alpha3)
		if err != nil {
			return ledgererr.NewStoreError("update country", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ledgererr.NotFound("country %q not found", alpha3)
		}
		return nil
	})
}

// CountryByAlpha3 returns the live country with the given code.
func (s *Store) CountryByAlpha3(ctx context.Context, alpha3 string) (*types.Country, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+countryColumns+` FROM countries WHERE alpha3 = ? AND deleted = 0`, alpha3)
	c, err := scanCountry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledgererr.NotFound("country %q not found", alpha3)
	}
	if err != nil {
		return nil, ledgererr.NewStoreError("query country", err)
	}
	return c, nil
}

// CountryByID returns a country by id, including soft-deleted ones.
func (s *Store) CountryByID(ctx context.Context, id string) (*types.Country, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+countryColumns+` FROM countries WHERE id = ?`, id)
	c, err := scanCountry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledgererr.NotFound("country %q not found", id)
	}
	if err != nil {
		return nil, ledgererr.NewStoreError("query country", err)
	}
	return c, nil
}

// SectorBySeriesCode returns the live sector with the given series code.
func (s *Store) SectorBySeriesCode(ctx context.Context, code string) (*types.Sector, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+sectorColumns+` FROM sectors WHERE series_code = ? AND deleted = 0`, code)
	sec, err := scanSector(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledgererr.NotFound("sector %q not found", code)
	}
	if err != nil {
		return nil, ledgererr.NewStoreError("query sector", err)
	}
	return sec, nil
}

// ListCountries returns all live countries ordered by code.
func (s *Store) ListCountries(ctx context.Context) ([]*types.Country, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+countryColumns+` FROM countries WHERE deleted = 0 ORDER BY alpha3`)
	if err != nil {
		return nil, ledgererr.NewStoreError("list countries", err)
	}
	defer rows.Close()

	var out []*types.Country
	for rows.Next() {
		c, err := scanCountry(rows)
		if err != nil {
			return nil, ledgererr.NewStoreError("scan country", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListSectors returns all live sectors ordered by series code.
func (s *Store) ListSectors(ctx context.Context) ([]*types.Sector, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+sectorColumns+` FROM sectors WHERE deleted = 0 ORDER BY series_code`)
	if err != nil {
		return nil, ledgererr.NewStoreError("list sectors", err)
	}
	defer rows.Close()

	var out []*types.Sector
	for rows.Next() {
		sec, err := scanSector(rows)
		if err != nil {
			return nil, ledgererr.NewStoreError("scan sector", err)
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCountry(row scanner) (*types.Country, error) {
	var c types.Country
	var deleted int
	var created, updated int64
	if err := row.Scan(&c.ID, &c.Name, &c.Alpha3, &deleted, &created, &updated); err != nil {
		return nil, err
	}
	c.Deleted = deleted != 0
	c.CreatedAt, c.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &c, nil
}

func scanSector(row scanner) (*types.Sector, error) {
	var sec types.Sector
	var deleted int
	var created, updated int64
	if err := row.Scan(&sec.ID, &sec.Industry, &sec.GasType, &sec.Unit, &sec.SeriesName,
		&sec.SeriesCode, &deleted, &created, &updated); err != nil {
		return nil, err
	}
	sec.Deleted = deleted != 0
	sec.CreatedAt, sec.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &sec, nil
}
