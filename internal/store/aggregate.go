package store

import (
	"context"
	"strings"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
	"github.com/ghgledger/ghgledger/pkg/types"
)

// TrendByCountry sums live amounts per year for one country, ascending by year.
func (s *Store) TrendByCountry(ctx context.Context, countryID string) ([]types.TrendPoint, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT year, SUM(amount)
		FROM emissions
		WHERE deleted = 0 AND country_id = ?
		GROUP BY year
		ORDER BY year ASC`, countryID)
	if err != nil {
		return nil, ledgererr.NewStoreError("trend query", err)
	}
	defer rows.Close()

	points := []types.TrendPoint{}
	for rows.Next() {
		var p types.TrendPoint
		if err := rows.Scan(&p.Year, &p.TotalEmissions); err != nil {
			return nil, ledgererr.NewStoreError("scan trend", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgererr.NewStoreError("iterate trend", err)
	}
	return points, nil
}

// SectorBreakdown groups live records by sector. Each group carries the year
// and country of its record with the smallest id, joined with its sector.
// Country enrichment is left to the caller.
func (s *Store) SectorBreakdown(ctx context.Context, countryID string, year *int) ([]types.SectorGroup, error) {
	clauses := []string{"deleted = 0"}
	var args []interface{}
	if countryID != "" {
		clauses = append(clauses, "country_id = ?")
		args = append(args, countryID)
	}
	if year != nil {
		clauses = append(clauses, "year = ?")
		args = append(args, *year)
	}

	rows, err := s.readDB.QueryContext(ctx, `
		SELECT g.sector_id, g.total, g.cnt, f.year, f.country_id,
		       s.industry, s.gas_type, s.unit, s.series_name, s.series_code
		FROM (
			SELECT sector_id, SUM(amount) AS total, COUNT(*) AS cnt, MIN(id) AS first_id
			FROM emissions
			WHERE `+strings.Join(clauses, " AND ")+`
			GROUP BY sector_id
		) g
		JOIN emissions f ON f.id = g.first_id
		JOIN sectors s ON s.id = g.sector_id
		ORDER BY s.series_code`, args...)
	if err != nil {
		return nil, ledgererr.NewStoreError("sector breakdown query", err)
	}
	defer rows.Close()

	groups := []types.SectorGroup{}
	for rows.Next() {
		var g types.SectorGroup
		if err := rows.Scan(&g.SectorID, &g.TotalEmissions, &g.Count, &g.Year, &g.CountryID,
			&g.Sector.Industry, &g.Sector.GasType, &g.Sector.Unit, &g.Sector.SeriesName, &g.Sector.SeriesCode); err != nil {
			return nil, ledgererr.NewStoreError("scan sector group", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgererr.NewStoreError("iterate sector groups", err)
	}
	return groups, nil
}

// CountLive counts live records, optionally restricted to one year.
func (s *Store) CountLive(ctx context.Context, year *int) (int64, error) {
	query := `SELECT COUNT(*) FROM emissions WHERE deleted = 0`
	var args []interface{}
	if year != nil {
		query += ` AND year = ?`
		args = append(args, *year)
	}
	var n int64
	if err := s.readDB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, ledgererr.NewStoreError("count emissions", err)
	}
	return n, nil
}

// GasRecords returns one page of live records whose sector has the given gas
// type, joined with sector and country, in insertion order. Pagination is
// applied after the join.
func (s *Store) GasRecords(ctx context.Context, gasType string, year *int, skip, limit int) ([]types.GasRecord, error) {
	query := `
		SELECT e.id, e.year, e.amount,
		       s.industry, s.gas_type, s.unit, s.series_name, s.series_code,
		       c.name, c.alpha3
		FROM emissions e
		JOIN sectors s ON s.id = e.sector_id
		JOIN countries c ON c.id = e.country_id
		WHERE e.deleted = 0 AND s.gas_type = ?`
	args := []interface{}{gasType}
	if year != nil {
		query += ` AND e.year = ?`
		args = append(args, *year)
	}
	query += ` ORDER BY e.id LIMIT ? OFFSET ?`
	args = append(args, limit, skip)

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledgererr.NewStoreError("gas filter query", err)
	}
	defer rows.Close()

	out := []types.GasRecord{}
	for rows.Next() {
		var r types.GasRecord
		var c types.CountryRef
		if err := rows.Scan(&r.ID, &r.Year, &r.Amount,
			&r.Sector.Industry, &r.Sector.GasType, &r.Sector.Unit, &r.Sector.SeriesName, &r.Sector.SeriesCode,
			&c.Name, &c.Alpha3); err != nil {
			return nil, ledgererr.NewStoreError("scan gas record", err)
		}
		r.Country = &c
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgererr.NewStoreError("iterate gas records", err)
	}
	return out, nil
}

// CountSummaryGroups counts distinct (country, sector) pairs among live
// records of one year.
func (s *Store) CountSummaryGroups(ctx context.Context, year int) (int64, error) {
	var n int64
	err := s.readDB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT 1 FROM emissions
			WHERE deleted = 0 AND year = ?
			GROUP BY country_id, sector_id
		)`, year).Scan(&n)
	if err != nil {
		return 0, ledgererr.NewStoreError("count summary groups", err)
	}
	return n, nil
}

// Summary sums live amounts of one year per (country, sector), joined with
// both references, ordered by country code then series code, paginated.
func (s *Store) Summary(ctx context.Context, year, skip, limit int) ([]types.SummaryRow, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT SUM(e.amount),
		       c.name, c.alpha3,
		       s.industry, s.gas_type, s.unit, s.series_name, s.series_code
		FROM emissions e
		JOIN countries c ON c.id = e.country_id
		JOIN sectors s ON s.id = e.sector_id
		WHERE e.deleted = 0 AND e.year = ?
		GROUP BY e.country_id, e.sector_id
		ORDER BY c.alpha3, s.series_code
		LIMIT ? OFFSET ?`, year, limit, skip)
	if err != nil {
		return nil, ledgererr.NewStoreError("summary query", err)
	}
	defer rows.Close()

	out := []types.SummaryRow{}
	for rows.Next() {
		var r types.SummaryRow
		if err := rows.Scan(&r.TotalEmissions, &r.Country.Name, &r.Country.Alpha3,
			&r.Sector.Industry, &r.Sector.GasType, &r.Sector.Unit, &r.Sector.SeriesName, &r.Sector.SeriesCode); err != nil {
			return nil, ledgererr.NewStoreError("scan summary row", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgererr.NewStoreError("iterate summary rows", err)
	}
	return out, nil
}
