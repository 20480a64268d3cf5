package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
	"github.com/ghgledger/ghgledger/pkg/types"
)

const emissionColumns = "id, country_id, sector_id, year, amount, deleted, created_at, updated_at"

// InsertBatch inserts all candidates in one transaction. Either every
// candidate is committed or none is; a uniqueness violation aborts the batch
// with a CONFLICT error naming the offending key.
func (s *Store) InsertBatch(ctx context.Context, candidates []types.Candidate) ([]*types.EmissionRecord, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	records := make([]*types.EmissionRecord, 0, len(candidates))

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO emissions (`+emissionColumns+`) VALUES (?, ?, ?, ?, ?, 0, ?, ?)`)
		if err != nil {
			return ledgererr.NewStoreError("prepare insert", err)
		}
		defer stmt.Close()

		for _, c := range candidates {
			rec := &types.EmissionRecord{
				ID:        newID(),
				CountryID: c.CountryID,
				SectorID:  c.SectorID,
				Year:      c.Year,
				Amount:    c.Amount,
				CreatedAt: now,
				UpdatedAt: now,
			}
			_, err := stmt.ExecContext(ctx, rec.ID, rec.CountryID, rec.SectorID, rec.Year, rec.Amount,
				toMillis(now), toMillis(now))
			if isUniqueViolation(err) {
				return ledgererr.Conflict("emission record already exists", c.Key().String())
			}
			if err != nil {
				return ledgererr.NewStoreError("insert emission", err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Insert inserts a single record. A live record with the same key fails
// with CONFLICT.
func (s *Store) Insert(ctx context.Context, c types.Candidate) (*types.EmissionRecord, error) {
	recs, err := s.InsertBatch(ctx, []types.Candidate{c})
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

// ExistingKeys returns the subset of keys already held by live records.
// Keys are grouped by (country, sector) so a wide CSV row costs one query.
func (s *Store) ExistingKeys(ctx context.Context, keys []types.EmissionKey) (map[types.EmissionKey]bool, error) {
	type pair struct{ country, sector string }
	pairs := make(map[pair]struct{})
	for _, k := range keys {
		pairs[pair{k.CountryID, k.SectorID}] = struct{}{}
	}

	existing := make(map[types.EmissionKey]bool)
	for p := range pairs {
		rows, err := s.readDB.QueryContext(ctx,
			`SELECT year FROM emissions WHERE country_id = ? AND sector_id = ? AND deleted = 0`,
			p.country, p.sector)
		if err != nil {
			return nil, ledgererr.NewStoreError("query existing keys", err)
		}
		for rows.Next() {
			var year int
			if err := rows.Scan(&year); err != nil {
				rows.Close()
				return nil, ledgererr.NewStoreError("scan existing key", err)
			}
			existing[types.EmissionKey{CountryID: p.country, SectorID: p.sector, Year: year}] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, ledgererr.NewStoreError("iterate existing keys", err)
		}
	}

	// Only report keys that were asked for.
	out := make(map[types.EmissionKey]bool, len(existing))
	for _, k := range keys {
		if existing[k] {
			out[k] = true
		}
	}
	return out, nil
}

// Exists reports whether a live record holds key.
func (s *Store) Exists(ctx context.Context, key types.EmissionKey) (bool, error) {
	var n int
	err := s.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM emissions WHERE country_id = ? AND sector_id = ? AND year = ? AND deleted = 0`,
		key.CountryID, key.SectorID, key.Year).Scan(&n)
	if err != nil {
		return false, ledgererr.NewStoreError("query emission key", err)
	}
	return n > 0, nil
}

// Get returns a live record by id.
func (s *Store) Get(ctx context.Context, id string) (*types.EmissionRecord, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+emissionColumns+` FROM emissions WHERE id = ? AND deleted = 0`, id)
	rec, err := scanEmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledgererr.NotFound("emission %q not found", id)
	}
	if err != nil {
		return nil, ledgererr.NewStoreError("query emission", err)
	}
	return rec, nil
}

// Update loads the live record id, lets apply mutate it, and writes it back
// in one transaction. It returns the record before and after the change.
func (s *Store) Update(ctx context.Context, id string, apply func(*types.EmissionRecord) error) (before, after *types.EmissionRecord, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+emissionColumns+` FROM emissions WHERE id = ? AND deleted = 0`, id)
		cur, err := scanEmission(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ledgererr.NotFound("emission %q not found", id)
		}
		if err != nil {
			return ledgererr.NewStoreError("query emission", err)
		}

		next := *cur
		if err := apply(&next); err != nil {
			return err
		}
		next.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

		_, err = tx.ExecContext(ctx,
			`UPDATE emissions SET country_id = ?, sector_id = ?, year = ?, amount = ?, updated_at = ?
			 WHERE id = ?`,
			next.CountryID, next.SectorID, next.Year, next.Amount, toMillis(next.UpdatedAt), id)
		if isUniqueViolation(err) {
			return ledgererr.Conflict("emission record already exists", next.Key().String())
		}
		if err != nil {
			return ledgererr.NewStoreError("update emission", err)
		}
		before, after = cur, &next
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// SoftDelete marks a live record as deleted and returns it.
func (s *Store) SoftDelete(ctx context.Context, id string) (*types.EmissionRecord, error) {
	return s.setDeleted(ctx, id, true)
}

// Restore un-deletes a soft-deleted record. It fails with CONFLICT when a
// live record has taken the key in the meantime.
func (s *Store) Restore(ctx context.Context, id string) (*types.EmissionRecord, error) {
	return s.setDeleted(ctx, id, false)
}

func (s *Store) setDeleted(ctx context.Context, id string, deleted bool) (*types.EmissionRecord, error) {
	var rec *types.EmissionRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+emissionColumns+` FROM emissions WHERE id = ? AND deleted = ?`, id, boolToInt(!deleted))
		cur, err := scanEmission(row)
		if errors.Is(err, sql.ErrNoRows) {
			if deleted {
				return ledgererr.NotFound("emission %q not found", id)
			}
			return ledgererr.NotFound("deleted emission %q not found", id)
		}
		if err != nil {
			return ledgererr.NewStoreError("query emission", err)
		}

		now := time.Now().UTC().Truncate(time.Millisecond)
		_, err = tx.ExecContext(ctx,
			`UPDATE emissions SET deleted = ?, updated_at = ? WHERE id = ?`,
			boolToInt(deleted), toMillis(now), id)
		if isUniqueViolation(err) {
			return ledgererr.Conflict("emission key is held by another record", cur.Key().String())
		}
		if err != nil {
			return ledgererr.NewStoreError("update emission", err)
		}
		cur.Deleted = deleted
		cur.UpdatedAt = now
		rec = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListFilter narrows List. Zero values mean no filter.
type ListFilter struct {
	CountryID string
	Year      *int
}

func (f ListFilter) where() (string, []interface{}) {
	clauses := []string{"e.deleted = 0"}
	var args []interface{}
	if f.CountryID != "" {
		clauses = append(clauses, "e.country_id = ?")
		args = append(args, f.CountryID)
	}
	if f.Year != nil {
		clauses = append(clauses, "e.year = ?")
		args = append(args, *f.Year)
	}
	return strings.Join(clauses, " AND "), args
}

// List returns one page of live records in insertion order, enriched with
// their references, plus the total number of matching records.
func (s *Store) List(ctx context.Context, f ListFilter, skip, limit int) ([]types.EmissionView, int64, error) {
	where, args := f.where()

	var total int64
	if err := s.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM emissions e WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, ledgererr.NewStoreError("count emissions", err)
	}

	query := `
		SELECT e.id, e.country_id, e.sector_id, e.year, e.amount, e.deleted, e.created_at, e.updated_at,
		       c.name, c.alpha3,
		       s.industry, s.gas_type, s.unit, s.series_name, s.series_code
		FROM emissions e
		LEFT JOIN countries c ON c.id = e.country_id
		LEFT JOIN sectors s ON s.id = e.sector_id
		WHERE ` + where + `
		ORDER BY e.id
		LIMIT ? OFFSET ?`
	rows, err := s.readDB.QueryContext(ctx, query, append(args, limit, skip)...)
	if err != nil {
		return nil, 0, ledgererr.NewStoreError("list emissions", err)
	}
	defer rows.Close()

	out := []types.EmissionView{}
	for rows.Next() {
		var v types.EmissionView
		var deleted int
		var created, updated int64
		var cName, cAlpha3 sql.NullString
		var sIndustry, sGas, sUnit, sName, sCode sql.NullString
		if err := rows.Scan(&v.ID, &v.CountryID, &v.SectorID, &v.Year, &v.Amount, &deleted, &created, &updated,
			&cName, &cAlpha3, &sIndustry, &sGas, &sUnit, &sName, &sCode); err != nil {
			return nil, 0, ledgererr.NewStoreError("scan emission", err)
		}
		v.Deleted = deleted != 0
		v.CreatedAt, v.UpdatedAt = fromMillis(created), fromMillis(updated)
		if cAlpha3.Valid {
			v.Country = &types.CountryRef{Name: cName.String, Alpha3: cAlpha3.String}
		}
		if sCode.Valid {
			v.Sector = &types.SectorRef{
				Industry:   sIndustry.String,
				GasType:    sGas.String,
				Unit:       sUnit.String,
				SeriesName: sName.String,
				SeriesCode: sCode.String,
			}
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, ledgererr.NewStoreError("iterate emissions", err)
	}
	return out, total, nil
}

func scanEmission(row scanner) (*types.EmissionRecord, error) {
	var r types.EmissionRecord
	var deleted int
	var created, updated int64
	if err := row.Scan(&r.ID, &r.CountryID, &r.SectorID, &r.Year, &r.Amount, &deleted, &created, &updated); err != nil {
		return nil, err
	}
	r.Deleted = deleted != 0
	r.CreatedAt, r.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &r, nil
}
