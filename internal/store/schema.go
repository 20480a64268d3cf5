package store

// Schema for the ledger database (ledger.db).

// CreateCountriesTableSQL creates the country reference table.
const CreateCountriesTableSQL = `
CREATE TABLE IF NOT EXISTS countries (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    alpha3 TEXT NOT NULL UNIQUE,
    deleted INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateSectorsTableSQL creates the sector reference table.
const CreateSectorsTableSQL = `
CREATE TABLE IF NOT EXISTS sectors (
    id TEXT PRIMARY KEY,
    industry TEXT NOT NULL,
    gas_type TEXT NOT NULL,
    unit TEXT NOT NULL DEFAULT '',
    series_name TEXT NOT NULL DEFAULT '',
    series_code TEXT NOT NULL UNIQUE,
    deleted INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateEmissionsTableSQL creates the emission record table. Timestamps are
// Unix milliseconds.
const CreateEmissionsTableSQL = `
CREATE TABLE IF NOT EXISTS emissions (
    id TEXT PRIMARY KEY,
    country_id TEXT NOT NULL REFERENCES countries(id),
    sector_id TEXT NOT NULL REFERENCES sectors(id),
    year INTEGER NOT NULL CHECK (year BETWEEN 1900 AND 2100),
    amount REAL NOT NULL DEFAULT 0,
    deleted INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateEmissionsIndexesSQL creates the emission indexes. The natural key is
// unique among live rows only, so a soft delete frees the key for reuse.
var CreateEmissionsIndexesSQL = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_emissions_key_live ON emissions(country_id, sector_id, year)
		WHERE deleted = 0`,

	// Trend and listing by country
	`CREATE INDEX IF NOT EXISTS idx_emissions_country_year ON emissions(country_id, year)
		WHERE deleted = 0`,

	// Summary and gas filter by year
	`CREATE INDEX IF NOT EXISTS idx_emissions_year ON emissions(year, country_id, sector_id)
		WHERE deleted = 0`,

	`CREATE INDEX IF NOT EXISTS idx_emissions_sector ON emissions(sector_id)
		WHERE deleted = 0`,
}

// CreateSectorsIndexesSQL indexes sectors by gas type for the gas filter join.
var CreateSectorsIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_sectors_gas_type ON sectors(gas_type)`,
}

// AllSchemaSQL returns all schema creation statements in order.
func AllSchemaSQL() []string {
	stmts := []string{
		CreateCountriesTableSQL,
		CreateSectorsTableSQL,
		CreateEmissionsTableSQL,
	}
	stmts = append(stmts, CreateEmissionsIndexesSQL...)
	stmts = append(stmts, CreateSectorsIndexesSQL...)
	return stmts
}
