package types

// TrendPoint is the summed amount for one year.
type TrendPoint struct {
	Year           int     `json:"year" msgpack:"year"`
	TotalEmissions float64 `json:"total_emissions" msgpack:"total_emissions"`
}

// SectorGroup is one row of the sector breakdown.
type SectorGroup struct {
	SectorID string `json:"sector_id"`

	// CountryID and Year come from the group's record with the smallest id
	CountryID string `json:"country_id"`
	Year      int    `json:"year"`

	TotalEmissions float64 `json:"total_emissions"`
	Count          int     `json:"count"`

	Sector  SectorRef   `json:"sector"`
	Country *CountryRef `json:"country,omitempty"`
}

// GasRecord is one emission record joined with its sector and country.
type GasRecord struct {
	ID      string      `json:"id"`
	Year    int         `json:"year"`
	Amount  float64     `json:"amount"`
	Sector  SectorRef   `json:"sector"`
	Country *CountryRef `json:"country,omitempty"`
}

// SummaryRow is the summed amount for one (country, sector) pair.
type SummaryRow struct {
	TotalEmissions float64    `json:"total_emissions"`
	Country        CountryRef `json:"country"`
	Sector         SectorRef  `json:"sector"`
}

// EmissionView is a record enriched with its references, used by listings.
type EmissionView struct {
	EmissionRecord
	Country *CountryRef `json:"country,omitempty"`
	Sector  *SectorRef  `json:"sector,omitempty"`
}
