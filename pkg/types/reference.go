package types

import "time"

// Country is a reference entity identified by its ISO 3166 alpha-3 code.
type Country struct {
	ID        string    `json:"id" yaml:"-"`
	Name      string    `json:"name" yaml:"name"`
	Alpha3    string    `json:"alpha3" yaml:"alpha3"`
	Deleted   bool      `json:"deleted" yaml:"-"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Ref returns the projection embedded in query results.
func (c *Country) Ref() CountryRef {
	return CountryRef{Name: c.Name, Alpha3: c.Alpha3}
}

// Sector is a reference entity identified by its World Bank series code.
type Sector struct {
	ID string `json:"id" yaml:"-"`

	// Industry is the emitting activity (e.g. "Energy", "Agriculture")
	Industry string `json:"industry" yaml:"industry"`

	// GasType is a canonical gas label (see internal/gas)
	GasType string `json:"gas_type" yaml:"gas_type"`

	Unit       string    `json:"unit" yaml:"unit"`
	SeriesName string    `json:"series_name" yaml:"series_name"`
	SeriesCode string    `json:"series_code" yaml:"series_code"`
	Deleted    bool      `json:"deleted" yaml:"-"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-"`
}

// Ref returns the projection embedded in query results.
func (s *Sector) Ref() SectorRef {
	return SectorRef{
		Industry:   s.Industry,
		GasType:    s.GasType,
		Unit:       s.Unit,
		SeriesName: s.SeriesName,
		SeriesCode: s.SeriesCode,
	}
}

// CountryRef is the country projection joined into aggregation results.
type CountryRef struct {
	Name   string `json:"name" msgpack:"name"`
	Alpha3 string `json:"alpha3" msgpack:"alpha3"`
}

// SectorRef is the sector projection joined into aggregation results.
type SectorRef struct {
	Industry   string `json:"industry"`
	GasType    string `json:"gas_type"`
	Unit       string `json:"unit"`
	SeriesName string `json:"series_name"`
	SeriesCode string `json:"series_code"`
}
