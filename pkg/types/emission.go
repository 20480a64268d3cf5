// Package types provides the core data types of the emissions ledger.
package types

import (
	"fmt"
	"time"
)

// Year bounds accepted for emission records.
const (
	MinYear = 1900
	MaxYear = 2100
)

// ValidYear reports whether year lies in the accepted range.
func ValidYear(year int) bool {
	return year >= MinYear && year <= MaxYear
}

// EmissionRecord is one yearly measurement for a (country, sector) pair.
type EmissionRecord struct {
	// ID is a time-ordered UUID (v7); lexical order follows insertion order
	ID string `json:"id"`

	// CountryID references Country.ID
	CountryID string `json:"country_id"`

	// SectorID references Sector.ID
	SectorID string `json:"sector_id"`

	// Year is the measurement year (MinYear..MaxYear)
	Year int `json:"year"`

	// Amount is the emitted quantity in the sector's unit
	Amount float64 `json:"amount"`

	// Deleted marks a soft-deleted record; deleted records are invisible to queries
	Deleted bool `json:"deleted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the natural key of the record.
func (r *EmissionRecord) Key() EmissionKey {
	return EmissionKey{CountryID: r.CountryID, SectorID: r.SectorID, Year: r.Year}
}

// EmissionKey is the natural key that must be unique among non-deleted records.
type EmissionKey struct {
	CountryID string
	SectorID  string
	Year      int
}

// String renders the key as country|sector|year.
func (k EmissionKey) String() string {
	return fmt.Sprintf("%s|%s|%d", k.CountryID, k.SectorID, k.Year)
}

// Candidate is a resolved record awaiting insertion.
type Candidate struct {
	CountryID string
	SectorID  string
	Year      int
	Amount    float64

	// Alpha3 is the resolved country code, kept for cache invalidation
	Alpha3 string
}

// Key returns the natural key of the candidate.
func (c Candidate) Key() EmissionKey {
	return EmissionKey{CountryID: c.CountryID, SectorID: c.SectorID, Year: c.Year}
}

// NewEmission is the caller-facing shape of a single create request.
type NewEmission struct {
	CountryAlpha3    string  `json:"country_alpha3"`
	SectorSeriesCode string  `json:"sector_series_code"`
	Year             int     `json:"year"`
	Amount           float64 `json:"amount"`
}

// EmissionPatch is a partial update; nil fields are left unchanged.
type EmissionPatch struct {
	CountryAlpha3    *string  `json:"country_alpha3,omitempty"`
	SectorSeriesCode *string  `json:"sector_series_code,omitempty"`
	Year             *int     `json:"year,omitempty"`
	Amount           *float64 `json:"amount,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p EmissionPatch) Empty() bool {
	return p.CountryAlpha3 == nil && p.SectorSeriesCode == nil && p.Year == nil && p.Amount == nil
}
