// Package gas maps user-supplied gas labels onto the canonical gas types
// stored on sectors.
package gas

import (
	"sort"

	"golang.org/x/text/unicode/norm"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
)

// Canonical gas types.
const (
	TotalGHG     = "Total GHG"
	CO2          = "CO₂"
	CO2Equiv     = "CO₂ Equivalent"
	SF6          = "SF₆"
	PFC          = "PFC"
	Methane      = "Methane"
	NitrogenOxid = "NOx"
	HFCs         = "HFCs"
)

var defaultAliases = map[string]string{
	"GHG":                 TotalGHG,
	"CO2":                 CO2,
	"Carbon Dioxide":      CO2,
	"CO2E":                CO2Equiv,
	"CO₂e":                CO2Equiv,
	"SF6":                 SF6,
	"Sulfur Hexafluoride": SF6,
	"PFC":                 PFC,
	"Perfluorocarbons":    PFC,
	"CH4":                 Methane,
	"CH₄":                 Methane,
	"NOx":                 NitrogenOxid,
	"Nitrogen Oxides":     NitrogenOxid,
	"NOX":                 NitrogenOxid,
	"HFC":                 HFCs,
}

// Table is an immutable alias table. It is safe for concurrent use.
type Table struct {
	aliases   map[string]string
	canonical map[string]struct{}
}

// NewTable builds a table from alias -> canonical pairs. The canonical set is
// the set of values. Keys and values are NFC-normalized.
func NewTable(aliases map[string]string) *Table {
	t := &Table{
		aliases:   make(map[string]string, len(aliases)),
		canonical: make(map[string]struct{}),
	}
	for alias, canon := range aliases {
		canon = norm.NFC.String(canon)
		t.aliases[norm.NFC.String(alias)] = canon
		t.canonical[canon] = struct{}{}
	}
	return t
}

// DefaultTable returns the built-in alias table.
func DefaultTable() *Table {
	return NewTable(defaultAliases)
}

// Normalize returns the canonical label for an alias, or the input itself
// when it is not an alias.
func (t *Table) Normalize(label string) string {
	label = norm.NFC.String(label)
	if canon, ok := t.aliases[label]; ok {
		return canon
	}
	return label
}

// IsCanonical reports whether label is one of the canonical gas types.
func (t *Table) IsCanonical(label string) bool {
	_, ok := t.canonical[norm.NFC.String(label)]
	return ok
}

// Canonical normalizes label and fails with INVALID_ARGUMENT when the result
// is not a canonical gas type.
func (t *Table) Canonical(label string) (string, error) {
	canon := t.Normalize(label)
	if _, ok := t.canonical[canon]; !ok {
		return "", ledgererr.InvalidArgument("invalid gas type: %s", label)
	}
	return canon, nil
}

// CanonicalTypes returns the sorted canonical gas types.
func (t *Table) CanonicalTypes() []string {
	out := make([]string, 0, len(t.canonical))
	for c := range t.canonical {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
