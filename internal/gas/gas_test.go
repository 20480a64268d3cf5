package gas

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
)

func TestCanonical(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		in   string
		want string
	}{
		{"CO2", CO2},
		{"Carbon Dioxide", CO2},
		{"CO₂", CO2},
		{"CH4", Methane},
		{"CH₄", Methane},
		{"Methane", Methane},
		{"GHG", TotalGHG},
		{"CO₂e", CO2Equiv},
		{"NOX", NitrogenOxid},
		{"HFC", HFCs},
		{"PFC", PFC},
	}
	for _, tt := range tests {
		got, err := table.Canonical(tt.in)
		if err != nil {
			t.Errorf("Canonical(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalRejectsUnknown(t *testing.T) {
	table := DefaultTable()
	for _, in := range []string{"XYZ", "", "co2", "Ozone"} {
		_, err := table.Canonical(in)
		if !errors.Is(err, ledgererr.ErrInvalidArgument) {
			t.Errorf("Canonical(%q): expected INVALID_ARGUMENT, got %v", in, err)
		}
	}
}

func TestCanonicalTypes(t *testing.T) {
	types := DefaultTable().CanonicalTypes()
	if len(types) != 8 {
		t.Errorf("got %d canonical types, want 8: %v", len(types), types)
	}
}

func TestNormalizeProperties(t *testing.T) {
	table := DefaultTable()
	properties := gopter.NewProperties(nil)

	properties.Property("normalize is idempotent", prop.ForAll(
		func(s string) bool {
			once := table.Normalize(s)
			return table.Normalize(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("non-alias labels pass through unchanged", prop.ForAll(
		func(s string) bool {
			if _, ok := defaultAliases[s]; ok {
				return true
			}
			return table.Normalize(s) == s
		},
		gen.AlphaString(),
	))

	properties.Property("aliases always land on a canonical type", prop.ForAll(
		func(i int) bool {
			keys := make([]string, 0, len(defaultAliases))
			for k := range defaultAliases {
				keys = append(keys, k)
			}
			_, err := table.Canonical(keys[i%len(keys)])
			return err == nil
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
