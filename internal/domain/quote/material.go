// Package quote prices a treatment plan: element costs from a material price
// table (or per-group overrides), logistics shipments, and a manual
// adjustment. All amounts are decimals and are only rounded for display.
package quote

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Material is the prosthetic material chosen for the whole request.
type Material string

const (
	Zirconia          Material = "zirconio"
	LithiumDisilicate Material = "disilicato"
	MetalCeramic      Material = "metallo_ceramica"
	PMMA              Material = "pmma"
	Resin             Material = "resina"
	// CompositeResin is the second resin spelling some forms submit.
	CompositeResin Material = "resina_composita"
)

// Materials lists the known materials in display order.
func Materials() []Material {
	return []Material{Zirconia, LithiumDisilicate, MetalCeramic, PMMA, Resin, CompositeResin}
}

// Known reports whether m is one of Materials.
func (m Material) Known() bool {
	for _, k := range Materials() {
		if k == m {
			return true
		}
	}
	return false
}

// PriceTable maps a material to its base price per element.
type PriceTable map[Material]decimal.Decimal

// DefaultPriceTable returns the list prices used when no configuration
// overrides them.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		Zirconia:          decimal.NewFromInt(120),
		LithiumDisilicate: decimal.NewFromInt(110),
		MetalCeramic:      decimal.NewFromInt(95),
		PMMA:              decimal.NewFromInt(45),
		Resin:             decimal.NewFromInt(35),
		CompositeResin:    decimal.NewFromInt(35),
	}
}

// Clone returns an independent copy of the table.
func (t PriceTable) Clone() PriceTable {
	out := make(PriceTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// ParsePriceTable builds a table from string amounts, e.g. configuration
// values. Negative prices are rejected.
func ParsePriceTable(raw map[string]string) (PriceTable, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(PriceTable, len(raw))
	for _, k := range keys {
		d, err := decimal.NewFromString(raw[k])
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", k, err)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("price for %s must not be negative", k)
		}
		out[Material(k)] = d
	}
	return out, nil
}
