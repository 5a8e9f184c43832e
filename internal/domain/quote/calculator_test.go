package quote

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dentallab/labdesk/internal/domain/dentition"
	"github.com/dentallab/labdesk/internal/domain/treatment"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(d int) *time.Time {
	t := time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func group(idx int, teeth ...dentition.PositionID) treatment.Group {
	return treatment.Group{ID: uuid.New(), GroupIndex: idx, Teeth: teeth, IsBridge: len(teeth) > 1}
}

func assertAmount(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

func TestCompute_ZirconiaTwoGroupsOneFitting(t *testing.T) {
	c := DefaultCalculator()
	q := c.Compute(Input{
		Groups:   []treatment.Group{group(0, "11"), group(1, "36", "37")},
		Material: Zirconia,
		Dates:    Logistics{Delivery: day(20), TryIn1: day(10)},
	})

	assertAmount(t, "elements", q.Totals.ElementsTotal, "360")
	if q.Totals.ShipmentCount != 2 {
		t.Errorf("expected 2 shipments, got %d", q.Totals.ShipmentCount)
	}
	assertAmount(t, "shipments", q.Totals.ShipmentTotal, "16")
	assertAmount(t, "grand", q.Totals.GrandTotal, "376")

	if len(q.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(q.Lines))
	}
	assertAmount(t, "line 0", q.Lines[0].Subtotal, "120")
	assertAmount(t, "line 1", q.Lines[1].Subtotal, "240")
	if q.Lines[1].ElementCount != 2 {
		t.Errorf("expected element count 2, got %d", q.Lines[1].ElementCount)
	}
}

func TestCompute_OverrideAppliesToOneGroup(t *testing.T) {
	c := DefaultCalculator()
	a, b := group(0, "11", "12"), group(1, "44")
	q := c.Compute(Input{
		Groups:    []treatment.Group{a, b},
		Material:  Zirconia,
		Dates:     Logistics{Delivery: day(1)},
		Overrides: map[uuid.UUID]decimal.Decimal{a.ID: dec("99.50")},
	})

	if !q.Lines[0].Overridden || q.Lines[1].Overridden {
		t.Error("override flag set on the wrong line")
	}
	assertAmount(t, "override line", q.Lines[0].Subtotal, "199")
	assertAmount(t, "base line", q.Lines[1].Subtotal, "120")
	assertAmount(t, "elements", q.Totals.ElementsTotal, "319")
}

func TestCompute_UnknownMaterialFallsBack(t *testing.T) {
	c := DefaultCalculator()
	if got := c.UnitPrice("oro"); !got.Equal(DefaultFallbackPrice) {
		t.Errorf("expected fallback 100, got %s", got)
	}
	q := c.Compute(Input{Groups: []treatment.Group{group(0, "21")}, Material: "oro"})
	assertAmount(t, "elements", q.Totals.ElementsTotal, "100")
}

func TestCompute_ShipmentsCountOnlyPopulatedDates(t *testing.T) {
	tests := []struct {
		name  string
		dates Logistics
		want  int
	}{
		{"no dates", Logistics{}, 1},
		{"delivery only", Logistics{Delivery: day(5)}, 1},
		{"all fittings", Logistics{Delivery: day(5), TryIn1: day(1), TryIn2: day(2), TryIn3: day(3)}, 4},
		{"gap in fittings", Logistics{Delivery: day(5), TryIn3: day(3)}, 2},
		{"zero time ignored", Logistics{Delivery: day(5), TryIn1: &time.Time{}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dates.ShipmentCount(); got != tt.want {
				t.Errorf("ShipmentCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCompute_NoGroups(t *testing.T) {
	q := DefaultCalculator().Compute(Input{Material: PMMA})
	assertAmount(t, "elements", q.Totals.ElementsTotal, "0")
	assertAmount(t, "grand", q.Totals.GrandTotal, "8")
	if q.Lines == nil {
		t.Error("lines should be an empty slice, not nil")
	}
}

func TestCompute_ManualAdjustmentCanBeNegative(t *testing.T) {
	q := DefaultCalculator().Compute(Input{
		Groups:           []treatment.Group{group(0, "11")},
		Material:         Zirconia,
		ManualAdjustment: dec("-28.333"),
	})
	assertAmount(t, "grand", q.Totals.GrandTotal, "99.667")
	if got := q.Totals.Display().GrandTotal; got != "99.67" {
		t.Errorf("display grand total = %s, want 99.67", got)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	c := DefaultCalculator()
	in := Input{
		Groups:           []treatment.Group{group(0, "13", "14", "15"), group(1, "47")},
		Material:         LithiumDisilicate,
		Dates:            Logistics{Delivery: day(9), TryIn2: day(4)},
		ManualAdjustment: dec("12.345"),
	}
	first := c.Compute(in)
	second := c.Compute(in)
	if !first.Totals.GrandTotal.Equal(second.Totals.GrandTotal) ||
		!first.Totals.ElementsTotal.Equal(second.Totals.ElementsTotal) ||
		first.Totals.ShipmentCount != second.Totals.ShipmentCount {
		t.Errorf("repeated computation differs: %+v vs %+v", first.Totals, second.Totals)
	}
}

func TestNewCalculator_CopiesPriceTable(t *testing.T) {
	prices := DefaultPriceTable()
	c := NewCalculator(prices, DefaultShipmentCost, DefaultFallbackPrice)
	prices[Zirconia] = dec("1")
	assertAmount(t, "zirconia", c.UnitPrice(Zirconia), "120")
}

func TestFormatAmount(t *testing.T) {
	tests := map[string]string{
		"0":      "0.00",
		"376":    "376.00",
		"12.345": "12.35",
		"1234.5": "1234.50",
	}
	for in, want := range tests {
		if got := FormatAmount(dec(in)); got != want {
			t.Errorf("FormatAmount(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestLogistics_Validate(t *testing.T) {
	err := Logistics{TryIn1: day(2)}.Validate()
	if !errors.Is(err, ErrMissingDelivery) {
		t.Fatalf("expected ErrMissingDelivery, got %v", err)
	}
	if !treatment.IsValidation(err) {
		t.Error("missing delivery should be a validation failure")
	}
	if err := (Logistics{Delivery: day(2)}).Validate(); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestParsePriceTable(t *testing.T) {
	table, err := ParsePriceTable(map[string]string{"zirconio": "130.5", "pmma": "40"})
	if err != nil {
		t.Fatalf("ParsePriceTable: %v", err)
	}
	assertAmount(t, "zirconio", table[Zirconia], "130.5")

	if _, err := ParsePriceTable(map[string]string{"pmma": "abc"}); err == nil {
		t.Error("expected error for non-numeric price")
	}
	if _, err := ParsePriceTable(map[string]string{"pmma": "-1"}); err == nil {
		t.Error("expected error for negative price")
	}
}
