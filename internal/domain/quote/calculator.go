package quote

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dentallab/labdesk/internal/domain/treatment"
)

var (
	DefaultShipmentCost  = decimal.NewFromInt(8)
	DefaultFallbackPrice = decimal.NewFromInt(100)
)

// Calculator holds the pricing configuration. It keeps no state between
// calls; Compute is a pure function of its input.
type Calculator struct {
	Prices        PriceTable
	ShipmentCost  decimal.Decimal
	FallbackPrice decimal.Decimal
}

func NewCalculator(prices PriceTable, shipmentCost, fallbackPrice decimal.Decimal) *Calculator {
	return &Calculator{Prices: prices.Clone(), ShipmentCost: shipmentCost, FallbackPrice: fallbackPrice}
}

// DefaultCalculator uses the default price table and constants.
func DefaultCalculator() *Calculator {
	return NewCalculator(DefaultPriceTable(), DefaultShipmentCost, DefaultFallbackPrice)
}

// Input is everything a quote depends on.
type Input struct {
	Groups           []treatment.Group
	Material         Material
	Dates            Logistics
	Overrides        map[uuid.UUID]decimal.Decimal
	ManualAdjustment decimal.Decimal
}

// LineItem is the derived price of one group.
type LineItem struct {
	GroupID      uuid.UUID       `json:"group_id"`
	GroupIndex   int             `json:"group_index"`
	ElementCount int             `json:"element_count"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Overridden   bool            `json:"overridden"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// Totals is the aggregate of a quote. Values are unrounded.
type Totals struct {
	ElementsTotal    decimal.Decimal `json:"elements_total"`
	ShipmentCount    int             `json:"shipment_count"`
	ShipmentTotal    decimal.Decimal `json:"shipment_total"`
	ManualAdjustment decimal.Decimal `json:"manual_adjustment"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
}

// Quote is the full result of Compute.
type Quote struct {
	Material      Material        `json:"material"`
	BaseUnitPrice decimal.Decimal `json:"base_unit_price"`
	Lines         []LineItem      `json:"lines"`
	Totals        Totals          `json:"totals"`
}

// UnitPrice returns the base price for m, or FallbackPrice when the material
// is not in the table.
func (c *Calculator) UnitPrice(m Material) decimal.Decimal {
	if p, ok := c.Prices[m]; ok {
		return p
	}
	return c.FallbackPrice
}

// Compute prices the groups. A group's override, when present, replaces the
// material base price for that group only.
func (c *Calculator) Compute(in Input) Quote {
	base := c.UnitPrice(in.Material)
	q := Quote{
		Material:      in.Material,
		BaseUnitPrice: base,
		Lines:         make([]LineItem, 0, len(in.Groups)),
	}

	elements := decimal.Zero
	for _, g := range in.Groups {
		unit := base
		override, overridden := in.Overrides[g.ID]
		if overridden {
			unit = override
		}
		count := g.ElementCount()
		sub := unit.Mul(decimal.NewFromInt(int64(count)))
		elements = elements.Add(sub)
		q.Lines = append(q.Lines, LineItem{
			GroupID:      g.ID,
			GroupIndex:   g.GroupIndex,
			ElementCount: count,
			UnitPrice:    unit,
			Overridden:   overridden,
			Subtotal:     sub,
		})
	}

	shipments := in.Dates.ShipmentCount()
	shipTotal := c.ShipmentCost.Mul(decimal.NewFromInt(int64(shipments)))

	q.Totals = Totals{
		ElementsTotal:    elements,
		ShipmentCount:    shipments,
		ShipmentTotal:    shipTotal,
		ManualAdjustment: in.ManualAdjustment,
		GrandTotal:       elements.Add(shipTotal).Add(in.ManualAdjustment),
	}
	return q
}

// DisplayTotals is Totals rounded once to two decimals for presentation.
type DisplayTotals struct {
	ElementsTotal    string `json:"elements_total"`
	ShipmentCount    int    `json:"shipment_count"`
	ShipmentTotal    string `json:"shipment_total"`
	ManualAdjustment string `json:"manual_adjustment"`
	GrandTotal       string `json:"grand_total"`
}

func (t Totals) Display() DisplayTotals {
	return DisplayTotals{
		ElementsTotal:    FormatAmount(t.ElementsTotal),
		ShipmentCount:    t.ShipmentCount,
		ShipmentTotal:    FormatAmount(t.ShipmentTotal),
		ManualAdjustment: FormatAmount(t.ManualAdjustment),
		GrandTotal:       FormatAmount(t.GrandTotal),
	}
}

// FormatAmount renders d with exactly two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
