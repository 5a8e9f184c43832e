package quote

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/dentallab/labdesk/internal/domain/dentition"
	"github.com/dentallab/labdesk/internal/domain/treatment"
	"github.com/dentallab/labdesk/internal/platform/metrics"
)

type Handler struct {
	calc    *Calculator
	metrics *metrics.Collector
}

func NewHandler(calc *Calculator, col *metrics.Collector) *Handler {
	return &Handler{calc: calc, metrics: col}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/materials", h.ListMaterials)
	api.POST("/quotes", h.CreateQuote)
}

// PlanGroup is one group of a stateless quote request. UnitPrice, when set,
// overrides the material price for this group.
type PlanGroup struct {
	Teeth     []dentition.PositionID `json:"teeth"`
	UnitPrice *decimal.Decimal       `json:"unit_price,omitempty"`
}

// Plan is a complete treatment plan priced without an editing session.
type Plan struct {
	Material         Material         `json:"material"`
	Groups           []PlanGroup      `json:"groups"`
	Dates            Logistics        `json:"dates"`
	ManualAdjustment *decimal.Decimal `json:"manual_adjustment,omitempty"`
}

// Response pairs the exact quote with its display rounding.
type Response struct {
	Groups  []treatment.Group `json:"groups"`
	Quote   Quote             `json:"quote"`
	Display DisplayTotals     `json:"display"`
}

// Build runs every plan group through a fresh treatment store so the same
// adjacency and disjointness rules apply as in an editing session. Unknown
// positions are reported as a plain error; rule violations, repeated
// positions and negative unit prices as a ValidationError.
func (p Plan) Build() ([]treatment.Group, map[uuid.UUID]decimal.Decimal, error) {
	store := treatment.NewStore()
	overrides := make(map[uuid.UUID]decimal.Decimal)
	for i, pg := range p.Groups {
		seen := make(map[dentition.PositionID]bool, len(pg.Teeth))
		for _, id := range pg.Teeth {
			if !dentition.Valid(id) {
				return nil, nil, fmt.Errorf("group %d: invalid position %q", i+1, id)
			}
			if seen[id] {
				return nil, nil, &treatment.ValidationError{
					Reason: fmt.Sprintf("group %d: position %s is listed more than once", i+1, id),
				}
			}
			seen[id] = true
		}
		if pg.UnitPrice != nil && pg.UnitPrice.IsNegative() {
			return nil, nil, &treatment.ValidationError{
				Reason: fmt.Sprintf("group %d: unit price must not be negative", i+1),
			}
		}
		for _, id := range pg.Teeth {
			if res := store.Toggle(id); res.Action != treatment.ActionSelected {
				return nil, nil, &treatment.ValidationError{
					Reason: fmt.Sprintf("group %d: position %s is already used", i+1, id),
				}
			}
		}
		g, err := store.Commit()
		if err != nil {
			return nil, nil, fmt.Errorf("group %d: %w", i+1, err)
		}
		if pg.UnitPrice != nil {
			overrides[g.ID] = *pg.UnitPrice
		}
	}
	return store.Groups(), overrides, nil
}

// Quote prices the plan with c. The plan must carry a delivery date.
func (p Plan) Quote(c *Calculator) (Response, error) {
	groups, overrides, err := p.Build()
	if err != nil {
		return Response{}, err
	}
	if err := p.Dates.Validate(); err != nil {
		return Response{}, err
	}
	in := Input{Groups: groups, Material: p.Material, Dates: p.Dates, Overrides: overrides}
	if p.ManualAdjustment != nil {
		in.ManualAdjustment = *p.ManualAdjustment
	}
	q := c.Compute(in)
	return Response{Groups: groups, Quote: q, Display: q.Totals.Display()}, nil
}

func (h *Handler) CreateQuote(c echo.Context) error {
	var plan Plan
	if err := c.Bind(&plan); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := plan.Quote(h.calc)
	if err != nil {
		if treatment.IsValidation(err) {
			h.metrics.ValidationFailed("plan")
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	h.metrics.QuoteComputed()
	return c.JSON(http.StatusOK, resp)
}

type materialInfo struct {
	Material  Material        `json:"material"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (h *Handler) ListMaterials(c echo.Context) error {
	out := make([]materialInfo, 0, len(Materials()))
	for _, m := range Materials() {
		out = append(out, materialInfo{Material: m, UnitPrice: h.calc.UnitPrice(m)})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"materials":      out,
		"shipment_cost":  h.calc.ShipmentCost,
		"fallback_price": h.calc.FallbackPrice,
	})
}
