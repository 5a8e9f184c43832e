package quote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dentallab/labdesk/internal/platform/metrics"
)

func newTestHandler() (*Handler, *metrics.Collector, *echo.Echo) {
	col := metrics.NewCollector("test")
	return NewHandler(DefaultCalculator(), col), col, echo.New()
}

func postQuote(h *Handler, e *echo.Echo, body string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, h.CreateQuote(c)
}

func TestHandler_CreateQuote(t *testing.T) {
	h, col, e := newTestHandler()
	body := `{
		"material": "zirconio",
		"groups": [{"teeth": ["11"]}, {"teeth": ["37", "36"]}],
		"dates": {"delivery": "2026-03-20T00:00:00Z", "try_in_1": "2026-03-10T00:00:00Z"}
	}`
	rec, err := postQuote(h, e, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Groups []struct {
			Teeth      []string `json:"teeth"`
			GroupIndex int      `json:"group_index"`
		} `json:"groups"`
		Display DisplayTotals `json:"display"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Display.GrandTotal != "376.00" || resp.Display.ElementsTotal != "360.00" {
		t.Errorf("unexpected totals %+v", resp.Display)
	}
	if len(resp.Groups) != 2 || resp.Groups[1].Teeth[0] != "36" || resp.Groups[1].GroupIndex != 1 {
		t.Errorf("unexpected groups %+v", resp.Groups)
	}
	if testutil.ToFloat64(col.QuotesComputedTotal) != 1 {
		t.Error("expected quote counter to increase")
	}
}

func TestHandler_CreateQuote_Override(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"material":"pmma","groups":[{"teeth":["21","22"],"unit_price":"50.25"}],"dates":{"delivery":"2026-03-20T00:00:00Z"},"manual_adjustment":"-8"}`
	rec, err := postQuote(h, e, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// 2 * 50.25 + 8 shipment - 8 adjustment
	if resp.Display.GrandTotal != "100.50" {
		t.Errorf("expected 100.50, got %s", resp.Display.GrandTotal)
	}
	if !resp.Quote.Lines[0].Overridden {
		t.Error("expected overridden line")
	}
}

func TestHandler_CreateQuote_NotAdjacent(t *testing.T) {
	h, col, e := newTestHandler()
	_, err := postQuote(h, e, `{"material":"zirconio","groups":[{"teeth":["11","22"]}]}`)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
	if testutil.ToFloat64(col.ValidationFailures.WithLabelValues("plan")) != 1 {
		t.Error("expected validation failure counter to increase")
	}
}

func TestHandler_CreateQuote_OverlappingGroups(t *testing.T) {
	h, _, e := newTestHandler()
	_, err := postQuote(h, e, `{"material":"zirconio","groups":[{"teeth":["11","12"]},{"teeth":["12"]}]}`)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestHandler_CreateQuote_InvalidPosition(t *testing.T) {
	h, _, e := newTestHandler()
	_, err := postQuote(h, e, `{"material":"zirconio","groups":[{"teeth":["19"]}]}`)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_CreateQuote_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			"missing delivery",
			`{"material":"zirconio","groups":[{"teeth":["11"]}]}`,
			"delivery date is required",
		},
		{
			"negative unit price",
			`{"material":"zirconio","groups":[{"teeth":["11"],"unit_price":"-500"}],"dates":{"delivery":"2026-03-20T00:00:00Z"}}`,
			"unit price must not be negative",
		},
		{
			"repeated position",
			`{"material":"zirconio","groups":[{"teeth":["11","11"]}],"dates":{"delivery":"2026-03-20T00:00:00Z"}}`,
			"position 11 is listed more than once",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, col, e := newTestHandler()
			_, err := postQuote(h, e, tt.body)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %v", err)
			}
			if msg, _ := httpErr.Message.(string); !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("expected message containing %q, got %v", tt.wantMsg, httpErr.Message)
			}
			if testutil.ToFloat64(col.QuotesComputedTotal) != 0 {
				t.Error("rejected plans must not count as computed quotes")
			}
		})
	}
}

func TestHandler_ListMaterials(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := h.ListMaterials(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"resina_composita"`) {
		t.Errorf("expected all materials listed, got %s", rec.Body.String())
	}
}
