package revision

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHandler_DiffRecords(t *testing.T) {
	h := NewHandler()
	e := echo.New()
	body := `{
		"original": {"technical_info": {"material": "zirconio"}, "pricing": {"manual_adjustment": 0}},
		"current":  {"technical_info": {"material": "pmma"}, "pricing": {"manual_adjustment": "0"}},
		"paths": ["technical_info.material", "pricing.manual_adjustment"]
	}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.DiffRecords(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp diffResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Changed) != 1 || resp.Changed[0] != "technical_info.material" {
		t.Errorf("unexpected changed paths %v", resp.Changed)
	}
}

func TestHandler_DiffRecords_Empty(t *testing.T) {
	h := NewHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.DiffRecords(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
