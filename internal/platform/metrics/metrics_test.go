package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCollector_Independent(t *testing.T) {
	a := NewCollector("labdesk")
	b := NewCollector("labdesk")

	a.QuoteComputed()
	a.QuoteComputed()
	if got := testutil.ToFloat64(a.QuotesComputedTotal); got != 2 {
		t.Errorf("expected 2 quotes, got %v", got)
	}
	if got := testutil.ToFloat64(b.QuotesComputedTotal); got != 0 {
		t.Errorf("collectors must not share state, got %v", got)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.GroupCommitted()
	c.ValidationFailed("not_adjacent")
	c.QuoteComputed()
	c.StatusChanged("draft", "submitted")
	c.SessionOpened()
	c.SessionClosed()
	c.SessionExpired()
}

func TestCollector_Labels(t *testing.T) {
	c := NewCollector("labdesk")
	c.ValidationFailed("not_adjacent")
	c.StatusChanged("draft", "submitted")
	c.SessionOpened()
	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed()
	c.SessionExpired()

	if got := testutil.ToFloat64(c.ValidationFailures.WithLabelValues("not_adjacent")); got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(c.StatusTransitionsTotal.WithLabelValues("draft", "submitted")); got != 1 {
		t.Errorf("expected 1 transition, got %v", got)
	}
	if got := testutil.ToFloat64(c.OpenSessions); got != 1 {
		t.Errorf("expected 1 open session, got %v", got)
	}
	if got := testutil.ToFloat64(c.SessionsExpiredTotal); got != 1 {
		t.Errorf("expected 1 expired session, got %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("labdesk")
	c.GroupCommitted()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "labdesk_plan_groups_committed_total 1") {
		t.Error("expected groups committed counter in output")
	}
}
