package labrequest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dentallab/labdesk/internal/domain/dentition"
	"github.com/dentallab/labdesk/internal/domain/quote"
	"github.com/dentallab/labdesk/internal/domain/revision"
	"github.com/dentallab/labdesk/internal/domain/treatment"
	"github.com/dentallab/labdesk/internal/platform/auth"
	"github.com/dentallab/labdesk/internal/platform/metrics"
)

var (
	ErrSessionNotFound = errors.New("editing session not found")
	ErrForbidden       = errors.New("not allowed for this user")
	ErrInvalidPosition = errors.New("invalid position")
)

// Session is one user editing one request. The working copy lives here
// until Save; the persisted request is untouched meanwhile.
type Session struct {
	ID       uuid.UUID
	Owner    string
	Role     auth.Role
	OpenedAt time.Time

	// lastUsed is guarded by the SessionManager's lock.
	lastUsed time.Time

	mu      sync.Mutex
	isNew   bool
	req     *Request
	store   *treatment.Store
	tracker *revision.Session
	calc    *quote.Calculator
	metrics *metrics.Collector
}

func newSession(owner auth.Identity, req *Request, isNew bool, calc *quote.Calculator, col *metrics.Collector) (*Session, error) {
	store := treatment.NewStore()
	if err := store.Restore(req.Groups); err != nil {
		return nil, fmt.Errorf("restore groups: %w", err)
	}
	working := req.Clone()
	working.Groups = store.Groups()
	rec, err := working.ToRecord()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:       uuid.New(),
		Owner:    owner.UserID,
		Role:     owner.Role,
		OpenedAt: time.Now().UTC(),
		isNew:    isNew,
		req:      working,
		store:    store,
		tracker:  revision.NewSession(rec, TrackedPaths...),
		calc:     calc,
		metrics:  col,
	}, nil
}

// View is the session state returned to clients.
type View struct {
	SessionID uuid.UUID              `json:"session_id"`
	Request   *Request               `json:"request"`
	Selection []dentition.PositionID `json:"selection"`
	Colors    map[uuid.UUID]string   `json:"colors"`
	Changed   []string               `json:"changed"`
}

func (s *Session) View() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (s *Session) view() (View, error) {
	changed, err := s.changes()
	if err != nil {
		return View{}, err
	}
	colors := make(map[uuid.UUID]string, len(s.req.Groups))
	for _, g := range s.req.Groups {
		colors[g.ID] = g.Color()
	}
	return View{
		SessionID: s.ID,
		Request:   s.req.Clone(),
		Selection: s.store.Selection(),
		Colors:    colors,
		Changed:   changed,
	}, nil
}

// Toggle flips a position in the selection. A position already in a group is
// reported back as a removal request and nothing changes.
func (s *Session) Toggle(id dentition.PositionID) (treatment.ToggleResult, error) {
	if !dentition.Valid(id) {
		return treatment.ToggleResult{}, fmt.Errorf("%w: %q", ErrInvalidPosition, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Toggle(id), nil
}

func (s *Session) CancelSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.CancelSelection()
}

// Commit turns the selection into a group.
func (s *Session) Commit() (treatment.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.store.Commit()
	if err != nil {
		switch {
		case errors.Is(err, treatment.ErrNotAdjacent):
			s.metrics.ValidationFailed("not_adjacent")
		case errors.Is(err, treatment.ErrEmptySelection):
			s.metrics.ValidationFailed("empty_selection")
		}
		return treatment.Group{}, err
	}
	s.metrics.GroupCommitted()
	s.syncGroups()
	return g, nil
}

// RemoveGroup drops a group and any price override set for it.
func (s *Session) RemoveGroup(groupID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Remove(groupID); err != nil {
		return err
	}
	s.syncGroups()
	return nil
}

// RemoveGroupContaining drops the whole group covering id.
func (s *Session) RemoveGroupContaining(id dentition.PositionID) (treatment.Group, error) {
	if !dentition.Valid(id) {
		return treatment.Group{}, fmt.Errorf("%w: %q", ErrInvalidPosition, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.store.RemoveGroupContaining(id)
	if err != nil {
		return treatment.Group{}, err
	}
	s.syncGroups()
	return g, nil
}

func (s *Session) syncGroups() {
	s.req.Groups = s.store.Groups()
	if len(s.req.Pricing.Overrides) == 0 {
		return
	}
	live := make(map[uuid.UUID]bool, len(s.req.Groups))
	for _, g := range s.req.Groups {
		live[g.ID] = true
	}
	for id := range s.req.Pricing.Overrides {
		if !live[id] {
			delete(s.req.Pricing.Overrides, id)
		}
	}
}

// Details is a partial update of the form fields. Nil fields are left alone.
type Details struct {
	PatientRef *string          `json:"patient_ref"`
	Material   *quote.Material  `json:"material"`
	Shade      *string          `json:"shade"`
	Notes      *string          `json:"notes"`
	Dates      *quote.Logistics `json:"dates"`
}

func (s *Session) UpdateDetails(d Details) error {
	if d.Material != nil && *d.Material == "" {
		return &treatment.ValidationError{Reason: "material is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.PatientRef != nil {
		s.req.PatientRef = d.PatientRef
	}
	if d.Material != nil {
		s.req.TechnicalInfo.Material = *d.Material
	}
	if d.Shade != nil {
		s.req.TechnicalInfo.Shade = d.Shade
	}
	if d.Notes != nil {
		s.req.TechnicalInfo.Notes = d.Notes
	}
	if d.Dates != nil {
		s.req.Dates = *d.Dates
	}
	return nil
}

// PricingUpdate replaces the manual pricing inputs. Overrides replaces the
// whole override map when non-nil; a group id that is not in the session is
// rejected.
type PricingUpdate struct {
	Overrides        map[uuid.UUID]decimal.Decimal `json:"overrides"`
	ManualAdjustment *decimal.Decimal              `json:"manual_adjustment"`
}

// UpdatePricing is reserved to the lab.
func (s *Session) UpdatePricing(p PricingUpdate) error {
	if s.Role != auth.RoleAdmin {
		return ErrForbidden
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Overrides != nil {
		next := make(map[uuid.UUID]decimal.Decimal, len(p.Overrides))
		for id, price := range p.Overrides {
			if price.IsNegative() {
				return &treatment.ValidationError{Reason: fmt.Sprintf("unit price for group %s must not be negative", id)}
			}
			if !s.hasGroup(id) {
				return &treatment.ValidationError{Reason: fmt.Sprintf("group %s is not part of this plan", id)}
			}
			next[id] = price
		}
		s.req.Pricing.Overrides = next
	}
	if p.ManualAdjustment != nil {
		s.req.Pricing.ManualAdjustment = *p.ManualAdjustment
	}
	return nil
}

func (s *Session) hasGroup(id uuid.UUID) bool {
	for _, g := range s.req.Groups {
		if g.ID == id {
			return true
		}
	}
	return false
}

// QuoteView is the live quote of the working copy.
type QuoteView struct {
	Quote   quote.Quote         `json:"quote"`
	Display quote.DisplayTotals `json:"display"`
}

func (s *Session) Quote() QuoteView {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.calc.Compute(s.req.QuoteInput())
	return QuoteView{Quote: q, Display: q.Totals.Display()}
}

// Changes lists the tracked fields that differ from the opened request.
func (s *Session) Changes() ([]revision.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.req.ToRecord()
	if err != nil {
		return nil, err
	}
	return s.tracker.Details(cur), nil
}

func (s *Session) changes() ([]string, error) {
	cur, err := s.req.ToRecord()
	if err != nil {
		return nil, err
	}
	return s.tracker.Changes(cur), nil
}

// DefaultSessionIdleTTL is how long an untouched session survives.
const DefaultSessionIdleTTL = 2 * time.Hour

// SessionManager is the in-memory registry of open editing sessions.
// Sessions nobody has touched for idleTTL are dropped by the cleanup loop.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	idleTTL  time.Duration
	now      func() time.Time
	metrics  *metrics.Collector
}

func NewSessionManager(col *metrics.Collector, idleTTL time.Duration) *SessionManager {
	if idleTTL <= 0 {
		idleTTL = DefaultSessionIdleTTL
	}
	return &SessionManager{
		sessions: make(map[uuid.UUID]*Session),
		idleTTL:  idleTTL,
		now:      time.Now,
		metrics:  col,
	}
}

func (m *SessionManager) add(s *Session) {
	m.mu.Lock()
	s.lastUsed = m.now()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.metrics.SessionOpened()
}

// Get returns the session if it exists and belongs to userID, and marks it
// as used.
func (m *SessionManager) Get(id uuid.UUID, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Owner != userID {
		return nil, ErrForbidden
	}
	s.lastUsed = m.now()
	return s, nil
}

// Close forgets a session. Closing an unknown session is a no-op.
func (m *SessionManager) Close(id uuid.UUID) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		m.metrics.SessionClosed()
	}
}

// Len is the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// openOn returns the session userID already has open on requestID, if any.
func (m *SessionManager) openOn(requestID uuid.UUID, userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Owner == userID && !s.isNew && s.req.ID == requestID {
			s.lastUsed = m.now()
			return s
		}
	}
	return nil
}

// StartCleanup drops idle sessions in the background until ctx is done.
func (m *SessionManager) StartCleanup(ctx context.Context) {
	interval := m.idleTTL / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.cleanup()
			}
		}
	}()
}

// cleanup removes sessions idle for at least idleTTL and reports how many.
// Unsaved edits in them are lost; the stored request is unaffected.
func (m *SessionManager) cleanup() int {
	now := m.now()

	m.mu.Lock()
	var expired int
	for id, s := range m.sessions {
		if now.Sub(s.lastUsed) >= m.idleTTL {
			delete(m.sessions, id)
			expired++
		}
	}
	m.mu.Unlock()

	for i := 0; i < expired; i++ {
		m.metrics.SessionExpired()
	}
	return expired
}
