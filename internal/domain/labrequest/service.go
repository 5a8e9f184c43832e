package labrequest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentallab/labdesk/internal/domain/quote"
	"github.com/dentallab/labdesk/internal/domain/treatment"
	"github.com/dentallab/labdesk/internal/platform/auth"
	"github.com/dentallab/labdesk/internal/platform/metrics"
)

var (
	errNoGroups       = &treatment.ValidationError{Reason: "add at least one element before submitting"}
	errReasonRequired = &treatment.ValidationError{Reason: "a rejection reason is required"}
	errNotEditable    = &treatment.ValidationError{Reason: "request cannot be edited in its current status"}
)

// Service drives requests through the doctor/lab workflow.
type Service struct {
	repo     Repository
	calc     *quote.Calculator
	sessions *SessionManager
	metrics  *metrics.Collector
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, calc *quote.Calculator, sessions *SessionManager, col *metrics.Collector, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		calc:     calc,
		sessions: sessions,
		metrics:  col,
		logger:   logger.With().Str("component", "labrequest").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Sessions() *SessionManager { return s.sessions }

// OpenNew starts a blank draft. Only doctors create requests.
func (s *Service) OpenNew(id auth.Identity) (*Session, error) {
	if id.Role != auth.RoleDoctor {
		return nil, ErrForbidden
	}
	req := &Request{
		ID:            uuid.New(),
		DoctorID:      id.UserID,
		TechnicalInfo: TechnicalInfo{Material: quote.Zirconia},
		Status:        StatusDraft,
	}
	if id.Name != "" {
		name := id.Name
		req.DoctorName = &name
	}
	sess, err := newSession(id, req, true, s.calc, s.metrics)
	if err != nil {
		return nil, err
	}
	s.sessions.add(sess)
	return sess, nil
}

// Open starts editing a stored request. Doctors may edit their own drafts and
// rejected requests; the lab edits submitted ones, and opening a submitted
// request marks it in review. Reopening returns the caller's existing session.
func (s *Service) Open(ctx context.Context, id auth.Identity, requestID uuid.UUID) (*Session, error) {
	if existing := s.sessions.openOn(requestID, id.UserID); existing != nil {
		return existing, nil
	}
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch id.Role {
	case auth.RoleDoctor:
		if req.DoctorID != id.UserID {
			return nil, ErrNotFound
		}
		if !req.Status.DoctorEditable() {
			return nil, errNotEditable
		}
	case auth.RoleAdmin:
		if !req.Status.AdminEditable() {
			return nil, errNotEditable
		}
		if req.Status == StatusSubmitted {
			if err := s.transition(ctx, req, StatusInReview); err != nil {
				return nil, err
			}
		}
	default:
		return nil, ErrForbidden
	}

	sess, err := newSession(id, req, false, s.calc, s.metrics)
	if err != nil {
		return nil, err
	}
	s.sessions.add(sess)
	return sess, nil
}

// Save persists the session's working copy and closes the session. For a
// doctor this submits the request to the lab; for the lab it freezes the
// quote and hands the request back for signature.
func (s *Service) Save(ctx context.Context, sess *Session) (*Request, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	req := sess.req.Clone()
	from := req.Status
	var to Status
	switch sess.Role {
	case auth.RoleDoctor:
		if len(req.Groups) == 0 {
			return nil, errNoGroups
		}
		if err := req.Dates.Validate(); err != nil {
			return nil, err
		}
		to = StatusSubmitted
	case auth.RoleAdmin:
		to = StatusAwaitingSignature
	default:
		return nil, ErrForbidden
	}
	if !from.CanTransition(to) {
		return nil, &TransitionError{From: from, To: to}
	}

	q := s.calc.Compute(req.QuoteInput())
	req.Quote = &q
	req.Status = to
	if to == StatusSubmitted {
		now := s.now()
		req.SubmittedAt = &now
		req.RejectionReason = nil
	}

	var err error
	if sess.isNew {
		err = s.repo.Create(ctx, req)
	} else {
		err = s.repo.Update(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	s.metrics.QuoteComputed()
	s.statusChanged(req, from, to)
	s.logger.Info().
		Str("request_id", req.ID.String()).
		Str("user_id", sess.Owner).
		Str("grand_total", quote.FormatAmount(q.Totals.GrandTotal)).
		Int("groups", len(req.Groups)).
		Msg("request saved")
	s.sessions.Close(sess.ID)
	return req, nil
}

// Discard drops the session without saving.
func (s *Service) Discard(sess *Session) {
	s.sessions.Close(sess.ID)
}

// Get returns a request visible to the caller.
func (s *Service) Get(ctx context.Context, id auth.Identity, requestID uuid.UUID) (*Request, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if id.Role == auth.RoleDoctor && req.DoctorID != id.UserID {
		// Other doctors' requests do not exist as far as the caller knows.
		return nil, ErrNotFound
	}
	return req, nil
}

// List returns a page of requests. Doctors only see their own.
func (s *Service) List(ctx context.Context, id auth.Identity, status Status, limit, offset int) ([]*Request, int, error) {
	filter := ListFilter{Status: status}
	if id.Role != auth.RoleAdmin {
		filter.DoctorID = id.UserID
	}
	return s.repo.List(ctx, filter, limit, offset)
}

// Sign is the prescribing doctor's acceptance of the lab's quote.
func (s *Service) Sign(ctx context.Context, id auth.Identity, requestID uuid.UUID) (*Request, error) {
	if id.Role != auth.RoleDoctor {
		return nil, ErrForbidden
	}
	req, err := s.Get(ctx, id, requestID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	req.SignedAt = &now
	if err := s.transition(ctx, req, StatusSigned); err != nil {
		return nil, err
	}
	return req, nil
}

// Reject sends a request back to the doctor with a reason.
func (s *Service) Reject(ctx context.Context, id auth.Identity, requestID uuid.UUID, reason string) (*Request, error) {
	if id.Role != auth.RoleAdmin {
		return nil, ErrForbidden
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errReasonRequired
	}
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	req.RejectionReason = &reason
	if err := s.transition(ctx, req, StatusRejected); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) transition(ctx context.Context, req *Request, to Status) error {
	from := req.Status
	if !from.CanTransition(to) {
		return &TransitionError{From: from, To: to}
	}
	req.Status = to
	if err := s.repo.Update(ctx, req); err != nil {
		req.Status = from
		return err
	}
	s.statusChanged(req, from, to)
	return nil
}

func (s *Service) statusChanged(req *Request, from, to Status) {
	s.metrics.StatusChanged(string(from), string(to))
	s.logger.Info().
		Str("request_id", req.ID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Int("version", req.Version).
		Msg("status changed")
}
