// Package labrequest carries a treatment plan from the prescribing doctor to
// the lab admin and back for signature. Editing happens in sessions built on
// the treatment store; saved requests go to a Repository.
package labrequest

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dentallab/labdesk/internal/domain/quote"
	"github.com/dentallab/labdesk/internal/domain/revision"
	"github.com/dentallab/labdesk/internal/domain/treatment"
)

type Status string

const (
	StatusDraft             Status = "draft"
	StatusSubmitted         Status = "submitted"
	StatusInReview          Status = "in_review"
	StatusAwaitingSignature Status = "awaiting_signature"
	StatusSigned            Status = "signed"
	StatusRejected          Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusDraft:             {StatusSubmitted},
	StatusRejected:          {StatusSubmitted},
	StatusSubmitted:         {StatusInReview, StatusAwaitingSignature, StatusRejected},
	StatusInReview:          {StatusAwaitingSignature, StatusRejected},
	StatusAwaitingSignature: {StatusSigned},
}

// CanTransition reports whether a request may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DoctorEditable is true while the doctor still owns the plan.
func (s Status) DoctorEditable() bool {
	return s == StatusDraft || s == StatusRejected
}

// AdminEditable is true while the lab is reviewing the plan.
func (s Status) AdminEditable() bool {
	return s == StatusSubmitted || s == StatusInReview
}

var (
	ErrNotFound        = errors.New("lab request not found")
	ErrVersionConflict = errors.New("lab request was modified by someone else")
)

// TransitionError is returned for a status change the workflow does not
// allow.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move request from %s to %s", e.From, e.To)
}

// TechnicalInfo is the prescription part of the form.
type TechnicalInfo struct {
	Material quote.Material `json:"material"`
	Shade    *string        `json:"shade,omitempty"`
	Notes    *string        `json:"notes,omitempty"`
}

// Pricing holds the manual inputs to the quote. The quote itself is derived.
type Pricing struct {
	Overrides        map[uuid.UUID]decimal.Decimal `json:"overrides,omitempty"`
	ManualAdjustment decimal.Decimal               `json:"manual_adjustment"`
}

// Request is one lab order.
type Request struct {
	ID              uuid.UUID         `json:"id"`
	DoctorID        string            `json:"doctor_id"`
	DoctorName      *string           `json:"doctor_name,omitempty"`
	PatientRef      *string           `json:"patient_ref,omitempty"`
	TechnicalInfo   TechnicalInfo     `json:"technical_info"`
	Groups          []treatment.Group `json:"groups"`
	Dates           quote.Logistics   `json:"dates"`
	Pricing         Pricing           `json:"pricing"`
	Quote           *quote.Quote      `json:"quote,omitempty"`
	Status          Status            `json:"status"`
	RejectionReason *string           `json:"rejection_reason,omitempty"`
	Version         int               `json:"version"`
	SubmittedAt     *time.Time        `json:"submitted_at,omitempty"`
	SignedAt        *time.Time        `json:"signed_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Clone returns a copy that shares no slices or maps with r.
func (r *Request) Clone() *Request {
	c := *r
	c.Groups = make([]treatment.Group, len(r.Groups))
	for i, g := range r.Groups {
		g.Teeth = append(g.Teeth[:0:0], g.Teeth...)
		c.Groups[i] = g
	}
	if r.Pricing.Overrides != nil {
		c.Pricing.Overrides = make(map[uuid.UUID]decimal.Decimal, len(r.Pricing.Overrides))
		for k, v := range r.Pricing.Overrides {
			c.Pricing.Overrides[k] = v
		}
	}
	if r.Quote != nil {
		q := *r.Quote
		q.Lines = append([]quote.LineItem(nil), r.Quote.Lines...)
		c.Quote = &q
	}
	return &c
}

// QuoteInput assembles the calculator input from the request.
func (r *Request) QuoteInput() quote.Input {
	return quote.Input{
		Groups:           r.Groups,
		Material:         r.TechnicalInfo.Material,
		Dates:            r.Dates,
		Overrides:        r.Pricing.Overrides,
		ManualAdjustment: r.Pricing.ManualAdjustment,
	}
}

// TrackedPaths are the editable fields highlighted when they differ from the
// version the editor opened.
var TrackedPaths = []string{
	"patient_ref",
	"technical_info.material",
	"technical_info.shade",
	"technical_info.notes",
	"groups",
	"dates.delivery",
	"dates.try_in_1",
	"dates.try_in_2",
	"dates.try_in_3",
	"pricing.overrides",
	"pricing.manual_adjustment",
}

// editable is the part of a request a user can change in a session.
type editable struct {
	PatientRef    *string           `json:"patient_ref"`
	TechnicalInfo TechnicalInfo     `json:"technical_info"`
	Groups        []treatment.Group `json:"groups"`
	Dates         quote.Logistics   `json:"dates"`
	Pricing       Pricing           `json:"pricing"`
}

// ToRecord renders the editable fields for revision diffing.
func (r *Request) ToRecord() (revision.Record, error) {
	return revision.FromStruct(editable{
		PatientRef:    r.PatientRef,
		TechnicalInfo: r.TechnicalInfo,
		Groups:        r.Groups,
		Dates:         r.Dates,
		Pricing:       r.Pricing,
	})
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	DoctorID string
	Status   Status
}
