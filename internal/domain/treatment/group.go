// Package treatment keeps the committed treatment groups of one editing
// session together with the positions currently being selected.
package treatment

import (
	"errors"

	"github.com/google/uuid"

	"github.com/dentallab/labdesk/internal/domain/dentition"
)

// Group is one prosthetic unit: a single element or a bridge over adjacent
// positions.
type Group struct {
	ID         uuid.UUID              `json:"id"`
	GroupIndex int                    `json:"group_index"`
	Teeth      []dentition.PositionID `json:"teeth"`
	IsBridge   bool                   `json:"is_bridge"`
}

// ElementCount is the number of positions the group covers.
func (g Group) ElementCount() int { return len(g.Teeth) }

// Color returns the palette entry keyed by GroupIndex. The index, not the
// group's place in the current list, is the color key.
func (g Group) Color() string { return ColorOf(g.GroupIndex) }

// Contains reports whether the group covers id.
func (g Group) Contains(id dentition.PositionID) bool {
	for _, t := range g.Teeth {
		if t == id {
			return true
		}
	}
	return false
}

func (g Group) clone() Group {
	g.Teeth = append([]dentition.PositionID(nil), g.Teeth...)
	return g
}

// Palette is shared by the chart and the pricing panel.
var Palette = []string{"#3b82f6", "#f59e0b", "#10b981", "#ef4444", "#8b5cf6"}

// ColorOf maps a group index onto the palette.
func ColorOf(groupIndex int) string {
	n := len(Palette)
	return Palette[((groupIndex%n)+n)%n]
}

// ValidationError is a recoverable rejection meant to be shown to the user
// as-is. State is never changed when one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

var (
	ErrEmptySelection = &ValidationError{Reason: "no elements selected"}
	ErrNotAdjacent    = &ValidationError{Reason: "elements are not adjacent; to add distant elements, add them separately"}
	ErrGroupNotFound  = errors.New("treatment group not found")
)
