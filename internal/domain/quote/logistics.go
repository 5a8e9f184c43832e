package quote

import (
	"time"

	"github.com/dentallab/labdesk/internal/domain/treatment"
)

// MaxTryIns is the number of optional intermediate fitting dates.
const MaxTryIns = 3

var ErrMissingDelivery = &treatment.ValidationError{Reason: "delivery date is required"}

// Logistics holds the delivery date and up to three fitting (try-in) dates.
// Each populated date is one shipment.
type Logistics struct {
	Delivery *time.Time `json:"delivery,omitempty"`
	TryIn1   *time.Time `json:"try_in_1,omitempty"`
	TryIn2   *time.Time `json:"try_in_2,omitempty"`
	TryIn3   *time.Time `json:"try_in_3,omitempty"`
}

// TryIns returns the fitting dates in order, nil where unset.
func (l Logistics) TryIns() [MaxTryIns]*time.Time {
	return [MaxTryIns]*time.Time{l.TryIn1, l.TryIn2, l.TryIn3}
}

// ShipmentCount is one for delivery plus one per populated fitting date.
func (l Logistics) ShipmentCount() int {
	n := 1
	for _, d := range l.TryIns() {
		if set(d) {
			n++
		}
	}
	return n
}

// Validate checks the mandatory delivery date.
func (l Logistics) Validate() error {
	if !set(l.Delivery) {
		return ErrMissingDelivery
	}
	return nil
}

func set(t *time.Time) bool {
	return t != nil && !t.IsZero()
}
