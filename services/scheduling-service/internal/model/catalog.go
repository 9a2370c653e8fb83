package model

import "time"

type CapacityMode string

const (
	CapacitySingle   CapacityMode = "SINGLE"
	CapacityMultiple CapacityMode = "MULTIPLE"
)

// BookingCapacityConfig limits concurrent bookings per slot for a business.
type BookingCapacityConfig struct {
	Mode               CapacityMode `json:"mode"`
	MaxBookingsPerSlot *int         `json:"maxBookingsPerSlot"`
}

// Limit reports the per-slot booking limit. SINGLE (and the zero mode) allows one
// booking; MULTIPLE with no max is unbounded.
func (c BookingCapacityConfig) Limit() (limit int, bounded bool) {
	switch c.Mode {
	case CapacityMultiple:
		if c.MaxBookingsPerSlot == nil {
			return 0, false
		}
		return *c.MaxBookingsPerSlot, true
	default:
		return 1, true
	}
}

// Business is the read-only slice of business configuration the scheduling core consumes.
type Business struct {
	ID                 string                `json:"businessId"`
	Name               string                `json:"name,omitempty"`
	Timezone           string                `json:"timezone"`
	Capacity           BookingCapacityConfig `json:"bookingCapacityConfig"`
	MinLeadTimeMinutes int                   `json:"minLeadTimeMinutes"`
	RequiresPayment    bool                  `json:"requiresPayment"`
	UpdatedAt          time.Time             `json:"updatedAt"`
}

type Service struct {
	ID               string    `json:"serviceId"`
	BusinessID       string    `json:"businessId"`
	Name             string    `json:"name,omitempty"`
	DurationMinutes  int       `json:"durationMinutes"`
	RequiresResource bool      `json:"requiresResource"`
	Active           bool      `json:"active"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}
