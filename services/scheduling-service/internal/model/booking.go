package model

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentNotRequired PaymentStatus = "not_required"
	PaymentUnpaid      PaymentStatus = "unpaid"
	PaymentPaid        PaymentStatus = "paid"
)

type Booking struct {
	ID            string        `json:"id"`
	BusinessID    string        `json:"businessId"`
	ServiceID     string        `json:"serviceId"`
	ResourceID    string        `json:"resourceId,omitempty"`
	ProviderID    string        `json:"providerId,omitempty"`
	ScheduledAt   time.Time     `json:"scheduledAt"`
	EndAt         time.Time     `json:"endAt"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	CustomerName  string        `json:"customerName,omitempty"`
	CustomerEmail string        `json:"customerEmail,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	CancelledAt   *time.Time    `json:"cancelledAt,omitempty"`
	// IdempotencyKey is the client key the booking was created with, if any.
	IdempotencyKey string `json:"-"`
}

// Occupies reports whether the booking, widened by buffer on both sides, intersects [start, end).
func (b Booking) Occupies(start, end time.Time, buffer time.Duration) bool {
	if b.Status == BookingCancelled {
		return false
	}
	return b.ScheduledAt.Add(-buffer).Before(end) && start.Before(b.EndAt.Add(buffer))
}

// transitions lists the statuses each status may move to.
var transitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCompleted, BookingCancelled},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedFrom returns the statuses from which to is reachable.
func AllowedFrom(to BookingStatus) []BookingStatus {
	var out []BookingStatus
	for from, targets := range transitions {
		for _, t := range targets {
			if t == to {
				out = append(out, from)
			}
		}
	}
	return out
}

// PromoteRequest converts the session's hold on (BusinessID, ResourceID, ScheduledAt)
// of Booking into the booking itself.
type PromoteRequest struct {
	Booking   Booking
	SessionID string
	Buffer    time.Duration
	Now       time.Time
}

// CapacityRequest inserts Booking when fewer than Limit in-scope bookings overlap it.
// An unbounded request skips the count. Scope is the provider when ProviderID is set,
// otherwise the whole business.
type CapacityRequest struct {
	Booking Booking
	Limit   int
	Bounded bool
	Buffer  time.Duration
}

type BookingFilter struct {
	BusinessID string
	From       time.Time
	To         time.Time
	Status     BookingStatus
	Limit      int
}
