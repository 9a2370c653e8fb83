// Package events builds the outbox envelopes published by the scheduling service.
package events

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/outbox"
)

const (
	HoldCreated   = "resource.hold.created.v1"
	HoldReleased  = "resource.hold.released.v1"
	HoldExpired   = "resource.hold.expired.v1"
	HoldPromoted  = "resource.hold.promoted.v1"
	BookingPrefix = "booking."

	// Consumed topics.
	BusinessProfileUpdated = "business.profile.updated.v1"
	ServiceUpserted        = "business.service.upserted.v1"
)

type holdPayload struct {
	BusinessID  string `json:"business_id"`
	ServiceID   string `json:"service_id"`
	ResourceID  string `json:"resource_id"`
	ScheduledAt string `json:"scheduled_at"`
	EndsAt      string `json:"ends_at"`
	SessionID   string `json:"session_id"`
	ExpiresAt   string `json:"expires_at"`
	BookingID   string `json:"booking_id,omitempty"`
}

// Hold builds a hold lifecycle event. bookingID is only set for promotions.
func Hold(eventType string, h model.Hold, bookingID string) outbox.Event {
	payload, _ := json.Marshal(holdPayload{
		BusinessID:  h.BusinessID,
		ServiceID:   h.ServiceID,
		ResourceID:  h.ResourceID,
		ScheduledAt: h.ScheduledAt.UTC().Format(time.RFC3339),
		EndsAt:      h.EndsAt.UTC().Format(time.RFC3339),
		SessionID:   h.SessionID,
		ExpiresAt:   h.ExpiresAt.UTC().Format(time.RFC3339Nano),
		BookingID:   bookingID,
	})
	return outbox.Event{
		AggregateType: "resource_hold",
		AggregateID:   h.BusinessID + ":" + h.ResourceID + ":" + h.ScheduledAt.UTC().Format(time.RFC3339),
		EventType:     eventType,
		Payload:       payload,
	}
}

type bookingPayload struct {
	BookingID     string `json:"booking_id"`
	BusinessID    string `json:"business_id"`
	ServiceID     string `json:"service_id"`
	ResourceID    string `json:"resource_id,omitempty"`
	ProviderID    string `json:"provider_id,omitempty"`
	ScheduledAt   string `json:"scheduled_at"`
	EndAt         string `json:"end_at"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

// BookingType maps a booking status to its event type: booking.<status>.v1,
// with pending and fresh confirmed bookings reported as created.
func BookingType(b model.Booking, created bool) string {
	if created {
		return BookingPrefix + "created.v1"
	}
	return BookingPrefix + string(b.Status) + ".v1"
}

func Booking(b model.Booking, created bool) outbox.Event {
	payload, _ := json.Marshal(bookingPayload{
		BookingID:     b.ID,
		BusinessID:    b.BusinessID,
		ServiceID:     b.ServiceID,
		ResourceID:    b.ResourceID,
		ProviderID:    b.ProviderID,
		ScheduledAt:   b.ScheduledAt.UTC().Format(time.RFC3339),
		EndAt:         b.EndAt.UTC().Format(time.RFC3339),
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		CustomerName:  b.CustomerName,
		CustomerEmail: b.CustomerEmail,
	})
	return outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     BookingType(b, created),
		Payload:       payload,
	}
}
