package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
	"github.com/segmentio/kafka-go"
)

type businessEvent struct {
	BusinessID         string `json:"business_id"`
	Name               string `json:"name"`
	Timezone           string `json:"timezone"`
	CapacityMode       string `json:"capacity_mode"`
	MaxBookingsPerSlot *int   `json:"max_bookings_per_slot"`
	MinLeadTimeMinutes int    `json:"min_lead_time_minutes"`
	RequiresPayment    bool   `json:"requires_payment"`
}

type serviceEvent struct {
	ServiceID        string `json:"service_id"`
	BusinessID       string `json:"business_id"`
	Name             string `json:"name"`
	DurationMinutes  int    `json:"duration_minutes"`
	RequiresResource bool   `json:"requires_resource"`
	Active           *bool  `json:"active"`
}

// HandleBusinessEvent consumes business.profile.updated.v1.
func (s *Service) HandleBusinessEvent(ctx context.Context, msg kafka.Message) error {
	var evt businessEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("decode business event: %w", err)
	}
	_, err := s.ApplyBusiness(ctx, model.Business{
		ID:       evt.BusinessID,
		Name:     evt.Name,
		Timezone: evt.Timezone,
		Capacity: model.BookingCapacityConfig{
			Mode:               model.CapacityMode(evt.CapacityMode),
			MaxBookingsPerSlot: evt.MaxBookingsPerSlot,
		},
		MinLeadTimeMinutes: evt.MinLeadTimeMinutes,
		RequiresPayment:    evt.RequiresPayment,
	})
	return err
}

// HandleServiceEvent consumes business.service.upserted.v1. A missing active flag means active.
func (s *Service) HandleServiceEvent(ctx context.Context, msg kafka.Message) error {
	var evt serviceEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("decode service event: %w", err)
	}
	active := true
	if evt.Active != nil {
		active = *evt.Active
	}
	_, err := s.ApplyService(ctx, model.Service{
		ID:               evt.ServiceID,
		BusinessID:       evt.BusinessID,
		Name:             evt.Name,
		DurationMinutes:  evt.DurationMinutes,
		RequiresResource: evt.RequiresResource,
		Active:           active,
	})
	return err
}
