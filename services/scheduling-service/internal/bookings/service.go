// Package bookings is the booking ledger: creation by hold promotion or capacity
// check, status transitions and listing.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/bookpro/libs/otel"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type Store interface {
	GetBusiness(ctx context.Context, businessID string) (model.Business, error)
	GetService(ctx context.Context, businessID, serviceID string) (model.Service, error)
	GetTemplate(ctx context.Context, key model.EntityKey) (model.AvailabilityTemplate, error)

	// PromoteHold deletes the session's hold and inserts the booking in one atomic step.
	// It fails with ErrConflict when the session holds nothing on the key or the
	// resource is booked, and with ErrExpired when the hold has run out.
	PromoteHold(ctx context.Context, req model.PromoteRequest) (model.Booking, error)
	// InsertBooking enforces the capacity limit and inserts atomically, failing with ErrConflict when full.
	InsertBooking(ctx context.Context, req model.CapacityRequest) (model.Booking, error)

	GetBooking(ctx context.Context, bookingID string) (model.Booking, error)
	FindByIdempotencyKey(ctx context.Context, businessID, key string) (model.Booking, error)
	// UpdateBookingStatus moves a booking currently in one of from to status to.
	UpdateBookingStatus(ctx context.Context, bookingID string, from []model.BookingStatus, to model.BookingStatus, now time.Time) (model.Booking, error)
	ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error)
}

// SlotChecker validates that a time is an open grid slot.
type SlotChecker interface {
	CheckSlot(ctx context.Context, businessID, serviceID string, key model.EntityKey, at time.Time) error
}

type Service struct {
	store Store
	slots SlotChecker
	now   func() time.Time
	newID func() string
}

func NewService(store Store, slots SlotChecker) *Service {
	return &Service{store: store, slots: slots, now: time.Now, newID: uuid.NewString}
}

// WithClock replaces time.Now, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateRequest struct {
	BusinessID    string    `json:"businessId"`
	ServiceID     string    `json:"serviceId"`
	ScheduledAt   time.Time `json:"scheduledAt"`
	ResourceID    string    `json:"resourceId,omitempty"`
	ProviderID    string    `json:"providerId,omitempty"`
	SessionID     string    `json:"sessionId,omitempty"`
	CustomerName  string    `json:"customerName,omitempty"`
	CustomerEmail string    `json:"customerEmail,omitempty"`
}

// Create books a slot. Resource services promote the session's hold; other services
// go through the capacity check. A repeated idempotency key returns the first
// booking with replayed=true.
func (s *Service) Create(ctx context.Context, req CreateRequest, idempotencyKey string) (b model.Booking, replayed bool, err error) {
	ctx, span := otelx.Tracer("scheduling-service/bookings").Start(ctx, "bookings.create")
	defer span.End()
	span.SetAttributes(attribute.String("business.id", req.BusinessID), attribute.String("service.id", req.ServiceID))

	if err := validateCreate(&req); err != nil {
		return model.Booking{}, false, err
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey != "" {
		if prior, ok, err := s.replay(ctx, req.BusinessID, idempotencyKey); err != nil || ok {
			return prior, ok, err
		}
	}

	biz, err := s.store.GetBusiness(ctx, req.BusinessID)
	if err != nil {
		return model.Booking{}, false, err
	}
	svc, err := s.store.GetService(ctx, req.BusinessID, req.ServiceID)
	if err != nil {
		return model.Booking{}, false, err
	}
	if !svc.Active {
		return model.Booking{}, false, fmt.Errorf("%w: service %s is inactive", model.ErrNotFound, req.ServiceID)
	}
	if svc.RequiresResource && (req.ResourceID == "" || req.SessionID == "") {
		return model.Booking{}, false, fmt.Errorf("%w: resourceId and sessionId are required for this service", model.ErrValidation)
	}
	if !svc.RequiresResource && req.ResourceID != "" {
		return model.Booking{}, false, fmt.Errorf("%w: service %s does not use resources", model.ErrValidation, req.ServiceID)
	}

	key := model.EntityKey{BusinessID: req.BusinessID, EntityType: model.EntityBusiness}
	if req.ProviderID != "" {
		key = model.EntityKey{BusinessID: req.BusinessID, EntityType: model.EntityProvider, EntityID: req.ProviderID}
	}
	if err := s.slots.CheckSlot(ctx, req.BusinessID, req.ServiceID, key, req.ScheduledAt); err != nil {
		return model.Booking{}, false, err
	}
	buffer, err := s.buffer(ctx, key)
	if err != nil {
		return model.Booking{}, false, err
	}

	now := s.now()
	booking := model.Booking{
		ID:             s.newID(),
		BusinessID:     req.BusinessID,
		ServiceID:      req.ServiceID,
		ResourceID:     req.ResourceID,
		ProviderID:     req.ProviderID,
		ScheduledAt:    req.ScheduledAt,
		EndAt:          req.ScheduledAt.Add(svc.Duration()),
		Status:         model.BookingConfirmed,
		PaymentStatus:  model.PaymentNotRequired,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CreatedAt:      now,
		UpdatedAt:      now,
		IdempotencyKey: idempotencyKey,
	}
	if biz.RequiresPayment {
		booking.Status = model.BookingPending
		booking.PaymentStatus = model.PaymentUnpaid
	}

	if svc.RequiresResource {
		b, err = s.store.PromoteHold(ctx, model.PromoteRequest{Booking: booking, SessionID: req.SessionID, Buffer: buffer, Now: now})
	} else {
		limit, bounded := biz.Capacity.Limit()
		b, err = s.store.InsertBooking(ctx, model.CapacityRequest{Booking: booking, Limit: limit, Bounded: bounded, Buffer: buffer})
	}
	if err != nil {
		// A concurrent request with the same key may have won the insert.
		if idempotencyKey != "" && errors.Is(err, model.ErrConflict) {
			if prior, ok, lookupErr := s.replay(ctx, req.BusinessID, idempotencyKey); lookupErr == nil && ok {
				return prior, true, nil
			}
		}
		return model.Booking{}, false, err
	}
	return b, false, nil
}

func (s *Service) Get(ctx context.Context, bookingID string) (model.Booking, error) {
	return s.store.GetBooking(ctx, bookingID)
}

// Confirm marks a pending booking as confirmed and paid.
func (s *Service) Confirm(ctx context.Context, bookingID string) (model.Booking, error) {
	return s.transition(ctx, bookingID, model.BookingConfirmed)
}

// Cancel frees the booking's slot. Cancelling twice is not an error.
func (s *Service) Cancel(ctx context.Context, bookingID string) (model.Booking, error) {
	return s.transition(ctx, bookingID, model.BookingCancelled)
}

func (s *Service) Complete(ctx context.Context, bookingID string) (model.Booking, error) {
	return s.transition(ctx, bookingID, model.BookingCompleted)
}

func (s *Service) transition(ctx context.Context, bookingID string, to model.BookingStatus) (model.Booking, error) {
	if strings.TrimSpace(bookingID) == "" {
		return model.Booking{}, fmt.Errorf("%w: bookingId is required", model.ErrValidation)
	}
	cur, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if cur.Status == to && to == model.BookingCancelled {
		return cur, nil
	}
	if !model.CanTransition(cur.Status, to) {
		return model.Booking{}, fmt.Errorf("%w: booking is %s and cannot become %s", model.ErrConflict, cur.Status, to)
	}
	return s.store.UpdateBookingStatus(ctx, bookingID, model.AllowedFrom(to), to, s.now())
}

func (s *Service) List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	if strings.TrimSpace(f.BusinessID) == "" {
		return nil, fmt.Errorf("%w: businessId is required", model.ErrValidation)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return nil, fmt.Errorf("%w: from must be before to", model.ErrValidation)
	}
	switch f.Status {
	case "", model.BookingPending, model.BookingConfirmed, model.BookingCompleted, model.BookingCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrValidation, f.Status)
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.store.ListBookings(ctx, f)
}

func (s *Service) replay(ctx context.Context, businessID, key string) (model.Booking, bool, error) {
	b, err := s.store.FindByIdempotencyKey(ctx, businessID, key)
	if errors.Is(err, model.ErrNotFound) {
		return model.Booking{}, false, nil
	}
	if err != nil {
		return model.Booking{}, false, err
	}
	return b, true, nil
}

func (s *Service) buffer(ctx context.Context, key model.EntityKey) (time.Duration, error) {
	tmpl, err := s.store.GetTemplate(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return time.Duration(tmpl.BufferMinutes) * time.Minute, nil
}

func validateCreate(req *CreateRequest) error {
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ResourceID = strings.TrimSpace(req.ResourceID)
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	if req.BusinessID == "" || req.ServiceID == "" {
		return fmt.Errorf("%w: businessId and serviceId are required", model.ErrValidation)
	}
	if req.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduledAt is required", model.ErrValidation)
	}
	req.ScheduledAt = req.ScheduledAt.UTC()
	if req.CustomerEmail != "" {
		if _, err := mail.ParseAddress(req.CustomerEmail); err != nil {
			return fmt.Errorf("%w: invalid customerEmail", model.ErrValidation)
		}
	}
	return nil
}
