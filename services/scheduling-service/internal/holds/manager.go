// Package holds manages short-lived, session-scoped claims on individual resources.
package holds

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/bookpro/libs/otel"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultTTL      = 5 * time.Minute
	maxSessionIDLen = 128
)

type Store interface {
	GetService(ctx context.Context, businessID, serviceID string) (model.Service, error)
	GetTemplate(ctx context.Context, key model.EntityKey) (model.AvailabilityTemplate, error)
	GetResourceMap(ctx context.Context, businessID string) (model.ResourceMap, error)
	ListActiveBookings(ctx context.Context, businessID string, from, to time.Time) ([]model.Booking, error)
	ListHolds(ctx context.Context, businessID string, from, to time.Time) ([]model.Hold, error)

	// AcquireHold atomically claims req.Hold's key. It fails with ErrConflict when an
	// active hold of another session or an overlapping booking occupies the resource,
	// and drops the session's other hold for the same time.
	AcquireHold(ctx context.Context, req model.HoldRequest) (model.Hold, error)
	// ReleaseHold deletes the session's hold on key, failing with ErrNotFound when there is none.
	ReleaseHold(ctx context.Context, key model.HoldKey, sessionID string, now time.Time) (model.Hold, error)
}

// SlotChecker validates that a time is an open grid slot.
type SlotChecker interface {
	CheckSlot(ctx context.Context, businessID, serviceID string, key model.EntityKey, at time.Time) error
}

type Manager struct {
	store Store
	slots SlotChecker
	ttl   time.Duration
	now   func() time.Time
}

type Option func(*Manager)

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store Store, slots SlotChecker, opts ...Option) *Manager {
	m := &Manager{store: store, slots: slots, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) TTL() time.Duration { return m.ttl }

type CreateRequest struct {
	BusinessID  string    `json:"businessId"`
	ServiceID   string    `json:"serviceId"`
	ResourceID  string    `json:"resourceId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	SessionID   string    `json:"sessionId"`
}

// CreateHold claims one resource at one start time for the session. Holding a
// different resource at the same time releases the session's previous hold.
func (m *Manager) CreateHold(ctx context.Context, req CreateRequest) (model.Hold, error) {
	ctx, span := otelx.Tracer("scheduling-service/holds").Start(ctx, "holds.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("business.id", req.BusinessID),
		attribute.String("resource.id", req.ResourceID),
	)

	if err := validateSession(req.SessionID); err != nil {
		return model.Hold{}, err
	}
	if req.BusinessID == "" || req.ServiceID == "" || req.ResourceID == "" || req.ScheduledAt.IsZero() {
		return model.Hold{}, fmt.Errorf("%w: businessId, serviceId, resourceId and scheduledAt are required", model.ErrValidation)
	}
	at := req.ScheduledAt.UTC()

	svc, err := m.resourceService(ctx, req.BusinessID, req.ServiceID)
	if err != nil {
		return model.Hold{}, err
	}
	rm, err := m.store.GetResourceMap(ctx, req.BusinessID)
	if err != nil {
		return model.Hold{}, err
	}
	res, ok := rm.Find(req.ResourceID)
	if !ok {
		return model.Hold{}, fmt.Errorf("%w: resource %s", model.ErrNotFound, req.ResourceID)
	}
	if !res.IsActive {
		return model.Hold{}, fmt.Errorf("%w: resource %s is inactive", model.ErrValidation, req.ResourceID)
	}
	if err := m.slots.CheckSlot(ctx, req.BusinessID, req.ServiceID, businessKey(req.BusinessID), at); err != nil {
		return model.Hold{}, err
	}
	buffer, err := m.buffer(ctx, req.BusinessID)
	if err != nil {
		return model.Hold{}, err
	}

	now := m.now()
	return m.store.AcquireHold(ctx, model.HoldRequest{
		Hold: model.Hold{
			BusinessID:  req.BusinessID,
			ServiceID:   req.ServiceID,
			ResourceID:  req.ResourceID,
			ScheduledAt: at,
			EndsAt:      at.Add(svc.Duration()),
			SessionID:   req.SessionID,
			CreatedAt:   now,
			ExpiresAt:   now.Add(m.ttl),
		},
		Buffer: buffer,
		Now:    now,
	})
}

// Availability is the resource grid for one start time, as seen by one session.
type Availability struct {
	ResourceConfig      model.ResourceMap `json:"resourceConfig"`
	OccupiedResourceIDs []string          `json:"occupiedResourceIds"`
	UserHoldResourceID  *string           `json:"userHoldResourceId"`
	UserHoldExpiresAt   *time.Time        `json:"userHoldExpiresAt,omitempty"`
}

// GetAvailability reports which resources are taken for the service span starting at
// scheduledAt by bookings or by other sessions' overlapping active holds, and which
// resource the session itself holds at that time.
func (m *Manager) GetAvailability(ctx context.Context, businessID, serviceID string, scheduledAt time.Time, sessionID string) (Availability, error) {
	if businessID == "" || serviceID == "" || scheduledAt.IsZero() {
		return Availability{}, fmt.Errorf("%w: businessId, serviceId and scheduledAt are required", model.ErrValidation)
	}
	if len(sessionID) > maxSessionIDLen {
		return Availability{}, fmt.Errorf("%w: sessionId is too long", model.ErrValidation)
	}
	at := scheduledAt.UTC()

	svc, err := m.resourceService(ctx, businessID, serviceID)
	if err != nil {
		return Availability{}, err
	}
	rm, err := m.store.GetResourceMap(ctx, businessID)
	if err != nil {
		return Availability{}, err
	}
	buffer, err := m.buffer(ctx, businessID)
	if err != nil {
		return Availability{}, err
	}
	end := at.Add(svc.Duration())

	bookings, err := m.store.ListActiveBookings(ctx, businessID, at.Add(-buffer-24*time.Hour), end.Add(buffer))
	if err != nil {
		return Availability{}, err
	}
	holds, err := m.store.ListHolds(ctx, businessID, at.Add(-buffer-24*time.Hour), end.Add(buffer))
	if err != nil {
		return Availability{}, err
	}

	occupied := map[string]bool{}
	for _, b := range bookings {
		if b.ResourceID != "" && b.Occupies(at, end, buffer) {
			occupied[b.ResourceID] = true
		}
	}
	out := Availability{ResourceConfig: rm}
	now := m.now()
	for _, h := range holds {
		if !h.ActiveAt(now) {
			continue
		}
		if sessionID != "" && h.SessionID == sessionID {
			if h.ScheduledAt.Equal(at) {
				id, exp := h.ResourceID, h.ExpiresAt
				out.UserHoldResourceID = &id
				out.UserHoldExpiresAt = &exp
			}
			continue
		}
		if h.Occupies(at, end, buffer) {
			occupied[h.ResourceID] = true
		}
	}

	out.OccupiedResourceIDs = make([]string, 0, len(occupied))
	for id := range occupied {
		out.OccupiedResourceIDs = append(out.OccupiedResourceIDs, id)
	}
	sort.Strings(out.OccupiedResourceIDs)
	return out, nil
}

type ReleaseRequest struct {
	BusinessID  string    `json:"businessId"`
	ResourceID  string    `json:"resourceId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	SessionID   string    `json:"sessionId"`
}

// ReleaseHold frees the session's hold. Holds of other sessions are reported as not found.
func (m *Manager) ReleaseHold(ctx context.Context, req ReleaseRequest) (model.Hold, error) {
	if err := validateSession(req.SessionID); err != nil {
		return model.Hold{}, err
	}
	if req.BusinessID == "" || req.ResourceID == "" || req.ScheduledAt.IsZero() {
		return model.Hold{}, fmt.Errorf("%w: businessId, resourceId and scheduledAt are required", model.ErrValidation)
	}
	key := model.HoldKey{BusinessID: req.BusinessID, ResourceID: req.ResourceID, ScheduledAt: req.ScheduledAt.UTC()}
	return m.store.ReleaseHold(ctx, key, req.SessionID, m.now())
}

func (m *Manager) resourceService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	svc, err := m.store.GetService(ctx, businessID, serviceID)
	if err != nil {
		return model.Service{}, err
	}
	if !svc.RequiresResource {
		return model.Service{}, fmt.Errorf("%w: service %s does not use resources", model.ErrValidation, serviceID)
	}
	return svc, nil
}

// buffer is the business template's gap between bookings; no template means none.
func (m *Manager) buffer(ctx context.Context, businessID string) (time.Duration, error) {
	tmpl, err := m.store.GetTemplate(ctx, businessKey(businessID))
	if errors.Is(err, model.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return time.Duration(tmpl.BufferMinutes) * time.Minute, nil
}

func businessKey(businessID string) model.EntityKey {
	return model.EntityKey{BusinessID: businessID, EntityType: model.EntityBusiness}
}

func validateSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: sessionId is required", model.ErrValidation)
	}
	if len(sessionID) > maxSessionIDLen {
		return fmt.Errorf("%w: sessionId is too long", model.ErrValidation)
	}
	return nil
}
