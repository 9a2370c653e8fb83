package model

import (
	"fmt"
	"strings"
	"time"
)

// Position is UI layout only; it never influences allocation.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type Resource struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	IsActive bool     `json:"isActive"`
	Position Position `json:"position"`
}

// ResourceMap is the grid of physical resources (bikes, mats, seats) of one business.
type ResourceMap struct {
	BusinessID string     `json:"businessId"`
	Rows       int        `json:"rows"`
	Cols       int        `json:"cols"`
	Resources  []Resource `json:"resources"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (m ResourceMap) Find(id string) (Resource, bool) {
	for _, r := range m.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return Resource{}, false
}

// ActiveIDs returns the ids of active resources in map order.
func (m ResourceMap) ActiveIDs() []string {
	ids := make([]string, 0, len(m.Resources))
	for _, r := range m.Resources {
		if r.IsActive {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func (m ResourceMap) Validate() error {
	if strings.TrimSpace(m.BusinessID) == "" {
		return fmt.Errorf("%w: businessId is required", ErrValidation)
	}
	if m.Rows < 0 || m.Cols < 0 {
		return fmt.Errorf("%w: rows and cols must not be negative", ErrValidation)
	}
	seen := make(map[string]bool, len(m.Resources))
	for i, r := range m.Resources {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("%w: resources[%d].id is required", ErrValidation, i)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate resource id %q", ErrValidation, r.ID)
		}
		seen[r.ID] = true
		if strings.TrimSpace(r.Label) == "" {
			return fmt.Errorf("%w: resources[%d].label is required", ErrValidation, i)
		}
		if r.Position.Row < 0 || r.Position.Col < 0 {
			return fmt.Errorf("%w: resources[%d].position must not be negative", ErrValidation, i)
		}
	}
	return nil
}

// Hold is a short-lived, session-scoped claim on one resource at one start time.
// While active it blocks the resource for [ScheduledAt, EndsAt), the held service's span.
type Hold struct {
	BusinessID  string    `json:"businessId"`
	ServiceID   string    `json:"serviceId"`
	ResourceID  string    `json:"resourceId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	EndsAt      time.Time `json:"endsAt"`
	SessionID   string    `json:"sessionId"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ActiveAt reports whether the hold still blocks its key at now. A hold is gone at exactly ExpiresAt.
func (h Hold) ActiveAt(now time.Time) bool {
	return now.Before(h.ExpiresAt)
}

// Occupies reports whether the hold, widened by buffer on both sides, intersects
// [start, end). It applies the same rule as Booking.Occupies and ignores expiry.
func (h Hold) Occupies(start, end time.Time, buffer time.Duration) bool {
	return h.ScheduledAt.Add(-buffer).Before(end) && start.Before(h.EndsAt.Add(buffer))
}

// HoldKey is the compound identity of a hold.
type HoldKey struct {
	BusinessID  string
	ResourceID  string
	ScheduledAt time.Time
}

func (h Hold) Key() HoldKey {
	return HoldKey{BusinessID: h.BusinessID, ResourceID: h.ResourceID, ScheduledAt: h.ScheduledAt.UTC()}
}

// HoldRequest is the input of the atomic hold check-and-set. A booking or another
// session's active hold on the same resource blocks it when their buffered interval
// intersects [Hold.ScheduledAt, Hold.EndsAt).
type HoldRequest struct {
	Hold   Hold
	Buffer time.Duration
	Now    time.Time
}
