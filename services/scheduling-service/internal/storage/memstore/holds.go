package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/events"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

func (s *Store) ListHolds(_ context.Context, businessID string, from, to time.Time) ([]model.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Hold
	for _, h := range s.holds {
		if h.BusinessID == businessID && !h.ScheduledAt.Before(from) && h.ScheduledAt.Before(to) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ResourceID < out[j].ResourceID
	})
	return out, nil
}

func (s *Store) AcquireHold(ctx context.Context, req model.HoldRequest) (model.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := req.Hold
	h.ScheduledAt = h.ScheduledAt.UTC()
	key := h.Key()
	if s.resourceHeldLocked(h, req.Buffer, req.Now) {
		return model.Hold{}, fmt.Errorf("%w: resource %s is held by another session", model.ErrConflict, h.ResourceID)
	}
	if s.resourceBookedLocked(h.BusinessID, h.ResourceID, h.ScheduledAt, h.EndsAt, req.Buffer) {
		return model.Hold{}, fmt.Errorf("%w: resource %s is already booked", model.ErrConflict, h.ResourceID)
	}

	for k, other := range s.holds {
		if k.BusinessID == key.BusinessID && k.ScheduledAt.Equal(key.ScheduledAt) && k.ResourceID != key.ResourceID && other.SessionID == h.SessionID {
			delete(s.holds, k)
			if other.ActiveAt(req.Now) {
				s.emit(ctx, events.Hold(events.HoldReleased, other, ""))
			}
		}
	}
	s.holds[key] = h
	s.emit(ctx, events.Hold(events.HoldCreated, h, ""))
	return h, nil
}

func (s *Store) ReleaseHold(ctx context.Context, key model.HoldKey, sessionID string, now time.Time) (model.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key.ScheduledAt = key.ScheduledAt.UTC()
	h, ok := s.holds[key]
	if !ok || h.SessionID != sessionID {
		return model.Hold{}, fmt.Errorf("%w: no hold for this session on resource %s", model.ErrNotFound, key.ResourceID)
	}
	delete(s.holds, key)
	if h.ActiveAt(now) {
		s.emit(ctx, events.Hold(events.HoldReleased, h, ""))
	}
	return h, nil
}

func (s *Store) ReapExpiredHolds(ctx context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []model.Hold
	for _, h := range s.holds {
		if !h.ActiveAt(now) {
			expired = append(expired, h)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })
	if len(expired) > limit {
		expired = expired[:limit]
	}
	for _, h := range expired {
		delete(s.holds, h.Key())
		s.emit(ctx, events.Hold(events.HoldExpired, h, ""))
	}
	return len(expired), nil
}

// resourceHeldLocked reports an active hold of another session on h's resource whose
// buffered span intersects h's. Callers hold s.mu.
func (s *Store) resourceHeldLocked(h model.Hold, buffer time.Duration, now time.Time) bool {
	for k, other := range s.holds {
		if k.BusinessID != h.BusinessID || k.ResourceID != h.ResourceID || other.SessionID == h.SessionID {
			continue
		}
		if other.ActiveAt(now) && other.Occupies(h.ScheduledAt, h.EndsAt, buffer) {
			return true
		}
	}
	return false
}

// resourceBookedLocked reports a non-cancelled booking on the resource whose
// buffered interval intersects [start, end). Callers hold s.mu.
func (s *Store) resourceBookedLocked(businessID, resourceID string, start, end time.Time, buffer time.Duration) bool {
	for _, b := range s.bookings {
		if b.BusinessID == businessID && b.ResourceID == resourceID && b.Occupies(start, end, buffer) {
			return true
		}
	}
	return false
}
