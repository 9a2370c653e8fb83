package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/events"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

func (s *Store) PromoteHold(ctx context.Context, req model.PromoteRequest) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := req.Booking
	b.ScheduledAt = b.ScheduledAt.UTC()
	key := model.HoldKey{BusinessID: b.BusinessID, ResourceID: b.ResourceID, ScheduledAt: b.ScheduledAt}
	h, ok := s.holds[key]
	if !ok || h.SessionID != req.SessionID {
		return model.Booking{}, fmt.Errorf("%w: session does not hold resource %s", model.ErrConflict, b.ResourceID)
	}
	if !h.ActiveAt(req.Now) {
		return model.Booking{}, fmt.Errorf("%w: hold on resource %s expired at %s", model.ErrExpired, b.ResourceID, h.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if err := s.checkIdempotencyLocked(b); err != nil {
		return model.Booking{}, err
	}
	if s.resourceBookedLocked(b.BusinessID, b.ResourceID, b.ScheduledAt, b.EndAt, req.Buffer) {
		return model.Booking{}, fmt.Errorf("%w: resource %s is already booked", model.ErrConflict, b.ResourceID)
	}

	delete(s.holds, key)
	s.bookings[b.ID] = b
	s.emit(ctx, events.Hold(events.HoldPromoted, h, b.ID))
	s.emit(ctx, events.Booking(b, true))
	return b, nil
}

func (s *Store) InsertBooking(ctx context.Context, req model.CapacityRequest) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := req.Booking
	b.ScheduledAt = b.ScheduledAt.UTC()
	if err := s.checkIdempotencyLocked(b); err != nil {
		return model.Booking{}, err
	}
	if req.Bounded {
		used := 0
		for _, other := range s.bookings {
			if other.BusinessID != b.BusinessID || (b.ProviderID != "" && other.ProviderID != b.ProviderID) {
				continue
			}
			if other.Occupies(b.ScheduledAt, b.EndAt, req.Buffer) {
				used++
			}
		}
		if used >= req.Limit {
			return model.Booking{}, fmt.Errorf("%w: slot is fully booked", model.ErrConflict)
		}
	}
	s.bookings[b.ID] = b
	s.emit(ctx, events.Booking(b, true))
	return b, nil
}

func (s *Store) checkIdempotencyLocked(b model.Booking) error {
	if b.IdempotencyKey == "" {
		return nil
	}
	for _, other := range s.bookings {
		if other.BusinessID == b.BusinessID && other.IdempotencyKey == b.IdempotencyKey {
			return fmt.Errorf("%w: idempotency key already used", model.ErrConflict)
		}
	}
	return nil
}

func (s *Store) GetBooking(_ context.Context, bookingID string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return model.Booking{}, fmt.Errorf("%w: booking %s", model.ErrNotFound, bookingID)
	}
	return b, nil
}

func (s *Store) FindByIdempotencyKey(_ context.Context, businessID, key string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.BusinessID == businessID && b.IdempotencyKey == key {
			return b, nil
		}
	}
	return model.Booking{}, fmt.Errorf("%w: idempotency key", model.ErrNotFound)
}

func (s *Store) UpdateBookingStatus(ctx context.Context, bookingID string, from []model.BookingStatus, to model.BookingStatus, now time.Time) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return model.Booking{}, fmt.Errorf("%w: booking %s", model.ErrNotFound, bookingID)
	}
	if !slices.Contains(from, b.Status) {
		return model.Booking{}, fmt.Errorf("%w: booking is %s", model.ErrConflict, b.Status)
	}
	b.Status = to
	b.UpdatedAt = now
	switch to {
	case model.BookingConfirmed:
		if b.PaymentStatus == model.PaymentUnpaid {
			b.PaymentStatus = model.PaymentPaid
		}
	case model.BookingCancelled:
		at := now
		b.CancelledAt = &at
	}
	s.bookings[b.ID] = b
	s.emit(ctx, events.Booking(b, false))
	return b, nil
}

func (s *Store) ListBookings(_ context.Context, f model.BookingFilter) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Booking{}
	for _, b := range s.bookings {
		if b.BusinessID != f.BusinessID {
			continue
		}
		if (!f.From.IsZero() && b.ScheduledAt.Before(f.From)) || (!f.To.IsZero() && !b.ScheduledAt.Before(f.To)) {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) ListActiveBookings(_ context.Context, businessID string, from, to time.Time) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.BusinessID == businessID && b.Status != model.BookingCancelled && b.ScheduledAt.Before(to) && b.EndAt.After(from) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}
