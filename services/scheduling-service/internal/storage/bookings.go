package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/events"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/storage/pgerr"
)

const bookingColumns = `booking_id, business_id, service_id, resource_id, provider_id, scheduled_at, end_at,
	status, payment_status, customer_name, customer_email, idempotency_key, created_at, updated_at, cancelled_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var resourceID, providerID, name, email, idem *string
	var status, payment string
	err := row.Scan(&b.ID, &b.BusinessID, &b.ServiceID, &resourceID, &providerID, &b.ScheduledAt, &b.EndAt,
		&status, &payment, &name, &email, &idem, &b.CreatedAt, &b.UpdatedAt, &b.CancelledAt)
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = model.BookingStatus(status)
	b.PaymentStatus = model.PaymentStatus(payment)
	b.ResourceID = deref(resourceID)
	b.ProviderID = deref(providerID)
	b.CustomerName = deref(name)
	b.CustomerEmail = deref(email)
	b.IdempotencyKey = deref(idem)
	return b, nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func insertBooking(ctx context.Context, tx pgx.Tx, b model.Booking) (model.Booking, error) {
	out, err := scanBooking(tx.QueryRow(ctx, `
		INSERT INTO bookings (booking_id, business_id, service_id, resource_id, provider_id, scheduled_at, end_at,
		                      status, payment_status, customer_name, customer_email, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING `+bookingColumns,
		b.ID, b.BusinessID, b.ServiceID, nullIfEmpty(b.ResourceID), nullIfEmpty(b.ProviderID), b.ScheduledAt.UTC(), b.EndAt.UTC(),
		string(b.Status), string(b.PaymentStatus), nullIfEmpty(b.CustomerName), nullIfEmpty(b.CustomerEmail),
		nullIfEmpty(b.IdempotencyKey), b.CreatedAt))
	if pgerr.IsConflict(err) {
		if pgerr.ConstraintName(err) == "bookings_idempotency_uidx" {
			return model.Booking{}, fmt.Errorf("%w: idempotency key already used", model.ErrConflict)
		}
		return model.Booking{}, fmt.Errorf("%w: resource %s is already booked", model.ErrConflict, b.ResourceID)
	}
	return out, err
}

func (s *Store) PromoteHold(ctx context.Context, req model.PromoteRequest) (model.Booking, error) {
	b := req.Booking
	var out model.Booking
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lock(ctx, tx, resourceLock(b.BusinessID, b.ResourceID)); err != nil {
			return err
		}
		h, err := scanHold(tx.QueryRow(ctx, `
			DELETE FROM resource_holds
			WHERE business_id = $1 AND resource_id = $2 AND scheduled_at = $3 AND session_id = $4
			RETURNING `+holdColumns,
			b.BusinessID, b.ResourceID, b.ScheduledAt.UTC(), req.SessionID))
		if pgerr.IsNotFound(err) {
			return fmt.Errorf("%w: session does not hold resource %s", model.ErrConflict, b.ResourceID)
		}
		if err != nil {
			return err
		}
		// Returning the error rolls back the delete, so the expired row stays for the reaper.
		if !h.ActiveAt(req.Now) {
			return fmt.Errorf("%w: hold on resource %s expired at %s", model.ErrExpired, b.ResourceID, h.ExpiresAt.UTC().Format(time.RFC3339))
		}
		booked, err := resourceBooked(ctx, tx, b.BusinessID, b.ResourceID, b.ScheduledAt, b.EndAt, req.Buffer)
		if err != nil {
			return err
		}
		if booked {
			return fmt.Errorf("%w: resource %s is already booked", model.ErrConflict, b.ResourceID)
		}
		out, err = insertBooking(ctx, tx, b)
		if err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, tx, events.Hold(events.HoldPromoted, h, out.ID)); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, events.Booking(out, true))
	})
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

func (s *Store) InsertBooking(ctx context.Context, req model.CapacityRequest) (model.Booking, error) {
	b := req.Booking
	var out model.Booking
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if req.Bounded {
			if err := lock(ctx, tx, "capacity:"+b.BusinessID); err != nil {
				return err
			}
			var used int
			err := tx.QueryRow(ctx, `
				SELECT count(*)
				FROM bookings
				WHERE business_id = $1 AND status <> 'cancelled'
				  AND ($2::text IS NULL OR provider_id = $2)
				  AND scheduled_at < $4 AND end_at > $3
			`, b.BusinessID, nullIfEmpty(b.ProviderID), b.ScheduledAt.Add(-req.Buffer), b.EndAt.Add(req.Buffer)).Scan(&used)
			if err != nil {
				return err
			}
			if used >= req.Limit {
				return fmt.Errorf("%w: slot is fully booked", model.ErrConflict)
			}
		}
		var err error
		out, err = insertBooking(ctx, tx, b)
		if err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, events.Booking(out, true))
	})
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

func (s *Store) GetBooking(ctx context.Context, bookingID string) (model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_id = $1`, bookingID))
	if err != nil {
		return model.Booking{}, notFound(err, "booking %s", bookingID)
	}
	return b, nil
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, businessID, key string) (model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE business_id = $1 AND idempotency_key = $2
	`, businessID, key))
	if err != nil {
		return model.Booking{}, notFound(err, "idempotency key")
	}
	return b, nil
}

func (s *Store) UpdateBookingStatus(ctx context.Context, bookingID string, from []model.BookingStatus, to model.BookingStatus, now time.Time) (model.Booking, error) {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}
	var out model.Booking
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanBooking(tx.QueryRow(ctx, `
			UPDATE bookings
			SET status = $2,
			    payment_status = CASE WHEN $2 = 'confirmed' AND payment_status = 'unpaid' THEN 'paid' ELSE payment_status END,
			    cancelled_at = CASE WHEN $2 = 'cancelled' THEN $4 ELSE cancelled_at END,
			    updated_at = $4
			WHERE booking_id = $1 AND status = ANY($3)
			RETURNING `+bookingColumns,
			bookingID, string(to), allowed, now))
		if pgerr.IsNotFound(err) {
			cur, getErr := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_id = $1`, bookingID))
			if getErr != nil {
				return notFound(getErr, "booking %s", bookingID)
			}
			return fmt.Errorf("%w: booking is %s", model.ErrConflict, cur.Status)
		}
		if err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, events.Booking(out, false))
	})
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

func (s *Store) ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	where := []string{"business_id = $1"}
	args := []any{f.BusinessID}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("scheduled_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("scheduled_at < $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + strings.Join(where, " AND ") + ` ORDER BY scheduled_at, booking_id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.queryBookings(ctx, query, args...)
}

// ListActiveBookings returns non-cancelled bookings intersecting [from, to).
func (s *Store) ListActiveBookings(ctx context.Context, businessID string, from, to time.Time) ([]model.Booking, error) {
	return s.queryBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE business_id = $1 AND status <> 'cancelled' AND scheduled_at < $3 AND end_at > $2
		ORDER BY scheduled_at
	`, businessID, from, to)
}

func (s *Store) queryBookings(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
