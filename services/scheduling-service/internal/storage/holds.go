package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/events"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/storage/pgerr"
)

const holdColumns = `business_id, resource_id, scheduled_at, ends_at, service_id, session_id, created_at, expires_at`

func scanHold(row pgx.Row) (model.Hold, error) {
	var h model.Hold
	err := row.Scan(&h.BusinessID, &h.ResourceID, &h.ScheduledAt, &h.EndsAt, &h.ServiceID, &h.SessionID, &h.CreatedAt, &h.ExpiresAt)
	return h, err
}

func resourceLock(businessID, resourceID string) string {
	return "resource:" + businessID + ":" + resourceID
}

// ListHolds returns every stored hold starting in [from, to), expired ones included.
func (s *Store) ListHolds(ctx context.Context, businessID string, from, to time.Time) ([]model.Hold, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+holdColumns+`
		FROM resource_holds
		WHERE business_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at, resource_id
	`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// resourceBooked reports a non-cancelled booking on the resource whose buffered
// interval intersects [start, end).
func resourceBooked(ctx context.Context, tx pgx.Tx, businessID, resourceID string, start, end time.Time, buffer time.Duration) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE business_id = $1 AND resource_id = $2 AND status <> 'cancelled'
			  AND scheduled_at < $4 AND end_at > $3
		)
	`, businessID, resourceID, start.Add(-buffer), end.Add(buffer)).Scan(&exists)
	return exists, err
}

// resourceHeld reports an active hold of another session on the resource whose
// buffered span intersects [start, end).
func resourceHeld(ctx context.Context, tx pgx.Tx, h model.Hold, buffer time.Duration, now time.Time) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM resource_holds
			WHERE business_id = $1 AND resource_id = $2 AND session_id <> $3
			  AND expires_at > $4
			  AND scheduled_at < $6 AND ends_at > $5
		)
	`, h.BusinessID, h.ResourceID, h.SessionID, now, h.ScheduledAt.Add(-buffer), h.EndsAt.Add(buffer)).Scan(&exists)
	return exists, err
}

func (s *Store) AcquireHold(ctx context.Context, req model.HoldRequest) (model.Hold, error) {
	h := req.Hold
	h.ScheduledAt = h.ScheduledAt.UTC()
	var out model.Hold
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lock(ctx, tx, resourceLock(h.BusinessID, h.ResourceID)); err != nil {
			return err
		}
		held, err := resourceHeld(ctx, tx, h, req.Buffer, req.Now)
		if err != nil {
			return err
		}
		if held {
			return fmt.Errorf("%w: resource %s is held by another session", model.ErrConflict, h.ResourceID)
		}
		booked, err := resourceBooked(ctx, tx, h.BusinessID, h.ResourceID, h.ScheduledAt, h.EndsAt, req.Buffer)
		if err != nil {
			return err
		}
		if booked {
			return fmt.Errorf("%w: resource %s is already booked", model.ErrConflict, h.ResourceID)
		}

		// The upsert only overwrites an expired hold or the session's own one.
		out, err = scanHold(tx.QueryRow(ctx, `
			INSERT INTO resource_holds (`+holdColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (business_id, resource_id, scheduled_at)
			DO UPDATE SET ends_at = EXCLUDED.ends_at,
			              service_id = EXCLUDED.service_id,
			              session_id = EXCLUDED.session_id,
			              created_at = EXCLUDED.created_at,
			              expires_at = EXCLUDED.expires_at
			WHERE resource_holds.expires_at <= $9 OR resource_holds.session_id = EXCLUDED.session_id
			RETURNING `+holdColumns,
			h.BusinessID, h.ResourceID, h.ScheduledAt, h.EndsAt.UTC(), h.ServiceID, h.SessionID, h.CreatedAt, h.ExpiresAt, req.Now))
		if pgerr.IsNotFound(err) {
			return fmt.Errorf("%w: resource %s is held by another session", model.ErrConflict, h.ResourceID)
		}
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			DELETE FROM resource_holds
			WHERE business_id = $1 AND scheduled_at = $2 AND session_id = $3 AND resource_id <> $4
			RETURNING `+holdColumns,
			h.BusinessID, h.ScheduledAt, h.SessionID, h.ResourceID)
		if err != nil {
			return err
		}
		var dropped []model.Hold
		for rows.Next() {
			d, err := scanHold(rows)
			if err != nil {
				rows.Close()
				return err
			}
			dropped = append(dropped, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, d := range dropped {
			if !d.ActiveAt(req.Now) {
				continue
			}
			if err := s.outbox.Insert(ctx, tx, events.Hold(events.HoldReleased, d, "")); err != nil {
				return err
			}
		}
		return s.outbox.Insert(ctx, tx, events.Hold(events.HoldCreated, out, ""))
	})
	if err != nil {
		return model.Hold{}, err
	}
	return out, nil
}

func (s *Store) ReleaseHold(ctx context.Context, key model.HoldKey, sessionID string, now time.Time) (model.Hold, error) {
	var out model.Hold
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanHold(tx.QueryRow(ctx, `
			DELETE FROM resource_holds
			WHERE business_id = $1 AND resource_id = $2 AND scheduled_at = $3 AND session_id = $4
			RETURNING `+holdColumns,
			key.BusinessID, key.ResourceID, key.ScheduledAt.UTC(), sessionID))
		if pgerr.IsNotFound(err) {
			return fmt.Errorf("%w: no hold for this session on resource %s", model.ErrNotFound, key.ResourceID)
		}
		if err != nil {
			return err
		}
		if !out.ActiveAt(now) {
			return nil
		}
		return s.outbox.Insert(ctx, tx, events.Hold(events.HoldReleased, out, ""))
	})
	if err != nil {
		return model.Hold{}, err
	}
	return out, nil
}

// ReapExpiredHolds deletes up to limit expired holds. Rows locked by a concurrent
// acquire are skipped and picked up on a later pass.
func (s *Store) ReapExpiredHolds(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, errors.New("reap limit must be positive")
	}
	var n int
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			DELETE FROM resource_holds
			WHERE (business_id, resource_id, scheduled_at) IN (
				SELECT business_id, resource_id, scheduled_at
				FROM resource_holds
				WHERE expires_at <= $1
				ORDER BY expires_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING `+holdColumns, now, limit)
		if err != nil {
			return err
		}
		var reaped []model.Hold
		for rows.Next() {
			h, err := scanHold(rows)
			if err != nil {
				rows.Close()
				return err
			}
			reaped = append(reaped, h)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, h := range reaped {
			if err := s.outbox.Insert(ctx, tx, events.Hold(events.HoldExpired, h, "")); err != nil {
				return err
			}
		}
		n = len(reaped)
		return nil
	})
	return n, err
}
