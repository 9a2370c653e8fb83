package inbox

import (
	"context"

	"github.com/md-rashed-zaman/bookpro/libs/db"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/storage/pgerr"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record marks an event as seen. It returns false when the event was already recorded.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if pgerr.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}
