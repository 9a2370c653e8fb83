package holds

import (
	"context"
	"log/slog"
	"time"
)

// ReapStore deletes expired holds in batches and reports how many went.
type ReapStore interface {
	ReapExpiredHolds(ctx context.Context, now time.Time, limit int) (int, error)
}

// Reaper reclaims storage of expired holds. Reads already treat them as free,
// so the reaper only affects table size.
type Reaper struct {
	store     ReapStore
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type ReaperConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewReaper(store ReapStore, logger *slog.Logger, cfg ReaperConfig) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Reaper{
		store:     store,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.ReapOnce(ctx)
			if err != nil {
				r.logger.Error("hold reaper batch failed", "err", err)
				continue
			}
			if n > 0 {
				r.logger.Info("expired holds reaped", "count", n)
			}
		}
	}
}

// ReapOnce deletes expired holds batch by batch until a short batch comes back.
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.store.ReapExpiredHolds(ctx, r.now(), r.batchSize)
		total += n
		if err != nil || n < r.batchSize || ctx.Err() != nil {
			return total, err
		}
	}
}
