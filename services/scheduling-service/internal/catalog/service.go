// Package catalog keeps the local copy of business and service configuration
// owned by other systems.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

type Store interface {
	UpsertBusiness(ctx context.Context, b model.Business) (model.Business, error)
	UpsertService(ctx context.Context, s model.Service) (model.Service, error)
	// SeedTemplate inserts tmpl unless a template already exists for its key.
	SeedTemplate(ctx context.Context, tmpl model.AvailabilityTemplate) (bool, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// ApplyBusiness upserts a business and seeds its default BUSINESS template on first sight.
func (s *Service) ApplyBusiness(ctx context.Context, b model.Business) (model.Business, error) {
	if err := validateBusiness(&b); err != nil {
		return model.Business{}, err
	}
	stored, err := s.store.UpsertBusiness(ctx, b)
	if err != nil {
		return model.Business{}, err
	}
	key := model.EntityKey{BusinessID: b.ID, EntityType: model.EntityBusiness}
	seeded, err := s.store.SeedTemplate(ctx, model.DefaultTemplate(key, b.Timezone))
	if err != nil {
		return model.Business{}, err
	}
	if seeded {
		s.logger.Info("seeded default availability template", "business_id", b.ID, "timezone", b.Timezone)
	}
	return stored, nil
}

func (s *Service) ApplyService(ctx context.Context, svc model.Service) (model.Service, error) {
	svc.ID = strings.TrimSpace(svc.ID)
	svc.BusinessID = strings.TrimSpace(svc.BusinessID)
	if svc.ID == "" || svc.BusinessID == "" {
		return model.Service{}, fmt.Errorf("%w: serviceId and businessId are required", model.ErrValidation)
	}
	if svc.DurationMinutes <= 0 || svc.DurationMinutes > model.MinutesPerDay {
		return model.Service{}, fmt.Errorf("%w: durationMinutes must be between 1 and %d", model.ErrValidation, model.MinutesPerDay)
	}
	return s.store.UpsertService(ctx, svc)
}

func validateBusiness(b *model.Business) error {
	b.ID = strings.TrimSpace(b.ID)
	if b.ID == "" {
		return fmt.Errorf("%w: businessId is required", model.ErrValidation)
	}
	if b.Timezone == "" {
		b.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(b.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", model.ErrValidation, b.Timezone)
	}
	switch b.Capacity.Mode {
	case "":
		b.Capacity.Mode = model.CapacitySingle
	case model.CapacitySingle, model.CapacityMultiple:
	default:
		return fmt.Errorf("%w: unknown capacity mode %q", model.ErrValidation, b.Capacity.Mode)
	}
	if m := b.Capacity.MaxBookingsPerSlot; m != nil && *m < 1 {
		return fmt.Errorf("%w: maxBookingsPerSlot must be at least 1", model.ErrValidation)
	}
	if b.MinLeadTimeMinutes < 0 {
		return fmt.Errorf("%w: minLeadTimeMinutes must not be negative", model.ErrValidation)
	}
	return nil
}
