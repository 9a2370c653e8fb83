// Package resourcemap manages the physical resource grid of a business.
package resourcemap

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

type Store interface {
	GetBusiness(ctx context.Context, businessID string) (model.Business, error)
	GetResourceMap(ctx context.Context, businessID string) (model.ResourceMap, error)
	PutResourceMap(ctx context.Context, m model.ResourceMap) (model.ResourceMap, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Get(ctx context.Context, businessID string) (model.ResourceMap, error) {
	if businessID == "" {
		return model.ResourceMap{}, fmt.Errorf("%w: businessId is required", model.ErrValidation)
	}
	return s.store.GetResourceMap(ctx, businessID)
}

// Put replaces the whole grid. Existing holds and bookings keep their resource ids
// even when a resource is removed or deactivated.
func (s *Service) Put(ctx context.Context, m model.ResourceMap) (model.ResourceMap, error) {
	if m.Resources == nil {
		m.Resources = []model.Resource{}
	}
	if err := m.Validate(); err != nil {
		return model.ResourceMap{}, err
	}
	if _, err := s.store.GetBusiness(ctx, m.BusinessID); err != nil {
		return model.ResourceMap{}, err
	}
	return s.store.PutResourceMap(ctx, m)
}
