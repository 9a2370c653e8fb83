package storage

import (
	"context"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

func (s *Store) GetBusiness(ctx context.Context, businessID string) (model.Business, error) {
	var b model.Business
	var mode string
	err := s.pool.QueryRow(ctx, `
		SELECT business_id, name, timezone, capacity_mode, max_bookings_per_slot,
		       min_lead_time_minutes, requires_payment, updated_at
		FROM businesses
		WHERE business_id = $1
	`, businessID).Scan(&b.ID, &b.Name, &b.Timezone, &mode, &b.Capacity.MaxBookingsPerSlot,
		&b.MinLeadTimeMinutes, &b.RequiresPayment, &b.UpdatedAt)
	if err != nil {
		return model.Business{}, notFound(err, "business %s", businessID)
	}
	b.Capacity.Mode = model.CapacityMode(mode)
	return b, nil
}

func (s *Store) UpsertBusiness(ctx context.Context, b model.Business) (model.Business, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO businesses (business_id, name, timezone, capacity_mode, max_bookings_per_slot, min_lead_time_minutes, requires_payment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (business_id)
		DO UPDATE SET name = EXCLUDED.name,
		              timezone = EXCLUDED.timezone,
		              capacity_mode = EXCLUDED.capacity_mode,
		              max_bookings_per_slot = EXCLUDED.max_bookings_per_slot,
		              min_lead_time_minutes = EXCLUDED.min_lead_time_minutes,
		              requires_payment = EXCLUDED.requires_payment,
		              updated_at = now()
		RETURNING updated_at
	`, b.ID, b.Name, b.Timezone, string(b.Capacity.Mode), b.Capacity.MaxBookingsPerSlot, b.MinLeadTimeMinutes, b.RequiresPayment).Scan(&b.UpdatedAt)
	if err != nil {
		return model.Business{}, err
	}
	return b, nil
}

func (s *Store) GetService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	var svc model.Service
	err := s.pool.QueryRow(ctx, `
		SELECT service_id, business_id, name, duration_minutes, requires_resource, active, updated_at
		FROM services
		WHERE service_id = $1 AND business_id = $2
	`, serviceID, businessID).Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMinutes, &svc.RequiresResource, &svc.Active, &svc.UpdatedAt)
	if err != nil {
		return model.Service{}, notFound(err, "service %s", serviceID)
	}
	return svc, nil
}

func (s *Store) UpsertService(ctx context.Context, svc model.Service) (model.Service, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO services (service_id, business_id, name, duration_minutes, requires_resource, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (service_id)
		DO UPDATE SET business_id = EXCLUDED.business_id,
		              name = EXCLUDED.name,
		              duration_minutes = EXCLUDED.duration_minutes,
		              requires_resource = EXCLUDED.requires_resource,
		              active = EXCLUDED.active,
		              updated_at = now()
		RETURNING updated_at
	`, svc.ID, svc.BusinessID, svc.Name, svc.DurationMinutes, svc.RequiresResource, svc.Active).Scan(&svc.UpdatedAt)
	if err != nil {
		return model.Service{}, err
	}
	return svc, nil
}
