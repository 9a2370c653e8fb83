package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

func (s *Store) GetTemplate(ctx context.Context, key model.EntityKey) (model.AvailabilityTemplate, error) {
	t := model.AvailabilityTemplate{EntityKey: key}
	var rules []byte
	err := s.pool.QueryRow(ctx, `
		SELECT timezone, slot_duration_minutes, buffer_minutes, weekly_rules, version, updated_at
		FROM availability_templates
		WHERE business_id = $1 AND entity_type = $2 AND entity_id = $3
	`, key.BusinessID, string(key.EntityType), key.EntityID).Scan(&t.Timezone, &t.SlotDurationMinutes, &t.BufferMinutes, &rules, &t.Version, &t.UpdatedAt)
	if err != nil {
		return model.AvailabilityTemplate{}, notFound(err, "availability template %s", key)
	}
	if err := json.Unmarshal(rules, &t.WeeklyRules); err != nil {
		return model.AvailabilityTemplate{}, err
	}
	return t, nil
}

func (s *Store) UpsertTemplate(ctx context.Context, t model.AvailabilityTemplate) (model.AvailabilityTemplate, error) {
	rules, err := json.Marshal(t.WeeklyRules)
	if err != nil {
		return model.AvailabilityTemplate{}, err
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO availability_templates (business_id, entity_type, entity_id, timezone, slot_duration_minutes, buffer_minutes, weekly_rules)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (business_id, entity_type, entity_id)
		DO UPDATE SET timezone = EXCLUDED.timezone,
		              slot_duration_minutes = EXCLUDED.slot_duration_minutes,
		              buffer_minutes = EXCLUDED.buffer_minutes,
		              weekly_rules = EXCLUDED.weekly_rules,
		              version = availability_templates.version + 1,
		              updated_at = now()
		RETURNING version, updated_at
	`, t.BusinessID, string(t.EntityType), t.EntityID, t.Timezone, t.SlotDurationMinutes, t.BufferMinutes, rules).Scan(&t.Version, &t.UpdatedAt)
	if err != nil {
		return model.AvailabilityTemplate{}, err
	}
	return t, nil
}

func (s *Store) SeedTemplate(ctx context.Context, t model.AvailabilityTemplate) (bool, error) {
	rules, err := json.Marshal(t.WeeklyRules)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO availability_templates (business_id, entity_type, entity_id, timezone, slot_duration_minutes, buffer_minutes, weekly_rules)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (business_id, entity_type, entity_id) DO NOTHING
	`, t.BusinessID, string(t.EntityType), t.EntityID, t.Timezone, t.SlotDurationMinutes, t.BufferMinutes, rules)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetWeekOverride(ctx context.Context, key model.EntityKey, weekStart string) (model.WeekOverride, error) {
	start, err := model.ParseDate(weekStart)
	if err != nil {
		return model.WeekOverride{}, err
	}
	w := model.WeekOverride{EntityKey: key, WeekStartDate: weekStart}
	var days []byte
	var source string
	err = s.pool.QueryRow(ctx, `
		SELECT days, source, updated_at
		FROM week_overrides
		WHERE business_id = $1 AND entity_type = $2 AND entity_id = $3 AND week_start = $4
	`, key.BusinessID, string(key.EntityType), key.EntityID, start).Scan(&days, &source, &w.UpdatedAt)
	if err != nil {
		return model.WeekOverride{}, notFound(err, "week override %s %s", key, weekStart)
	}
	if err := json.Unmarshal(days, &w.Days); err != nil {
		return model.WeekOverride{}, err
	}
	w.Source = model.OverrideSource(source)
	return w, nil
}

func (s *Store) PutWeekOverride(ctx context.Context, w model.WeekOverride) (model.WeekOverride, error) {
	start, err := model.ParseDate(w.WeekStartDate)
	if err != nil {
		return model.WeekOverride{}, err
	}
	days, err := json.Marshal(w.Days)
	if err != nil {
		return model.WeekOverride{}, err
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO week_overrides (business_id, entity_type, entity_id, week_start, days, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_id, entity_type, entity_id, week_start)
		DO UPDATE SET days = EXCLUDED.days,
		              source = EXCLUDED.source,
		              updated_at = now()
		RETURNING updated_at
	`, w.BusinessID, string(w.EntityType), w.EntityID, start, days, string(w.Source)).Scan(&w.UpdatedAt)
	if err != nil {
		return model.WeekOverride{}, err
	}
	return w, nil
}

func (s *Store) GetResourceMap(ctx context.Context, businessID string) (model.ResourceMap, error) {
	m := model.ResourceMap{BusinessID: businessID}
	var resources []byte
	err := s.pool.QueryRow(ctx, `
		SELECT grid_rows, grid_cols, resources, updated_at
		FROM resource_maps
		WHERE business_id = $1
	`, businessID).Scan(&m.Rows, &m.Cols, &resources, &m.UpdatedAt)
	if err != nil {
		return model.ResourceMap{}, notFound(err, "resource map for business %s", businessID)
	}
	if err := json.Unmarshal(resources, &m.Resources); err != nil {
		return model.ResourceMap{}, err
	}
	return m, nil
}

func (s *Store) PutResourceMap(ctx context.Context, m model.ResourceMap) (model.ResourceMap, error) {
	resources, err := json.Marshal(m.Resources)
	if err != nil {
		return model.ResourceMap{}, err
	}
	var updated time.Time
	err = s.pool.QueryRow(ctx, `
		INSERT INTO resource_maps (business_id, grid_rows, grid_cols, resources)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id)
		DO UPDATE SET grid_rows = EXCLUDED.grid_rows,
		              grid_cols = EXCLUDED.grid_cols,
		              resources = EXCLUDED.resources,
		              updated_at = now()
		RETURNING updated_at
	`, m.BusinessID, m.Rows, m.Cols, resources).Scan(&updated)
	if err != nil {
		return model.ResourceMap{}, err
	}
	m.UpdatedAt = updated
	return m, nil
}
