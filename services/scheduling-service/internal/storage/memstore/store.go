// Package memstore is an in-memory implementation of every scheduling store.
// A single mutex makes each operation atomic, matching the transactional
// guarantees of the Postgres store. It backs tests and STORAGE_DRIVER=memory.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

type Store struct {
	mu sync.Mutex

	businesses map[string]model.Business
	services   map[string]model.Service
	templates  map[string]model.AvailabilityTemplate
	weeks      map[string]model.WeekOverride
	maps       map[string]model.ResourceMap
	holds      map[model.HoldKey]model.Hold
	bookings   map[string]model.Booking
	outbox     []outboxRow
	nextID     int64
	inbox      map[string]bool

	now func() time.Time
}

func New() *Store {
	return &Store{
		businesses: map[string]model.Business{},
		services:   map[string]model.Service{},
		templates:  map[string]model.AvailabilityTemplate{},
		weeks:      map[string]model.WeekOverride{},
		maps:       map[string]model.ResourceMap{},
		holds:      map[model.HoldKey]model.Hold{},
		bookings:   map[string]model.Booking{},
		inbox:      map[string]bool{},
		now:        time.Now,
	}
}

// WithClock sets the clock used for updatedAt stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) GetBusiness(_ context.Context, businessID string) (model.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[businessID]
	if !ok {
		return model.Business{}, fmt.Errorf("%w: business %s", model.ErrNotFound, businessID)
	}
	return cloneBusiness(b), nil
}

func (s *Store) UpsertBusiness(_ context.Context, b model.Business) (model.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.UpdatedAt = s.now().UTC()
	b = cloneBusiness(b)
	s.businesses[b.ID] = b
	return cloneBusiness(b), nil
}

func (s *Store) GetService(_ context.Context, businessID, serviceID string) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.BusinessID != businessID {
		return model.Service{}, fmt.Errorf("%w: service %s", model.ErrNotFound, serviceID)
	}
	return svc, nil
}

func (s *Store) UpsertService(_ context.Context, svc model.Service) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc.UpdatedAt = s.now().UTC()
	s.services[svc.ID] = svc
	return svc, nil
}

func (s *Store) GetTemplate(_ context.Context, key model.EntityKey) (model.AvailabilityTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[key.String()]
	if !ok {
		return model.AvailabilityTemplate{}, fmt.Errorf("%w: availability template %s", model.ErrNotFound, key)
	}
	return cloneTemplate(t), nil
}

func (s *Store) UpsertTemplate(_ context.Context, tmpl model.AvailabilityTemplate) (model.AvailabilityTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tmpl.Version = s.templates[tmpl.EntityKey.String()].Version + 1
	tmpl.UpdatedAt = s.now().UTC()
	s.templates[tmpl.EntityKey.String()] = cloneTemplate(tmpl)
	return cloneTemplate(tmpl), nil
}

func (s *Store) SeedTemplate(_ context.Context, tmpl model.AvailabilityTemplate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[tmpl.EntityKey.String()]; ok {
		return false, nil
	}
	tmpl.Version = 1
	tmpl.UpdatedAt = s.now().UTC()
	s.templates[tmpl.EntityKey.String()] = cloneTemplate(tmpl)
	return true, nil
}

func weekKey(key model.EntityKey, weekStart string) string {
	return key.String() + "@" + weekStart
}

func (s *Store) GetWeekOverride(_ context.Context, key model.EntityKey, weekStart string) (model.WeekOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.weeks[weekKey(key, weekStart)]
	if !ok {
		return model.WeekOverride{}, fmt.Errorf("%w: week override %s %s", model.ErrNotFound, key, weekStart)
	}
	return cloneWeek(w), nil
}

func (s *Store) PutWeekOverride(_ context.Context, w model.WeekOverride) (model.WeekOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.UpdatedAt = s.now().UTC()
	s.weeks[weekKey(w.EntityKey, w.WeekStartDate)] = cloneWeek(w)
	return cloneWeek(w), nil
}

func (s *Store) GetResourceMap(_ context.Context, businessID string) (model.ResourceMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.maps[businessID]
	if !ok {
		return model.ResourceMap{}, fmt.Errorf("%w: resource map for business %s", model.ErrNotFound, businessID)
	}
	return cloneMap(m), nil
}

func (s *Store) PutResourceMap(_ context.Context, m model.ResourceMap) (model.ResourceMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.UpdatedAt = s.now().UTC()
	s.maps[m.BusinessID] = cloneMap(m)
	return cloneMap(m), nil
}

func (s *Store) Record(_ context.Context, eventID string, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inbox[eventID] {
		return false, nil
	}
	s.inbox[eventID] = true
	return true, nil
}

func cloneBusiness(b model.Business) model.Business {
	if b.Capacity.MaxBookingsPerSlot != nil {
		v := *b.Capacity.MaxBookingsPerSlot
		b.Capacity.MaxBookingsPerSlot = &v
	}
	return b
}

func cloneBlocks(in []model.Block) []model.Block {
	if in == nil {
		return nil
	}
	return append([]model.Block{}, in...)
}

func cloneTemplate(t model.AvailabilityTemplate) model.AvailabilityTemplate {
	if t.WeeklyRules != nil {
		rules := make([]model.WeeklyRule, len(t.WeeklyRules))
		for i, r := range t.WeeklyRules {
			r.Blocks = cloneBlocks(r.Blocks)
			rules[i] = r
		}
		t.WeeklyRules = rules
	}
	return t
}

func cloneWeek(w model.WeekOverride) model.WeekOverride {
	if w.Days != nil {
		days := make([]model.DayOverride, len(w.Days))
		for i, d := range w.Days {
			d.Blocks = cloneBlocks(d.Blocks)
			d.BlockedRanges = cloneBlocks(d.BlockedRanges)
			days[i] = d
		}
		w.Days = days
	}
	return w
}

func cloneMap(m model.ResourceMap) model.ResourceMap {
	if m.Resources != nil {
		m.Resources = append([]model.Resource{}, m.Resources...)
	}
	return m
}
