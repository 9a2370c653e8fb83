package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	otelx "github.com/md-rashed-zaman/bookpro/libs/otel"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Store is everything the engine reads. Every method returns an error wrapping
// model.ErrNotFound when the record is absent.
type Store interface {
	GetBusiness(ctx context.Context, businessID string) (model.Business, error)
	GetService(ctx context.Context, businessID, serviceID string) (model.Service, error)
	GetTemplate(ctx context.Context, key model.EntityKey) (model.AvailabilityTemplate, error)
	GetWeekOverride(ctx context.Context, key model.EntityKey, weekStart string) (model.WeekOverride, error)
	GetResourceMap(ctx context.Context, businessID string) (model.ResourceMap, error)
	// ListActiveBookings returns non-cancelled bookings of the business intersecting [from, to).
	ListActiveBookings(ctx context.Context, businessID string, from, to time.Time) ([]model.Booking, error)
	// ListHolds returns holds of the business with scheduledAt in [from, to), expired or not.
	ListHolds(ctx context.Context, businessID string, from, to time.Time) ([]model.Hold, error)
}

// Query selects the grid to compute. StartDate and EndDate are inclusive calendar dates.
type Query struct {
	BusinessID string
	ServiceID  string
	Entity     model.EntityType
	EntityID   string
	StartDate  time.Time
	EndDate    time.Time
}

type Slot struct {
	Time        string    `json:"time"`
	StartsAt    time.Time `json:"startsAt"`
	IsAvailable bool      `json:"isAvailable"`
	// Remaining is nil when capacity is unbounded.
	Remaining *int `json:"remaining,omitempty"`
}

type DaySlots struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

type Engine struct {
	store        Store
	now          func() time.Time
	maxRangeDays int
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxRangeDays caps the number of dates a single query may span.
func WithMaxRangeDays(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.maxRangeDays = days
		}
	}
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{store: store, now: time.Now, maxRangeDays: 62}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeSlots returns the full slot grid for every date in the query range.
// Any error aborts the whole range.
func (e *Engine) ComputeSlots(ctx context.Context, q Query) ([]DaySlots, error) {
	ctx, span := otelx.Tracer("scheduling-service/availability").Start(ctx, "availability.compute_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("business.id", q.BusinessID),
		attribute.String("service.id", q.ServiceID),
		attribute.String("range.start", model.FormatDate(q.StartDate)),
		attribute.String("range.end", model.FormatDate(q.EndDate)),
	)

	out, err := e.computeSlots(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

// spanDays counts calendar dates from start through end inclusive,
// stopping once limit is reached.
func spanDays(start, end time.Time, limit int) int {
	n := 0
	for d := start; !d.After(end) && n < limit; d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

func (e *Engine) computeSlots(ctx context.Context, q Query) ([]DaySlots, error) {
	if q.EndDate.Before(q.StartDate) {
		return nil, fmt.Errorf("%w: endDate is before startDate", model.ErrValidation)
	}
	days := spanDays(q.StartDate, q.EndDate, e.maxRangeDays+1)
	if days > e.maxRangeDays {
		return nil, fmt.Errorf("%w: date range exceeds %d days", model.ErrValidation, e.maxRangeDays)
	}

	sc, err := e.load(ctx, q.BusinessID, q.ServiceID, q.Entity, q.EntityID)
	if err != nil {
		return nil, err
	}

	// One day of slack on each side covers timezone offsets and buffers.
	from := q.StartDate.AddDate(0, 0, -1)
	to := q.EndDate.AddDate(0, 0, 2)
	occ, err := e.occupancy(ctx, sc, from, to)
	if err != nil {
		return nil, err
	}

	now := e.now()
	earliest := now.Add(time.Duration(sc.business.MinLeadTimeMinutes) * time.Minute)
	weeks := map[string]*model.WeekOverride{}

	out := make([]DaySlots, 0, days)
	for d := 0; d < days; d++ {
		date := q.StartDate.AddDate(0, 0, d)
		day, err := e.resolve(ctx, sc, date, weeks)
		if err != nil {
			return nil, err
		}
		out = append(out, DaySlots{Date: model.FormatDate(date), Slots: sc.grid(day, occ, earliest)})
	}
	return out, nil
}

// CheckSlot verifies that at is a bookable grid time for the service: on the stride,
// inside open time and not before the lead time. Capacity is left to the caller,
// which enforces it atomically.
func (e *Engine) CheckSlot(ctx context.Context, businessID, serviceID string, key model.EntityKey, at time.Time) error {
	ctx, span := otelx.Tracer("scheduling-service/availability").Start(ctx, "availability.check_slot")
	defer span.End()

	sc, err := e.load(ctx, businessID, serviceID, key.EntityType, key.EntityID)
	if err != nil {
		return err
	}
	now := e.now()
	if at.Before(now.Add(time.Duration(sc.business.MinLeadTimeMinutes) * time.Minute)) {
		return fmt.Errorf("%w: %s is in the past or inside the minimum lead time", model.ErrValidation, at.UTC().Format(time.RFC3339))
	}
	local := at.In(sc.loc)
	date := model.LocalDate(at, sc.loc)
	day, err := e.resolve(ctx, sc, date, map[string]*model.WeekOverride{})
	if err != nil {
		return err
	}
	for _, c := range sc.candidates(day) {
		if c.open && c.at.Equal(at) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s is not an open slot", model.ErrValidation, model.FormatDate(date), local.Format("15:04"))
}

// scope is the resolved configuration a single query runs against.
type scope struct {
	business model.Business
	service  model.Service
	template model.AvailabilityTemplate
	key      model.EntityKey
	loc      *time.Location
	stride   int
	duration int
	buffer   time.Duration
	// resources is the active resource set when the service allocates resources.
	resources []string
}

func (e *Engine) load(ctx context.Context, businessID, serviceID string, entity model.EntityType, entityID string) (scope, error) {
	if entity == "" {
		entity = model.EntityBusiness
	}
	key := model.EntityKey{BusinessID: businessID, EntityType: entity, EntityID: entityID}
	if err := key.Validate(); err != nil {
		return scope{}, err
	}
	if serviceID == "" {
		return scope{}, fmt.Errorf("%w: serviceId is required", model.ErrValidation)
	}
	biz, err := e.store.GetBusiness(ctx, businessID)
	if err != nil {
		return scope{}, err
	}
	svc, err := e.store.GetService(ctx, businessID, serviceID)
	if err != nil {
		return scope{}, err
	}
	if !svc.Active {
		return scope{}, fmt.Errorf("%w: service %s is inactive", model.ErrNotFound, serviceID)
	}
	tmpl, err := e.store.GetTemplate(ctx, key)
	if err != nil {
		return scope{}, err
	}

	tz := tmpl.Timezone
	if tz == "" {
		tz = biz.Timezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return scope{}, fmt.Errorf("%w: unknown timezone %q", model.ErrValidation, tz)
	}

	sc := scope{
		business: biz,
		service:  svc,
		template: tmpl,
		key:      key,
		loc:      loc,
		stride:   tmpl.SlotDurationMinutes,
		duration: svc.DurationMinutes,
		buffer:   time.Duration(tmpl.BufferMinutes) * time.Minute,
	}
	if sc.duration <= 0 {
		sc.duration = sc.stride
	}
	if sc.stride <= 0 {
		sc.stride = sc.duration
	}
	if sc.stride <= 0 {
		return scope{}, fmt.Errorf("%w: slot duration is not configured", model.ErrValidation)
	}

	if svc.RequiresResource {
		rm, err := e.store.GetResourceMap(ctx, businessID)
		switch {
		case errors.Is(err, model.ErrNotFound):
			sc.resources = []string{}
		case err != nil:
			return scope{}, err
		default:
			sc.resources = rm.ActiveIDs()
		}
		if key.EntityType == model.EntityResource {
			sc.resources = filterIDs(sc.resources, key.EntityID)
		}
	}
	return sc, nil
}

func (e *Engine) resolve(ctx context.Context, sc scope, date time.Time, weeks map[string]*model.WeekOverride) (DayConfig, error) {
	ws := model.FormatDate(model.WeekStart(date))
	wo, cached := weeks[ws]
	if !cached {
		o, err := e.store.GetWeekOverride(ctx, sc.key, ws)
		switch {
		case errors.Is(err, model.ErrNotFound):
		case err != nil:
			return DayConfig{}, err
		default:
			wo = &o
		}
		weeks[ws] = wo
	}
	return ResolveDay(date, wo, &sc.template)
}

func filterIDs(ids []string, keep string) []string {
	out := []string{}
	for _, id := range ids {
		if id == keep {
			out = append(out, id)
		}
	}
	return out
}
