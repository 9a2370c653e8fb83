// Package schedule manages availability templates and week overrides.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

type Store interface {
	GetBusiness(ctx context.Context, businessID string) (model.Business, error)
	GetTemplate(ctx context.Context, key model.EntityKey) (model.AvailabilityTemplate, error)
	// UpsertTemplate stores tmpl with the next version number and returns the stored row.
	UpsertTemplate(ctx context.Context, tmpl model.AvailabilityTemplate) (model.AvailabilityTemplate, error)
	GetWeekOverride(ctx context.Context, key model.EntityKey, weekStart string) (model.WeekOverride, error)
	// PutWeekOverride replaces the whole week.
	PutWeekOverride(ctx context.Context, week model.WeekOverride) (model.WeekOverride, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) GetTemplate(ctx context.Context, key model.EntityKey) (model.AvailabilityTemplate, error) {
	if err := key.Validate(); err != nil {
		return model.AvailabilityTemplate{}, err
	}
	return s.store.GetTemplate(ctx, key)
}

// PutTemplate validates and upserts a template. An empty timezone inherits the business timezone.
func (s *Service) PutTemplate(ctx context.Context, tmpl model.AvailabilityTemplate) (model.AvailabilityTemplate, error) {
	if err := tmpl.EntityKey.Validate(); err != nil {
		return model.AvailabilityTemplate{}, err
	}
	biz, err := s.store.GetBusiness(ctx, tmpl.BusinessID)
	if err != nil {
		return model.AvailabilityTemplate{}, err
	}
	if tmpl.Timezone == "" {
		tmpl.Timezone = biz.Timezone
	}
	if err := tmpl.Validate(); err != nil {
		return model.AvailabilityTemplate{}, err
	}
	return s.store.UpsertTemplate(ctx, tmpl)
}

func (s *Service) GetWeek(ctx context.Context, key model.EntityKey, weekStart string) (model.WeekOverride, error) {
	if err := key.Validate(); err != nil {
		return model.WeekOverride{}, err
	}
	if _, err := monday(weekStart); err != nil {
		return model.WeekOverride{}, err
	}
	return s.store.GetWeekOverride(ctx, key, weekStart)
}

// PutWeek fully replaces the override of one week. Callers submit all seven days.
func (s *Service) PutWeek(ctx context.Context, week model.WeekOverride) (model.WeekOverride, error) {
	if week.Source == "" {
		week.Source = model.SourceManual
	}
	if err := week.Validate(); err != nil {
		return model.WeekOverride{}, err
	}
	if _, err := s.store.GetBusiness(ctx, week.BusinessID); err != nil {
		return model.WeekOverride{}, err
	}
	return s.store.PutWeekOverride(ctx, week)
}

// CopyWeek clones the override of fromWeek into toWeek, shifting the dates.
// It fails with NotFound when fromWeek has no override and leaves toWeek untouched.
func (s *Service) CopyWeek(ctx context.Context, key model.EntityKey, fromWeek, toWeek string) (model.WeekOverride, error) {
	if err := key.Validate(); err != nil {
		return model.WeekOverride{}, err
	}
	from, err := monday(fromWeek)
	if err != nil {
		return model.WeekOverride{}, err
	}
	to, err := monday(toWeek)
	if err != nil {
		return model.WeekOverride{}, err
	}
	if from.Equal(to) {
		return model.WeekOverride{}, fmt.Errorf("%w: source and target week are the same", model.ErrValidation)
	}

	src, err := s.store.GetWeekOverride(ctx, key, fromWeek)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.WeekOverride{}, fmt.Errorf("%w: no override for week %s", model.ErrNotFound, fromWeek)
		}
		return model.WeekOverride{}, err
	}

	days := make([]model.DayOverride, len(src.Days))
	for i, d := range src.Days {
		days[i] = model.DayOverride{
			Date:          model.FormatDate(to.AddDate(0, 0, i)),
			Enabled:       d.Enabled,
			Blocks:        append([]model.Block{}, d.Blocks...),
			BlockedRanges: append([]model.Block{}, d.BlockedRanges...),
		}
	}
	return s.PutWeek(ctx, model.WeekOverride{
		EntityKey:     key,
		WeekStartDate: toWeek,
		Days:          days,
		Source:        model.SourceCopyPrev,
	})
}

// ResetWeek rewrites the week's override from the template's weekly rules.
func (s *Service) ResetWeek(ctx context.Context, key model.EntityKey, weekStart string) (model.WeekOverride, error) {
	if err := key.Validate(); err != nil {
		return model.WeekOverride{}, err
	}
	start, err := monday(weekStart)
	if err != nil {
		return model.WeekOverride{}, err
	}
	tmpl, err := s.store.GetTemplate(ctx, key)
	if err != nil {
		return model.WeekOverride{}, err
	}

	days := make([]model.DayOverride, 7)
	for i := range days {
		date := start.AddDate(0, 0, i)
		day := model.DayOverride{Date: model.FormatDate(date), Blocks: []model.Block{}, BlockedRanges: []model.Block{}}
		if rule, ok := tmpl.Rule(date.Weekday()); ok {
			day.Enabled = rule.Enabled
			day.Blocks = append(day.Blocks, rule.Blocks...)
		}
		days[i] = day
	}
	return s.PutWeek(ctx, model.WeekOverride{
		EntityKey:     key,
		WeekStartDate: weekStart,
		Days:          days,
		Source:        model.SourceResetBase,
	})
}

func monday(weekStart string) (time.Time, error) {
	d, err := model.ParseDate(weekStart)
	if err != nil {
		return time.Time{}, err
	}
	if d.Weekday() != time.Monday {
		return time.Time{}, fmt.Errorf("%w: weekStart %s is not a Monday", model.ErrValidation, weekStart)
	}
	return d, nil
}
