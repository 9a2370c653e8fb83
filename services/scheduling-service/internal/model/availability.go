package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type EntityType string

const (
	EntityBusiness EntityType = "BUSINESS"
	EntityResource EntityType = "RESOURCE"
	EntityProvider EntityType = "PROVIDER"
)

func ParseEntityType(raw string) (EntityType, error) {
	switch EntityType(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", EntityBusiness:
		return EntityBusiness, nil
	case EntityResource:
		return EntityResource, nil
	case EntityProvider:
		return EntityProvider, nil
	default:
		return "", fmt.Errorf("%w: unknown entityType %q", ErrValidation, raw)
	}
}

// EntityKey identifies the scheduling subject a template or override belongs to.
type EntityKey struct {
	BusinessID string     `json:"businessId"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId,omitempty"`
}

func (k EntityKey) Validate() error {
	if strings.TrimSpace(k.BusinessID) == "" {
		return fmt.Errorf("%w: businessId is required", ErrValidation)
	}
	switch k.EntityType {
	case EntityBusiness:
		if k.EntityID != "" {
			return fmt.Errorf("%w: entityId must be empty for BUSINESS", ErrValidation)
		}
	case EntityResource, EntityProvider:
		if strings.TrimSpace(k.EntityID) == "" {
			return fmt.Errorf("%w: entityId is required for %s", ErrValidation, k.EntityType)
		}
	default:
		return fmt.Errorf("%w: unknown entityType %q", ErrValidation, k.EntityType)
	}
	return nil
}

func (k EntityKey) String() string {
	if k.EntityID == "" {
		return k.BusinessID + "/" + string(k.EntityType)
	}
	return k.BusinessID + "/" + string(k.EntityType) + "/" + k.EntityID
}

// Block is a same-day time range in "HH:MM" wall-clock notation, start inclusive, end exclusive.
type Block struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Span is a Block converted to minutes after midnight.
type Span struct {
	Start int
	End   int
}

func (b Block) Span() (Span, error) {
	start, err := ParseClock(b.Start)
	if err != nil {
		return Span{}, err
	}
	end, err := ParseClock(b.End)
	if err != nil {
		return Span{}, err
	}
	if start >= end {
		return Span{}, fmt.Errorf("%w: block %s-%s must start before it ends", ErrValidation, b.Start, b.End)
	}
	return Span{Start: start, End: end}, nil
}

// Spans converts and sorts blocks. When disjoint is set, overlapping blocks are rejected.
func Spans(blocks []Block, disjoint bool) ([]Span, error) {
	spans := make([]Span, 0, len(blocks))
	for _, b := range blocks {
		s, err := b.Span()
		if err != nil {
			return nil, err
		}
		spans = append(spans, s)
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start == spans[j].Start {
			return spans[i].End < spans[j].End
		}
		return spans[i].Start < spans[j].Start
	})
	if disjoint {
		for i := 1; i < len(spans); i++ {
			if spans[i].Start < spans[i-1].End {
				return nil, fmt.Errorf("%w: blocks %s-%s and %s-%s overlap", ErrValidation,
					FormatClock(spans[i-1].Start), FormatClock(spans[i-1].End),
					FormatClock(spans[i].Start), FormatClock(spans[i].End))
			}
		}
	}
	return spans, nil
}

type WeeklyRule struct {
	DayOfWeek int     `json:"dayOfWeek"`
	Enabled   bool    `json:"enabled"`
	Blocks    []Block `json:"blocks"`
}

// AvailabilityTemplate is the recurring weekly pattern for one entity.
type AvailabilityTemplate struct {
	EntityKey
	Timezone            string       `json:"timezone"`
	SlotDurationMinutes int          `json:"slotDurationMinutes"`
	BufferMinutes       int          `json:"bufferMinutes"`
	WeeklyRules         []WeeklyRule `json:"weeklyRules"`
	Version             int          `json:"version"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

// Rule returns the weekly rule for weekday, if configured.
func (t AvailabilityTemplate) Rule(weekday time.Weekday) (WeeklyRule, bool) {
	for _, r := range t.WeeklyRules {
		if r.DayOfWeek == int(weekday) {
			return r, true
		}
	}
	return WeeklyRule{}, false
}

func (t AvailabilityTemplate) Validate() error {
	if err := t.EntityKey.Validate(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(t.Timezone); err != nil || strings.TrimSpace(t.Timezone) == "" {
		return fmt.Errorf("%w: unknown timezone %q", ErrValidation, t.Timezone)
	}
	if t.SlotDurationMinutes < 5 || t.SlotDurationMinutes > MinutesPerDay {
		return fmt.Errorf("%w: slotDurationMinutes must be between 5 and %d", ErrValidation, MinutesPerDay)
	}
	if t.BufferMinutes < 0 || t.BufferMinutes > 240 {
		return fmt.Errorf("%w: bufferMinutes must be between 0 and 240", ErrValidation)
	}
	if len(t.WeeklyRules) != 7 {
		return fmt.Errorf("%w: weeklyRules must have exactly 7 entries (got %d)", ErrValidation, len(t.WeeklyRules))
	}
	seen := make(map[int]bool, 7)
	for _, r := range t.WeeklyRules {
		if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
			return fmt.Errorf("%w: dayOfWeek must be 0-6 (got %d)", ErrValidation, r.DayOfWeek)
		}
		if seen[r.DayOfWeek] {
			return fmt.Errorf("%w: duplicate dayOfWeek %d", ErrValidation, r.DayOfWeek)
		}
		seen[r.DayOfWeek] = true
		if _, err := Spans(r.Blocks, true); err != nil {
			return err
		}
	}
	return nil
}

// DefaultTemplate is the onboarding schedule: Monday to Friday 09:00-17:00.
func DefaultTemplate(key EntityKey, timezone string) AvailabilityTemplate {
	if strings.TrimSpace(timezone) == "" {
		timezone = "UTC"
	}
	rules := make([]WeeklyRule, 0, 7)
	for d := 0; d < 7; d++ {
		r := WeeklyRule{DayOfWeek: d, Blocks: []Block{}}
		if d >= int(time.Monday) && d <= int(time.Friday) {
			r.Enabled = true
			r.Blocks = []Block{{Start: "09:00", End: "17:00"}}
		}
		rules = append(rules, r)
	}
	return AvailabilityTemplate{
		EntityKey:           key,
		Timezone:            timezone,
		SlotDurationMinutes: 30,
		WeeklyRules:         rules,
	}
}

type OverrideSource string

const (
	SourceManual    OverrideSource = "MANUAL"
	SourceCopyPrev  OverrideSource = "COPY_PREV"
	SourceResetBase OverrideSource = "RESET_BASE"
)

type DayOverride struct {
	Date          string  `json:"date"`
	Enabled       bool    `json:"enabled"`
	Blocks        []Block `json:"blocks"`
	BlockedRanges []Block `json:"blockedRanges"`
}

// WeekOverride replaces the template for the seven dates of one ISO week.
type WeekOverride struct {
	EntityKey
	WeekStartDate string         `json:"weekStartDate"`
	Days          []DayOverride  `json:"days"`
	Source        OverrideSource `json:"source"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Day returns the override entry for the given calendar date.
func (w WeekOverride) Day(date string) (DayOverride, bool) {
	for _, d := range w.Days {
		if d.Date == date {
			return d, true
		}
	}
	return DayOverride{}, false
}

func (w WeekOverride) Validate() error {
	if err := w.EntityKey.Validate(); err != nil {
		return err
	}
	start, err := ParseDate(w.WeekStartDate)
	if err != nil {
		return err
	}
	if start.Weekday() != time.Monday {
		return fmt.Errorf("%w: weekStartDate %s is not a Monday", ErrValidation, w.WeekStartDate)
	}
	if len(w.Days) != 7 {
		return fmt.Errorf("%w: days must have exactly 7 entries (got %d)", ErrValidation, len(w.Days))
	}
	for i, d := range w.Days {
		want := FormatDate(start.AddDate(0, 0, i))
		if d.Date != want {
			return fmt.Errorf("%w: days[%d].date must be %s (got %q)", ErrValidation, i, want, d.Date)
		}
		if _, err := Spans(d.Blocks, true); err != nil {
			return err
		}
		if _, err := Spans(d.BlockedRanges, false); err != nil {
			return err
		}
	}
	switch w.Source {
	case SourceManual, SourceCopyPrev, SourceResetBase:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrValidation, w.Source)
	}
	return nil
}
