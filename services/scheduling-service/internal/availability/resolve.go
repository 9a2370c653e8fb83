package availability

import (
	"time"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

// DaySource records which layer of the precedence chain decided a day.
type DaySource string

const (
	FromOverride DaySource = "OVERRIDE"
	FromTemplate DaySource = "TEMPLATE"
	FromDefault  DaySource = "CLOSED"
)

// DayConfig is the effective configuration of one calendar date.
type DayConfig struct {
	Date    time.Time
	Enabled bool
	Blocks  []model.Span
	Blocked []model.Span
	Source  DaySource
}

// Open returns the effective open time: blocks minus blocked ranges.
func (d DayConfig) Open() []model.Span {
	if !d.Enabled {
		return nil
	}
	var out []model.Span
	for _, b := range d.Blocks {
		out = append(out, subtractSpans(b, d.Blocked)...)
	}
	return out
}

// ResolveDay applies the precedence chain for date: the week override's entry for
// that date, then the template's rule for the weekday, then closed. Both override
// and tmpl may be nil.
func ResolveDay(date time.Time, override *model.WeekOverride, tmpl *model.AvailabilityTemplate) (DayConfig, error) {
	if override != nil {
		if day, ok := override.Day(model.FormatDate(date)); ok {
			blocks, err := model.Spans(day.Blocks, true)
			if err != nil {
				return DayConfig{}, err
			}
			blocked, err := model.Spans(day.BlockedRanges, false)
			if err != nil {
				return DayConfig{}, err
			}
			return DayConfig{
				Date:    date,
				Enabled: day.Enabled && len(blocks) > 0,
				Blocks:  blocks,
				Blocked: blocked,
				Source:  FromOverride,
			}, nil
		}
	}
	if tmpl != nil {
		if rule, ok := tmpl.Rule(date.Weekday()); ok {
			blocks, err := model.Spans(rule.Blocks, true)
			if err != nil {
				return DayConfig{}, err
			}
			return DayConfig{
				Date:    date,
				Enabled: rule.Enabled && len(blocks) > 0,
				Blocks:  blocks,
				Source:  FromTemplate,
			}, nil
		}
	}
	return DayConfig{Date: date, Source: FromDefault}, nil
}
