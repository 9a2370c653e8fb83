package availability

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) overlaps(start, end time.Time) bool {
	return start.Before(iv.End) && end.After(iv.Start)
}

type candidate struct {
	minute int
	at     time.Time
	end    time.Time
	open   bool
}

// candidates enumerates the stride grid of every opening block. A start is kept only
// when the whole service duration fits before the block end. open reports whether the
// candidate also avoids every blocked range.
func (sc scope) candidates(day DayConfig) []candidate {
	if !day.Enabled {
		return nil
	}
	openSpans := day.Open()
	var out []candidate
	for _, b := range day.Blocks {
		for m := b.Start; m+sc.duration <= b.End; m += sc.stride {
			at := model.LocalTime(day.Date, m, sc.loc)
			// Wall-clock times skipped by a DST jump do not exist.
			if at.Hour()*60+at.Minute() != m%model.MinutesPerDay {
				continue
			}
			out = append(out, candidate{
				minute: m,
				at:     at,
				end:    at.Add(time.Duration(sc.duration) * time.Minute),
				open:   containedIn(m, m+sc.duration, openSpans),
			})
		}
	}
	return out
}

// occupancy is the booking and hold snapshot a query is evaluated against.
type occupancy struct {
	// busy holds the buffered intervals of in-scope bookings, with their resource.
	busy []busyInterval
	// holds are the holds active at query time.
	holds []model.Hold
}

type busyInterval struct {
	Interval
	resourceID string
}

func (e *Engine) occupancy(ctx context.Context, sc scope, from, to time.Time) (occupancy, error) {
	bookings, err := e.store.ListActiveBookings(ctx, sc.business.ID, from, to)
	if err != nil {
		return occupancy{}, err
	}
	var occ occupancy
	for _, b := range bookings {
		if b.Status == model.BookingCancelled || !sc.inScope(b) {
			continue
		}
		occ.busy = append(occ.busy, busyInterval{
			Interval:   Interval{Start: b.ScheduledAt.Add(-sc.buffer), End: b.EndAt.Add(sc.buffer)},
			resourceID: b.ResourceID,
		})
	}
	if sc.resources != nil {
		holds, err := e.store.ListHolds(ctx, sc.business.ID, from, to)
		if err != nil {
			return occupancy{}, err
		}
		now := e.now()
		for _, h := range holds {
			if h.ActiveAt(now) {
				occ.holds = append(occ.holds, h)
			}
		}
	}
	return occ, nil
}

// inScope reports whether a booking consumes capacity of the queried entity.
func (sc scope) inScope(b model.Booking) bool {
	switch sc.key.EntityType {
	case model.EntityProvider:
		return b.ProviderID == sc.key.EntityID
	case model.EntityResource:
		return b.ResourceID == sc.key.EntityID
	default:
		return true
	}
}

// remaining returns the free capacity for [start, end). bounded is false when
// the business allows unlimited concurrent bookings.
//
// For resource services capacity is the active resource count minus resources whose
// bookings or active holds overlap the span; the business capacity config does not
// apply, so reads agree with the hold and promotion checks.
func (sc scope) remaining(occ occupancy, start, end time.Time) (left int, bounded bool) {
	if sc.resources == nil {
		limit, bounded := sc.business.Capacity.Limit()
		if !bounded {
			return 0, false
		}
		used := 0
		for _, b := range occ.busy {
			if b.overlaps(start, end) {
				used++
			}
		}
		return max(limit-used, 0), true
	}

	taken := map[string]bool{}
	for _, b := range occ.busy {
		if b.overlaps(start, end) {
			taken[b.resourceID] = true
		}
	}
	for _, h := range occ.holds {
		if h.Occupies(start, end, sc.buffer) {
			taken[h.ResourceID] = true
		}
	}
	left = 0
	for _, id := range sc.resources {
		if !taken[id] {
			left++
		}
	}
	return left, true
}

// grid renders every candidate of the day. Blocked, full and past times stay in the
// grid with IsAvailable=false.
func (sc scope) grid(day DayConfig, occ occupancy, earliest time.Time) []Slot {
	slots := []Slot{}
	for _, c := range sc.candidates(day) {
		left, bounded := sc.remaining(occ, c.at, c.end)
		s := Slot{
			Time:     model.FormatClock(c.minute),
			StartsAt: c.at.UTC(),
		}
		if bounded {
			v := left
			s.Remaining = &v
		}
		s.IsAvailable = c.open && !c.at.Before(earliest) && (!bounded || left > 0)
		slots = append(slots, s)
	}
	return slots
}
