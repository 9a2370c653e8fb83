package model

import (
	"errors"
	"testing"
	"time"
)

func TestWeekStart(t *testing.T) {
	cases := map[string]string{
		"2025-01-06": "2025-01-06", // Monday
		"2025-01-08": "2025-01-06",
		"2025-01-12": "2025-01-06", // Sunday belongs to the previous Monday
		"2025-01-01": "2024-12-30",
	}
	for in, want := range cases {
		d, err := ParseDate(in)
		if err != nil {
			t.Fatalf("ParseDate(%s): %v", in, err)
		}
		if got := FormatDate(WeekStart(d)); got != want {
			t.Fatalf("WeekStart(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestParseClock(t *testing.T) {
	good := map[string]int{"00:00": 0, "09:30": 570, "24:00": 1440}
	for in, want := range good {
		got, err := ParseClock(in)
		if err != nil || got != want {
			t.Fatalf("ParseClock(%s) = %d, %v", in, got, err)
		}
	}
	for _, in := range []string{"9:30", "24:01", "12:60", "noon", ""} {
		if _, err := ParseClock(in); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseClock(%q): expected validation error, got %v", in, err)
		}
	}
}

func TestSpansRejectsOverlap(t *testing.T) {
	_, err := Spans([]Block{{Start: "09:00", End: "12:00"}, {Start: "11:00", End: "13:00"}}, true)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected overlap validation error, got %v", err)
	}
	spans, err := Spans([]Block{{Start: "13:00", End: "17:00"}, {Start: "09:00", End: "12:00"}}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spans[0].Start != 540 || spans[1].Start != 780 {
		t.Fatalf("expected sorted spans, got %#v", spans)
	}
	if _, err := Spans([]Block{{Start: "12:00", End: "12:00"}}, false); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected empty block to be rejected")
	}
}

func TestTemplateValidate(t *testing.T) {
	tmpl := DefaultTemplate(EntityKey{BusinessID: "biz-1", EntityType: EntityBusiness}, "Europe/Berlin")
	if err := tmpl.Validate(); err != nil {
		t.Fatalf("default template must be valid: %v", err)
	}

	bad := tmpl
	bad.WeeklyRules = tmpl.WeeklyRules[:6]
	if err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected 7-entry validation error, got %v", err)
	}

	bad = tmpl
	bad.Timezone = "Mars/Olympus"
	if err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected timezone validation error, got %v", err)
	}

	bad = DefaultTemplate(EntityKey{BusinessID: "biz-1", EntityType: EntityResource}, "UTC")
	if err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected entityId validation error, got %v", err)
	}
}

func TestWeekOverrideValidate(t *testing.T) {
	w := WeekOverride{
		EntityKey:     EntityKey{BusinessID: "biz-1", EntityType: EntityBusiness},
		WeekStartDate: "2025-01-06",
		Source:        SourceManual,
	}
	for i := 0; i < 7; i++ {
		w.Days = append(w.Days, DayOverride{Date: FormatDate(time.Date(2025, 1, 6+i, 0, 0, 0, 0, time.UTC))})
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("expected valid override: %v", err)
	}

	notMonday := w
	notMonday.WeekStartDate = "2025-01-07"
	if err := notMonday.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected Monday validation error, got %v", err)
	}

	short := w
	short.Days = w.Days[:6]
	if err := short.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected length validation error, got %v", err)
	}

	shuffled := w
	shuffled.Days = append([]DayOverride{}, w.Days...)
	shuffled.Days[0], shuffled.Days[1] = shuffled.Days[1], shuffled.Days[0]
	if err := shuffled.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected date order validation error, got %v", err)
	}
}

func TestCapacityLimit(t *testing.T) {
	three := 3
	cases := []struct {
		cfg     BookingCapacityConfig
		limit   int
		bounded bool
	}{
		{BookingCapacityConfig{}, 1, true},
		{BookingCapacityConfig{Mode: CapacitySingle}, 1, true},
		{BookingCapacityConfig{Mode: CapacityMultiple}, 0, false},
		{BookingCapacityConfig{Mode: CapacityMultiple, MaxBookingsPerSlot: &three}, 3, true},
	}
	for _, tc := range cases {
		limit, bounded := tc.cfg.Limit()
		if limit != tc.limit || bounded != tc.bounded {
			t.Fatalf("Limit(%+v) = %d,%v want %d,%v", tc.cfg, limit, bounded, tc.limit, tc.bounded)
		}
	}
}

func TestBookingOccupiesWithBuffer(t *testing.T) {
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	b := Booking{ScheduledAt: start, EndAt: start.Add(time.Hour), Status: BookingConfirmed}

	if b.Occupies(start.Add(time.Hour), start.Add(2*time.Hour), 0) {
		t.Fatalf("adjacent slot must not overlap without buffer")
	}
	if !b.Occupies(start.Add(time.Hour), start.Add(2*time.Hour), 15*time.Minute) {
		t.Fatalf("adjacent slot must overlap with 15m buffer")
	}
	b.Status = BookingCancelled
	if b.Occupies(start, start.Add(time.Hour), 0) {
		t.Fatalf("cancelled bookings never occupy")
	}
}

func TestTransitions(t *testing.T) {
	if !CanTransition(BookingPending, BookingConfirmed) || !CanTransition(BookingConfirmed, BookingCompleted) {
		t.Fatalf("expected forward transitions to be allowed")
	}
	if CanTransition(BookingCancelled, BookingConfirmed) || CanTransition(BookingPending, BookingCompleted) {
		t.Fatalf("unexpected transition allowed")
	}
	if len(AllowedFrom(BookingCancelled)) != 2 {
		t.Fatalf("cancel must be reachable from pending and confirmed")
	}
}

func TestHoldActiveAtBoundary(t *testing.T) {
	created := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	h := Hold{CreatedAt: created, ExpiresAt: created.Add(5 * time.Minute)}
	if !h.ActiveAt(h.ExpiresAt.Add(-time.Millisecond)) {
		t.Fatalf("hold must be active 1ms before expiry")
	}
	if h.ActiveAt(h.ExpiresAt.Add(time.Millisecond)) {
		t.Fatalf("hold must be free 1ms after expiry")
	}
}
