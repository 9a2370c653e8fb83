package holds

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/storage/memstore"
)

var slotAt = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func setup(t *testing.T) (*Manager, *memstore.Store, *clock) {
	t.Helper()
	ctx := context.Background()
	clk := &clock{t: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	store := memstore.New().WithClock(clk.Now)

	// SINGLE is the catalog default; resource services must still offer every bike.
	if _, err := store.UpsertBusiness(ctx, model.Business{ID: "studio", Timezone: "UTC", Capacity: model.BookingCapacityConfig{Mode: model.CapacitySingle}}); err != nil {
		t.Fatalf("business: %v", err)
	}
	if _, err := store.UpsertService(ctx, model.Service{ID: "spin", BusinessID: "studio", DurationMinutes: 45, RequiresResource: true, Active: true}); err != nil {
		t.Fatalf("service: %v", err)
	}
	if _, err := store.UpsertService(ctx, model.Service{ID: "consult", BusinessID: "studio", DurationMinutes: 30, Active: true}); err != nil {
		t.Fatalf("service: %v", err)
	}
	if _, err := store.SeedTemplate(ctx, model.DefaultTemplate(model.EntityKey{BusinessID: "studio", EntityType: model.EntityBusiness}, "UTC")); err != nil {
		t.Fatalf("template: %v", err)
	}
	if _, err := store.PutResourceMap(ctx, model.ResourceMap{BusinessID: "studio", Rows: 1, Cols: 3, Resources: []model.Resource{
		{ID: "bike-1", Label: "Bike 1", IsActive: true, Position: model.Position{Row: 0, Col: 0}},
		{ID: "bike-2", Label: "Bike 2", IsActive: true, Position: model.Position{Row: 0, Col: 1}},
		{ID: "bike-3", Label: "Bike 3", IsActive: false, Position: model.Position{Row: 0, Col: 2}},
	}}); err != nil {
		t.Fatalf("resource map: %v", err)
	}

	engine := availability.NewEngine(store, availability.WithClock(clk.Now))
	return NewManager(store, engine, WithClock(clk.Now), WithTTL(5*time.Minute)), store, clk
}

// slotState returns the engine's view of one spin start on slotAt's day.
func slotState(t *testing.T, store *memstore.Store, clk *clock, at time.Time) availability.Slot {
	t.Helper()
	engine := availability.NewEngine(store, availability.WithClock(clk.Now))
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	days, err := engine.ComputeSlots(context.Background(), availability.Query{
		BusinessID: "studio", ServiceID: "spin", StartDate: day, EndDate: day,
	})
	if err != nil {
		t.Fatalf("compute slots: %v", err)
	}
	for _, s := range days[0].Slots {
		if s.StartsAt.Equal(at) {
			return s
		}
	}
	t.Fatalf("no slot at %s", at)
	return availability.Slot{}
}

func holdReq(resource, session string) CreateRequest {
	return CreateRequest{BusinessID: "studio", ServiceID: "spin", ResourceID: resource, ScheduledAt: slotAt, SessionID: session}
}

func TestCreateHold_ConcurrentSessionsExactlyOneWins(t *testing.T) {
	m, _, _ := setup(t)
	ctx := context.Background()

	const sessions = 16
	var wg sync.WaitGroup
	results := make([]error, sessions)
	start := make(chan struct{})
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = m.CreateHold(ctx, holdReq("bike-1", "session-"+string(rune('a'+i))))
		}(i)
	}
	close(start)
	wg.Wait()

	winner := -1
	for i, err := range results {
		switch {
		case err == nil:
			if winner >= 0 {
				t.Fatalf("sessions %d and %d both acquired the hold", winner, i)
			}
			winner = i
		case !errors.Is(err, model.ErrConflict):
			t.Fatalf("expected conflict, got %v", err)
		}
	}
	if winner < 0 {
		t.Fatalf("expected one session to win")
	}

	loser := "session-" + string(rune('a'+(winner+1)%sessions))
	av, err := m.GetAvailability(ctx, "studio", "spin", slotAt, loser)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if !reflect.DeepEqual(av.OccupiedResourceIDs, []string{"bike-1"}) || av.UserHoldResourceID != nil {
		t.Fatalf("loser should see bike-1 occupied: %+v", av)
	}
}

func TestCreateHold_EngineAgreesWithHoldsInSingleMode(t *testing.T) {
	m, store, clk := setup(t)
	ctx := context.Background()

	if _, err := m.CreateHold(ctx, holdReq("bike-1", "alice")); err != nil {
		t.Fatalf("alice: %v", err)
	}
	if s := slotState(t, store, clk, slotAt); !s.IsAvailable || s.Remaining == nil || *s.Remaining != 1 {
		t.Fatalf("bike-2 is free, expected one left: %+v", s)
	}
	if _, err := m.CreateHold(ctx, holdReq("bike-2", "bob")); err != nil {
		t.Fatalf("bob: %v", err)
	}
	if s := slotState(t, store, clk, slotAt); s.IsAvailable || *s.Remaining != 0 {
		t.Fatalf("both bikes held, expected the slot full: %+v", s)
	}
	if _, err := m.CreateHold(ctx, holdReq("bike-1", "carol")); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict for carol, got %v", err)
	}
}

func TestCreateHold_OverlappingStartOnSameResourceConflicts(t *testing.T) {
	m, store, clk := setup(t)
	ctx := context.Background()
	later := slotAt.Add(30 * time.Minute)

	if _, err := m.CreateHold(ctx, holdReq("bike-1", "alice")); err != nil {
		t.Fatalf("alice: %v", err)
	}
	req := holdReq("bike-1", "bob")
	req.ScheduledAt = later
	if _, err := m.CreateHold(ctx, req); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("10:30 overlaps alice's 10:00-10:45 on bike-1, got %v", err)
	}
	req.ResourceID = "bike-2"
	if _, err := m.CreateHold(ctx, req); err != nil {
		t.Fatalf("bike-2 at 10:30: %v", err)
	}

	av, err := m.GetAvailability(ctx, "studio", "spin", later, "carol")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if !reflect.DeepEqual(av.OccupiedResourceIDs, []string{"bike-1", "bike-2"}) {
		t.Fatalf("expected both bikes occupied at 10:30: %+v", av)
	}
	if s := slotState(t, store, clk, later); s.IsAvailable {
		t.Fatalf("expected 10:30 full: %+v", s)
	}

	req = holdReq("bike-1", "bob")
	req.ScheduledAt = slotAt.Add(time.Hour)
	if _, err := m.CreateHold(ctx, req); err != nil {
		t.Fatalf("11:00 starts after alice's hold ends: %v", err)
	}
}

func TestCreateHold_SameSessionSwitchesResource(t *testing.T) {
	m, store, _ := setup(t)
	ctx := context.Background()

	if _, err := m.CreateHold(ctx, holdReq("bike-1", "alice")); err != nil {
		t.Fatalf("first hold: %v", err)
	}
	// Re-holding the same key refreshes it.
	if _, err := m.CreateHold(ctx, holdReq("bike-1", "alice")); err != nil {
		t.Fatalf("repeat hold: %v", err)
	}
	if _, err := m.CreateHold(ctx, holdReq("bike-2", "alice")); err != nil {
		t.Fatalf("switch hold: %v", err)
	}

	av, err := m.GetAvailability(ctx, "studio", "spin", slotAt, "alice")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if av.UserHoldResourceID == nil || *av.UserHoldResourceID != "bike-2" || len(av.OccupiedResourceIDs) != 0 {
		t.Fatalf("expected alice on bike-2 only: %+v", av)
	}
	if _, err := m.CreateHold(ctx, holdReq("bike-1", "bob")); err != nil {
		t.Fatalf("bike-1 should be free for bob: %v", err)
	}

	want := []string{"resource.hold.created.v1", "resource.hold.created.v1", "resource.hold.released.v1", "resource.hold.created.v1", "resource.hold.created.v1"}
	if got := store.EventTypes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestHold_ExpiresLazilyAtTTL(t *testing.T) {
	m, _, clk := setup(t)
	ctx := context.Background()

	h, err := m.CreateHold(ctx, holdReq("bike-1", "alice"))
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	if want := clk.Now().Add(5 * time.Minute); !h.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiresAt %v, got %v", want, h.ExpiresAt)
	}

	clk.Set(h.ExpiresAt.Add(-time.Millisecond))
	av, err := m.GetAvailability(ctx, "studio", "spin", slotAt, "bob")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if !reflect.DeepEqual(av.OccupiedResourceIDs, []string{"bike-1"}) {
		t.Fatalf("expected bike-1 held just before expiry: %+v", av)
	}
	if _, err := m.CreateHold(ctx, holdReq("bike-1", "bob")); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict before expiry, got %v", err)
	}

	clk.Set(h.ExpiresAt.Add(time.Millisecond))
	av, err = m.GetAvailability(ctx, "studio", "spin", slotAt, "bob")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(av.OccupiedResourceIDs) != 0 {
		t.Fatalf("expected bike-1 free after expiry: %+v", av)
	}
	if _, err := m.CreateHold(ctx, holdReq("bike-1", "bob")); err != nil {
		t.Fatalf("expected bob to take the expired key: %v", err)
	}
}

func TestGetAvailability_Idempotent(t *testing.T) {
	m, store, _ := setup(t)
	ctx := context.Background()

	if _, err := m.CreateHold(ctx, holdReq("bike-1", "alice")); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if _, err := store.InsertBooking(ctx, model.CapacityRequest{Booking: model.Booking{
		ID: "b1", BusinessID: "studio", ServiceID: "spin", ResourceID: "bike-2",
		ScheduledAt: slotAt.Add(-30 * time.Minute), EndAt: slotAt.Add(15 * time.Minute), Status: model.BookingConfirmed,
	}}); err != nil {
		t.Fatalf("booking: %v", err)
	}

	first, err := m.GetAvailability(ctx, "studio", "spin", slotAt, "alice")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	second, err := m.GetAvailability(ctx, "studio", "spin", slotAt, "alice")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("availability changed between calls:\n%+v\n%+v", first, second)
	}
	if *first.UserHoldResourceID != "bike-1" || !reflect.DeepEqual(first.OccupiedResourceIDs, []string{"bike-2"}) {
		t.Fatalf("unexpected availability %+v", first)
	}
	if len(first.ResourceConfig.Resources) != 3 {
		t.Fatalf("expected the full grid, got %+v", first.ResourceConfig)
	}
}

func TestCreateHold_BookedResourceConflicts(t *testing.T) {
	m, store, _ := setup(t)
	ctx := context.Background()

	if _, err := store.InsertBooking(ctx, model.CapacityRequest{Booking: model.Booking{
		ID: "b1", BusinessID: "studio", ServiceID: "spin", ResourceID: "bike-1",
		ScheduledAt: slotAt, EndAt: slotAt.Add(45 * time.Minute), Status: model.BookingPending,
	}}); err != nil {
		t.Fatalf("booking: %v", err)
	}
	if _, err := m.CreateHold(ctx, holdReq("bike-1", "alice")); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict on booked resource, got %v", err)
	}
	if _, err := m.CreateHold(ctx, holdReq("bike-2", "alice")); err != nil {
		t.Fatalf("bike-2 should be free: %v", err)
	}
}

func TestCreateHold_Validation(t *testing.T) {
	m, _, _ := setup(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"missing session", holdReq("bike-1", ""), model.ErrValidation},
		{"inactive resource", holdReq("bike-3", "alice"), model.ErrValidation},
		{"unknown resource", holdReq("bike-9", "alice"), model.ErrNotFound},
		{"non resource service", CreateRequest{BusinessID: "studio", ServiceID: "consult", ResourceID: "bike-1", ScheduledAt: slotAt, SessionID: "alice"}, model.ErrValidation},
		{"off grid", CreateRequest{BusinessID: "studio", ServiceID: "spin", ResourceID: "bike-1", ScheduledAt: slotAt.Add(10 * time.Minute), SessionID: "alice"}, model.ErrValidation},
		{"closed day", CreateRequest{BusinessID: "studio", ServiceID: "spin", ResourceID: "bike-1", ScheduledAt: slotAt.AddDate(0, 0, -1), SessionID: "alice"}, model.ErrValidation},
		{"unknown business", CreateRequest{BusinessID: "gym", ServiceID: "spin", ResourceID: "bike-1", ScheduledAt: slotAt, SessionID: "alice"}, model.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.CreateHold(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestReleaseHold(t *testing.T) {
	m, _, _ := setup(t)
	ctx := context.Background()

	if _, err := m.CreateHold(ctx, holdReq("bike-1", "alice")); err != nil {
		t.Fatalf("hold: %v", err)
	}
	rel := ReleaseRequest{BusinessID: "studio", ResourceID: "bike-1", ScheduledAt: slotAt, SessionID: "bob"}
	if _, err := m.ReleaseHold(ctx, rel); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found for foreign session, got %v", err)
	}
	rel.SessionID = "alice"
	if _, err := m.ReleaseHold(ctx, rel); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := m.ReleaseHold(ctx, rel); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected second release to be not found, got %v", err)
	}
	if _, err := m.CreateHold(ctx, holdReq("bike-1", "bob")); err != nil {
		t.Fatalf("bike-1 should be free after release: %v", err)
	}
}

func TestReaper_DeletesExpiredHolds(t *testing.T) {
	m, store, clk := setup(t)
	ctx := context.Background()

	for _, r := range []string{"bike-1", "bike-2"} {
		if _, err := m.CreateHold(ctx, holdReq(r, "session-"+r)); err != nil {
			t.Fatalf("hold: %v", err)
		}
	}
	clk.Set(clk.Now().Add(6 * time.Minute))

	reaper := NewReaper(store, slog.New(slog.NewTextHandler(io.Discard, nil)), ReaperConfig{BatchSize: 1})
	reaper.now = clk.Now
	n, err := reaper.ReapOnce(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 reaped holds, got %d", n)
	}
	holds, _ := store.ListHolds(ctx, "studio", slotAt, slotAt.Add(time.Minute))
	if len(holds) != 0 {
		t.Fatalf("expected no rows left, got %v", holds)
	}
	expired := 0
	for _, typ := range store.EventTypes() {
		if typ == "resource.hold.expired.v1" {
			expired++
		}
	}
	if expired != 2 {
		t.Fatalf("expected 2 expired events, got %d", expired)
	}
}
