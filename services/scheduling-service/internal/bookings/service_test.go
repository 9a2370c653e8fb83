package bookings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/holds"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/storage/memstore"
)

var slotAt = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store *memstore.Store
	svc   *Service
	holds *holds.Manager
	now   time.Time
}

func setup(t *testing.T, biz model.Business) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.store = memstore.New().WithClock(clock)

	biz.ID = "studio"
	biz.Timezone = "UTC"
	if _, err := f.store.UpsertBusiness(ctx, biz); err != nil {
		t.Fatalf("business: %v", err)
	}
	for _, s := range []model.Service{
		{ID: "spin", BusinessID: "studio", DurationMinutes: 45, RequiresResource: true, Active: true},
		{ID: "consult", BusinessID: "studio", DurationMinutes: 60, Active: true},
	} {
		if _, err := f.store.UpsertService(ctx, s); err != nil {
			t.Fatalf("service: %v", err)
		}
	}
	if _, err := f.store.SeedTemplate(ctx, model.DefaultTemplate(model.EntityKey{BusinessID: "studio", EntityType: model.EntityBusiness}, "UTC")); err != nil {
		t.Fatalf("template: %v", err)
	}
	if _, err := f.store.PutResourceMap(ctx, model.ResourceMap{BusinessID: "studio", Resources: []model.Resource{
		{ID: "bike-1", Label: "1", IsActive: true},
		{ID: "bike-2", Label: "2", IsActive: true},
	}}); err != nil {
		t.Fatalf("resource map: %v", err)
	}

	engine := availability.NewEngine(f.store, availability.WithClock(clock))
	f.holds = holds.NewManager(f.store, engine, holds.WithClock(clock))
	f.svc = NewService(f.store, engine).WithClock(clock)
	n := 0
	f.svc.newID = func() string {
		n++
		return fmt.Sprintf("bk-%d", n)
	}
	return f
}

func (f *fixture) hold(t *testing.T, resource, session string) model.Hold {
	t.Helper()
	h, err := f.holds.CreateHold(context.Background(), holds.CreateRequest{BusinessID: "studio", ServiceID: "spin", ResourceID: resource, ScheduledAt: slotAt, SessionID: session})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	return h
}

func spinRequest(resource, session string) CreateRequest {
	return CreateRequest{BusinessID: "studio", ServiceID: "spin", ScheduledAt: slotAt, ResourceID: resource, SessionID: session, CustomerEmail: "rider@example.com"}
}

func TestCreate_PromotesHold(t *testing.T) {
	f := setup(t, model.Business{Capacity: model.BookingCapacityConfig{Mode: model.CapacityMultiple}})
	ctx := context.Background()
	f.hold(t, "bike-1", "alice")

	b, replayed, err := f.svc.Create(ctx, spinRequest("bike-1", "alice"), "")
	if err != nil || replayed {
		t.Fatalf("create: %v replayed=%v", err, replayed)
	}
	if b.Status != model.BookingConfirmed || b.PaymentStatus != model.PaymentNotRequired {
		t.Fatalf("unexpected booking %+v", b)
	}
	if !b.EndAt.Equal(slotAt.Add(45 * time.Minute)) {
		t.Fatalf("unexpected end %v", b.EndAt)
	}

	// The hold is gone and the booking now occupies the resource.
	av, err := f.holds.GetAvailability(ctx, "studio", "spin", slotAt, "alice")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if av.UserHoldResourceID != nil || len(av.OccupiedResourceIDs) != 1 || av.OccupiedResourceIDs[0] != "bike-1" {
		t.Fatalf("unexpected availability %+v", av)
	}
	types := f.store.EventTypes()
	if got := types[len(types)-2:]; got[0] != "resource.hold.promoted.v1" || got[1] != "booking.created.v1" {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestCreate_SingleModeBusinessBooksEveryResource(t *testing.T) {
	f := setup(t, model.Business{Capacity: model.BookingCapacityConfig{Mode: model.CapacitySingle}})
	ctx := context.Background()
	f.hold(t, "bike-1", "alice")
	f.hold(t, "bike-2", "bob")

	for _, r := range []struct{ resource, session string }{{"bike-1", "alice"}, {"bike-2", "bob"}} {
		if _, _, err := f.svc.Create(ctx, spinRequest(r.resource, r.session), ""); err != nil {
			t.Fatalf("%s on %s: %v", r.session, r.resource, err)
		}
	}

	engine := availability.NewEngine(f.store, availability.WithClock(func() time.Time { return f.now }))
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	days, err := engine.ComputeSlots(ctx, availability.Query{BusinessID: "studio", ServiceID: "spin", StartDate: day, EndDate: day})
	if err != nil {
		t.Fatalf("compute slots: %v", err)
	}
	for _, sl := range days[0].Slots {
		if sl.StartsAt.Equal(slotAt) && (sl.IsAvailable || *sl.Remaining != 0) {
			t.Fatalf("both bikes booked, expected 10:00 full: %+v", sl)
		}
		if sl.StartsAt.Equal(slotAt.Add(2*time.Hour)) && *sl.Remaining != 2 {
			t.Fatalf("expected both bikes free at 12:00: %+v", sl)
		}
	}
}

func TestCreate_PromotionFailures(t *testing.T) {
	f := setup(t, model.Business{Capacity: model.BookingCapacityConfig{Mode: model.CapacityMultiple}})
	ctx := context.Background()
	h := f.hold(t, "bike-1", "alice")

	if _, _, err := f.svc.Create(ctx, spinRequest("bike-1", "bob"), ""); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict for foreign session, got %v", err)
	}
	if _, _, err := f.svc.Create(ctx, spinRequest("bike-2", "alice"), ""); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict without a hold, got %v", err)
	}
	if _, _, err := f.svc.Create(ctx, CreateRequest{BusinessID: "studio", ServiceID: "spin", ScheduledAt: slotAt}, ""); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation without resource, got %v", err)
	}

	f.now = h.ExpiresAt
	if _, _, err := f.svc.Create(ctx, spinRequest("bike-1", "alice"), ""); !errors.Is(err, model.ErrExpired) {
		t.Fatalf("expected expired hold, got %v", err)
	}
}

func TestCreate_CapacityLimit(t *testing.T) {
	two := 2
	f := setup(t, model.Business{Capacity: model.BookingCapacityConfig{Mode: model.CapacityMultiple, MaxBookingsPerSlot: &two}})
	ctx := context.Background()
	req := CreateRequest{BusinessID: "studio", ServiceID: "consult", ScheduledAt: slotAt}

	for i := 0; i < 2; i++ {
		if _, _, err := f.svc.Create(ctx, req, ""); err != nil {
			t.Fatalf("booking %d: %v", i, err)
		}
	}
	if _, _, err := f.svc.Create(ctx, req, ""); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected full slot, got %v", err)
	}
}

func TestCreate_ConcurrentSingleCapacity(t *testing.T) {
	f := setup(t, model.Business{})
	ctx := context.Background()
	var mu sync.Mutex
	n := 0
	f.svc.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("bk-%d", n)
	}
	req := CreateRequest{BusinessID: "studio", ServiceID: "consult", ScheduledAt: slotAt}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = f.svc.Create(ctx, req, "")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, model.ErrConflict) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one booking, got %d", ok)
	}
}

func TestCreate_IdempotencyKeyReplays(t *testing.T) {
	f := setup(t, model.Business{RequiresPayment: true})
	ctx := context.Background()
	req := CreateRequest{BusinessID: "studio", ServiceID: "consult", ScheduledAt: slotAt}

	first, replayed, err := f.svc.Create(ctx, req, "key-1")
	if err != nil || replayed {
		t.Fatalf("create: %v replayed=%v", err, replayed)
	}
	if first.Status != model.BookingPending || first.PaymentStatus != model.PaymentUnpaid {
		t.Fatalf("expected pending unpaid booking, got %+v", first)
	}
	again, replayed, err := f.svc.Create(ctx, req, "key-1")
	if err != nil || !replayed || again.ID != first.ID {
		t.Fatalf("expected replay of %s, got %+v replayed=%v err=%v", first.ID, again, replayed, err)
	}
}

func TestTransitions(t *testing.T) {
	f := setup(t, model.Business{RequiresPayment: true})
	ctx := context.Background()
	b, _, err := f.svc.Create(ctx, CreateRequest{BusinessID: "studio", ServiceID: "consult", ScheduledAt: slotAt}, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.Complete(ctx, b.ID); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("pending booking cannot complete, got %v", err)
	}
	confirmed, err := f.svc.Confirm(ctx, b.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != model.BookingConfirmed || confirmed.PaymentStatus != model.PaymentPaid {
		t.Fatalf("unexpected confirmed booking %+v", confirmed)
	}
	cancelled, err := f.svc.Cancel(ctx, b.ID)
	if err != nil || cancelled.Status != model.BookingCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("cancel: %+v %v", cancelled, err)
	}
	if _, err := f.svc.Cancel(ctx, b.ID); err != nil {
		t.Fatalf("second cancel should be a no-op, got %v", err)
	}
	if _, err := f.svc.Confirm(ctx, b.ID); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("cancelled booking cannot be confirmed, got %v", err)
	}
	if _, err := f.svc.Cancel(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// Cancellation frees the slot for a new booking.
	if _, _, err := f.svc.Create(ctx, CreateRequest{BusinessID: "studio", ServiceID: "consult", ScheduledAt: slotAt}, ""); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
}

func TestList(t *testing.T) {
	f := setup(t, model.Business{Capacity: model.BookingCapacityConfig{Mode: model.CapacityMultiple}})
	ctx := context.Background()
	for _, at := range []time.Time{slotAt, slotAt.Add(time.Hour), slotAt.AddDate(0, 0, 1)} {
		if _, _, err := f.svc.Create(ctx, CreateRequest{BusinessID: "studio", ServiceID: "consult", ScheduledAt: at}, ""); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := f.svc.List(ctx, model.BookingFilter{BusinessID: "studio", From: slotAt, To: slotAt.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || !got[0].ScheduledAt.Before(got[1].ScheduledAt) {
		t.Fatalf("unexpected list %+v", got)
	}
	if _, err := f.svc.List(ctx, model.BookingFilter{}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation without business, got %v", err)
	}
	if _, err := f.svc.List(ctx, model.BookingFilter{BusinessID: "studio", Status: "lost"}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation for status, got %v", err)
	}
}
