package schedule

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/storage/memstore"
)

var bizKey = model.EntityKey{BusinessID: "salon", EntityType: model.EntityBusiness}

func setup(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	if _, err := store.UpsertBusiness(context.Background(), model.Business{ID: "salon", Timezone: "Europe/Berlin"}); err != nil {
		t.Fatalf("business: %v", err)
	}
	return NewService(store), store
}

func week(start string) model.WeekOverride {
	d, _ := model.ParseDate(start)
	days := make([]model.DayOverride, 7)
	for i := range days {
		days[i] = model.DayOverride{Date: model.FormatDate(d.AddDate(0, 0, i)), Blocks: []model.Block{}, BlockedRanges: []model.Block{}}
	}
	days[0].Enabled = true
	days[0].Blocks = []model.Block{{Start: "08:00", End: "12:00"}, {Start: "13:00", End: "18:00"}}
	days[0].BlockedRanges = []model.Block{{Start: "09:00", End: "09:30"}}
	days[3].Enabled = true
	days[3].Blocks = []model.Block{{Start: "10:00", End: "14:00"}}
	return model.WeekOverride{EntityKey: bizKey, WeekStartDate: start, Days: days}
}

func TestPutTemplate_VersionsAndInheritsTimezone(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	tmpl := model.DefaultTemplate(bizKey, "")
	tmpl.Timezone = ""
	got, err := svc.PutTemplate(ctx, tmpl)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if got.Timezone != "Europe/Berlin" || got.Version != 1 {
		t.Fatalf("unexpected template %+v", got)
	}
	got, err = svc.PutTemplate(ctx, tmpl)
	if err != nil || got.Version != 2 {
		t.Fatalf("expected version 2, got %d (%v)", got.Version, err)
	}

	bad := tmpl
	bad.WeeklyRules = bad.WeeklyRules[:6]
	if _, err := svc.PutTemplate(ctx, bad); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation for 6 rules, got %v", err)
	}
	overlap := model.DefaultTemplate(bizKey, "UTC")
	overlap.WeeklyRules[1].Blocks = []model.Block{{Start: "09:00", End: "12:00"}, {Start: "11:00", End: "13:00"}}
	if _, err := svc.PutTemplate(ctx, overlap); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation for overlapping blocks, got %v", err)
	}
	if _, err := svc.PutTemplate(ctx, model.DefaultTemplate(model.EntityKey{BusinessID: "nobody", EntityType: model.EntityBusiness}, "UTC")); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected unknown business, got %v", err)
	}
}

func TestPutWeek_RoundTrip(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	in := week("2026-10-19")
	if _, err := svc.PutWeek(ctx, in); err != nil {
		t.Fatalf("put: %v", err)
	}
	out, err := svc.GetWeek(ctx, bizKey, "2026-10-19")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(out.Days, in.Days) {
		t.Fatalf("days changed:\n%+v\n%+v", in.Days, out.Days)
	}
	if out.Source != model.SourceManual {
		t.Fatalf("expected MANUAL source, got %s", out.Source)
	}

	// A later put replaces the whole week.
	replacement := week("2026-10-19")
	replacement.Days[3].Enabled = false
	replacement.Days[3].Blocks = []model.Block{}
	if _, err := svc.PutWeek(ctx, replacement); err != nil {
		t.Fatalf("replace: %v", err)
	}
	out, _ = svc.GetWeek(ctx, bizKey, "2026-10-19")
	if !reflect.DeepEqual(out.Days, replacement.Days) {
		t.Fatalf("expected full replacement, got %+v", out.Days)
	}
}

func TestPutWeek_Validation(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	short := week("2026-10-19")
	short.Days = short.Days[:6]
	if _, err := svc.PutWeek(ctx, short); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation for 6 days, got %v", err)
	}
	tuesday := week("2026-10-20")
	if _, err := svc.PutWeek(ctx, tuesday); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation for non-Monday start, got %v", err)
	}
	if _, err := svc.GetWeek(ctx, bizKey, "2026-10-26"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCopyWeek(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.PutWeek(ctx, week("2026-10-19")); err != nil {
		t.Fatalf("put: %v", err)
	}
	copied, err := svc.CopyWeek(ctx, bizKey, "2026-10-19", "2026-10-26")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if copied.Source != model.SourceCopyPrev || copied.Days[0].Date != "2026-10-26" || copied.Days[6].Date != "2026-11-01" {
		t.Fatalf("unexpected copy %+v", copied)
	}
	if !reflect.DeepEqual(copied.Days[0].Blocks, week("2026-10-19").Days[0].Blocks) {
		t.Fatalf("blocks not cloned: %+v", copied.Days[0])
	}
}

func TestCopyWeek_MissingSourceLeavesTargetUntouched(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	target := week("2026-10-26")
	if _, err := svc.PutWeek(ctx, target); err != nil {
		t.Fatalf("put target: %v", err)
	}
	if _, err := svc.CopyWeek(ctx, bizKey, "2026-10-19", "2026-10-26"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	out, err := svc.GetWeek(ctx, bizKey, "2026-10-26")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(out.Days, target.Days) || out.Source != model.SourceManual {
		t.Fatalf("target week changed: %+v", out)
	}
}

func TestResetWeek(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	if _, err := svc.ResetWeek(ctx, bizKey, "2026-10-19"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found without template, got %v", err)
	}
	if _, err := store.SeedTemplate(ctx, model.DefaultTemplate(bizKey, "Europe/Berlin")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.PutWeek(ctx, week("2026-10-19")); err != nil {
		t.Fatalf("put: %v", err)
	}
	reset, err := svc.ResetWeek(ctx, bizKey, "2026-10-19")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset.Source != model.SourceResetBase {
		t.Fatalf("unexpected source %s", reset.Source)
	}
	mon, sun := reset.Days[0], reset.Days[6]
	if !mon.Enabled || len(mon.Blocks) != 1 || mon.Blocks[0] != (model.Block{Start: "09:00", End: "17:00"}) || len(mon.BlockedRanges) != 0 {
		t.Fatalf("monday not reset to template: %+v", mon)
	}
	if sun.Enabled || len(sun.Blocks) != 0 {
		t.Fatalf("sunday should be closed: %+v", sun)
	}
}
