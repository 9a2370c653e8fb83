package availability

import (
	"fmt"
	"testing"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

func TestSubtractSpans(t *testing.T) {
	base := model.Span{Start: 540, End: 720}
	got := subtractSpans(base, []model.Span{{Start: 600, End: 630}, {Start: 620, End: 660}, {Start: 700, End: 800}, {Start: 0, End: 100}})
	if fmt.Sprint(got) != "[{540 600} {660 700}]" {
		t.Fatalf("unexpected result: %v", got)
	}
	if got := subtractSpans(base, nil); len(got) != 1 || got[0] != base {
		t.Fatalf("expected base untouched: %v", got)
	}
	if got := subtractSpans(base, []model.Span{{Start: 500, End: 800}}); len(got) != 0 {
		t.Fatalf("expected nothing left: %v", got)
	}
}

func TestResolveDay_ClosedWithoutConfig(t *testing.T) {
	day, err := ResolveDay(mustDate("2026-10-19"), nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if day.Enabled || day.Source != FromDefault || day.Open() != nil {
		t.Fatalf("expected closed day: %+v", day)
	}
}
