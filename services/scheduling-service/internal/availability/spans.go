package availability

import (
	"sort"

	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

// subtractSpans removes cuts from base and returns what is left, in order.
// Cuts are clipped to base, sorted and merged first.
func subtractSpans(base model.Span, cuts []model.Span) []model.Span {
	if base.End <= base.Start {
		return nil
	}
	var clipped []model.Span
	for _, c := range cuts {
		s, e := c.Start, c.End
		if e <= base.Start || s >= base.End {
			continue
		}
		if s < base.Start {
			s = base.Start
		}
		if e > base.End {
			e = base.End
		}
		if e > s {
			clipped = append(clipped, model.Span{Start: s, End: e})
		}
	}
	if len(clipped) == 0 {
		return []model.Span{base}
	}

	merged := mergeSpans(clipped)
	var out []model.Span
	cursor := base.Start
	for _, m := range merged {
		if m.Start > cursor {
			out = append(out, model.Span{Start: cursor, End: m.Start})
		}
		if m.End > cursor {
			cursor = m.End
		}
	}
	if base.End > cursor {
		out = append(out, model.Span{Start: cursor, End: base.End})
	}
	return out
}

func mergeSpans(spans []model.Span) []model.Span {
	sorted := append([]model.Span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	merged := make([]model.Span, 0, len(sorted))
	for _, cur := range sorted {
		if len(merged) == 0 {
			merged = append(merged, cur)
			continue
		}
		last := &merged[len(merged)-1]
		if cur.Start > last.End {
			merged = append(merged, cur)
			continue
		}
		if cur.End > last.End {
			last.End = cur.End
		}
	}
	return merged
}

func containedIn(start, end int, spans []model.Span) bool {
	for _, s := range spans {
		if start >= s.Start && end <= s.End {
			return true
		}
	}
	return false
}
