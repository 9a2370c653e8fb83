package memstore

import (
	"context"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/bookpro/libs/otel"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/outbox"
)

type outboxRow struct {
	outbox.Record
	published bool
}

// emit appends evt to the outbox. Callers hold s.mu.
func (s *Store) emit(ctx context.Context, evt outbox.Event) {
	s.nextID++
	tc := otelx.Capture(ctx)
	s.outbox = append(s.outbox, outboxRow{Record: outbox.Record{
		ID:            s.nextID,
		EventID:       uuid.NewString(),
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.EventType,
		Payload:       evt.Payload,
		Traceparent:   tc.Parent,
		Tracestate:    tc.State,
		CreatedAt:     s.now().UTC(),
	}})
}

// Events returns every outbox record written so far, published or not.
func (s *Store) Events() []outbox.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outbox.Record, 0, len(s.outbox))
	for _, r := range s.outbox {
		out = append(out, r.Record)
	}
	return out
}

// EventTypes lists the event types written so far, in order.
func (s *Store) EventTypes() []string {
	var out []string
	for _, r := range s.Events() {
		out = append(out, r.EventType)
	}
	return out
}

func (s *Store) PublishBatch(ctx context.Context, limit int, fn func(context.Context, []outbox.Record) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var idx []int
	var batch []outbox.Record
	for i, r := range s.outbox {
		if len(batch) == limit {
			break
		}
		if !r.published {
			idx = append(idx, i)
			batch = append(batch, r.Record)
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := fn(ctx, batch); err != nil {
		return 0, err
	}
	for _, i := range idx {
		s.outbox[i].published = true
	}
	return len(batch), nil
}
