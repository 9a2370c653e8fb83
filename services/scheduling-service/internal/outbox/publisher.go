package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/bookpro/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookpro/libs/otel"
	"github.com/segmentio/kafka-go"
)

// Store is the outbox table, as seen by the publisher.
type Store interface {
	PublishBatch(ctx context.Context, limit int, fn func(context.Context, []Record) error) (int, error)
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	store     Store
	logger    *slog.Logger
	brokers   []string
	writer    MessageWriter
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
	// Writer overrides the Kafka writer built from Brokers.
	Writer MessageWriter
}

func NewPublisher(store Store, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		store:     store,
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		writer:    cfg.Writer,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if p.writer == nil {
		if len(p.brokers) == 0 {
			p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
			return
		}
		p.writer = kafkax.NewWriter(p.brokers)
	}
	defer p.writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishOnce(ctx); err != nil {
				p.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

// PublishOnce publishes a single batch and returns how many events went out.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	return p.store.PublishBatch(ctx, p.batchSize, func(ctx context.Context, records []Record) error {
		msgs := make([]kafka.Message, 0, len(records))
		for _, r := range records {
			msgs = append(msgs, toMessage(ctx, r))
		}
		return p.writer.WriteMessages(ctx, msgs...)
	})
}

func toMessage(ctx context.Context, r Record) kafka.Message {
	msgCtx := otelx.TraceContext{Parent: r.Traceparent, State: r.Tracestate}.Into(ctx)
	msg := kafka.Message{
		Topic:   r.EventType,
		Key:     []byte(r.AggregateID),
		Value:   r.Payload,
		Headers: kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType}.Headers(),
	}
	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
	return msg
}
