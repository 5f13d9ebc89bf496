package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/couchcryptid/microsense/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher emits an event for each report that appears in the feed.
// It implements pipeline.Sink.
type Publisher struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	seeded bool
	seen   map[int64]struct{}
}

// NewPublisher creates a Kafka producer for topic.
func NewPublisher(brokers []string, topic string, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, metrics, logger)
}

func newPublisher(w messageWriter, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	return &Publisher{writer: w, metrics: metrics, logger: logger}
}

// Publish writes the reports whose ids were absent from the previous list.
// The first list only seeds the seen set. An empty list (the feed cleared on
// sign-out) leaves the seen set as it was.
func (p *Publisher) Publish(ctx context.Context, reports []domain.Report) error {
	if len(reports) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	current := make(map[int64]struct{}, len(reports))
	var fresh []domain.Report
	for _, r := range reports {
		if _, dup := current[r.ID]; dup {
			continue
		}
		current[r.ID] = struct{}{}
		if _, ok := p.seen[r.ID]; !ok {
			fresh = append(fresh, r)
		}
	}

	if !p.seeded {
		p.seeded = true
		p.seen = current
		p.logger.Debug("publisher seeded", "reports", len(current))
		return nil
	}
	if len(fresh) == 0 {
		p.seen = current
		return nil
	}

	msgs := make([]kafkago.Message, len(fresh))
	for i := range fresh {
		msg, err := serializeToMessage(fresh[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d reports: %w", len(msgs), err)
	}

	p.seen = current
	p.metrics.ReportsPublished.Add(float64(len(msgs)))
	p.logger.Info("published new reports", "count", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a report into a Kafka message keyed by id.
func serializeToMessage(r domain.Report) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize report %d: %w", r.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(r.ID, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "condition", Value: []byte(r.Condition)},
			{Key: "created_at", Value: []byte(r.CreatedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
