// Package kafka publishes pipeline stage events for downstream consumers
// (dashboards, alerting) to follow a run as it progresses.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/observability"
)

// Publisher produces stage events to the configured topic.
type Publisher struct {
	writer  *kafkago.Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a producer for the configured event topic.
func NewPublisher(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, metrics: metrics, logger: logger}
}

// PublishStage serializes and publishes one stage event. Callers treat
// publishing as best effort; a broker outage must never sink a forecast run.
func (p *Publisher) PublishStage(ctx context.Context, event domain.PipelineEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish stage event: %w", err)
	}
	p.metrics.EventsPublished.Inc()
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a PipelineEvent into a Kafka message. Keying
// by run ID keeps all events of one run in a single partition, in order.
func serializeToMessage(event domain.PipelineEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize stage event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "stage", Value: []byte(event.Stage)},
			{Key: "status", Value: []byte(event.Status)},
			{Key: "completed_at", Value: []byte(event.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}
