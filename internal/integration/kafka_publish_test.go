//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/diegonavarro96/HEC-HMS-BackEnd/internal/adapter/kafka"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/config"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/observability"
)

const testEventTopic = "hms-pipeline-events"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka brings up a single-node broker for the test and returns its
// bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("hms-backend-test"),
	)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err, "resolve broker address")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "resolve controller")

	ctrlConn, err := kafkago.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err, "dial controller")
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// stageEvent is the deserialized form of one published message.
type stageEvent struct {
	Body    domain.PipelineEvent
	Key     string
	Headers map[string]string
}

func readStageEvent(ctx context.Context, t *testing.T, consumer *kafkago.Reader) stageEvent {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from event topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var body domain.PipelineEvent
	require.NoError(t, json.Unmarshal(msg.Value, &body), "unmarshal stage event")

	return stageEvent{Body: body, Key: string(msg.Key), Headers: headers}
}

// TestPublishStageRoundTrip verifies that published stage events arrive on the
// topic keyed by run ID, with stage metadata in the headers and the full
// outcome in the body.
func TestPublishStageRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testEventTopic)

	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			Brokers: []string{broker},
			Topic:   testEventTopic,
		},
	}

	publisher := kafkaadapter.NewPublisher(cfg, observability.NewMetricsForTesting(), discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	started := time.Date(2025, 5, 27, 15, 0, 0, 0, time.UTC)
	events := []domain.PipelineEvent{
		{
			RunID:   "scheduler-1a2b3c4d",
			Trigger: "scheduler",
			StageResult: domain.StageResult{
				Stage:       domain.StageDownloadQPE,
				Status:      domain.StageSucceeded,
				StartedAt:   started,
				CompletedAt: started.Add(90 * time.Second),
			},
		},
		{
			RunID:   "scheduler-1a2b3c4d",
			Trigger: "scheduler",
			StageResult: domain.StageResult{
				Stage:       domain.StageMergeRealtime,
				Status:      domain.StageFailed,
				StartedAt:   started.Add(2 * time.Minute),
				CompletedAt: started.Add(5 * time.Minute),
				Error:       "external process failed: exit status 1",
			},
		},
	}
	for _, e := range events {
		require.NoError(t, publisher.PublishStage(ctx, e))
	}

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testEventTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	first := readStageEvent(ctx, t, consumer)
	assert.Equal(t, "scheduler-1a2b3c4d", first.Key)
	assert.Equal(t, domain.StageDownloadQPE, first.Headers["stage"])
	assert.Equal(t, "success", first.Headers["status"])
	_, err := time.Parse(time.RFC3339, first.Headers["completed_at"])
	assert.NoError(t, err, "completed_at should be valid RFC3339")
	assert.Equal(t, events[0].Stage, first.Body.Stage)
	assert.Equal(t, "scheduler", first.Body.Trigger)
	assert.Empty(t, first.Body.Error)

	second := readStageEvent(ctx, t, consumer)
	assert.Equal(t, first.Key, second.Key, "events of one run share a key")
	assert.Equal(t, "failure", second.Headers["status"])
	assert.Equal(t, "external process failed: exit status 1", second.Body.Error)
}

// TestPublishStagePreservesRunOrder publishes a full run's worth of events and
// verifies single-partition ordering by run ID.
func TestPublishStagePreservesRunOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testEventTopic)

	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			Brokers: []string{broker},
			Topic:   testEventTopic,
		},
	}

	publisher := kafkaadapter.NewPublisher(cfg, observability.NewMetricsForTesting(), discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	stages := []string{
		domain.StageDownloadQPE,
		domain.StageDownloadHRRR,
		domain.StageMergeRealtime,
		domain.StageMergePass2,
		domain.StageMergeHRRR,
		domain.StageCombinePrimary,
		domain.StageCombineSecondary,
		domain.StageControlUpdate,
		domain.StageModelRun,
	}
	started := time.Date(2025, 5, 27, 15, 0, 0, 0, time.UTC)
	for i, stage := range stages {
		require.NoError(t, publisher.PublishStage(ctx, domain.PipelineEvent{
			RunID:   "api-ff00ff00",
			Trigger: "api",
			StageResult: domain.StageResult{
				Stage:       stage,
				Status:      domain.StageSucceeded,
				StartedAt:   started.Add(time.Duration(i) * time.Minute),
				CompletedAt: started.Add(time.Duration(i+1) * time.Minute),
			},
		}))
	}

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testEventTopic,
		GroupID:     fmt.Sprintf("test-order-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	var got []string
	for range stages {
		ev := readStageEvent(ctx, t, consumer)
		got = append(got, ev.Body.Stage)
	}
	assert.Equal(t, stages, got)
}
