package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/config"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/snapshot"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes snapshot-updated events to the snapshot topic.
// It implements snapshot.Notifier.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured snapshot topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSnapshotTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// SnapshotUpdated publishes event keyed by its date, so every update for a
// day lands on the same partition in order.
func (w *Writer) SnapshotUpdated(ctx context.Context, event snapshot.Event) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish snapshot event %s: %w", event.Date, err)
	}
	w.logger.Debug("snapshot event published", "day", event.Date, "reports", event.Reports)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a snapshot event into a Kafka message.
func serializeToMessage(event snapshot.Event) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Date),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("snapshot_updated")},
			{Key: "updated_at", Value: []byte(event.UpdatedAt.Format(time.RFC3339))},
		},
	}, nil
}
