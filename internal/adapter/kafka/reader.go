package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/config"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/snapshot"
	kafkago "github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Reader consumes snapshot-updated events from the snapshot topic.
type Reader struct {
	reader messageReader
	logger *slog.Logger
}

// NewReader creates a consumer-group reader for the configured snapshot topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaSnapshotTopic,
		GroupID:     cfg.KafkaGroupID,
		StartOffset: kafkago.FirstOffset,
	})
	return &Reader{reader: r, logger: logger}
}

// Run hands every event to handle until ctx ends. Undecodable messages are
// logged and committed so they are not redelivered.
func (r *Reader) Run(ctx context.Context, handle snapshot.EventHandler) error {
	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch snapshot event: %w", err)
		}

		event, err := deserializeMessage(msg)
		if err != nil {
			r.logger.Warn("skipping snapshot event", "offset", msg.Offset, "partition", msg.Partition, "error", err)
		} else {
			handle(ctx, event)
		}

		if err := r.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit snapshot event: %w", err)
		}
	}
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

func deserializeMessage(msg kafkago.Message) (snapshot.Event, error) {
	var event snapshot.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return snapshot.Event{}, fmt.Errorf("decode snapshot event: %w", err)
	}
	day, err := domain.ParseDay(event.Date)
	if err != nil {
		return snapshot.Event{}, err
	}
	event.Day = day
	return event, nil
}
