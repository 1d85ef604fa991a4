// Package kafka publishes committed ledger events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"dineledger/core/events"
	"dineledger/core/types"
	"dineledger/observability"
)

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Sink forwards bus events to Kafka. Messages are keyed by event type so a
// partition sees one type in commit order.
type Sink struct {
	writer MessageWriter
	logger *slog.Logger
}

// NewWriter returns a synchronous writer for topic.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewSink(writer MessageWriter, logger *slog.Logger) (*Sink, error) {
	if writer == nil {
		return nil, errors.New("kafka: writer required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{writer: writer, logger: logger}, nil
}

// Run publishes events released after the call until ctx is cancelled.
// Publishing failures are logged and counted; the stream continues.
func (s *Sink) Run(ctx context.Context, bus *events.Bus) error {
	updates, _, cancel := bus.Subscribe(bus.Sequence(), 0)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if err := s.Publish(ctx, evt); err != nil {
				observability.Events().RecordSinkFailure()
				s.logger.Warn("kafka publish failed", "sequence", evt.Sequence, "type", evt.Type, "error", err)
			}
		}
	}
}

// Publish writes one event.
func (s *Sink) Publish(ctx context.Context, evt *types.Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(evt.Type),
		Value: value,
		Time:  time.Unix(evt.Timestamp, 0).UTC(),
		Headers: []kafkago.Header{
			{Key: "sequence", Value: []byte(strconv.FormatUint(evt.Sequence, 10))},
		},
	})
}

func (s *Sink) Close() error { return s.writer.Close() }
