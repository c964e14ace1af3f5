// Package rejects publishes records dropped during cleaning to a Kafka topic
// so they can be reconciled outside the pipeline.
package rejects

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vberdnik/marketetl/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Sink writes one message per rejected record. Publishing is best-effort:
// failures are logged, never returned, so a broken broker cannot abort a
// cleaning stage.
type Sink struct {
	writer messageWriter
	log    *slog.Logger
}

// NewSink builds a Kafka-backed sink.
func NewSink(brokers []string, topic string, log *slog.Logger) *Sink {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     brokers,
		Topic:       topic,
		MaxAttempts: 3,
	})
	return newSink(w, log)
}

func newSink(w messageWriter, log *slog.Logger) *Sink {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sink{writer: w, log: log}
}

// Record publishes the rejected record with its reason and provenance headers.
func (s *Sink) Record(ctx context.Context, r models.RawRecord, reason string) {
	payload, err := json.Marshal(r)
	if err != nil {
		s.log.Error("marshal rejected record", slog.Any("err", err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(r.Symbol),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "reason", Value: []byte(reason)},
			{Key: "run_id", Value: []byte(r.RunID)},
			{Key: "source_page", Value: []byte(strconv.Itoa(r.SourcePage))},
			{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.log.Warn("publish rejected record",
			slog.Any("err", err),
			slog.String("symbol", r.Symbol),
			slog.String("reason", reason),
		)
		return
	}

	s.log.Debug("rejected record published",
		slog.String("symbol", r.Symbol),
		slog.String("reason", reason),
	)
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	if closer, ok := s.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
