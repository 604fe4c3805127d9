// Package kafka publishes audit findings to downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/tapsafe/chlorine-data-service/internal/audit"
	"github.com/tapsafe/chlorine-data-service/internal/config"
)

// FindingsWriter produces audit findings to a Kafka topic.
// It implements audit.FindingsPublisher.
type FindingsWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewFindingsWriter creates a Kafka producer for the configured findings topic.
func NewFindingsWriter(cfg *config.Config, logger *slog.Logger) *FindingsWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaFindingsTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &FindingsWriter{writer: w, logger: logger}
}

// PublishFindings serializes and publishes scan findings in a single
// WriteMessages call. An empty scan publishes nothing.
func (w *FindingsWriter) PublishFindings(ctx context.Context, findings []audit.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(findings))
	for i := range findings {
		msg, err := serializeFinding(findings[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d findings: %w", len(findings), err)
	}
	w.logger.Info("audit findings published", "count", len(findings))
	return nil
}

func (w *FindingsWriter) Close() error {
	return w.writer.Close()
}

// serializeFinding marshals a finding into a Kafka message keyed by PWSID so
// repeat findings for one system land on the same partition.
func serializeFinding(f audit.Finding) (kafkago.Message, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize finding: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(f.PWSID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "pattern", Value: []byte(f.PatternName)},
			{Key: "severity", Value: []byte(f.Severity)},
		},
	}, nil
}
