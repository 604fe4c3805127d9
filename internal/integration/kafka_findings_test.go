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

	"github.com/tapsafe/chlorine-data-service/internal/adapter/kafka"
	"github.com/tapsafe/chlorine-data-service/internal/audit"
	"github.com/tapsafe/chlorine-data-service/internal/config"
)

const testFindingsTopic = "test-audit-findings"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
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
	require.NoError(t, err)
	controllerConn, err := kafkago.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestFindingsWriterPublishes verifies findings round-trip through real Kafka
// with their key and headers intact.
func TestFindingsWriterPublishes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testFindingsTopic)

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaFindingsTopic: testFindingsTopic,
	}

	writer := kafka.NewFindingsWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	findings := []audit.Finding{
		{
			PWSID:       "MI0000125",
			UtilityName: "City of Franklin",
			State:       "MI",
			PatternName: "Franklin Michigan Contamination",
			Severity:    audit.SeverityCritical,
			Description: "Michigan reading stored for a Tennessee system",
			Evidence:    []string{"source domain michigan.gov"},
			AutoCleanup: true,
		},
		{
			PWSID:       "TN0000301",
			UtilityName: "Nolensville Utility District",
			State:       "TN",
			PatternName: "Outdated Reading",
			Severity:    audit.SeverityInfo,
			Description: "reading older than six months",
		},
	}
	require.NoError(t, writer.PublishFindings(ctx, findings))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testFindingsTopic,
		GroupID:     fmt.Sprintf("test-findings-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()

	received := make([]audit.Finding, 0, len(findings))
	keys := make([]string, 0, len(findings))
	headers := make([]map[string]string, 0, len(findings))
	for len(received) < len(findings) {
		msg, err := consumer.ReadMessage(readCtx)
		require.NoError(t, err, "read from findings topic")

		var f audit.Finding
		require.NoError(t, json.Unmarshal(msg.Value, &f))
		received = append(received, f)
		keys = append(keys, string(msg.Key))

		h := make(map[string]string, len(msg.Headers))
		for _, hdr := range msg.Headers {
			h[hdr.Key] = string(hdr.Value)
		}
		headers = append(headers, h)
	}

	require.Len(t, received, 2)
	assert.Equal(t, "MI0000125", keys[0])
	assert.Equal(t, "Franklin Michigan Contamination", received[0].PatternName)
	assert.Equal(t, audit.SeverityCritical, received[0].Severity)
	assert.Equal(t, "critical", headers[0]["severity"])
	assert.Equal(t, "Franklin Michigan Contamination", headers[0]["pattern"])

	assert.Equal(t, "TN0000301", keys[1])
	assert.Equal(t, audit.SeverityInfo, received[1].Severity)

	// An empty scan publishes nothing and does not error.
	require.NoError(t, writer.PublishFindings(ctx, nil))
}
