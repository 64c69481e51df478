package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vepflow/vepflow/core"
)

// KafkaPublisher writes workflow events to a Kafka topic, keyed by
// exchange id so one run's events land on one partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger core.Logger
	topic  string
}

// KafkaPublisherOptions configure the publisher.
type KafkaPublisherOptions struct {
	BootstrapServers string
	Topic            string
	Logger           core.Logger
}

// NewKafkaPublisher creates a publisher. The connection is lazy; broker
// unavailability surfaces on the first publish, never at startup.
func NewKafkaPublisher(opts KafkaPublisherOptions) *KafkaPublisher {
	logger := opts.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(opts.BootstrapServers, ",")...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
	return &KafkaPublisher{writer: writer, logger: logger, topic: opts.Topic}
}

func (p *KafkaPublisher) PublishWorkflowFinished(ctx context.Context, event *WorkflowFinishedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding workflow event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ExchangeID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("workflow_finished")},
			{Key: "workflow_type", Value: []byte(event.WorkflowType)},
		},
	})
	if err != nil {
		p.logger.ErrorWithContext(ctx, "failed to publish workflow event", map[string]interface{}{
			"topic":         p.topic,
			"workflow_type": event.WorkflowType,
			"error":         err,
		})
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}

	p.logger.InfoWithContext(ctx, "workflow event published", map[string]interface{}{
		"topic":         p.topic,
		"workflow_type": event.WorkflowType,
		"success":       event.Success,
		"payload_bytes": len(payload),
		"pdf_kb":        event.PDFSizeKB(),
	})
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher records events to the log only. Used when no broker is
// configured and in tests.
type LogPublisher struct {
	logger core.Logger
}

// NewLogPublisher creates a publisher that only logs.
func NewLogPublisher(logger core.Logger) *LogPublisher {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishWorkflowFinished(ctx context.Context, event *WorkflowFinishedEvent) error {
	p.logger.InfoWithContext(ctx, "workflow event (publishing disabled)", map[string]interface{}{
		"workflow_type": event.WorkflowType,
		"success":       event.Success,
	})
	return nil
}

func (p *LogPublisher) Close() error { return nil }
