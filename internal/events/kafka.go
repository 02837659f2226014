package events

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/dpc-platform/dpc-admin/internal/config"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic keyed by registered organization id,
// keeping every transition of one registration on the same partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a writer that picks the partition by hashing the message key
func NewKafkaPublisher(cfg *config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{writer: newKafkaWriter(cfg)}
}

func newKafkaWriter(cfg *config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}
}

// Publish writes evt synchronously
func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := encode(evt)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(evt.RegisteredOrganizationID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(evt.ID)},
			{Key: "event-type", Value: []byte(evt.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write %s to kafka: %w", evt.Type, err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
