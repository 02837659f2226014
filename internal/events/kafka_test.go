package events

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/dpc-platform/dpc-admin/internal/config"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	evt := NewEvent(TypeRegistrationEnabled, "org-1", "ro-1", "production", "https://example.org/fhir")
	if err := p.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "ro-1" {
		t.Errorf("Key = %q, want ro-1", msg.Key)
	}
	if !strings.Contains(string(msg.Value), `"type":"registered_organization.enabled"`) {
		t.Errorf("Value = %s, missing event type", msg.Value)
	}
	if len(msg.Headers) != 2 {
		t.Fatalf("len(Headers) = %d, want 2", len(msg.Headers))
	}
	if string(msg.Headers[0].Value) != evt.ID {
		t.Errorf("event-id header = %q, want %q", msg.Headers[0].Value, evt.ID)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("leader not available")}}

	err := p.Publish(context.Background(), NewEvent(TypeRegistrationUpdated, "org-1", "ro-1", "sandbox", ""))
	if err == nil || !strings.Contains(err.Error(), "leader not available") {
		t.Errorf("Publish() error = %v, want leader not available", err)
	}
}

func TestNewKafkaWriter_KeyPinsPartition(t *testing.T) {
	w := newKafkaWriter(&config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "registrations"})
	partitions := []int{0, 1, 2, 3}

	for _, key := range []string{"ro-1", "ro-2", "5f0c9a0e-6f1b-4d7e-8a61-0c2b9d3e4f10"} {
		seen := map[int]bool{}
		for i := 0; i < 8; i++ {
			msg := kafka.Message{Key: []byte(key), Value: make([]byte, 10*(i+1))}
			seen[w.Balancer.Balance(msg, partitions...)] = true
		}
		if len(seen) != 1 {
			t.Errorf("key %s spread over partitions %v, want one", key, seen)
		}
	}
}
