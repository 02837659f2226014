// Package events publishes registration lifecycle events to a message broker so that
// downstream platform services can provision or revoke API access.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dpc-platform/dpc-admin/internal/config"
	"github.com/dpc-platform/dpc-admin/internal/telemetry"
)

// Event types emitted for committed registration transitions.
const (
	TypeRegistrationEnabled  = "registered_organization.enabled"
	TypeRegistrationUpdated  = "registered_organization.updated"
	TypeRegistrationDisabled = "registered_organization.disabled"
)

// Event is the payload published for a registration transition
type Event struct {
	ID                       string    `json:"id"`
	Type                     string    `json:"type"`
	OccurredAt               time.Time `json:"occurred_at"`
	OrganizationID           string    `json:"organization_id"`
	RegisteredOrganizationID string    `json:"registered_organization_id"`
	APIEnv                   string    `json:"api_env"`
	EndpointURI              string    `json:"endpoint_uri,omitempty"`
}

// NewEvent stamps a new event with a fresh id and the current time
func NewEvent(eventType, orgID, registeredOrgID, apiEnv, endpointURI string) Event {
	return Event{
		ID:                       uuid.New().String(),
		Type:                     eventType,
		OccurredAt:               time.Now().UTC(),
		OrganizationID:           orgID,
		RegisteredOrganizationID: registeredOrgID,
		APIEnv:                   apiEnv,
		EndpointURI:              endpointURI,
	}
}

// Publisher delivers events to a broker
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// New returns the publisher selected by cfg.Backend
func New(cfg *config.EventsConfig) (Publisher, error) {
	switch cfg.Backend {
	case "", "none":
		return Noop{}, nil
	case "nats":
		return NewNATSPublisher(&cfg.NATS)
	case "kafka":
		return NewKafkaPublisher(&cfg.Kafka), nil
	default:
		return nil, fmt.Errorf("unsupported events backend: %s (must be 'none', 'nats', or 'kafka')", cfg.Backend)
	}
}

// Noop discards every event
type Noop struct{}

// Publish does nothing
func (Noop) Publish(context.Context, Event) error { return nil }

// Close does nothing
func (Noop) Close() error { return nil }

// PublishLogged publishes evt and records the outcome. Failures are logged, never returned,
// so a broker outage cannot change the result of a committed change.
func PublishLogged(ctx context.Context, p Publisher, backend string, evt Event) {
	if p == nil {
		return
	}
	if backend == "" {
		backend = "none"
	}
	if err := p.Publish(ctx, evt); err != nil {
		telemetry.EventsPublishedTotal.WithLabelValues(backend, "error").Inc()
		slog.Warn("failed to publish event",
			"type", evt.Type,
			"event_id", evt.ID,
			"registered_organization_id", evt.RegisteredOrganizationID,
			"error", err)
		return
	}
	telemetry.EventsPublishedTotal.WithLabelValues(backend, "ok").Inc()
}

func encode(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return data, nil
}
