package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dpc-platform/dpc-admin/internal/config"
)

// flushTimeout bounds the server round trip when the caller's context has no earlier deadline.
const flushTimeout = 5 * time.Second

// NATSPublisher publishes events as NATS messages on <subject_prefix>.<event type>.
// The event id is sent as the Nats-Msg-Id header so JetStream streams can deduplicate.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects to the configured server with unlimited reconnects
func NewNATSPublisher(cfg *config.NATSConfig) (*NATSPublisher, error) {
	name := cfg.Name
	if name == "" {
		name = "dpc-admin"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSPublisher{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject an event type is published on
func (p *NATSPublisher) Subject(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "." + eventType
}

// Publish sends evt and flushes so delivery errors surface to the caller
func (p *NATSPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := encode(evt)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(p.Subject(evt.Type))
	msg.Header.Set("Nats-Msg-Id", evt.ID)
	msg.Data = data

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", evt.Type, err)
	}
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := p.nc.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("failed to flush nats connection: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
