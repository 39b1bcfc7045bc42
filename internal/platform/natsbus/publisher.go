// Package natsbus publishes task lifecycle events to NATS subjects.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/phrazzld/genqueue/internal/events"
	"github.com/phrazzld/genqueue/internal/redact"
)

// publisher is the part of *nats.Conn the Publisher needs
type publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials the NATS server at url with reconnect handling that logs
// connection state changes.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	logger = logger.With("component", "nats")
	nc, err := nats.Connect(url,
		nats.Name("genqueue"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected from nats", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to nats", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", redact.URL(url), err)
	}
	return nc, nil
}

// Publisher is an events.EventHandler that forwards every event as JSON to
// the subject <prefix>.<event type>, e.g. genqueue.task.completed.
type Publisher struct {
	conn   publisher
	prefix string
	logger *slog.Logger
}

// NewPublisher creates a Publisher writing to conn under prefix.
func NewPublisher(conn publisher, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger.With("component", "nats_publisher"),
	}
}

// Subject returns the subject an event type is published on.
func (p *Publisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// HandleEvent publishes event.
func (p *Publisher) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	subject := p.Subject(event.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.logger.DebugContext(ctx, "event published",
		"subject", subject,
		"event_id", event.ID,
		"task_id", event.TaskID)
	return nil
}
