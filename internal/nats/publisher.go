package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/guojianbin/TinyCron/internal/notify"
)

// Conn is the part of Client the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher is a notify.Sink sending each event to <prefix>.<event type>.
type Publisher struct {
	conn   Conn
	prefix string
	host   string
	logger *slog.Logger
}

// NewPublisher creates a publisher on conn using subject as the prefix.
func NewPublisher(conn Conn, subject string, logger *slog.Logger) *Publisher {
	host, _ := os.Hostname()
	return &Publisher{
		conn:   conn,
		prefix: subject,
		host:   host,
		logger: logger.With(slog.String("component", "nats-publisher")),
	}
}

// Subject returns the subject ev is published on.
func (p *Publisher) Subject(ev notify.Event) string {
	return p.prefix + "." + string(ev.Type)
}

// Publish implements notify.Sink.
func (p *Publisher) Publish(ctx context.Context, ev notify.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := newEnvelope(ev, p.host)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	subject := p.Subject(ev)
	if err := p.conn.Publish(subject, data); err != nil {
		return err
	}

	p.logger.Debug("Published event",
		slog.String("subject", subject),
		slog.String("type", msg.Type),
	)
	return nil
}
