// Package mirror republishes pushed records onto a NATS subject.
//
// The mirror lets other services consume the same stream of chat lines the
// push subscribers see without holding a websocket open to the relay.
package mirror

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jpalmerr/danmurelay/internal/extract"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "danmu.records"

// NATS publishes records as JSON to one subject.
type NATS struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATS connects to the NATS server at url. The connection retries forever,
// including the initial connect, so an unavailable server never blocks the
// relay. Extra nats.Option values are appended to the defaults.
func NewNATS(url, subject string, logger *slog.Logger, opts ...nats.Option) (*NATS, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	defaults := []nats.Option{
		nats.Name("danmurelay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATS{conn: nc, subject: subject, logger: logger}, nil
}

// Subject returns the subject records are published to.
func (n *NATS) Subject() string {
	return n.subject
}

// Publish sends rec in the same serialized form the push subscribers receive.
func (n *NATS) Publish(rec extract.Record) error {
	if err := n.conn.Publish(n.subject, rec.Marshal()); err != nil {
		return fmt.Errorf("publishing to %s: %w", n.subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("draining NATS connection: %w", err)
	}
	return nil
}
