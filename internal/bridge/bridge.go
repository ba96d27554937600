// Package bridge mirrors journal events onto a NATS subject tree so other
// services can observe tasks without polling the HTTP API. The bridge is
// best-effort: a broker outage never blocks or fails a task.
package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vinayprograms/agentkit/logging"
)

const (
	defaultPrefix  = "researstudio.tasks"
	reconnectWait  = 2 * time.Second
	maxReconnects  = -1 // retry forever
	connectTimeout = 5 * time.Second
)

// Bridge publishes raw journal lines to <prefix>.<task-id>.events.
type Bridge struct {
	conn   *nats.Conn
	prefix string
	logger *logging.Logger
}

// Connect dials the broker. The connection reconnects on its own; publishes
// during an outage are buffered by the client up to its pending limit and
// dropped beyond it.
func Connect(url, prefix string, logger *logging.Logger) (*Bridge, error) {
	if prefix == "" {
		prefix = defaultPrefix
	}
	log := logger.WithComponent("bridge")

	conn, err := nats.Connect(url,
		nats.Name("researstudio"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("event bus disconnected", map[string]interface{}{"error": err.Error()})
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("event bus reconnected", map[string]interface{}{"url": nc.ConnectedUrl()})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event bus: %w", err)
	}

	log.Info("event bus connected", map[string]interface{}{"url": url, "prefix": prefix})
	return &Bridge{conn: conn, prefix: prefix, logger: log}, nil
}

// Publish mirrors one already-serialized journal line. Failures are logged
// and swallowed; the journal on disk stays the source of truth.
func (b *Bridge) Publish(taskID string, raw []byte) {
	subject := b.prefix + "." + sanitize(taskID) + ".events"
	if err := b.conn.Publish(subject, raw); err != nil {
		b.logger.Warn("failed to mirror event", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
	}
}

// Close flushes pending publishes and closes the connection.
func (b *Bridge) Close() {
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn("event bus drain failed", map[string]interface{}{"error": err.Error()})
		b.conn.Close()
	}
}

// sanitize keeps task ids safe as subject tokens.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, id)
}
