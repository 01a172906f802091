package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MJE43/pf-bet-engine/internal/logger"
)

// Emitter publishes events to NATS under <prefix>.<topic>.
type Emitter struct {
	conn          *nats.Conn
	subjectPrefix string
	log           *slog.Logger
}

func NewEmitter(natsURL, subjectPrefix string) (*Emitter, error) {
	log := logger.With("component", "events")
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}

	conn, err := nats.Connect(natsURL,
		nats.Name("pf-bet-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("Disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Emitter{conn: conn, subjectPrefix: subjectPrefix, log: log}, nil
}

func (e *Emitter) subject(topic string) string {
	if e.subjectPrefix == "" {
		return topic
	}
	return e.subjectPrefix + "." + topic
}

// Publish is fire-and-forget; failures are logged.
func (e *Emitter) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		e.log.Error("Failed to encode event", "type", event.Type, "error", err)
		return
	}
	if err := e.conn.Publish(e.subject(event.Type), data); err != nil {
		e.log.Warn("Failed to publish event", "type", event.Type, "error", err)
	}
}

func (e *Emitter) Close() {
	if e.conn != nil {
		_ = e.conn.Drain()
	}
}
