package events

import "time"

const (
	TopicBetSettled    = "bet.settled"
	TopicRoundOpened   = "round.opened"
	TopicRoundStarted  = "round.started"
	TopicRoundCashout  = "round.cashout"
	TopicRoundResolved = "round.resolved"
)

type Event struct {
	Type      string `json:"type"`
	Table     string `json:"table,omitempty"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// New stamps an event with the current time in milliseconds.
func New(topic, table string, data any) Event {
	return Event{Type: topic, Table: table, Data: data, Timestamp: time.Now().UnixMilli()}
}

// Publisher delivers events. Implementations must not block the caller on slow consumers.
type Publisher interface {
	Publish(Event)
}

// Multi fans one event out to several publishers.
type Multi []Publisher

func (m Multi) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(Event) {}
