package nats

import (
	"encoding/json"
	"time"

	"github.com/guojianbin/TinyCron/internal/notify"
)

// MessageEnvelope wraps every published event with its type.
type MessageEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
	Host      string          `json:"host,omitempty"`
}

func newEnvelope(ev notify.Event, host string) (MessageEnvelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return MessageEnvelope{}, err
	}
	return MessageEnvelope{
		Type:      string(ev.Type),
		Payload:   payload,
		Timestamp: ev.Time.UTC().Format(time.RFC3339),
		Host:      host,
	}, nil
}
