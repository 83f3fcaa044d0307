package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event. A nil actor means the system.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope wraps every outbox payload. Consumers dedupe on EventID.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(event DomainEvent) (PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("marshal %s data: %w", event.EventType, err)
	}
	return PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}, nil
}

// DecodeEnvelope parses a stored outbox payload. Envelopes without an event id
// or with a version newer than this build understands are rejected.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return envelope, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.EventID == "" {
		return envelope, fmt.Errorf("decode envelope: missing eventId")
	}
	if envelope.Version < 1 || envelope.Version > currentVersion {
		return envelope, fmt.Errorf("decode envelope: unsupported version %d", envelope.Version)
	}
	return envelope, nil
}

// DecodeData unmarshals the event body into dst.
func (e PayloadEnvelope) DecodeData(dst any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope %s has no data", e.EventID)
	}
	return json.Unmarshal(e.Data, dst)
}
