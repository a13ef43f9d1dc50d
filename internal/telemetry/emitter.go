package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Event is a telemetry event. Metadata is a JSON object.
type Event struct {
	CompanyID string          `json:"company_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	EventType string          `json:"event_type"`
	Source    string          `json:"source"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent builds an Event stamped with the current time. meta is marshaled to JSON;
// a value that cannot be marshaled is dropped.
func NewEvent(eventType, source, companyID, userID string, meta any) *Event {
	ev := &Event{
		CompanyID: companyID,
		UserID:    userID,
		EventType: eventType,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			ev.Metadata = b
		}
	}
	return ev
}

// EventEmitter emits telemetry events (Kafka, OTel logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// Noop discards events.
type Noop struct{}

func (Noop) Emit(context.Context, *Event) error { return nil }

// Multi fans an event out to every non-nil emitter and joins their errors.
func Multi(emitters ...EventEmitter) EventEmitter {
	out := make(multi, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return Noop{}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

type multi []EventEmitter

func (m multi) Emit(ctx context.Context, event *Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
