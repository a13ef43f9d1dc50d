package telemetry

import (
	"context"
	"errors"
	"testing"
)

type failingEmitter struct{ err error }

func (f failingEmitter) Emit(context.Context, *Event) error { return f.err }

func TestNewEvent_UnmarshalableMetadataDropped(t *testing.T) {
	ev := NewEvent("x", "unit", "", "", map[string]any{"ch": make(chan int)})
	if ev.Metadata != nil {
		t.Errorf("metadata = %s, want nil", ev.Metadata)
	}
	if ev.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMulti(t *testing.T) {
	if _, ok := Multi().(Noop); !ok {
		t.Error("Multi() should return Noop")
	}
	if _, ok := Multi(nil, nil).(Noop); !ok {
		t.Error("Multi(nil, nil) should return Noop")
	}

	a := newMockEmitter(1)
	if got := Multi(nil, a); got != EventEmitter(a) {
		t.Error("Multi with a single emitter should return it unwrapped")
	}

	b := newMockEmitter(1)
	errA := errors.New("a failed")
	m := Multi(failingEmitter{err: errA}, b)
	err := m.Emit(context.Background(), NewEvent("x", "unit", "", "", nil))
	if !errors.Is(err, errA) {
		t.Errorf("Emit error = %v, want %v", err, errA)
	}
	if len(b.getEvents()) != 1 {
		t.Error("second emitter should still receive the event")
	}
}
