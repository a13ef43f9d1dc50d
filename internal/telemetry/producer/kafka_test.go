package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizlens/backend/internal/telemetry"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("write context has no deadline")
	}
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

func TestNewKafkaProducer_Optional(t *testing.T) {
	assert.Nil(t, NewKafkaProducer(nil, "topic"))
	assert.Nil(t, NewKafkaProducer([]string{"localhost:9092"}, ""))

	var p *KafkaProducer
	assert.NoError(t, p.Publish(context.Background(), "k", map[string]int{}))
	assert.NoError(t, p.Close())
	assert.Equal(t, "", p.Topic())
}

func TestKafkaProducer_EmitKeysByCompany(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w, topic: "bizlens-telemetry"}

	ev := telemetry.NewEvent("http_request", "http_middleware", "company-1", "user-1", map[string]string{"route": "/x"})
	require.NoError(t, p.Emit(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "company-1", string(w.msgs[0].Key))

	var got telemetry.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "http_request", got.EventType)
	assert.JSONEq(t, `{"route":"/x"}`, string(got.Metadata))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := &KafkaProducer{writer: w, topic: "t"}
	assert.Error(t, p.Publish(context.Background(), "", struct{}{}))
	assert.Nil(t, w.msgs[0].Key)
}
