package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizlens/backend/internal/platform/logger"
)

// fakeReader serves msgs, returns one transient error, then blocks until ctx is done.
type fakeReader struct {
	msgs     []kafka.Message
	transErr bool
	closed   bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if r.transErr {
		r.transErr = false
		return kafka.Message{}, errors.New("coordinator not available")
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		return m, nil
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error { r.closed = true; return nil }

func TestConsumer_RunHandlesAllMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{
		transErr: true,
		msgs:     []kafka.Message{{Value: []byte("a")}, {Value: []byte("b")}, {Value: []byte("c")}},
	}
	var seen []string
	handler := func(hctx context.Context, msg kafka.Message) error {
		_, hasDeadline := hctx.Deadline()
		assert.True(t, hasDeadline)
		seen = append(seen, string(msg.Value))
		if len(seen) == 3 {
			cancel()
		}
		if string(msg.Value) == "b" {
			return errors.New("bad payload")
		}
		return nil
	}
	c := &Consumer{reader: reader, topic: "t", handler: handler, lggr: logger.Test(t)}

	require.NoError(t, c.Run(ctx))
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.True(t, reader.closed)
}
