package decision

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"bizlens/backend/internal/platform/logger"
)

type fakeStore struct {
	mu      sync.Mutex
	records []*Record
	err     error
}

func (s *fakeStore) Create(ctx context.Context, r *Record) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return s.err
}

func TestLogAsync(t *testing.T) {
	store := &fakeStore{}
	l := NewLogger(store, logger.Test(t))
	l.LogAsync(&Record{ID: "d1", ModelName: "churn_model"})
	l.LogAsync(&Record{ID: "d2", ModelName: "churn_model"})
	l.Wait()
	assert.Len(t, store.records, 2)
}

func TestLogAsync_FailureIsLogged(t *testing.T) {
	lggr, logs := logger.TestObserved(t, zapcore.WarnLevel)
	l := NewLogger(&fakeStore{err: errors.New("db down")}, lggr)
	l.LogAsync(&Record{ID: "d1", ModelName: "churn_model"})
	l.Wait()
	assert.Equal(t, 1, logs.FilterMessage("failed to log decision").Len())
}

func TestLogAsync_Disabled(t *testing.T) {
	var nilLogger *Logger
	nilLogger.LogAsync(&Record{})
	nilLogger.Wait()

	l := NewLogger(nil, logger.Nop())
	l.LogAsync(&Record{})
	l.Wait()
}
