// Package decision records every served prediction in decision memory.
package decision

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"bizlens/backend/internal/db"
	"bizlens/backend/internal/platform/logger"
)

const writeTimeout = 5 * time.Second

// Record is one row of decision memory.
type Record struct {
	ID           string
	ModelName    string
	ModelVersion string
	Features     map[string]any
	Prediction   float64
	Probability  *float64
	ShapValues   map[string]float64
	Metadata     map[string]any
	CreatedAt    time.Time
}

// Store persists decision records.
type Store interface {
	Create(ctx context.Context, r *Record) error
}

type PostgresStore struct {
	db db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

func (s *PostgresStore) Create(ctx context.Context, r *Record) error {
	features, err := json.Marshal(r.Features)
	if err != nil {
		return err
	}
	var shap, meta []byte
	if len(r.ShapValues) > 0 {
		if shap, err = json.Marshal(r.ShapValues); err != nil {
			return err
		}
	}
	if len(r.Metadata) > 0 {
		if meta, err = json.Marshal(r.Metadata); err != nil {
			return err
		}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO decision_memory
		(id, model_name, model_version, input_features, prediction, prediction_proba, shap_values, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.ModelName, r.ModelVersion, features, r.Prediction, r.Probability, shap, meta, r.CreatedAt)
	return err
}

// Logger writes records in the background. Failures are logged and never reach the caller.
type Logger struct {
	store Store
	lggr  logger.Logger
	wg    sync.WaitGroup
}

// NewLogger returns a decision logger. A nil store disables logging.
func NewLogger(store Store, lggr logger.Logger) *Logger {
	return &Logger{store: store, lggr: lggr.Named("decision_memory")}
}

// LogAsync stores r on a detached context with a timeout.
func (l *Logger) LogAsync(r *Record) {
	if l == nil || l.store == nil || r == nil {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := l.store.Create(ctx, r); err != nil {
			l.lggr.Warnw("failed to log decision", "model", r.ModelName, "decision_id", r.ID, "err", err)
		}
	}()
}

// Wait blocks until pending writes finish.
func (l *Logger) Wait() {
	if l != nil {
		l.wg.Wait()
	}
}
