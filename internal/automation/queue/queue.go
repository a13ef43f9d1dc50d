// Package queue moves triggered action chains through Kafka to the worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"bizlens/backend/internal/automation/domain"
	"bizlens/backend/internal/platform/logger"
)

// Publisher writes a JSON message under a partition key. *producer.KafkaProducer implements it.
type Publisher interface {
	Publish(ctx context.Context, key string, v any) error
}

// Queue enqueues chain jobs. Jobs are keyed by rule so one rule's chains are delivered in order.
type Queue struct {
	pub Publisher
}

func New(pub Publisher) *Queue {
	return &Queue{pub: pub}
}

func (q *Queue) Enqueue(ctx context.Context, job *domain.ChainJob) error {
	return q.pub.Publish(ctx, job.RuleID, job)
}

// ChainRunner executes a chain and returns per-step results.
type ChainRunner interface {
	Run(ctx context.Context, job *domain.ChainJob) []domain.ActionResult
}

// ResultStore records delivered results on the execution.
type ResultStore interface {
	UpdateExecutionResults(ctx context.Context, id string, results []domain.ActionResult, errText string) error
}

// Handler delivers chain jobs read by the worker.
type Handler struct {
	runner ChainRunner
	store  ResultStore
	lggr   logger.Logger
}

func NewHandler(runner ChainRunner, store ResultStore, lggr logger.Logger) *Handler {
	return &Handler{runner: runner, store: store, lggr: lggr.Named("action_queue")}
}

// Handle decodes one job, runs its chain and stores the results.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var job domain.ChainJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return fmt.Errorf("decode chain job: %w", err)
	}
	results := h.runner.Run(ctx, &job)
	summary := domain.FailureSummary(results)
	if err := h.store.UpdateExecutionResults(ctx, job.ExecutionID, results, summary); err != nil {
		return fmt.Errorf("store results for execution %s: %w", job.ExecutionID, err)
	}
	h.lggr.Infow("action chain delivered", "rule_id", job.RuleID, "execution_id", job.ExecutionID,
		"steps", len(results), "failures", summary)
	return nil
}
