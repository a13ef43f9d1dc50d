// Package service manages automation rules and evaluates them against company metrics.
package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bizlens/backend/internal/audit"
	"bizlens/backend/internal/automation/domain"
	"bizlens/backend/internal/automation/engine"
	automationrepo "bizlens/backend/internal/automation/repository"
	datasetdomain "bizlens/backend/internal/dataset/domain"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/platform/logger"
	"bizlens/backend/internal/telemetry"
	"bizlens/backend/internal/telemetry/metrics"
)

// MaxConcurrentRules bounds how many rules are evaluated at once in a batch.
const MaxConcurrentRules = 4

// MetricSource returns the latest data point of a company metric, or nil when there is none.
type MetricSource interface {
	LatestMetric(ctx context.Context, companyID, metric string) (*datasetdomain.DataPoint, error)
}

// ChainRunner delivers an action chain inline.
type ChainRunner interface {
	Run(ctx context.Context, job *domain.ChainJob) []domain.ActionResult
}

// ChainQueue hands an action chain to the worker.
type ChainQueue interface {
	Enqueue(ctx context.Context, job *domain.ChainJob) error
}

// Deps are the collaborators of Service. Queue, Audit, Emitter and Metrics are optional.
type Deps struct {
	Repo      automationrepo.Repository
	Source    MetricSource
	Evaluator engine.Evaluator
	Runner    ChainRunner
	Queue     ChainQueue
	Audit     audit.AuditLogger
	Emitter   telemetry.EventEmitter
	Metrics   *metrics.Metrics
	Logger    logger.Logger
}

type Service struct {
	repo      automationrepo.Repository
	source    MetricSource
	evaluator engine.Evaluator
	runner    ChainRunner
	queue     ChainQueue
	audit     audit.AuditLogger
	emitter   telemetry.EventEmitter
	metrics   *metrics.Metrics
	lggr      logger.Logger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	if d.Emitter == nil {
		d.Emitter = telemetry.Noop{}
	}
	return &Service{
		repo:      d.Repo,
		source:    d.Source,
		evaluator: d.Evaluator,
		runner:    d.Runner,
		queue:     d.Queue,
		audit:     d.Audit,
		emitter:   d.Emitter,
		metrics:   d.Metrics,
		lggr:      d.Logger.Named("automation"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) validate(ctx context.Context, r *domain.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Condition.Rego) == "" {
		r.Condition.Rego = ""
		return nil
	}
	if err := s.evaluator.Compile(ctx, r.Condition.Rego); err != nil {
		return apierror.Invalid(domain.ErrInvalidCondition.Msg + ": " + err.Error())
	}
	return nil
}

// Create validates and stores a new rule for the company.
func (s *Service) Create(ctx context.Context, companyID, userID string, r *domain.Rule) (*domain.Rule, error) {
	r.CompanyID = companyID
	if err := s.validate(ctx, r); err != nil {
		return nil, err
	}
	now := s.now()
	r.ID = uuid.NewString()
	r.CreatedBy = userID
	r.CreatedAt = now
	r.UpdatedAt = now
	r.LastTriggeredAt = nil
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, companyID, id string) (*domain.Rule, error) {
	r, err := s.repo.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, companyID string, limit, offset int32) ([]*domain.Rule, error) {
	return s.repo.List(ctx, companyID, limit, offset)
}

// Update replaces the editable fields of an existing rule.
func (s *Service) Update(ctx context.Context, companyID, id string, r *domain.Rule) (*domain.Rule, error) {
	existing, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	r.ID = existing.ID
	r.CompanyID = existing.CompanyID
	r.CreatedBy = existing.CreatedBy
	r.CreatedAt = existing.CreatedAt
	r.LastTriggeredAt = existing.LastTriggeredAt
	if err := s.validate(ctx, r); err != nil {
		return nil, err
	}
	r.UpdatedAt = s.now()
	ok, err := s.repo.Update(ctx, r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (s *Service) Delete(ctx context.Context, companyID, id string) error {
	ok, err := s.repo.Delete(ctx, companyID, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

// Executions returns the rule's evaluation history, newest first.
func (s *Service) Executions(ctx context.Context, companyID, ruleID string, limit, offset int32) ([]*domain.Execution, error) {
	if _, err := s.Get(ctx, companyID, ruleID); err != nil {
		return nil, err
	}
	return s.repo.ListExecutions(ctx, companyID, ruleID, limit, offset)
}

// Run evaluates one rule now. A disabled rule is recorded without being evaluated.
func (s *Service) Run(ctx context.Context, companyID, userID, ruleID string) (*domain.Execution, error) {
	r, err := s.Get(ctx, companyID, ruleID)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, r, userID)
}

// EvaluateCompany evaluates every enabled rule of the company.
func (s *Service) EvaluateCompany(ctx context.Context, companyID, userID string) ([]*domain.Execution, error) {
	rules, err := s.repo.ListEnabled(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return s.evaluateAll(ctx, rules, userID), nil
}

// EvaluateAll evaluates the enabled rules of every company. The worker calls it on an interval.
func (s *Service) EvaluateAll(ctx context.Context) ([]*domain.Execution, error) {
	rules, err := s.repo.ListAllEnabled(ctx)
	if err != nil {
		return nil, err
	}
	return s.evaluateAll(ctx, rules, ""), nil
}

// evaluateAll runs up to MaxConcurrentRules evaluations at a time. A rule that fails to
// persist is logged and left out of the result.
func (s *Service) evaluateAll(ctx context.Context, rules []*domain.Rule, userID string) []*domain.Execution {
	execs := make([]*domain.Execution, len(rules))
	var g errgroup.Group
	g.SetLimit(MaxConcurrentRules)
	for i, r := range rules {
		g.Go(func() error {
			exec, err := s.evaluate(ctx, r, userID)
			if err != nil {
				s.lggr.Errorw("evaluate rule", "rule_id", r.ID, "company_id", r.CompanyID, "err", err)
				return nil
			}
			execs[i] = exec
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*domain.Execution, 0, len(execs))
	for _, e := range execs {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (s *Service) evaluate(ctx context.Context, r *domain.Rule, userID string) (*domain.Execution, error) {
	now := s.now()
	exec := &domain.Execution{
		ID:        uuid.NewString(),
		RuleID:    r.ID,
		CompanyID: r.CompanyID,
		Results:   []domain.ActionResult{},
		CreatedAt: now,
	}
	if !r.Enabled {
		exec.Reason = domain.ReasonDisabled
		return exec, s.repo.CreateExecution(ctx, exec)
	}

	point, err := s.source.LatestMetric(ctx, r.CompanyID, r.Condition.Metric)
	if err != nil {
		s.lggr.Warnw("metric lookup failed", "rule_id", r.ID, "metric", r.Condition.Metric, "err", err)
		exec.Reason = domain.ReasonEvaluationError
		exec.Error = "metric lookup failed"
		return exec, s.repo.CreateExecution(ctx, exec)
	}
	if point == nil {
		exec.Reason = domain.ReasonNoData
		return exec, s.repo.CreateExecution(ctx, exec)
	}
	value := point.MetricValue
	exec.MetricValue = &value

	if !s.evaluator.Evaluate(ctx, r, value).Triggered {
		exec.Reason = domain.ReasonNotMet
		return exec, s.repo.CreateExecution(ctx, exec)
	}
	if r.InCooldown(now) {
		exec.Reason = domain.ReasonCooldown
		return exec, s.repo.CreateExecution(ctx, exec)
	}
	exec.Triggered = true
	exec.Reason = domain.ReasonTriggered
	if s.queue != nil {
		exec.Results = make([]domain.ActionResult, len(r.Actions))
		for i, a := range r.Actions {
			exec.Results[i] = domain.ActionResult{Type: a.Type, Queued: true}
		}
	}
	// concurrent evaluators of the same rule race here; only one claim succeeds, and the
	// winner's execution row is written with the claim
	claimed, err := s.repo.ClaimTrigger(ctx, exec, now.Add(-r.Cooldown()))
	if err != nil {
		return nil, err
	}
	if !claimed {
		exec.Triggered = false
		exec.Reason = domain.ReasonCooldown
		exec.Results = []domain.ActionResult{}
		return exec, s.repo.CreateExecution(ctx, exec)
	}
	r.LastTriggeredAt = &now

	if err := s.dispatch(ctx, r, exec, value); err != nil {
		return nil, err
	}
	s.recordTrigger(ctx, r, exec, userID, value)
	return exec, nil
}

// dispatch delivers the chain of a claimed execution, through the queue when one is set.
func (s *Service) dispatch(ctx context.Context, r *domain.Rule, exec *domain.Execution, value float64) error {
	job := &domain.ChainJob{
		ExecutionID: exec.ID,
		RuleID:      r.ID,
		RuleName:    r.Name,
		CompanyID:   r.CompanyID,
		Metric:      r.Condition.Metric,
		Operator:    r.Condition.Operator,
		Threshold:   r.Condition.Threshold,
		Value:       value,
		TriggeredAt: exec.CreatedAt,
		Actions:     r.Actions,
	}
	if s.queue == nil {
		exec.Results = s.runner.Run(ctx, job)
		exec.Error = domain.FailureSummary(exec.Results)
		return s.repo.UpdateExecutionResults(ctx, exec.ID, exec.Results, exec.Error)
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.lggr.Warnw("enqueue action chain failed, delivering inline", "rule_id", r.ID, "execution_id", exec.ID, "err", err)
		exec.Results = s.runner.Run(ctx, job)
		exec.Error = domain.FailureSummary(exec.Results)
		return s.repo.UpdateExecutionResults(ctx, exec.ID, exec.Results, exec.Error)
	}
	return nil
}

func (s *Service) recordTrigger(ctx context.Context, r *domain.Rule, exec *domain.Execution, userID string, value float64) {
	for _, a := range r.Actions {
		s.metrics.RuleTriggered(string(a.Type))
	}
	s.lggr.Infow("rule triggered", "rule_id", r.ID, "company_id", r.CompanyID, "execution_id", exec.ID,
		"metric", r.Condition.Metric, "value", value, "actions", len(r.Actions))
	meta := map[string]any{
		"rule_id":      r.ID,
		"execution_id": exec.ID,
		"metric":       r.Condition.Metric,
		"value":        value,
		"threshold":    r.Condition.Threshold,
	}
	if s.audit != nil {
		b, _ := json.Marshal(meta)
		s.audit.LogEvent(ctx, r.CompanyID, userID, "rule_triggered", "automation_rule", string(b))
	}
	telemetry.EmitAsync(s.lggr, s.emitter, telemetry.NewEvent("automation_rule_triggered", "automation", r.CompanyID, userID, meta))
}
