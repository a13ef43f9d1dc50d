package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizlens/backend/internal/automation/domain"
	"bizlens/backend/internal/automation/engine"
	datasetdomain "bizlens/backend/internal/dataset/domain"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/platform/logger"
	"bizlens/backend/internal/telemetry/metrics"
)

type memRepo struct {
	mu    sync.Mutex
	rules map[string]*domain.Rule
	execs map[string]*domain.Execution
	order []string
	// claimErr fails the execution insert of ClaimTrigger, rolling the claim back.
	claimErr error
}

func newMemRepo() *memRepo {
	return &memRepo{rules: map[string]*domain.Rule{}, execs: map[string]*domain.Execution{}}
}

func (m *memRepo) Create(_ context.Context, r *domain.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rules[r.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, companyID, id string) (*domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.CompanyID != companyID {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, companyID string, _, _ int32) ([]*domain.Rule, error) {
	return m.ListEnabled(context.Background(), companyID)
}

func (m *memRepo) ListEnabled(_ context.Context, companyID string) ([]*domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Rule
	for _, r := range m.rules {
		if r.CompanyID == companyID && r.Enabled {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) ListAllEnabled(_ context.Context) ([]*domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Rule
	for _, r := range m.rules {
		if r.Enabled {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) Update(_ context.Context, r *domain.Rule) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[r.ID]; !ok {
		return false, nil
	}
	cp := *r
	m.rules[r.ID] = &cp
	return true, nil
}

func (m *memRepo) Delete(_ context.Context, companyID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.CompanyID != companyID {
		return false, nil
	}
	delete(m.rules, id)
	return true, nil
}

func (m *memRepo) ClaimTrigger(_ context.Context, e *domain.Execution, notBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[e.RuleID]
	if !ok {
		return false, nil
	}
	if r.LastTriggeredAt != nil && r.LastTriggeredAt.After(notBefore) {
		return false, nil
	}
	if m.claimErr != nil {
		return false, m.claimErr
	}
	now := e.CreatedAt
	r.LastTriggeredAt = &now
	cp := *e
	m.execs[e.ID] = &cp
	m.order = append(m.order, e.ID)
	return true, nil
}

func (m *memRepo) CreateExecution(_ context.Context, e *domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.execs[e.ID] = &cp
	m.order = append(m.order, e.ID)
	return nil
}

func (m *memRepo) UpdateExecutionResults(_ context.Context, id string, results []domain.ActionResult, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.execs[id]
	if !ok {
		return errors.New("no execution")
	}
	e.Results, e.Error = results, errText
	return nil
}

func (m *memRepo) ListExecutions(_ context.Context, companyID, ruleID string, _, _ int32) ([]*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Execution
	for _, id := range m.order {
		if e := m.execs[id]; e.RuleID == ruleID && e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeSource struct {
	values map[string]float64
	err    error
}

func (f *fakeSource) LatestMetric(_ context.Context, companyID, metric string) (*datasetdomain.DataPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[metric]
	if !ok {
		return nil, nil
	}
	return &datasetdomain.DataPoint{CompanyID: companyID, MetricName: metric, MetricValue: v}, nil
}

// compareEvaluator decides with the built-in comparison and rejects rego containing "bad".
type compareEvaluator struct{}

func (compareEvaluator) Evaluate(_ context.Context, r *domain.Rule, v float64) engine.Decision {
	return engine.Decision{Triggered: r.Condition.Operator.Compare(v, r.Condition.Threshold)}
}

func (compareEvaluator) Compile(_ context.Context, src string) error {
	if src == "bad" {
		return errors.New("rego_parse_error: unexpected eof")
	}
	return nil
}

type fakeRunner struct {
	mu   sync.Mutex
	jobs []*domain.ChainJob
}

func (r *fakeRunner) Run(_ context.Context, job *domain.ChainJob) []domain.ActionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	out := make([]domain.ActionResult, len(job.Actions))
	for i, a := range job.Actions {
		out[i] = domain.ActionResult{Type: a.Type, Success: true}
	}
	return out
}

type fakeQueue struct {
	jobs []*domain.ChainJob
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job *domain.ChainJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) LogEvent(_ context.Context, _, _, action, resource, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action+":"+resource)
}

type fixture struct {
	svc    *Service
	repo   *memRepo
	source *fakeSource
	runner *fakeRunner
	audit  *recordingAudit
	m      *metrics.Metrics
}

func newFixture(t *testing.T, queue ChainQueue) *fixture {
	f := &fixture{
		repo:   newMemRepo(),
		source: &fakeSource{values: map[string]float64{"revenue": 750}},
		runner: &fakeRunner{},
		audit:  &recordingAudit{},
		m:      metrics.New(prometheus.NewRegistry()),
	}
	f.svc = NewService(Deps{
		Repo:      f.repo,
		Source:    f.source,
		Evaluator: compareEvaluator{},
		Runner:    f.runner,
		Queue:     queue,
		Audit:     f.audit,
		Metrics:   f.m,
		Logger:    logger.Test(t),
	})
	return f
}

func lowRevenueRule() *domain.Rule {
	return &domain.Rule{
		Name:      "Low revenue",
		Enabled:   true,
		Condition: domain.Condition{Metric: "revenue", Operator: domain.OpLT, Threshold: 1000},
		Actions: []domain.Action{
			{Type: domain.ActionNotification},
			{Type: domain.ActionEmail, Config: map[string]string{"to": "ops@acme.test"}},
		},
	}
}

func (f *fixture) create(t *testing.T, r *domain.Rule) *domain.Rule {
	t.Helper()
	created, err := f.svc.Create(context.Background(), "c1", "u1", r)
	require.NoError(t, err)
	return created
}

func TestCreate(t *testing.T) {
	f := newFixture(t, nil)
	r := f.create(t, lowRevenueRule())
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "c1", r.CompanyID)
	assert.Equal(t, "u1", r.CreatedBy)
	assert.False(t, r.CreatedAt.IsZero())

	_, err := f.svc.Create(context.Background(), "c1", "u1", &domain.Rule{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrMetricRequired)
}

func TestCreate_InvalidRego(t *testing.T) {
	f := newFixture(t, nil)
	r := lowRevenueRule()
	r.Condition.Rego = "bad"
	_, err := f.svc.Create(context.Background(), "c1", "u1", r)
	require.Error(t, err)
	code, msg := apierror.Status(err)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, msg, "condition.rego does not compile: rego_parse_error")
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r := f.create(t, lowRevenueRule())

	upd := lowRevenueRule()
	upd.Name = "Revenue dip"
	upd.CooldownSeconds = 3600
	got, err := f.svc.Update(ctx, "c1", r.ID, upd)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.CreatedAt, got.CreatedAt)
	assert.Equal(t, "Revenue dip", f.repo.rules[r.ID].Name)

	_, err = f.svc.Update(ctx, "other", r.ID, lowRevenueRule())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.svc.Delete(ctx, "c1", r.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, "c1", r.ID), domain.ErrNotFound)
	_, err = f.svc.Get(ctx, "c1", r.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRun_TriggersInline(t *testing.T) {
	f := newFixture(t, nil)
	r := f.create(t, lowRevenueRule())

	exec, err := f.svc.Run(context.Background(), "c1", "u1", r.ID)
	require.NoError(t, err)
	assert.True(t, exec.Triggered)
	assert.Equal(t, domain.ReasonTriggered, exec.Reason)
	require.NotNil(t, exec.MetricValue)
	assert.Equal(t, 750.0, *exec.MetricValue)
	require.Len(t, exec.Results, 2)
	assert.True(t, exec.Results[0].Success)
	assert.Empty(t, exec.Error)

	require.Len(t, f.runner.jobs, 1)
	job := f.runner.jobs[0]
	assert.Equal(t, exec.ID, job.ExecutionID)
	assert.Equal(t, "Low revenue", job.RuleName)
	assert.Equal(t, 750.0, job.Value)

	assert.NotNil(t, f.repo.rules[r.ID].LastTriggeredAt)
	assert.Equal(t, []string{"rule_triggered:automation_rule"}, f.audit.actions)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.RulesTriggered.WithLabelValues("email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.RulesTriggered.WithLabelValues("notification")))

	execs, err := f.svc.Executions(context.Background(), "c1", r.ID, 50, 0)
	require.NoError(t, err)
	assert.Len(t, execs, 1)
}

func TestRun_Outcomes(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*domain.Rule, *fakeSource)
		reason string
	}{
		{"condition not met", func(r *domain.Rule, _ *fakeSource) { r.Condition.Threshold = 500 }, domain.ReasonNotMet},
		{"no data", func(r *domain.Rule, _ *fakeSource) { r.Condition.Metric = "signups" }, domain.ReasonNoData},
		{"disabled", func(r *domain.Rule, _ *fakeSource) { r.Enabled = false }, domain.ReasonDisabled},
		{"metric error", func(_ *domain.Rule, s *fakeSource) { s.err = errors.New("db down") }, domain.ReasonEvaluationError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			r := lowRevenueRule()
			tc.mutate(r, f.source)
			r = f.create(t, r)

			exec, err := f.svc.Run(context.Background(), "c1", "u1", r.ID)
			require.NoError(t, err)
			assert.False(t, exec.Triggered)
			assert.Equal(t, tc.reason, exec.Reason)
			assert.Empty(t, f.runner.jobs)
			assert.Len(t, f.repo.execs, 1)
		})
	}
}

func TestRun_Cooldown(t *testing.T) {
	f := newFixture(t, nil)
	r := lowRevenueRule()
	r.CooldownSeconds = 600
	r = f.create(t, r)
	ctx := context.Background()

	first, err := f.svc.Run(ctx, "c1", "u1", r.ID)
	require.NoError(t, err)
	assert.True(t, first.Triggered)

	second, err := f.svc.Run(ctx, "c1", "u1", r.ID)
	require.NoError(t, err)
	assert.False(t, second.Triggered)
	assert.Equal(t, domain.ReasonCooldown, second.Reason)
	assert.Len(t, f.runner.jobs, 1)

	later := time.Now().UTC().Add(11 * time.Minute)
	f.svc.now = func() time.Time { return later }
	third, err := f.svc.Run(ctx, "c1", "u1", r.ID)
	require.NoError(t, err)
	assert.True(t, third.Triggered)
}

func TestRun_FailedClaimLeavesCooldownUnused(t *testing.T) {
	f := newFixture(t, nil)
	r := lowRevenueRule()
	r.CooldownSeconds = 600
	r = f.create(t, r)
	ctx := context.Background()

	f.repo.claimErr = errors.New("insert execution: connection reset")
	_, err := f.svc.Run(ctx, "c1", "u1", r.ID)
	require.Error(t, err)
	assert.Nil(t, f.repo.rules[r.ID].LastTriggeredAt)
	assert.Empty(t, f.repo.execs)
	assert.Empty(t, f.runner.jobs)

	f.repo.claimErr = nil
	exec, err := f.svc.Run(ctx, "c1", "u1", r.ID)
	require.NoError(t, err)
	assert.True(t, exec.Triggered, "the failed attempt must not start the cooldown")
	require.Len(t, f.runner.jobs, 1)
	stored := f.repo.execs[exec.ID]
	require.NotNil(t, stored)
	require.Len(t, stored.Results, 2)
	assert.True(t, stored.Results[0].Success)
}

func TestRun_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Run(context.Background(), "c1", "u1", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRun_QueuesChain(t *testing.T) {
	q := &fakeQueue{}
	f := newFixture(t, q)
	r := f.create(t, lowRevenueRule())

	exec, err := f.svc.Run(context.Background(), "c1", "u1", r.ID)
	require.NoError(t, err)
	assert.True(t, exec.Triggered)
	require.Len(t, q.jobs, 1)
	assert.Equal(t, exec.ID, q.jobs[0].ExecutionID)
	assert.Empty(t, f.runner.jobs)
	for _, res := range f.repo.execs[exec.ID].Results {
		assert.True(t, res.Queued)
	}
}

func TestRun_QueueFailureDeliversInline(t *testing.T) {
	f := newFixture(t, &fakeQueue{err: errors.New("broker unavailable")})
	r := f.create(t, lowRevenueRule())

	exec, err := f.svc.Run(context.Background(), "c1", "u1", r.ID)
	require.NoError(t, err)
	require.Len(t, f.runner.jobs, 1)
	stored := f.repo.execs[exec.ID]
	require.Len(t, stored.Results, 2)
	assert.True(t, stored.Results[0].Success)
	assert.False(t, stored.Results[0].Queued)
}

func TestEvaluateCompany(t *testing.T) {
	f := newFixture(t, nil)
	f.source.values["churn_rate"] = 0.02
	for i := 0; i < 6; i++ {
		f.create(t, lowRevenueRule())
	}
	quiet := lowRevenueRule()
	quiet.Condition = domain.Condition{Metric: "churn_rate", Operator: domain.OpGT, Threshold: 0.05}
	f.create(t, quiet)
	off := lowRevenueRule()
	off.Enabled = false
	f.create(t, off)

	execs, err := f.svc.EvaluateCompany(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.Len(t, execs, 7)
	triggered := 0
	for _, e := range execs {
		if e.Triggered {
			triggered++
		}
	}
	assert.Equal(t, 6, triggered)
	assert.Len(t, f.runner.jobs, 6)
}

func TestEvaluateAll(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, lowRevenueRule())
	other := lowRevenueRule()
	_, err := f.svc.Create(context.Background(), "c2", "u2", other)
	require.NoError(t, err)

	execs, err := f.svc.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, execs, 2)
}
