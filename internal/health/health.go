// Package health aggregates readiness checks for /health and the gRPC health service.
package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

const checkTimeout = 3 * time.Second

const (
	StatusHealthy       = "healthy"
	StatusDegraded      = "degraded"
	StatusUnhealthy     = "unhealthy"
	StatusUnavailable   = "unavailable"
	StatusNotConfigured = "not_configured"
)

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the automation policy engine can evaluate.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// ModelCounter reports the number of model artifacts available.
type ModelCounter interface {
	Count() int
}

// LLMPinger checks the local LLM server.
type LLMPinger interface {
	Ping(ctx context.Context) error
}

// Service is the state of one dependency.
type Service struct {
	Status string `json:"status"`
	Count  *int   `json:"count,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report is the /health body. Status is degraded when the database or the policy engine is unhealthy;
// the ML registry and the local LLM are informational.
type Report struct {
	Status   string             `json:"status"`
	Services map[string]Service `json:"services"`
}

func (r Report) Healthy() bool { return r.Status == StatusHealthy }

// Checker runs the checks. Nil dependencies are reported as not configured and do not degrade status.
type Checker struct {
	db     Pinger
	policy PolicyChecker
	models ModelCounter
	llm    LLMPinger
}

func NewChecker(db Pinger, policy PolicyChecker, models ModelCounter, llm LLMPinger) *Checker {
	return &Checker{db: db, policy: policy, models: models, llm: llm}
}

// Check runs every configured check concurrently, each bounded by checkTimeout.
func (c *Checker) Check(ctx context.Context) Report {
	var database, policy, llm Service
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		database = c.probe(gctx, c.db != nil, func(ctx context.Context) error { return c.db.PingContext(ctx) }, StatusUnhealthy)
		return nil
	})
	g.Go(func() error {
		policy = c.probe(gctx, c.policy != nil, func(ctx context.Context) error { return c.policy.HealthCheck(ctx) }, StatusUnhealthy)
		return nil
	})
	g.Go(func() error {
		llm = c.probe(gctx, c.llm != nil, func(ctx context.Context) error { return c.llm.Ping(ctx) }, StatusUnavailable)
		return nil
	})
	_ = g.Wait()

	models := Service{Status: StatusNotConfigured}
	if c.models != nil {
		n := c.models.Count()
		models = Service{Status: StatusHealthy, Count: &n}
	}

	status := StatusHealthy
	if database.Status == StatusUnhealthy || policy.Status == StatusUnhealthy {
		status = StatusDegraded
	}
	return Report{
		Status: status,
		Services: map[string]Service{
			"database":      database,
			"ml_models":     models,
			"ollama":        llm,
			"policy_engine": policy,
		},
	}
}

func (c *Checker) probe(ctx context.Context, configured bool, fn func(context.Context) error, failStatus string) Service {
	if !configured {
		return Service{Status: StatusNotConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return Service{Status: failStatus, Error: err.Error()}
	}
	return Service{Status: StatusHealthy}
}
