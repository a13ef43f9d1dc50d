package repository

import (
	"context"
	"time"

	"bizlens/backend/internal/automation/domain"
)

// Repository defines persistence for automation rules and their executions.
type Repository interface {
	Create(ctx context.Context, r *domain.Rule) error
	// GetByID returns the company's rule, or nil if not found.
	GetByID(ctx context.Context, companyID, id string) (*domain.Rule, error)
	List(ctx context.Context, companyID string, limit, offset int32) ([]*domain.Rule, error)
	ListEnabled(ctx context.Context, companyID string) ([]*domain.Rule, error)
	// ListAllEnabled returns the enabled rules of every company, for the worker sweep.
	ListAllEnabled(ctx context.Context) ([]*domain.Rule, error)
	// Update stores the editable fields. It reports whether the rule exists.
	Update(ctx context.Context, r *domain.Rule) (bool, error)
	Delete(ctx context.Context, companyID, id string) (bool, error)
	// ClaimTrigger sets the rule's last_triggered_at to e.CreatedAt when it has not triggered
	// since notBefore, and stores e in the same transaction. It reports whether this caller
	// won the claim; a lost claim stores nothing.
	ClaimTrigger(ctx context.Context, e *domain.Execution, notBefore time.Time) (bool, error)

	CreateExecution(ctx context.Context, e *domain.Execution) error
	UpdateExecutionResults(ctx context.Context, id string, results []domain.ActionResult, errText string) error
	ListExecutions(ctx context.Context, companyID, ruleID string, limit, offset int32) ([]*domain.Execution, error)
}
