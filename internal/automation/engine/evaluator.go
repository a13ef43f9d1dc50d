// Package engine evaluates automation rule conditions with OPA Rego.
package engine

import (
	"context"

	"bizlens/backend/internal/automation/domain"
)

// Decision is the outcome of evaluating one condition.
type Decision struct {
	Triggered bool
	// Fallback is true when the policy could not be evaluated and the built-in comparison decided.
	Fallback bool
}

// Evaluator decides whether a rule condition holds for a metric value.
type Evaluator interface {
	Evaluate(ctx context.Context, rule *domain.Rule, value float64) Decision
	// Compile reports whether a custom condition policy is usable.
	Compile(ctx context.Context, src string) error
}
