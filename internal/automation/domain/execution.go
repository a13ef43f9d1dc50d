package domain

import (
	"fmt"
	"time"
)

// Reasons recorded on an execution.
const (
	ReasonTriggered       = "triggered"
	ReasonNotMet          = "condition_not_met"
	ReasonNoData          = "no_data"
	ReasonCooldown        = "cooldown"
	ReasonDisabled        = "disabled"
	ReasonEvaluationError = "evaluation_error"
)

// Execution is the recorded outcome of evaluating one rule once.
type Execution struct {
	ID          string         `json:"id"`
	RuleID      string         `json:"rule_id"`
	CompanyID   string         `json:"company_id"`
	Triggered   bool           `json:"triggered"`
	MetricValue *float64       `json:"metric_value,omitempty"`
	Reason      string         `json:"reason"`
	Results     []ActionResult `json:"results"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ActionResult is the outcome of one chain step. Queued steps are delivered later by the worker.
type ActionResult struct {
	Type    ActionType `json:"type"`
	Success bool       `json:"success"`
	Queued  bool       `json:"queued,omitempty"`
	Skipped bool       `json:"skipped,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// ChainJob is a triggered rule's action chain with the context its actions render from.
// It is the unit placed on the actions queue.
type ChainJob struct {
	ExecutionID string    `json:"execution_id"`
	RuleID      string    `json:"rule_id"`
	RuleName    string    `json:"rule_name"`
	CompanyID   string    `json:"company_id"`
	Metric      string    `json:"metric"`
	Operator    Operator  `json:"operator"`
	Threshold   float64   `json:"threshold"`
	Value       float64   `json:"value"`
	TriggeredAt time.Time `json:"triggered_at"`
	Actions     []Action  `json:"actions"`
}

// FailureSummary describes failed steps, or returns "" when none failed.
func FailureSummary(results []ActionResult) string {
	failed := 0
	for _, r := range results {
		if !r.Success && !r.Skipped && !r.Queued {
			failed++
		}
	}
	if failed == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d actions failed", failed, len(results))
}
