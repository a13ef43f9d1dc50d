package domain

import (
	"net/url"
	"strings"
	"time"

	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/platform/netguard"
)

// Rule fires its action chain when a threshold condition on a company metric holds.
type Rule struct {
	ID              string     `json:"id"`
	CompanyID       string     `json:"company_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Enabled         bool       `json:"enabled"`
	Condition       Condition  `json:"condition"`
	Actions         []Action   `json:"actions"`
	CooldownSeconds int        `json:"cooldown_seconds"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Cooldown is the minimum time between two firings of the rule.
func (r *Rule) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// InCooldown reports whether the rule fired less than Cooldown before now.
func (r *Rule) InCooldown(now time.Time) bool {
	return r.LastTriggeredAt != nil && r.CooldownSeconds > 0 && now.Before(r.LastTriggeredAt.Add(r.Cooldown()))
}

// Condition compares the latest value of Metric against Threshold. Rego, when set, is a
// policy module defining a boolean "triggered" that replaces the comparison.
type Condition struct {
	Metric    string   `json:"metric"`
	Operator  Operator `json:"operator"`
	Threshold float64  `json:"threshold"`
	Rego      string   `json:"rego,omitempty"`
}

type Operator string

const (
	OpGT  Operator = "gt"
	OpGTE Operator = "gte"
	OpLT  Operator = "lt"
	OpLTE Operator = "lte"
	OpEQ  Operator = "eq"
	OpNEQ Operator = "neq"
)

var operatorSymbols = map[Operator]string{
	OpGT: ">", OpGTE: ">=", OpLT: "<", OpLTE: "<=", OpEQ: "==", OpNEQ: "!=",
}

func (o Operator) Valid() bool {
	_, ok := operatorSymbols[o]
	return ok
}

// Symbol returns the comparison sign, e.g. ">=" for gte.
func (o Operator) Symbol() string { return operatorSymbols[o] }

// Compare applies the operator to value and threshold.
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGT:
		return value > threshold
	case OpGTE:
		return value >= threshold
	case OpLT:
		return value < threshold
	case OpLTE:
		return value <= threshold
	case OpEQ:
		return value == threshold
	case OpNEQ:
		return value != threshold
	}
	return false
}

type ActionType string

const (
	ActionEmail        ActionType = "email"
	ActionWebhook      ActionType = "webhook"
	ActionNotification ActionType = "notification"
)

// Action is one step of a rule's chain. Config keys by type:
// email: to, subject, body. webhook: url, secret. notification: title, message, severity, user_id.
type Action struct {
	Type          ActionType        `json:"type"`
	Config        map[string]string `json:"config,omitempty"`
	StopOnFailure bool              `json:"stop_on_failure,omitempty"`
}

const (
	maxActions      = 10
	maxNameLen      = 200
	maxCooldownDays = 30
)

var (
	ErrNotFound         = apierror.NotFound("automation rule not found")
	ErrNameRequired     = apierror.Invalid("rule name is required")
	ErrNameTooLong      = apierror.Invalid("rule name must be at most 200 characters")
	ErrMetricRequired   = apierror.Invalid("condition.metric is required")
	ErrInvalidOperator  = apierror.Invalid("condition.operator must be one of gt, gte, lt, lte, eq, neq")
	ErrNoActions        = apierror.Invalid("at least one action is required")
	ErrTooManyActions   = apierror.Invalid("at most 10 actions are allowed")
	ErrInvalidAction    = apierror.Invalid("action type must be email, webhook, or notification")
	ErrEmailTo          = apierror.Invalid("email action requires config.to")
	ErrWebhookURL       = apierror.Invalid("webhook action requires an http(s) config.url")
	ErrWebhookHost      = apierror.Invalid("webhook config.url must not point at a loopback, private or link-local address")
	ErrInvalidCooldown  = apierror.Invalid("cooldown_seconds must be between 0 and 30 days")
	ErrInvalidCondition = apierror.Invalid("condition.rego does not compile")
)

// Validate validates the rule for persistence. Returns an error describing the first validation failure.
// Rego compilation is checked by the engine, not here.
func (r *Rule) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Condition.Metric = strings.TrimSpace(r.Condition.Metric)
	r.Condition.Operator = Operator(strings.ToLower(string(r.Condition.Operator)))
	switch {
	case r.Name == "":
		return ErrNameRequired
	case len(r.Name) > maxNameLen:
		return ErrNameTooLong
	case r.Condition.Metric == "":
		return ErrMetricRequired
	case !r.Condition.Operator.Valid():
		return ErrInvalidOperator
	case len(r.Actions) == 0:
		return ErrNoActions
	case len(r.Actions) > maxActions:
		return ErrTooManyActions
	case r.CooldownSeconds < 0 || r.CooldownSeconds > maxCooldownDays*24*3600:
		return ErrInvalidCooldown
	}
	for i := range r.Actions {
		if err := r.Actions[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the action type and its required config keys.
func (a *Action) Validate() error {
	a.Type = ActionType(strings.ToLower(string(a.Type)))
	switch a.Type {
	case ActionEmail:
		if strings.TrimSpace(a.Config["to"]) == "" {
			return ErrEmailTo
		}
	case ActionWebhook:
		u, err := url.Parse(a.Config["url"])
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrWebhookURL
		}
		if netguard.BlockedHost(u.Hostname()) {
			return ErrWebhookHost
		}
	case ActionNotification:
	default:
		return ErrInvalidAction
	}
	return nil
}
