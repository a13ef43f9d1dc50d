// Package actions delivers the action chain of a triggered automation rule.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bizlens/backend/internal/automation/domain"
	notifdomain "bizlens/backend/internal/notification/domain"
	"bizlens/backend/internal/platform/logger"
)

// WebhookEvent is the event name carried by webhook payloads.
const WebhookEvent = "automation_rule_triggered"

const (
	defaultSubject = "BizLens alert: {{rule}}"
	defaultBody    = "Rule {{rule}} triggered: {{metric}} is {{value}} ({{operator}} {{threshold}})."
	defaultTitle   = "{{rule}} triggered"
)

var errEmailDisabled = errors.New("email delivery is not configured")

// Mailer sends an email to a comma-separated recipient list.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// WebhookDeliverer posts a signed JSON payload.
type WebhookDeliverer interface {
	Deliver(ctx context.Context, url, secret string, payload []byte) error
}

// Notifier stores an in-app notification.
type Notifier interface {
	Create(ctx context.Context, n *notifdomain.Notification) error
}

// Runner executes a chain step by step. A nil mailer makes email steps fail.
type Runner struct {
	mailer   Mailer
	webhooks WebhookDeliverer
	notifier Notifier
	lggr     logger.Logger
}

func NewRunner(mailer Mailer, webhooks WebhookDeliverer, notifier Notifier, lggr logger.Logger) *Runner {
	return &Runner{mailer: mailer, webhooks: webhooks, notifier: notifier, lggr: lggr.Named("actions")}
}

// Run executes the job's actions in order and returns one result per action. After a failed
// step marked StopOnFailure the remaining steps are reported as skipped.
func (r *Runner) Run(ctx context.Context, job *domain.ChainJob) []domain.ActionResult {
	results := make([]domain.ActionResult, len(job.Actions))
	stopped := false
	for i, a := range job.Actions {
		results[i].Type = a.Type
		if stopped {
			results[i].Skipped = true
			continue
		}
		if err := r.runOne(ctx, job, a); err != nil {
			results[i].Error = err.Error()
			r.lggr.Warnw("action failed", "rule_id", job.RuleID, "execution_id", job.ExecutionID,
				"step", i, "type", a.Type, "err", err)
			stopped = a.StopOnFailure
			continue
		}
		results[i].Success = true
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, job *domain.ChainJob, a domain.Action) error {
	switch a.Type {
	case domain.ActionEmail:
		if r.mailer == nil {
			return errEmailDisabled
		}
		subject := Render(configOr(a.Config, "subject", defaultSubject), job)
		body := Render(configOr(a.Config, "body", defaultBody), job)
		return r.mailer.Send(ctx, a.Config["to"], subject, body)
	case domain.ActionWebhook:
		payload, err := WebhookPayload(job)
		if err != nil {
			return err
		}
		return r.webhooks.Deliver(ctx, a.Config["url"], a.Config["secret"], payload)
	case domain.ActionNotification:
		sev := notifdomain.Severity(configOr(a.Config, "severity", string(notifdomain.SeverityWarning)))
		return r.notifier.Create(ctx, &notifdomain.Notification{
			CompanyID: job.CompanyID,
			UserID:    a.Config["user_id"],
			Title:     Render(configOr(a.Config, "title", defaultTitle), job),
			Message:   Render(configOr(a.Config, "message", defaultBody), job),
			Severity:  sev,
		})
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

func configOr(cfg map[string]string, key, fallback string) string {
	if v := strings.TrimSpace(cfg[key]); v != "" {
		return v
	}
	return fallback
}

// Render substitutes {{rule}}, {{metric}}, {{operator}}, {{threshold}} and {{value}} in s.
func Render(s string, job *domain.ChainJob) string {
	return strings.NewReplacer(
		"{{rule}}", job.RuleName,
		"{{metric}}", job.Metric,
		"{{operator}}", job.Operator.Symbol(),
		"{{threshold}}", formatFloat(job.Threshold),
		"{{value}}", formatFloat(job.Value),
	).Replace(s)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

type webhookBody struct {
	Event       string          `json:"event"`
	RuleID      string          `json:"rule_id"`
	RuleName    string          `json:"rule_name"`
	CompanyID   string          `json:"company_id"`
	ExecutionID string          `json:"execution_id"`
	Metric      string          `json:"metric"`
	Operator    domain.Operator `json:"operator"`
	Threshold   float64         `json:"threshold"`
	Value       float64         `json:"value"`
	TriggeredAt time.Time       `json:"triggered_at"`
}

// WebhookPayload is the JSON body posted to webhook actions.
func WebhookPayload(job *domain.ChainJob) ([]byte, error) {
	return json.Marshal(webhookBody{
		Event:       WebhookEvent,
		RuleID:      job.RuleID,
		RuleName:    job.RuleName,
		CompanyID:   job.CompanyID,
		ExecutionID: job.ExecutionID,
		Metric:      job.Metric,
		Operator:    job.Operator,
		Threshold:   job.Threshold,
		Value:       job.Value,
		TriggeredAt: job.TriggeredAt,
	})
}
