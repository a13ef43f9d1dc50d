package ai

import (
	"context"
	"fmt"
	"strings"

	dsdomain "bizlens/backend/internal/dataset/domain"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/platform/logger"
	"bizlens/backend/internal/telemetry"
)

var ErrEmptyQuestion = apierror.Invalid("question is required")

// Completer is satisfied by *Orchestrator.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// DataSource supplies the company context embedded in the system prompt.
type DataSource interface {
	Metrics(ctx context.Context, companyID string) ([]*dsdomain.MetricSummary, error)
	Quality(ctx context.Context, companyID, id string) (*dsdomain.QualityReport, error)
}

// Question is a chat-with-data request.
type Question struct {
	Question  string
	DatasetID string
	Provider  string
	Model     string
}

// DataChat answers questions about a company's data.
type DataChat struct {
	ai      Completer
	data    DataSource
	emitter telemetry.EventEmitter
	lggr    logger.Logger
}

func NewDataChat(ai Completer, data DataSource, emitter telemetry.EventEmitter, lggr logger.Logger) *DataChat {
	if emitter == nil {
		emitter = telemetry.Noop{}
	}
	return &DataChat{ai: ai, data: data, emitter: emitter, lggr: lggr}
}

// Ask builds the company context and sends the question with it.
func (d *DataChat) Ask(ctx context.Context, companyID, userID string, q Question) (*Response, error) {
	if strings.TrimSpace(q.Question) == "" {
		return nil, ErrEmptyQuestion
	}
	kpis, err := d.data.Metrics(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load kpis: %w", err)
	}
	var report *dsdomain.QualityReport
	if q.DatasetID != "" {
		report, err = d.data.Quality(ctx, companyID, q.DatasetID)
		if err != nil {
			return nil, err
		}
	}

	resp, err := d.ai.Complete(ctx, Request{
		Provider: q.Provider,
		Model:    q.Model,
		Messages: []Message{
			{Role: RoleSystem, Content: SystemPrompt(kpis, report)},
			{Role: RoleUser, Content: q.Question},
		},
	})
	if err != nil {
		return nil, err
	}
	telemetry.EmitAsync(d.lggr, d.emitter, telemetry.NewEvent("ai_chat", "ai", companyID, userID, map[string]any{
		"provider": resp.Provider,
		"cached":   resp.Cached,
		"fallback": resp.Fallback,
		"dataset":  q.DatasetID,
	}))
	return resp, nil
}

// SystemPrompt renders the KPI summary and, when report is non-nil, the dataset quality summary.
func SystemPrompt(kpis []*dsdomain.MetricSummary, report *dsdomain.QualityReport) string {
	var b strings.Builder
	b.WriteString("You are BizLens, a business analytics assistant. Answer using the company data below. ")
	b.WriteString("If the data does not answer the question, say so.\n\n")

	b.WriteString("KPI summary:\n")
	if len(kpis) == 0 {
		b.WriteString("- no metrics have been uploaded yet\n")
	}
	for _, k := range kpis {
		fmt.Fprintf(&b, "- %s: latest %.2f (min %.2f, max %.2f, avg %.2f, %d points)\n",
			k.MetricName, k.Latest, k.Min, k.Max, k.Avg, k.Count)
	}

	if report != nil {
		fmt.Fprintf(&b, "\nDataset quality: %d rows, %d columns, %d missing values, %d outliers, %d duplicate rows, score %.1f/100\n",
			report.TotalRows, report.TotalColumns, report.MissingValues, len(report.Outliers), report.DuplicateCount, report.Score)
	}
	return b.String()
}
