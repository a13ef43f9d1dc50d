package audit

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zapcore"

	"bizlens/backend/internal/audit/domain"
	"bizlens/backend/internal/platform/logger"
)

// mockAuditRepo implements the audit repository for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	return nil, nil
}

func (m *mockAuditRepo) ListByCompany(ctx context.Context, companyID string, f domain.Filter) ([]*domain.AuditLog, error) {
	return m.entries, nil
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	l := NewLogger(repo, func(context.Context) string { return "192.168.1.1" }, logger.Test(t))

	l.LogEvent(context.Background(), "company-1", "user-1", "rule_triggered", "automation_rule", `{"rule_id":"r1"}`)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.CompanyID != "company-1" || entry.UserID != "user-1" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Action != "rule_triggered" || entry.Resource != "automation_rule" {
		t.Errorf("action/resource = %q/%q", entry.Action, entry.Resource)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want 192.168.1.1", entry.IP)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Error("ID and CreatedAt should be set")
	}
}

func TestLogger_LogEvent_Defaults(t *testing.T) {
	repo := &mockAuditRepo{}
	NewLogger(repo, nil, logger.Nop()).LogEvent(context.Background(), "", "user-1", "update", "user", "")

	entry := repo.entries[0]
	if entry.CompanyID != SentinelCompanyID {
		t.Errorf("company_id = %q, want %q", entry.CompanyID, SentinelCompanyID)
	}
	if entry.IP != "unknown" {
		t.Errorf("ip = %q, want unknown", entry.IP)
	}
}

func TestLogger_LogEvent_RepoErrorIsLogged(t *testing.T) {
	lggr, logs := logger.TestObserved(t, zapcore.WarnLevel)
	repo := &mockAuditRepo{createErr: errors.New("db down")}

	NewLogger(repo, nil, lggr).LogEvent(context.Background(), "c", "u", "delete", "dataset", "")

	if logs.FilterMessage("failed to write audit event").Len() != 1 {
		t.Errorf("expected one warning, got %v", logs.All())
	}
}

func TestLogger_NilSafe(t *testing.T) {
	var l *Logger
	l.LogEvent(context.Background(), "c", "u", "a", "r", "")
	NewLogger(nil, nil, nil).LogEvent(context.Background(), "c", "u", "a", "r", "")
}
