package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bizlens/backend/internal/audit/domain"
	auditrepo "bizlens/backend/internal/audit/repository"
	"bizlens/backend/internal/platform/logger"
)

// SentinelCompanyID is the company_id used for audit events that have no company (e.g. profile updates).
const SentinelCompanyID = "_system"

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. Used by the automation
// evaluator and dataset deletion. LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, companyID, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	lggr        logger.Logger
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, lggr logger.Logger) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, lggr: lggr}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, companyID, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	if companyID == "" {
		companyID = SentinelCompanyID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil && l.lggr != nil {
		l.lggr.Warnw("failed to write audit event", "action", action, "resource", resource, "err", err)
	}
}
