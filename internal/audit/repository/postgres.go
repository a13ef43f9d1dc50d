package repository

import (
	"context"
	"database/sql"
	"errors"

	"bizlens/backend/internal/audit/domain"
	"bizlens/backend/internal/db"
)

const auditColumns = `id, company_id, user_id, action, resource, ip, metadata, created_at`

type PostgresRepository struct {
	db db.Querier
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

// GetByID returns the audit log for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_logs WHERE id = $1`, id)
	a, err := scanAuditLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ListByCompany returns audit logs for the company, newest first, optionally filtered
// by user, action and resource.
func (r *PostgresRepository) ListByCompany(ctx context.Context, companyID string, f domain.Filter) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+auditColumns+` FROM audit_logs
		WHERE company_id = $1
		  AND ($2 = '' OR user_id = $2)
		  AND ($3 = '' OR action = $3)
		  AND ($4 = '' OR resource = $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6`,
		companyID, f.UserID, f.Action, f.Resource, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO audit_logs (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.CompanyID, db.NullString(a.UserID), a.Action, a.Resource, a.IP, db.NullString(a.Metadata), a.CreatedAt)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuditLog(s scanner) (*domain.AuditLog, error) {
	var (
		a        domain.AuditLog
		userID   sql.NullString
		metadata sql.NullString
	)
	if err := s.Scan(&a.ID, &a.CompanyID, &userID, &a.Action, &a.Resource, &a.IP, &metadata, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.UserID = userID.String
	a.Metadata = metadata.String
	return &a, nil
}
