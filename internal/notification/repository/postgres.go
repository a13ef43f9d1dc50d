package repository

import (
	"context"
	"database/sql"

	"bizlens/backend/internal/db"
	"bizlens/backend/internal/notification/domain"
)

type PostgresRepository struct {
	db db.Querier
}

// NewPostgresRepository returns a notification repository that uses the given db for persistence.
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

func (r *PostgresRepository) Create(ctx context.Context, n *domain.Notification) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO notifications (id, company_id, user_id, title, message, severity, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.CompanyID, db.NullString(n.UserID), n.Title, n.Message, string(n.Severity), n.Read, n.CreatedAt)
	return err
}

func (r *PostgresRepository) List(ctx context.Context, companyID string, f Filter) ([]*domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, company_id, user_id, title, message, severity, read, created_at
		FROM notifications
		WHERE company_id = $1 AND (user_id IS NULL OR user_id = $2) AND (NOT $3 OR NOT read)
		ORDER BY created_at DESC LIMIT $4 OFFSET $5`,
		companyID, f.UserID, f.UnreadOnly, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Notification
	for rows.Next() {
		var (
			n        domain.Notification
			userID   sql.NullString
			severity string
		)
		if err := rows.Scan(&n.ID, &n.CompanyID, &userID, &n.Title, &n.Message, &severity, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.UserID = userID.String
		n.Severity = domain.Severity(severity)
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) MarkRead(ctx context.Context, companyID, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = true
		WHERE company_id = $1 AND id = $2 AND (user_id IS NULL OR user_id = $3)`, companyID, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
