package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"bizlens/backend/internal/db"
	"bizlens/backend/internal/user/domain"
)

const userColumns = `id, email, full_name, status, created_at, updated_at`

type PostgresRepository struct {
	db db.Querier
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns the user with the given email (case-insensitive), or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *PostgresRepository) getOne(ctx context.Context, query, arg string) (*domain.User, error) {
	var (
		u        domain.User
		fullName sql.NullString
		status   string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &fullName, &status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.FullName = fullName.String
	u.Status = domain.UserStatus(status)
	return &u, nil
}

// Create inserts the user. A concurrent insert of the same id is ignored.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		u.ID, u.Email, db.NullString(u.FullName), string(u.Status), u.CreatedAt, u.UpdatedAt)
	return err
}

// Update writes email, full_name, status and updated_at.
func (r *PostgresRepository) Update(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET email = $2, full_name = $3, status = $4, updated_at = $5 WHERE id = $1`,
		u.ID, u.Email, db.NullString(u.FullName), string(u.Status), u.UpdatedAt)
	return err
}
