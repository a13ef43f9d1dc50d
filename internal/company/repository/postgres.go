package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bizlens/backend/internal/company/domain"
	"bizlens/backend/internal/db"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a company repository backed by Postgres.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// CreateWithAdmin inserts the company and its first admin membership atomically.
func (r *PostgresRepository) CreateWithAdmin(ctx context.Context, c *domain.Company, admin *domain.Membership) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO companies (id, name, industry, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.Name, db.NullString(c.Industry), string(c.Status), c.CreatedAt); err != nil {
			return fmt.Errorf("insert company: %w", err)
		}
		if err := insertMembership(ctx, tx, admin); err != nil {
			return fmt.Errorf("insert admin membership: %w", err)
		}
		return nil
	})
}

// GetByID returns the company for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Company, error) {
	var (
		c        domain.Company
		industry sql.NullString
		status   string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, industry, status, created_at FROM companies WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &industry, &status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Industry = industry.String
	c.Status = domain.CompanyStatus(status)
	return &c, nil
}

const membershipSelect = `SELECT m.id, m.user_id, m.company_id, m.role, m.created_at, u.email, COALESCE(u.full_name, ''), c.name
	FROM memberships m
	JOIN users u ON u.id = m.user_id
	JOIN companies c ON c.id = m.company_id`

// GetMembership returns the membership of userID in companyID, or nil if none.
func (r *PostgresRepository) GetMembership(ctx context.Context, userID, companyID string) (*domain.Membership, error) {
	row := r.db.QueryRowContext(ctx, membershipSelect+` WHERE m.user_id = $1 AND m.company_id = $2`, userID, companyID)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// ListMembers returns the company's memberships, admins first.
func (r *PostgresRepository) ListMembers(ctx context.Context, companyID string) ([]*domain.Membership, error) {
	return r.listMemberships(ctx, membershipSelect+` WHERE m.company_id = $1
		ORDER BY CASE m.role WHEN 'admin' THEN 0 WHEN 'analyst' THEN 1 ELSE 2 END, m.created_at`, companyID)
}

// ListMembershipsByUser returns every company membership of userID.
func (r *PostgresRepository) ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	return r.listMemberships(ctx, membershipSelect+` WHERE m.user_id = $1 ORDER BY c.name`, userID)
}

func (r *PostgresRepository) listMemberships(ctx context.Context, query string, arg string) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMember inserts a membership. A duplicate returns domain.ErrAlreadyMember and an
// unknown user returns domain.ErrUserNotFound.
func (r *PostgresRepository) AddMember(ctx context.Context, m *domain.Membership) error {
	err := insertMembership(ctx, r.db, m)
	switch {
	case db.IsUniqueViolation(err):
		return domain.ErrAlreadyMember
	case db.IsForeignKeyViolation(err):
		return domain.ErrUserNotFound
	default:
		return err
	}
}

// lockMembersQuery locks the target membership and every admin row of the company. Rows are
// taken in user_id order so concurrent role changes queue instead of deadlocking, and a
// waiting transaction re-reads the admin set once the first one commits.
const lockMembersQuery = `SELECT user_id, role FROM memberships
	WHERE company_id = $1 AND (role = 'admin' OR user_id = $2)
	ORDER BY user_id
	FOR UPDATE`

// UpdateRole changes a member's role. Demoting the last admin fails with domain.ErrLastAdmin.
func (r *PostgresRepository) UpdateRole(ctx context.Context, userID, companyID string, role domain.Role) (*domain.Membership, error) {
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		current, otherAdmins, err := lockMembers(ctx, tx, userID, companyID)
		if err != nil {
			return err
		}
		if dropsLastAdmin(current, role, otherAdmins) {
			return domain.ErrLastAdmin
		}
		_, err = tx.ExecContext(ctx, `UPDATE memberships SET role = $3 WHERE user_id = $1 AND company_id = $2`,
			userID, companyID, string(role))
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.GetMembership(ctx, userID, companyID)
}

// RemoveMember deletes a membership unless it is the company's only admin.
func (r *PostgresRepository) RemoveMember(ctx context.Context, userID, companyID string) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		current, otherAdmins, err := lockMembers(ctx, tx, userID, companyID)
		if err != nil {
			return err
		}
		if dropsLastAdmin(current, "", otherAdmins) {
			return domain.ErrLastAdmin
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM memberships WHERE user_id = $1 AND company_id = $2`, userID, companyID)
		return err
	})
}

// lockMembers returns the locked role of userID and the number of other admins.
func lockMembers(ctx context.Context, q db.Querier, userID, companyID string) (domain.Role, int, error) {
	rows, err := q.QueryContext(ctx, lockMembersQuery, companyID, userID)
	if err != nil {
		return "", 0, err
	}
	defer rows.Close()
	var (
		current     domain.Role
		otherAdmins int
	)
	for rows.Next() {
		var id, role string
		if err := rows.Scan(&id, &role); err != nil {
			return "", 0, err
		}
		if id == userID {
			current = domain.Role(role)
			continue
		}
		otherAdmins++
	}
	if err := rows.Err(); err != nil {
		return "", 0, err
	}
	if current == "" {
		return "", 0, domain.ErrMemberNotFound
	}
	return current, otherAdmins, nil
}

// dropsLastAdmin reports whether moving a member from current to next (empty for removal)
// leaves the company without an admin.
func dropsLastAdmin(current, next domain.Role, otherAdmins int) bool {
	return current == domain.RoleAdmin && next != domain.RoleAdmin && otherAdmins == 0
}

func insertMembership(ctx context.Context, q db.Querier, m *domain.Membership) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO memberships (id, user_id, company_id, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.UserID, m.CompanyID, string(m.Role), m.CreatedAt)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMembership(s scanner) (*domain.Membership, error) {
	var (
		m    domain.Membership
		role string
	)
	if err := s.Scan(&m.ID, &m.UserID, &m.CompanyID, &role, &m.CreatedAt, &m.Email, &m.FullName, &m.CompanyName); err != nil {
		return nil, err
	}
	m.Role = domain.Role(role)
	return &m, nil
}
