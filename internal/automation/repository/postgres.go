package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bizlens/backend/internal/automation/domain"
	"bizlens/backend/internal/db"
)

const ruleColumns = `id, company_id, name, description, enabled, condition, actions, cooldown_seconds,
	last_triggered_at, created_by, created_at, updated_at`

type PostgresRepository struct {
	db db.Querier
}

// NewPostgresRepository returns an automation repository that uses the given db for persistence.
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

func encodeRule(r *domain.Rule) (condition, actions []byte, err error) {
	if condition, err = json.Marshal(r.Condition); err != nil {
		return nil, nil, err
	}
	if actions, err = json.Marshal(r.Actions); err != nil {
		return nil, nil, err
	}
	return condition, actions, nil
}

func (r *PostgresRepository) Create(ctx context.Context, rule *domain.Rule) error {
	condition, actions, err := encodeRule(rule)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO automation_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rule.ID, rule.CompanyID, rule.Name, db.NullString(rule.Description), rule.Enabled, condition, actions,
		rule.CooldownSeconds, db.NullTime(rule.LastTriggeredAt), db.NullString(rule.CreatedBy),
		rule.CreatedAt, rule.UpdatedAt)
	return err
}

func (r *PostgresRepository) GetByID(ctx context.Context, companyID, id string) (*domain.Rule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE company_id = $1 AND id = $2`, companyID, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rule, err
}

func (r *PostgresRepository) List(ctx context.Context, companyID string, limit, offset int32) ([]*domain.Rule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM automation_rules
		WHERE company_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, companyID, limit, offset)
}

func (r *PostgresRepository) ListEnabled(ctx context.Context, companyID string) ([]*domain.Rule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM automation_rules
		WHERE company_id = $1 AND enabled ORDER BY created_at`, companyID)
}

func (r *PostgresRepository) ListAllEnabled(ctx context.Context) ([]*domain.Rule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE enabled ORDER BY company_id, created_at`)
}

func (r *PostgresRepository) queryRules(ctx context.Context, query string, args ...any) ([]*domain.Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, rule *domain.Rule) (bool, error) {
	condition, actions, err := encodeRule(rule)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE automation_rules
		SET name = $3, description = $4, enabled = $5, condition = $6, actions = $7, cooldown_seconds = $8, updated_at = $9
		WHERE company_id = $1 AND id = $2`,
		rule.CompanyID, rule.ID, rule.Name, db.NullString(rule.Description), rule.Enabled, condition, actions,
		rule.CooldownSeconds, rule.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresRepository) Delete(ctx context.Context, companyID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM automation_rules WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresRepository) ClaimTrigger(ctx context.Context, e *domain.Execution, notBefore time.Time) (bool, error) {
	claimed := false
	err := db.InTx(ctx, r.db, func(q db.Querier) error {
		res, err := q.ExecContext(ctx, `UPDATE automation_rules SET last_triggered_at = $2
			WHERE id = $1 AND (last_triggered_at IS NULL OR last_triggered_at <= $3)`, e.RuleID, e.CreatedAt, notBefore)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil || n == 0 {
			return err
		}
		if err := insertExecution(ctx, q, e); err != nil {
			return fmt.Errorf("insert execution: %w", err)
		}
		claimed = true
		return nil
	})
	return claimed, err
}

func (r *PostgresRepository) CreateExecution(ctx context.Context, e *domain.Execution) error {
	return insertExecution(ctx, r.db, e)
}

func insertExecution(ctx context.Context, q db.Querier, e *domain.Execution) error {
	results, err := json.Marshal(nonNilResults(e.Results))
	if err != nil {
		return err
	}
	var value sql.NullFloat64
	if e.MetricValue != nil {
		value = sql.NullFloat64{Float64: *e.MetricValue, Valid: true}
	}
	_, err = q.ExecContext(ctx, `INSERT INTO automation_executions
		(id, rule_id, company_id, triggered, metric_value, reason, results, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.RuleID, e.CompanyID, e.Triggered, value, db.NullString(e.Reason), results, db.NullString(e.Error), e.CreatedAt)
	return err
}

func (r *PostgresRepository) UpdateExecutionResults(ctx context.Context, id string, results []domain.ActionResult, errText string) error {
	b, err := json.Marshal(nonNilResults(results))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `UPDATE automation_executions SET results = $2, error = $3 WHERE id = $1`,
		id, b, db.NullString(errText))
	return err
}

func (r *PostgresRepository) ListExecutions(ctx context.Context, companyID, ruleID string, limit, offset int32) ([]*domain.Execution, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, rule_id, company_id, triggered, metric_value, reason, results, error, created_at
		FROM automation_executions WHERE company_id = $1 AND rule_id = $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`, companyID, ruleID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Execution
	for rows.Next() {
		var (
			e               domain.Execution
			value           sql.NullFloat64
			reason, errText sql.NullString
			results         []byte
		)
		if err := rows.Scan(&e.ID, &e.RuleID, &e.CompanyID, &e.Triggered, &value, &reason, &results, &errText, &e.CreatedAt); err != nil {
			return nil, err
		}
		if value.Valid {
			v := value.Float64
			e.MetricValue = &v
		}
		e.Reason = reason.String
		e.Error = errText.String
		if err := json.Unmarshal(results, &e.Results); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nonNilResults(r []domain.ActionResult) []domain.ActionResult {
	if r == nil {
		return []domain.ActionResult{}
	}
	return r
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (*domain.Rule, error) {
	var (
		rule                   domain.Rule
		description, createdBy sql.NullString
		condition, actions     []byte
		lastTriggered          sql.NullTime
	)
	if err := s.Scan(&rule.ID, &rule.CompanyID, &rule.Name, &description, &rule.Enabled, &condition, &actions,
		&rule.CooldownSeconds, &lastTriggered, &createdBy, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, err
	}
	rule.Description = description.String
	rule.CreatedBy = createdBy.String
	rule.LastTriggeredAt = db.TimePtr(lastTriggered)
	if err := json.Unmarshal(condition, &rule.Condition); err != nil {
		return nil, fmt.Errorf("decode condition: %w", err)
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	return &rule, nil
}
