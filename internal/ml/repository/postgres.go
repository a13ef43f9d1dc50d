package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"bizlens/backend/internal/db"
	"bizlens/backend/internal/ml/domain"
)

type PostgresRepository struct {
	db db.Querier
}

// NewPostgresRepository returns a prediction repository that uses the given db for persistence.
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

func (r *PostgresRepository) Create(ctx context.Context, p *domain.Prediction) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO predictions
		(id, company_id, model_name, model_version, features, prediction, probability, confidence, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.CompanyID, p.ModelName, p.ModelVersion, features, p.Prediction, p.Probability, p.Confidence,
		db.NullString(p.CreatedBy), p.CreatedAt)
	return err
}

func (r *PostgresRepository) List(ctx context.Context, companyID, modelName string, limit, offset int32) ([]*domain.Prediction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, company_id, model_name, model_version, features, prediction,
		probability, confidence, created_by, created_at
		FROM predictions WHERE company_id = $1 AND ($2 = '' OR model_name = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`, companyID, modelName, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Prediction
	for rows.Next() {
		var (
			p         domain.Prediction
			features  []byte
			createdBy sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.ModelName, &p.ModelVersion, &features, &p.Prediction,
			&p.Probability, &p.Confidence, &createdBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedBy = createdBy.String
		if err := json.Unmarshal(features, &p.Features); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
