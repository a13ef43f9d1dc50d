package repository

import (
	"context"

	"bizlens/backend/internal/ml/domain"
)

// Repository defines persistence for company predictions.
type Repository interface {
	Create(ctx context.Context, p *domain.Prediction) error
	// List returns the company's predictions, newest first, optionally for one model.
	List(ctx context.Context, companyID, modelName string, limit, offset int32) ([]*domain.Prediction, error)
}
