package repository

import (
	"context"

	"bizlens/backend/internal/dataset/domain"
)

// Repository defines persistence for datasets, their rows and extracted data points.
type Repository interface {
	// Create stores the dataset with its rows and data points in one transaction.
	Create(ctx context.Context, ds *domain.Dataset, rows []domain.Row, points []*domain.DataPoint) error
	GetByID(ctx context.Context, companyID, id string) (*domain.Dataset, error)
	List(ctx context.Context, companyID string, limit, offset int32) ([]*domain.Dataset, error)
	// Delete removes the dataset and cascades to rows and data points. It reports whether a row was deleted.
	Delete(ctx context.Context, companyID, id string) (bool, error)
	// Rows returns the cleaned rows in upload order.
	Rows(ctx context.Context, datasetID string) ([]domain.Row, error)
	MetricSummaries(ctx context.Context, companyID string) ([]*domain.MetricSummary, error)
	// LatestMetric returns the most recent data point for the metric, or nil if there is none.
	LatestMetric(ctx context.Context, companyID, metric string) (*domain.DataPoint, error)
}
