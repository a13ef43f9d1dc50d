package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"bizlens/backend/internal/dataset/domain"
	"bizlens/backend/internal/db"
)

const datasetColumns = `id, company_id, name, file_name, row_count, column_count, columns, status, quality, error, created_by, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a dataset repository backed by Postgres.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func (r *PostgresRepository) Create(ctx context.Context, ds *domain.Dataset, rows []domain.Row, points []*domain.DataPoint) error {
	columns, err := json.Marshal(ds.Columns)
	if err != nil {
		return err
	}
	var quality []byte
	if ds.Quality != nil {
		if quality, err = json.Marshal(ds.Quality); err != nil {
			return err
		}
	}
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO datasets (`+datasetColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			ds.ID, ds.CompanyID, ds.Name, ds.FileName, ds.RowCount, ds.ColumnCount, columns,
			string(ds.Status), quality, db.NullString(ds.Error), db.NullString(ds.CreatedBy), ds.CreatedAt); err != nil {
			return fmt.Errorf("insert dataset: %w", err)
		}
		if err := insertRows(ctx, tx, ds.ID, rows); err != nil {
			return fmt.Errorf("insert rows: %w", err)
		}
		if err := insertPoints(ctx, tx, points); err != nil {
			return fmt.Errorf("insert data points: %w", err)
		}
		return nil
	})
}

func insertRows(ctx context.Context, tx *sql.Tx, datasetID string, rows []domain.Row) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO dataset_rows (dataset_id, ordinal, data) VALUES ($1, $2, $3)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, row := range rows {
		b, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, datasetID, i, b); err != nil {
			return err
		}
	}
	return nil
}

func insertPoints(ctx context.Context, tx *sql.Tx, points []*domain.DataPoint) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO data_points (dataset_id, company_id, metric_name, metric_value, recorded_at, dimensions)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range points {
		var dims []byte
		if len(p.Dimensions) > 0 {
			if dims, err = json.Marshal(p.Dimensions); err != nil {
				return err
			}
		}
		if _, err := stmt.ExecContext(ctx, p.DatasetID, p.CompanyID, p.MetricName, p.MetricValue, p.RecordedAt, dims); err != nil {
			return err
		}
	}
	return nil
}

// GetByID returns the company's dataset, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, companyID, id string) (*domain.Dataset, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE company_id = $1 AND id = $2`, companyID, id)
	ds, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ds, err
}

// List returns the company's datasets, newest first.
func (r *PostgresRepository) List(ctx context.Context, companyID string, limit, offset int32) ([]*domain.Dataset, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+datasetColumns+` FROM datasets
		WHERE company_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, companyID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Delete(ctx context.Context, companyID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM datasets WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresRepository) Rows(ctx context.Context, datasetID string) ([]domain.Row, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT data FROM dataset_rows WHERE dataset_id = $1 ORDER BY ordinal`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Row
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		var row domain.Row
		if err := json.Unmarshal(b, &row); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) MetricSummaries(ctx context.Context, companyID string) ([]*domain.MetricSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT s.metric_name, l.metric_value, l.recorded_at, s.min_v, s.max_v, s.avg_v, s.cnt
		FROM (SELECT metric_name, MIN(metric_value) AS min_v, MAX(metric_value) AS max_v,
		             AVG(metric_value) AS avg_v, COUNT(*) AS cnt
		      FROM data_points WHERE company_id = $1 GROUP BY metric_name) s
		JOIN LATERAL (SELECT d.metric_value, d.recorded_at FROM data_points d
		      WHERE d.company_id = $1 AND d.metric_name = s.metric_name
		      ORDER BY d.recorded_at DESC, d.id DESC LIMIT 1) l ON true
		ORDER BY s.metric_name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.MetricSummary
	for rows.Next() {
		var m domain.MetricSummary
		if err := rows.Scan(&m.MetricName, &m.Latest, &m.LatestAt, &m.Min, &m.Max, &m.Avg, &m.Count); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) LatestMetric(ctx context.Context, companyID, metric string) (*domain.DataPoint, error) {
	var (
		p    domain.DataPoint
		dims []byte
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, dataset_id, company_id, metric_name, metric_value, recorded_at, dimensions
		FROM data_points WHERE company_id = $1 AND metric_name = $2
		ORDER BY recorded_at DESC, id DESC LIMIT 1`, companyID, metric).
		Scan(&p.ID, &p.DatasetID, &p.CompanyID, &p.MetricName, &p.MetricValue, &p.RecordedAt, &dims)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(dims) > 0 {
		if err := json.Unmarshal(dims, &p.Dimensions); err != nil {
			return nil, fmt.Errorf("decode dimensions: %w", err)
		}
	}
	return &p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(s scanner) (*domain.Dataset, error) {
	var (
		ds                 domain.Dataset
		columns, quality   []byte
		status             string
		errText, createdBy sql.NullString
	)
	if err := s.Scan(&ds.ID, &ds.CompanyID, &ds.Name, &ds.FileName, &ds.RowCount, &ds.ColumnCount,
		&columns, &status, &quality, &errText, &createdBy, &ds.CreatedAt); err != nil {
		return nil, err
	}
	ds.Status = domain.Status(status)
	ds.Error = errText.String
	ds.CreatedBy = createdBy.String
	if err := json.Unmarshal(columns, &ds.Columns); err != nil {
		return nil, fmt.Errorf("decode columns: %w", err)
	}
	if len(quality) > 0 {
		ds.Quality = &domain.QualityReport{}
		if err := json.Unmarshal(quality, ds.Quality); err != nil {
			return nil, fmt.Errorf("decode quality: %w", err)
		}
	}
	return &ds, nil
}
