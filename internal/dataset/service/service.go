// Package service implements dataset upload, export and KPI queries.
package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"bizlens/backend/internal/audit"
	"bizlens/backend/internal/dataset/domain"
	"bizlens/backend/internal/dataset/ingest"
	"bizlens/backend/internal/dataset/quality"
	datasetrepo "bizlens/backend/internal/dataset/repository"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/platform/logger"
	"bizlens/backend/internal/telemetry"
)

// RowPusher exports rows to an external BI tool.
type RowPusher interface {
	PushRows(ctx context.Context, groupID, datasetID, table string, rows []map[string]any) error
}

var errPowerBIDisabled = apierror.NotImplemented("Power BI export is not configured")

// Service implements dataset operations for one deployment.
type Service struct {
	repo    datasetrepo.Repository
	pusher  RowPusher
	audit   audit.AuditLogger
	emitter telemetry.EventEmitter
	lggr    logger.Logger
	maxRows int
	now     func() time.Time
}

// NewService returns a dataset service. pusher and auditLogger may be nil.
func NewService(repo datasetrepo.Repository, pusher RowPusher, auditLogger audit.AuditLogger, emitter telemetry.EventEmitter, lggr logger.Logger) *Service {
	if emitter == nil {
		emitter = telemetry.Noop{}
	}
	return &Service{
		repo:    repo,
		pusher:  pusher,
		audit:   auditLogger,
		emitter: emitter,
		lggr:    lggr.Named("dataset"),
		maxRows: ingest.MaxRows,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Upload parses, analyzes, cleans and stores a CSV file. A file that cannot be parsed is
// recorded as a failed dataset and the parse error is returned.
func (s *Service) Upload(ctx context.Context, companyID, userID, name, fileName string, r io.Reader) (*domain.Dataset, error) {
	ds := &domain.Dataset{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Name:      name,
		FileName:  fileName,
		Status:    domain.StatusProcessing,
		CreatedBy: userID,
		CreatedAt: s.now(),
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	tbl, err := ingest.Parse(r, s.maxRows)
	if err != nil {
		s.recordFailure(ctx, ds, err)
		return nil, err
	}
	// quality is measured on the data as uploaded, before missing cells are filled
	ds.Quality = quality.Analyze(tbl.Headers, tbl.Rows)
	ingest.Clean(tbl)
	points := ingest.DataPoints(tbl, ds.ID, companyID, ds.CreatedAt)

	ds.Columns = tbl.Headers
	ds.RowCount = len(tbl.Rows)
	ds.ColumnCount = len(tbl.Headers)
	ds.Status = domain.StatusReady
	if err := s.repo.Create(ctx, ds, tbl.Records(), points); err != nil {
		return nil, fmt.Errorf("store dataset: %w", err)
	}
	s.lggr.Infow("dataset uploaded", "company_id", companyID, "dataset_id", ds.ID,
		"rows", ds.RowCount, "data_points", len(points), "quality_score", ds.Quality.Score)
	telemetry.EmitAsync(s.lggr, s.emitter, telemetry.NewEvent("dataset_uploaded", "dataset", companyID, userID, map[string]any{
		"dataset_id":    ds.ID,
		"rows":          ds.RowCount,
		"columns":       ds.ColumnCount,
		"data_points":   len(points),
		"quality_score": ds.Quality.Score,
	}))
	return ds, nil
}

func (s *Service) recordFailure(ctx context.Context, ds *domain.Dataset, cause error) {
	var apiErr *apierror.Error
	if !errors.As(cause, &apiErr) {
		return
	}
	ds.Status = domain.StatusFailed
	ds.Error = cause.Error()
	ds.Columns = []string{}
	if err := s.repo.Create(ctx, ds, nil, nil); err != nil {
		s.lggr.Warnw("record failed upload", "dataset_id", ds.ID, "err", err)
	}
}

func (s *Service) List(ctx context.Context, companyID string, limit, offset int32) ([]*domain.Dataset, error) {
	return s.repo.List(ctx, companyID, limit, offset)
}

// Get returns the dataset or domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, companyID, id string) (*domain.Dataset, error) {
	ds, err := s.repo.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, domain.ErrNotFound
	}
	return ds, nil
}

// Delete removes a dataset with its rows and data points.
func (s *Service) Delete(ctx context.Context, companyID, userID, id string) error {
	ok, err := s.repo.Delete(ctx, companyID, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	if s.audit != nil {
		meta, _ := json.Marshal(map[string]string{"dataset_id": id})
		s.audit.LogEvent(ctx, companyID, userID, "dataset_deleted", "dataset", string(meta))
	}
	return nil
}

// Quality returns the stored quality report.
func (s *Service) Quality(ctx context.Context, companyID, id string) (*domain.QualityReport, error) {
	ds, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if ds.Quality == nil {
		return nil, domain.ErrNotReady
	}
	return ds.Quality, nil
}

// Export writes the cleaned rows as CSV in the original column order.
func (s *Service) Export(ctx context.Context, companyID, id string, w io.Writer) (*domain.Dataset, error) {
	ds, rows, err := s.readyRows(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Columns); err != nil {
		return nil, err
	}
	rec := make([]string, len(ds.Columns))
	for _, row := range rows {
		for i, col := range ds.Columns {
			rec[i] = row[col]
		}
		if err := cw.Write(rec); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return ds, cw.Error()
}

// PushToPowerBI sends the cleaned rows to a Power BI push dataset table. Numeric cells are sent as numbers.
func (s *Service) PushToPowerBI(ctx context.Context, companyID, id, groupID, pbiDatasetID, table string) (int, error) {
	if s.pusher == nil {
		return 0, errPowerBIDisabled
	}
	if groupID == "" || pbiDatasetID == "" {
		return 0, apierror.Invalid("group_id and powerbi_dataset_id are required")
	}
	ds, rows, err := s.readyRows(ctx, companyID, id)
	if err != nil {
		return 0, err
	}
	if table == "" {
		table = ds.Name
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(row))
		for k, v := range row {
			if f, ok := quality.ParseNumber(v); ok {
				m[k] = f
			} else {
				m[k] = v
			}
		}
		out[i] = m
	}
	if err := s.pusher.PushRows(ctx, groupID, pbiDatasetID, table, out); err != nil {
		return 0, fmt.Errorf("%w: %v", apierror.Upstream("Power BI push failed"), err)
	}
	return len(out), nil
}

func (s *Service) readyRows(ctx context.Context, companyID, id string) (*domain.Dataset, []domain.Row, error) {
	ds, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, nil, err
	}
	if ds.Status != domain.StatusReady {
		return nil, nil, domain.ErrNotReady
	}
	rows, err := s.repo.Rows(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return ds, rows, nil
}

// Metrics returns the KPI summary of every metric of the company.
func (s *Service) Metrics(ctx context.Context, companyID string) ([]*domain.MetricSummary, error) {
	return s.repo.MetricSummaries(ctx, companyID)
}

// LatestMetric returns the newest data point of a metric or domain.ErrMetricNotFound.
func (s *Service) LatestMetric(ctx context.Context, companyID, name string) (*domain.DataPoint, error) {
	p, err := s.repo.LatestMetric(ctx, companyID, name)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrMetricNotFound
	}
	return p, nil
}

// PointSource serves rule evaluation, where a metric with no data is not an error.
type PointSource struct{ *Service }

// LatestMetric returns nil, nil when the metric has no data points.
func (p PointSource) LatestMetric(ctx context.Context, companyID, name string) (*domain.DataPoint, error) {
	point, err := p.Service.LatestMetric(ctx, companyID, name)
	if errors.Is(err, domain.ErrMetricNotFound) {
		return nil, nil
	}
	return point, err
}
