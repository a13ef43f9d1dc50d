package domain

import (
	"strings"
	"time"

	"bizlens/backend/internal/platform/apierror"
)

// Dataset is an uploaded CSV file and its cleaning outcome.
type Dataset struct {
	ID          string         `json:"id"`
	CompanyID   string         `json:"company_id"`
	Name        string         `json:"name"`
	FileName    string         `json:"file_name"`
	RowCount    int            `json:"row_count"`
	ColumnCount int            `json:"column_count"`
	Columns     []string       `json:"columns"`
	Status      Status         `json:"status"`
	Quality     *QualityReport `json:"quality,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// DataPoint is one numeric observation extracted from a dataset row.
type DataPoint struct {
	ID          int64             `json:"id,omitempty"`
	DatasetID   string            `json:"dataset_id"`
	CompanyID   string            `json:"company_id"`
	MetricName  string            `json:"metric_name"`
	MetricValue float64           `json:"metric_value"`
	RecordedAt  time.Time         `json:"recorded_at"`
	Dimensions  map[string]string `json:"dimensions,omitempty"`
}

// MetricSummary is the KPI rollup of one metric across a company's data points.
type MetricSummary struct {
	MetricName string    `json:"metric_name"`
	Latest     float64   `json:"latest"`
	LatestAt   time.Time `json:"latest_at"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Avg        float64   `json:"avg"`
	Count      int64     `json:"count"`
}

// Row is one cleaned dataset row keyed by column name.
type Row map[string]string

var (
	ErrNotFound        = apierror.NotFound("dataset not found")
	ErrMetricNotFound  = apierror.NotFound("no data points for metric")
	ErrNameRequired    = apierror.Invalid("name is required")
	ErrEmptyFile       = apierror.Invalid("CSV file has no data rows")
	ErrNoHeader        = apierror.Invalid("CSV file has no header row")
	ErrTooManyRows     = apierror.Invalid("CSV file exceeds the row limit")
	ErrInvalidCSV      = apierror.Invalid("CSV file could not be parsed")
	ErrDuplicateColumn = apierror.Invalid("CSV header has duplicate column names after normalization")
	ErrNotReady        = apierror.Conflict("dataset is not ready")
)

// Validate validates the dataset for persistence. Returns an error describing the first validation failure.
func (d *Dataset) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		d.Name = strings.TrimSpace(d.FileName)
	}
	if d.Name == "" {
		return ErrNameRequired
	}
	if d.Status == "" {
		d.Status = StatusProcessing
	}
	return nil
}
