package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizlens/backend/internal/dataset/domain"
	"bizlens/backend/internal/dataset/service"
	"bizlens/backend/internal/platform/logger"
)

// fakeRepo keeps one company's datasets in memory.
type fakeRepo struct {
	datasets map[string]*domain.Dataset
	rows     map[string][]domain.Row
	points   []*domain.DataPoint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{datasets: map[string]*domain.Dataset{}, rows: map[string][]domain.Row{}}
}

func (f *fakeRepo) Create(_ context.Context, ds *domain.Dataset, rows []domain.Row, pts []*domain.DataPoint) error {
	f.datasets[ds.ID] = ds
	f.rows[ds.ID] = rows
	f.points = append(f.points, pts...)
	return nil
}
func (f *fakeRepo) GetByID(_ context.Context, _, id string) (*domain.Dataset, error) {
	return f.datasets[id], nil
}
func (f *fakeRepo) List(context.Context, string, int32, int32) ([]*domain.Dataset, error) {
	return nil, nil
}
func (f *fakeRepo) Delete(_ context.Context, _, id string) (bool, error) {
	_, ok := f.datasets[id]
	delete(f.datasets, id)
	return ok, nil
}
func (f *fakeRepo) Rows(_ context.Context, id string) ([]domain.Row, error) { return f.rows[id], nil }
func (f *fakeRepo) MetricSummaries(context.Context, string) ([]*domain.MetricSummary, error) {
	return []*domain.MetricSummary{{MetricName: "revenue", Latest: 5, Count: 2}}, nil
}
func (f *fakeRepo) LatestMetric(context.Context, string, string) (*domain.DataPoint, error) {
	return nil, nil
}

func newRouter(t *testing.T, repo *fakeRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(service.NewService(repo, nil, nil, nil, logger.Test(t)))
	r := gin.New()
	g := r.Group("/companies/:id")
	g.POST("/datasets", h.Upload)
	g.GET("/datasets", h.List)
	g.GET("/datasets/:datasetId", h.Get)
	g.DELETE("/datasets/:datasetId", h.Delete)
	g.GET("/datasets/:datasetId/quality", h.Quality)
	g.GET("/datasets/:datasetId/export", h.Export)
	g.POST("/datasets/:datasetId/powerbi", h.PushPowerBI)
	g.GET("/metrics", h.Metrics)
	g.GET("/metrics/:name/latest", h.LatestMetric)
	return r
}

func multipartUpload(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("name", "Q1 sales"))
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, _ = part.Write([]byte(content))
	}
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func TestUploadThenExport(t *testing.T) {
	repo := newFakeRepo()
	r := newRouter(t, repo)

	body, ct := multipartUpload(t, "file", "q1.csv", "Date,Revenue\n2024-01-01,5\n2024-01-02,\n")
	req := httptest.NewRequest(http.MethodPost, "/companies/c1/datasets", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var ds domain.Dataset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ds))
	assert.Equal(t, "Q1 sales", ds.Name)
	assert.Equal(t, 2, ds.RowCount)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/c1/datasets/"+ds.ID+"/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="Q1 sales_cleaned.csv"`)
	assert.Equal(t, "date,revenue\n2024-01-01T00:00:00Z,5\n2024-01-02T00:00:00Z,0\n", rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/c1/datasets/"+ds.ID+"/quality", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"missing_values":1`)
}

func TestUpload_MissingFile(t *testing.T) {
	body, ct := multipartUpload(t, "", "", "")
	req := httptest.NewRequest(http.MethodPost, "/companies/c1/datasets", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newRouter(t, newFakeRepo()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusMapping(t *testing.T) {
	testCases := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"missing dataset", http.MethodGet, "/companies/c1/datasets/nope", "", http.StatusNotFound},
		{"delete missing", http.MethodDelete, "/companies/c1/datasets/nope", "", http.StatusNotFound},
		{"powerbi not configured", http.MethodPost, "/companies/c1/datasets/d1/powerbi", `{"group_id":"g","powerbi_dataset_id":"p"}`, http.StatusNotImplemented},
		{"latest missing", http.MethodGet, "/companies/c1/metrics/revenue/latest", "", http.StatusNotFound},
		{"bad paging", http.MethodGet, "/companies/c1/datasets?limit=-1", "", http.StatusBadRequest},
		{"empty list", http.MethodGet, "/companies/c1/datasets", "", http.StatusOK},
	}
	r := newRouter(t, newFakeRepo())
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body)))
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t, newFakeRepo()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/c1/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Metrics []domain.MetricSummary `json:"metrics"`
		Count   int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "revenue", body.Metrics[0].MetricName)
}
