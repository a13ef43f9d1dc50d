package handler

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/dataset/domain"
	"bizlens/backend/internal/dataset/service"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/platform/paging"
	"bizlens/backend/internal/server/middleware"
)

// MaxUploadBytes caps the multipart body of an upload.
const MaxUploadBytes = 32 << 20

var errFileRequired = apierror.Invalid("multipart field \"file\" is required")

// Handler serves dataset and KPI routes under /companies/:id.
type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Upload handles POST /companies/:id/datasets (multipart: file, name).
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds " + strconv.Itoa(MaxUploadBytes>>20) + " MiB"})
			return
		}
		apierror.Abort(c, errFileRequired)
		return
	}
	f, err := fh.Open()
	if err != nil {
		apierror.Abort(c, errFileRequired)
		return
	}
	defer f.Close()

	userID, _ := middleware.GetUserID(c.Request.Context())
	ds, err := h.svc.Upload(c.Request.Context(), c.Param("id"), userID, c.PostForm("name"), fh.Filename, f)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, ds)
}

// List handles GET /companies/:id/datasets?limit&offset.
func (h *Handler) List(c *gin.Context) {
	limit, offset, err := paging.Parse(c)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	list, err := h.svc.List(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	if list == nil {
		list = []*domain.Dataset{}
	}
	c.JSON(http.StatusOK, gin.H{"datasets": list, "count": len(list)})
}

// Get handles GET /companies/:id/datasets/:datasetId.
func (h *Handler) Get(c *gin.Context) {
	ds, err := h.svc.Get(c.Request.Context(), c.Param("id"), c.Param("datasetId"))
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, ds)
}

// Delete handles DELETE /companies/:id/datasets/:datasetId.
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := middleware.GetUserID(c.Request.Context())
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), userID, c.Param("datasetId")); err != nil {
		apierror.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Quality handles GET /companies/:id/datasets/:datasetId/quality.
func (h *Handler) Quality(c *gin.Context) {
	report, err := h.svc.Quality(c.Request.Context(), c.Param("id"), c.Param("datasetId"))
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Export handles GET /companies/:id/datasets/:datasetId/export as a CSV download.
func (h *Handler) Export(c *gin.Context) {
	var buf bytes.Buffer
	ds, err := h.svc.Export(c.Request.Context(), c.Param("id"), c.Param("datasetId"), &buf)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+exportName(ds)+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func exportName(ds *domain.Dataset) string {
	name := []byte(ds.Name)
	for i, b := range name {
		if b == '"' || b == '\\' || b < 0x20 || b == 0x7f {
			name[i] = '_'
		}
	}
	return string(name) + "_cleaned.csv"
}

type powerBIRequest struct {
	GroupID          string `json:"group_id"`
	PowerBIDatasetID string `json:"powerbi_dataset_id"`
	Table            string `json:"table"`
}

// PushPowerBI handles POST /companies/:id/datasets/:datasetId/powerbi.
func (h *Handler) PushPowerBI(c *gin.Context) {
	var req powerBIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, apierror.Invalid("invalid JSON body"))
		return
	}
	n, err := h.svc.PushToPowerBI(c.Request.Context(), c.Param("id"), c.Param("datasetId"), req.GroupID, req.PowerBIDatasetID, req.Table)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows_pushed": n})
}

// Metrics handles GET /companies/:id/metrics.
func (h *Handler) Metrics(c *gin.Context) {
	list, err := h.svc.Metrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	if list == nil {
		list = []*domain.MetricSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"metrics": list, "count": len(list)})
}

// LatestMetric handles GET /companies/:id/metrics/:name/latest.
func (h *Handler) LatestMetric(c *gin.Context) {
	p, err := h.svc.LatestMetric(c.Request.Context(), c.Param("id"), c.Param("name"))
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
