package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/ml/domain"
	"bizlens/backend/internal/ml/registry"
	"bizlens/backend/internal/ml/service"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/platform/paging"
	"bizlens/backend/internal/server/middleware"
)

var errInvalidBody = apierror.Invalid("invalid request body")

// Handler serves /ml routes and company prediction history.
type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

type predictRequest struct {
	ModelName string         `json:"model_name"`
	Features  map[string]any `json:"features"`
}

type batchRequest struct {
	ModelName    string           `json:"model_name"`
	FeaturesList []map[string]any `json:"features_list"`
}

type explainRequest struct {
	ModelName    string         `json:"model_name"`
	Features     map[string]any `json:"features"`
	FeatureNames []string       `json:"feature_names"`
	// IncludePlots is accepted for compatibility; no plots are rendered.
	IncludePlots bool `json:"include_plots"`
}

// Predict handles POST /ml/predict.
func (h *Handler) Predict(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, errInvalidBody)
		return
	}
	res, err := h.svc.Predict(c.Request.Context(), req.ModelName, req.Features)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// BatchPredict handles POST /ml/batch-predict.
func (h *Handler) BatchPredict(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, errInvalidBody)
		return
	}
	res, err := h.svc.BatchPredict(c.Request.Context(), req.ModelName, req.FeaturesList)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": res, "count": len(res), "model": req.ModelName})
}

// Models handles GET /ml/models.
func (h *Handler) Models(c *gin.Context) {
	models, err := h.svc.Models()
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	if models == nil {
		models = []registry.Info{}
	}
	c.JSON(http.StatusOK, gin.H{"models": models, "count": len(models)})
}

// Info handles GET /ml/models/:name/info.
func (h *Handler) Info(c *gin.Context) {
	info, err := h.svc.Info(c.Param("name"))
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Explain handles POST /ml/explain.
func (h *Handler) Explain(c *gin.Context) {
	var req explainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, errInvalidBody)
		return
	}
	res, err := h.svc.Explain(c.Request.Context(), req.ModelName, req.Features, req.FeatureNames)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CreatePrediction handles POST /companies/:id/predictions.
func (h *Handler) CreatePrediction(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, errInvalidBody)
		return
	}
	userID, _ := middleware.GetUserID(c.Request.Context())
	p, err := h.svc.PredictForCompany(c.Request.Context(), c.Param("id"), userID, req.ModelName, req.Features)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// ListPredictions handles GET /companies/:id/predictions?model&limit&offset.
func (h *Handler) ListPredictions(c *gin.Context) {
	limit, offset, err := paging.Parse(c)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	list, err := h.svc.ListPredictions(c.Request.Context(), c.Param("id"), c.Query("model"), limit, offset)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	if list == nil {
		list = []*domain.Prediction{}
	}
	c.JSON(http.StatusOK, gin.H{"predictions": list, "count": len(list)})
}
