package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/automation/domain"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/platform/paging"
	"bizlens/backend/internal/server/middleware"
)

var errInvalidBody = apierror.Invalid("invalid request body")

// Rules is the automation service as used by the HTTP layer.
type Rules interface {
	Create(ctx context.Context, companyID, userID string, r *domain.Rule) (*domain.Rule, error)
	Get(ctx context.Context, companyID, id string) (*domain.Rule, error)
	List(ctx context.Context, companyID string, limit, offset int32) ([]*domain.Rule, error)
	Update(ctx context.Context, companyID, id string, r *domain.Rule) (*domain.Rule, error)
	Delete(ctx context.Context, companyID, id string) error
	Run(ctx context.Context, companyID, userID, ruleID string) (*domain.Execution, error)
	EvaluateCompany(ctx context.Context, companyID, userID string) ([]*domain.Execution, error)
	Executions(ctx context.Context, companyID, ruleID string, limit, offset int32) ([]*domain.Execution, error)
}

// Handler serves /companies/:id/automation-rules.
type Handler struct {
	rules Rules
}

func NewHandler(rules Rules) *Handler {
	return &Handler{rules: rules}
}

type ruleRequest struct {
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Enabled         *bool            `json:"enabled"`
	Condition       domain.Condition `json:"condition"`
	Actions         []domain.Action  `json:"actions"`
	CooldownSeconds int              `json:"cooldown_seconds"`
}

// rule converts the request; rules are enabled unless the body says otherwise.
func (r *ruleRequest) rule() *domain.Rule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &domain.Rule{
		Name:            r.Name,
		Description:     r.Description,
		Enabled:         enabled,
		Condition:       r.Condition,
		Actions:         r.Actions,
		CooldownSeconds: r.CooldownSeconds,
	}
}

func bindRule(c *gin.Context) (*domain.Rule, bool) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, errInvalidBody)
		return nil, false
	}
	return req.rule(), true
}

func userID(c *gin.Context) string {
	id, _ := middleware.GetUserID(c.Request.Context())
	return id
}

// Create handles POST /companies/:id/automation-rules.
func (h *Handler) Create(c *gin.Context) {
	r, ok := bindRule(c)
	if !ok {
		return
	}
	created, err := h.rules.Create(c.Request.Context(), c.Param("id"), userID(c), r)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// List handles GET /companies/:id/automation-rules?limit&offset.
func (h *Handler) List(c *gin.Context) {
	limit, offset, err := paging.Parse(c)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	rules, err := h.rules.List(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	if rules == nil {
		rules = []*domain.Rule{}
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "count": len(rules)})
}

func (h *Handler) Get(c *gin.Context) {
	r, err := h.rules.Get(c.Request.Context(), c.Param("id"), c.Param("ruleId"))
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Update handles PUT /companies/:id/automation-rules/:ruleId. The body replaces the rule.
func (h *Handler) Update(c *gin.Context) {
	r, ok := bindRule(c)
	if !ok {
		return
	}
	updated, err := h.rules.Update(c.Request.Context(), c.Param("id"), c.Param("ruleId"), r)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.rules.Delete(c.Request.Context(), c.Param("id"), c.Param("ruleId")); err != nil {
		apierror.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Run handles POST /companies/:id/automation-rules/:ruleId/run.
func (h *Handler) Run(c *gin.Context) {
	exec, err := h.rules.Run(c.Request.Context(), c.Param("id"), userID(c), c.Param("ruleId"))
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

// Evaluate handles POST /companies/:id/automation-rules/evaluate.
func (h *Handler) Evaluate(c *gin.Context) {
	execs, err := h.rules.EvaluateCompany(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	triggered := 0
	for _, e := range execs {
		if e.Triggered {
			triggered++
		}
	}
	c.JSON(http.StatusOK, gin.H{"executions": execs, "evaluated": len(execs), "triggered": triggered})
}

// Executions handles GET /companies/:id/automation-rules/:ruleId/executions?limit&offset.
func (h *Handler) Executions(c *gin.Context) {
	limit, offset, err := paging.Parse(c)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	execs, err := h.rules.Executions(c.Request.Context(), c.Param("id"), c.Param("ruleId"), limit, offset)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	if execs == nil {
		execs = []*domain.Execution{}
	}
	c.JSON(http.StatusOK, gin.H{"executions": execs, "count": len(execs)})
}
