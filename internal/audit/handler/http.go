package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/audit/domain"
	auditrepo "bizlens/backend/internal/audit/repository"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/platform/paging"
)

// Handler serves audit log listings.
type Handler struct {
	repo auditrepo.Repository
}

// NewHandler returns an audit handler. repo may be nil; then List returns 501.
func NewHandler(repo auditrepo.Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /companies/:id/audit-logs?limit&offset&user_id&action&resource.
func (h *Handler) List(c *gin.Context) {
	if h.repo == nil {
		apierror.Abort(c, apierror.NotImplemented("audit log is not configured"))
		return
	}
	limit, offset, err := paging.Parse(c)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	logs, err := h.repo.ListByCompany(c.Request.Context(), c.Param("id"), domain.Filter{
		UserID:   c.Query("user_id"),
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	if logs == nil {
		logs = []*domain.AuditLog{}
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": logs, "count": len(logs)})
}
