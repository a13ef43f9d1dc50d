package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/company/service"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/server/middleware"
)

// Handler serves company and membership routes.
type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

type createCompanyRequest struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

// Create handles POST /companies. The caller becomes the company's admin.
func (h *Handler) Create(c *gin.Context) {
	id, ok := middleware.GetIdentity(c.Request.Context())
	if !ok {
		apierror.Abort(c, apierror.ErrUnauthenticated)
		return
	}
	var req createCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, apierror.Invalid("invalid JSON body"))
		return
	}
	company, err := h.svc.Create(c.Request.Context(), id, req.Name, req.Industry)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, company)
}

// Get handles GET /companies/:id.
func (h *Handler) Get(c *gin.Context) {
	company, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

// ListMembers handles GET /companies/:id/members.
func (h *Handler) ListMembers(c *gin.Context) {
	members, err := h.svc.ListMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": nonNil(members), "count": len(members)})
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// AddMember handles POST /companies/:id/members.
func (h *Handler) AddMember(c *gin.Context) {
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, apierror.Invalid("invalid JSON body"))
		return
	}
	m, err := h.svc.AddMember(c.Request.Context(), c.Param("id"), req.UserID, req.Email, req.Role)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateRole handles PATCH /companies/:id/members/:userId.
func (h *Handler) UpdateRole(c *gin.Context) {
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, apierror.Invalid("invalid JSON body"))
		return
	}
	m, err := h.svc.UpdateRole(c.Request.Context(), c.Param("id"), c.Param("userId"), req.Role)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// RemoveMember handles DELETE /companies/:id/members/:userId.
func (h *Handler) RemoveMember(c *gin.Context) {
	if err := h.svc.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("userId")); err != nil {
		apierror.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
