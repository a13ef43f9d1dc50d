package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	companydomain "bizlens/backend/internal/company/domain"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/security"
	"bizlens/backend/internal/server/middleware"
	"bizlens/backend/internal/user/domain"
)

// Profiles is the user service surface used by the handler.
type Profiles interface {
	Ensure(ctx context.Context, id *security.Identity) (*domain.User, error)
	UpdateName(ctx context.Context, id *security.Identity, fullName string) (*domain.User, error)
}

// MembershipLister lists the companies a user belongs to.
type MembershipLister interface {
	ListMembershipsByUser(ctx context.Context, userID string) ([]*companydomain.Membership, error)
}

// Handler serves the caller's own profile.
type Handler struct {
	profiles    Profiles
	memberships MembershipLister
}

func NewHandler(profiles Profiles, memberships MembershipLister) *Handler {
	return &Handler{profiles: profiles, memberships: memberships}
}

type meResponse struct {
	User        *domain.User                `json:"user"`
	Role        string                      `json:"role"`
	Memberships []*companydomain.Membership `json:"memberships"`
}

// GetMe handles GET /me.
func (h *Handler) GetMe(c *gin.Context) {
	id, ok := middleware.GetIdentity(c.Request.Context())
	if !ok {
		apierror.Abort(c, apierror.ErrUnauthenticated)
		return
	}
	u, err := h.profiles.Ensure(c.Request.Context(), id)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	h.respond(c, id, u)
}

type updateMeRequest struct {
	FullName string `json:"full_name"`
}

// UpdateMe handles PUT /me.
func (h *Handler) UpdateMe(c *gin.Context) {
	id, ok := middleware.GetIdentity(c.Request.Context())
	if !ok {
		apierror.Abort(c, apierror.ErrUnauthenticated)
		return
	}
	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, apierror.Invalid("invalid JSON body"))
		return
	}
	u, err := h.profiles.UpdateName(c.Request.Context(), id, req.FullName)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	h.respond(c, id, u)
}

func (h *Handler) respond(c *gin.Context, id *security.Identity, u *domain.User) {
	memberships, err := h.memberships.ListMembershipsByUser(c.Request.Context(), u.ID)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	if memberships == nil {
		memberships = []*companydomain.Membership{}
	}
	c.JSON(http.StatusOK, meResponse{User: u, Role: id.Role, Memberships: memberships})
}
