package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/notification"
	"bizlens/backend/internal/notification/domain"
	notifrepo "bizlens/backend/internal/notification/repository"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/platform/paging"
	"bizlens/backend/internal/server/middleware"
)

// Handler serves in-app notifications.
type Handler struct {
	svc *notification.Service
}

func NewHandler(svc *notification.Service) *Handler {
	return &Handler{svc: svc}
}

// List handles GET /companies/:id/notifications?unread=true&limit&offset.
func (h *Handler) List(c *gin.Context) {
	limit, offset, err := paging.Parse(c)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	userID, _ := middleware.GetUserID(c.Request.Context())
	list, err := h.svc.List(c.Request.Context(), c.Param("id"), notifrepo.Filter{
		UserID:     userID,
		UnreadOnly: c.Query("unread") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	if list == nil {
		list = []*domain.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "count": len(list)})
}

// MarkRead handles POST /companies/:id/notifications/:nid/read.
func (h *Handler) MarkRead(c *gin.Context) {
	userID, _ := middleware.GetUserID(c.Request.Context())
	if err := h.svc.MarkRead(c.Request.Context(), c.Param("id"), c.Param("nid"), userID); err != nil {
		apierror.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
