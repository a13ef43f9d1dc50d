package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/audit"
)

// Audit returns middleware that records an audit entry after each authenticated mutating
// request. Action and resource come from the route template; the company is the :id route
// parameter when present. Route templates in skipRoutes are never audited. Writes are
// best-effort through the audit logger.
func Audit(l audit.AuditLogger, skipRoutes map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if l == nil || !isMutating(c.Request.Method) {
			return
		}
		route := c.FullPath()
		if route == "" || skipRoutes[route] {
			return
		}
		ctx := c.Request.Context()
		userID, ok := GetUserID(ctx)
		if !ok {
			return
		}
		companyID, _ := GetCompanyID(ctx)
		if companyID == "" {
			companyID = c.Param("id")
		}
		ar := audit.ParseRoute(c.Request.Method, route)
		meta := fmt.Sprintf(`{"status":%d}`, c.Writer.Status())
		l.LogEvent(ctx, companyID, userID, ar.Action, ar.Resource, meta)
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
