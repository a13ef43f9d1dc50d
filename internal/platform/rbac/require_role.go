package rbac

import (
	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/company/domain"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/server/middleware"
)

var rank = map[domain.Role]int{
	domain.RoleViewer:  1,
	domain.RoleAnalyst: 2,
	domain.RoleAdmin:   3,
}

// Allows reports whether role meets min. Unknown roles never do.
func Allows(role, min domain.Role) bool {
	r, ok := rank[role]
	return ok && r >= rank[min]
}

// RequireRole rejects callers whose effective role ranks below min with 403.
// Run it after RequireCompanyMember so the membership role is used.
func RequireRole(min domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := domain.Role(middleware.GetRole(c.Request.Context()))
		if !Allows(role, min) {
			apierror.Abort(c, apierror.Forbidden(string(min)+" role required"))
			return
		}
		c.Next()
	}
}
