// Package rbac resolves the caller's company role from membership and guards routes by role.
package rbac

import (
	"context"

	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/company/domain"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/server/middleware"
)

// MembershipGetter returns the membership for a user in a company, or nil if none.
type MembershipGetter interface {
	GetMembership(ctx context.Context, userID, companyID string) (*domain.Membership, error)
}

var errNotMember = apierror.Forbidden("not a member of this company")

// RequireCompanyMember resolves the caller's membership in the company named by the :id
// route param and stores it on the request context. Non-members get 403.
func RequireCompanyMember(getter MembershipGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userID, ok := middleware.GetUserID(ctx)
		if !ok {
			apierror.Abort(c, apierror.ErrUnauthenticated)
			return
		}
		companyID := c.Param("id")
		if companyID == "" {
			apierror.Abort(c, apierror.Invalid("company id is required"))
			return
		}
		m, err := getter.GetMembership(ctx, userID, companyID)
		if err != nil {
			apierror.Abort(c, err)
			return
		}
		if m == nil {
			apierror.Abort(c, errNotMember)
			return
		}
		c.Request = c.Request.WithContext(middleware.WithCompany(ctx, companyID, string(m.Role)))
		c.Next()
	}
}
