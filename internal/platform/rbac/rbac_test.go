package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/company/domain"
	"bizlens/backend/internal/security"
	"bizlens/backend/internal/server/middleware"
)

type mockMembershipGetter struct {
	memberships map[string]*domain.Membership
	err         error
}

func (m *mockMembershipGetter) GetMembership(_ context.Context, userID, companyID string) (*domain.Membership, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.memberships[userID+":"+companyID], nil
}

func asUser(userID, tokenRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			id := &security.Identity{UserID: userID, Role: tokenRole}
			c.Request = c.Request.WithContext(middleware.WithIdentity(c.Request.Context(), id))
		}
		c.Next()
	}
}

func newRouter(getter MembershipGetter, userID string, min domain.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/companies/:id", asUser(userID, "admin"), RequireCompanyMember(getter), RequireRole(min), func(c *gin.Context) {
		companyID, _ := middleware.GetCompanyID(c.Request.Context())
		c.String(http.StatusOK, companyID+":"+middleware.GetRole(c.Request.Context()))
	})
	return r
}

func TestRequireCompanyMember(t *testing.T) {
	getter := &mockMembershipGetter{memberships: map[string]*domain.Membership{
		"u1:c1": {UserID: "u1", CompanyID: "c1", Role: domain.RoleViewer},
		"u2:c1": {UserID: "u2", CompanyID: "c1", Role: domain.RoleAdmin},
	}}
	testCases := []struct {
		name     string
		getter   MembershipGetter
		userID   string
		min      domain.Role
		wantCode int
		wantBody string
	}{
		{"viewer reads", getter, "u1", domain.RoleViewer, http.StatusOK, "c1:viewer"},
		{"membership role wins over token role", getter, "u1", domain.RoleAnalyst, http.StatusForbidden, ""},
		{"admin passes admin gate", getter, "u2", domain.RoleAdmin, http.StatusOK, "c1:admin"},
		{"non-member", getter, "u3", domain.RoleViewer, http.StatusForbidden, ""},
		{"unauthenticated", getter, "", domain.RoleViewer, http.StatusUnauthorized, ""},
		{"lookup failure", &mockMembershipGetter{err: errors.New("db down")}, "u1", domain.RoleViewer, http.StatusInternalServerError, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newRouter(tc.getter, tc.userID, tc.min).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/c1", nil))
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.wantCode, rec.Body)
			}
			if tc.wantBody != "" && rec.Body.String() != tc.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestRequireRole_FallsBackToTokenRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", asUser("u1", "analyst"), RequireRole(domain.RoleAnalyst), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestAllows(t *testing.T) {
	testCases := []struct {
		role, min domain.Role
		want      bool
	}{
		{domain.RoleAdmin, domain.RoleViewer, true},
		{domain.RoleAnalyst, domain.RoleAnalyst, true},
		{domain.RoleViewer, domain.RoleAnalyst, false},
		{domain.RoleAnalyst, domain.RoleAdmin, false},
		{"authenticated", domain.RoleViewer, false},
		{"", domain.RoleViewer, false},
	}
	for _, tc := range testCases {
		if got := Allows(tc.role, tc.min); got != tc.want {
			t.Errorf("Allows(%q, %q) = %v, want %v", tc.role, tc.min, got, tc.want)
		}
	}
}
