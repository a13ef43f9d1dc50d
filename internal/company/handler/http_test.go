package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizlens/backend/internal/company/domain"
	"bizlens/backend/internal/company/service"
	"bizlens/backend/internal/security"
	"bizlens/backend/internal/server/middleware"
	userdomain "bizlens/backend/internal/user/domain"
)

type stubRepo struct {
	company *domain.Company
	members []*domain.Membership
	err     error
}

func (s *stubRepo) CreateWithAdmin(_ context.Context, c *domain.Company, _ *domain.Membership) error {
	s.company = c
	return s.err
}
func (s *stubRepo) GetByID(context.Context, string) (*domain.Company, error) { return s.company, s.err }
func (s *stubRepo) GetMembership(context.Context, string, string) (*domain.Membership, error) {
	return nil, nil
}
func (s *stubRepo) ListMembers(context.Context, string) ([]*domain.Membership, error) {
	return s.members, s.err
}
func (s *stubRepo) ListMembershipsByUser(context.Context, string) ([]*domain.Membership, error) {
	return nil, nil
}
func (s *stubRepo) AddMember(context.Context, *domain.Membership) error { return s.err }
func (s *stubRepo) UpdateRole(_ context.Context, userID, companyID string, role domain.Role) (*domain.Membership, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Membership{UserID: userID, CompanyID: companyID, Role: role}, nil
}
func (s *stubRepo) RemoveMember(context.Context, string, string) error { return s.err }

type stubUsers struct{}

func (stubUsers) Ensure(_ context.Context, id *security.Identity) (*userdomain.User, error) {
	return &userdomain.User{ID: id.UserID}, nil
}
func (stubUsers) GetByEmail(context.Context, string) (*userdomain.User, error) { return nil, nil }

func newRouter(repo *stubRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(service.NewService(repo, stubUsers{}))
	r := gin.New()
	r.Use(func(c *gin.Context) {
		id := &security.Identity{UserID: "u1", Role: "viewer"}
		c.Request = c.Request.WithContext(middleware.WithIdentity(c.Request.Context(), id))
	})
	r.POST("/companies", h.Create)
	r.GET("/companies/:id", h.Get)
	r.GET("/companies/:id/members", h.ListMembers)
	r.POST("/companies/:id/members", h.AddMember)
	r.PATCH("/companies/:id/members/:userId", h.UpdateRole)
	r.DELETE("/companies/:id/members/:userId", h.RemoveMember)
	return r
}

func do(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestCreateCompany(t *testing.T) {
	repo := &stubRepo{}
	rec := do(newRouter(repo), http.MethodPost, "/companies", `{"name":"Acme","industry":"retail"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got domain.Company
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Acme", got.Name)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, got.ID, repo.company.ID)
}

func TestHandlerStatusMapping(t *testing.T) {
	testCases := []struct {
		name   string
		repo   *stubRepo
		method string
		target string
		body   string
		want   int
	}{
		{"missing company", &stubRepo{}, http.MethodGet, "/companies/c1", "", http.StatusNotFound},
		{"found company", &stubRepo{company: &domain.Company{ID: "c1"}}, http.MethodGet, "/companies/c1", "", http.StatusOK},
		{"empty name", &stubRepo{}, http.MethodPost, "/companies", `{"name":""}`, http.StatusBadRequest},
		{"bad json", &stubRepo{}, http.MethodPost, "/companies/c1/members", `{`, http.StatusBadRequest},
		{"duplicate member", &stubRepo{err: domain.ErrAlreadyMember}, http.MethodPost, "/companies/c1/members", `{"user_id":"u2","role":"viewer"}`, http.StatusConflict},
		{"last admin demote", &stubRepo{err: domain.ErrLastAdmin}, http.MethodPatch, "/companies/c1/members/u1", `{"role":"viewer"}`, http.StatusConflict},
		{"invalid role", &stubRepo{}, http.MethodPatch, "/companies/c1/members/u1", `{"role":"root"}`, http.StatusBadRequest},
		{"role change", &stubRepo{}, http.MethodPatch, "/companies/c1/members/u2", `{"role":"analyst"}`, http.StatusOK},
		{"remove", &stubRepo{}, http.MethodDelete, "/companies/c1/members/u2", "", http.StatusNoContent},
		{"remove unknown", &stubRepo{err: domain.ErrMemberNotFound}, http.MethodDelete, "/companies/c1/members/u9", "", http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(newRouter(tc.repo), tc.method, tc.target, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestListMembers_EmptyArray(t *testing.T) {
	rec := do(newRouter(&stubRepo{}), http.MethodGet, "/companies/c1/members", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"members":[],"count":0}`, rec.Body.String())
}
