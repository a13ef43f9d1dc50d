package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/security"
)

func newAuthRouter(v TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Auth(v))
	r.GET("/me", func(c *gin.Context) {
		id, _ := GetIdentity(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "role": GetRole(c.Request.Context())})
	})
	return r
}

func TestAuth_ValidToken(t *testing.T) {
	p, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	v, err := security.NewTestValidator()
	if err != nil {
		t.Fatalf("NewTestValidator: %v", err)
	}
	token, _, err := p.IssueAccess("user-1", "u@example.com", security.RoleAnalyst)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newAuthRouter(v).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if want := `{"role":"analyst","user_id":"user-1"}`; rec.Body.String() != want {
		t.Errorf("body = %s, want %s", rec.Body, want)
	}
}

type rejectAll struct{}

func (rejectAll) ValidateAccess(context.Context, string) (*security.Identity, error) {
	return nil, security.ErrInvalidToken
}

func TestAuth_Rejects(t *testing.T) {
	testCases := []struct {
		name   string
		v      TokenValidator
		header string
	}{
		{"no header", rejectAll{}, ""},
		{"basic scheme", rejectAll{}, "Basic abc"},
		{"invalid token", rejectAll{}, "Bearer abc"},
		{"auth not configured", nil, "Bearer abc"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			newAuthRouter(tc.v).ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestExtractBearer(t *testing.T) {
	testCases := map[string]string{
		"Bearer abc":     "abc",
		"bearer abc":     "abc",
		"BEARER   abc  ": "abc",
		"  Bearer xyz":   "xyz",
		"":               "",
		"Bearer":         "",
		"Token abc":      "",
		"Basic dXNlcjpw": "",
	}
	for in, want := range testCases {
		if got := extractBearer(in); got != want {
			t.Errorf("extractBearer(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	testCases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.1"}, "10.0.0.1:1234", "203.0.113.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": " 203.0.113.1 , 10.0.0.2"}, "", "203.0.113.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.1:1234", "198.51.100.7"},
		{"forwarded wins", map[string]string{"X-Forwarded-For": "1.1.1.1", "X-Real-IP": "2.2.2.2"}, "", "1.1.1.1"},
		{"remote addr", nil, "192.0.2.5:5555", "192.0.2.5"},
		{"remote without port", nil, "192.0.2.5", "192.0.2.5"},
		{"unknown", nil, "", "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tc.want {
				t.Errorf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}
