package security

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenProvider_IssueAndValidate(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	v, err := NewTestValidator()
	if err != nil {
		t.Fatalf("NewTestValidator: %v", err)
	}
	token, exp, err := p.IssueAccess("user-1", "a@example.com", RoleAnalyst)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" {
		t.Fatal("IssueAccess returned empty token")
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiresAt %v should be in the future", exp)
	}
	id, err := v.ValidateAccess(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if id.UserID != "user-1" || id.Email != "a@example.com" || id.Role != RoleAnalyst {
		t.Errorf("identity = %+v", id)
	}
}

func TestValidateAccess_Rejects(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	signer := p.privateKey
	sign := func(c AccessClaims) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
		s, err := tok.SignedString(signer)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	now := time.Now()
	valid := func() AccessClaims {
		return AccessClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u",
			Issuer:    TestIssuer,
			Audience:  jwt.ClaimStrings{TestAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		}}
	}

	testCases := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"expired", func() string { c := valid(); c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour)); return sign(c) }()},
		{"no exp", func() string { c := valid(); c.ExpiresAt = nil; return sign(c) }()},
		{"wrong issuer", func() string { c := valid(); c.Issuer = "other"; return sign(c) }()},
		{"wrong audience", func() string { c := valid(); c.Audience = jwt.ClaimStrings{"anon"}; return sign(c) }()},
		{"missing subject", func() string { c := valid(); c.Subject = ""; return sign(c) }()},
		{"hs256", func() string {
			s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, valid()).SignedString([]byte("secret"))
			return s
		}()},
	}
	v, err := NewTestValidator()
	if err != nil {
		t.Fatalf("NewTestValidator: %v", err)
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.ValidateAccess(context.Background(), tc.token); err != ErrInvalidToken {
				t.Errorf("ValidateAccess: want ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestAccessClaims_AppRole(t *testing.T) {
	testCases := []struct {
		name   string
		claims AccessClaims
		want   string
	}{
		{"authenticated maps to viewer", AccessClaims{Role: "authenticated"}, RoleViewer},
		{"empty maps to viewer", AccessClaims{}, RoleViewer},
		{"user_role wins", AccessClaims{Role: "authenticated", UserRole: "admin"}, RoleAdmin},
		{"app_metadata role", AccessClaims{Role: "authenticated", AppMetadata: map[string]any{"role": "Analyst"}}, RoleAnalyst},
		{"role claim", AccessClaims{Role: "admin"}, RoleAdmin},
		{"unknown maps to viewer", AccessClaims{UserRole: "superuser"}, RoleViewer},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.claims.AppRole(); got != tc.want {
				t.Errorf("AppRole() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStaticKey_Nil(t *testing.T) {
	if _, err := (StaticKey{}).PublicKey(context.Background(), ""); err != ErrInvalidKey {
		t.Errorf("StaticKey{}.PublicKey: want ErrInvalidKey, got %v", err)
	}
}
