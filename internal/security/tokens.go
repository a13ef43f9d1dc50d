package security

import (
	"context"
	"crypto"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
)

// Application roles carried in tokens and memberships.
const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
	RoleViewer  = "viewer"
)

// clockSkew is the leeway applied to exp/nbf/iat checks.
const clockSkew = 30 * time.Second

// NormalizeRole maps a raw role claim onto an application role.
// Supabase's generic "authenticated" role and unknown values become viewer.
func NormalizeRole(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case RoleAdmin:
		return RoleAdmin
	case RoleAnalyst:
		return RoleAnalyst
	default:
		return RoleViewer
	}
}

// AccessClaims holds the claims of a Supabase access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email       string         `json:"email,omitempty"`
	Role        string         `json:"role,omitempty"`
	UserRole    string         `json:"user_role,omitempty"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
}

// AppRole resolves the application role: user_role, then app_metadata.role, then role.
func (c *AccessClaims) AppRole() string {
	if c.UserRole != "" {
		return NormalizeRole(c.UserRole)
	}
	if r, ok := c.AppMetadata["role"].(string); ok && r != "" {
		return NormalizeRole(r)
	}
	return NormalizeRole(c.Role)
}

// Identity is the authenticated caller extracted from a validated token.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// KeySource resolves the public key that verifies a token with the given key id.
type KeySource interface {
	PublicKey(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// StaticKey is a KeySource that returns one configured key regardless of kid.
type StaticKey struct {
	Key crypto.PublicKey
}

// PublicKey implements KeySource.
func (s StaticKey) PublicKey(context.Context, string) (crypto.PublicKey, error) {
	if s.Key == nil {
		return nil, ErrInvalidKey
	}
	return s.Key, nil
}

// Validator verifies access tokens (signature, exp, iss, aud) against a KeySource.
type Validator struct {
	keys     KeySource
	issuer   string
	audience string
}

// NewValidator returns a Validator. An empty issuer disables the issuer check.
func NewValidator(keys KeySource, issuer, audience string) *Validator {
	return &Validator{keys: keys, issuer: issuer, audience: audience}
}

// ValidateAccess parses and validates the access token and returns the caller identity.
func (v *Validator) ValidateAccess(ctx context.Context, tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		key, err := v.keys.PublicKey(ctx, kid)
		if err != nil {
			return nil, err
		}
		if KeyAlg(key) != token.Method.Alg() {
			return nil, ErrInvalidToken
		}
		return key, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email, Role: claims.AppRole()}, nil
}

// TokenProvider mints access tokens with a local private key. It is used for
// development and tests; production tokens come from Supabase Auth.
type TokenProvider struct {
	privateKey crypto.Signer
	kid        string
	issuer     string
	audience   string
	ttl        time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
func NewTokenProvider(privateKey crypto.Signer, kid, issuer, audience string, ttl time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		kid:        kid,
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
	}
}

// PublicKey returns the verification key for tokens minted by p.
func (p *TokenProvider) PublicKey() crypto.PublicKey {
	return p.privateKey.Public()
}

// IssueAccess issues an access JWT for the user. role is written as user_role;
// the standard role claim stays "authenticated" the way Supabase issues it.
func (p *TokenProvider) IssueAccess(userID, email, role string) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:    email,
		Role:     "authenticated",
		UserRole: role,
	}
	token, err = p.sign(claims)
	return token, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	method, err := signingMethod(p.privateKey.Public())
	if err != nil {
		return "", err
	}
	t := jwt.NewWithClaims(method, claims)
	if p.kid != "" {
		t.Header["kid"] = p.kid
	}
	return t.SignedString(p.privateKey)
}
