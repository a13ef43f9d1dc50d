package middleware

import (
	"context"

	"bizlens/backend/internal/security"
)

type contextKey struct{ name string }

var (
	identityKey    = contextKey{"identity"}
	companyIDKey   = contextKey{"company_id"}
	companyRoleKey = contextKey{"company_role"}
	clientIPKey    = contextKey{"client_ip"}
)

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, id *security.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the caller identity and true if set.
func GetIdentity(ctx context.Context) (*security.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*security.Identity)
	return id, ok && id != nil
}

// GetUserID returns the caller's user id and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := GetIdentity(ctx)
	if !ok || id.UserID == "" {
		return "", false
	}
	return id.UserID, true
}

// WithCompany returns a context with the resolved company and the caller's role in it.
func WithCompany(ctx context.Context, companyID, role string) context.Context {
	ctx = context.WithValue(ctx, companyIDKey, companyID)
	return context.WithValue(ctx, companyRoleKey, role)
}

// GetCompanyID returns the company id resolved for this request and true if set.
func GetCompanyID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(companyIDKey).(string)
	return v, ok && v != ""
}

// GetRole returns the caller's effective role: the company membership role when a
// company was resolved, otherwise the role from the token.
func GetRole(ctx context.Context) string {
	if r, ok := ctx.Value(companyRoleKey).(string); ok && r != "" {
		return r
	}
	if id, ok := GetIdentity(ctx); ok {
		return id.Role
	}
	return ""
}

// WithClientIP returns a context carrying the client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// GetClientIP returns the client IP stored by RequestContext, or "unknown". It satisfies audit.IPExtractor.
func GetClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
