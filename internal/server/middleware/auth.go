package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/security"
)

const bearerPrefix = "bearer "

// TokenValidator validates an access token. Implemented by *security.Validator.
type TokenValidator interface {
	ValidateAccess(ctx context.Context, token string) (*security.Identity, error)
}

// Auth returns middleware that validates the Bearer token and stores the caller identity
// in the request context. With a nil validator (auth not configured) every request is rejected.
func Auth(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			apierror.Abort(c, apierror.Unauthenticated("authentication is not configured"))
			return
		}
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			apierror.Abort(c, apierror.ErrUnauthenticated)
			return
		}
		id, err := v.ValidateAccess(c.Request.Context(), token)
		if err != nil {
			apierror.Abort(c, apierror.ErrUnauthenticated)
			return
		}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

// RequestContext stores the client IP in the request context for audit and telemetry.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithClientIP(c.Request.Context(), ClientIP(c.Request)))
		c.Next()
	}
}

// ClientIP returns the client IP from X-Forwarded-For (first hop), X-Real-IP, or the remote address, or "unknown".
func ClientIP(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		return s
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}
