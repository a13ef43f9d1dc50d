// Package apierror maps domain errors onto HTTP status codes and JSON error bodies.
package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error is an error with an HTTP status. Domain packages declare their sentinels with
// the constructors below and wrap them with fmt.Errorf("...: %w", err).
type Error struct {
	Status int
	Msg    string
}

func (e *Error) Error() string { return e.Msg }

func newError(status int, msg string) *Error { return &Error{Status: status, Msg: msg} }

func Invalid(msg string) *Error         { return newError(http.StatusBadRequest, msg) }
func Unauthenticated(msg string) *Error { return newError(http.StatusUnauthorized, msg) }
func Forbidden(msg string) *Error       { return newError(http.StatusForbidden, msg) }
func NotFound(msg string) *Error        { return newError(http.StatusNotFound, msg) }
func Conflict(msg string) *Error        { return newError(http.StatusConflict, msg) }
func RateLimited(msg string) *Error     { return newError(http.StatusTooManyRequests, msg) }
func NotImplemented(msg string) *Error  { return newError(http.StatusNotImplemented, msg) }
func Upstream(msg string) *Error        { return newError(http.StatusBadGateway, msg) }
func Timeout(msg string) *Error         { return newError(http.StatusGatewayTimeout, msg) }

// Shared sentinels for cross-cutting failures.
var (
	ErrUnauthenticated = Unauthenticated("missing or invalid authorization")
	ErrForbidden       = Forbidden("permission denied")
	ErrRateLimited     = RateLimited("rate limit exceeded")
)

// Status returns the HTTP status and user-facing message for err.
// Unknown errors become 500 with a generic message so internals are not leaked.
func Status(err error) (int, string) {
	var apiErr *Error
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &apiErr):
		if apiErr.Status >= http.StatusInternalServerError && apiErr.Status != http.StatusNotImplemented {
			// keep the wrapping context for upstream failures; it is user-safe
			return apiErr.Status, err.Error()
		}
		return apiErr.Status, apiErr.Msg
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream timeout"
	case errors.Is(err, context.Canceled):
		return 499, "request canceled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// Abort writes {"error": msg} with the mapped status and aborts the gin chain.
func Abort(c *gin.Context, err error) {
	code, msg := Status(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}
