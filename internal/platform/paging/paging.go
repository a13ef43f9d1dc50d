// Package paging parses limit/offset query parameters.
package paging

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/platform/apierror"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ErrInvalid is returned for non-numeric or negative limit/offset values.
var ErrInvalid = apierror.Invalid("limit and offset must be non-negative integers")

// Parse reads ?limit and ?offset. A missing or zero limit becomes DefaultLimit;
// limits above MaxLimit are clamped.
func Parse(c *gin.Context) (limit, offset int32, err error) {
	l, err := parseInt(c.Query("limit"))
	if err != nil {
		return 0, 0, ErrInvalid
	}
	o, err := parseInt(c.Query("offset"))
	if err != nil {
		return 0, 0, ErrInvalid
	}
	if l == 0 {
		l = DefaultLimit
	}
	if l > MaxLimit {
		l = MaxLimit
	}
	return int32(l), int32(o), nil
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, ErrInvalid
	}
	return n, nil
}
