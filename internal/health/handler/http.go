package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HTTP serves GET / and GET /health.
type HTTP struct {
	checker Checker
	version string
	docs    string
}

func NewHTTP(checker Checker, version, docs string) *HTTP {
	return &HTTP{checker: checker, version: version, docs: docs}
}

// Health returns the readiness report; 503 when degraded.
func (h *HTTP) Health(c *gin.Context) {
	report := h.checker.Check(c.Request.Context())
	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

func (h *HTTP) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "BizLens API",
		"version": h.version,
		"status":  "running",
		"docs":    h.docs,
	})
}
