package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/platform/logger"
	"bizlens/backend/internal/telemetry"
	"bizlens/backend/internal/telemetry/metrics"
)

// httpRequestMetadata is the JSON shape stored in Event.Metadata for http_request events.
type httpRequestMetadata struct {
	Method     string `json:"method"`
	Route      string `json:"route"`
	Status     int    `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

// Telemetry returns middleware that emits an http_request event after each request.
// Best-effort: failures are logged and do not affect the response. skipRoutes holds route
// templates that are not emitted (e.g. /health, /metrics).
func Telemetry(emitter telemetry.EventEmitter, lggr logger.Logger, skipRoutes map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := routeOf(c)
		if emitter == nil || skipRoutes[route] {
			return
		}
		ctx := c.Request.Context()
		userID, _ := GetUserID(ctx)
		companyID, _ := GetCompanyID(ctx)
		meta := httpRequestMetadata{
			Method:     c.Request.Method,
			Route:      route,
			Status:     c.Writer.Status(),
			DurationMs: time.Since(start).Milliseconds(),
			ClientIP:   GetClientIP(ctx),
		}
		telemetry.EmitAsync(lggr, emitter, telemetry.NewEvent("http_request", "http_middleware", companyID, userID, meta))
	}
}

// Metrics returns middleware that records request count and latency in Prometheus.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := routeOf(c)
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// RequestLogger logs one line per request at info (or warn for 5xx).
func RequestLogger(lggr logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		kv := []any{
			"method", c.Request.Method,
			"route", routeOf(c),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", GetClientIP(c.Request.Context()),
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "errors", c.Errors.String())
		}
		if c.Writer.Status() >= 500 {
			lggr.Warnw("request failed", kv...)
			return
		}
		lggr.Infow("request", kv...)
	}
}

// routeOf returns the gin route template, or "unmatched" for 404s so label cardinality stays bounded.
func routeOf(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}
