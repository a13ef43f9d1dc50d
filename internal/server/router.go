// Package server assembles the HTTP router and the gRPC health server.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	aihandler "bizlens/backend/internal/ai/handler"
	"bizlens/backend/internal/audit"
	audithandler "bizlens/backend/internal/audit/handler"
	automationhandler "bizlens/backend/internal/automation/handler"
	companydomain "bizlens/backend/internal/company/domain"
	companyhandler "bizlens/backend/internal/company/handler"
	datasethandler "bizlens/backend/internal/dataset/handler"
	healthhandler "bizlens/backend/internal/health/handler"
	mlhandler "bizlens/backend/internal/ml/handler"
	notificationhandler "bizlens/backend/internal/notification/handler"
	"bizlens/backend/internal/platform/logger"
	"bizlens/backend/internal/platform/rbac"
	"bizlens/backend/internal/server/middleware"
	"bizlens/backend/internal/telemetry"
	"bizlens/backend/internal/telemetry/metrics"
	userhandler "bizlens/backend/internal/user/handler"
)

const (
	serviceName = "bizlens-api"
	// DocsPath lists the registered routes.
	DocsPath = "/api/v1/docs"
)

// RouterDeps holds everything the router mounts. Handlers left nil are not mounted.
type RouterDeps struct {
	Logger      logger.Logger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Validator   middleware.TokenValidator
	Memberships rbac.MembershipGetter
	AuditLogger audit.AuditLogger
	Emitter     telemetry.EventEmitter
	CORSOrigins []string
	// AILimiter throttles the LLM routes per caller.
	AILimiter *middleware.RateLimiter

	Health        *healthhandler.HTTP
	Users         *userhandler.Handler
	Companies     *companyhandler.Handler
	Datasets      *datasethandler.Handler
	Automation    *automationhandler.Handler
	Notifications *notificationhandler.Handler
	ML            *mlhandler.Handler
	AI            *aihandler.Handler
	Audit         *audithandler.Handler
}

// unobserved routes are not emitted as telemetry.
var unobserved = map[string]bool{
	"/":        true,
	"/health":  true,
	"/metrics": true,
	DocsPath:   true,
}

// unaudited are POST routes that compute without changing state.
var unaudited = map[string]bool{
	"/api/v1/ml/predict":         true,
	"/api/v1/ml/batch-predict":   true,
	"/api/v1/ml/explain":         true,
	"/api/v1/llm/predict":        true,
	"/api/v1/llm/chat":           true,
	"/api/v1/companies/:id/chat": true,
}

// NewRouter builds the gin engine with the middleware chain and all /api/v1 routes.
func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		otelgin.Middleware(serviceName),
		cors.New(corsConfig(d.CORSOrigins)),
		middleware.RequestContext(),
		middleware.RequestLogger(d.Logger.Named("http")),
		middleware.Metrics(d.Metrics),
		middleware.Telemetry(d.Emitter, d.Logger.Named("telemetry"), unobserved),
	)

	if d.Health != nil {
		r.GET("/", d.Health.Root)
		r.GET("/health", d.Health.Health)
	}
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	api.GET("/docs", func(c *gin.Context) {
		routes := r.Routes()
		out := make([]gin.H, 0, len(routes))
		for _, rt := range routes {
			out = append(out, gin.H{"method": rt.Method, "path": rt.Path})
		}
		c.JSON(http.StatusOK, gin.H{"routes": out, "count": len(out)})
	})

	authed := api.Group("", middleware.Auth(d.Validator), middleware.Audit(d.AuditLogger, unaudited))
	aiLimit := d.AILimiter.Middleware()

	analyst := rbac.RequireRole(companydomain.RoleAnalyst)
	admin := rbac.RequireRole(companydomain.RoleAdmin)

	if d.Users != nil {
		authed.GET("/me", d.Users.GetMe)
		authed.PUT("/me", d.Users.UpdateMe)
	}
	if d.ML != nil {
		authed.POST("/ml/predict", d.ML.Predict)
		authed.POST("/ml/batch-predict", d.ML.BatchPredict)
		authed.GET("/ml/models", d.ML.Models)
		authed.GET("/ml/models/:name/info", d.ML.Info)
		authed.POST("/ml/explain", d.ML.Explain)
	}
	if d.AI != nil {
		llm := authed.Group("/llm", aiLimit)
		llm.POST("/predict", d.AI.Predict)
		llm.POST("/chat", d.AI.Chat)
		llm.GET("/models", d.AI.Models)
	}
	if d.Companies != nil {
		authed.POST("/companies", d.Companies.Create)
	}

	co := authed.Group("/companies/:id", rbac.RequireCompanyMember(d.Memberships))
	if d.Companies != nil {
		co.GET("", d.Companies.Get)
		co.GET("/members", d.Companies.ListMembers)
		co.POST("/members", admin, d.Companies.AddMember)
		co.PATCH("/members/:userId", admin, d.Companies.UpdateRole)
		co.DELETE("/members/:userId", admin, d.Companies.RemoveMember)
	}
	if d.Datasets != nil {
		co.POST("/datasets", analyst, d.Datasets.Upload)
		co.GET("/datasets", d.Datasets.List)
		co.GET("/datasets/:datasetId", d.Datasets.Get)
		co.DELETE("/datasets/:datasetId", admin, d.Datasets.Delete)
		co.GET("/datasets/:datasetId/quality", d.Datasets.Quality)
		co.GET("/datasets/:datasetId/export", d.Datasets.Export)
		co.POST("/datasets/:datasetId/powerbi", analyst, d.Datasets.PushPowerBI)
		co.GET("/metrics", d.Datasets.Metrics)
		co.GET("/metrics/:name/latest", d.Datasets.LatestMetric)
	}
	if d.Automation != nil {
		co.POST("/automation-rules", analyst, d.Automation.Create)
		co.GET("/automation-rules", d.Automation.List)
		co.POST("/automation-rules/evaluate", analyst, d.Automation.Evaluate)
		co.GET("/automation-rules/:ruleId", d.Automation.Get)
		co.PUT("/automation-rules/:ruleId", analyst, d.Automation.Update)
		co.DELETE("/automation-rules/:ruleId", analyst, d.Automation.Delete)
		co.POST("/automation-rules/:ruleId/run", analyst, d.Automation.Run)
		co.GET("/automation-rules/:ruleId/executions", d.Automation.Executions)
	}
	if d.Notifications != nil {
		co.GET("/notifications", d.Notifications.List)
		co.POST("/notifications/:nid/read", d.Notifications.MarkRead)
	}
	if d.ML != nil {
		co.POST("/predictions", analyst, d.ML.CreatePrediction)
		co.GET("/predictions", d.ML.ListPredictions)
	}
	if d.AI != nil {
		co.POST("/chat", aiLimit, d.AI.CompanyChat)
	}
	if d.Audit != nil {
		co.GET("/audit-logs", admin, d.Audit.List)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
