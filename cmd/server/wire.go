package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bizlens/backend/internal/ai"
	aihandler "bizlens/backend/internal/ai/handler"
	"bizlens/backend/internal/audit"
	audithandler "bizlens/backend/internal/audit/handler"
	auditrepo "bizlens/backend/internal/audit/repository"
	"bizlens/backend/internal/automation/actions"
	"bizlens/backend/internal/automation/engine"
	automationhandler "bizlens/backend/internal/automation/handler"
	"bizlens/backend/internal/automation/queue"
	automationrepo "bizlens/backend/internal/automation/repository"
	automationservice "bizlens/backend/internal/automation/service"
	companyhandler "bizlens/backend/internal/company/handler"
	companyrepo "bizlens/backend/internal/company/repository"
	companyservice "bizlens/backend/internal/company/service"
	"bizlens/backend/internal/config"
	datasethandler "bizlens/backend/internal/dataset/handler"
	datasetrepo "bizlens/backend/internal/dataset/repository"
	datasetservice "bizlens/backend/internal/dataset/service"
	"bizlens/backend/internal/health"
	healthhandler "bizlens/backend/internal/health/handler"
	"bizlens/backend/internal/ml/decision"
	mlhandler "bizlens/backend/internal/ml/handler"
	"bizlens/backend/internal/ml/registry"
	mlrepo "bizlens/backend/internal/ml/repository"
	mlservice "bizlens/backend/internal/ml/service"
	"bizlens/backend/internal/notification"
	notificationhandler "bizlens/backend/internal/notification/handler"
	notifrepo "bizlens/backend/internal/notification/repository"
	"bizlens/backend/internal/platform/logger"
	"bizlens/backend/internal/powerbi"
	"bizlens/backend/internal/security"
	"bizlens/backend/internal/server"
	"bizlens/backend/internal/server/middleware"
	"bizlens/backend/internal/telemetry"
	"bizlens/backend/internal/telemetry/metrics"
	"bizlens/backend/internal/telemetry/producer"
	userhandler "bizlens/backend/internal/user/handler"
	userrepo "bizlens/backend/internal/user/repository"
	userservice "bizlens/backend/internal/user/service"
)

const (
	jwksTTL = 10 * time.Minute
	// aiBurst is the per-user burst on the LLM routes.
	aiBurst = 5
)

// app is the assembled object graph of the API process.
type app struct {
	lggr    logger.Logger
	metrics *metrics.Metrics
	emitter telemetry.EventEmitter
	checker *health.Checker

	validator   middleware.TokenValidator
	memberships *companyrepo.PostgresRepository
	auditLogger *audit.Logger
	limiter     *middleware.RateLimiter

	health        *healthhandler.HTTP
	users         *userhandler.Handler
	companies     *companyhandler.Handler
	datasets      *datasethandler.Handler
	automation    *automationhandler.Handler
	notifications *notificationhandler.Handler
	ml            *mlhandler.Handler
	ai            *aihandler.Handler
	audit         *audithandler.Handler

	closers []func() error
}

func build(ctx context.Context, cfg *config.Config, conn *sql.DB, m *metrics.Metrics, otelEmitter telemetry.EventEmitter, lggr logger.Logger) (*app, error) {
	a := &app{lggr: lggr, metrics: m}

	emitters := []telemetry.EventEmitter{otelEmitter}
	var chainQueue automationservice.ChainQueue
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		events := producer.NewKafkaProducer(brokers, cfg.TelemetryKafkaTopic)
		a.closers = append(a.closers, events.Close)
		emitters = append(emitters, events)
		if cfg.ActionsKafkaTopic != "" {
			jobs := producer.NewKafkaProducer(brokers, cfg.ActionsKafkaTopic)
			a.closers = append(a.closers, jobs.Close)
			chainQueue = queue.New(jobs)
		}
		lggr.Infow("kafka enabled", "brokers", brokers, "telemetry_topic", cfg.TelemetryKafkaTopic, "actions_topic", cfg.ActionsKafkaTopic)
	}
	a.emitter = telemetry.Multi(emitters...)

	validator, err := newValidator(cfg)
	if err != nil {
		return nil, err
	}
	if validator == nil {
		lggr.Warnw("authentication is not configured; protected routes will reject every request")
	} else {
		a.validator = validator
	}

	audits := auditrepo.NewPostgresRepository(conn)
	a.auditLogger = audit.NewLogger(audits, middleware.GetClientIP, lggr.Named("audit"))
	a.audit = audithandler.NewHandler(audits)

	users := userservice.NewService(userrepo.NewPostgresRepository(conn))
	companies := companyrepo.NewPostgresRepository(conn)
	a.memberships = companies
	a.users = userhandler.NewHandler(users, companies)
	a.companies = companyhandler.NewHandler(companyservice.NewService(companies, users))

	var pusher datasetservice.RowPusher
	if cfg.PowerBIEnabled() {
		pusher = powerbi.NewClient(ctx, cfg.PowerBITenantID, cfg.PowerBIClientID, cfg.PowerBIClientSecret)
	}
	datasets := datasetservice.NewService(datasetrepo.NewPostgresRepository(conn), pusher, a.auditLogger, a.emitter, lggr)
	a.datasets = datasethandler.NewHandler(datasets)

	notifications := notification.NewService(notifrepo.NewPostgresRepository(conn))
	a.notifications = notificationhandler.NewHandler(notifications)

	evaluator, err := engine.NewOPAEvaluator(ctx, lggr)
	if err != nil {
		return nil, fmt.Errorf("policy engine: %w", err)
	}
	rules := automationrepo.NewPostgresRepository(conn)
	hooks := notification.NewWebhookClient()
	hooks.AllowPrivate = cfg.WebhookAllowPrivate
	runner := actions.NewRunner(notification.NewEmailClient(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom),
		hooks, notifications, lggr)
	a.automation = automationhandler.NewHandler(automationservice.NewService(automationservice.Deps{
		Repo:      rules,
		Source:    datasetservice.PointSource{Service: datasets},
		Evaluator: evaluator,
		Runner:    runner,
		Queue:     chainQueue,
		Audit:     a.auditLogger,
		Emitter:   a.emitter,
		Metrics:   m,
		Logger:    lggr,
	}))

	models := registry.New(cfg.ModelDir)
	decisions := decision.NewLogger(decision.NewPostgresStore(conn), lggr)
	a.ml = mlhandler.NewHandler(mlservice.NewService(models, decisions, mlrepo.NewPostgresRepository(conn), m, a.emitter, lggr))

	var (
		providers []ai.Provider
		lister    aihandler.ModelLister
		llm       health.LLMPinger
	)
	if cfg.OllamaHost != "" {
		ollama := ai.NewOllama(cfg.OllamaHost, cfg.OllamaModel, cfg.OllamaTimeoutDuration())
		providers = append(providers, ollama)
		lister, llm = ollama, ollama
	}
	if cfg.GeminiAPIKey != "" {
		providers = append(providers, ai.NewGemini(cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.GeminiModel, cfg.OllamaTimeoutDuration()))
	}
	if cfg.EdgeFunctionURL != "" {
		providers = append(providers, ai.NewEdge(cfg.EdgeFunctionURL, cfg.EdgeFunctionKey, cfg.OllamaTimeoutDuration()))
	}
	orch := ai.NewOrchestrator(providers, ai.Options{
		DefaultProvider: cfg.AIDefaultProvider,
		CacheCapacity:   cfg.AICacheCapacity,
		MaxRetries:      cfg.AIMaxRetries,
	}, m, lggr.Named("ai"))
	lggr.Infow("ai providers", "configured", orch.Providers(), "default", cfg.AIDefaultProvider)
	a.ai = aihandler.NewHandler(orch, lister, ai.NewDataChat(orch, datasets, a.emitter, lggr.Named("chat")))
	a.limiter = middleware.NewRateLimiter(cfg.AIRateLimitRPS, aiBurst)

	a.checker = health.NewChecker(conn, evaluator, models, llm)
	a.health = healthhandler.NewHTTP(a.checker, version, server.DocsPath)
	return a, nil
}

// newValidator returns nil when neither a static key nor a Supabase project is configured.
func newValidator(cfg *config.Config) (*security.Validator, error) {
	if !cfg.AuthEnabled() {
		return nil, nil
	}
	if cfg.JWTPublicKey != "" {
		pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
		if err != nil {
			return nil, fmt.Errorf("JWT_PUBLIC_KEY: %w", err)
		}
		return security.NewValidator(security.StaticKey{Key: pub}, cfg.JWTIssuer(), cfg.JWTAudience), nil
	}
	jwks := security.NewJWKS(cfg.JWKSURL(), &http.Client{Timeout: 10 * time.Second}, jwksTTL)
	return security.NewValidator(jwks, cfg.JWTIssuer(), cfg.JWTAudience), nil
}

func (a *app) routerDeps(cfg *config.Config, gatherer prometheus.Gatherer) server.RouterDeps {
	return server.RouterDeps{
		Logger:        a.lggr,
		Metrics:       a.metrics,
		Gatherer:      gatherer,
		Validator:     a.validator,
		Memberships:   a.memberships,
		AuditLogger:   a.auditLogger,
		Emitter:       a.emitter,
		CORSOrigins:   cfg.CORSOriginsList(),
		AILimiter:     a.limiter,
		Health:        a.health,
		Users:         a.users,
		Companies:     a.companies,
		Datasets:      a.datasets,
		Automation:    a.automation,
		Notifications: a.notifications,
		ML:            a.ml,
		AI:            a.ai,
		Audit:         a.audit,
	}
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.lggr.Warnw("close", "err", err)
		}
	}
}
