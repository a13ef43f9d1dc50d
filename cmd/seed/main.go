// seed inserts development sample data for local testing. Run with go run ./cmd/seed after migrating.
// Idempotent: skips inserts if the demo company already exists.
// With JWT_PRIVATE_KEY set it also prints an access token for the demo user.
package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"bizlens/backend/internal/audit"
	auditrepo "bizlens/backend/internal/audit/repository"
	"bizlens/backend/internal/automation/actions"
	automationdomain "bizlens/backend/internal/automation/domain"
	"bizlens/backend/internal/automation/engine"
	automationrepo "bizlens/backend/internal/automation/repository"
	automationservice "bizlens/backend/internal/automation/service"
	companydomain "bizlens/backend/internal/company/domain"
	companyrepo "bizlens/backend/internal/company/repository"
	"bizlens/backend/internal/config"
	datasetrepo "bizlens/backend/internal/dataset/repository"
	datasetservice "bizlens/backend/internal/dataset/service"
	"bizlens/backend/internal/db"
	"bizlens/backend/internal/notification"
	notifrepo "bizlens/backend/internal/notification/repository"
	"bizlens/backend/internal/platform/logger"
	"bizlens/backend/internal/security"
	"bizlens/backend/internal/telemetry"
	userdomain "bizlens/backend/internal/user/domain"
	userrepo "bizlens/backend/internal/user/repository"
)

const (
	devUserID       = "dev-user-001"
	devUserEmail    = "dev@example.com"
	devCompanyID    = "dev-company-001"
	devMembershipID = "dev-membership-001"
	devTokenTTL     = 24 * time.Hour
)

const salesCSV = `order_date,region,total_revenue,units_sold,churn_rate
2024-01-31,North,120500,410,0.041
2024-02-29,North,118200,398,0.043
2024-03-31,South,131900,450,0.039
2024-04-30,South,127400,,0.044
2024-05-31,East,109800,372,0.052
2024-06-30,East,98600,341,0.061
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	lggr, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	lggr = lggr.Named("seed")

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	companies := companyrepo.NewPostgresRepository(conn)
	existing, err := companies.GetByID(ctx, devCompanyID)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (demo company exists). Skipping.")
		printToken(cfg)
		return
	}

	now := time.Now().UTC()
	users := userrepo.NewPostgresRepository(conn)
	if u, err := users.GetByID(ctx, devUserID); err != nil {
		log.Fatalf("get dev user: %v", err)
	} else if u == nil {
		if err := users.Create(ctx, &userdomain.User{
			ID: devUserID, Email: devUserEmail, FullName: "Dev User",
			Status: userdomain.UserStatusActive, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			log.Fatalf("create dev user: %v", err)
		}
	}

	if err := companies.CreateWithAdmin(ctx,
		&companydomain.Company{ID: devCompanyID, Name: "Acme Retail", Industry: "retail", Status: companydomain.CompanyStatusActive, CreatedAt: now},
		&companydomain.Membership{ID: devMembershipID, UserID: devUserID, CompanyID: devCompanyID, Role: companydomain.RoleAdmin, CreatedAt: now},
	); err != nil {
		log.Fatalf("create company: %v", err)
	}

	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(conn), nil, lggr)
	datasets := datasetservice.NewService(datasetrepo.NewPostgresRepository(conn), nil, auditLogger, telemetry.Noop{}, lggr)
	ds, err := datasets.Upload(ctx, devCompanyID, devUserID, "Monthly sales", "sales.csv", strings.NewReader(salesCSV))
	if err != nil {
		log.Fatalf("upload dataset: %v", err)
	}

	evaluator, err := engine.NewOPAEvaluator(ctx, lggr)
	if err != nil {
		log.Fatalf("policy engine: %v", err)
	}
	notifications := notification.NewService(notifrepo.NewPostgresRepository(conn))
	rules := automationservice.NewService(automationservice.Deps{
		Repo:      automationrepo.NewPostgresRepository(conn),
		Source:    datasetservice.PointSource{Service: datasets},
		Evaluator: evaluator,
		Runner:    actions.NewRunner(nil, notification.NewWebhookClient(), notifications, lggr),
		Audit:     auditLogger,
		Logger:    lggr,
	})
	for _, r := range demoRules() {
		if _, err := rules.Create(ctx, devCompanyID, devUserID, r); err != nil {
			log.Fatalf("create rule %q: %v", r.Name, err)
		}
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Company: %s (%s)\n", devCompanyID, "Acme Retail")
	fmt.Printf("Dataset: %s (%d rows, quality %.1f)\n", ds.ID, ds.RowCount, ds.Quality.Score)
	printToken(cfg)
}

func demoRules() []*automationdomain.Rule {
	return []*automationdomain.Rule{
		{
			Name:        "Revenue dip",
			Description: "Notify admins when monthly revenue falls below 100k",
			Enabled:     true,
			Condition:   automationdomain.Condition{Metric: "total_revenue", Operator: automationdomain.OpLT, Threshold: 100000},
			Actions: []automationdomain.Action{{
				Type:   automationdomain.ActionNotification,
				Config: map[string]string{"title": "Revenue dip", "message": "Revenue is below 100k", "severity": "warning"},
			}},
			CooldownSeconds: 3600,
		},
		{
			Name:    "Churn spike",
			Enabled: true,
			// custom policy example; operator and threshold are still required and are its fallback
			Condition: automationdomain.Condition{
				Metric:    "churn_rate",
				Operator:  automationdomain.OpGT,
				Threshold: 0.05,
				Rego:      "triggered if {\n\tinput.value > input.condition.threshold\n}",
			},
			Actions: []automationdomain.Action{{
				Type:   automationdomain.ActionNotification,
				Config: map[string]string{"title": "Churn spike", "message": "Churn rate is above 5%", "severity": "critical"},
			}},
		},
	}
}

func printToken(cfg *config.Config) {
	if cfg.JWTPrivateKey == "" {
		return
	}
	key, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("JWT_PRIVATE_KEY: %v", err)
	}
	tp := security.NewTokenProvider(key, "dev", cfg.JWTIssuer(), cfg.JWTAudience, devTokenTTL)
	token, exp, err := tp.IssueAccess(devUserID, devUserEmail, security.RoleAdmin)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Printf("Dev token for %s (expires %s):\n%s\n", devUserEmail, exp.Format(time.RFC3339), token)
}
