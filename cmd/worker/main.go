// Worker runs the background side of BizLens:
//   - telemetry events from Kafka are pushed to Loki (KAFKA_BROKERS, TELEMETRY_KAFKA_TOPIC, LOKI_URL);
//   - queued automation action chains are delivered (ACTIONS_KAFKA_TOPIC);
//   - every company's enabled rules are evaluated on AUTOMATION_INTERVAL.
//
// Each part runs only when its settings are present.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"bizlens/backend/internal/audit"
	auditrepo "bizlens/backend/internal/audit/repository"
	"bizlens/backend/internal/automation/actions"
	"bizlens/backend/internal/automation/engine"
	"bizlens/backend/internal/automation/queue"
	automationrepo "bizlens/backend/internal/automation/repository"
	automationservice "bizlens/backend/internal/automation/service"
	"bizlens/backend/internal/config"
	datasetrepo "bizlens/backend/internal/dataset/repository"
	datasetservice "bizlens/backend/internal/dataset/service"
	"bizlens/backend/internal/db"
	"bizlens/backend/internal/notification"
	notifrepo "bizlens/backend/internal/notification/repository"
	"bizlens/backend/internal/platform/consumer"
	"bizlens/backend/internal/platform/logger"
	"bizlens/backend/internal/telemetry"
	"bizlens/backend/internal/telemetry/loki"
	"bizlens/backend/internal/telemetry/producer"
)

const lokiPushTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	lggr, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	lggr = lggr.Named("worker")
	defer func() { _ = lggr.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	brokers := cfg.KafkaBrokersList()
	interval := cfg.AutomationIntervalDuration()
	g, gctx := errgroup.WithContext(ctx)
	jobs := 0

	if len(brokers) > 0 && cfg.LokiURL != "" {
		lc := loki.NewClient(cfg.LokiURL, nil)
		c := consumer.New(brokers, cfg.TelemetryKafkaTopic, cfg.KafkaGroupID, func(ctx context.Context, msg kafka.Message) error {
			pushCtx, cancel := context.WithTimeout(ctx, lokiPushTimeout)
			defer cancel()
			return lc.PushEventJSON(pushCtx, msg.Value)
		}, lggr.Named("telemetry"))
		g.Go(func() error { return c.Run(gctx) })
		jobs++
		lggr.Infow("pushing telemetry to loki", "topic", cfg.TelemetryKafkaTopic, "loki", cfg.LokiURL)
	}

	needsDB := (len(brokers) > 0 && cfg.ActionsKafkaTopic != "") || interval > 0
	if needsDB {
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for action delivery and rule sweeps")
		}
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer conn.Close()

		rules := automationrepo.NewPostgresRepository(conn)
		hooks := notification.NewWebhookClient()
		hooks.AllowPrivate = cfg.WebhookAllowPrivate
		runner := actions.NewRunner(notification.NewEmailClient(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom),
			hooks, notification.NewService(notifrepo.NewPostgresRepository(conn)), lggr)

		var chainQueue automationservice.ChainQueue
		if len(brokers) > 0 && cfg.ActionsKafkaTopic != "" {
			h := queue.NewHandler(runner, rules, lggr)
			c := consumer.New(brokers, cfg.ActionsKafkaTopic, cfg.KafkaGroupID+"-actions", h.Handle, lggr.Named("actions"))
			g.Go(func() error { return c.Run(gctx) })
			jobs++

			pub := producer.NewKafkaProducer(brokers, cfg.ActionsKafkaTopic)
			defer pub.Close()
			chainQueue = queue.New(pub)
			lggr.Infow("delivering action chains", "topic", cfg.ActionsKafkaTopic)
		}

		if interval > 0 {
			svc, err := sweepService(ctx, conn, rules, runner, chainQueue, lggr)
			if err != nil {
				return err
			}
			g.Go(func() error {
				sweep(gctx, svc, interval, lggr.Named("sweep"))
				return nil
			})
			jobs++
			lggr.Infow("sweeping automation rules", "interval", interval.String())
		}
	}

	if jobs == 0 {
		return errors.New("nothing to do: set KAFKA_BROKERS with LOKI_URL or ACTIONS_KAFKA_TOPIC, or AUTOMATION_INTERVAL")
	}
	err = g.Wait()
	lggr.Infow("stopped")
	return err
}

func sweepService(ctx context.Context, conn *sql.DB, rules *automationrepo.PostgresRepository, runner *actions.Runner,
	chainQueue automationservice.ChainQueue, lggr logger.Logger) (*automationservice.Service, error) {
	evaluator, err := engine.NewOPAEvaluator(ctx, lggr)
	if err != nil {
		return nil, fmt.Errorf("policy engine: %w", err)
	}
	datasets := datasetservice.NewService(datasetrepo.NewPostgresRepository(conn), nil, nil, telemetry.Noop{}, lggr)
	return automationservice.NewService(automationservice.Deps{
		Repo:      rules,
		Source:    datasetservice.PointSource{Service: datasets},
		Evaluator: evaluator,
		Runner:    runner,
		Queue:     chainQueue,
		Audit:     audit.NewLogger(auditrepo.NewPostgresRepository(conn), nil, lggr.Named("audit")),
		Logger:    lggr,
	}), nil
}

// sweep evaluates all enabled rules once per interval until ctx is done.
func sweep(ctx context.Context, svc *automationservice.Service, interval time.Duration, lggr logger.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			execs, err := svc.EvaluateAll(ctx)
			if err != nil {
				lggr.Errorw("sweep failed", "err", err)
				continue
			}
			triggered := 0
			for _, e := range execs {
				if e.Triggered {
					triggered++
				}
			}
			lggr.Infow("sweep done", "evaluated", len(execs), "triggered", triggered)
		}
	}
}
