// Command server runs the BizLens HTTP API and, when GRPC_HEALTH_ADDR is set, the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"bizlens/backend/internal/config"
	"bizlens/backend/internal/db"
	healthhandler "bizlens/backend/internal/health/handler"
	"bizlens/backend/internal/platform/logger"
	"bizlens/backend/internal/server"
	"bizlens/backend/internal/telemetry"
	"bizlens/backend/internal/telemetry/metrics"
	"bizlens/backend/internal/telemetry/otel"
)

const (
	version     = "1.0.0"
	serviceName = "bizlens-api"

	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	lggr, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = lggr.Sync() }()
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, otel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Version:     version,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer conn.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := build(ctx, cfg, conn, metrics.New(reg), otel.NewEventEmitter(providers.LoggerProvider), lggr)
	if err != nil {
		return err
	}
	defer a.close()

	router := server.NewRouter(a.routerDeps(cfg, reg))
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lggr.Infow("http server listening", "addr", cfg.HTTPAddr, "version", version)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		hs := healthhandler.NewServer(a.checker, lggr.Named("grpc_health"))
		grpcSrv := server.NewGRPCServer(server.Deps{Health: hs})
		g.Go(func() error {
			hs.Run(gctx)
			return nil
		})
		g.Go(func() error {
			lggr.Infow("grpc health listening", "addr", cfg.GRPCHealthAddr)
			return grpcSrv.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			grpcSrv.GracefulStop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		lggr.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// Let in-flight async emits finish before the exporters go away.
	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := providers.Shutdown(shutdownCtx); serr != nil {
		lggr.Warnw("otel shutdown", "err", serr)
	}
	lggr.Infow("server stopped")
	return err
}
