// Package main is the entry point for the harvest API server.
//
// It loads configuration, opens the database pool, wires the harvest handler
// with its history log, event publisher, and metrics collector, and serves the
// chi router either as a plain HTTP server or behind AWS Lambda.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"caneharvest/internal/api/handlers"
	"caneharvest/internal/config"
	"caneharvest/internal/core"
	"caneharvest/internal/db"
	"caneharvest/internal/history"
	"caneharvest/internal/insights"
	"caneharvest/internal/metrics"
	"caneharvest/internal/queue"
	"caneharvest/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// components are the collaborators of the harvest handler that talk to the
// outside world.
type components struct {
	Repo      *db.HarvestRepository
	History   *history.Log
	Publisher handlers.EventPublisher
	Metrics   telemetry.Collector
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("harvest API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"timezone", cfg.Database.Timezone,
	)

	ctx := context.Background()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		pool.Close()
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}

	comp := components{
		Repo: db.NewHarvestRepository(pool, db.BreakerSettings{
			MaxFailures: cfg.Database.BreakerMaxFailures,
			Timeout:     cfg.Database.BreakerTimeout,
		}, logger),
		History:   history.NewLog(cfg.History.FilePath, logger),
		Publisher: queue.NewHarvestPublisher(newSQSClient(awsCfg, cfg.AWS), cfg.AWS, logger),
		Metrics:   telemetry.NopCollector{},
	}
	if cfg.Observability.EnableMetrics {
		comp.Metrics = telemetry.NewCloudWatchCollector(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
	}

	srv, err := buildServer(cfg, logger, comp)
	if err != nil {
		pool.Close()
		return err
	}
	srv.ShutdownHooks = append(srv.ShutdownHooks, func(context.Context) error {
		pool.Close()
		return nil
	})

	if isLambdaEnvironment() {
		logger.Info("running in Lambda mode")
		lambda.Start(core.NewLambdaAdapter(srv.Handler()).Handle)
		return nil
	}

	return runHTTPServer(srv, cfg, logger)
}

// buildServer assembles the chassis and mounts the harvest routes.
func buildServer(cfg *config.Config, logger *slog.Logger, comp components) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	calc, err := metrics.NewCalculator(cfg.Insights.Precision)
	if err != nil {
		return nil, fmt.Errorf("creating calculator: %w", err)
	}
	engine := insights.NewAggregator(insights.NewRegistry(cfg.Insights.Thresholds), logger)

	harvestHandler := handlers.NewHarvestHandler(
		comp.Repo,
		comp.History,
		comp.Publisher,
		engine,
		calc,
		srv.Validator,
		logger,
		comp.Metrics,
		handlers.WithLocation(cfg.Database.Location()),
	)

	srv.Metrics = comp.Metrics
	srv.HealthProbes = append(srv.HealthProbes,
		core.HealthProbeFunc{ProbeName: "database", Fn: comp.Repo.Ping},
		core.HealthProbeFunc{ProbeName: "history", Fn: comp.History.Check},
	)
	srv.RouteRegistrars = append(srv.RouteRegistrars, harvestHandler.RegisterRoutes)
	srv.MountRoutes()

	logger.Info("harvest routes mounted",
		"evaluators", engine.Names(),
		"precision", cfg.Insights.Precision,
		"history_file", comp.History.Path(),
	)
	return srv, nil
}

// newPool opens and verifies the Postgres connection pool.
func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// newSQSClient builds the SQS client, honouring AWS_ENDPOINT_URL for LocalStack.
func newSQSClient(awsCfg aws.Config, cfg config.AWSConfig) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer serves until SIGINT/SIGTERM, then shuts down gracefully.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := newHTTPServer(":"+cfg.Server.Port, srv.Handler())
	return serve(ctx, httpServer, srv, logger)
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// serve runs httpServer until ctx is cancelled or the listener fails, then
// drains in-flight requests and runs the server's shutdown hooks.
func serve(ctx context.Context, httpServer *http.Server, srv *core.Server, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("server stopped cleanly")
		return nil
	})

	return g.Wait()
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
