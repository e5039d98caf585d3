// Fiscal engine server — classifies spending queries, plans and executes
// federated data collection, detects anomalies, and serves results plus
// progress streams over HTTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/transparencia-br/fiscal/pkg/analyzer"
	"github.com/transparencia-br/fiscal/pkg/api"
	"github.com/transparencia-br/fiscal/pkg/apiclient"
	"github.com/transparencia-br/fiscal/pkg/config"
	"github.com/transparencia-br/fiscal/pkg/federation"
	"github.com/transparencia-br/fiscal/pkg/metrics"
	"github.com/transparencia-br/fiscal/pkg/orchestrator"
	"github.com/transparencia-br/fiscal/pkg/progress"
	"github.com/transparencia-br/fiscal/pkg/queue"
	"github.com/transparencia-br/fiscal/pkg/registry"
	"github.com/transparencia-br/fiscal/pkg/resilience"
	"github.com/transparencia-br/fiscal/pkg/storage"
	"github.com/transparencia-br/fiscal/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if getEnv("LOG_LEVEL", "") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func main() {
	configPath := flag.String("config",
		getEnv("FISCAL_CONFIG", "./deploy/fiscal.yaml"),
		"Path to the engine configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file, continuing with existing environment")
	}
	logger := setupLogger()
	logger.Info("starting fiscal", "version", version.Full(), "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	reg, err := registry.New(cfg.RegistryEndpoints(), nil)
	if err != nil {
		logger.Error("endpoint catalog invalid", "error", err)
		os.Exit(1)
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	guards := resilience.NewRegistry(resilience.Config{
		Retry: resilience.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseBackoff: cfg.Retry.BaseBackoff.Std(),
			MaxBackoff:  cfg.Retry.MaxBackoff.Std(),
		},
		Circuit: resilience.CircuitConfig{
			FailureThreshold: cfg.Circuit.FailureThreshold,
			Cooldown:         cfg.Circuit.Cooldown.Std(),
		},
	}, m)
	defer guards.Teardown()

	executor := federation.NewExecutor(reg, guards, buildClients(cfg), federation.Config{
		MaxInFlightStages:        cfg.Executor.MaxInFlightStages,
		MaxInFlightPerEndpoint:   cfg.Executor.MaxInFlightPerEndpoint,
		DefaultStageTimeout:      cfg.Executor.DefaultStageTimeout.Std(),
		DefaultInvocationTimeout: cfg.Executor.DefaultInvocationTimeout.Std(),
	}, m, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Registry:  reg,
		Executor:  executor,
		Analyzers: analyzer.NewRunner(analyzer.DefaultSet(), cfg.Analyzer, m, logger),
		ProgressCfg: progress.Config{
			BufferSize: cfg.Progress.BufferSize,
			SendWait:   cfg.Progress.SendWait.Std(),
		},
		Metrics:              m,
		Logger:               logger,
		DefaultStageEstimate: cfg.Executor.DefaultStageEstimate.Std(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *storage.Client
	if getEnv("FISCAL_DISABLE_DB", "") == "" {
		store, err = storage.NewClient(ctx, cfg.Database)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("closing database", "error", err)
			}
		}()
		logger.Info("connected to PostgreSQL")
	} else {
		logger.Warn("persistence disabled by FISCAL_DISABLE_DB")
	}

	var poolStore queue.Store
	if store != nil {
		poolStore = store
	}
	pool := queue.NewPool(orch, poolStore, queue.Config{
		Workers:     cfg.Queue.Workers,
		MaxQueueLen: cfg.Queue.MaxQueueLen,
	}, logger)
	pool.Start(ctx)
	defer pool.Stop()

	server := api.NewServer(orch, pool, store, m, promReg, cfg.Server, cfg.Progress, logger)
	if err := server.Run(ctx); err != nil {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// buildClients constructs one HTTP capability client per catalog endpoint.
// API keys are injected as headers from the environment and never logged.
func buildClients(cfg *config.Config) federation.StaticClients {
	clients := make(federation.StaticClients, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		var opts []apiclient.HTTPOption
		if ep.APIKeyEnv != "" {
			if key := os.Getenv(ep.APIKeyEnv); key != "" {
				header := ep.APIKeyHeader
				if header == "" {
					header = "Authorization"
				}
				opts = append(opts, apiclient.WithHeaders(map[string]string{header: key}))
			} else {
				slog.Warn("endpoint api key not set", "endpoint", ep.ID, "env", ep.APIKeyEnv)
			}
		}
		clients[ep.ID] = apiclient.NewHTTPClient(ep.ID, ep.BaseURL, opts...)
	}
	return clients
}
