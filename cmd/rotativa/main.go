// Package main provides the rotativa binary entry point: the news processing
// pipeline service (HTTP surface, four-phase extraction chain, job tracker,
// and monitoring).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/prensadata/rotativa/llm/providers"

	"github.com/prensadata/rotativa/alerts"
	"github.com/prensadata/rotativa/breaker"
	"github.com/prensadata/rotativa/config"
	"github.com/prensadata/rotativa/datastore"
	"github.com/prensadata/rotativa/events"
	"github.com/prensadata/rotativa/health"
	"github.com/prensadata/rotativa/jobs"
	"github.com/prensadata/rotativa/llm"
	"github.com/prensadata/rotativa/metrics"
	"github.com/prensadata/rotativa/pipeline"
	"github.com/prensadata/rotativa/server"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "rotativa"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "News processing pipeline",
		Long: `Rotativa ingests news articles, runs them through a four-phase
LLM extraction chain (triage, elements, quotes, normalization), and persists
the extracted facts, entities, quotes, and quantitative data.

Requests dispatch synchronously or asynchronously by payload size; job
status, health, metrics, and alerting are exposed over the same HTTP surface.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func run(configPath, logLevel string) error {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	collector := metrics.NewCollector()

	llmBreaker := breaker.New("llm", breaker.Config{
		Failures: cfg.LLM.BreakerFailures,
		OpenFor:  cfg.LLM.BreakerOpenFor,
	}, logger, breakerGauge(collector))

	llmClient, err := llm.NewClient(llm.Config{
		Provider: cfg.LLM.Provider,
		Endpoint: cfg.LLM.Endpoint,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	},
		llm.WithBreaker(llmBreaker),
		llm.WithRetryConfig(llm.RetryConfig{
			MaxRetries:        cfg.LLM.MaxRetries,
			BackoffBase:       cfg.LLM.BackoffBase,
			BackoffMultiplier: 2.0,
			MaxBackoff:        cfg.LLM.MaxBackoff,
		}),
		llm.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}

	storeBreaker := breaker.New("datastore", breaker.Config{
		Failures: cfg.Datastore.BreakerFailures,
		OpenFor:  cfg.Datastore.BreakerOpenFor,
	}, logger, breakerGauge(collector))

	store := datastore.NewClient(datastore.Config{
		URL:             cfg.Datastore.URL,
		Key:             cfg.Datastore.Key,
		Timeout:         cfg.Datastore.Timeout,
		PoolSize:        cfg.Datastore.PoolSize,
		PoolAcquireWait: cfg.Datastore.PoolAcquireWait,
	},
		datastore.WithBreaker(storeBreaker),
		datastore.WithLogger(logger),
		datastore.WithPoolWaitObserver(collector.ObservePoolWait),
	)

	publisher, err := events.Connect(cfg.Events.NATSURL, cfg.Events.Subject, logger)
	if err != nil {
		// The event feed is advisory; a broken broker must not block startup.
		logger.Warn("event feed unavailable, continuing without it", "error", err)
	}
	defer publisher.Close()

	controller := pipeline.New(pipeline.Deps{
		LLM:                 llmClient,
		Store:               store,
		Metrics:             collector,
		Logger:              logger,
		SimilarityThreshold: cfg.Datastore.SimilarityThreshold,
		MinContentLength:    cfg.Server.MinContentLength,
	}, pipeline.WithResultHook(publisher.PublishFragment))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker := jobs.NewTracker(cfg.Jobs.Retention,
		jobs.WithLogger(logger),
		jobs.WithActiveCallback(collector.SetActiveJobs),
	)
	tracker.StartSweeper(ctx, cfg.Jobs.SweepInterval)

	healthManager := health.NewManager()
	healthManager.Register("llm", health.BreakerCheck("llm", func() float64 {
		return breaker.StateValue(llmBreaker.State())
	}))
	healthManager.Register("datastore", health.BreakerCheck("datastore", func() float64 {
		return breaker.StateValue(storeBreaker.State())
	}))
	healthManager.Register("filesystem", health.FilesystemCheck(os.TempDir()))
	healthManager.Register("controller", health.ReadyCheck(func() bool { return controller != nil }))

	alertManager := alerts.NewManager(collector.Snapshot, alerts.DefaultRules(), cfg.Alerts.EvaluationInterval, logger)
	go alertManager.Run(ctx)

	serverCfg := cfg.Server
	serverCfg.WorkerCount = cfg.Server.EffectiveWorkerCount()
	srv := server.New(serverCfg, server.Deps{
		Processor: controller,
		Tracker:   tracker,
		Metrics:   collector,
		Health:    healthManager,
		Alerts:    alertManager,
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("pipeline started",
		"port", cfg.Server.Port,
		"workers", serverCfg.WorkerCount,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down, draining in-flight requests",
		"timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// breakerGauge wires breaker transitions into the circuit_breaker_state
// gauge.
func breakerGauge(collector *metrics.Collector) breaker.StateListener {
	return func(service string, _, to gobreaker.State) {
		collector.SetBreakerState(service, breaker.StateValue(to))
	}
}

func newLogger(level string) *slog.Logger {
	l := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
