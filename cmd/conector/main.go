// Package main provides the conector binary: it watches an inbox directory
// for article files and submits them to the pipeline's /procesar_articulo
// endpoint, with retry/backoff on transient failures and an error bin for
// terminal rejections.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const appName = "conector"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Article file connector",
		Long: `Conector watches an inbox directory for article JSON files (plain or
gzip-compressed), posts each to the pipeline, and sorts the files into
processed/ or errors/ depending on the outcome.

Transient pipeline failures (5xx, timeouts, connection errors) retry with
exponential backoff; 429 responses honor the server's retry_after; 4xx
responses are terminal and move the file to the error bin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.InboxDir, "inbox", "./inbox", "Directory watched for article files")
	cmd.Flags().StringVar(&cfg.Pattern, "pattern", "**/*.json{,.gz}", "Glob pattern for article files")
	cmd.Flags().StringVar(&cfg.PipelineURL, "pipeline-url", "http://localhost:8080", "Pipeline base URL")
	cmd.Flags().IntVar(&cfg.MaxRetries, "max-retries", 5, "Retries for transient submission failures")
	cmd.Flags().DurationVar(&cfg.BackoffBase, "backoff", time.Second, "Initial retry backoff")
	cmd.Flags().DurationVar(&cfg.Debounce, "debounce", 500*time.Millisecond, "Delay before reading a changed file")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	return cmd
}

func run(cfg Config) error {
	_ = godotenv.Load()
	if url := os.Getenv("PIPELINE_URL"); url != "" {
		cfg.PipelineURL = url
	}

	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connector, err := NewConnector(cfg, logger)
	if err != nil {
		return fmt.Errorf("create connector: %w", err)
	}
	defer connector.Close()

	logger.Info("connector started",
		"inbox", cfg.InboxDir,
		"pattern", cfg.Pattern,
		"pipeline", cfg.PipelineURL)
	return connector.Run(ctx)
}
