// Package main provides the batch-runner CLI: it samples a bounded number of
// not-yet-processed media assets from an S3 folder and triggers the ingestion
// pipeline once for each, reporting per-asset outcomes.
//
// Configuration is environment-driven (BUCKET, FOLDER, START_PIPELINE_URL,
// COUNT, ...); a few flags override the environment for operator convenience.
// Exit codes: 0 when the run reaches reporting (even with per-item failures),
// 1 when listing fails, 2 on invalid configuration.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dffilms/batch-runner/internal/boot"
	"github.com/dffilms/batch-runner/internal/config"
	"github.com/dffilms/batch-runner/internal/logging"
	"github.com/dffilms/batch-runner/internal/run"
)

// CLI flags
var (
	countFlag       int
	concurrencyFlag int
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "batch-runner",
	Short: "Sample unprocessed media assets and trigger the ingestion pipeline",
	Long: `Batch Runner lists media assets under a configured S3 folder, drops the
ones already handed to the pipeline (per the processed-marker store), draws a
random sample of the requested size, and sends one pipeline-start trigger per
sampled asset.

Per-asset trigger failures are reported in the run summary but never abort the
rest of the batch. Re-run with the same or adjusted --count to pick up assets
that failed or were never sampled.

Examples:
  COUNT=5 BUCKET=df-films-assets-euw1 FOLDER=newsflare/newsflare_upload \
    START_PIPELINE_URL=https://start-pipeline.example.run.app batch-runner
  batch-runner --count 10
  batch-runner --count 25 --concurrency 4`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVarP(&countFlag, "count", "n", -1, "Number of assets to sample (overrides COUNT)")
	rootCmd.Flags().IntVar(&concurrencyFlag, "concurrency", 0, "Max in-flight triggers (overrides DISPATCH_CONCURRENCY)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		os.Exit(2)
	}
	if countFlag >= 0 {
		cfg.Count = countFlag
	}
	if concurrencyFlag > 0 {
		cfg.DispatchConcurrency = concurrencyFlag
	}

	awsCfg := boot.InitAWS()
	boot.LoadTriggerToken(awsCfg, cfg)
	coordinator := boot.BuildCoordinator(awsCfg, cfg)
	boot.LogStartup("batch-runner", cfg, time.Since(initStart))

	// SIGINT/SIGTERM stop new dispatches; in-flight triggers finish or time out.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := coordinator.Run(ctx)
	if err != nil {
		os.Exit(1)
	}
	if summary.Status == run.StatusDegraded {
		log.Warn().
			Int("failed", summary.Failed).
			Msg("Run degraded, see failed assets above for manual retry")
	}
}
