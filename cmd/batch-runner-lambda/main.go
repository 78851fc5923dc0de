// Package main provides a Lambda entry point for the batch runner, invoked on
// a schedule (EventBridge rule) or manually. Each invocation performs one
// full run: list unprocessed assets, sample, dispatch, report.
//
// The invocation succeeds whenever the run reaches reporting, including
// degraded runs with per-asset failures; it fails only when listing fails and
// nothing was dispatched.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog/log"

	"github.com/dffilms/batch-runner/internal/boot"
	"github.com/dffilms/batch-runner/internal/config"
	"github.com/dffilms/batch-runner/internal/logging"
)

// Event is the invocation payload. All fields are optional; an empty event
// runs with the environment configuration.
type Event struct {
	// Count overrides COUNT for this invocation.
	Count *int `json:"count,omitempty"`
}

// Response summarizes the run for the invoker.
type Response struct {
	RunID       string   `json:"runId"`
	Status      string   `json:"status"`
	Attempted   int      `json:"attempted"`
	Succeeded   int      `json:"succeeded"`
	Failed      int      `json:"failed"`
	FailedFiles []string `json:"failedFiles,omitempty"`
}

// Configuration resolved at cold start.
var (
	awsCfg  aws.Config
	baseCfg *config.Config
)

func init() {
	initStart := time.Now()
	logging.InitJSON()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	awsCfg = boot.InitAWS()
	boot.LoadTriggerToken(awsCfg, cfg)
	baseCfg = cfg

	boot.LogStartup("batch-runner-lambda", cfg, time.Since(initStart))
}

// handler performs one batch run per invocation.
func handler(ctx context.Context, event Event) (Response, error) {
	cfg := *baseCfg
	if event.Count != nil {
		if *event.Count < 0 {
			return Response{}, fmt.Errorf("event count must be non-negative, got %d", *event.Count)
		}
		cfg.Count = *event.Count
		log.Info().Int("count", cfg.Count).Msg("Count overridden by event")
	}

	coordinator := boot.BuildCoordinator(awsCfg, &cfg)
	summary, err := coordinator.Run(ctx)
	if err != nil {
		return Response{RunID: summary.RunID, Status: string(summary.Status)},
			fmt.Errorf("run aborted during listing: %w", err)
	}

	resp := Response{
		RunID:     summary.RunID,
		Status:    string(summary.Status),
		Attempted: summary.Attempted,
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
	}
	for _, asset := range summary.FailedAssets {
		resp.FailedFiles = append(resp.FailedFiles, asset.Key)
	}
	return resp, nil
}

func main() {
	lambda.Start(handler)
}
