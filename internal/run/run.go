// Package run orchestrates one batch run: list unprocessed assets, sample,
// dispatch, and report. A run either aborts during listing (fatal) or always
// reaches reporting; per-item dispatch failures are data, not errors.
package run

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dffilms/batch-runner/internal/catalog"
	"github.com/dffilms/batch-runner/internal/dispatch"
	"github.com/dffilms/batch-runner/internal/metrics"
	"github.com/dffilms/batch-runner/internal/sampler"
)

// State is the coordinator's position in the run lifecycle.
type State string

// Run lifecycle states. AbortedListing is terminal and reachable only from
// Listing; every other path ends in Done.
const (
	StateIdle           State = "idle"
	StateListing        State = "listing"
	StateSampling       State = "sampling"
	StateDispatching    State = "dispatching"
	StateReporting      State = "reporting"
	StateDone           State = "done"
	StateAbortedListing State = "aborted_listing"
)

// Status is the run's overall outcome.
type Status string

const (
	// StatusOK means every dispatch succeeded (or there was nothing to do).
	StatusOK Status = "ok"
	// StatusDegraded means the run completed but some dispatches failed.
	StatusDegraded Status = "degraded"
	// StatusFailed means listing failed and nothing was dispatched.
	StatusFailed Status = "failed"
)

// Summary is the terminal artifact of one run.
type Summary struct {
	RunID        string
	Status       Status
	Attempted    int
	Succeeded    int
	Failed       int
	FailedAssets []catalog.AssetRef
	Duration     time.Duration
}

// Catalog lists the unprocessed assets for a run.
type Catalog interface {
	ListUnprocessed(ctx context.Context, bucket, folder string) ([]catalog.AssetRef, error)
}

// Dispatcher triggers the pipeline for each sampled asset.
type Dispatcher interface {
	Dispatch(ctx context.Context, assets []catalog.AssetRef) []dispatch.Outcome
}

// Coordinator drives a single run from listing through reporting.
type Coordinator struct {
	catalog    Catalog
	dispatcher Dispatcher
	bucket     string
	folder     string
	count      int

	state State
}

// New creates a Coordinator for one bucket/folder/count configuration.
func New(cat Catalog, disp Dispatcher, bucket, folder string, count int) *Coordinator {
	return &Coordinator{
		catalog:    cat,
		dispatcher: disp,
		bucket:     bucket,
		folder:     folder,
		count:      count,
		state:      StateIdle,
	}
}

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	return c.state
}

// Run executes the full run. The returned Summary is always non-nil; a
// non-nil error means listing failed and no dispatch was attempted. Per-item
// dispatch failures degrade the status but do not produce an error.
func (c *Coordinator) Run(ctx context.Context) (*Summary, error) {
	runID := "run-" + uuid.NewString()
	start := time.Now()

	logger := log.With().Str("runId", runID).Logger()
	logger.Info().
		Str("bucket", c.bucket).
		Str("folder", c.folder).
		Int("count", c.count).
		Msg("Run starting")

	c.state = StateListing
	unprocessed, err := c.catalog.ListUnprocessed(ctx, c.bucket, c.folder)
	if err != nil {
		c.state = StateAbortedListing
		logger.Error().Err(err).Msg("Listing failed, aborting run")
		summary := &Summary{RunID: runID, Status: StatusFailed, Duration: time.Since(start)}
		c.emitMetrics(summary)
		return summary, err
	}

	c.state = StateSampling
	sampled := sampler.Sample(unprocessed, c.count)
	if len(unprocessed) == 0 {
		logger.Info().Msg("No unprocessed assets left")
	}
	logger.Info().
		Int("unprocessed", len(unprocessed)).
		Int("sampled", len(sampled)).
		Msg("Sample drawn")

	c.state = StateDispatching
	outcomes := c.dispatcher.Dispatch(ctx, sampled)

	c.state = StateReporting
	summary := c.report(runID, outcomes, time.Since(start), logger)
	c.emitMetrics(summary)

	c.state = StateDone
	return summary, nil
}

// report aggregates per-item outcomes into the run summary and logs it.
func (c *Coordinator) report(runID string, outcomes []dispatch.Outcome, elapsed time.Duration, logger zerolog.Logger) *Summary {
	summary := &Summary{
		RunID:     runID,
		Status:    StatusOK,
		Attempted: len(outcomes),
		Duration:  elapsed,
	}

	for _, o := range outcomes {
		if o.OK {
			summary.Succeeded++
			continue
		}
		summary.Failed++
		summary.FailedAssets = append(summary.FailedAssets, o.Asset)
		logger.Warn().
			Str("key", o.Asset.Key).
			Str("reason", o.Reason).
			Msg("Asset dispatch failed")
	}
	if summary.Failed > 0 {
		summary.Status = StatusDegraded
	}

	logger.Info().
		Str("status", string(summary.Status)).
		Int("attempted", summary.Attempted).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Run complete")

	return summary
}

// emitMetrics flushes one EMF event with the run's counters.
func (c *Coordinator) emitMetrics(summary *Summary) {
	metrics.New("MediaBatchRunner").
		Dimension("Status", string(summary.Status)).
		Property("runId", summary.RunID).
		Metric("RunAttempted", float64(summary.Attempted), metrics.UnitCount).
		Metric("RunSucceeded", float64(summary.Succeeded), metrics.UnitCount).
		Metric("RunFailed", float64(summary.Failed), metrics.UnitCount).
		Metric("RunDurationMs", float64(summary.Duration.Milliseconds()), metrics.UnitMilliseconds).
		Flush()
}
