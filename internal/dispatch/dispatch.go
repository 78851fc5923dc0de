// Package dispatch sends one trigger request per sampled asset to the
// pipeline-start endpoint and records a per-asset outcome. Failures are
// independent: one bad dispatch never aborts its siblings, and no dispatch is
// retried within a run.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dffilms/batch-runner/internal/catalog"
)

// Trigger is the JSON body sent to the pipeline-start endpoint. The shape
// mirrors the payload the ingestion entry point already accepts.
type Trigger struct {
	Bucket   string `json:"bucket"`
	FileName string `json:"file_name"`
	Source   string `json:"source,omitempty"`
}

// Outcome records the result of one trigger attempt.
type Outcome struct {
	Asset    catalog.AssetRef
	OK       bool
	Reason   string // failure detail, empty on success
	Duration time.Duration
}

// Transport sends a single trigger. A nil error means the pipeline accepted
// the trigger; any error becomes that asset's failure reason.
type Transport interface {
	Send(ctx context.Context, t Trigger) error
}

// Dispatcher fans sampled assets out to a Transport through a bounded worker
// pool and returns one outcome per asset, in input order.
type Dispatcher struct {
	transport   Transport
	source      string
	timeout     time.Duration
	concurrency int
}

// New creates a Dispatcher. timeout bounds each individual send; concurrency
// caps in-flight sends (1 dispatches strictly in input order).
func New(transport Transport, source string, timeout time.Duration, concurrency int) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		transport:   transport,
		source:      source,
		timeout:     timeout,
		concurrency: concurrency,
	}
}

// Dispatch sends one trigger per asset and returns len(assets) outcomes,
// order-correspondent to the input. Once ctx is cancelled no new sends start;
// in-flight sends are left to finish or time out, and assets that never
// started are reported as failed without an attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, assets []catalog.AssetRef) []Outcome {
	outcomes := make([]Outcome, len(assets))
	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup

	for i, asset := range assets {
		if ctx.Err() != nil {
			outcomes[i] = Outcome{
				Asset:  asset,
				Reason: "not attempted: " + ctx.Err().Error(),
			}
			continue
		}

		select {
		case sem <- struct{}{}: // Acquire semaphore
		case <-ctx.Done():
			outcomes[i] = Outcome{
				Asset:  asset,
				Reason: "not attempted: " + ctx.Err().Error(),
			}
			continue
		}

		wg.Add(1)
		go func(idx int, a catalog.AssetRef) {
			defer wg.Done()
			defer func() { <-sem }() // Release semaphore
			outcomes[idx] = d.send(ctx, a)
		}(i, asset)
	}

	wg.Wait()
	return outcomes
}

// send performs a single bounded trigger attempt and builds its outcome.
func (d *Dispatcher) send(ctx context.Context, asset catalog.AssetRef) Outcome {
	trigger := Trigger{
		Bucket:   asset.Bucket,
		FileName: asset.Key,
		Source:   d.source,
	}

	log.Info().
		Str("key", asset.Key).
		Str("bucket", asset.Bucket).
		Msg("Dispatching asset to pipeline")

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.transport.Send(sendCtx, trigger)
	elapsed := time.Since(start)

	if err != nil {
		log.Warn().
			Err(err).
			Str("key", asset.Key).
			Dur("duration", elapsed).
			Msg("Dispatch failed")
		return Outcome{Asset: asset, Reason: err.Error(), Duration: elapsed}
	}

	log.Debug().
		Str("key", asset.Key).
		Dur("duration", elapsed).
		Msg("Dispatch succeeded")
	return Outcome{Asset: asset, OK: true, Duration: elapsed}
}
