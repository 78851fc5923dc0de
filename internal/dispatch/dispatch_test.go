package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dffilms/batch-runner/internal/catalog"
)

// fakeTransport records sends and fails for configured file names.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []Trigger
	failFor  map[string]struct{}
	inFlight int
	maxSeen  int
	delay    time.Duration
}

func (f *fakeTransport) Send(ctx context.Context, trig Trigger) error {
	f.mu.Lock()
	f.sent = append(f.sent, trig)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			f.done()
			return ctx.Err()
		}
	}
	f.done()

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, fail := f.failFor[trig.FileName]; fail {
		return fmt.Errorf("endpoint returned 500")
	}
	return nil
}

func (f *fakeTransport) done() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func makeAssets(n int) []catalog.AssetRef {
	assets := make([]catalog.AssetRef, n)
	for i := range assets {
		assets[i] = catalog.AssetRef{
			Bucket: "bucket",
			Key:    fmt.Sprintf("uploads/clip-%02d.mp4", i),
			Name:   fmt.Sprintf("clip-%02d.mp4", i),
		}
	}
	return assets
}

func TestDispatch_OneOutcomePerAssetInOrder(t *testing.T) {
	transport := &fakeTransport{}
	d := New(transport, "", time.Second, 4)
	assets := makeAssets(10)

	outcomes := d.Dispatch(context.Background(), assets)

	if len(outcomes) != len(assets) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(assets))
	}
	for i, o := range outcomes {
		if o.Asset.Key != assets[i].Key {
			t.Errorf("outcome %d is for %s, want %s", i, o.Asset.Key, assets[i].Key)
		}
		if !o.OK {
			t.Errorf("outcome %d failed unexpectedly: %s", i, o.Reason)
		}
	}
}

func TestDispatch_FailureDoesNotAbortSiblings(t *testing.T) {
	transport := &fakeTransport{failFor: map[string]struct{}{
		"uploads/clip-01.mp4": {},
	}}
	d := New(transport, "", time.Second, 1)
	assets := makeAssets(4)

	outcomes := d.Dispatch(context.Background(), assets)

	if len(transport.sent) != 4 {
		t.Fatalf("only %d of 4 assets were attempted", len(transport.sent))
	}
	var failed int
	for _, o := range outcomes {
		if !o.OK {
			failed++
			if !strings.Contains(o.Reason, "500") {
				t.Errorf("failure reason %q does not carry endpoint detail", o.Reason)
			}
		}
	}
	if failed != 1 {
		t.Errorf("got %d failures, want exactly 1", failed)
	}
}

func TestDispatch_TimeoutIsPerItemFailure(t *testing.T) {
	transport := &fakeTransport{delay: 200 * time.Millisecond}
	d := New(transport, "", 20*time.Millisecond, 1)
	assets := makeAssets(2)

	outcomes := d.Dispatch(context.Background(), assets)

	for i, o := range outcomes {
		if o.OK {
			t.Errorf("outcome %d succeeded despite the timeout", i)
		}
		if !strings.Contains(o.Reason, "deadline") {
			t.Errorf("outcome %d reason %q is not a deadline failure", i, o.Reason)
		}
	}
	// Both items are still attempted: a per-item timeout is data, not an abort.
	if len(transport.sent) != 2 {
		t.Errorf("only %d of 2 assets were attempted", len(transport.sent))
	}
}

func TestDispatch_ConcurrencyBounded(t *testing.T) {
	transport := &fakeTransport{delay: 30 * time.Millisecond}
	d := New(transport, "", time.Second, 3)

	d.Dispatch(context.Background(), makeAssets(12))

	if transport.maxSeen > 3 {
		t.Errorf("observed %d concurrent sends, cap is 3", transport.maxSeen)
	}
}

func TestDispatch_CancelledContextStopsNewSends(t *testing.T) {
	transport := &fakeTransport{}
	d := New(transport, "", time.Second, 2)
	assets := makeAssets(5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes := d.Dispatch(ctx, assets)

	if len(outcomes) != 5 {
		t.Fatalf("got %d outcomes, want 5 (cancelled items still reported)", len(outcomes))
	}
	for i, o := range outcomes {
		if o.OK {
			t.Errorf("outcome %d succeeded after cancellation", i)
		}
		if o.Reason == "" {
			t.Errorf("outcome %d has no failure reason", i)
		}
	}
	if len(transport.sent) != 0 {
		t.Errorf("%d sends started after cancellation, want 0", len(transport.sent))
	}
}

func TestDispatch_SourceIncludedInTrigger(t *testing.T) {
	transport := &fakeTransport{}
	d := New(transport, "newsflare", time.Second, 1)

	d.Dispatch(context.Background(), makeAssets(1))

	if len(transport.sent) != 1 {
		t.Fatalf("got %d sends, want 1", len(transport.sent))
	}
	trig := transport.sent[0]
	if trig.Source != "newsflare" {
		t.Errorf("trigger source %q, want %q", trig.Source, "newsflare")
	}
	if trig.Bucket != "bucket" || trig.FileName != "uploads/clip-00.mp4" {
		t.Errorf("trigger payload %+v carries wrong identity", trig)
	}
}

func TestDispatch_EmptyInput(t *testing.T) {
	d := New(&fakeTransport{}, "", time.Second, 1)
	outcomes := d.Dispatch(context.Background(), nil)
	if len(outcomes) != 0 {
		t.Errorf("got %d outcomes for empty input, want 0", len(outcomes))
	}
}
