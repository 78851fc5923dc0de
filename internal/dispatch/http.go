package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HTTPTransport triggers the pipeline with a synchronous POST per asset.
// Any 2xx status counts as accepted; everything else is that asset's failure.
type HTTPTransport struct {
	httpClient *http.Client
	endpoint   string
	authToken  string // bearer token, empty sends no Authorization header
}

// Compile-time interface check.
var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates an HTTPTransport for the given endpoint. The
// per-request deadline comes from the context the Dispatcher passes in, so
// the client itself carries no timeout.
func NewHTTPTransport(endpoint, authToken string) *HTTPTransport {
	return &HTTPTransport{
		httpClient: &http.Client{},
		endpoint:   endpoint,
		authToken:  authToken,
	}
}

// Send posts the trigger payload and checks for a 2xx response.
func (t *HTTPTransport) Send(ctx context.Context, trigger Trigger) error {
	payload, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("marshal trigger: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.authToken)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", t.endpoint, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	log.Debug().
		Int("statusCode", resp.StatusCode).
		Str("file", trigger.FileName).
		Msg("Pipeline-start response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 300))
	}
	return nil
}

// truncate shortens s to at most n characters for log/error inclusion.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
