// Package config loads and validates the batch runner's environment
// configuration. All validation happens before any AWS client is touched so
// that a misconfigured run fails fast without listing or dispatching anything.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Marker store backends.
const (
	MarkerStoreManifest = "manifest"
	MarkerStoreDynamo   = "dynamodb"
)

// Dispatch transports.
const (
	DispatchModeHTTP   = "http"
	DispatchModeLambda = "lambda"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultMediaExt        = ".mp4"
	DefaultDispatchTimeout = 60 * time.Second
	DefaultManifestName    = "processed.txt"
)

// Config holds one run's resolved configuration.
type Config struct {
	Bucket   string
	Folder   string // normalized to end with "/"
	Count    int
	Source   string // optional provenance tag included in trigger payloads
	MediaExt string // candidate extension filter, empty disables

	MarkerStore          string // "manifest" or "dynamodb"
	ProcessedManifestKey string // manifest mode only
	MarkerTable          string // dynamodb mode only

	DispatchMode             string // "http" or "lambda"
	StartPipelineURL         string // http mode only
	StartPipelineFunctionARN string // lambda mode only
	DispatchTimeout          time.Duration
	DispatchConcurrency      int

	TriggerAuthToken    string // bearer token for the trigger endpoint, may be empty
	TriggerAuthSSMParam string // SSM parameter holding the token, may be empty
}

// Load reads configuration from the environment, applies defaults, and
// validates it. Any returned error means the run must not start.
func Load() (*Config, error) {
	cfg := &Config{
		Bucket:                   os.Getenv("BUCKET"),
		Folder:                   os.Getenv("FOLDER"),
		Source:                   os.Getenv("SOURCE"),
		MarkerStore:              envOrDefault("MARKER_STORE", MarkerStoreManifest),
		ProcessedManifestKey:     os.Getenv("PROCESSED_MANIFEST_KEY"),
		MarkerTable:              os.Getenv("MARKER_TABLE"),
		DispatchMode:             envOrDefault("DISPATCH_MODE", DispatchModeHTTP),
		StartPipelineURL:         os.Getenv("START_PIPELINE_URL"),
		StartPipelineFunctionARN: os.Getenv("START_PIPELINE_FUNCTION_ARN"),
		TriggerAuthToken:         os.Getenv("TRIGGER_AUTH_TOKEN"),
		TriggerAuthSSMParam:      os.Getenv("TRIGGER_AUTH_SSM_PARAM"),
	}

	// MEDIA_EXT distinguishes "unset" (default filter) from explicitly empty
	// (filter disabled).
	if v, ok := os.LookupEnv("MEDIA_EXT"); ok {
		cfg.MediaExt = v
	} else {
		cfg.MediaExt = DefaultMediaExt
	}

	countStr := os.Getenv("COUNT")
	if countStr == "" {
		return nil, fmt.Errorf("COUNT is required")
	}
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return nil, fmt.Errorf("COUNT must be an integer: %q", countStr)
	}
	cfg.Count = count

	timeoutStr := os.Getenv("DISPATCH_TIMEOUT")
	if timeoutStr == "" {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	} else {
		d, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("DISPATCH_TIMEOUT must be a duration (e.g. 60s): %q", timeoutStr)
		}
		cfg.DispatchTimeout = d
	}

	concStr := os.Getenv("DISPATCH_CONCURRENCY")
	if concStr == "" {
		cfg.DispatchConcurrency = 1
	} else {
		n, err := strconv.Atoi(concStr)
		if err != nil {
			return nil, fmt.Errorf("DISPATCH_CONCURRENCY must be an integer: %q", concStr)
		}
		cfg.DispatchConcurrency = n
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// validate enforces the constraints that make a run startable.
func (c *Config) validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("BUCKET is required")
	}
	if c.Folder == "" {
		return fmt.Errorf("FOLDER is required")
	}
	if c.Count < 0 {
		return fmt.Errorf("COUNT must be non-negative, got %d", c.Count)
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("DISPATCH_TIMEOUT must be positive, got %s", c.DispatchTimeout)
	}
	if c.DispatchConcurrency < 1 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be at least 1, got %d", c.DispatchConcurrency)
	}

	switch c.MarkerStore {
	case MarkerStoreManifest:
	case MarkerStoreDynamo:
		if c.MarkerTable == "" {
			return fmt.Errorf("MARKER_TABLE is required when MARKER_STORE=dynamodb")
		}
	default:
		return fmt.Errorf("MARKER_STORE must be %q or %q, got %q",
			MarkerStoreManifest, MarkerStoreDynamo, c.MarkerStore)
	}

	switch c.DispatchMode {
	case DispatchModeHTTP:
		if c.StartPipelineURL == "" {
			return fmt.Errorf("START_PIPELINE_URL is required when DISPATCH_MODE=http")
		}
		u, err := url.Parse(c.StartPipelineURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("START_PIPELINE_URL is not a valid URL: %q", c.StartPipelineURL)
		}
	case DispatchModeLambda:
		if c.StartPipelineFunctionARN == "" {
			return fmt.Errorf("START_PIPELINE_FUNCTION_ARN is required when DISPATCH_MODE=lambda")
		}
	default:
		return fmt.Errorf("DISPATCH_MODE must be %q or %q, got %q",
			DispatchModeHTTP, DispatchModeLambda, c.DispatchMode)
	}

	return nil
}

// normalize applies derived defaults that depend on other fields.
func (c *Config) normalize() {
	if !strings.HasSuffix(c.Folder, "/") {
		c.Folder += "/"
	}
	if c.MarkerStore == MarkerStoreManifest && c.ProcessedManifestKey == "" {
		c.ProcessedManifestKey = c.Folder + DefaultManifestName
	}
}

func envOrDefault(envVar, defaultVal string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultVal
}
