package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestRecorder_FlushOutput(t *testing.T) {
	t.Setenv("BATCH_JOB_NAME", "media-batch-runner")

	var buf bytes.Buffer
	rec := New("MediaBatchRunner").SetOutput(&buf)
	rec.Dimension("Status", "degraded")
	rec.Metric("RunAttempted", 5, UnitCount)
	rec.Metric("RunDurationMs", 1234.5, UnitMilliseconds)
	rec.Property("runId", "run-abc-123")
	rec.Flush()

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, buf.String())
	}

	awsDir, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if _, ok := awsDir["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}

	cwArr, ok := awsDir["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != "MediaBatchRunner" {
		t.Errorf("namespace %v, want MediaBatchRunner", cw["Namespace"])
	}

	metricDefs := cw["Metrics"].([]interface{})
	if len(metricDefs) != 2 {
		t.Errorf("got %d metric definitions, want 2", len(metricDefs))
	}

	// Dimension and metric values appear at the document root.
	if doc["Status"] != "degraded" {
		t.Errorf("Status dimension %v", doc["Status"])
	}
	if doc["JobName"] != "media-batch-runner" {
		t.Errorf("JobName dimension %v, want auto-filled from BATCH_JOB_NAME", doc["JobName"])
	}
	if doc["RunAttempted"].(float64) != 5 {
		t.Errorf("RunAttempted %v", doc["RunAttempted"])
	}
	if doc["runId"] != "run-abc-123" {
		t.Errorf("runId property %v", doc["runId"])
	}
}

func TestRecorder_NoMetricsNoOutput(t *testing.T) {
	var buf bytes.Buffer
	New("MediaBatchRunner").SetOutput(&buf).Dimension("Status", "ok").Flush()
	if buf.Len() != 0 {
		t.Errorf("recorder with no metrics wrote output: %s", buf.String())
	}
}

func TestRecorder_Count(t *testing.T) {
	var buf bytes.Buffer
	rec := New("MediaBatchRunner").SetOutput(&buf)
	rec.Count("RunStarted")
	rec.Flush()

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc["RunStarted"].(float64) != 1 {
		t.Errorf("RunStarted %v, want 1", doc["RunStarted"])
	}
}
