// Package metrics emits CloudWatch Embedded Metrics Format (EMF) events for
// batch runs. EMF metrics are written as structured JSON to stdout, where
// CloudWatch extracts them from the job's log stream with no API calls and no
// added latency on the run itself.
//
// See: https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/CloudWatch_Embedded_Metric_Format_Specification.html
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Standard CloudWatch metric units used by the runner.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitNone         = "None"
)

// metricDef holds the name and unit for a single metric.
type metricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

// emfDirective is the _aws metadata block required by EMF.
type emfDirective struct {
	Timestamp         int64      `json:"Timestamp"`
	CloudWatchMetrics []cwMetric `json:"CloudWatchMetrics"`
}

// cwMetric defines a CloudWatch metric namespace, dimensions, and metric definitions.
type cwMetric struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []metricDef `json:"Metrics"`
}

// Recorder accumulates dimensions, metrics, and properties for a single EMF
// flush. It is NOT safe for concurrent use; create one per run.
type Recorder struct {
	out        io.Writer
	namespace  string
	dimensions map[string]string
	metrics    map[string]metricDef
	values     map[string]interface{}
	properties map[string]interface{}
}

// New creates an EMF Recorder with the given CloudWatch namespace, writing to
// stdout. A JobName dimension is added automatically from BATCH_JOB_NAME or,
// when running as a Lambda, AWS_LAMBDA_FUNCTION_NAME.
func New(namespace string) *Recorder {
	r := &Recorder{
		out:        os.Stdout,
		namespace:  namespace,
		dimensions: make(map[string]string),
		metrics:    make(map[string]metricDef),
		values:     make(map[string]interface{}),
		properties: make(map[string]interface{}),
	}
	if name := jobName(); name != "" {
		r.dimensions["JobName"] = name
	}
	return r
}

// jobName resolves the metric identity for this process.
func jobName() string {
	if v := os.Getenv("BATCH_JOB_NAME"); v != "" {
		return v
	}
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME")
}

// SetOutput redirects the EMF JSON to w. Used by tests.
func (r *Recorder) SetOutput(w io.Writer) *Recorder {
	r.out = w
	return r
}

// Dimension adds a dimension key-value pair. Dimensions are indexed in
// CloudWatch and appear as filterable attributes on the metric.
func (r *Recorder) Dimension(key, value string) *Recorder {
	r.dimensions[key] = value
	return r
}

// Metric records a named metric value with a CloudWatch unit.
// Use the Unit* constants.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	r.metrics[name] = metricDef{Name: name, Unit: unit}
	r.values[name] = value
	return r
}

// Count is a convenience for recording a count metric (value = 1).
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, 1, UnitCount)
}

// Property attaches a non-metric property to the EMF document. Properties are
// searchable in CloudWatch Logs Insights but not indexed as metrics.
func (r *Recorder) Property(key string, value interface{}) *Recorder {
	r.properties[key] = value
	return r
}

// Flush writes the accumulated EMF document as a single JSON line. A recorder
// with no metrics flushes nothing.
func (r *Recorder) Flush() {
	if len(r.metrics) == 0 {
		return
	}

	dimensionKeys := make([]string, 0, len(r.dimensions))
	for k := range r.dimensions {
		dimensionKeys = append(dimensionKeys, k)
	}

	defs := make([]metricDef, 0, len(r.metrics))
	for _, def := range r.metrics {
		defs = append(defs, def)
	}

	doc := make(map[string]interface{})
	doc["_aws"] = emfDirective{
		Timestamp: time.Now().UnixMilli(),
		CloudWatchMetrics: []cwMetric{{
			Namespace:  r.namespace,
			Dimensions: [][]string{dimensionKeys},
			Metrics:    defs,
		}},
	}
	for k, v := range r.dimensions {
		doc[k] = v
	}
	for k, v := range r.values {
		doc[k] = v
	}
	for k, v := range r.properties {
		doc[k] = v
	}

	line, err := json.Marshal(doc)
	if err != nil {
		// EMF is best-effort telemetry; never fail a run over it.
		fmt.Fprintf(os.Stderr, "emf marshal error: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, string(line))
}
