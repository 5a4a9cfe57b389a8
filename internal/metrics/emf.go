// Package metrics emits pipeline metrics as Embedded Metric Format (EMF)
// JSON lines. Each flush writes one self-describing line that log
// collectors can turn into metrics without an agent or API calls.
package metrics

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Standard metric units.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitBytes        = "Bytes"
	UnitNone         = "None"
)

// EnabledEnv set to "1" or "true" turns metric emission on.
const EnabledEnv = "DRAWFAST_METRICS"

type metricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

type emfDirective struct {
	Timestamp         int64      `json:"Timestamp"`
	CloudWatchMetrics []cwMetric `json:"CloudWatchMetrics"`
}

type cwMetric struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []metricDef `json:"Metrics"`
}

var (
	outMu   sync.Mutex
	out     io.Writer = os.Stdout
	enabled           = envEnabled()
)

func envEnabled() bool {
	v := os.Getenv(EnabledEnv)
	return v == "1" || v == "true"
}

// SetOutput redirects metric lines to w and enables emission. It returns a
// function restoring the previous state.
func SetOutput(w io.Writer) (restore func()) {
	outMu.Lock()
	prevOut, prevEnabled := out, enabled
	out, enabled = w, true
	outMu.Unlock()
	return func() {
		outMu.Lock()
		out, enabled = prevOut, prevEnabled
		outMu.Unlock()
	}
}

// SetEnabled turns emission on or off without changing the output.
func SetEnabled(on bool) {
	outMu.Lock()
	enabled = on
	outMu.Unlock()
}

// Enabled reports whether Flush writes anything.
func Enabled() bool {
	outMu.Lock()
	defer outMu.Unlock()
	return enabled
}

// Recorder accumulates dimensions, metrics and properties for one flush.
// It is not safe for concurrent use; create one per operation.
type Recorder struct {
	namespace  string
	dimensions map[string]string
	metrics    map[string]metricDef
	values     map[string]any
	properties map[string]any
}

// New creates a Recorder for the given namespace.
func New(namespace string) *Recorder {
	return &Recorder{
		namespace:  namespace,
		dimensions: make(map[string]string),
		metrics:    make(map[string]metricDef),
		values:     make(map[string]any),
		properties: make(map[string]any),
	}
}

// Dimension adds a dimension key-value pair.
func (r *Recorder) Dimension(key, value string) *Recorder {
	r.dimensions[key] = value
	return r
}

// Metric records a named metric value with a unit.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	r.metrics[name] = metricDef{Name: name, Unit: unit}
	r.values[name] = value
	return r
}

// Count records a count metric with value 1.
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, 1, UnitCount)
}

// Property adds a non-metric field.
func (r *Recorder) Property(key string, value any) *Recorder {
	r.properties[key] = value
	return r
}

// Flush writes the document as a single JSON line. Nothing is written when
// emission is disabled or no metric was recorded.
func (r *Recorder) Flush() {
	if len(r.metrics) == 0 {
		return
	}
	outMu.Lock()
	defer outMu.Unlock()
	if !enabled {
		return
	}

	names := make([]string, 0, len(r.metrics))
	for k := range r.metrics {
		names = append(names, k)
	}
	sort.Strings(names)
	defs := make([]metricDef, 0, len(names))
	for _, k := range names {
		defs = append(defs, r.metrics[k])
	}

	dimKeys := make([]string, 0, len(r.dimensions))
	for k := range r.dimensions {
		dimKeys = append(dimKeys, k)
	}
	sort.Strings(dimKeys)

	doc := make(map[string]any, 1+len(r.dimensions)+len(r.values)+len(r.properties))
	doc["_aws"] = emfDirective{
		Timestamp: time.Now().UnixMilli(),
		CloudWatchMetrics: []cwMetric{{
			Namespace:  r.namespace,
			Dimensions: [][]string{dimKeys},
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

	data, err := json.Marshal(doc)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal metrics")
		return
	}
	data = append(data, '\n')
	if _, err := out.Write(data); err != nil {
		log.Warn().Err(err).Msg("Failed to write metrics")
	}
}
