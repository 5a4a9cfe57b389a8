package metrics

import "time"

// Namespace groups every drawfast metric.
const Namespace = "Drawfast"

// Cycle outcomes.
const (
	OutcomeWritten   = "written"
	OutcomeEmpty     = "empty"
	OutcomeUnchanged = "unchanged"
	OutcomeStale     = "stale"
	OutcomeNoResult  = "no_result"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
	OutcomeGone      = "gone"
)

// Cycle describes one finished update cycle of a live region.
type Cycle struct {
	Region     string
	Number     uint64
	Outcome    string
	Total      time.Duration
	Raster     time.Duration
	Inference  time.Duration
	ImageBytes int
}

// RecordCycle emits the metrics of one cycle.
func RecordCycle(c Cycle) {
	r := New(Namespace).
		Dimension("Region", c.Region).
		Dimension("Outcome", c.Outcome).
		Metric("CycleMs", ms(c.Total), UnitMilliseconds).
		Property("cycle", c.Number)
	if c.Raster > 0 {
		r.Metric("RasterMs", ms(c.Raster), UnitMilliseconds)
	}
	if c.Inference > 0 {
		r.Metric("InferenceMs", ms(c.Inference), UnitMilliseconds)
	}
	if c.ImageBytes > 0 {
		r.Metric("ImageBytes", float64(c.ImageBytes), UnitBytes)
	}
	r.Flush()
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
