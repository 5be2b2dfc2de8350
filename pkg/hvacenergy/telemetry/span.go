package telemetry

// Span is a contiguous interval of constant current within one day's
// telemetry sequence. Start and end are seconds elapsed since day start.
// Spans for a device-day are contiguous and non-overlapping: span i+1 starts
// where span i ends.
type Span struct {
	Index    int
	Current  float64
	StartSec float64
	EndSec   float64
}

// BuildSpans lays measurements end to end on a running cumulative clock,
// preserving input order. Order is load-bearing: the payload encodes elapsed
// time implicitly, so reordering measurements changes the result.
func BuildSpans(measurements []Measurement) []Span {
	spans := make([]Span, 0, len(measurements))
	var cumulative float64
	for i, m := range measurements {
		start := cumulative
		cumulative += m.DurationSec
		spans = append(spans, Span{
			Index:    i,
			Current:  m.Current,
			StartSec: start,
			EndSec:   cumulative,
		})
	}
	return spans
}
