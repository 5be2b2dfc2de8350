package telemetry

import (
	"math"
)

const (
	secondsPerHour = 3600
	hoursPerDay    = 24
)

// HourContribution is the portion of a span falling inside one wall-clock
// hour of the day.
type HourContribution struct {
	Hour       int
	Current    float64
	OverlapSec float64
}

// DistributeHours splits a span across the calendar hours it touches. For
// each hour h in [floor(start/3600), floor((end-1)/3600)] the overlap with
// [h*3600, (h+1)*3600) is computed and clamped at zero. Hours at 24 or beyond
// arise only when a day's payload encodes more than 24h of measurement; those
// buckets are discarded and tallied in the second return value so callers can
// report the data-quality problem instead of losing it silently.
func DistributeHours(s Span) ([]HourContribution, int) {
	if s.EndSec <= s.StartSec {
		return nil, 0
	}

	firstHour := int(math.Floor(s.StartSec / secondsPerHour))
	lastHour := int(math.Floor((s.EndSec - 1) / secondsPerHour))

	contributions := make([]HourContribution, 0, lastHour-firstHour+1)
	discarded := 0
	for h := firstHour; h <= lastHour; h++ {
		overlap := math.Min(s.EndSec, float64(h+1)*secondsPerHour) - math.Max(s.StartSec, float64(h)*secondsPerHour)
		if overlap < 0 {
			overlap = 0
		}
		if h >= hoursPerDay {
			discarded++
			continue
		}
		contributions = append(contributions, HourContribution{
			Hour:       h,
			Current:    s.Current,
			OverlapSec: overlap,
		})
	}
	return contributions, discarded
}
