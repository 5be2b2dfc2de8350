package telemetry

import (
	"math"
	"sort"
	"time"
)

// CalibrationTable resolves the current-to-power calibration factor for a
// device. Factors vary by device family.
type CalibrationTable interface {
	FactorFor(deviceID string) float64
}

// HourlyEnergy is one direct-method energy figure for a device hour.
type HourlyEnergy struct {
	DeviceID string
	Date     time.Time
	Hour     int
	KWh      float64
}

// DayResult carries the decoded energy for one device-day together with the
// data-quality tallies accumulated along the way.
type DayResult struct {
	Energy           []HourlyEnergy
	DroppedTokens    int
	DiscardedBuckets int
}

// ComputeDay runs the full decode for one device-day payload: parse the
// tokens, build spans, distribute each span across hour buckets, and sum the
// per-hour energy as K * current * overlap/3600 / 1000 kWh with K from the
// calibration table. Hour totals are rounded to 6 decimals; hours whose total
// is not positive are omitted. Output is ordered by hour.
func ComputeDay(deviceID string, date time.Time, payload string, calibration CalibrationTable) DayResult {
	measurements, dropped := ParsePayload(payload)
	spans := BuildSpans(measurements)
	factor := calibration.FactorFor(deviceID)

	hourKWh := make(map[int]float64)
	discarded := 0
	for _, span := range spans {
		contributions, d := DistributeHours(span)
		discarded += d
		for _, c := range contributions {
			hourKWh[c.Hour] += factor * c.Current * c.OverlapSec / secondsPerHour / 1000
		}
	}

	hours := make([]int, 0, len(hourKWh))
	for h := range hourKWh {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	energy := make([]HourlyEnergy, 0, len(hours))
	for _, h := range hours {
		kwh := round6(hourKWh[h])
		if kwh <= 0 {
			continue
		}
		energy = append(energy, HourlyEnergy{
			DeviceID: deviceID,
			Date:     date,
			Hour:     h,
			KWh:      kwh,
		})
	}

	return DayResult{
		Energy:           energy,
		DroppedTokens:    dropped,
		DiscardedBuckets: discarded,
	}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
