package pipeline

import (
	"sort"

	"k8s.io/klog/v2"

	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/metrics"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/types"
)

// Consolidate merges direct and indirect records into the final dataset.
// When both methods carry a value for the same (device, date, hour), the
// direct record wins: indirect data is a fallback, and keeping both would
// double-count the hour's energy. Shadowed indirect records are counted and
// logged. Output is sorted by unit, date, hour, method, device.
func Consolidate(direct, indirect []types.ConsumptionRecord) []types.ConsumptionRecord {
	covered := make(map[types.HourKey]struct{}, len(direct))
	out := make([]types.ConsumptionRecord, 0, len(direct)+len(indirect))
	for _, r := range direct {
		covered[r.Key()] = struct{}{}
		out = append(out, r)
	}

	shadowed := 0
	for _, r := range indirect {
		if _, dup := covered[r.Key()]; dup {
			shadowed++
			continue
		}
		out = append(out, r)
	}
	if shadowed > 0 {
		metrics.ShadowedIndirect.Add(float64(shadowed))
		klog.InfoS("Dropped indirect records shadowed by direct data", "count", shadowed)
	}

	sortRecords(out)
	return out
}

func sortRecords(records []types.ConsumptionRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.UnitID != b.UnitID {
			return a.UnitID < b.UnitID
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.DeviceID < b.DeviceID
	})
}
