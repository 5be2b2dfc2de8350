package pipeline

import (
	"math"
	"sort"
	"strings"

	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/roster"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/types"
)

// AggregateUnits rolls consolidated device records up to (unit, date, hour).
// Each device in the hour cohort gets a composite presence weight: half from
// uniform presence (1/n devices) and half from its share of the cohort's
// consumption. The per-type mean weights cover DAC and DUT devices; a type
// absent from the hour yields 0, never a missing value.
func AggregateUnits(records []types.ConsumptionRecord) []types.UnitHourAggregate {
	type cohortKey struct {
		UnitID int64
		Date   string
		Hour   int
	}
	type cohort struct {
		deviceKWh map[string]float64
		methods   map[string]struct{}
	}

	cohorts := make(map[cohortKey]*cohort)
	for _, r := range records {
		key := cohortKey{UnitID: r.UnitID, Date: types.FormatDate(r.Date), Hour: r.Hour}
		c, ok := cohorts[key]
		if !ok {
			c = &cohort{deviceKWh: make(map[string]float64), methods: make(map[string]struct{})}
			cohorts[key] = c
		}
		c.deviceKWh[r.DeviceID] += r.ConsumptionKWh
		c.methods[r.Method] = struct{}{}
	}

	out := make([]types.UnitHourAggregate, 0, len(cohorts))
	for key, c := range cohorts {
		total := 0.0
		for _, kwh := range c.deviceKWh {
			total += kwh
		}
		n := len(c.deviceKWh)

		var dacSum, dutSum float64
		var dacCount, dutCount int
		for deviceID, kwh := range c.deviceKWh {
			weight := 0.5 / float64(n)
			if total > 0 {
				weight += 0.5 * kwh / total
			}
			switch roster.TypeOf(deviceID) {
			case roster.TypeDAC:
				dacSum += weight
				dacCount++
			case roster.TypeDUT:
				dutSum += weight
				dutCount++
			}
		}

		date, _ := types.ParseDate(key.Date)
		out = append(out, types.UnitHourAggregate{
			UnitID:        key.UnitID,
			Date:          date,
			Hour:          key.Hour,
			DevicesTotal:  n,
			DACCount:      dacCount,
			DUTCount:      dutCount,
			DACMeanWeight: meanWeight(dacSum, dacCount),
			DUTMeanWeight: meanWeight(dutSum, dutCount),
			TotalKWh:      round4(total),
			Methods:       joinMethods(c.methods),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.UnitID != b.UnitID {
			return a.UnitID < b.UnitID
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Hour < b.Hour
	})
	return out
}

// RollupByMethod produces the simple (unit, date, hour, method) totals with
// the distinct device count behind each figure.
func RollupByMethod(records []types.ConsumptionRecord) []types.UnitMethodRollup {
	type rollupKey struct {
		UnitID int64
		Date   string
		Hour   int
		Method string
	}
	type rollup struct {
		total   float64
		devices map[string]struct{}
	}

	groups := make(map[rollupKey]*rollup)
	for _, r := range records {
		key := rollupKey{UnitID: r.UnitID, Date: types.FormatDate(r.Date), Hour: r.Hour, Method: r.Method}
		g, ok := groups[key]
		if !ok {
			g = &rollup{devices: make(map[string]struct{})}
			groups[key] = g
		}
		g.total += r.ConsumptionKWh
		g.devices[r.DeviceID] = struct{}{}
	}

	out := make([]types.UnitMethodRollup, 0, len(groups))
	for key, g := range groups {
		date, _ := types.ParseDate(key.Date)
		out = append(out, types.UnitMethodRollup{
			UnitID:    key.UnitID,
			Date:      date,
			Hour:      key.Hour,
			Method:    key.Method,
			TotalKWh:  round4(g.total),
			DeviceQty: len(g.devices),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.UnitID != b.UnitID {
			return a.UnitID < b.UnitID
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		return a.Method < b.Method
	})
	return out
}

// UnitSummary is the per-unit digest logged after the rollup.
type UnitSummary struct {
	UnitID          int64
	TotalKWh        float64
	DaysWithData    int
	DirectRecords   int
	IndirectRecords int
	MeanDevices     float64
}

// Summarize digests the rollups per unit: total consumption, distinct days
// with data, record counts per method, and the mean device count per row.
func Summarize(rollups []types.UnitMethodRollup) []UnitSummary {
	type stats struct {
		total          float64
		days           map[string]struct{}
		direct         int
		indirect       int
		deviceQtySum   int
		deviceQtyCount int
	}

	byUnit := make(map[int64]*stats)
	for _, r := range rollups {
		s, ok := byUnit[r.UnitID]
		if !ok {
			s = &stats{days: make(map[string]struct{})}
			byUnit[r.UnitID] = s
		}
		s.total += r.TotalKWh
		s.days[types.FormatDate(r.Date)] = struct{}{}
		switch r.Method {
		case types.MethodDirect:
			s.direct++
		case types.MethodIndirect:
			s.indirect++
		}
		s.deviceQtySum += r.DeviceQty
		s.deviceQtyCount++
	}

	out := make([]UnitSummary, 0, len(byUnit))
	for unitID, s := range byUnit {
		mean := 0.0
		if s.deviceQtyCount > 0 {
			mean = float64(s.deviceQtySum) / float64(s.deviceQtyCount)
		}
		out = append(out, UnitSummary{
			UnitID:          unitID,
			TotalKWh:        round4(s.total),
			DaysWithData:    len(s.days),
			DirectRecords:   s.direct,
			IndirectRecords: s.indirect,
			MeanDevices:     math.Round(mean*100) / 100,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out
}

func meanWeight(sum float64, count int) float64 {
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func joinMethods(methods map[string]struct{}) string {
	names := make([]string, 0, len(methods))
	for m := range methods {
		names = append(names, m)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
