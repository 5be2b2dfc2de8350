package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistributeHoursSingleHour(t *testing.T) {
	contribs, discarded := DistributeHours(Span{Current: 5, StartSec: 0, EndSec: 1})

	assert.Equal(t, 0, discarded)
	assert.Equal(t, []HourContribution{{Hour: 0, Current: 5, OverlapSec: 1}}, contribs)
}

func TestDistributeHoursAcrossBoundary(t *testing.T) {
	// 30 minutes into hour 0, 90 minutes into hour 1.
	contribs, discarded := DistributeHours(Span{Current: 2, StartSec: 1800, EndSec: 9000})

	assert.Equal(t, 0, discarded)
	assert.Equal(t, []HourContribution{
		{Hour: 0, Current: 2, OverlapSec: 1800},
		{Hour: 1, Current: 2, OverlapSec: 3600},
		{Hour: 2, Current: 2, OverlapSec: 1800},
	}, contribs)
}

func TestDistributeHoursExactBoundary(t *testing.T) {
	// A span ending exactly at 3600 touches only hour 0.
	contribs, _ := DistributeHours(Span{Current: 1, StartSec: 0, EndSec: 3600})
	assert.Equal(t, []HourContribution{{Hour: 0, Current: 1, OverlapSec: 3600}}, contribs)

	// Starting exactly at 3600 touches only hour 1.
	contribs, _ = DistributeHours(Span{Current: 1, StartSec: 3600, EndSec: 3601})
	assert.Equal(t, []HourContribution{{Hour: 1, Current: 1, OverlapSec: 1}}, contribs)
}

func TestDistributeHoursOverlapConservation(t *testing.T) {
	spans := []Span{
		{Current: 1, StartSec: 0, EndSec: 86400},
		{Current: 1, StartSec: 123.5, EndSec: 9876.25},
		{Current: 1, StartSec: 3599, EndSec: 3601},
		{Current: 1, StartSec: 7200, EndSec: 7201},
	}
	for _, s := range spans {
		contribs, discarded := DistributeHours(s)
		assert.Equal(t, 0, discarded)

		var total float64
		for _, c := range contribs {
			assert.GreaterOrEqual(t, c.OverlapSec, 0.0)
			total += c.OverlapSec
		}
		assert.InDelta(t, s.EndSec-s.StartSec, total, 1e-9)
	}
}

func TestDistributeHoursBeyondDayDiscarded(t *testing.T) {
	// A span running from hour 23 into hour 25: the two buckets past the day
	// boundary are discarded and tallied.
	contribs, discarded := DistributeHours(Span{Current: 1, StartSec: 82800, EndSec: 93600})

	assert.Equal(t, 2, discarded)
	assert.Equal(t, []HourContribution{{Hour: 23, Current: 1, OverlapSec: 3600}}, contribs)
}

func TestDistributeHoursDegenerateSpan(t *testing.T) {
	contribs, discarded := DistributeHours(Span{Current: 1, StartSec: 100, EndSec: 100})
	assert.Empty(t, contribs)
	assert.Equal(t, 0, discarded)
}
