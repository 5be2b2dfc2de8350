package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/config"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/roster"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/source"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/types"
)

type fakeTelemetrySource struct {
	mu       sync.Mutex
	rows     map[string][]source.TelemetryRow // by device version
	failures int                              // fail this many calls before succeeding
	calls    int
}

func (f *fakeTelemetrySource) DeviceDayPayloads(ctx context.Context, version string, start, end time.Time) ([]source.TelemetryRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient query failure")
	}
	return f.rows[version], nil
}

type fakeIndirectSource struct {
	mu    sync.Mutex
	rows  map[string][]source.IndirectRow // by device
	calls []string
}

func (f *fakeIndirectSource) DeviceConsumption(ctx context.Context, deviceID string, start, end time.Time) ([]source.IndirectRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, deviceID)
	return f.rows[deviceID], nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Calibration.DefaultFactor = 300
	cfg.Query.RetryDelay = time.Millisecond
	cfg.Query.Concurrency = 2
	return cfg
}

// testRoster builds two units with one DAC device each plus a DUT device
// that never has telemetry.
func testRoster() *roster.Roster {
	units := []roster.Unit{
		{ID: 302, Name: "unit-a", InstallDate: date(2025, 6, 1), AutomationStart: date(2025, 6, 30)},
		{ID: 895, Name: "unit-b", InstallDate: date(2025, 6, 5), AutomationStart: date(2025, 6, 25)},
	}
	assignments := []source.DeviceAssignment{
		{DeviceID: "DAC40324001", UnitID: 302},
		{DeviceID: "DAC40324002", UnitID: 895},
		{DeviceID: "DUT10231001", UnitID: 302},
	}
	return roster.Build(units, assignments)
}

func fullAvailability(r *roster.Roster, from, to time.Time) *AvailabilityIndex {
	var rows []source.AvailableDate
	for _, id := range r.Devices() {
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			rows = append(rows, source.AvailableDate{DeviceID: id, Date: d})
		}
	}
	return NewAvailabilityIndex(rows)
}

func TestPipelineDirectAndIndirect(t *testing.T) {
	r := testRoster()
	availability := fullAvailability(r, date(2025, 6, 1), date(2025, 6, 30))

	telemetrySrc := &fakeTelemetrySource{
		rows: map[string][]source.TelemetryRow{
			"DAC40324": {
				{DeviceID: "DAC40324001", Date: date(2025, 6, 9), Payload: "6*7200"},
				{DeviceID: "DAC40324002", Date: date(2025, 6, 10), Payload: "5*3600"},
			},
		},
	}
	indirectSrc := &fakeIndirectSource{
		rows: map[string][]source.IndirectRow{
			"DUT10231001": {
				{DeviceID: "DUT10231001", RecordedAt: time.Date(2025, 6, 9, 14, 0, 0, 0, time.UTC), ConsumptionKWh: 1.25},
			},
		},
	}

	p := New(testConfig(), telemetrySrc, indirectSrc, NewFilter(r.Windows, availability), r)
	records, err := p.Run(context.Background(), []string{"DAC40324"})
	require.NoError(t, err)

	byMethod := map[string]int{}
	for _, rec := range records {
		byMethod[rec.Method]++
	}
	assert.Equal(t, 3, byMethod[types.MethodDirect], "two hours for device 001 plus one for 002")
	assert.Equal(t, 1, byMethod[types.MethodIndirect])

	// Only the device with no direct rows was queried indirectly.
	assert.Equal(t, []string{"DUT10231001"}, indirectSrc.calls)

	// Indirect hour comes from the record timestamp.
	last := records[len(records)-1]
	for _, rec := range records {
		if rec.Method == types.MethodIndirect {
			last = rec
		}
	}
	assert.Equal(t, 14, last.Hour)
	assert.Equal(t, "DUT10231", last.DeviceVersion)
}

func TestPipelineFallbackCompleteness(t *testing.T) {
	r := testRoster()
	availability := fullAvailability(r, date(2025, 6, 1), date(2025, 6, 30))

	// Only device 001 has telemetry; 002 and the DUT must both be queued for
	// the indirect method even though 002's version produced direct rows.
	telemetrySrc := &fakeTelemetrySource{
		rows: map[string][]source.TelemetryRow{
			"DAC40324": {
				{DeviceID: "DAC40324001", Date: date(2025, 6, 9), Payload: "6*3600"},
			},
		},
	}
	indirectSrc := &fakeIndirectSource{rows: map[string][]source.IndirectRow{}}

	p := New(testConfig(), telemetrySrc, indirectSrc, NewFilter(r.Windows, availability), r)
	_, err := p.Run(context.Background(), []string{"DAC40324"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"DAC40324002", "DUT10231001"}, indirectSrc.calls)
}

func TestPipelineNoDirectDataIsTerminal(t *testing.T) {
	r := testRoster()
	availability := fullAvailability(r, date(2025, 6, 1), date(2025, 6, 30))

	telemetrySrc := &fakeTelemetrySource{rows: map[string][]source.TelemetryRow{}}
	indirectSrc := &fakeIndirectSource{rows: map[string][]source.IndirectRow{}}

	p := New(testConfig(), telemetrySrc, indirectSrc, NewFilter(r.Windows, availability), r)
	_, err := p.Run(context.Background(), []string{"DAC40324"})
	assert.ErrorIs(t, err, ErrNoConsumptionData)

	// Without direct data anywhere the indirect pass never runs.
	assert.Empty(t, indirectSrc.calls)
}

func TestPipelineRetriesTransientFailures(t *testing.T) {
	r := testRoster()
	availability := fullAvailability(r, date(2025, 6, 1), date(2025, 6, 30))

	telemetrySrc := &fakeTelemetrySource{
		failures: 2,
		rows: map[string][]source.TelemetryRow{
			"DAC40324": {
				{DeviceID: "DAC40324001", Date: date(2025, 6, 9), Payload: "6*3600"},
			},
		},
	}
	indirectSrc := &fakeIndirectSource{rows: map[string][]source.IndirectRow{}}

	p := New(testConfig(), telemetrySrc, indirectSrc, NewFilter(r.Windows, availability), r)
	records, err := p.Run(context.Background(), []string{"DAC40324"})
	require.NoError(t, err)
	assert.NotEmpty(t, records)
	assert.Equal(t, 3, telemetrySrc.calls)
}

func TestPipelineExhaustedRetriesFatal(t *testing.T) {
	r := testRoster()
	availability := fullAvailability(r, date(2025, 6, 1), date(2025, 6, 30))

	cfg := testConfig()
	cfg.Query.MaxRetries = 1
	telemetrySrc := &fakeTelemetrySource{failures: 10}
	indirectSrc := &fakeIndirectSource{rows: map[string][]source.IndirectRow{}}

	p := New(cfg, telemetrySrc, indirectSrc, NewFilter(r.Windows, availability), r)
	_, err := p.Run(context.Background(), []string{"DAC40324"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry query for version DAC40324")
}

func TestPipelineFiltersDirectRecords(t *testing.T) {
	r := testRoster()
	// Availability only on June 9: the June 10 payload must be filtered out.
	availability := NewAvailabilityIndex([]source.AvailableDate{
		{DeviceID: "DAC40324001", Date: date(2025, 6, 9)},
	})

	telemetrySrc := &fakeTelemetrySource{
		rows: map[string][]source.TelemetryRow{
			"DAC40324": {
				{DeviceID: "DAC40324001", Date: date(2025, 6, 9), Payload: "6*3600"},
				{DeviceID: "DAC40324001", Date: date(2025, 6, 10), Payload: "6*3600"},
			},
		},
	}
	indirectSrc := &fakeIndirectSource{rows: map[string][]source.IndirectRow{}}

	p := New(testConfig(), telemetrySrc, indirectSrc, NewFilter(r.Windows, availability), r)
	records, err := p.Run(context.Background(), []string{"DAC40324"})
	require.NoError(t, err)

	directDates := map[string]bool{}
	for _, rec := range records {
		if rec.Method == types.MethodDirect {
			directDates[types.FormatDate(rec.Date)] = true
		}
	}
	assert.Equal(t, map[string]bool{"2025-06-09": true}, directDates)
}

func TestConsolidatePrefersDirect(t *testing.T) {
	direct := []types.ConsumptionRecord{
		{UnitID: 302, DeviceID: "DAC1", Date: date(2025, 6, 9), Hour: 10, ConsumptionKWh: 1.0, Method: types.MethodDirect},
	}
	indirect := []types.ConsumptionRecord{
		{UnitID: 302, DeviceID: "DAC1", Date: date(2025, 6, 9), Hour: 10, ConsumptionKWh: 0.8, Method: types.MethodIndirect},
		{UnitID: 302, DeviceID: "DAC1", Date: date(2025, 6, 9), Hour: 11, ConsumptionKWh: 0.9, Method: types.MethodIndirect},
	}

	out := Consolidate(direct, indirect)
	require.Len(t, out, 2)
	assert.Equal(t, types.MethodDirect, out[0].Method)
	assert.Equal(t, 10, out[0].Hour)
	assert.Equal(t, types.MethodIndirect, out[1].Method)
	assert.Equal(t, 11, out[1].Hour)
}

func TestConsolidateSortOrder(t *testing.T) {
	records := []types.ConsumptionRecord{
		{UnitID: 895, DeviceID: "b", Date: date(2025, 6, 9), Hour: 3, Method: types.MethodDirect},
		{UnitID: 302, DeviceID: "a", Date: date(2025, 6, 10), Hour: 0, Method: types.MethodDirect},
		{UnitID: 302, DeviceID: "a", Date: date(2025, 6, 9), Hour: 5, Method: types.MethodDirect},
		{UnitID: 302, DeviceID: "a", Date: date(2025, 6, 9), Hour: 2, Method: types.MethodDirect},
	}

	out := Consolidate(records, nil)
	require.Len(t, out, 4)
	assert.Equal(t, int64(302), out[0].UnitID)
	assert.Equal(t, 2, out[0].Hour)
	assert.Equal(t, 5, out[1].Hour)
	assert.Equal(t, date(2025, 6, 10), out[2].Date)
	assert.Equal(t, int64(895), out[3].UnitID)
}
