package source

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTelemetryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTelemetry("DAC40324001", "DAC40324", date(2025, 6, 9), "5,3*2"))
	require.NoError(t, store.InsertTelemetry("DAC40324002", "DAC40324", date(2025, 6, 10), "7*60"))
	require.NoError(t, store.InsertTelemetry("DAC30112001", "DAC30112", date(2025, 6, 9), "1"))

	rows, err := store.DeviceDayPayloads(ctx, "DAC40324", date(2025, 6, 1), date(2025, 6, 30))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "DAC40324001", rows[0].DeviceID)
	assert.Equal(t, date(2025, 6, 9), rows[0].Date)
	assert.Equal(t, "5,3*2", rows[0].Payload)

	// Date range is inclusive on both ends.
	rows, err = store.DeviceDayPayloads(ctx, "DAC40324", date(2025, 6, 10), date(2025, 6, 10))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "DAC40324002", rows[0].DeviceID)
}

func TestIndirectConsumption(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	at := time.Date(2025, 6, 9, 14, 30, 0, 0, time.UTC)
	require.NoError(t, store.InsertIndirect("DUT10231001", at, 1.25))
	require.NoError(t, store.InsertIndirect("DUT10231001", at.Add(time.Hour), 0)) // non-positive, filtered
	require.NoError(t, store.InsertIndirect("DUT10231002", at, 2.5))

	rows, err := store.DeviceConsumption(ctx, "DUT10231001", date(2025, 6, 1), date(2025, 6, 30))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, at, rows[0].RecordedAt)
	assert.Equal(t, 1.25, rows[0].ConsumptionKWh)

	// Records on the final day of the range are included despite the time component.
	rows, err = store.DeviceConsumption(ctx, "DUT10231001", date(2025, 6, 9), date(2025, 6, 9))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDevicesByUnits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertAvailability("DAC40324001", 302, date(2025, 6, 9), 90))
	require.NoError(t, store.InsertAvailability("DAC40324001", 302, date(2025, 6, 10), 80))
	require.NoError(t, store.InsertAvailability("DAC40324002", 895, date(2025, 6, 9), 60)) // below threshold
	require.NoError(t, store.InsertAvailability("DUT10231001", 302, date(2025, 6, 9), 75))
	require.NoError(t, store.InsertAvailability("DAC99999001", 999, date(2025, 6, 9), 99)) // unit not asked for

	assignments, err := store.DevicesByUnits(ctx, []int64{302, 895}, 75)
	require.NoError(t, err)
	assert.Equal(t, []DeviceAssignment{
		{DeviceID: "DAC40324001", UnitID: 302},
		{DeviceID: "DUT10231001", UnitID: 302},
	}, assignments)

	empty, err := store.DevicesByUnits(ctx, nil, 75)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFamiliesWithCurrentTelemetry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertCurrentConsumption("DAC40324001", 12.5))
	require.NoError(t, store.InsertCurrentConsumption("DAC40324002", 3.0))
	require.NoError(t, store.InsertCurrentConsumption("DUT10231001", 0)) // never positive

	families, err := store.FamiliesWithCurrentTelemetry(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"DAC40324"}, families)
}

func TestAvailableDates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertAvailability("DAC40324001", 302, date(2025, 6, 9), 90))
	require.NoError(t, store.InsertAvailability("DAC40324001", 302, date(2025, 6, 10), 50))
	require.NoError(t, store.InsertAvailability("DAC40324001", 302, date(2025, 7, 1), 90)) // outside range

	dates, err := store.AvailableDates(ctx, []int64{302}, 75, date(2025, 6, 1), date(2025, 6, 30))
	require.NoError(t, err)
	assert.Equal(t, []AvailableDate{{DeviceID: "DAC40324001", Date: date(2025, 6, 9)}}, dates)
}
