package output

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleRecords() []types.ConsumptionRecord {
	return []types.ConsumptionRecord{
		{
			UnitID:          302,
			DeviceID:        "DAC40324001",
			DeviceVersion:   "DAC40324",
			Hour:            10,
			Date:            date(2025, 6, 9),
			ConsumptionKWh:  1.234567,
			InstallDate:     date(2025, 6, 1),
			AutomationStart: date(2025, 6, 30),
			Method:          types.MethodDirect,
		},
		{
			UnitID:          895,
			DeviceID:        "DUT10231001",
			DeviceVersion:   "DUT10231",
			Hour:            0,
			Date:            date(2025, 6, 10),
			ConsumptionKWh:  0.5,
			InstallDate:     date(2025, 6, 5),
			AutomationStart: date(2025, 6, 25),
			Method:          types.MethodIndirect,
		},
	}
}

func TestWriteAndLoadConsolidated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consolidated.csv")
	require.NoError(t, WriteConsolidated(path, sampleRecords()))

	loaded, err := LoadConsolidated(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), loaded)
}

func TestLoadConsolidatedMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("unit_id,device_id,hora\n302,DAC1,10\n"), 0644))

	_, err := LoadConsolidated(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns")
	assert.Contains(t, err.Error(), "consumo_kwh")
	assert.Contains(t, err.Error(), "metodo")
}

func TestLoadConsolidatedBadRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consolidated.csv")
	content := "unit_id,device_id,device_version,hora,data,consumo_kwh,data_instalacao,data_inicio_automacao,metodo\n" +
		"notanumber,DAC1,DAC4,10,2025-06-09,1.0,2025-06-01,2025-06-30,direto\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadConsolidated(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestWriteUnitRollup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollup.csv")
	rows := []types.UnitMethodRollup{
		{UnitID: 302, Date: date(2025, 6, 9), Hour: 10, Method: types.MethodDirect, TotalKWh: 3.75, DeviceQty: 2},
	}
	require.NoError(t, WriteUnitRollup(path, rows))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"unit_id,data,hora,metodo,consumo_kwh_total,qtd_dispositivos\n302,2025-06-09,10,direto,3.75,2\n",
		string(data))
}

func TestWriteUnitHours(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hours.csv")
	rows := []types.UnitHourAggregate{
		{
			UnitID: 302, Date: date(2025, 6, 9), Hour: 10,
			DevicesTotal: 3, DACCount: 2, DUTCount: 1,
			DACMeanWeight: 0.5, DUTMeanWeight: 0.25,
			TotalKWh: 4, Methods: "direto,indireto",
		},
	}
	require.NoError(t, WriteUnitHours(path, rows))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "302,2025-06-09,10,3,2,1,0.5,0.25,4,\"direto,indireto\"")
}
