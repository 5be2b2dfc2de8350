// Package output writes the pipeline's CSV datasets and reloads the
// consolidated dataset with column validation for the rollup step.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/types"
)

// Consolidated dataset columns; the order is the on-disk contract.
var consolidatedColumns = []string{
	"unit_id",
	"device_id",
	"device_version",
	"hora",
	"data",
	"consumo_kwh",
	"data_instalacao",
	"data_inicio_automacao",
	"metodo",
}

// WriteConsolidated writes the consolidated per-device-hour dataset.
func WriteConsolidated(path string, records []types.ConsumptionRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create consolidated output: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(consolidatedColumns); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.UnitID, 10),
			r.DeviceID,
			r.DeviceVersion,
			strconv.Itoa(r.Hour),
			types.FormatDate(r.Date),
			formatFloat(r.ConsumptionKWh),
			types.FormatDate(r.InstallDate),
			types.FormatDate(r.AutomationStart),
			r.Method,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write consolidated output: %v", err)
	}

	klog.InfoS("Wrote consolidated consumption", "path", path, "records", len(records))
	return nil
}

// LoadConsolidated reads a consolidated dataset back. A header missing any
// required column is a fatal validation error naming the missing columns.
func LoadConsolidated(path string) ([]types.ConsumptionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open consolidated input: %v", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read consolidated header: %v", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, name := range consolidatedColumns {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("consolidated input missing columns: %s", strings.Join(missing, ", "))
	}

	var records []types.ConsumptionRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("consolidated input line %d: %v", line, err)
		}
		r, err := parseConsolidatedRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("consolidated input line %d: %v", line, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func parseConsolidatedRow(row []string, index map[string]int) (types.ConsumptionRecord, error) {
	var r types.ConsumptionRecord
	var err error

	if r.UnitID, err = strconv.ParseInt(row[index["unit_id"]], 10, 64); err != nil {
		return r, fmt.Errorf("invalid unit_id: %v", err)
	}
	r.DeviceID = row[index["device_id"]]
	r.DeviceVersion = row[index["device_version"]]
	if r.Hour, err = strconv.Atoi(row[index["hora"]]); err != nil {
		return r, fmt.Errorf("invalid hora: %v", err)
	}
	if r.Date, err = types.ParseDate(row[index["data"]]); err != nil {
		return r, fmt.Errorf("invalid data: %v", err)
	}
	if r.ConsumptionKWh, err = strconv.ParseFloat(row[index["consumo_kwh"]], 64); err != nil {
		return r, fmt.Errorf("invalid consumo_kwh: %v", err)
	}
	if r.InstallDate, err = types.ParseDate(row[index["data_instalacao"]]); err != nil {
		return r, fmt.Errorf("invalid data_instalacao: %v", err)
	}
	if r.AutomationStart, err = types.ParseDate(row[index["data_inicio_automacao"]]); err != nil {
		return r, fmt.Errorf("invalid data_inicio_automacao: %v", err)
	}
	r.Method = row[index["metodo"]]
	return r, nil
}

// WriteUnitRollup writes the simple per-unit, per-hour, per-method totals.
func WriteUnitRollup(path string, rows []types.UnitMethodRollup) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create unit rollup output: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"unit_id", "data", "hora", "metodo", "consumo_kwh_total", "qtd_dispositivos"}); err != nil {
		return err
	}
	for _, r := range rows {
		row := []string{
			strconv.FormatInt(r.UnitID, 10),
			types.FormatDate(r.Date),
			strconv.Itoa(r.Hour),
			r.Method,
			formatFloat(r.TotalKWh),
			strconv.Itoa(r.DeviceQty),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write unit rollup output: %v", err)
	}

	klog.InfoS("Wrote unit rollup", "path", path, "records", len(rows))
	return nil
}

// WriteUnitHours writes the rich per-unit-hour aggregate with device counts
// and presence weights per device type.
func WriteUnitHours(path string, rows []types.UnitHourAggregate) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create unit hours output: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"unit_id", "data", "hora",
		"qtd_dispositivos_total", "qtd_dac", "qtd_dut",
		"peso_medio_dac", "peso_medio_dut",
		"consumo_kwh_total", "metodos",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		row := []string{
			strconv.FormatInt(r.UnitID, 10),
			types.FormatDate(r.Date),
			strconv.Itoa(r.Hour),
			strconv.Itoa(r.DevicesTotal),
			strconv.Itoa(r.DACCount),
			strconv.Itoa(r.DUTCount),
			formatFloat(r.DACMeanWeight),
			formatFloat(r.DUTMeanWeight),
			formatFloat(r.TotalKWh),
			r.Methods,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write unit hours output: %v", err)
	}

	klog.InfoS("Wrote unit hour aggregates", "path", path, "records", len(rows))
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
