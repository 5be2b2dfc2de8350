// Package roster loads the client unit roster and joins it with the device
// assignments delivered by the roster source, deriving the per-device
// attribution windows the pipeline filters against.
package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/source"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/types"
)

const (
	versionPrefixLen = 8
	typePrefixLen    = 3
)

// Device type codes derived from the leading characters of the device code.
const (
	TypeDAC   = "DAC"
	TypeDUT   = "DUT"
	TypeOther = "OTHER"
)

// VersionOf returns the device family/version prefix of a device code.
func VersionOf(deviceID string) string {
	if len(deviceID) > versionPrefixLen {
		return deviceID[:versionPrefixLen]
	}
	return deviceID
}

// TypeOf classifies a device code by its 3-character prefix.
func TypeOf(deviceID string) string {
	if len(deviceID) < typePrefixLen {
		return TypeOther
	}
	switch deviceID[:typePrefixLen] {
	case TypeDAC:
		return TypeDAC
	case TypeDUT:
		return TypeDUT
	default:
		return TypeOther
	}
}

// Unit is one client facility unit from the roster CSV.
type Unit struct {
	ID              int64
	Name            string
	AutomationStart time.Time
	InstallDate     time.Time
}

// Roster CSV columns. Automation start dates arrive as MM/DD/YY.
var unitColumns = []string{"unit_id", "unit_name", "data_inicio_automacao", "dias_antes_automacao"}

const unitDateLayout = "01/02/06"

// LoadUnits reads the unit roster CSV. The installation date is derived from
// the automation start date minus the install offset plus one day, matching
// the roster convention: an offset of N means the unit ran N+1 days before
// automation began.
func LoadUnits(path string) ([]Unit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open unit roster: %v", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read unit roster header: %v", err)
	}

	index, err := columnIndex(header, unitColumns)
	if err != nil {
		return nil, err
	}

	var units []Unit
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unit roster line %d: %v", line, err)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(row[index["unit_id"]]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unit roster line %d: invalid unit_id: %v", line, err)
		}
		automationStart, err := time.Parse(unitDateLayout, strings.TrimSpace(row[index["data_inicio_automacao"]]))
		if err != nil {
			return nil, fmt.Errorf("unit roster line %d: invalid automation start date: %v", line, err)
		}
		offsetDays, err := strconv.Atoi(strings.TrimSpace(row[index["dias_antes_automacao"]]))
		if err != nil {
			return nil, fmt.Errorf("unit roster line %d: invalid install offset: %v", line, err)
		}

		automationStart = types.Day(automationStart)
		units = append(units, Unit{
			ID:              id,
			Name:            strings.TrimSpace(row[index["unit_name"]]),
			AutomationStart: automationStart,
			InstallDate:     automationStart.AddDate(0, 0, -(offsetDays + 1)),
		})
	}

	klog.V(2).InfoS("Loaded unit roster", "path", path, "units", len(units))
	return units, nil
}

func columnIndex(header []string, required []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, name := range required {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unit roster missing columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

// Roster joins units to their devices and carries the derived per-device
// attribution windows. Immutable once built.
type Roster struct {
	Units   []Unit
	Windows map[string]types.UnitDeviceWindow

	byVersion map[string][]string
}

// Build joins the unit roster with the device assignments. Assignments
// referencing units absent from the roster are skipped with a warning.
func Build(units []Unit, assignments []source.DeviceAssignment) *Roster {
	unitsByID := make(map[int64]Unit, len(units))
	for _, u := range units {
		unitsByID[u.ID] = u
	}

	r := &Roster{
		Units:     units,
		Windows:   make(map[string]types.UnitDeviceWindow, len(assignments)),
		byVersion: make(map[string][]string),
	}
	for _, a := range assignments {
		unit, ok := unitsByID[a.UnitID]
		if !ok {
			klog.V(2).InfoS("Skipping device assigned to unknown unit", "device", a.DeviceID, "unit", a.UnitID)
			continue
		}
		version := VersionOf(a.DeviceID)
		r.Windows[a.DeviceID] = types.UnitDeviceWindow{
			UnitID:          unit.ID,
			DeviceID:        a.DeviceID,
			DeviceVersion:   version,
			InstallDate:     unit.InstallDate,
			AutomationStart: unit.AutomationStart,
		}
		r.byVersion[version] = append(r.byVersion[version], a.DeviceID)
	}

	for _, devices := range r.byVersion {
		sort.Strings(devices)
	}
	return r
}

// Versions returns the sorted distinct device versions present in the roster.
func (r *Roster) Versions() []string {
	versions := make([]string, 0, len(r.byVersion))
	for v := range r.byVersion {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// DevicesOfVersion returns the sorted device codes of one version.
func (r *Roster) DevicesOfVersion(version string) []string {
	return r.byVersion[version]
}

// Devices returns all device codes in the roster, sorted.
func (r *Roster) Devices() []string {
	devices := make([]string, 0, len(r.Windows))
	for id := range r.Windows {
		devices = append(devices, id)
	}
	sort.Strings(devices)
	return devices
}

// UnitIDs returns the roster's unit identifiers in roster order.
func (r *Roster) UnitIDs() []int64 {
	ids := make([]int64, 0, len(r.Units))
	for _, u := range r.Units {
		ids = append(ids, u.ID)
	}
	return ids
}

// VersionWindow returns the combined query window for a version: the
// earliest installation to the latest automation start across its devices.
// ok is false when the version has no devices.
func (r *Roster) VersionWindow(version string) (start, end time.Time, ok bool) {
	devices := r.byVersion[version]
	if len(devices) == 0 {
		return time.Time{}, time.Time{}, false
	}
	for i, id := range devices {
		w := r.Windows[id]
		if i == 0 || w.InstallDate.Before(start) {
			start = w.InstallDate
		}
		if i == 0 || w.AutomationStart.After(end) {
			end = w.AutomationStart
		}
	}
	return start, end, true
}

// GlobalWindow returns the earliest installation and latest automation start
// across all units. ok is false for an empty roster.
func (r *Roster) GlobalWindow() (start, end time.Time, ok bool) {
	if len(r.Units) == 0 {
		return time.Time{}, time.Time{}, false
	}
	for i, u := range r.Units {
		if i == 0 || u.InstallDate.Before(start) {
			start = u.InstallDate
		}
		if i == 0 || u.AutomationStart.After(end) {
			end = u.AutomationStart
		}
	}
	return start, end, true
}
