package types

import (
	"time"
)

// Method tags carried through to the consolidated output. The literals match
// the downstream consumers of the consolidated CSV.
const (
	MethodDirect   = "direto"
	MethodIndirect = "indireto"
)

// DateLayout is the canonical date format used in CSV output and map keys.
const DateLayout = "2006-01-02"

// UnitDeviceWindow ties a device to its owning unit and the date window during
// which its consumption is attributable: installation up to automation start.
type UnitDeviceWindow struct {
	UnitID          int64
	DeviceID        string
	DeviceVersion   string
	InstallDate     time.Time
	AutomationStart time.Time
}

// Contains reports whether date falls inside the inclusive attribution window.
func (w UnitDeviceWindow) Contains(date time.Time) bool {
	return !date.Before(w.InstallDate) && !date.After(w.AutomationStart)
}

// ConsumptionRecord is one device-hour consumption figure, tagged with the
// method that produced it. One row of the consolidated dataset.
type ConsumptionRecord struct {
	UnitID          int64
	DeviceID        string
	DeviceVersion   string
	Hour            int
	Date            time.Time
	ConsumptionKWh  float64
	InstallDate     time.Time
	AutomationStart time.Time
	Method          string
}

// HourKey identifies a (device, date, hour) cell independent of method.
type HourKey struct {
	DeviceID string
	Date     string
	Hour     int
}

// Key returns the method-independent identity of the record.
func (r ConsumptionRecord) Key() HourKey {
	return HourKey{DeviceID: r.DeviceID, Date: FormatDate(r.Date), Hour: r.Hour}
}

// UnitHourAggregate is the per-unit, per-hour rollup with composite device
// presence weights split by device type.
type UnitHourAggregate struct {
	UnitID        int64
	Date          time.Time
	Hour          int
	DevicesTotal  int
	DACCount      int
	DUTCount      int
	DACMeanWeight float64
	DUTMeanWeight float64
	TotalKWh      float64
	Methods       string
}

// UnitMethodRollup is the simple (unit, date, hour, method) consumption total.
type UnitMethodRollup struct {
	UnitID    int64
	Date      time.Time
	Hour      int
	Method    string
	TotalKWh  float64
	DeviceQty int
}

// Day truncates t to midnight UTC so dates compare and key cleanly.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a canonical YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders t as a canonical YYYY-MM-DD date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
