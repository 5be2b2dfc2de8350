// Package source defines the external query-executor collaborators the
// pipeline consumes: raw telemetry payloads, the pre-aggregated indirect
// consumption history, the device roster, and device availability. All calls
// block on the backing store and honor context cancellation.
package source

import (
	"context"
	"time"
)

// TelemetryRow is one device-day of raw telemetry: the compressed
// current/duration payload recorded for that device on that date.
type TelemetryRow struct {
	DeviceID string
	Date     time.Time
	Payload  string
}

// IndirectRow is one pre-aggregated consumption record from the secondary
// source. RecordedAt carries the hour of the measurement.
type IndirectRow struct {
	DeviceID       string
	RecordedAt     time.Time
	ConsumptionKWh float64
}

// DeviceAssignment maps a device to its owning unit.
type DeviceAssignment struct {
	DeviceID string
	UnitID   int64
}

// AvailableDate marks a date on which a device met the availability
// threshold.
type AvailableDate struct {
	DeviceID string
	Date     time.Time
}

// TelemetrySource serves raw telemetry payloads for a device family over an
// inclusive date range.
type TelemetrySource interface {
	DeviceDayPayloads(ctx context.Context, deviceVersion string, start, end time.Time) ([]TelemetryRow, error)
}

// IndirectSource serves the pre-aggregated consumption history for one
// device over an inclusive date range. Only positive consumption values are
// returned.
type IndirectSource interface {
	DeviceConsumption(ctx context.Context, deviceID string, start, end time.Time) ([]IndirectRow, error)
}

// RosterSource serves device-to-unit assignments and the set of device
// families that record current telemetry at all.
type RosterSource interface {
	DevicesByUnits(ctx context.Context, unitIDs []int64, availabilityThreshold float64) ([]DeviceAssignment, error)
	FamiliesWithCurrentTelemetry(ctx context.Context) ([]string, error)
}

// AvailabilitySource serves the dates on which each device of the given
// units met the availability threshold.
type AvailabilitySource interface {
	AvailableDates(ctx context.Context, unitIDs []int64, threshold float64, start, end time.Time) ([]AvailableDate, error)
}
