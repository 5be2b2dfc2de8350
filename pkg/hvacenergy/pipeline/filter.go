// Package pipeline orchestrates consumption attribution: direct computation
// from telemetry per device version, indirect fallback per device, validity
// filtering, consolidation, and the per-unit rollups.
package pipeline

import (
	"time"

	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/source"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/types"
)

// AvailabilityIndex answers whether a device met the availability threshold
// on a given date. Built once per run from the availability source.
type AvailabilityIndex struct {
	dates map[string]map[string]struct{}
}

// NewAvailabilityIndex builds the index from availability rows.
func NewAvailabilityIndex(rows []source.AvailableDate) *AvailabilityIndex {
	idx := &AvailabilityIndex{dates: make(map[string]map[string]struct{})}
	for _, row := range rows {
		byDate, ok := idx.dates[row.DeviceID]
		if !ok {
			byDate = make(map[string]struct{})
			idx.dates[row.DeviceID] = byDate
		}
		byDate[types.FormatDate(row.Date)] = struct{}{}
	}
	return idx
}

// Available reports whether the device met the threshold on date.
func (i *AvailabilityIndex) Available(deviceID string, date time.Time) bool {
	byDate, ok := i.dates[deviceID]
	if !ok {
		return false
	}
	_, ok = byDate[types.FormatDate(date)]
	return ok
}

// Len returns the number of device-date entries in the index.
func (i *AvailabilityIndex) Len() int {
	n := 0
	for _, byDate := range i.dates {
		n += len(byDate)
	}
	return n
}

// Filter applies the two validity predicates every consumption record must
// pass regardless of method: the record date must fall inside the device's
// installation-to-automation window, and the device must have met the
// availability threshold on that date.
type Filter struct {
	windows      map[string]types.UnitDeviceWindow
	availability *AvailabilityIndex
}

// NewFilter builds a filter over the per-device windows and the availability
// index.
func NewFilter(windows map[string]types.UnitDeviceWindow, availability *AvailabilityIndex) *Filter {
	return &Filter{windows: windows, availability: availability}
}

// Keep reports whether a record for deviceID on date survives both
// predicates, returning the owning window when it does.
func (f *Filter) Keep(deviceID string, date time.Time) (types.UnitDeviceWindow, bool) {
	window, ok := f.windows[deviceID]
	if !ok {
		return types.UnitDeviceWindow{}, false
	}
	if !window.Contains(date) {
		return types.UnitDeviceWindow{}, false
	}
	if !f.availability.Available(deviceID, date) {
		return types.UnitDeviceWindow{}, false
	}
	return window, true
}

// Window returns the attribution window for a device without date filtering.
func (f *Filter) Window(deviceID string) (types.UnitDeviceWindow, bool) {
	window, ok := f.windows[deviceID]
	return window, ok
}
