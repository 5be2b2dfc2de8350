// Package telemetry decodes compressed device telemetry payloads into hourly
// energy figures: payload tokens become measurements, measurements become
// contiguous time spans, spans are split across wall-clock hours, and the
// per-hour current exposure is converted to kWh with a per-family calibration
// factor.
package telemetry

import (
	"strconv"
	"strings"
)

// Measurement is one decoded telemetry token: a current reading held for a
// duration in seconds.
type Measurement struct {
	Current     float64
	DurationSec float64
}

// Tokens starting with the marker carry annotations, not measurements.
const ignoreMarker = '*'

// defaultDurationSec applies when a token carries no duration part.
const defaultDurationSec = 1.0

// ParsePayload decodes a device-day payload of comma-separated tokens, each
// "current" or "current*duration". Parsing is permissive: empty and
// annotation tokens are skipped, tokens with an unparsable current or a
// non-positive duration are dropped. The second return value counts dropped
// tokens for data-quality reporting. An empty payload yields no measurements
// and is not an error.
func ParsePayload(payload string) ([]Measurement, int) {
	if payload == "" {
		return nil, 0
	}

	parts := strings.Split(payload, ",")
	measurements := make([]Measurement, 0, len(parts))
	dropped := 0
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part[0] == ignoreMarker {
			continue
		}
		current, duration, ok := parseToken(part)
		if !ok || duration <= 0 {
			dropped++
			continue
		}
		measurements = append(measurements, Measurement{Current: current, DurationSec: duration})
	}
	return measurements, dropped
}

// parseToken splits "current" or "current*duration". An unparsable duration
// part falls back to the 1s default; an unparsable current fails the token.
func parseToken(token string) (current, duration float64, ok bool) {
	head, tail, hasDuration := strings.Cut(token, "*")

	current, err := strconv.ParseFloat(strings.TrimSpace(head), 64)
	if err != nil {
		return 0, 0, false
	}

	duration = defaultDurationSec
	if hasDuration {
		if v, err := strconv.ParseFloat(strings.TrimSpace(tail), 64); err == nil {
			duration = v
		}
	}
	return current, duration, true
}
