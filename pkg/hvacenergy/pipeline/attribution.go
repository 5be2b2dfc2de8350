package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/config"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/metrics"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/roster"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/source"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/telemetry"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/types"
)

// ErrNoConsumptionData signals that direct computation produced no surviving
// records for any device version. It is a terminal state distinct from a
// query failure: no output files are written.
var ErrNoConsumptionData = errors.New("no direct consumption data for any device version")

// Pipeline runs consumption attribution over a roster: direct computation
// per device version first, then the indirect method for every device that
// yielded no direct rows.
type Pipeline struct {
	cfg       *config.Config
	telemetry source.TelemetrySource
	indirect  source.IndirectSource
	filter    *Filter
	roster    *roster.Roster
}

// New assembles a pipeline.
func New(cfg *config.Config, telemetrySrc source.TelemetrySource, indirectSrc source.IndirectSource, filter *Filter, r *roster.Roster) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		telemetry: telemetrySrc,
		indirect:  indirectSrc,
		filter:    filter,
		roster:    r,
	}
}

// Run executes attribution for the given device versions and returns the
// consolidated, sorted record set. Versions are dispatched to a bounded
// worker pool; any query failure after retries aborts the whole run.
func (p *Pipeline) Run(ctx context.Context, versions []string) ([]types.ConsumptionRecord, error) {
	direct := newAccumulator()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Query.Concurrency)
	for _, version := range versions {
		version := version
		g.Go(func() error {
			return p.runDirect(gctx, version, direct)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	directRecords := direct.records()
	if len(directRecords) == 0 {
		return nil, ErrNoConsumptionData
	}

	// Fallback is decided per device, not per version: a device with no
	// surviving direct rows goes to the indirect queue even when its
	// siblings produced data.
	pending := p.devicesWithoutDirect(direct)
	klog.InfoS("Direct attribution complete",
		"records", len(directRecords),
		"devicesWithDirect", direct.deviceCount(),
		"devicesForIndirect", len(pending))

	indirect := newAccumulator()
	ig, igctx := errgroup.WithContext(ctx)
	ig.SetLimit(p.cfg.Query.Concurrency)
	for _, deviceID := range pending {
		deviceID := deviceID
		ig.Go(func() error {
			return p.runIndirect(igctx, deviceID, indirect)
		})
	}
	if err := ig.Wait(); err != nil {
		return nil, err
	}

	indirectRecords := indirect.records()
	klog.InfoS("Indirect attribution complete",
		"records", len(indirectRecords),
		"devicesWithIndirect", indirect.deviceCount())

	return Consolidate(directRecords, indirectRecords), nil
}

// runDirect fetches one version's telemetry over its combined unit window,
// decodes every device-day, and accumulates the rows that pass the validity
// filter.
func (p *Pipeline) runDirect(ctx context.Context, version string, acc *accumulator) error {
	start, end, ok := p.roster.VersionWindow(version)
	if !ok {
		return nil
	}

	rows, err := p.fetchTelemetry(ctx, version, start, end)
	if err != nil {
		return err
	}
	klog.V(2).InfoS("Fetched telemetry", "version", version,
		"deviceDays", len(rows), "start", types.FormatDate(start), "end", types.FormatDate(end))

	kept := 0
	for _, row := range rows {
		result := telemetry.ComputeDay(row.DeviceID, row.Date, row.Payload, p.cfg.Calibration)
		if result.DroppedTokens > 0 {
			metrics.DroppedTokens.Add(float64(result.DroppedTokens))
		}
		if result.DiscardedBuckets > 0 {
			metrics.DiscardedHourBuckets.Add(float64(result.DiscardedBuckets))
			klog.V(2).InfoS("Payload exceeds 24h of measurement, buckets discarded",
				"device", row.DeviceID, "date", types.FormatDate(row.Date), "buckets", result.DiscardedBuckets)
		}
		for _, e := range result.Energy {
			window, ok := p.filter.Keep(e.DeviceID, e.Date)
			if !ok {
				continue
			}
			acc.add(types.ConsumptionRecord{
				UnitID:          window.UnitID,
				DeviceID:        e.DeviceID,
				DeviceVersion:   version,
				Hour:            e.Hour,
				Date:            e.Date,
				ConsumptionKWh:  e.KWh,
				InstallDate:     window.InstallDate,
				AutomationStart: window.AutomationStart,
				Method:          types.MethodDirect,
			})
			kept++
		}
	}
	metrics.RecordsProduced.WithLabelValues(types.MethodDirect).Add(float64(kept))
	return nil
}

// runIndirect fetches one device's pre-aggregated consumption over its own
// window, derives the hour from the record timestamp, and accumulates the
// rows that pass the same validity filter as the direct method.
func (p *Pipeline) runIndirect(ctx context.Context, deviceID string, acc *accumulator) error {
	window, ok := p.filter.Window(deviceID)
	if !ok {
		return nil
	}

	rows, err := p.fetchIndirect(ctx, deviceID, window.InstallDate, window.AutomationStart)
	if err != nil {
		return err
	}

	kept := 0
	for _, row := range rows {
		if row.ConsumptionKWh <= 0 {
			continue
		}
		date := types.Day(row.RecordedAt)
		window, ok := p.filter.Keep(deviceID, date)
		if !ok {
			continue
		}
		acc.add(types.ConsumptionRecord{
			UnitID:          window.UnitID,
			DeviceID:        deviceID,
			DeviceVersion:   roster.VersionOf(deviceID),
			Hour:            row.RecordedAt.Hour(),
			Date:            date,
			ConsumptionKWh:  row.ConsumptionKWh,
			InstallDate:     window.InstallDate,
			AutomationStart: window.AutomationStart,
			Method:          types.MethodIndirect,
		})
		kept++
	}
	metrics.RecordsProduced.WithLabelValues(types.MethodIndirect).Add(float64(kept))
	return nil
}

func (p *Pipeline) fetchTelemetry(ctx context.Context, version string, start, end time.Time) ([]source.TelemetryRow, error) {
	var rows []source.TelemetryRow
	err := p.withRetry(ctx, "telemetry", func() error {
		qctx, cancel := context.WithTimeout(ctx, p.cfg.Query.Timeout)
		defer cancel()
		timer := time.Now()
		var err error
		rows, err = p.telemetry.DeviceDayPayloads(qctx, version, start, end)
		metrics.QueryDuration.WithLabelValues("telemetry").Observe(time.Since(timer).Seconds())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry query for version %s: %w", version, err)
	}
	return rows, nil
}

func (p *Pipeline) fetchIndirect(ctx context.Context, deviceID string, start, end time.Time) ([]source.IndirectRow, error) {
	var rows []source.IndirectRow
	err := p.withRetry(ctx, "indirect", func() error {
		qctx, cancel := context.WithTimeout(ctx, p.cfg.Query.Timeout)
		defer cancel()
		timer := time.Now()
		var err error
		rows, err = p.indirect.DeviceConsumption(qctx, deviceID, start, end)
		metrics.QueryDuration.WithLabelValues("indirect").Observe(time.Since(timer).Seconds())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("indirect query for device %s: %w", deviceID, err)
	}
	return rows, nil
}

// withRetry runs op with exponential backoff on transient failures, honoring
// context cancellation.
func (p *Pipeline) withRetry(ctx context.Context, sourceName string, op func() error) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.cfg.Query.RetryDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(p.cfg.Query.MaxRetries)), ctx)

	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		metrics.QueryRetries.WithLabelValues(sourceName).Inc()
		klog.V(2).InfoS("Query failed, retrying", "source", sourceName, "wait", wait, "error", err)
	})
}

// devicesWithoutDirect returns the roster devices absent from the direct
// accumulator, sorted.
func (p *Pipeline) devicesWithoutDirect(direct *accumulator) []string {
	var pending []string
	for _, deviceID := range p.roster.Devices() {
		if !direct.hasDevice(deviceID) {
			pending = append(pending, deviceID)
		}
	}
	return pending
}

// accumulator collects records keyed by device under a lock, keeping the
// per-device-hour consolidation exact regardless of worker interleaving.
type accumulator struct {
	mu       sync.Mutex
	byDevice map[string][]types.ConsumptionRecord
}

func newAccumulator() *accumulator {
	return &accumulator{byDevice: make(map[string][]types.ConsumptionRecord)}
}

func (a *accumulator) add(r types.ConsumptionRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byDevice[r.DeviceID] = append(a.byDevice[r.DeviceID], r)
}

func (a *accumulator) hasDevice(deviceID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byDevice[deviceID]) > 0
}

func (a *accumulator) deviceCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byDevice)
}

// records flattens the accumulator in device order for deterministic output.
func (a *accumulator) records() []types.ConsumptionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	devices := make([]string, 0, len(a.byDevice))
	for id := range a.byDevice {
		devices = append(devices, id)
	}
	sort.Strings(devices)

	var out []types.ConsumptionRecord
	for _, id := range devices {
		out = append(out, a.byDevice[id]...)
	}
	return out
}
