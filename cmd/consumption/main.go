package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/config"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/output"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/pipeline"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/roster"
	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/source"
)

func main() {
	var (
		configPath string
		unitsPath  string
		dbPath     string
		outputDir  string
	)

	flag.StringVar(&configPath, "config", "", "Path to YAML configuration (optional)")
	flag.StringVar(&unitsPath, "units", "", "Path to the unit roster CSV (required)")
	flag.StringVar(&dbPath, "db", "", "Path to the SQLite data store (required)")
	flag.StringVar(&outputDir, "output-dir", "", "Output directory (overrides config)")

	klog.InitFlags(nil)
	flag.Parse()

	if unitsPath == "" || dbPath == "" {
		klog.ErrorS(nil, "Both --units and --db are required")
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		klog.ErrorS(err, "Failed to load configuration")
		os.Exit(1)
	}
	if outputDir != "" {
		cfg.Output.Directory = outputDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.MetricsEnabled {
		go serveMetrics(cfg.Observability.MetricsPort)
	}

	if err := run(ctx, cfg, unitsPath, dbPath); err != nil {
		if errors.Is(err, pipeline.ErrNoConsumptionData) {
			// Terminal state, not a crash: nothing to attribute, no files written.
			klog.ErrorS(err, "Run finished with no consumption data")
			os.Exit(1)
		}
		klog.ErrorS(err, "Consumption run failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, unitsPath, dbPath string) error {
	klog.InfoS("Starting HVAC consumption processing",
		"units", unitsPath, "db", dbPath, "outputDir", cfg.Output.Directory)

	units, err := roster.LoadUnits(unitsPath)
	if err != nil {
		return fmt.Errorf("loading unit roster: %w", err)
	}
	klog.InfoS("Loaded units", "count", len(units))

	store, err := source.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening data store: %w", err)
	}
	defer store.Close()

	unitIDs := make([]int64, 0, len(units))
	for _, u := range units {
		unitIDs = append(unitIDs, u.ID)
	}

	assignments, err := store.DevicesByUnits(ctx, unitIDs, cfg.Availability.Threshold)
	if err != nil {
		return fmt.Errorf("querying devices by units: %w", err)
	}
	klog.InfoS("Found devices", "count", len(assignments))

	r := roster.Build(units, assignments)

	start, end, ok := r.GlobalWindow()
	if !ok {
		return fmt.Errorf("unit roster is empty")
	}
	availableDates, err := store.AvailableDates(ctx, unitIDs, cfg.Availability.Threshold, start, end)
	if err != nil {
		return fmt.Errorf("querying device availability: %w", err)
	}
	availability := pipeline.NewAvailabilityIndex(availableDates)
	klog.InfoS("Loaded availability", "deviceDates", availability.Len())

	validFamilies, err := store.FamiliesWithCurrentTelemetry(ctx)
	if err != nil {
		return fmt.Errorf("querying families with current telemetry: %w", err)
	}
	versions := filterVersions(r.Versions(), validFamilies)
	klog.InfoS("Selected device versions",
		"rosterVersions", len(r.Versions()), "withCurrentData", len(versions), "versions", versions)

	filter := pipeline.NewFilter(r.Windows, availability)
	p := pipeline.New(cfg, store, store, filter, r)

	records, err := p.Run(ctx, versions)
	if err != nil {
		return err
	}
	klog.InfoS("Consolidation complete", "records", len(records))

	if err := os.MkdirAll(cfg.Output.Directory, 0755); err != nil {
		return fmt.Errorf("creating output directory: %v", err)
	}
	consolidatedPath := filepath.Join(cfg.Output.Directory, cfg.Output.ConsolidatedFile)
	if err := output.WriteConsolidated(consolidatedPath, records); err != nil {
		return err
	}

	// The rollup reads the file back rather than reusing the in-memory set,
	// so the on-disk contract is validated on every run.
	reloaded, err := output.LoadConsolidated(consolidatedPath)
	if err != nil {
		return err
	}

	rollups := pipeline.RollupByMethod(reloaded)
	if err := output.WriteUnitRollup(filepath.Join(cfg.Output.Directory, cfg.Output.UnitRollupFile), rollups); err != nil {
		return err
	}

	unitHours := pipeline.AggregateUnits(reloaded)
	if err := output.WriteUnitHours(filepath.Join(cfg.Output.Directory, cfg.Output.UnitHourFile), unitHours); err != nil {
		return err
	}

	for _, s := range pipeline.Summarize(rollups) {
		klog.InfoS("Unit summary",
			"unit", s.UnitID,
			"totalKWh", s.TotalKWh,
			"daysWithData", s.DaysWithData,
			"directRecords", s.DirectRecords,
			"indirectRecords", s.IndirectRecords,
			"meanDevices", s.MeanDevices)
	}

	klog.InfoS("HVAC consumption processing complete",
		"consolidatedRecords", len(records), "unitRollups", len(rollups), "unitHours", len(unitHours))
	return nil
}

// filterVersions keeps roster versions whose family records current
// telemetry at all; the rest can only ever be served by the indirect method.
func filterVersions(versions, validFamilies []string) []string {
	valid := make(map[string]struct{}, len(validFamilies))
	for _, f := range validFamilies {
		valid[f] = struct{}{}
	}
	var out []string
	for _, v := range versions {
		if _, ok := valid[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	klog.InfoS("Serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		klog.ErrorS(err, "Metrics server failed")
	}
}
