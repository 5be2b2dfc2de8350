package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/GustavoLimaMartins/HVAC-Predictions/pkg/hvacenergy/types"
)

// SQLiteStore implements all source interfaces against a local SQLite
// database, used for local and development runs in place of the production
// warehouse. Dates are stored as YYYY-MM-DD text, indirect timestamps as
// "YYYY-MM-DD HH:MM:SS".
type SQLiteStore struct {
	db       *sql.DB
	dbPath   string
	mutex    sync.RWMutex
	prepared map[string]*sql.Stmt
}

const indirectTimeLayout = "2006-01-02 15:04:05"

// NewSQLiteStore opens (creating if necessary) the database at dbPath and
// prepares the fixed statements.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL&_cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	store := &SQLiteStore{
		db:       db,
		dbPath:   dbPath,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %v", err)
	}

	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %v", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS device_telemetry_day (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		device_version TEXT NOT NULL,
		day TEXT NOT NULL,
		payload TEXT
	);

	CREATE TABLE IF NOT EXISTS energy_efficiency_hour_hist (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_code TEXT NOT NULL,
		record_date TEXT NOT NULL,
		consumption REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS device_disponibility_hist (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_code TEXT NOT NULL,
		unit_id INTEGER NOT NULL,
		record_date TEXT NOT NULL,
		disponibility REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS device_current_consumption (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_code TEXT NOT NULL,
		consumption_ah REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_telemetry_version_day ON device_telemetry_day(device_version, day);
	CREATE INDEX IF NOT EXISTS idx_indirect_device_date ON energy_efficiency_hour_hist(device_code, record_date);
	CREATE INDEX IF NOT EXISTS idx_disponibility_unit_date ON device_disponibility_hist(unit_id, record_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	statements := map[string]string{
		"telemetry": `
			SELECT device_id, day, payload
			FROM device_telemetry_day
			WHERE device_version = ? AND day BETWEEN ? AND ?
			ORDER BY device_id, day`,
		"indirect": `
			SELECT device_code, record_date, consumption
			FROM energy_efficiency_hour_hist
			WHERE device_code = ? AND record_date BETWEEN ? AND ? AND consumption > 0
			ORDER BY record_date`,
		"families": `
			SELECT DISTINCT substr(device_code, 1, 8)
			FROM device_current_consumption
			WHERE consumption_ah > 0`,
		"insertTelemetry": `
			INSERT INTO device_telemetry_day (device_id, device_version, day, payload)
			VALUES (?, ?, ?, ?)`,
		"insertIndirect": `
			INSERT INTO energy_efficiency_hour_hist (device_code, record_date, consumption)
			VALUES (?, ?, ?)`,
		"insertAvailability": `
			INSERT INTO device_disponibility_hist (device_code, unit_id, record_date, disponibility)
			VALUES (?, ?, ?, ?)`,
		"insertCurrent": `
			INSERT INTO device_current_consumption (device_code, consumption_ah)
			VALUES (?, ?)`,
	}

	for name, query := range statements {
		stmt, err := s.db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare %s statement: %v", name, err)
		}
		s.prepared[name] = stmt
	}
	return nil
}

// DeviceDayPayloads returns the raw telemetry payloads for a device family
// over an inclusive date range.
func (s *SQLiteStore) DeviceDayPayloads(ctx context.Context, deviceVersion string, start, end time.Time) ([]TelemetryRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows, err := s.prepared["telemetry"].QueryContext(ctx, deviceVersion, types.FormatDate(start), types.FormatDate(end))
	if err != nil {
		return nil, fmt.Errorf("telemetry query failed: %v", err)
	}
	defer rows.Close()

	var result []TelemetryRow
	for rows.Next() {
		var deviceID, day string
		var payload sql.NullString
		if err := rows.Scan(&deviceID, &day, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan telemetry row: %v", err)
		}
		date, err := types.ParseDate(day)
		if err != nil {
			return nil, fmt.Errorf("invalid telemetry date %q: %v", day, err)
		}
		result = append(result, TelemetryRow{DeviceID: deviceID, Date: date, Payload: payload.String})
	}
	return result, rows.Err()
}

// DeviceConsumption returns the positive pre-aggregated consumption records
// for one device over an inclusive date range.
func (s *SQLiteStore) DeviceConsumption(ctx context.Context, deviceID string, start, end time.Time) ([]IndirectRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	// End bound is padded to the end of day since record_date carries a time component.
	rows, err := s.prepared["indirect"].QueryContext(ctx, deviceID,
		types.FormatDate(start), types.FormatDate(end)+" 23:59:59")
	if err != nil {
		return nil, fmt.Errorf("indirect consumption query failed: %v", err)
	}
	defer rows.Close()

	var result []IndirectRow
	for rows.Next() {
		var code, recordDate string
		var consumption float64
		if err := rows.Scan(&code, &recordDate, &consumption); err != nil {
			return nil, fmt.Errorf("failed to scan indirect row: %v", err)
		}
		ts, err := parseRecordTime(recordDate)
		if err != nil {
			return nil, fmt.Errorf("invalid indirect timestamp %q: %v", recordDate, err)
		}
		result = append(result, IndirectRow{DeviceID: code, RecordedAt: ts, ConsumptionKWh: consumption})
	}
	return result, rows.Err()
}

// DevicesByUnits returns the distinct device-to-unit assignments for the
// given units, restricted to devices that ever met the availability
// threshold. A device reporting under multiple units is assigned to one.
func (s *SQLiteStore) DevicesByUnits(ctx context.Context, unitIDs []int64, availabilityThreshold float64) ([]DeviceAssignment, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	query := fmt.Sprintf(`
		SELECT device_code, MIN(unit_id)
		FROM device_disponibility_hist
		WHERE unit_id IN (%s) AND disponibility >= ?
		GROUP BY device_code
		ORDER BY 2, device_code`, placeholders(len(unitIDs)))

	args := make([]any, 0, len(unitIDs)+1)
	for _, id := range unitIDs {
		args = append(args, id)
	}
	args = append(args, availabilityThreshold)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("devices-by-units query failed: %v", err)
	}
	defer rows.Close()

	var result []DeviceAssignment
	for rows.Next() {
		var a DeviceAssignment
		if err := rows.Scan(&a.DeviceID, &a.UnitID); err != nil {
			return nil, fmt.Errorf("failed to scan device assignment: %v", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// FamiliesWithCurrentTelemetry returns the device family prefixes that have
// recorded any positive current consumption, i.e. the families eligible for
// the direct method.
func (s *SQLiteStore) FamiliesWithCurrentTelemetry(ctx context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows, err := s.prepared["families"].QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("families query failed: %v", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var prefix string
		if err := rows.Scan(&prefix); err != nil {
			return nil, fmt.Errorf("failed to scan family prefix: %v", err)
		}
		result = append(result, prefix)
	}
	return result, rows.Err()
}

// AvailableDates returns the device-dates at or above the availability
// threshold for the given units over an inclusive date range.
func (s *SQLiteStore) AvailableDates(ctx context.Context, unitIDs []int64, threshold float64, start, end time.Time) ([]AvailableDate, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	query := fmt.Sprintf(`
		SELECT DISTINCT device_code, record_date
		FROM device_disponibility_hist
		WHERE unit_id IN (%s) AND disponibility >= ? AND record_date BETWEEN ? AND ?
		ORDER BY device_code, record_date`, placeholders(len(unitIDs)))

	args := make([]any, 0, len(unitIDs)+3)
	for _, id := range unitIDs {
		args = append(args, id)
	}
	args = append(args, threshold, types.FormatDate(start), types.FormatDate(end))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("availability query failed: %v", err)
	}
	defer rows.Close()

	var result []AvailableDate
	for rows.Next() {
		var code, recordDate string
		if err := rows.Scan(&code, &recordDate); err != nil {
			return nil, fmt.Errorf("failed to scan availability row: %v", err)
		}
		date, err := types.ParseDate(recordDate)
		if err != nil {
			return nil, fmt.Errorf("invalid availability date %q: %v", recordDate, err)
		}
		result = append(result, AvailableDate{DeviceID: code, Date: date})
	}
	return result, rows.Err()
}

// InsertTelemetry stores one device-day payload. Used to seed local fixtures.
func (s *SQLiteStore) InsertTelemetry(deviceID, deviceVersion string, day time.Time, payload string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, err := s.prepared["insertTelemetry"].Exec(deviceID, deviceVersion, types.FormatDate(day), payload)
	return err
}

// InsertIndirect stores one pre-aggregated consumption record.
func (s *SQLiteStore) InsertIndirect(deviceID string, recordedAt time.Time, consumption float64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, err := s.prepared["insertIndirect"].Exec(deviceID, recordedAt.Format(indirectTimeLayout), consumption)
	return err
}

// InsertAvailability stores one device availability record.
func (s *SQLiteStore) InsertAvailability(deviceID string, unitID int64, day time.Time, disponibility float64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, err := s.prepared["insertAvailability"].Exec(deviceID, unitID, types.FormatDate(day), disponibility)
	return err
}

// InsertCurrentConsumption stores one current-consumption reading, marking
// the device's family as eligible for the direct method.
func (s *SQLiteStore) InsertCurrentConsumption(deviceID string, consumptionAh float64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, err := s.prepared["insertCurrent"].Exec(deviceID, consumptionAh)
	return err
}

// Close releases prepared statements and the database handle.
func (s *SQLiteStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, stmt := range s.prepared {
		stmt.Close()
	}
	return s.db.Close()
}

func parseRecordTime(value string) (time.Time, error) {
	if ts, err := time.Parse(indirectTimeLayout, value); err == nil {
		return ts, nil
	}
	return time.Parse(types.DateLayout, value)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
