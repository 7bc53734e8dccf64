package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/securelock/securelock/pkg/errclass"
	"github.com/securelock/securelock/pkg/model"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS security_settings (
    device_id              TEXT PRIMARY KEY,
    pin_code               TEXT NOT NULL,
    max_attempts           INTEGER NOT NULL DEFAULT 4 CHECK (max_attempts > 0),
    lockout_duration       INTEGER NOT NULL DEFAULT 30 CHECK (lockout_duration > 0),
    alarm_enabled          INTEGER NOT NULL DEFAULT 1,
    camera_enabled         INTEGER NOT NULL DEFAULT 1,
    location_enabled       INTEGER NOT NULL DEFAULT 1,
    created_at             TEXT NOT NULL,
    updated_at             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS security_events (
    id          TEXT PRIMARY KEY,
    device_id   TEXT NOT NULL,
    event_type  TEXT NOT NULL,
    details     TEXT NOT NULL DEFAULT '{}',
    timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_device_ts ON security_events(device_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_events_ts ON security_events(timestamp DESC);

CREATE TABLE IF NOT EXISTS intruder_attempts (
    id             TEXT PRIMARY KEY,
    device_id      TEXT NOT NULL,
    attempt_count  INTEGER NOT NULL,
    image_url      TEXT NOT NULL DEFAULT '',
    latitude       REAL,
    longitude      REAL,
    address        TEXT NOT NULL DEFAULT '',
    brand          TEXT NOT NULL DEFAULT '',
    model          TEXT NOT NULL DEFAULT '',
    os_name        TEXT NOT NULL DEFAULT '',
    os_version     TEXT NOT NULL DEFAULT '',
    timestamp      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_device_ts ON intruder_attempts(device_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_attempts_ts ON intruder_attempts(timestamp DESC);
`,
	},
	// Migration 2: pocket mode toggle.
	{
		version: 2,
		sql: `ALTER TABLE security_settings ADD COLUMN proximity_mode_enabled INTEGER NOT NULL DEFAULT 1;`,
	},
}

// SQLite is the SQLite-backed implementation of SettingsStore, Journal and
// History.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ SettingsStore = (*SQLite)(nil)
	_ Journal       = (*SQLite)(nil)
	_ History       = (*SQLite)(nil)
)

// OpenSQLite opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One connection keeps PRAGMAs and ":memory:" contents consistent;
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLite{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

// LatestSchemaVersion is the version the newest migration brings a database to.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// SchemaVersion returns the highest applied migration.
func (s *SQLite) SchemaVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_versions`).Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Ping checks that the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Settings ────────────────────────────────────────────────────────────────

const settingsColumns = `device_id,pin_code,max_attempts,lockout_duration,alarm_enabled,camera_enabled,location_enabled,proximity_mode_enabled,created_at,updated_at`

// Get returns the settings for deviceID or nil when none exist.
func (s *SQLite) Get(ctx context.Context, deviceID string) (*model.Settings, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+settingsColumns+` FROM security_settings WHERE device_id=?`, deviceID)
	st, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return st, nil
}

// Create inserts default settings. It fails with E_SETTINGS_EXIST when the
// device already has a record.
func (s *SQLite) Create(ctx context.Context, deviceID string, pin model.Credential) (*model.Settings, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM security_settings WHERE device_id=?`, deviceID).Scan(&count); err != nil {
		return nil, fmt.Errorf("check settings: %w", err)
	}
	if count > 0 {
		return nil, errclass.ErrSettingsExist.WithMessagef("settings already exist for device %s", deviceID)
	}

	st := model.NewSettings(deviceID, pin, s.now().UTC())
	_, err = tx.ExecContext(ctx, `
        INSERT INTO security_settings(`+settingsColumns+`)
        VALUES(?,?,?,?,?,?,?,?,?,?)
    `,
		st.DeviceID, string(st.PINCode), st.MaxAttempts, st.LockoutDurationSeconds,
		st.AlarmEnabled, st.CameraEnabled, st.LocationEnabled, st.ProximityModeEnabled,
		formatTime(st.CreatedAt), formatTime(st.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("create settings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settings: %w", err)
	}
	return st, nil
}

// Update applies u inside a transaction.
func (s *SQLite) Update(ctx context.Context, deviceID string, u model.SettingsUpdate) (*model.Settings, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+settingsColumns+` FROM security_settings WHERE device_id=?`, deviceID)
	st, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errclass.ErrSettingsNotFound.WithMessagef("no settings for device %s", deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	u.Apply(st)
	st.UpdatedAt = s.now().UTC()

	_, err = tx.ExecContext(ctx, `
        UPDATE security_settings SET
            pin_code=?, max_attempts=?, lockout_duration=?,
            alarm_enabled=?, camera_enabled=?, location_enabled=?, proximity_mode_enabled=?,
            updated_at=?
        WHERE device_id=?
    `,
		string(st.PINCode), st.MaxAttempts, st.LockoutDurationSeconds,
		st.AlarmEnabled, st.CameraEnabled, st.LocationEnabled, st.ProximityModeEnabled,
		formatTime(st.UpdatedAt), deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settings: %w", err)
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettings(row rowScanner) (*model.Settings, error) {
	st := &model.Settings{}
	var pin, createdAt, updatedAt string
	err := row.Scan(&st.DeviceID, &pin, &st.MaxAttempts, &st.LockoutDurationSeconds,
		&st.AlarmEnabled, &st.CameraEnabled, &st.LocationEnabled, &st.ProximityModeEnabled,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	st.PINCode = model.Credential(pin)
	st.CreatedAt, _ = parseTime(createdAt)
	st.UpdatedAt, _ = parseTime(updatedAt)
	return st, nil
}

// ─── Security events ─────────────────────────────────────────────────────────

// AppendEvent stores a security event.
func (s *SQLite) AppendEvent(ctx context.Context, e *model.SecurityEvent) error {
	details := "{}"
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		details = string(b)
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO security_events(id, device_id, event_type, details, timestamp)
        VALUES(?,?,?,?,?)
    `, e.ID, e.DeviceID, string(e.Type), details, formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns events newest first.
func (s *SQLite) ListEvents(ctx context.Context, deviceID string, limit int) ([]*model.SecurityEvent, error) {
	query, args := listQuery(`SELECT id,device_id,event_type,details,timestamp FROM security_events`, deviceID, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var result []*model.SecurityEvent
	for rows.Next() {
		e := &model.SecurityEvent{}
		var typ, details, ts string
		if err := rows.Scan(&e.ID, &e.DeviceID, &typ, &details, &ts); err != nil {
			return nil, err
		}
		e.Type = model.EventType(typ)
		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, fmt.Errorf("decode details of %s: %w", e.ID, err)
			}
		}
		e.Timestamp, _ = parseTime(ts)
		result = append(result, e)
	}
	return result, rows.Err()
}

// ─── Intruder attempts ───────────────────────────────────────────────────────

// AppendAttempt stores an intruder attempt.
func (s *SQLite) AppendAttempt(ctx context.Context, a *model.IntruderAttempt) error {
	var lat, lon sql.NullFloat64
	var address string
	if a.Location != nil {
		lat = sql.NullFloat64{Float64: a.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: a.Location.Longitude, Valid: true}
		address = a.Location.Address
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO intruder_attempts(id, device_id, attempt_count, image_url, latitude, longitude, address,
            brand, model, os_name, os_version, timestamp)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
    `,
		a.ID, a.DeviceID, a.AttemptCount, a.ImageRef, lat, lon, address,
		a.DeviceInfo.Brand, a.DeviceInfo.Model, a.DeviceInfo.OSName, a.DeviceInfo.OSVersion,
		formatTime(a.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// ListAttempts returns intruder attempts newest first.
func (s *SQLite) ListAttempts(ctx context.Context, deviceID string, limit int) ([]*model.IntruderAttempt, error) {
	query, args := listQuery(`SELECT id,device_id,attempt_count,image_url,latitude,longitude,address,
        brand,model,os_name,os_version,timestamp FROM intruder_attempts`, deviceID, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var result []*model.IntruderAttempt
	for rows.Next() {
		a := &model.IntruderAttempt{}
		var lat, lon sql.NullFloat64
		var address, ts string
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.AttemptCount, &a.ImageRef, &lat, &lon, &address,
			&a.DeviceInfo.Brand, &a.DeviceInfo.Model, &a.DeviceInfo.OSName, &a.DeviceInfo.OSVersion, &ts); err != nil {
			return nil, err
		}
		if lat.Valid && lon.Valid {
			a.Location = &model.Location{Latitude: lat.Float64, Longitude: lon.Float64, Address: address}
		}
		a.Timestamp, _ = parseTime(ts)
		result = append(result, a)
	}
	return result, rows.Err()
}

// ImageRefs returns every photo reference held by an intruder attempt.
func (s *SQLite) ImageRefs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT image_url FROM intruder_attempts WHERE image_url <> ''`)
	if err != nil {
		return nil, fmt.Errorf("list image refs: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func listQuery(base, deviceID string, limit int) (string, []any) {
	var b strings.Builder
	b.WriteString(base)
	var args []any
	if deviceID != "" {
		b.WriteString(` WHERE device_id = ?`)
		args = append(args, deviceID)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	b.WriteString(` ORDER BY timestamp DESC, rowid DESC LIMIT ?`)
	args = append(args, limit)
	return b.String(), args
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	for _, l := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
