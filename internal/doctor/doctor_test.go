package doctor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securelock/securelock/internal/audit"
	"github.com/securelock/securelock/internal/device"
	"github.com/securelock/securelock/internal/doctor"
	"github.com/securelock/securelock/internal/lease"
	"github.com/securelock/securelock/internal/store"
	"github.com/securelock/securelock/pkg/fsutil"
	"github.com/securelock/securelock/pkg/model"
)

func fixedProbe() model.DeviceInfo {
	return model.DeviceInfo{Brand: "Acme", Model: "X1", OSName: "linux", OSVersion: "6.1"}
}

type env struct {
	dir     string
	db      *store.SQLite
	journal *audit.FileAppender
	leases  *lease.Manager
	clock   interface {
		clockwork.Clock
		Advance(time.Duration)
	}
}

func setupDataDir(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	_, err := device.Open(dir, fixedProbe, time.Now())
	require.NoError(t, err)

	db, err := store.OpenSQLite(filepath.Join(dir, "securelock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := clockwork.NewFakeClock()
	return &env{
		dir:     dir,
		db:      db,
		journal: audit.NewFileAppender(filepath.Join(dir, "audit", "journal.jsonl")),
		leases:  lease.NewManager(dir, time.Minute, clock),
		clock:   clock,
	}
}

func (e *env) doctor() *doctor.Doctor {
	return doctor.NewDoctor(doctor.Options{DataDir: e.dir, DB: e.db, Journal: e.journal, Leases: e.leases})
}

func categories(r *doctor.Result) []string {
	var out []string
	for _, f := range r.Findings {
		out = append(out, f.Category)
	}
	return out
}

func TestDoctor_Check_Healthy(t *testing.T) {
	e := setupDataDir(t)
	require.NoError(t, e.journal.AppendEvent(context.Background(), &model.SecurityEvent{
		ID: "e1", DeviceID: "d", Type: model.EventUnlockFail, Timestamp: time.Now(),
	}))

	result := e.doctor().Check(context.Background(), true)
	assert.True(t, result.Healthy)
	assert.Empty(t, result.Findings)
}

func TestDoctor_Check_MissingFormatVersion(t *testing.T) {
	e := setupDataDir(t)
	require.NoError(t, os.Remove(filepath.Join(e.dir, device.FormatVersionFile)))

	result := e.doctor().Check(context.Background(), false)
	assert.False(t, result.Healthy)
	assert.Equal(t, []string{"format"}, categories(result))
	assert.Equal(t, doctor.SeverityCritical, result.Findings[0].Severity)
}

func TestDoctor_Check_FutureFormatVersion(t *testing.T) {
	e := setupDataDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, device.FormatVersionFile), []byte("99\n"), 0600))

	result := e.doctor().Check(context.Background(), false)
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Findings[0].Description, "99 > supported 1")
}

func TestDoctor_Check_BadDeviceID(t *testing.T) {
	e := setupDataDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, device.DeviceIDFile), []byte("not-a-hash\n"), 0600))

	result := e.doctor().Check(context.Background(), false)
	assert.False(t, result.Healthy)
	assert.Equal(t, []string{"device"}, categories(result))
}

func TestDoctor_Check_InvalidConfig(t *testing.T) {
	e := setupDataDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, "config.yaml"), []byte("database_path: \"\"\n"), 0600))

	result := e.doctor().Check(context.Background(), false)
	assert.False(t, result.Healthy)
	assert.Equal(t, []string{"config"}, categories(result))
}

type brokenDB struct{}

func (brokenDB) Ping(context.Context) error                 { return errors.New("database is locked") }
func (brokenDB) SchemaVersion(context.Context) (int, error) { return 0, nil }

type oldDB struct{}

func (oldDB) Ping(context.Context) error                 { return nil }
func (oldDB) SchemaVersion(context.Context) (int, error) { return 1, nil }

func TestDoctor_Check_Database(t *testing.T) {
	e := setupDataDir(t)

	result := doctor.NewDoctor(doctor.Options{DataDir: e.dir, DB: brokenDB{}}).Check(context.Background(), false)
	assert.False(t, result.Healthy)
	assert.Equal(t, []string{"database"}, categories(result))

	result = doctor.NewDoctor(doctor.Options{DataDir: e.dir, DB: oldDB{}}).Check(context.Background(), false)
	assert.True(t, result.Healthy)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, doctor.SeverityWarning, result.Findings[0].Severity)
}

func TestDoctor_Check_StaleLease(t *testing.T) {
	e := setupDataDir(t)
	_, err := e.leases.Acquire("session")
	require.NoError(t, err)

	result := e.doctor().Check(context.Background(), false)
	assert.Empty(t, result.Findings, "a live lease is not a finding")

	e.clock.Advance(2 * time.Minute)
	result = e.doctor().Check(context.Background(), false)
	assert.True(t, result.Healthy)
	assert.Equal(t, []string{"session"}, categories(result))
	assert.Equal(t, doctor.SeverityInfo, result.Findings[0].Severity)
}

func TestDoctor_Check_StrictDetectsBrokenChain(t *testing.T) {
	e := setupDataDir(t)
	require.NoError(t, os.WriteFile(e.journal.Path(), []byte("{not json}\n"), 0600))

	result := e.doctor().Check(context.Background(), false)
	assert.True(t, result.Healthy, "the chain is only walked in strict mode")

	result = e.doctor().Check(context.Background(), true)
	assert.False(t, result.Healthy)
	assert.Equal(t, []string{"audit"}, categories(result))
}

func TestDoctor_Check_OrphanTmp(t *testing.T) {
	e := setupDataDir(t)
	tmpPath := filepath.Join(e.dir, "media", fsutil.TempPrefix+"12345")
	require.NoError(t, os.WriteFile(tmpPath, []byte("partial"), 0600))

	result := e.doctor().Check(context.Background(), false)
	assert.True(t, result.Healthy)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "tmp", result.Findings[0].Category)
	assert.Equal(t, tmpPath, result.Findings[0].Path)
}
