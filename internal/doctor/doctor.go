// Package doctor checks a data directory for problems.
package doctor

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/securelock/securelock/internal/device"
	"github.com/securelock/securelock/internal/lease"
	"github.com/securelock/securelock/internal/store"
	"github.com/securelock/securelock/pkg/config"
	"github.com/securelock/securelock/pkg/fsutil"
	"github.com/securelock/securelock/pkg/model"
)

// Severities, most severe first.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity == SeverityCritical || f.Severity == SeverityError {
		r.Healthy = false
	}
}

// Database is the part of the store the doctor probes.
type Database interface {
	Ping(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
}

// Journal is the part of the audit journal the doctor verifies.
type Journal interface {
	Path() string
	Verify() (int, error)
}

// Options configures a Doctor. Nil components are skipped.
type Options struct {
	DataDir string
	DB      Database
	Journal Journal
	Leases  *lease.Manager
}

// Doctor performs data directory health checks.
type Doctor struct {
	opts Options
}

// NewDoctor creates a new doctor.
func NewDoctor(opts Options) *Doctor {
	return &Doctor{opts: opts}
}

// Check runs all diagnostic checks. Strict mode also walks the audit
// journal hash chain.
func (d *Doctor) Check(ctx context.Context, strict bool) *Result {
	result := &Result{Healthy: true}

	d.checkFormatVersion(result)
	d.checkDeviceID(result)
	d.checkConfig(result)
	d.checkDatabase(ctx, result)
	d.checkLease(result)
	if strict {
		d.checkAuditChain(result)
	}
	d.checkOrphanTmp(result)

	return result
}

func (d *Doctor) checkFormatVersion(result *Result) {
	path := filepath.Join(d.opts.DataDir, device.FormatVersionFile)
	data, err := os.ReadFile(path)
	if err != nil {
		result.add(Finding{
			Category:    "format",
			Description: "format_version file missing or unreadable",
			Severity:    SeverityCritical,
			Path:        path,
		})
		return
	}

	version, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		result.add(Finding{
			Category:    "format",
			Description: fmt.Sprintf("malformed format_version %q", strings.TrimSpace(string(data))),
			Severity:    SeverityCritical,
			Path:        path,
		})
		return
	}
	if version > device.FormatVersion {
		result.add(Finding{
			Category:    "format",
			Description: fmt.Sprintf("format version %d > supported %d", version, device.FormatVersion),
			Severity:    SeverityCritical,
			Path:        path,
		})
	}
}

func (d *Doctor) checkDeviceID(result *Result) {
	path := filepath.Join(d.opts.DataDir, device.DeviceIDFile)
	data, err := os.ReadFile(path)
	if err != nil {
		result.add(Finding{
			Category:    "device",
			Description: "device_id file missing or unreadable",
			Severity:    SeverityCritical,
			Path:        path,
		})
		return
	}
	id := strings.TrimSpace(string(data))
	if _, err := hex.DecodeString(id); err != nil || len(id) != 64 {
		result.add(Finding{
			Category:    "device",
			Description: fmt.Sprintf("device_id %q is not a SHA-256 hex digest", id),
			Severity:    SeverityError,
			Path:        path,
		})
	}
}

func (d *Doctor) checkConfig(result *Result) {
	if _, err := config.Load(d.opts.DataDir); err != nil {
		result.add(Finding{
			Category:    "config",
			Description: err.Error(),
			Severity:    SeverityError,
			Path:        filepath.Join(d.opts.DataDir, config.FileName),
		})
	}
}

func (d *Doctor) checkDatabase(ctx context.Context, result *Result) {
	if d.opts.DB == nil {
		return
	}
	if err := d.opts.DB.Ping(ctx); err != nil {
		result.add(Finding{
			Category:    "database",
			Description: fmt.Sprintf("database unreachable: %v", err),
			Severity:    SeverityCritical,
		})
		return
	}
	version, err := d.opts.DB.SchemaVersion(ctx)
	if err != nil {
		result.add(Finding{
			Category:    "database",
			Description: fmt.Sprintf("cannot read schema version: %v", err),
			Severity:    SeverityError,
		})
		return
	}
	if latest := store.LatestSchemaVersion(); version < latest {
		result.add(Finding{
			Category:    "database",
			Description: fmt.Sprintf("schema version %d behind latest %d", version, latest),
			Severity:    SeverityWarning,
		})
	}
}

func (d *Doctor) checkLease(result *Result) {
	if d.opts.Leases == nil {
		return
	}
	state, rec, err := d.opts.Leases.Status()
	if err != nil {
		result.add(Finding{
			Category:    "session",
			Description: fmt.Sprintf("unreadable session lease: %v", err),
			Severity:    SeverityWarning,
			Path:        d.opts.Leases.Path(),
		})
		return
	}
	if state == model.LeaseExpired {
		result.add(Finding{
			Category:    "session",
			Description: fmt.Sprintf("stale session lease from pid %d (expired %s)", rec.PID, rec.ExpiresAt.Format(time.RFC3339)),
			Severity:    SeverityInfo,
			Path:        d.opts.Leases.Path(),
		})
	}
}

func (d *Doctor) checkAuditChain(result *Result) {
	if d.opts.Journal == nil {
		return
	}
	if _, err := d.opts.Journal.Verify(); err != nil {
		result.add(Finding{
			Category:    "audit",
			Description: err.Error(),
			Severity:    SeverityCritical,
			Path:        d.opts.Journal.Path(),
		})
	}
}

func (d *Doctor) checkOrphanTmp(result *Result) {
	filepath.Walk(d.opts.DataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if strings.HasPrefix(info.Name(), fsutil.TempPrefix) {
			result.add(Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", info.Name()),
				Severity:    SeverityInfo,
				Path:        path,
			})
		}
		return nil
	})
}
