// Package device manages the on-disk data directory and the stable identity
// of the device being protected.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/securelock/securelock/pkg/errclass"
	"github.com/securelock/securelock/pkg/fsutil"
	"github.com/securelock/securelock/pkg/model"
)

const (
	FormatVersion     = 1
	FormatVersionFile = "format_version"
	DeviceIDFile      = "device_id"
	MediaDirName      = "media"
	AuditDirName      = "audit"
)

// Device is an opened data directory.
type Device struct {
	DataDir       string
	FormatVersion int
	ID            string
	Info          model.DeviceInfo
}

// Prober reports host metadata.
type Prober func() model.DeviceInfo

// Open prepares dataDir and returns the device identity stored there,
// generating and persisting one on first use. A nil probe uses ProbeHost.
func Open(dataDir string, probe Prober, now time.Time) (*Device, error) {
	if probe == nil {
		probe = ProbeHost
	}
	for _, dir := range []string{
		dataDir,
		filepath.Join(dataDir, MediaDirName),
		filepath.Join(dataDir, AuditDirName),
	} {
		if err := fsutil.EnsureDir(dir); err != nil {
			return nil, err
		}
	}

	version, err := readFormatVersion(dataDir)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		version = FormatVersion
		if err := fsutil.AtomicWrite(filepath.Join(dataDir, FormatVersionFile), []byte("1\n"), 0600); err != nil {
			return nil, fmt.Errorf("write format_version: %w", err)
		}
	}
	if version > FormatVersion {
		return nil, errclass.ErrConfigInvalid.WithMessagef(
			"data directory format version %d > supported %d", version, FormatVersion)
	}

	info := probe()
	id, err := readDeviceID(dataDir)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = GenerateID(info, now)
		if err := fsutil.AtomicWrite(filepath.Join(dataDir, DeviceIDFile), []byte(id+"\n"), 0600); err != nil {
			return nil, fmt.Errorf("write device_id: %w", err)
		}
	}

	return &Device{
		DataDir:       dataDir,
		FormatVersion: version,
		ID:            id,
		Info:          info,
	}, nil
}

// GenerateID derives a new identity from the device model, OS version and
// the current time.
func GenerateID(info model.DeviceInfo, now time.Time) string {
	seed := info.Model + "-" + info.OSVersion + "-" + strconv.FormatInt(now.UnixNano(), 10)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// MediaDir is where captured images are written.
func (d *Device) MediaDir() string {
	return filepath.Join(d.DataDir, MediaDirName)
}

func readFormatVersion(dataDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, FormatVersionFile))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read format_version: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errclass.ErrConfigInvalid.WithMessagef("malformed format_version: %q", strings.TrimSpace(string(data)))
	}
	return v, nil
}

func readDeviceID(dataDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, DeviceIDFile))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read device_id: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
