package device

import (
	"os"
	"runtime"
	"strings"

	"github.com/securelock/securelock/pkg/model"
)

const unknown = "Unknown"

// sysfs and procfs locations read by ProbeHost. Variables so tests can point
// them at fixtures.
var (
	vendorPath    = "/sys/class/dmi/id/sys_vendor"
	productPath   = "/sys/class/dmi/id/product_name"
	osReleasePath = "/proc/sys/kernel/osrelease"
)

// ProbeHost reads device metadata from the running host. Fields that cannot
// be determined are reported as "Unknown".
func ProbeHost() model.DeviceInfo {
	return model.DeviceInfo{
		Brand:     readFirstLine(vendorPath),
		Model:     readFirstLine(productPath),
		OSName:    runtime.GOOS,
		OSVersion: readFirstLine(osReleasePath),
	}
}

func readFirstLine(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return unknown
	}
	line, _, _ := strings.Cut(string(data), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return unknown
	}
	return line
}
