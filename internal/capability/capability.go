// Package capability declares the platform collaborators the lock
// coordinator drives, and ships headless and simulated providers for them.
package capability

import (
	"context"
	"strings"
	"time"

	"github.com/securelock/securelock/pkg/model"
)

// Alarm plays and silences the audible alarm. Play returns once playback
// has started; the sound continues until Stop.
type Alarm interface {
	Play(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Camera captures a still image and returns a reference to it.
type Camera interface {
	RequestPermission(ctx context.Context) (bool, error)
	Capture(ctx context.Context) (string, error)
}

// Locator obtains a coordinate fix.
type Locator interface {
	RequestPermission(ctx context.Context) (bool, error)
	Fix(ctx context.Context) (*model.Location, error)
}

// Geocoder turns coordinates into a postal address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// Sensor delivers periodic readings. The returned function unsubscribes and
// closes the channel; it is safe to call more than once.
type Sensor interface {
	Subscribe(ctx context.Context, kind model.SensorKind, interval time.Duration) (<-chan model.Reading, func(), error)
}

// Set bundles the providers chosen at composition time. Geocoder may be nil.
type Set struct {
	Alarm    Alarm
	Camera   Camera
	Locator  Locator
	Geocoder Geocoder
	Sensors  Sensor
}

// FormatAddress joins the non-empty address components as
// "street, city, region, country".
func FormatAddress(street, city, region, country string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{street, city, region, country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
