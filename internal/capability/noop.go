package capability

import (
	"context"
	"time"

	"github.com/securelock/securelock/pkg/errclass"
	"github.com/securelock/securelock/pkg/model"
)

// Noop returns providers for a headless host: the alarm is silent,
// permissions are never granted and no sensors exist.
func Noop() Set {
	return Set{
		Alarm:   noopAlarm{},
		Camera:  noopCamera{},
		Locator: noopLocator{},
		Sensors: noopSensor{},
	}
}

type noopAlarm struct{}

func (noopAlarm) Play(context.Context) error { return nil }
func (noopAlarm) Stop(context.Context) error { return nil }

type noopCamera struct{}

func (noopCamera) RequestPermission(context.Context) (bool, error) { return false, nil }

func (noopCamera) Capture(context.Context) (string, error) {
	return "", errclass.ErrCapabilityUnavailable.WithMessage("no camera")
}

type noopLocator struct{}

func (noopLocator) RequestPermission(context.Context) (bool, error) { return false, nil }

func (noopLocator) Fix(context.Context) (*model.Location, error) {
	return nil, errclass.ErrCapabilityUnavailable.WithMessage("no location provider")
}

type noopSensor struct{}

func (noopSensor) Subscribe(_ context.Context, kind model.SensorKind, _ time.Duration) (<-chan model.Reading, func(), error) {
	return nil, nil, errclass.ErrCapabilityUnavailable.WithMessagef("no %s sensor", kind)
}
