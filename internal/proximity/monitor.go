// Package proximity fuses the ambient light and accelerometer streams into a
// single "device is near something" signal used for pocket mode.
package proximity

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/securelock/securelock/internal/capability"
	"github.com/securelock/securelock/internal/store"
	"github.com/securelock/securelock/pkg/logging"
	"github.com/securelock/securelock/pkg/metrics"
	"github.com/securelock/securelock/pkg/model"
)

// Defaults for Options fields left zero.
const (
	DefaultLightThreshold = 10.0
	DefaultFaceDownZ      = -9.0
	DefaultFlatZ          = 9.0
	DefaultInterval       = time.Second
	DefaultProbeWait      = 500 * time.Millisecond
)

// Options configures a Monitor.
type Options struct {
	Sensors        capability.Sensor
	LightThreshold float64
	FaceDownZ      float64
	FlatZ          float64
	Interval       time.Duration
	ProbeWait      time.Duration

	Clock    clockwork.Clock
	Recorder *store.Recorder // optional; receives proximity_activated
	DeviceID string
	Logger   *logging.Logger
	Metrics  *metrics.Registry
}

// Monitor owns the fused isNear state. Every light sample sets
// isNear = lux < LightThreshold; every face-down accelerometer sample sets
// isNear = true. Whichever sample arrives last wins.
type Monitor struct {
	opts   Options
	logger *logging.Logger

	// lifecycleMu serializes Start and Stop; notifyMu orders state changes
	// and their callbacks.
	lifecycleMu sync.Mutex
	notifyMu    sync.Mutex

	mu       sync.Mutex
	near     bool
	onChange func(near bool)
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	unsubs   []func()
	wg       sync.WaitGroup
}

// NewMonitor creates a stopped monitor.
func NewMonitor(opts Options) *Monitor {
	if opts.LightThreshold == 0 {
		opts.LightThreshold = DefaultLightThreshold
	}
	if opts.FaceDownZ == 0 {
		opts.FaceDownZ = DefaultFaceDownZ
	}
	if opts.FlatZ == 0 {
		opts.FlatZ = DefaultFlatZ
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ProbeWait <= 0 {
		opts.ProbeWait = DefaultProbeWait
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Monitor{
		opts:   opts,
		logger: opts.Logger.WithFields(map[string]any{"component": "proximity"}),
		ctx:    context.Background(),
	}
}

// OnChange registers fn to be called with the new state on every change.
// fn must not call Stop.
func (m *Monitor) OnChange(fn func(near bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// IsNear returns the fused state.
func (m *Monitor) IsNear() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.near
}

// Running reports whether the monitor is subscribed to its sensors.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ObserveLight applies one ambient light sample.
func (m *Monitor) ObserveLight(lux float64) {
	m.set(lux < m.opts.LightThreshold)
}

// ObserveOrientation applies one accelerometer sample. Only a face-down
// reading has any effect.
func (m *Monitor) ObserveOrientation(z float64) {
	if z < m.opts.FaceDownZ {
		m.set(true)
	}
}

func (m *Monitor) set(near bool) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	prev := m.near
	m.near = near
	fn := m.onChange
	ctx := m.ctx
	m.mu.Unlock()

	if prev == near {
		return
	}
	m.opts.Metrics.SetInPocket(near)
	m.logger.Debug("proximity changed", map[string]any{"near": near})
	if near && m.opts.Recorder != nil {
		m.opts.Recorder.Event(ctx, m.opts.DeviceID, model.EventProximityActivated, nil)
	}
	if fn != nil {
		fn(near)
	}
}

// Start subscribes to both sensors. It fails if either subscription fails,
// leaving the monitor stopped.
func (m *Monitor) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	light, stopLight, err := m.opts.Sensors.Subscribe(runCtx, model.SensorLight, m.opts.Interval)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe light sensor: %w", err)
	}
	accel, stopAccel, err := m.opts.Sensors.Subscribe(runCtx, model.SensorAccelerometer, m.opts.Interval)
	if err != nil {
		stopLight()
		cancel()
		return fmt.Errorf("subscribe accelerometer: %w", err)
	}

	m.mu.Lock()
	m.running = true
	m.ctx = runCtx
	m.cancel = cancel
	m.unsubs = []func(){stopLight, stopAccel}
	m.mu.Unlock()

	m.wg.Add(2)
	go m.listen(runCtx, light, func(r model.Reading) { m.ObserveLight(r.Illuminance) })
	go m.listen(runCtx, accel, func(r model.Reading) { m.ObserveOrientation(r.Z) })

	m.logger.Info("proximity monitoring started", map[string]any{"interval": m.opts.Interval.String()})
	return nil
}

func (m *Monitor) listen(ctx context.Context, ch <-chan model.Reading, apply func(model.Reading)) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-ch:
			if !ok {
				return
			}
			apply(r)
		}
	}
}

// Stop unsubscribes both sensors and resets the state to not near.
func (m *Monitor) Stop() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	unsubs, cancel := m.unsubs, m.cancel
	m.running = false
	m.unsubs = nil
	m.cancel = nil
	m.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	cancel()
	m.wg.Wait()

	m.mu.Lock()
	m.ctx = context.Background()
	m.mu.Unlock()
	m.set(false)
	m.logger.Info("proximity monitoring stopped")
}

// InPocket takes one reading from each sensor and reports whether the light
// sensor is covered or the device lies flat or face down. A sensor that
// does not answer within ProbeWait counts as not detected.
func (m *Monitor) InPocket(ctx context.Context) bool {
	var covered, flat bool
	var g errgroup.Group
	g.Go(func() error {
		if r, ok := m.probe(ctx, model.SensorLight); ok {
			covered = r.Illuminance < m.opts.LightThreshold
		}
		return nil
	})
	g.Go(func() error {
		if r, ok := m.probe(ctx, model.SensorAccelerometer); ok {
			flat = math.Abs(r.Z) > m.opts.FlatZ || r.Z < m.opts.FaceDownZ
		}
		return nil
	})
	_ = g.Wait()
	return covered || flat
}

func (m *Monitor) probe(ctx context.Context, kind model.SensorKind) (model.Reading, bool) {
	ch, stop, err := m.opts.Sensors.Subscribe(ctx, kind, m.opts.Interval)
	if err != nil {
		m.logger.Debug("pocket probe unavailable", map[string]any{"sensor": string(kind), "error": err.Error()})
		return model.Reading{}, false
	}
	defer stop()

	select {
	case r, ok := <-ch:
		return r, ok
	case <-m.opts.Clock.After(m.opts.ProbeWait):
		return model.Reading{}, false
	case <-ctx.Done():
		return model.Reading{}, false
	}
}
