package capability

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/securelock/securelock/pkg/errclass"
	"github.com/securelock/securelock/pkg/fsutil"
	"github.com/securelock/securelock/pkg/logging"
	"github.com/securelock/securelock/pkg/model"
	"github.com/securelock/securelock/pkg/uuidutil"
)

// An alarm start is accompanied by HapticPulses heavy vibrations spaced
// HapticPulseInterval apart.
const (
	HapticPulses        = 5
	HapticPulseInterval = 300 * time.Millisecond
)

// SimulatedAlarm records whether it is sounding and the haptic pulses it
// would have fired.
type SimulatedAlarm struct {
	logger  *logging.Logger
	mu      sync.Mutex
	playing bool
	plays   int
	pulses  int
	err     error
}

// NewSimulatedAlarm creates an alarm that logs instead of making noise.
func NewSimulatedAlarm(logger *logging.Logger) *SimulatedAlarm {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SimulatedAlarm{logger: logger.WithFields(map[string]any{"capability": "alarm"})}
}

// Fail makes subsequent Play calls return err.
func (a *SimulatedAlarm) Fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

func (a *SimulatedAlarm) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.playing = true
	a.plays++
	a.logger.Warn("alarm sounding")
	for i := 0; i < HapticPulses; i++ {
		a.pulses++
		a.logger.Debug("haptic pulse", map[string]any{
			"pulse":     i + 1,
			"offset_ms": (time.Duration(i) * HapticPulseInterval).Milliseconds(),
		})
	}
	return nil
}

func (a *SimulatedAlarm) Stop(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.playing {
		a.logger.Info("alarm silenced")
	}
	a.playing = false
	return nil
}

// Playing reports whether the alarm is currently sounding.
func (a *SimulatedAlarm) Playing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing
}

// Pulses returns how many haptic pulses were fired in total.
func (a *SimulatedAlarm) Pulses() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pulses
}

// Plays returns how many times the alarm was started.
func (a *SimulatedAlarm) Plays() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.plays
}

// SimulatedCamera writes a placeholder JPEG into a media directory.
type SimulatedCamera struct {
	MediaDir string
	Deny     bool
}

func (c *SimulatedCamera) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return !c.Deny, nil
}

func (c *SimulatedCamera) Capture(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Deny {
		return "", errclass.ErrPermissionDenied.WithMessage("camera")
	}

	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 4)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return "", fmt.Errorf("encode capture: %w", err)
	}

	if err := os.MkdirAll(c.MediaDir, 0700); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	path := filepath.Join(c.MediaDir, "intruder-"+uuidutil.NewV4()+".jpg")
	if err := fsutil.AtomicWrite(path, buf.Bytes(), 0600); err != nil {
		return "", fmt.Errorf("store capture: %w", err)
	}
	return path, nil
}

// SimulatedLocator reports a fixed position.
type SimulatedLocator struct {
	Latitude  float64
	Longitude float64
	Deny      bool
}

func (l *SimulatedLocator) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return !l.Deny, nil
}

func (l *SimulatedLocator) Fix(ctx context.Context) (*model.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.Deny {
		return nil, errclass.ErrPermissionDenied.WithMessage("location")
	}
	return &model.Location{Latitude: l.Latitude, Longitude: l.Longitude}, nil
}

// StaticGeocoder resolves every coordinate to the same address.
type StaticGeocoder struct {
	Street, City, Region, Country string
}

func (g StaticGeocoder) ReverseGeocode(ctx context.Context, _, _ float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	addr := FormatAddress(g.Street, g.City, g.Region, g.Country)
	if addr == "" {
		return "", fmt.Errorf("no address for location")
	}
	return addr, nil
}

// SensorHub is a Sensor whose readings are pushed by the caller via Emit.
// Slow subscribers drop readings rather than block producers.
type SensorHub struct {
	mu   sync.Mutex
	subs map[model.SensorKind]map[int]chan model.Reading
	next int
}

// NewSensorHub creates an empty hub.
func NewSensorHub() *SensorHub {
	return &SensorHub{subs: make(map[model.SensorKind]map[int]chan model.Reading)}
}

func (h *SensorHub) Subscribe(ctx context.Context, kind model.SensorKind, _ time.Duration) (<-chan model.Reading, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	ch := make(chan model.Reading, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	if h.subs[kind] == nil {
		h.subs[kind] = make(map[int]chan model.Reading)
	}
	h.subs[kind][id] = ch
	h.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			h.mu.Lock()
			delete(h.subs[kind], id)
			close(ch)
			h.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return ch, cancel, nil
}

// Emit delivers r to every subscriber of r.Kind.
func (h *SensorHub) Emit(r model.Reading) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[r.Kind] {
		select {
		case ch <- r:
		default:
		}
	}
}

// Subscribers returns the number of active subscriptions for kind.
func (h *SensorHub) Subscribers(kind model.SensorKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[kind])
}
