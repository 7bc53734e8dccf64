// Package intrusion runs the forensic response when the unlock attempt
// budget is exhausted: sound the alarm, photograph the intruder and fix the
// device location, all at once, then journal what was gathered.
package intrusion

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/securelock/securelock/internal/capability"
	"github.com/securelock/securelock/internal/store"
	"github.com/securelock/securelock/pkg/errclass"
	"github.com/securelock/securelock/pkg/logging"
	"github.com/securelock/securelock/pkg/metrics"
	"github.com/securelock/securelock/pkg/model"
)

// Branch names one concurrent sub-action of the response.
type Branch string

const (
	BranchAlarm    Branch = "alarm"
	BranchCamera   Branch = "camera"
	BranchLocation Branch = "location"
)

// Status is how a branch ended.
type Status string

const (
	StatusSkipped   Status = metrics.OutcomeSkipped
	StatusCompleted Status = metrics.OutcomeCompleted
	StatusDenied    Status = metrics.OutcomeDenied
	StatusFailed    Status = metrics.OutcomeFailed
)

// BranchResult is the explicit result of one branch. Err is set only for
// StatusDenied and StatusFailed.
type BranchResult struct {
	Branch Branch `json:"branch"`
	Status Status `json:"status"`
	Err    error  `json:"-"`
}

// Outcome summarizes one response.
type Outcome struct {
	Attempt  *model.IntruderAttempt `json:"attempt"`
	Alarm    BranchResult           `json:"alarm"`
	Camera   BranchResult           `json:"camera"`
	Location BranchResult           `json:"location"`
}

// AlarmRan reports whether the alarm branch was attempted.
func (o *Outcome) AlarmRan() bool {
	return o.Alarm.Status != StatusSkipped
}

// Options configures a Responder.
type Options struct {
	Capabilities capability.Set
	Recorder     *store.Recorder
	DeviceID     string
	DeviceInfo   model.DeviceInfo
	Clock        clockwork.Clock
	Logger       *logging.Logger
	Metrics      *metrics.Registry
}

// Responder orchestrates the intrusion response.
type Responder struct {
	caps     capability.Set
	recorder *store.Recorder
	deviceID string
	info     model.DeviceInfo
	clock    clockwork.Clock
	logger   *logging.Logger
	metrics  *metrics.Registry
}

// NewResponder creates a responder.
func NewResponder(opts Options) *Responder {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Recorder == nil {
		opts.Recorder = store.NewRecorder(opts.Clock, opts.Logger, opts.Metrics)
	}
	return &Responder{
		caps:     opts.Capabilities,
		recorder: opts.Recorder,
		deviceID: opts.DeviceID,
		info:     opts.DeviceInfo,
		clock:    opts.Clock,
		logger:   opts.Logger.WithFields(map[string]any{"component": "intrusion"}),
		metrics:  opts.Metrics,
	}
}

// Respond runs the alarm, camera and location branches concurrently, waits
// for all of them, then records one intruder attempt tagged with
// failedCount, a lockout_started event and, if the alarm ran, an
// alarm_triggered event. Branch failures never escape; they show up in the
// Outcome as absent fields.
func (r *Responder) Respond(ctx context.Context, settings *model.Settings, failedCount int) *Outcome {
	start := r.clock.Now()
	out := &Outcome{
		Alarm:    BranchResult{Branch: BranchAlarm, Status: StatusSkipped},
		Camera:   BranchResult{Branch: BranchCamera, Status: StatusSkipped},
		Location: BranchResult{Branch: BranchLocation, Status: StatusSkipped},
	}
	var (
		imageRef string
		location *model.Location
	)

	var g errgroup.Group
	if settings.AlarmEnabled {
		g.Go(func() error {
			out.Alarm = r.runAlarm(ctx)
			return nil
		})
	}
	if settings.CameraEnabled {
		g.Go(func() error {
			imageRef, out.Camera = r.runCamera(ctx)
			return nil
		})
	}
	if settings.LocationEnabled {
		g.Go(func() error {
			location, out.Location = r.runLocation(ctx)
			return nil
		})
	}
	_ = g.Wait()

	for _, br := range []BranchResult{out.Alarm, out.Camera, out.Location} {
		r.metrics.RecordBranch(string(br.Branch), string(br.Status))
		if br.Err != nil {
			r.logger.WarnErr("intrusion branch did not complete", br.Err, map[string]any{
				"branch": string(br.Branch),
				"status": string(br.Status),
			})
		}
	}

	out.Attempt = &model.IntruderAttempt{
		DeviceID:     r.deviceID,
		AttemptCount: failedCount,
		ImageRef:     imageRef,
		Location:     location,
		DeviceInfo:   r.info,
	}
	r.recorder.Attempt(ctx, out.Attempt)
	r.recorder.Event(ctx, r.deviceID, model.EventLockoutStarted, map[string]any{
		"duration": settings.LockoutDurationSeconds,
	})
	if out.AlarmRan() {
		r.recorder.Event(ctx, r.deviceID, model.EventAlarmTriggered, nil)
	}

	r.metrics.ObserveResponse(r.clock.Since(start).Seconds())
	r.logger.Info("intrusion response recorded", map[string]any{
		"attempt_id":    out.Attempt.ID,
		"attempt_count": failedCount,
		"image":         imageRef != "",
		"location":      location != nil,
	})
	return out
}

func (r *Responder) runAlarm(ctx context.Context) BranchResult {
	res := BranchResult{Branch: BranchAlarm}
	if r.caps.Alarm == nil {
		res.Status, res.Err = StatusFailed, errclass.ErrCapabilityUnavailable.WithMessage("no alarm")
		return res
	}
	if err := r.caps.Alarm.Play(ctx); err != nil {
		res.Status, res.Err = StatusFailed, fmt.Errorf("play alarm: %w", err)
		return res
	}
	res.Status = StatusCompleted
	return res
}

func (r *Responder) runCamera(ctx context.Context) (string, BranchResult) {
	res := BranchResult{Branch: BranchCamera}
	cam := r.caps.Camera
	if cam == nil {
		res.Status, res.Err = StatusFailed, errclass.ErrCapabilityUnavailable.WithMessage("no camera")
		return "", res
	}
	granted, err := cam.RequestPermission(ctx)
	if err != nil {
		res.Status, res.Err = StatusFailed, fmt.Errorf("camera permission: %w", err)
		return "", res
	}
	if !granted {
		res.Status, res.Err = StatusDenied, errclass.ErrPermissionDenied.WithMessage("camera")
		return "", res
	}
	ref, err := cam.Capture(ctx)
	if err != nil {
		res.Status, res.Err = StatusFailed, fmt.Errorf("capture: %w", err)
		return "", res
	}
	if ref == "" {
		res.Status, res.Err = StatusFailed, fmt.Errorf("capture returned no image")
		return "", res
	}
	res.Status = StatusCompleted
	return ref, res
}

func (r *Responder) runLocation(ctx context.Context) (*model.Location, BranchResult) {
	res := BranchResult{Branch: BranchLocation}
	loc := r.caps.Locator
	if loc == nil {
		res.Status, res.Err = StatusFailed, errclass.ErrCapabilityUnavailable.WithMessage("no locator")
		return nil, res
	}
	granted, err := loc.RequestPermission(ctx)
	if err != nil {
		res.Status, res.Err = StatusFailed, fmt.Errorf("location permission: %w", err)
		return nil, res
	}
	if !granted {
		res.Status, res.Err = StatusDenied, errclass.ErrPermissionDenied.WithMessage("location")
		return nil, res
	}
	fix, err := loc.Fix(ctx)
	if err != nil {
		res.Status, res.Err = StatusFailed, fmt.Errorf("location fix: %w", err)
		return nil, res
	}
	if fix == nil {
		res.Status, res.Err = StatusFailed, fmt.Errorf("location fix returned nothing")
		return nil, res
	}

	location := *fix
	if location.Address == "" && r.caps.Geocoder != nil {
		addr, err := r.caps.Geocoder.ReverseGeocode(ctx, location.Latitude, location.Longitude)
		if err != nil {
			// Address is optional; the fix still counts.
			r.logger.WarnErr("reverse geocode failed", err)
		} else {
			location.Address = addr
		}
	}
	res.Status = StatusCompleted
	return &location, res
}
