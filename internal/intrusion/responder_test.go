package intrusion_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securelock/securelock/internal/capability"
	"github.com/securelock/securelock/internal/intrusion"
	"github.com/securelock/securelock/internal/store"
	"github.com/securelock/securelock/pkg/errclass"
	"github.com/securelock/securelock/pkg/model"
)

type journal struct {
	mu       sync.Mutex
	order    []string
	events   []*model.SecurityEvent
	attempts []*model.IntruderAttempt
}

func (j *journal) AppendEvent(_ context.Context, e *model.SecurityEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.order = append(j.order, string(e.Type))
	j.events = append(j.events, e)
	return nil
}

func (j *journal) AppendAttempt(_ context.Context, a *model.IntruderAttempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.order = append(j.order, "intruder_attempt")
	j.attempts = append(j.attempts, a)
	return nil
}

type camera struct {
	granted bool
	permErr error
	ref     string
	err     error
	wait    <-chan struct{}
}

func (c *camera) RequestPermission(context.Context) (bool, error) { return c.granted, c.permErr }

func (c *camera) Capture(ctx context.Context) (string, error) {
	if c.wait != nil {
		select {
		case <-c.wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.ref, c.err
}

type locator struct {
	granted bool
	fix     *model.Location
	err     error
	called  chan struct{}
}

func (l *locator) RequestPermission(context.Context) (bool, error) { return l.granted, nil }

func (l *locator) Fix(context.Context) (*model.Location, error) {
	if l.called != nil {
		close(l.called)
	}
	return l.fix, l.err
}

type geocoder struct{ err error }

func (g geocoder) ReverseGeocode(context.Context, float64, float64) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "1 Infinite Loop, Cupertino, CA, USA", nil
}

var info = model.DeviceInfo{Brand: "Acme", Model: "X1", OSName: "linux", OSVersion: "6.1"}

func newResponder(caps capability.Set, j *journal) *intrusion.Responder {
	return intrusion.NewResponder(intrusion.Options{
		Capabilities: caps,
		Recorder:     store.NewRecorder(nil, nil, nil, store.Sink{Name: "mem", Journal: j}),
		DeviceID:     "dev-1",
		DeviceInfo:   info,
	})
}

func allEnabled() *model.Settings {
	return model.NewSettings("dev-1", "hash", time.Now())
}

func TestRespond_AllBranchesSucceed(t *testing.T) {
	j := &journal{}
	alarm := capability.NewSimulatedAlarm(nil)
	r := newResponder(capability.Set{
		Alarm:    alarm,
		Camera:   &camera{granted: true, ref: "/media/1.jpg"},
		Locator:  &locator{granted: true, fix: &model.Location{Latitude: 37.33, Longitude: -122.03}},
		Geocoder: geocoder{},
	}, j)

	out := r.Respond(context.Background(), allEnabled(), 4)

	assert.Equal(t, intrusion.StatusCompleted, out.Alarm.Status)
	assert.Equal(t, intrusion.StatusCompleted, out.Camera.Status)
	assert.Equal(t, intrusion.StatusCompleted, out.Location.Status)
	assert.True(t, alarm.Playing())

	require.Len(t, j.attempts, 1)
	a := j.attempts[0]
	assert.Equal(t, 4, a.AttemptCount)
	assert.Equal(t, "/media/1.jpg", a.ImageRef)
	require.NotNil(t, a.Location)
	assert.Equal(t, "1 Infinite Loop, Cupertino, CA, USA", a.Location.Address)
	assert.Equal(t, info, a.DeviceInfo)
	assert.Equal(t, "dev-1", a.DeviceID)
	assert.NotEmpty(t, a.ID)

	assert.Equal(t, []string{"intruder_attempt", "lockout_started", "alarm_triggered"}, j.order)
	assert.Equal(t, 30, j.events[0].Details["duration"])
}

func TestRespond_CameraDeniedLocationGranted(t *testing.T) {
	j := &journal{}
	r := newResponder(capability.Set{
		Alarm:   capability.NewSimulatedAlarm(nil),
		Camera:  &camera{granted: false},
		Locator: &locator{granted: true, fix: &model.Location{Latitude: 1, Longitude: 2}},
	}, j)

	out := r.Respond(context.Background(), allEnabled(), 4)

	assert.Equal(t, intrusion.StatusDenied, out.Camera.Status)
	assert.ErrorIs(t, out.Camera.Err, errclass.ErrPermissionDenied)
	require.Len(t, j.attempts, 1)
	assert.Empty(t, j.attempts[0].ImageRef)
	require.NotNil(t, j.attempts[0].Location)
	assert.Equal(t, 1.0, j.attempts[0].Location.Latitude)
	assert.Empty(t, j.attempts[0].Location.Address, "no geocoder configured")
}

func TestRespond_FailuresAreAbsences(t *testing.T) {
	j := &journal{}
	alarm := capability.NewSimulatedAlarm(nil)
	alarm.Fail(errors.New("no speaker"))
	r := newResponder(capability.Set{
		Alarm:    alarm,
		Camera:   &camera{granted: true, err: errors.New("sensor busy")},
		Locator:  &locator{granted: true, err: errors.New("no satellites")},
		Geocoder: geocoder{},
	}, j)

	out := r.Respond(context.Background(), allEnabled(), 5)

	assert.Equal(t, intrusion.StatusFailed, out.Alarm.Status)
	assert.Equal(t, intrusion.StatusFailed, out.Camera.Status)
	assert.Equal(t, intrusion.StatusFailed, out.Location.Status)
	require.Len(t, j.attempts, 1)
	assert.Empty(t, j.attempts[0].ImageRef)
	assert.Nil(t, j.attempts[0].Location)
	assert.Equal(t, 5, j.attempts[0].AttemptCount)
	assert.True(t, out.AlarmRan(), "a failed alarm still ran")
	assert.Contains(t, j.order, "alarm_triggered")
}

func TestRespond_GeocodeFailureKeepsFix(t *testing.T) {
	j := &journal{}
	r := newResponder(capability.Set{
		Locator:  &locator{granted: true, fix: &model.Location{Latitude: 3, Longitude: 4}},
		Geocoder: geocoder{err: errors.New("offline")},
	}, j)

	s := allEnabled()
	s.AlarmEnabled, s.CameraEnabled = false, false
	out := r.Respond(context.Background(), s, 4)

	assert.Equal(t, intrusion.StatusCompleted, out.Location.Status)
	require.NotNil(t, j.attempts[0].Location)
	assert.Empty(t, j.attempts[0].Location.Address)
}

func TestRespond_DisabledBranchesSkipped(t *testing.T) {
	j := &journal{}
	alarm := capability.NewSimulatedAlarm(nil)
	r := newResponder(capability.Set{Alarm: alarm, Camera: &camera{granted: true, ref: "x"}}, j)

	s := allEnabled()
	s.AlarmEnabled, s.CameraEnabled, s.LocationEnabled = false, false, false
	s.LockoutDurationSeconds = 60
	out := r.Respond(context.Background(), s, 4)

	assert.Equal(t, intrusion.StatusSkipped, out.Alarm.Status)
	assert.Equal(t, intrusion.StatusSkipped, out.Camera.Status)
	assert.Equal(t, intrusion.StatusSkipped, out.Location.Status)
	assert.False(t, alarm.Playing())
	assert.Equal(t, []string{"intruder_attempt", "lockout_started"}, j.order)
	assert.Equal(t, 60, j.events[0].Details["duration"])
}

func TestRespond_BranchesRunConcurrently(t *testing.T) {
	// Capture cannot finish until the location fix has been requested, so a
	// sequential implementation would deadlock.
	locCalled := make(chan struct{})
	j := &journal{}
	r := newResponder(capability.Set{
		Camera:  &camera{granted: true, ref: "img", wait: locCalled},
		Locator: &locator{granted: true, fix: &model.Location{}, called: locCalled},
	}, j)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := r.Respond(ctx, allEnabled(), 4)

	assert.Equal(t, intrusion.StatusCompleted, out.Camera.Status)
	assert.Equal(t, intrusion.StatusCompleted, out.Location.Status)
}

func TestRespond_NoopCapabilities(t *testing.T) {
	j := &journal{}
	out := newResponder(capability.Noop(), j).Respond(context.Background(), allEnabled(), 4)

	assert.Equal(t, intrusion.StatusCompleted, out.Alarm.Status)
	assert.Equal(t, intrusion.StatusDenied, out.Camera.Status)
	assert.Equal(t, intrusion.StatusDenied, out.Location.Status)
	require.Len(t, j.attempts, 1)
}

func TestRespond_MissingProviders(t *testing.T) {
	j := &journal{}
	out := newResponder(capability.Set{}, j).Respond(context.Background(), allEnabled(), 4)

	assert.ErrorIs(t, out.Camera.Err, errclass.ErrCapabilityUnavailable)
	assert.ErrorIs(t, out.Location.Err, errclass.ErrCapabilityUnavailable)
	assert.ErrorIs(t, out.Alarm.Err, errclass.ErrCapabilityUnavailable)
	require.Len(t, j.attempts, 1)
}
