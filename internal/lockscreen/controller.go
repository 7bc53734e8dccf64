// Package lockscreen implements the lock controller: first-time PIN setup,
// PIN verification, attempt counting, lockout and the intrusion response.
//
// The controller is a single logical actor. Every state change happens
// under its mutex, including the lockout expiry callback. Journal writes and
// the intrusion responder run after the mutex is released, so a stalled sink
// or capability never holds up Status, Lock or lockout expiry.
package lockscreen

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/securelock/securelock/internal/attempt"
	"github.com/securelock/securelock/internal/capability"
	"github.com/securelock/securelock/internal/credential"
	"github.com/securelock/securelock/internal/intrusion"
	"github.com/securelock/securelock/internal/lockout"
	"github.com/securelock/securelock/internal/store"
	"github.com/securelock/securelock/pkg/errclass"
	"github.com/securelock/securelock/pkg/logging"
	"github.com/securelock/securelock/pkg/metrics"
	"github.com/securelock/securelock/pkg/model"
)

// Prompts shown to the user.
const (
	MsgPINShape       = "PIN must be 4 digits"
	MsgConfirmPIN     = "Enter PIN again to confirm"
	MsgSetupMismatch  = "PINs do not match. Try again."
	MsgSetupComplete  = "PIN set. Device unlocked."
	MsgLockedOut      = "Device is locked. Please wait."
	MsgUnlocked       = "Device unlocked."
	msgIncorrectPIN   = "Incorrect PIN. %d attempts remaining."
	msgTooManyAttempt = "Too many failed attempts! Device locked for %d seconds."
)

// Deps are the collaborators a Controller drives.
type Deps struct {
	DeviceID  string
	Settings  store.SettingsStore
	Recorder  *store.Recorder
	Responder *intrusion.Responder
	// Alarm is silenced when a lockout ends. Optional.
	Alarm capability.Alarm
	Clock clockwork.Clock

	Logger  *logging.Logger
	Metrics *metrics.Registry

	// OnLockoutExpired runs after a lockout window closes. Optional.
	OnLockoutExpired func()
}

// Result is the controller's answer to one PIN submission.
type Result struct {
	State             model.LockState    `json:"state"`
	Message           string             `json:"message"`
	LockedOut         bool               `json:"locked_out"`
	AttemptsRemaining int                `json:"attempts_remaining,omitempty"`
	Outcome           *intrusion.Outcome `json:"outcome,omitempty"`
}

// Unlocked reports whether the submission left the device unlocked.
func (r *Result) Unlocked() bool {
	return r.State == model.LockStateUnlocked
}

// Controller is the lock screen state machine.
type Controller struct {
	deps    Deps
	logger  *logging.Logger
	tracker *attempt.Tracker
	timer   *lockout.Timer

	mu         sync.Mutex
	state      model.LockState
	heldPIN    string
	lockedOut  bool
	lockoutGen uint64
}

// New creates a controller in the uninitialized state. Call Init before
// submitting input.
func New(deps Deps) *Controller {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Recorder == nil {
		deps.Recorder = store.NewRecorder(deps.Clock, deps.Logger, deps.Metrics)
	}
	return &Controller{
		deps:    deps,
		logger:  deps.Logger.WithFields(map[string]any{"component": "lockscreen", "device_id": deps.DeviceID}),
		tracker: attempt.NewTracker(),
		timer:   lockout.NewTimer(deps.Clock),
		state:   model.LockStateUninitialized,
	}
}

// Init reads the settings and enters setup or locked. On a read error the
// controller stays uninitialized and Init may be retried.
func (c *Controller) Init(ctx context.Context) (model.LockState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != model.LockStateUninitialized {
		return c.state, errclass.ErrInvalidState.WithMessagef("already initialized (%s)", c.state)
	}

	settings, err := c.deps.Settings.Get(ctx, c.deps.DeviceID)
	if err != nil {
		return c.state, fmt.Errorf("%w: %w", errclass.ErrSettingsUnavailable, err)
	}
	if settings == nil {
		c.state = model.LockStateSetupFirstPIN
	} else {
		c.state = model.LockStateLocked
	}
	c.logger.Info("lock screen initialized", map[string]any{"state": string(c.state)})
	return c.state, nil
}

// Submit feeds one PIN entry to the state machine. Prompts such as a
// malformed setup PIN come back in Result.Message; errors are reserved for
// storage failures and submissions in a state that takes no input.
func (c *Controller) Submit(ctx context.Context, pin string) (*Result, error) {
	c.mu.Lock()
	switch c.state {
	case model.LockStateSetupFirstPIN:
		defer c.mu.Unlock()
		return c.submitFirstPIN(pin), nil
	case model.LockStateSetupConfirmPIN:
		defer c.mu.Unlock()
		return c.submitConfirmPIN(ctx, pin)
	case model.LockStateLocked:
		return c.submitUnlock(ctx, pin)
	default:
		state := c.state
		c.mu.Unlock()
		return nil, errclass.ErrInvalidState.WithMessagef("no PIN input accepted while %s", state)
	}
}

func (c *Controller) submitFirstPIN(pin string) *Result {
	normalized, err := credential.ValidatePIN(pin)
	if err != nil {
		c.deps.Metrics.RecordUnlock(metrics.ResultInvalid)
		return &Result{State: c.state, Message: MsgPINShape}
	}
	c.heldPIN = normalized
	c.state = model.LockStateSetupConfirmPIN
	return &Result{State: c.state, Message: MsgConfirmPIN}
}

func (c *Controller) submitConfirmPIN(ctx context.Context, pin string) (*Result, error) {
	normalized, err := credential.ValidatePIN(pin)
	if err != nil || normalized != c.heldPIN {
		c.heldPIN = ""
		c.state = model.LockStateSetupFirstPIN
		return &Result{State: c.state, Message: MsgSetupMismatch}, nil
	}

	if _, err := c.deps.Settings.Create(ctx, c.deps.DeviceID, credential.Hash(c.heldPIN)); err != nil {
		// Keep the held PIN so the confirmation can simply be retried.
		return nil, fmt.Errorf("create settings: %w", err)
	}

	c.heldPIN = ""
	c.tracker.Reset()
	c.state = model.LockStateUnlocked
	c.logger.Info("PIN setup complete")
	return &Result{State: c.state, Message: MsgSetupComplete}, nil
}

// submitUnlock is entered with c.mu held and releases it.
func (c *Controller) submitUnlock(ctx context.Context, pin string) (*Result, error) {
	if c.lockedOut {
		c.mu.Unlock()
		c.deps.Metrics.RecordUnlock(metrics.ResultRejected)
		return &Result{State: model.LockStateLocked, Message: MsgLockedOut, LockedOut: true}, nil
	}

	settings, err := c.deps.Settings.Get(ctx, c.deps.DeviceID)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", errclass.ErrSettingsUnavailable, err)
	}
	if settings == nil {
		c.mu.Unlock()
		return nil, errclass.ErrSettingsNotFound.WithMessagef("no settings for device %s", c.deps.DeviceID)
	}

	if credential.Verify(pin, settings.PINCode) {
		c.tracker.RecordSuccess()
		c.state = model.LockStateUnlocked
		c.mu.Unlock()

		c.deps.Recorder.Event(ctx, c.deps.DeviceID, model.EventUnlockSuccess, nil)

		c.deps.Metrics.RecordUnlock(metrics.ResultSuccess)
		c.logger.Info("device unlocked")
		return &Result{State: model.LockStateUnlocked, Message: MsgUnlocked}, nil
	}

	res := c.tracker.RecordFailure(settings.MaxAttempts)
	c.deps.Metrics.RecordUnlock(metrics.ResultFail)

	if !res.Exceeded {
		remaining := c.tracker.Remaining(settings.MaxAttempts)
		c.mu.Unlock()
		c.recordFailure(ctx, res.Count)
		c.logger.Info("incorrect PIN", map[string]any{"attempts": res.Count, "remaining": remaining})
		return &Result{
			State:             model.LockStateLocked,
			Message:           fmt.Sprintf(msgIncorrectPIN, remaining),
			AttemptsRemaining: remaining,
		}, nil
	}

	c.lockoutGen++
	gen := c.lockoutGen
	if err := c.timer.Start(settings.LockoutDuration(), func() { c.expire(gen) }); err != nil {
		c.mu.Unlock()
		c.recordFailure(ctx, res.Count)
		return nil, fmt.Errorf("start lockout: %w", err)
	}
	c.lockedOut = true
	c.mu.Unlock()

	c.recordFailure(ctx, res.Count)
	c.deps.Metrics.RecordLockout()
	c.logger.Warn("attempt limit reached, device locked out", map[string]any{
		"attempts": res.Count,
		"duration": settings.LockoutDurationSeconds,
	})

	result := &Result{
		State:     model.LockStateLocked,
		Message:   fmt.Sprintf(msgTooManyAttempt, settings.LockoutDurationSeconds),
		LockedOut: true,
	}
	if c.deps.Responder != nil {
		result.Outcome = c.deps.Responder.Respond(ctx, settings, res.Count)
	}
	return result, nil
}

// recordFailure journals an unlock_fail. It is called without c.mu so a
// slow sink never stalls Status, Lock or lockout expiry.
func (c *Controller) recordFailure(ctx context.Context, count int) {
	c.deps.Recorder.Event(ctx, c.deps.DeviceID, model.EventUnlockFail, map[string]any{"attempts": count})
}

// expire closes lockout window gen.
func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	if !c.lockedOut || gen != c.lockoutGen {
		c.mu.Unlock()
		return
	}
	c.lockedOut = false
	c.tracker.Reset()
	c.mu.Unlock()

	c.deps.Metrics.RecordLockoutExpired()
	if c.deps.Alarm != nil {
		if err := c.deps.Alarm.Stop(context.Background()); err != nil {
			c.logger.WarnErr("stop alarm failed", err)
		}
	}
	c.logger.Info("lockout expired")
	if c.deps.OnLockoutExpired != nil {
		c.deps.OnLockoutExpired()
	}
}

// Lock returns an unlocked device to locked. Locking a locked device is a
// no-op.
func (c *Controller) Lock() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case model.LockStateLocked:
		return nil
	case model.LockStateUnlocked:
		c.state = model.LockStateLocked
		c.logger.Info("device locked")
		return nil
	default:
		return errclass.ErrInvalidState.WithMessagef("cannot lock while %s", c.state)
	}
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() model.LockStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := model.LockStatus{
		State:       c.state,
		LockedOut:   c.lockedOut,
		FailedCount: c.tracker.Count(),
	}
	if c.lockedOut {
		st.LockoutRemaining = c.timer.Remaining()
	}
	return st
}

// Close disarms any running lockout without firing its expiry.
func (c *Controller) Close() {
	c.timer.Close()
}
