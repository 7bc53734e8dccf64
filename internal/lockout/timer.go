// Package lockout enforces the cooldown window after too many failed
// unlock attempts.
package lockout

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/securelock/securelock/pkg/errclass"
)

// Timer is a one-shot lockout window. At most one window is open at a time;
// starting another while armed is rejected.
type Timer struct {
	clock clockwork.Clock

	mu       sync.Mutex
	timer    clockwork.Timer
	deadline time.Time
	active   bool
	gen      uint64
}

// NewTimer creates a disarmed timer on clock. A nil clock uses the real one.
func NewTimer(clock clockwork.Clock) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Timer{clock: clock}
}

// Start arms the window for d. onExpire runs once, on its own goroutine,
// after the window closes; it is not called if the timer is closed first.
func (t *Timer) Start(d time.Duration, onExpire func()) error {
	if d <= 0 {
		return errclass.ErrSettingsInvalid.WithMessagef("lockout duration must be positive, got %s", d)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active {
		return errclass.ErrLockoutActive.WithMessagef("lockout already running, %s left", t.remainingLocked())
	}

	t.gen++
	gen := t.gen
	t.active = true
	t.deadline = t.clock.Now().Add(d)
	t.timer = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		if !t.active || t.gen != gen {
			t.mu.Unlock()
			return
		}
		t.active = false
		t.timer = nil
		t.mu.Unlock()

		if onExpire != nil {
			onExpire()
		}
	})
	return nil
}

// IsActive reports whether a window is open.
func (t *Timer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Remaining returns the time left in the open window, or zero.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked()
}

func (t *Timer) remainingLocked() time.Duration {
	if !t.active {
		return 0
	}
	if r := t.deadline.Sub(t.clock.Now()); r > 0 {
		return r
	}
	return 0
}

// Close disarms the timer without running the expiry callback.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.active = false
	t.gen++
}
