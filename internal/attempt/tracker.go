// Package attempt counts consecutive failed unlock attempts.
package attempt

import "sync"

// Result describes the tracker after a failure.
type Result struct {
	Count    int
	Exceeded bool
}

// Tracker holds the consecutive failure count. The threshold is supplied
// per call, so the tracker knows nothing about settings.
type Tracker struct {
	mu    sync.Mutex
	count int
}

// NewTracker returns a tracker at zero.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordFailure increments the count and reports whether it reached
// maxAttempts.
func (t *Tracker) RecordFailure(maxAttempts int) Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	return Result{Count: t.count, Exceeded: t.count >= maxAttempts}
}

// RecordSuccess clears the count after a correct PIN.
func (t *Tracker) RecordSuccess() {
	t.Reset()
}

// Reset clears the count when a lockout window ends.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count = 0
}

// Count returns the current failure count.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Remaining returns how many failures are left before maxAttempts, never
// less than zero.
func (t *Tracker) Remaining(maxAttempts int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r := maxAttempts - t.count; r > 0 {
		return r
	}
	return 0
}
