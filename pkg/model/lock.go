package model

import "time"

// LockState is the lock controller's top-level state.
type LockState string

const (
	LockStateUninitialized   LockState = "uninitialized"
	LockStateSetupFirstPIN   LockState = "setup_first_pin"
	LockStateSetupConfirmPIN LockState = "setup_confirm_pin"
	LockStateLocked          LockState = "locked"
	LockStateUnlocked        LockState = "unlocked"
)

// IsSetup reports whether s belongs to the first-time setup flow.
func (s LockState) IsSetup() bool {
	return s == LockStateSetupFirstPIN || s == LockStateSetupConfirmPIN
}

// LockStatus is a point-in-time snapshot of the controller.
// LockedOut is orthogonal to State and only ever true while State is locked.
type LockStatus struct {
	State            LockState     `json:"state"`
	LockedOut        bool          `json:"locked_out"`
	FailedCount      int           `json:"failed_count"`
	LockoutRemaining time.Duration `json:"lockout_remaining,omitempty"`
}
