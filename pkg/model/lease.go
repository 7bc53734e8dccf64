package model

import "time"

// SessionLease is stored at <data-dir>/session.lease while a process drives
// the lock screen.
type SessionLease struct {
	HolderNonce  string    `json:"holder_nonce"`
	PID          int       `json:"pid"`
	Purpose      string    `json:"purpose"`
	AcquiredAt   time.Time `json:"acquired_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	FencingToken int64     `json:"fencing_token"`
}

// IsExpired reports whether the lease ran out at now.
func (l *SessionLease) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// LeaseState is the state of the session lease file.
type LeaseState string

const (
	LeaseHeld    LeaseState = "held"
	LeaseExpired LeaseState = "expired"
	LeaseFree    LeaseState = "free"
)
