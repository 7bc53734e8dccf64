package model

import "time"

// Default settings applied when a device completes first-time setup.
const (
	DefaultMaxAttempts            = 4
	DefaultLockoutDurationSeconds = 30
)

// Settings is the per-device security configuration. One record exists per
// device identity.
type Settings struct {
	DeviceID               string     `json:"device_id"`
	PINCode                Credential `json:"pin_code"`
	MaxAttempts            int        `json:"max_attempts"`
	LockoutDurationSeconds int        `json:"lockout_duration"`
	AlarmEnabled           bool       `json:"alarm_enabled"`
	CameraEnabled          bool       `json:"camera_enabled"`
	LocationEnabled        bool       `json:"location_enabled"`
	ProximityModeEnabled   bool       `json:"proximity_mode_enabled"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// NewSettings returns settings for deviceID with the given credential and
// all defaults applied.
func NewSettings(deviceID string, pin Credential, now time.Time) *Settings {
	return &Settings{
		DeviceID:               deviceID,
		PINCode:                pin,
		MaxAttempts:            DefaultMaxAttempts,
		LockoutDurationSeconds: DefaultLockoutDurationSeconds,
		AlarmEnabled:           true,
		CameraEnabled:          true,
		LocationEnabled:        true,
		ProximityModeEnabled:   true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// LockoutDuration returns the configured lockout window.
func (s *Settings) LockoutDuration() time.Duration {
	return time.Duration(s.LockoutDurationSeconds) * time.Second
}

// SettingsUpdate is a partial update. Nil fields are left unchanged.
type SettingsUpdate struct {
	PINCode                *Credential `json:"pin_code,omitempty"`
	MaxAttempts            *int        `json:"max_attempts,omitempty"`
	LockoutDurationSeconds *int        `json:"lockout_duration,omitempty"`
	AlarmEnabled           *bool       `json:"alarm_enabled,omitempty"`
	CameraEnabled          *bool       `json:"camera_enabled,omitempty"`
	LocationEnabled        *bool       `json:"location_enabled,omitempty"`
	ProximityModeEnabled   *bool       `json:"proximity_mode_enabled,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u SettingsUpdate) IsEmpty() bool {
	return u.PINCode == nil && u.MaxAttempts == nil && u.LockoutDurationSeconds == nil &&
		u.AlarmEnabled == nil && u.CameraEnabled == nil && u.LocationEnabled == nil &&
		u.ProximityModeEnabled == nil
}

// Apply copies the non-nil fields of u onto s.
func (u SettingsUpdate) Apply(s *Settings) {
	if u.PINCode != nil {
		s.PINCode = *u.PINCode
	}
	if u.MaxAttempts != nil {
		s.MaxAttempts = *u.MaxAttempts
	}
	if u.LockoutDurationSeconds != nil {
		s.LockoutDurationSeconds = *u.LockoutDurationSeconds
	}
	if u.AlarmEnabled != nil {
		s.AlarmEnabled = *u.AlarmEnabled
	}
	if u.CameraEnabled != nil {
		s.CameraEnabled = *u.CameraEnabled
	}
	if u.LocationEnabled != nil {
		s.LocationEnabled = *u.LocationEnabled
	}
	if u.ProximityModeEnabled != nil {
		s.ProximityModeEnabled = *u.ProximityModeEnabled
	}
}
