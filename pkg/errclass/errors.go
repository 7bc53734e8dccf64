package errclass

import "fmt"

// Error is a stable, machine-readable error class.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithMessage returns a new Error with the same Code but a specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg}
}

// WithMessagef returns a new Error with a formatted message.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Stable error classes.
var (
	// Configuration: no PIN can be checked without settings.
	ErrSettingsUnavailable = &Error{Code: "E_SETTINGS_UNAVAILABLE"}
	ErrSettingsNotFound    = &Error{Code: "E_SETTINGS_NOT_FOUND"}
	ErrSettingsExist       = &Error{Code: "E_SETTINGS_EXIST"}
	ErrSettingsInvalid     = &Error{Code: "E_SETTINGS_INVALID"}
	ErrConfigInvalid       = &Error{Code: "E_CONFIG_INVALID"}

	// Input.
	ErrPINInvalid  = &Error{Code: "E_PIN_INVALID"}
	ErrPINMismatch = &Error{Code: "E_PIN_MISMATCH"}

	// State machine.
	ErrInvalidState  = &Error{Code: "E_INVALID_STATE"}
	ErrLockoutActive = &Error{Code: "E_LOCKOUT_ACTIVE"}

	// Capabilities. Never surfaced past an intrusion branch.
	ErrPermissionDenied      = &Error{Code: "E_PERMISSION_DENIED"}
	ErrCapabilityUnavailable = &Error{Code: "E_CAPABILITY_UNAVAILABLE"}

	// Session lease: one process drives a device at a time.
	ErrSessionBusy  = &Error{Code: "E_SESSION_BUSY"}
	ErrLeaseNotHeld = &Error{Code: "E_LEASE_NOT_HELD"}

	// Journal.
	ErrAuditChainBroken = &Error{Code: "E_AUDIT_CHAIN_BROKEN"}
)
