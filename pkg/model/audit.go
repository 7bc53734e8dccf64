package model

import "time"

// EventType identifies the type of security event.
type EventType string

const (
	EventUnlockSuccess      EventType = "unlock_success"
	EventUnlockFail         EventType = "unlock_fail"
	EventAlarmTriggered     EventType = "alarm_triggered"
	EventProximityActivated EventType = "proximity_activated"
	EventLockoutStarted     EventType = "lockout_started"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventUnlockSuccess, EventUnlockFail, EventAlarmTriggered,
		EventProximityActivated, EventLockoutStarted:
		return true
	}
	return false
}

// SecurityEvent is an immutable, append-only fact about lock screen activity.
type SecurityEvent struct {
	ID        string         `json:"id"`
	DeviceID  string         `json:"device_id"`
	Type      EventType      `json:"event_type"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// JournalKind distinguishes the two record families in the audit journal.
type JournalKind string

const (
	JournalEvent   JournalKind = "security_event"
	JournalAttempt JournalKind = "intruder_attempt"
)

// AuditRecord is a single line in the audit journal (JSONL format).
type AuditRecord struct {
	Timestamp  time.Time        `json:"timestamp"`
	Kind       JournalKind      `json:"kind"`
	DeviceID   string           `json:"device_id"`
	Event      *SecurityEvent   `json:"event,omitempty"`
	Attempt    *IntruderAttempt `json:"attempt,omitempty"`
	PrevHash   HashValue        `json:"prev_hash"`
	RecordHash HashValue        `json:"record_hash"`
}
