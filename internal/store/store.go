// Package store persists device settings, security events and intruder
// attempts, and fans journal writes out to every configured sink.
package store

import (
	"context"

	"github.com/securelock/securelock/pkg/model"
)

// SettingsStore reads and writes the per-device settings record.
type SettingsStore interface {
	// Get returns nil, nil when no settings exist for deviceID.
	Get(ctx context.Context, deviceID string) (*model.Settings, error)
	// Create stores default settings with the given credential.
	Create(ctx context.Context, deviceID string, pin model.Credential) (*model.Settings, error)
	// Update applies a partial update and returns the result.
	Update(ctx context.Context, deviceID string, u model.SettingsUpdate) (*model.Settings, error)
}

// Journal is an append-only sink for security facts.
type Journal interface {
	AppendEvent(ctx context.Context, e *model.SecurityEvent) error
	AppendAttempt(ctx context.Context, a *model.IntruderAttempt) error
}

// History is the read side used by the logs surface.
type History interface {
	// ListEvents returns events newest first. An empty deviceID lists all.
	ListEvents(ctx context.Context, deviceID string, limit int) ([]*model.SecurityEvent, error)
	// ListAttempts returns intruder attempts newest first.
	ListAttempts(ctx context.Context, deviceID string, limit int) ([]*model.IntruderAttempt, error)
}

// DefaultListLimit caps list queries that pass a non-positive limit.
const DefaultListLimit = 50
