package lockscreen

import (
	"context"
	"fmt"

	"github.com/securelock/securelock/internal/credential"
	"github.com/securelock/securelock/pkg/errclass"
	"github.com/securelock/securelock/pkg/model"
)

func (c *Controller) requireUnlocked() error {
	if c.state != model.LockStateUnlocked {
		return errclass.ErrInvalidState.WithMessagef("settings are only available while unlocked (state %s)", c.state)
	}
	return nil
}

// Settings returns the device settings.
func (c *Controller) Settings(ctx context.Context) (*model.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireUnlocked(); err != nil {
		return nil, err
	}
	settings, err := c.deps.Settings.Get(ctx, c.deps.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errclass.ErrSettingsUnavailable, err)
	}
	if settings == nil {
		return nil, errclass.ErrSettingsNotFound.WithMessagef("no settings for device %s", c.deps.DeviceID)
	}
	return settings, nil
}

// UpdateSettings changes limits and toggles. The credential is changed
// through ChangePIN only.
func (c *Controller) UpdateSettings(ctx context.Context, u model.SettingsUpdate) (*model.Settings, error) {
	if u.PINCode != nil {
		return nil, errclass.ErrSettingsInvalid.WithMessage("use ChangePIN to change the PIN")
	}
	if u.MaxAttempts != nil && *u.MaxAttempts <= 0 {
		return nil, errclass.ErrSettingsInvalid.WithMessagef("max_attempts must be positive, got %d", *u.MaxAttempts)
	}
	if u.LockoutDurationSeconds != nil && *u.LockoutDurationSeconds <= 0 {
		return nil, errclass.ErrSettingsInvalid.WithMessagef("lockout_duration must be positive, got %d", *u.LockoutDurationSeconds)
	}
	if u.IsEmpty() {
		return c.Settings(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireUnlocked(); err != nil {
		return nil, err
	}
	settings, err := c.deps.Settings.Update(ctx, c.deps.DeviceID, u)
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	c.logger.Info("settings updated")
	return settings, nil
}

// ChangePIN replaces the credential after checking the new PIN's shape and
// its confirmation.
func (c *Controller) ChangePIN(ctx context.Context, newPIN, confirm string) error {
	normalized, err := credential.ValidatePIN(newPIN)
	if err != nil {
		return err
	}
	confirmed, err := credential.ValidatePIN(confirm)
	if err != nil || confirmed != normalized {
		return errclass.ErrPINMismatch.WithMessage("PINs do not match")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireUnlocked(); err != nil {
		return err
	}
	hash := credential.Hash(normalized)
	if _, err := c.deps.Settings.Update(ctx, c.deps.DeviceID, model.SettingsUpdate{PINCode: &hash}); err != nil {
		return fmt.Errorf("change PIN: %w", err)
	}
	c.logger.Info("PIN changed")
	return nil
}
