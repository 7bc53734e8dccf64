// Package lease grants one process at a time the right to drive a device's
// lock screen. Two processes with their own attempt counters would double
// the number of guesses allowed before a lockout.
package lease

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/securelock/securelock/pkg/errclass"
	"github.com/securelock/securelock/pkg/fsutil"
	"github.com/securelock/securelock/pkg/model"
	"github.com/securelock/securelock/pkg/uuidutil"
)

// FileName is the lease file inside the data directory.
const FileName = "session.lease"

// DefaultTTL is how long a lease lives without renewal.
const DefaultTTL = 30 * time.Second

// Manager handles lease operations on one data directory.
type Manager struct {
	path  string
	ttl   time.Duration
	clock clockwork.Clock
	mu    sync.Mutex
}

// NewManager creates a lease manager for dataDir. A non-positive ttl uses
// DefaultTTL; a nil clock uses the real clock.
func NewManager(dataDir string, ttl time.Duration, clock clockwork.Clock) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		path:  filepath.Join(dataDir, FileName),
		ttl:   ttl,
		clock: clock,
	}
}

// Path returns the lease file path.
func (m *Manager) Path() string { return m.path }

// Acquire takes the lease. A lease left behind by a holder that stopped
// renewing is taken over with the next fencing token.
func (m *Manager) Acquire(purpose string) (*model.SessionLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err == nil {
		defer file.Close()
		rec := m.newLease(purpose, 1)
		if err := writeLease(file, rec); err != nil {
			os.Remove(m.path)
			return nil, err
		}
		return rec, nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("create lease: %w", err)
	}

	prev, err := m.readLease()
	if err != nil {
		return nil, fmt.Errorf("read existing lease: %w", err)
	}
	if !prev.IsExpired(m.clock.Now()) {
		return nil, errclass.ErrSessionBusy.WithMessagef("device is driven by pid %d (%s) until %s",
			prev.PID, prev.Purpose, prev.ExpiresAt.Format(time.RFC3339))
	}

	rec := m.newLease(purpose, prev.FencingToken+1)
	if err := m.updateLease(rec); err != nil {
		return nil, fmt.Errorf("take over lease: %w", err)
	}
	return rec, nil
}

// Renew extends the lease held under holderNonce.
func (m *Manager) Renew(holderNonce string) (*model.SessionLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readLease()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrLeaseNotHeld.WithMessage("no lease held")
		}
		return nil, fmt.Errorf("read lease: %w", err)
	}
	if rec.HolderNonce != holderNonce {
		return nil, errclass.ErrLeaseNotHeld.WithMessage("lease taken over by another process")
	}

	rec.ExpiresAt = m.clock.Now().UTC().Add(m.ttl)
	if err := m.updateLease(rec); err != nil {
		return nil, fmt.Errorf("update lease: %w", err)
	}
	return rec, nil
}

// Release frees the lease. Releasing a lease that is gone is not an error.
func (m *Manager) Release(holderNonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readLease()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read lease: %w", err)
	}
	if rec.HolderNonce != holderNonce {
		return errclass.ErrLeaseNotHeld.WithMessage("cannot release: nonce mismatch")
	}
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lease: %w", err)
	}
	return nil
}

// Status returns the current lease state.
func (m *Manager) Status() (model.LeaseState, *model.SessionLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readLease()
	if err != nil {
		if os.IsNotExist(err) {
			return model.LeaseFree, nil, nil
		}
		return model.LeaseFree, nil, fmt.Errorf("read lease: %w", err)
	}
	if rec.IsExpired(m.clock.Now()) {
		return model.LeaseExpired, rec, nil
	}
	return model.LeaseHeld, rec, nil
}

// Keep renews the lease every third of its TTL until ctx is done. It
// returns early if a renewal fails.
func (m *Manager) Keep(ctx context.Context, holderNonce string) error {
	ticker := m.clock.NewTicker(m.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if _, err := m.Renew(holderNonce); err != nil {
				return err
			}
		}
	}
}

func (m *Manager) newLease(purpose string, token int64) *model.SessionLease {
	now := m.clock.Now().UTC()
	return &model.SessionLease{
		HolderNonce:  uuidutil.NewV4(),
		PID:          os.Getpid(),
		Purpose:      purpose,
		AcquiredAt:   now,
		ExpiresAt:    now.Add(m.ttl),
		FencingToken: token,
	}
}

func (m *Manager) readLease() (*model.SessionLease, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	var rec model.SessionLease
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse lease: %w", err)
	}
	return &rec, nil
}

func writeLease(file *os.File, rec *model.SessionLease) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lease: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write lease: %w", err)
	}
	return file.Sync()
}

func (m *Manager) updateLease(rec *model.SessionLease) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lease: %w", err)
	}
	return fsutil.AtomicWrite(m.path, data, 0600)
}
