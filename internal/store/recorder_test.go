package store_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securelock/securelock/internal/store"
	"github.com/securelock/securelock/pkg/logging"
	"github.com/securelock/securelock/pkg/model"
)

type memJournal struct {
	mu       sync.Mutex
	events   []*model.SecurityEvent
	attempts []*model.IntruderAttempt
	err      error
}

func (m *memJournal) AppendEvent(_ context.Context, e *model.SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memJournal) AppendAttempt(_ context.Context, a *model.IntruderAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.attempts = append(m.attempts, a)
	return nil
}

func TestRecorder_EventFansOut(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	a, b := &memJournal{}, &memJournal{}
	r := store.NewRecorder(clock, nil, nil, store.Sink{Name: "a", Journal: a}, store.Sink{Name: "b", Journal: b})

	e := r.Event(context.Background(), "dev-1", model.EventLockoutStarted, map[string]any{"duration": 30})

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Same(t, e, a.events[0])
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, clock.Now(), e.Timestamp)
	assert.Equal(t, 30, e.Details["duration"])
}

func TestRecorder_FailingSinkDoesNotBlockOthers(t *testing.T) {
	var logBuf bytes.Buffer
	logger := logging.NewLogger(logging.LevelDebug)
	logger.SetOutput(&logBuf)

	bad := &memJournal{err: errors.New("disk full")}
	good := &memJournal{}
	r := store.NewRecorder(nil, logger, nil, store.Sink{Name: "bad", Journal: bad}, store.Sink{Name: "good", Journal: good})

	r.Attempt(context.Background(), &model.IntruderAttempt{DeviceID: "dev-1", AttemptCount: 4})

	require.Len(t, good.attempts, 1)
	assert.NotEmpty(t, good.attempts[0].ID)
	assert.False(t, good.attempts[0].Timestamp.IsZero())
	assert.Contains(t, logBuf.String(), "disk full")
	assert.Contains(t, logBuf.String(), `"sink":"bad"`)
}

func TestRecorder_WritesToSQLite(t *testing.T) {
	db := newStore(t)
	r := store.NewRecorder(nil, nil, nil, store.Sink{Name: "sqlite", Journal: db})
	ctx := context.Background()

	r.Event(ctx, "dev-1", model.EventUnlockFail, map[string]any{"attempts": 1})
	r.Attempt(ctx, &model.IntruderAttempt{DeviceID: "dev-1", AttemptCount: 4})

	events, err := db.ListEvents(ctx, "dev-1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	attempts, err := db.ListAttempts(ctx, "dev-1", 10)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}
