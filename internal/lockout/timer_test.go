package lockout_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securelock/securelock/internal/lockout"
	"github.com/securelock/securelock/pkg/errclass"
)

func TestTimer_ExpiresOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := lockout.NewTimer(clock)

	var fired int32
	require.NoError(t, timer.Start(30*time.Second, func() { atomic.AddInt32(&fired, 1) }))
	assert.True(t, timer.IsActive())
	assert.Equal(t, 30*time.Second, timer.Remaining())

	clock.Advance(10 * time.Second)
	assert.True(t, timer.IsActive())
	assert.Equal(t, 20*time.Second, timer.Remaining())
	assert.Zero(t, atomic.LoadInt32(&fired))

	clock.Advance(20 * time.Second)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, time.Millisecond)
	assert.False(t, timer.IsActive())
	assert.Zero(t, timer.Remaining())

	clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestTimer_RetriggerRejected(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := lockout.NewTimer(clock)

	require.NoError(t, timer.Start(30*time.Second, nil))
	clock.Advance(5 * time.Second)

	err := timer.Start(30*time.Second, nil)
	assert.ErrorIs(t, err, errclass.ErrLockoutActive)
	assert.Equal(t, 25*time.Second, timer.Remaining(), "window is neither extended nor restarted")
}

func TestTimer_RestartAfterExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := lockout.NewTimer(clock)

	done := make(chan struct{}, 2)
	require.NoError(t, timer.Start(time.Second, func() { done <- struct{}{} }))
	clock.Advance(time.Second)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("first window did not expire")
	}

	require.Eventually(t, func() bool { return !timer.IsActive() }, time.Second, time.Millisecond)
	require.NoError(t, timer.Start(2*time.Second, func() { done <- struct{}{} }))
	assert.Equal(t, 2*time.Second, timer.Remaining())
}

func TestTimer_CloseSuppressesCallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := lockout.NewTimer(clock)

	var fired int32
	require.NoError(t, timer.Start(time.Second, func() { atomic.AddInt32(&fired, 1) }))
	timer.Close()
	assert.False(t, timer.IsActive())

	clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&fired))
}

func TestTimer_RejectsNonPositive(t *testing.T) {
	timer := lockout.NewTimer(clockwork.NewFakeClock())
	assert.ErrorIs(t, timer.Start(0, nil), errclass.ErrSettingsInvalid)
	assert.False(t, timer.IsActive())
}

func TestTimer_RealClock(t *testing.T) {
	timer := lockout.NewTimer(nil)
	done := make(chan struct{})
	require.NoError(t, timer.Start(10*time.Millisecond, func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("real clock timer did not fire")
	}
}
