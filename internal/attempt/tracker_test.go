package attempt_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/securelock/securelock/internal/attempt"
)

func TestTracker_ExceededExactlyAtThreshold(t *testing.T) {
	tr := attempt.NewTracker()
	for i := 1; i < 4; i++ {
		r := tr.RecordFailure(4)
		assert.Equal(t, i, r.Count)
		assert.False(t, r.Exceeded, "failure %d", i)
		assert.Equal(t, 4-i, tr.Remaining(4))
	}
	r := tr.RecordFailure(4)
	assert.Equal(t, attempt.Result{Count: 4, Exceeded: true}, r)
	assert.Equal(t, 0, tr.Remaining(4))
}

func TestTracker_SuccessResets(t *testing.T) {
	tr := attempt.NewTracker()
	tr.RecordFailure(4)
	tr.RecordFailure(4)
	tr.RecordSuccess()
	assert.Equal(t, 0, tr.Count())
	assert.Equal(t, 4, tr.Remaining(4))
}

func TestTracker_Reset(t *testing.T) {
	tr := attempt.NewTracker()
	for i := 0; i < 5; i++ {
		tr.RecordFailure(4)
	}
	assert.Equal(t, 0, tr.Remaining(4), "remaining never negative")
	tr.Reset()
	assert.Equal(t, 0, tr.Count())
}

func TestTracker_ThresholdOfOne(t *testing.T) {
	r := attempt.NewTracker().RecordFailure(1)
	assert.True(t, r.Exceeded)
}

func TestTracker_Concurrent(t *testing.T) {
	tr := attempt.NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.RecordFailure(100)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, tr.Count())
}
