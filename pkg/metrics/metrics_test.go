package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securelock/securelock/pkg/metrics"
)

func TestRecordUnlock(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordUnlock(metrics.ResultFail)
	r.RecordUnlock(metrics.ResultFail)
	r.RecordUnlock(metrics.ResultSuccess)

	count, err := testutil.GatherAndCount(r.Gatherer(), "securelock_unlock_attempts_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per result label")

	expected := `
# HELP securelock_unlock_attempts_total PIN submissions against the lock screen by result.
# TYPE securelock_unlock_attempts_total counter
securelock_unlock_attempts_total{result="fail"} 2
securelock_unlock_attempts_total{result="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected), "securelock_unlock_attempts_total"))
}

func TestLockoutGauge(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordLockout()

	expected := `
# HELP securelock_lockout_active 1 while a lockout is in effect.
# TYPE securelock_lockout_active gauge
securelock_lockout_active 1
`
	require.NoError(t, testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected), "securelock_lockout_active"))

	r.RecordLockoutExpired()
	expected = strings.Replace(expected, "securelock_lockout_active 1\n", "securelock_lockout_active 0\n", 1)
	require.NoError(t, testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected), "securelock_lockout_active"))
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *metrics.Registry
	assert.NotPanics(t, func() {
		r.RecordUnlock(metrics.ResultFail)
		r.RecordLockout()
		r.RecordLockoutExpired()
		r.RecordBranch("camera", metrics.OutcomeDenied)
		r.ObserveResponse(0.1)
		r.SetInPocket(true)
		r.RecordJournalError("sqlite")
	})
}

func TestHandler(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordBranch("alarm", metrics.OutcomeCompleted)
	r.SetInPocket(true)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `securelock_intrusion_branch_outcomes_total{branch="alarm",outcome="completed"} 1`)
	assert.Contains(t, body, "securelock_proximity_in_pocket 1")
}
