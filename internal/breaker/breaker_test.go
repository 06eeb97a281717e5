package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_StaysClosedBelowMinimumRequests(t *testing.T) {
	b := New(0.5, 3, time.Minute, 10*time.Second)
	now := time.Now()

	b.RecordFailure(now)
	b.RecordFailure(now)

	require.Equal(t, Closed, b.State())
	require.True(t, b.CanExecute(now))
}

func TestBreaker_OpensAtFailureThresholdWithMinimumRequests(t *testing.T) {
	b := New(0.5, 3, time.Minute, 10*time.Second)
	now := time.Now()

	b.RecordFailure(now)
	b.RecordFailure(now)
	b.RecordFailure(now)

	assert.Equal(t, Open, b.State())
	assert.False(t, b.CanExecute(now))
}

func TestBreaker_LazyTransitionToHalfOpenAfterResetTimeout(t *testing.T) {
	b := New(0.5, 3, time.Minute, 10*time.Second)
	now := time.Now()
	b.ForceOpen(now)

	require.False(t, b.CanExecute(now.Add(5*time.Second)))
	require.True(t, b.CanExecute(now.Add(11*time.Second)))
	require.Equal(t, HalfOpen, b.State())
}

func TestBreaker_HalfOpenAllowsOnlyOneTrial(t *testing.T) {
	b := New(0.5, 3, time.Minute, 10*time.Second)
	now := time.Now()
	b.ForceOpen(now)

	require.True(t, b.CanExecute(now.Add(11*time.Second)))
	require.False(t, b.CanExecute(now.Add(12*time.Second)), "second trial must wait for the first to resolve")
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New(0.5, 3, time.Minute, 10*time.Second)
	now := time.Now()
	b.ForceOpen(now)
	require.True(t, b.CanExecute(now.Add(11*time.Second)))

	b.RecordSuccess(now.Add(11 * time.Second))
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(0.5, 3, time.Minute, 10*time.Second)
	now := time.Now()
	b.ForceOpen(now)
	require.True(t, b.CanExecute(now.Add(11*time.Second)))

	b.RecordFailure(now.Add(11 * time.Second))
	assert.Equal(t, Open, b.State())
}

func TestBreaker_ForceCloseClearsWindow(t *testing.T) {
	b := New(0.5, 3, time.Minute, 10*time.Second)
	now := time.Now()
	b.RecordFailure(now)
	b.RecordFailure(now)
	b.RecordFailure(now)
	require.Equal(t, Open, b.State())

	b.ForceClose(now)
	assert.Equal(t, Closed, b.State())
	assert.True(t, b.CanExecute(now))
}

func TestBreaker_OldSamplesFallOutsideMonitoringPeriod(t *testing.T) {
	b := New(0.5, 3, 30*time.Second, 10*time.Second)
	now := time.Now()

	b.RecordFailure(now)
	b.RecordFailure(now)
	// these two fall outside the 30s monitoring period relative to the
	// third failure below, so the window only has 1 sample at trip time.
	b.RecordFailure(now.Add(40 * time.Second))

	assert.Equal(t, Closed, b.State())
}
