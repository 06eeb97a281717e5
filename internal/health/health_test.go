package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_HealthyByDefault(t *testing.T) {
	m := New(func() int { return 0 })
	m.RecordReported()

	snap := m.Snapshot()
	assert.Equal(t, StatusHealthy, snap.Status)
	assert.Equal(t, 100, snap.Score)
	assert.Empty(t, snap.Issues)
}

func TestMonitor_HighSuppressionRateDegrades(t *testing.T) {
	m := New(func() int { return 0 })
	for i := 0; i < 10; i++ {
		m.RecordReported()
	}
	for i := 0; i < 20; i++ {
		m.RecordSuppressed("Rate limit exceeded")
	}

	snap := m.Snapshot()
	assert.Contains(t, snap.Issues, "suppression rate above 50%")
	assert.LessOrEqual(t, snap.Score, 80)
}

func TestMonitor_SuppressedByReasonSubTotals(t *testing.T) {
	m := New(func() int { return 0 })
	m.RecordSuppressed("Rate limit exceeded")
	m.RecordSuppressed("Rate limit exceeded")
	m.RecordSuppressed("Duplicate error")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.SuppressedByReason["Rate limit exceeded"])
	assert.Equal(t, int64(1), snap.SuppressedByReason["Duplicate error"])
}

func TestMonitor_SlowResponseTimeDegrades(t *testing.T) {
	m := New(func() int { return 0 })
	for i := 0; i < 5; i++ {
		m.RecordResponseTime(6 * time.Second)
	}

	snap := m.Snapshot()
	assert.Contains(t, snap.Issues, "average transport response time above 5s")
}

func TestMonitor_LargeQueueDegrades(t *testing.T) {
	m := New(func() int { return 25 })

	snap := m.Snapshot()
	assert.Contains(t, snap.Issues, "offline queue backlog above 10 items")
	assert.Equal(t, 25, snap.OfflineQueueSize)
}

func TestMonitor_AverageResponseTimeSlidesOverLast20(t *testing.T) {
	m := New(func() int { return 0 })
	for i := 0; i < 25; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}

	snap := m.Snapshot()
	require.Greater(t, snap.AverageResponseTime, time.Duration(0))
	// only the last 20 samples (5..24ms) should count, average = 14.5ms
	assert.InDelta(t, 14.5, float64(snap.AverageResponseTime.Microseconds())/1000.0, 1.0)
}

func TestMonitor_MultipleIssuesStackScore(t *testing.T) {
	m := New(func() int { return 100 })
	for i := 0; i < 10; i++ {
		m.RecordReported()
	}
	for i := 0; i < 20; i++ {
		m.RecordSuppressed("quota")
	}
	for i := 0; i < 5; i++ {
		m.RecordResponseTime(6 * time.Second)
	}

	snap := m.Snapshot()
	assert.Equal(t, StatusUnhealthy, snap.Status)
	assert.LessOrEqual(t, snap.Score, 60)
}
