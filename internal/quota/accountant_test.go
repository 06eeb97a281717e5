package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relayforge/errwebhook/internal/store"
)

func newTestAccountant(t *testing.T, dailyLimit, monthlyLimit, burstLimit, maxPayload int, burstWindow time.Duration) (*Accountant, store.Store) {
	t.Helper()
	st := store.NewMemory()
	a := New(context.Background(), st, "quota", dailyLimit, monthlyLimit, burstLimit, maxPayload, burstWindow, zap.NewNop())
	return a, st
}

func TestCheckPayloadSizePrecedesCounterChecks(t *testing.T) {
	a, _ := newTestAccountant(t, 0, 1000, 1000, 100, time.Minute)
	d := a.Check(time.Now(), 200)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Payload too large for quota", d.Reason)

	snap := a.Snapshot()
	assert.Equal(t, 0, snap.DailyCount, "oversize item must not consume quota")
}

func TestCheckDeniesOnceDailyLimitReached(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	a, _ := newTestAccountant(t, 1, 1000, 1000, 1000, time.Minute)
	require.True(t, a.Check(now, 10).Allowed)
	require.NoError(t, a.Record(ctx, now))
	d := a.Check(now, 10)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Daily quota exceeded", d.Reason)
}

func TestRecordDoesNotAdvanceOnDeniedCheck(t *testing.T) {
	a, _ := newTestAccountant(t, 1000, 1000, 1000, 5, time.Minute)
	now := time.Now()

	d := a.Check(now, 100)
	require.False(t, d.Allowed)

	snap := a.Snapshot()
	assert.Equal(t, 0, snap.DailyCount)
}

func TestDayRolloverResetsDailyCount(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAccountant(t, 1, 1000, 1000, 1000, time.Minute)

	day1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, a.Check(day1, 10).Allowed)
	require.NoError(t, a.Record(ctx, day1))
	require.False(t, a.Check(day1, 10).Allowed)

	day2 := day1.Add(24 * time.Hour)
	assert.True(t, a.Check(day2, 10).Allowed)
}

func TestResetAdmitsPreviouslyBlockedReport(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAccountant(t, 1, 1000, 1000, 1000, time.Minute)
	now := time.Now()

	require.True(t, a.Check(now, 10).Allowed)
	require.NoError(t, a.Record(ctx, now))
	require.False(t, a.Check(now, 10).Allowed)

	a.Reset()
	assert.True(t, a.Check(now, 10).Allowed)
}

func TestLoadFromStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Now()

	a1 := New(ctx, st, "quota", 1000, 1000, 1000, 1000, time.Minute, zap.NewNop())
	require.NoError(t, a1.Record(ctx, now))

	a2 := New(ctx, st, "quota", 1000, 1000, 1000, 1000, time.Minute, zap.NewNop())
	snap := a2.Snapshot()
	assert.Equal(t, 1, snap.DailyCount)
	assert.Equal(t, 1, snap.MonthlyCount)
}

func TestLoadFromCorruptStoreStartsFromZero(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.Set(ctx, "quota", "{not json"))

	a := New(ctx, st, "quota", 1000, 1000, 1000, 1000, time.Minute, zap.NewNop())
	snap := a.Snapshot()
	assert.Equal(t, 0, snap.DailyCount)
}

func TestBurstTimestampsPrunedOutsideWindow(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAccountant(t, 1000, 1000, 1, 1000, 100*time.Millisecond)
	now := time.Now()

	require.True(t, a.Check(now, 10).Allowed)
	require.NoError(t, a.Record(ctx, now))
	require.False(t, a.Check(now, 10).Allowed)

	later := now.Add(200 * time.Millisecond)
	assert.True(t, a.Check(later, 10).Allowed)
}
