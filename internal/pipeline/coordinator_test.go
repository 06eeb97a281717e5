package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relayforge/errwebhook/internal/breaker"
	"github.com/relayforge/errwebhook/internal/health"
	"github.com/relayforge/errwebhook/internal/model"
	"github.com/relayforge/errwebhook/internal/offlinequeue"
	"github.com/relayforge/errwebhook/internal/quota"
	"github.com/relayforge/errwebhook/internal/ratelimit"
	"github.com/relayforge/errwebhook/internal/redact"
	"github.com/relayforge/errwebhook/internal/store"
)

// fakeSender is a direct batch.Sender/Coordinator.Sender test double,
// used here to stand in for internal/transport so tests never touch
// the network.
type fakeSender struct {
	mu      sync.Mutex
	fail    bool
	reports []model.ErrorReport
	batches []model.BatchEnvelope
}

func (f *fakeSender) SendReport(ctx context.Context, report model.ErrorReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assertErr
	}
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeSender) SendBatch(ctx context.Context, envelope model.BatchEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assertErr
	}
	f.batches = append(f.batches, envelope)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports) + len(f.batches)
}

type sentinelErr struct{}

func (sentinelErr) Error() string { return "fake sender failure" }

var assertErr error = sentinelErr{}

func newTestCoordinator(t *testing.T, sender *fakeSender, batchEnabled bool) *Coordinator {
	t.Helper()
	st := store.NewMemory()
	logger := zap.NewNop()
	ctx := context.Background()

	deps := Deps{
		Project:        "proj",
		Environment:    "test",
		SessionID:      "sess-1",
		RateLimiter:    ratelimit.New(100, time.Minute, time.Minute),
		Quota:          quota.New(ctx, st, "quota", 1000, 10000, 100, 1<<20, time.Second, logger),
		Redactor:       redact.New(),
		Validator:      redact.NewValidator(1 << 20),
		Breaker:        breaker.New(0.5, 3, time.Minute, time.Minute),
		Transport:      sender,
		Offline:        offlinequeue.New(ctx, st, "queue", 100, time.Hour, sender, logger),
		Monitor:        health.New(func() int { return 0 }),
		OfflineEnabled: true,
		Logger:         logger,
	}

	return New(deps, batchEnabled, 5, time.Hour, 1<<20)
}

func TestCoordinator_CaptureExceptionAdmitsAndDispatches(t *testing.T) {
	sender := &fakeSender{}
	c := newTestCoordinator(t, sender, false)

	outcome := c.CaptureException(context.Background(), "boom", "RuntimeError", "at foo (app.js:10:5)", nil)
	assert.False(t, outcome.Dropped)

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCoordinator_DuplicateWithinWindowIsDropped(t *testing.T) {
	sender := &fakeSender{}
	c := newTestCoordinator(t, sender, false)

	first := c.CaptureException(context.Background(), "boom", "RuntimeError", "at foo (app.js:10:5)", nil)
	second := c.CaptureException(context.Background(), "boom", "RuntimeError", "at foo (app.js:10:5)", nil)

	assert.False(t, first.Dropped)
	assert.True(t, second.Dropped)
	assert.Equal(t, model.ReasonDuplicate, second.Reason)
}

func TestCoordinator_DisabledCoordinatorDropsImmediately(t *testing.T) {
	sender := &fakeSender{}
	c := newTestCoordinator(t, sender, false)
	c.Destroy(context.Background())

	outcome := c.CaptureMessage(context.Background(), "hello", "info", nil)
	assert.True(t, outcome.Dropped)
	assert.Equal(t, model.ReasonDisabled, outcome.Reason)
}

func TestCoordinator_BeforeSendHookCanDrop(t *testing.T) {
	sender := &fakeSender{}
	c := newTestCoordinator(t, sender, false)
	c.UpdateConfig(func(r *model.ErrorReport) *model.ErrorReport {
		return nil
	})

	outcome := c.CaptureMessage(context.Background(), "hello", "info", nil)
	assert.True(t, outcome.Dropped)
	assert.Equal(t, model.ReasonFilteredByUserHook, outcome.Reason)
}

func TestCoordinator_CircuitOpenDivertsToOfflineQueue(t *testing.T) {
	sender := &fakeSender{}
	c := newTestCoordinator(t, sender, false)
	c.deps.Breaker.ForceOpen(time.Now())

	outcome := c.CaptureMessage(context.Background(), "hello", "info", nil)
	assert.False(t, outcome.Dropped)

	require.Eventually(t, func() bool { return c.deps.Offline.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, sender.count())
}

func TestCoordinator_CircuitOpenWithoutOfflineSupportIsSuppressed(t *testing.T) {
	sender := &fakeSender{}
	c := newTestCoordinator(t, sender, false)
	c.deps.OfflineEnabled = false
	c.deps.Breaker.ForceOpen(time.Now())

	outcome := c.CaptureMessage(context.Background(), "hello", "info", nil)
	assert.False(t, outcome.Dropped) // admitted through the gate stages; dropped only at dispatch

	require.Eventually(t, func() bool {
		return c.deps.Monitor.Snapshot().ErrorsSuppressed >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestCoordinator_TransportFailureFallsBackToOfflineQueue(t *testing.T) {
	sender := &fakeSender{fail: true}
	c := newTestCoordinator(t, sender, false)

	outcome := c.CaptureMessage(context.Background(), "hello", "info", nil)
	assert.False(t, outcome.Dropped)

	require.Eventually(t, func() bool { return c.deps.Offline.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCoordinator_BatchModeGatesThroughBreaker(t *testing.T) {
	sender := &fakeSender{}
	c := newTestCoordinator(t, sender, true)
	c.deps.Breaker.ForceOpen(time.Now())

	c.CaptureMessage(context.Background(), "one", "info", nil)
	c.CaptureMessage(context.Background(), "two", "info", nil)
	require.NoError(t, c.Flush(context.Background()))

	require.Eventually(t, func() bool { return c.deps.Offline.Len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, sender.count())
}

func TestCoordinator_FlushQueueDrainsOfflineBacklog(t *testing.T) {
	sender := &fakeSender{fail: true}
	c := newTestCoordinator(t, sender, false)

	c.CaptureMessage(context.Background(), "hello", "info", nil)
	require.Eventually(t, func() bool { return c.deps.Offline.Len() == 1 }, time.Second, 5*time.Millisecond)

	sender.mu.Lock()
	sender.fail = false
	sender.mu.Unlock()

	require.NoError(t, c.FlushQueue(context.Background()))
	assert.Equal(t, 0, c.deps.Offline.Len())
	assert.Equal(t, 1, sender.count())
}

func TestCoordinator_SetUserAndContextAreCarriedOntoReports(t *testing.T) {
	sender := &fakeSender{}
	c := newTestCoordinator(t, sender, false)
	c.SetUser(map[string]string{"id": "42"})
	c.SetContext("tenant", "acme")

	c.CaptureMessage(context.Background(), "hello", "info", nil)
	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.reports, 1)
	assert.Equal(t, "42", sender.reports[0].User["id"])
	assert.Equal(t, "acme", sender.reports[0].Context["tenant"])
}

func TestCoordinator_BatchPreservesAdmissionOrder(t *testing.T) {
	sender := &fakeSender{}
	c := newTestCoordinator(t, sender, true)

	for i := 0; i < 5; i++ {
		outcome := c.CaptureMessage(context.Background(), "msg-"+string(rune('a'+i)), "info", nil)
		require.False(t, outcome.Dropped)
	}

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.batches, 1)
	require.Len(t, sender.batches[0].Reports, 5)
	for i, r := range sender.batches[0].Reports {
		assert.Equal(t, "msg-"+string(rune('a'+i)), r.Message)
	}
}

func TestCoordinator_GetStatsReflectsReportedAndSuppressed(t *testing.T) {
	sender := &fakeSender{}
	c := newTestCoordinator(t, sender, false)

	c.CaptureMessage(context.Background(), "hello", "info", nil)
	c.CaptureMessage(context.Background(), "hello", "info", nil) // duplicate, suppressed

	stats := c.GetStats()
	assert.Equal(t, int64(1), stats.ErrorsReported)
	assert.Equal(t, int64(1), stats.ErrorsSuppressed)
}
