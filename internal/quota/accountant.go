package quota

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relayforge/errwebhook/internal/store"
)

// Decision is the result of an admission check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Accountant enforces the daily/monthly/burst/payload-size limits and
// persists usage to a Store under a fixed key. Admission never charges
// the ledger (it only rolls over stale period keys and prunes burst
// timestamps) — only Record does, called once a report has charged
// (spec.md §4.1 stage 7).
type Accountant struct {
	mu sync.Mutex

	store       store.Store
	storeKey    string
	logger      *zap.Logger

	dailyLimit   int
	monthlyLimit int
	burstLimit   int
	burstWindow  time.Duration
	maxPayload   int

	ledger Ledger
}

// New creates an Accountant, loading any previously persisted ledger
// from st. A load failure (missing key, corrupt JSON) starts from zero
// but keeps today's key so only the historical counts are lost — the
// rest of the process (and the day's remaining quota) is unaffected.
func New(ctx context.Context, st store.Store, storeKey string, dailyLimit, monthlyLimit, burstLimit, maxPayload int, burstWindow time.Duration, logger *zap.Logger) *Accountant {
	a := &Accountant{
		store:        st,
		storeKey:     storeKey,
		logger:       logger,
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		burstLimit:   burstLimit,
		burstWindow:  burstWindow,
		maxPayload:   maxPayload,
	}

	now := time.Now()
	a.ledger = Ledger{LastDayKey: dayKey(now), LastMonthKey: monthKey(now)}

	raw, ok, err := st.Get(ctx, storeKey)
	if err != nil {
		logger.Warn("quota ledger load failed, starting from zero", zap.Error(err))
		return a
	}
	if !ok {
		return a
	}

	var loaded Ledger
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		logger.Warn("quota ledger parse failed, starting from zero", zap.Error(err))
		return a
	}
	loaded.LastDayKey = cmpOr(loaded.LastDayKey, a.ledger.LastDayKey)
	loaded.LastMonthKey = cmpOr(loaded.LastMonthKey, a.ledger.LastMonthKey)
	a.ledger = loaded

	return a
}

func cmpOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Check evaluates admission for a payload of payloadSize bytes at time
// now, in the order spec.md §4.3 requires: payload size first (an
// oversize item must not consume quota), then burst, then daily, then
// monthly.
func (a *Accountant) Check(now time.Time, payloadSize int) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ledger.reconcile(now, a.burstWindow)

	if payloadSize > a.maxPayload {
		return Decision{Allowed: false, Reason: "Payload too large for quota"}
	}
	if len(a.ledger.BurstTimestamps) >= a.burstLimit {
		return Decision{Allowed: false, Reason: "Burst quota exceeded"}
	}
	if a.ledger.DailyCount >= a.dailyLimit {
		return Decision{Allowed: false, Reason: "Daily quota exceeded"}
	}
	if a.ledger.MonthlyCount >= a.monthlyLimit {
		return Decision{Allowed: false, Reason: "Monthly quota exceeded"}
	}

	return Decision{Allowed: true}
}

// Record charges the ledger for one admitted report and persists it.
// Call only after every later stage has also admitted (spec.md §4.1
// stage 7).
func (a *Accountant) Record(ctx context.Context, now time.Time) error {
	a.mu.Lock()
	a.ledger.reconcile(now, a.burstWindow)
	a.ledger.DailyCount++
	a.ledger.MonthlyCount++
	a.ledger.BurstTimestamps = append(a.ledger.BurstTimestamps, now.UnixNano())
	snapshot := a.ledger
	a.mu.Unlock()

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	if err := a.store.Set(ctx, a.storeKey, string(raw)); err != nil {
		a.logger.Warn("quota ledger persist failed", zap.Error(err))
		return nil // in-memory counters still advanced; matches spec.md §7
	}
	return nil
}

// Reset clears all counters, admitting any previously blocked report
// (spec.md §8 invariant).
func (a *Accountant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	a.ledger = Ledger{LastDayKey: dayKey(now), LastMonthKey: monthKey(now)}
}

// Snapshot returns a copy of the current ledger, for stats/health reporting.
func (a *Accountant) Snapshot() Ledger {
	a.mu.Lock()
	defer a.mu.Unlock()
	ledger := a.ledger
	ledger.BurstTimestamps = append([]int64(nil), a.ledger.BurstTimestamps...)
	return ledger
}
