// Package quota implements the daily/monthly/burst counters described
// in spec.md §4.3, persisted across process restarts through the
// store.Store contract.
package quota

import "time"

// Ledger is the persisted shape of the quota accountant's state
// (spec.md §3, QuotaLedger).
type Ledger struct {
	DailyCount      int       `json:"dailyCount"`
	MonthlyCount    int       `json:"monthlyCount"`
	BurstTimestamps []int64   `json:"burstTimestamps"` // unix nanos
	LastDayKey      string    `json:"lastDayKey"`
	LastMonthKey    string    `json:"lastMonthKey"`
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// reconcile rolls the day/month counters over if the stored keys are
// stale relative to now, and prunes burst timestamps outside window.
// Mirrors spec.md §4.3's reconcile() exactly.
func (l *Ledger) reconcile(now time.Time, burstWindow time.Duration) {
	today := dayKey(now)
	if l.LastDayKey != today {
		l.DailyCount = 0
		l.LastDayKey = today
	}

	month := monthKey(now)
	if l.LastMonthKey != month {
		l.MonthlyCount = 0
		l.LastMonthKey = month
	}

	cutoff := now.Add(-burstWindow).UnixNano()
	pruned := l.BurstTimestamps[:0]
	for _, ts := range l.BurstTimestamps {
		if ts >= cutoff {
			pruned = append(pruned, ts)
		}
	}
	l.BurstTimestamps = pruned
}
