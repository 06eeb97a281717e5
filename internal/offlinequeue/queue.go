// Package offlinequeue implements the durable FIFO with age eviction
// and reconnection flush described in spec.md §4.9. Grounded on
// queue.go's channel-based EventQueue, reworked onto a
// store.Store-backed slice: spec.md requires survivable ordering and
// persistence across process restarts, which a Go channel cannot give.
package offlinequeue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relayforge/errwebhook/internal/model"
	"github.com/relayforge/errwebhook/internal/store"
)

// maxAttempts is the attempts ceiling spec.md §4.9/§8 fixes at 3.
const maxAttempts = 3

// Sender is the transport substrate a queued item is handed to on
// flush. Implemented by internal/transport.
type Sender interface {
	SendReport(ctx context.Context, report model.ErrorReport) error
}

// Queue is a durable FIFO bounded by MaxSize entries and a MaxAge
// time-to-live per entry (spec.md §4.9).
type Queue struct {
	mu sync.Mutex

	store    store.Store
	storeKey string
	maxSize  int
	maxAge   time.Duration
	sender   Sender
	logger   *zap.Logger

	items      []model.QueuedItem
	inProgress bool

	deadLetterKey string
}

// EnableDeadLetter turns on dead-letter capture: an item that exhausts
// maxAttempts is appended to storeKey instead of being silently dropped
// (SPEC_FULL.md §E.1's supplemented dead-letter queue feature, gated by
// config.RetryConfig.DeadLetterQueue). Disabled by default — call this
// only when the operator has opted in.
func (q *Queue) EnableDeadLetter(storeKey string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetterKey = storeKey
}

// New loads any previously persisted queue from st under storeKey. A
// load failure is logged once and the queue starts empty, per spec.md
// §4.9's durable-store-contract tolerance.
func New(ctx context.Context, st store.Store, storeKey string, maxSize int, maxAge time.Duration, sender Sender, logger *zap.Logger) *Queue {
	q := &Queue{
		store:    st,
		storeKey: storeKey,
		maxSize:  maxSize,
		maxAge:   maxAge,
		sender:   sender,
		logger:   logger,
	}

	raw, ok, err := st.Get(ctx, storeKey)
	if err != nil {
		logger.Warn("offline queue load failed, starting empty", zap.Error(err))
		return q
	}
	if !ok {
		return q
	}

	var items []model.QueuedItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		logger.Warn("offline queue parse failed, starting empty", zap.Error(err))
		return q
	}
	q.items = items
	return q
}

// HandleError is the offline queue's enqueue entry point (spec.md
// §4.9). If online and a sender is configured, it attempts a direct
// send first; on success it returns without touching the queue at all.
// On failure, or when offline, the report is appended as a QueuedItem
// with Attempts=0, expired items are pruned, and if the queue now
// exceeds MaxSize it is trimmed to the newest MaxSize items before
// persisting.
func (q *Queue) HandleError(ctx context.Context, report model.ErrorReport, online bool) error {
	if online && q.sender != nil {
		if err := q.sender.SendReport(ctx, report); err == nil {
			return nil
		}
	}

	q.mu.Lock()
	now := time.Now()
	q.items = append(q.items, model.QueuedItem{
		ID:         uuid.NewString(),
		Report:     report,
		EnqueuedAt: now,
		Attempts:   0,
	})
	q.pruneExpiredLocked(now)
	q.trimToMaxSizeLocked()
	snapshot := append([]model.QueuedItem(nil), q.items...)
	q.mu.Unlock()

	if err := q.persist(ctx, snapshot); err != nil {
		q.logger.Warn("offline queue persist failed, state lives only in memory", zap.Error(err))
	}

	// Opportunistic flush while online (spec.md §4.9 triggers).
	if online {
		go q.ProcessQueue(context.Background())
	}

	return nil
}

func (q *Queue) pruneExpiredLocked(now time.Time) {
	if q.maxAge <= 0 {
		return
	}
	cutoff := now.Add(-q.maxAge)
	kept := q.items[:0]
	for _, item := range q.items {
		if item.EnqueuedAt.After(cutoff) {
			kept = append(kept, item)
		}
	}
	q.items = kept
}

func (q *Queue) trimToMaxSizeLocked() {
	if q.maxSize <= 0 || len(q.items) <= q.maxSize {
		return
	}
	sort.Slice(q.items, func(i, j int) bool {
		return q.items[i].EnqueuedAt.Before(q.items[j].EnqueuedAt)
	})
	q.items = q.items[len(q.items)-q.maxSize:]
}

// ProcessQueue flushes the queue, guarded by a single in-progress flag
// to prevent concurrent runs (spec.md §4.9, §5). Items older than MaxAge
// are pruned first; it then iterates a snapshot of the queue in enqueue
// order; a successful send removes the item, a
// failed one increments Attempts and is removed once Attempts reaches
// maxAttempts. After the pass, the queue is rewritten as the complement
// of the removed set and persisted. Running it on an empty queue never
// calls the sender (spec.md §8).
func (q *Queue) ProcessQueue(ctx context.Context) error {
	q.mu.Lock()
	if q.inProgress {
		q.mu.Unlock()
		return nil
	}
	q.inProgress = true
	q.pruneExpiredLocked(time.Now())
	snapshot := append([]model.QueuedItem(nil), q.items...)
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.inProgress = false
		q.mu.Unlock()
	}()

	if len(snapshot) == 0 {
		return nil
	}

	remove := make(map[string]bool, len(snapshot))
	updated := make(map[string]int, len(snapshot))
	var exhausted []model.QueuedItem

	for _, item := range snapshot {
		if q.sender == nil {
			break
		}
		err := q.sender.SendReport(ctx, item.Report)
		if err == nil {
			remove[item.ID] = true
			continue
		}

		attempts := item.Attempts + 1
		updated[item.ID] = attempts
		if attempts >= maxAttempts {
			remove[item.ID] = true
			item.Attempts = attempts
			exhausted = append(exhausted, item)
			q.logger.Warn("offline queue item exhausted retries, dropping",
				zap.String("id", item.ID), zap.Int("attempts", attempts))
		}
	}

	q.mu.Lock()
	kept := q.items[:0]
	for _, item := range q.items {
		if remove[item.ID] {
			continue
		}
		if a, ok := updated[item.ID]; ok {
			item.Attempts = a
		}
		kept = append(kept, item)
	}
	q.items = kept
	out := append([]model.QueuedItem(nil), q.items...)
	deadLetterKey := q.deadLetterKey
	q.mu.Unlock()

	if len(exhausted) > 0 && deadLetterKey != "" {
		if err := q.appendDeadLetters(ctx, deadLetterKey, exhausted); err != nil {
			q.logger.Warn("dead letter persist failed", zap.Error(err))
		}
	}

	return q.persist(ctx, out)
}

// appendDeadLetters merges items into whatever dead-letter list is
// already persisted under storeKey, for later operator inspection via
// the RPC/CLI surface.
func (q *Queue) appendDeadLetters(ctx context.Context, storeKey string, items []model.QueuedItem) error {
	var existing []model.QueuedItem
	raw, ok, err := q.store.Get(ctx, storeKey)
	if err == nil && ok {
		_ = json.Unmarshal([]byte(raw), &existing)
	}

	existing = append(existing, items...)
	merged, err := json.Marshal(existing)
	if err != nil {
		return err
	}
	return q.store.Set(ctx, storeKey, string(merged))
}

func (q *Queue) persist(ctx context.Context, items []model.QueuedItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return q.store.Remove(ctx, q.storeKey)
	}
	return q.store.Set(ctx, q.storeKey, string(raw))
}

// Len returns the current queue length, for stats/health reporting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the queued items, oldest first, for
// inspection/testing.
func (q *Queue) Snapshot() []model.QueuedItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.QueuedItem(nil), q.items...)
}
