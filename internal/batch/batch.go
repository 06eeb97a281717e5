// Package batch implements the size/time/bytes-triggered batch
// aggregator described in spec.md §4.7. Grounded on queue.go's
// worker() batch-accumulation loop (batch slice + batchTimer +
// BatchSize/BatchTimeout), generalized to also trigger on estimated
// serialized byte size and to produce a model.BatchEnvelope rather than
// a raw event slice.
package batch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relayforge/errwebhook/internal/model"
)

// Sender is the transport substrate a flushed envelope is handed to.
// Implemented by internal/transport.
type Sender interface {
	SendBatch(ctx context.Context, envelope model.BatchEnvelope) error
	SendReport(ctx context.Context, report model.ErrorReport) error
}

// Aggregator accumulates admitted reports into a current batch and
// flushes on whichever trigger fires first: max size, estimated byte
// size, or max wait time (spec.md §4.7). When disabled, every report is
// wrapped in a one-element envelope and sent immediately.
type Aggregator struct {
	mu sync.Mutex

	enabled        bool
	maxSize        int
	maxWaitTime    time.Duration
	maxPayloadSize int

	sender Sender
	logger *zap.Logger

	current   []model.ErrorReport
	firstAt   time.Time
	timer     *time.Timer
	cancelled bool
}

// New creates an Aggregator. sender is invoked on every flush, holding
// no lock — a slow or blocking sender does not stall new admissions
// past the mutex critical section.
func New(enabled bool, maxSize int, maxWaitTime time.Duration, maxPayloadSize int, sender Sender, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		enabled:        enabled,
		maxSize:        maxSize,
		maxWaitTime:    maxWaitTime,
		maxPayloadSize: maxPayloadSize,
		sender:         sender,
		logger:         logger,
	}
}

// Add enqueues an admitted report and must be called synchronously, in
// admission order, by the Coordinator — the append below happens before
// Add returns, so callers that invoke Add in call order get a current
// batch that preserves call order (spec.md §5). When batching is
// disabled, it sends immediately in a one-element envelope. When a
// trigger fires, the resulting network send is handed off to a
// goroutine so Add itself never blocks the caller on transport I/O,
// matching the Coordinator's fire-and-forget capture contract
// (spec.md §4.1: a capture call returns once stage decisions complete,
// not once delivery completes).
func (a *Aggregator) Add(ctx context.Context, report model.ErrorReport) error {
	if !a.enabled {
		return a.sender.SendReport(ctx, report)
	}

	a.mu.Lock()

	if len(a.current) == 0 {
		a.firstAt = time.Now()
		a.timer = time.AfterFunc(a.maxWaitTime, func() { a.flushOnTimer() })
	}
	a.current = append(a.current, report)

	triggered := len(a.current) >= a.maxSize || a.estimatedSize() >= a.maxPayloadSize
	var toSend []model.ErrorReport
	if triggered {
		toSend = a.drainLocked()
	}
	a.mu.Unlock()

	if toSend != nil {
		go func() {
			if err := a.flush(context.Background(), toSend); err != nil {
				a.logger.Warn("batch flush on trigger failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// estimatedSize is a cheap upper bound on the serialized size of the
// current batch, used only for the size trigger — it need not match
// the eventual wire size exactly.
func (a *Aggregator) estimatedSize() int {
	total := 0
	for _, r := range a.current {
		raw, err := json.Marshal(r)
		if err != nil {
			continue
		}
		total += len(raw)
	}
	return total
}

// drainLocked clears the current batch and cancels its pending timer,
// returning what was accumulated. Must be called with a.mu held.
func (a *Aggregator) drainLocked() []model.ErrorReport {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	reports := a.current
	a.current = nil
	return reports
}

func (a *Aggregator) flushOnTimer() {
	a.mu.Lock()
	reports := a.drainLocked()
	a.mu.Unlock()

	if len(reports) == 0 {
		return
	}
	if err := a.flush(context.Background(), reports); err != nil {
		a.logger.Warn("batch flush on timer failed", zap.Error(err))
	}
}

// Flush forces an immediate flush of whatever is currently batched,
// for the Coordinator's flush() API and for teardown's final-flush
// requirement (spec.md §4.7).
func (a *Aggregator) Flush(ctx context.Context) error {
	a.mu.Lock()
	reports := a.drainLocked()
	a.mu.Unlock()

	if len(reports) == 0 {
		return nil
	}
	return a.flush(ctx, reports)
}

func (a *Aggregator) flush(ctx context.Context, reports []model.ErrorReport) error {
	envelope := model.NewBatchEnvelope(uuid.NewString(), time.Now(), reports)
	a.logger.Debug("flushing batch", zap.String("batch_id", envelope.BatchID), zap.Int("count", envelope.Count))
	return a.sender.SendBatch(ctx, envelope)
}
