// Package breaker implements the circuit breaker that gates the
// transport substrate (spec.md §4.5). It has no knowledge of HTTP; the
// Coordinator calls CanExecute before a send and RecordSuccess/
// RecordFailure after.
package breaker

import (
	"sync"
	"time"
)

// State is one of CLOSED, OPEN, HALF_OPEN (spec.md §3,
// CircuitBreakerState).
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

// outcome is one sample in the sliding window: true for success.
type outcome struct {
	at      time.Time
	success bool
}

// Breaker tracks a sliding window of outcomes bounded by
// MonitoringPeriod and trips CLOSED -> OPEN when at least MinimumRequests
// samples have been observed within the window and the failure rate is
// >= FailureThreshold. FailureThreshold is a fraction in [0,1], not the
// teacher's tenths integer — spec.md §9's second Open Question.
type Breaker struct {
	mu sync.Mutex

	failureThreshold float64
	minimumRequests  int
	monitoringPeriod time.Duration
	resetTimeout     time.Duration

	state          State
	stateEnteredAt time.Time
	window         []outcome
	halfOpenInFlight bool
}

// New creates a Breaker in the CLOSED state.
func New(failureThreshold float64, minimumRequests int, monitoringPeriod, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		minimumRequests:  minimumRequests,
		monitoringPeriod: monitoringPeriod,
		resetTimeout:     resetTimeout,
		state:            Closed,
		stateEnteredAt:   time.Now(),
	}
}

// CanExecute reports whether a request may be dispatched right now,
// lazily transitioning OPEN -> HALF_OPEN when resetTimeout has elapsed
// (spec.md §4.5: "No wall-clock timer required; transitions may be
// lazy"). While OPEN it returns false; the Coordinator is expected to
// divert the report to the offline queue on a false result.
func (b *Breaker) CanExecute(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if now.Sub(b.stateEnteredAt) >= b.resetTimeout {
			b.state = HalfOpen
			b.stateEnteredAt = now
			b.halfOpenInFlight = true
			return true
		}
		return false
	case HalfOpen:
		// At most one trial request in flight at a time (spec.md §3
		// CircuitBreakerState invariant).
		if b.halfOpenInFlight {
			return false
		}
		b.halfOpenInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful outcome. In HALF_OPEN it closes
// the breaker immediately; in CLOSED/OPEN it just appends to the
// window.
func (b *Breaker) RecordSuccess(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(now, true)

	if b.state == HalfOpen {
		b.state = Closed
		b.stateEnteredAt = now
		b.halfOpenInFlight = false
		b.window = nil
	}
}

// RecordFailure records a failed outcome. In HALF_OPEN it reopens the
// breaker immediately; in CLOSED it evaluates the trip condition.
//
// Requests dispatched while CLOSED may complete and record a failure
// after a previous failure has already opened the breaker — this is
// benign per spec.md §5, the sample is still counted within the window.
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(now, false)

	switch b.state {
	case HalfOpen:
		b.state = Open
		b.stateEnteredAt = now
		b.halfOpenInFlight = false
		b.window = nil
	case Closed:
		b.evaluateTrip(now)
	}
}

func (b *Breaker) record(now time.Time, success bool) {
	cutoff := now.Add(-b.monitoringPeriod)
	pruned := b.window[:0]
	for _, o := range b.window {
		if o.at.After(cutoff) {
			pruned = append(pruned, o)
		}
	}
	b.window = append(pruned, outcome{at: now, success: success})
}

func (b *Breaker) evaluateTrip(now time.Time) {
	if len(b.window) < b.minimumRequests {
		return
	}

	failures := 0
	for _, o := range b.window {
		if !o.success {
			failures++
		}
	}
	rate := float64(failures) / float64(len(b.window))

	if rate >= b.failureThreshold {
		b.state = Open
		b.stateEnteredAt = now
	}
}

// State returns the current state, for stats/health reporting.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ForceOpen forcibly opens the breaker, for tests and operator override.
func (b *Breaker) ForceOpen(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Open
	b.stateEnteredAt = now
	b.halfOpenInFlight = false
}

// ForceClose forcibly closes the breaker and clears the window, for
// tests and operator override.
func (b *Breaker) ForceClose(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.stateEnteredAt = now
	b.halfOpenInFlight = false
	b.window = nil
}
