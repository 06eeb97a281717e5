// Package health implements the performance-counter accumulator and
// health scorer described in spec.md §4.10. Grounded on metrics.go's
// metricsCollector (atomic counters + prometheus.Desc, Describe/
// Collect), extended with the drop-reason-by-label vector and the
// scored assessHealth() spec.md requires.
package health

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "errwebhook"

// maxResponseSamples bounds the sliding window AverageResponseTime is
// computed over (spec.md §4.10: "last 20 performance samples").
const maxResponseSamples = 20

// Status is the three-tier health mapping spec.md §4.10 defines.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Snapshot is a point-in-time read of the monitor's counters, plus the
// derived score. Returned by GetSDKHealth.
type Snapshot struct {
	ErrorsReported      int64
	ErrorsSuppressed    int64
	SuppressedByReason  map[string]int64
	RetryAttempts       int64
	OfflineQueueSize    int
	AverageResponseTime time.Duration
	Uptime              time.Duration
	MemoryUsageBytes    uint64

	Score           int
	Status          Status
	Issues          []string
	Recommendations []string
}

// Monitor is a read-side observer: the pipeline reports events into it,
// and RPC/CLI callers read Snapshot()/AssessHealth() out of it. It
// doubles as a prometheus.Collector so the same counters export to
// Prometheus without a second bookkeeping path.
type Monitor struct {
	mu sync.Mutex

	startedAt time.Time

	errorsReported   *uint64
	errorsSuppressed *uint64
	suppressedByReason map[string]*uint64
	retryAttempts    *uint64

	responseTimes []time.Duration // ring-ish, capped at maxResponseSamples
	queueSizeFn   func() int

	suppressedDesc *prometheus.Desc
	reportedDesc   *prometheus.Desc
	retryDesc      *prometheus.Desc
	scoreDesc      *prometheus.Desc
	suppressedVec  *prometheus.CounterVec
}

// New creates a Monitor. queueSizeFn is polled at Snapshot time to read
// the offline queue's current length without the health package
// depending on internal/offlinequeue directly.
func New(queueSizeFn func() int) *Monitor {
	return &Monitor{
		startedAt:          time.Now(),
		errorsReported:     new(uint64),
		errorsSuppressed:   new(uint64),
		suppressedByReason: make(map[string]*uint64),
		retryAttempts:      new(uint64),
		queueSizeFn:        queueSizeFn,

		reportedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "errors_reported_total"),
			"Total number of errors that reached the pipeline", nil, nil),
		suppressedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "errors_suppressed_total"),
			"Total number of errors dropped by any pipeline stage", nil, nil),
		retryDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "retry_attempts_total"),
			"Total number of transport retry attempts", nil, nil),
		scoreDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "health_score"),
			"Current SDK health score, 0-100", nil, nil),
		suppressedVec: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prometheus.BuildFQName(namespace, "", "errors_suppressed_by_reason_total"),
				Help: "Total number of errors dropped, labeled by reason",
			},
			[]string{"reason"}),
	}
}

// RecordReported increments the total-reported counter.
func (m *Monitor) RecordReported() {
	atomic.AddUint64(m.errorsReported, 1)
}

// RecordSuppressed increments the total-suppressed counter and its
// per-reason sub-total (spec.md §4.10).
func (m *Monitor) RecordSuppressed(reason string) {
	atomic.AddUint64(m.errorsSuppressed, 1)
	m.suppressedVec.WithLabelValues(reason).Inc()

	m.mu.Lock()
	counter, ok := m.suppressedByReason[reason]
	if !ok {
		counter = new(uint64)
		m.suppressedByReason[reason] = counter
	}
	m.mu.Unlock()
	atomic.AddUint64(counter, 1)
}

// RecordRetryAttempt increments the retry-attempts counter.
func (m *Monitor) RecordRetryAttempt() {
	atomic.AddUint64(m.retryAttempts, 1)
}

// RecordResponseTime appends a transport latency sample, keeping only
// the most recent maxResponseSamples.
func (m *Monitor) RecordResponseTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responseTimes = append(m.responseTimes, d)
	if len(m.responseTimes) > maxResponseSamples {
		m.responseTimes = m.responseTimes[len(m.responseTimes)-maxResponseSamples:]
	}
}

func (m *Monitor) averageResponseTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responseTimes) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range m.responseTimes {
		total += d
	}
	return total / time.Duration(len(m.responseTimes))
}

// Snapshot reads the current counters and computes the health score
// (spec.md §4.10). Score starts at 100 and loses: 20 if the
// suppression rate exceeds 50%, 15 if average response time exceeds
// 5000ms, 10 if the offline queue exceeds 10 items, 10 if heap usage
// exceeds 50MiB; mapped to healthy>=80, degraded>=60, unhealthy<60.
func (m *Monitor) Snapshot() Snapshot {
	reported := atomic.LoadUint64(m.errorsReported)
	suppressed := atomic.LoadUint64(m.errorsSuppressed)
	retries := atomic.LoadUint64(m.retryAttempts)

	m.mu.Lock()
	byReason := make(map[string]int64, len(m.suppressedByReason))
	for reason, counter := range m.suppressedByReason {
		byReason[reason] = int64(atomic.LoadUint64(counter))
	}
	m.mu.Unlock()

	avgResponse := m.averageResponseTime()
	queueSize := 0
	if m.queueSizeFn != nil {
		queueSize = m.queueSizeFn()
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := Snapshot{
		ErrorsReported:      int64(reported),
		ErrorsSuppressed:    int64(suppressed),
		SuppressedByReason:  byReason,
		RetryAttempts:       int64(retries),
		OfflineQueueSize:    queueSize,
		AverageResponseTime: avgResponse,
		Uptime:              time.Since(m.startedAt),
		MemoryUsageBytes:    memStats.HeapAlloc,
	}

	assess(&snap, reported, suppressed)
	return snap
}

const (
	mebibyte             = 1 << 20
	suppressionRateLimit = 0.5
	slowResponseLimit    = 5000 * time.Millisecond
	queueSizeLimit       = 10
	heapUsageLimit       = 50 * mebibyte
)

func assess(snap *Snapshot, reported, suppressed uint64) {
	score := 100
	var issues, recs []string

	total := reported + suppressed
	if total > 0 && float64(suppressed)/float64(total) > suppressionRateLimit {
		score -= 20
		issues = append(issues, "suppression rate above 50%")
		recs = append(recs, "review rate limit, quota, and dedup settings for over-aggressive drops")
	}

	if snap.AverageResponseTime > slowResponseLimit {
		score -= 15
		issues = append(issues, "average transport response time above 5s")
		recs = append(recs, "check webhook endpoint latency or lower the request timeout")
	}

	if snap.OfflineQueueSize > queueSizeLimit {
		score -= 10
		issues = append(issues, "offline queue backlog above 10 items")
		recs = append(recs, "investigate connectivity or transport failures preventing flush")
	}

	if snap.MemoryUsageBytes > heapUsageLimit {
		score -= 10
		issues = append(issues, "heap usage above 50MiB")
		recs = append(recs, "reduce breadcrumb/context retention or lower batch sizes")
	}

	if score < 0 {
		score = 0
	}

	snap.Score = score
	snap.Issues = issues
	snap.Recommendations = recs

	switch {
	case score >= 80:
		snap.Status = StatusHealthy
	case score >= 60:
		snap.Status = StatusDegraded
	default:
		snap.Status = StatusUnhealthy
	}
}

// Describe implements prometheus.Collector.
func (m *Monitor) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.reportedDesc
	ch <- m.suppressedDesc
	ch <- m.retryDesc
	ch <- m.scoreDesc
	m.suppressedVec.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Monitor) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(m.reportedDesc, prometheus.CounterValue, float64(atomic.LoadUint64(m.errorsReported)))
	ch <- prometheus.MustNewConstMetric(m.suppressedDesc, prometheus.CounterValue, float64(atomic.LoadUint64(m.errorsSuppressed)))
	ch <- prometheus.MustNewConstMetric(m.retryDesc, prometheus.CounterValue, float64(atomic.LoadUint64(m.retryAttempts)))
	ch <- prometheus.MustNewConstMetric(m.scoreDesc, prometheus.GaugeValue, float64(m.Snapshot().Score))
	m.suppressedVec.Collect(ch)
}
