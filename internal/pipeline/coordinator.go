package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relayforge/errwebhook/internal/batch"
	"github.com/relayforge/errwebhook/internal/breaker"
	"github.com/relayforge/errwebhook/internal/fingerprint"
	"github.com/relayforge/errwebhook/internal/health"
	"github.com/relayforge/errwebhook/internal/model"
	"github.com/relayforge/errwebhook/internal/offlinequeue"
	"github.com/relayforge/errwebhook/internal/quota"
	"github.com/relayforge/errwebhook/internal/ratelimit"
	"github.com/relayforge/errwebhook/internal/redact"
)

// Sender is the transport substrate; implemented by internal/transport.
type Sender interface {
	SendReport(ctx context.Context, report model.ErrorReport) error
	SendBatch(ctx context.Context, envelope model.BatchEnvelope) error
}

// Deps collects the Coordinator's component dependencies, all built
// and owned by the caller (the root plugin's Init, mirroring
// plugin.go's own construction sequence).
type Deps struct {
	Project     string
	Environment string
	SessionID   string

	RateLimiter *ratelimit.Limiter
	Quota       *quota.Accountant
	Redactor    *redact.Redactor
	Validator   *redact.Validator
	Breaker     *breaker.Breaker
	Transport   Sender
	Offline     *offlinequeue.Queue
	Monitor     *health.Monitor

	Breadcrumbs BreadcrumbReader
	Network     NetworkSignal

	OfflineEnabled bool

	BeforeSend BeforeSendHook

	Logger *zap.Logger
}

// Coordinator sequences the eight decision stages of spec.md §4.1 and
// holds the only direct dependency edges onto every other component
// (spec.md §2: "The Coordinator holds direct dependencies on every
// other component; all other components are siblings").
type Coordinator struct {
	deps Deps

	batchAgg *batch.Aggregator

	mu         sync.RWMutex
	enabled    bool
	beforeSend BeforeSendHook
	baseUser   map[string]string
	baseCtx    map[string]any
}

// CaptureOutcome is the synchronous result of a capture call: whether
// the report was dropped during stages 1-7, and why. A non-dropped
// result means the report was handed to stage 8 (dispatch); its
// eventual delivered/queued fate is recorded asynchronously via the
// health monitor, per spec.md §4.1's fire-and-forget contract.
type CaptureOutcome struct {
	Dropped bool
	Reason  model.DropReason
}

// New creates a Coordinator wired to batchEnabled/batchMaxSize/etc.
// through a batch.Aggregator that treats the Coordinator itself as its
// Sender, so a flushed batch re-enters circuit/offline-queue gating the
// same way a direct send does (spec.md §9's third Open Question: batched
// sends also gate through the breaker).
func New(deps Deps, batchEnabled bool, batchMaxSize int, batchMaxWait time.Duration, batchMaxPayload int) *Coordinator {
	c := &Coordinator{
		deps:       deps,
		enabled:    true,
		beforeSend: deps.BeforeSend,
	}
	c.batchAgg = batch.New(batchEnabled, batchMaxSize, batchMaxWait, batchMaxPayload, c, deps.Logger)

	if deps.Network != nil {
		deps.Network.OnOnline(func() {
			go c.FlushQueue(context.Background())
		})
	}

	return c
}

// IsEnabled reports whether the SDK is currently accepting captures
// (spec.md §6).
func (c *Coordinator) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Destroy marks the Coordinator disabled so new captures drop at the
// entry; pending flushes are allowed to complete on a best-effort basis
// (spec.md §5).
func (c *Coordinator) Destroy(ctx context.Context) {
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()

	if err := c.batchAgg.Flush(ctx); err != nil {
		c.deps.Logger.Warn("final batch flush on teardown failed", zap.Error(err))
	}
}

// SetUser sets the base user attached to every subsequent capture
// (spec.md §6).
func (c *Coordinator) SetUser(user map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseUser = user
}

// SetContext merges key into the base context attached to every
// subsequent capture (spec.md §6).
func (c *Coordinator) SetContext(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.baseCtx == nil {
		c.baseCtx = make(map[string]any)
	}
	c.baseCtx[key] = value
}

// RemoveContext deletes key from the base context (spec.md §6).
func (c *Coordinator) RemoveContext(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.baseCtx, key)
}

// UpdateConfig swaps the user filter hook, for the UpdateConfig public
// operation's pipeline-relevant slice (spec.md §6); other config fields
// are owned by the components Deps already wired, and are updated by
// reconstructing those components, not by this method.
func (c *Coordinator) UpdateConfig(beforeSend BeforeSendHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforeSend = beforeSend
}

// CaptureException runs a thrown-exception report through stages 1-8.
func (c *Coordinator) CaptureException(ctx context.Context, message, exceptionClass, stackTrace string, extraContext map[string]any) CaptureOutcome {
	file, line := extractFileLine(stackTrace)
	report := c.buildReport(message, exceptionClass, stackTrace, file, line, extraContext)
	return c.run(ctx, report)
}

// CaptureMessage runs an explicit message capture through stages 1-8.
// level is stored as the exceptionClass, matching how spec.md treats a
// captured message as a degenerate ErrorReport with no stack trace.
func (c *Coordinator) CaptureMessage(ctx context.Context, text, level string, extraContext map[string]any) CaptureOutcome {
	if level == "" {
		level = "info"
	}
	report := c.buildReport(text, level, "", "unknown", 0, extraContext)
	return c.run(ctx, report)
}

func (c *Coordinator) buildReport(message, exceptionClass, stackTrace, file string, line int, extraContext map[string]any) model.ErrorReport {
	c.mu.RLock()
	user := c.baseUser
	mergedCtx := mergeContext(c.baseCtx, extraContext)
	c.mu.RUnlock()

	var breadcrumbs []model.Breadcrumb
	if c.deps.Breadcrumbs != nil {
		breadcrumbs = c.deps.Breadcrumbs.Snapshot()
	}

	return model.ErrorReport{
		Message:        message,
		ExceptionClass: exceptionClass,
		StackTrace:     stackTrace,
		File:           file,
		Line:           line,
		Project:        c.deps.Project,
		Environment:    c.deps.Environment,
		Timestamp:      time.Now().UTC(),
		SessionID:      c.deps.SessionID,
		User:           user,
		Context:        mergedCtx,
		Breadcrumbs:    breadcrumbs,
	}
}

func mergeContext(base, extra map[string]any) map[string]any {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// run executes stages 1 (format is already done by the caller) through
// 8. Stage 1's "format" happens in buildReport above; run starts at
// validate.
func (c *Coordinator) run(ctx context.Context, report model.ErrorReport) CaptureOutcome {
	if !c.IsEnabled() {
		return c.drop(model.ReasonDisabled)
	}

	// Stage 2: validate.
	warnings, err := c.deps.Validator.Validate(&report)
	if err != nil {
		return c.drop(model.ReasonValidationFailed)
	}
	for _, w := range warnings {
		c.deps.Logger.Debug("sensitive pattern detected pre-redaction", zap.String("kind", string(w.Kind)), zap.String("path", w.Path))
	}

	// Stage 3: redact.
	c.deps.Redactor.Redact(&report)

	// Stage 4: user filter.
	c.mu.RLock()
	hook := c.beforeSend
	c.mu.RUnlock()
	if hook != nil {
		filtered := hook(&report)
		if filtered == nil {
			return c.drop(model.ReasonFilteredByUserHook)
		}
		report = *filtered
	}

	// Compute fingerprint once; carried through rate limit and quota.
	report.Fingerprint = fingerprint.Of(report.Message, report.File, report.Line)
	now := time.Now()

	// Stage 5: rate limit.
	rlDecision := c.deps.RateLimiter.Check(report.Fingerprint, now)
	if !rlDecision.Allowed {
		if rlDecision.Reason == "Duplicate error" {
			return c.drop(model.ReasonDuplicate)
		}
		return c.drop(model.ReasonRateLimited)
	}

	// Stage 6: quota. Payload size estimated the same way the
	// validator estimates it: marshaled report size.
	payloadSize := estimateSize(report)
	quotaDecision := c.deps.Quota.Check(now, payloadSize)
	if !quotaDecision.Allowed {
		return c.drop(reasonForQuota(quotaDecision.Reason))
	}

	// Stage 7: charge. Only after both rate and quota admit.
	c.deps.RateLimiter.Mark(report.Fingerprint, now)
	if err := c.deps.Quota.Record(ctx, now); err != nil {
		c.deps.Logger.Warn("quota record failed", zap.Error(err))
	}
	c.deps.Monitor.RecordReported()

	// Stage 8: dispatch. Called synchronously so reports admitted in
	// call order are enqueued into the batch aggregator's current batch
	// in that same order (spec.md §5); batch.Aggregator.Add itself hands
	// any triggered flush's network I/O off to a goroutine, so this does
	// not block the capture call on transport I/O.
	if err := c.batchAgg.Add(ctx, report); err != nil {
		c.deps.Logger.Warn("dispatch failed", zap.Error(err))
	}

	return CaptureOutcome{Dropped: false}
}

func (c *Coordinator) drop(reason model.DropReason) CaptureOutcome {
	c.deps.Monitor.RecordSuppressed(string(reason))
	return CaptureOutcome{Dropped: true, Reason: reason}
}

func reasonForQuota(reason string) model.DropReason {
	switch reason {
	case "Daily quota exceeded":
		return model.ReasonQuotaDaily
	case "Monthly quota exceeded":
		return model.ReasonQuotaMonthly
	case "Burst quota exceeded":
		return model.ReasonQuotaBurst
	case "Payload too large for quota":
		return model.ReasonQuotaPayloadSize
	default:
		return model.ReasonQuotaDaily
	}
}

func estimateSize(report model.ErrorReport) int {
	raw, err := json.Marshal(report)
	if err != nil {
		return 0
	}
	return len(raw)
}

// SendReport implements batch.Sender: it is stage "circuit -> offline
// queue -> retry -> compress -> POST" for a single, non-batched report.
func (c *Coordinator) SendReport(ctx context.Context, report model.ErrorReport) error {
	now := time.Now()
	if !c.deps.Breaker.CanExecute(now) {
		c.divertToOffline(ctx, report)
		return nil
	}

	err := c.deps.Transport.SendReport(ctx, report)
	if err == nil {
		c.deps.Breaker.RecordSuccess(time.Now())
		return nil
	}

	c.deps.Breaker.RecordFailure(time.Now())
	c.divertToOffline(ctx, report)
	return nil
}

// SendBatch implements batch.Sender. Per spec.md §9's third Open
// Question, a batched send also gates through the breaker; if it is
// open, every report in the envelope is diverted to the offline queue
// individually, since the offline queue's unit is a single report.
func (c *Coordinator) SendBatch(ctx context.Context, envelope model.BatchEnvelope) error {
	now := time.Now()
	if !c.deps.Breaker.CanExecute(now) {
		for _, report := range envelope.Reports {
			c.divertToOffline(ctx, report)
		}
		return nil
	}

	err := c.deps.Transport.SendBatch(ctx, envelope)
	if err == nil {
		c.deps.Breaker.RecordSuccess(time.Now())
		return nil
	}

	c.deps.Breaker.RecordFailure(time.Now())
	for _, report := range envelope.Reports {
		c.divertToOffline(ctx, report)
	}
	return nil
}

func (c *Coordinator) divertToOffline(ctx context.Context, report model.ErrorReport) {
	if !c.deps.OfflineEnabled || c.deps.Offline == nil {
		c.deps.Monitor.RecordSuppressed(string(model.ReasonCircuitOpenNoQueue))
		return
	}
	online := c.deps.Network != nil && c.deps.Network.IsOnline()
	if err := c.deps.Offline.HandleError(ctx, report, online); err != nil {
		c.deps.Logger.Warn("offline queue enqueue failed", zap.Error(err))
	}
}

// Flush forces the batch aggregator to flush immediately (spec.md
// §4.1's flush() public operation).
func (c *Coordinator) Flush(ctx context.Context) error {
	return c.batchAgg.Flush(ctx)
}

// FlushQueue drains the offline queue, for the online-signal trigger
// and the FlushQueue public operation (spec.md §4.9).
func (c *Coordinator) FlushQueue(ctx context.Context) error {
	if c.deps.Offline == nil {
		return nil
	}
	return c.deps.Offline.ProcessQueue(ctx)
}

// GetStats returns a snapshot of the pipeline's counters for the
// GetStats public operation (spec.md §6).
func (c *Coordinator) GetStats() health.Snapshot {
	return c.deps.Monitor.Snapshot()
}

// NewSessionID is exposed so the root plugin can stamp a session id
// once per process at construction time (spec.md §3, ErrorReport.sessionId).
func NewSessionID() string {
	return uuid.NewString()
}
