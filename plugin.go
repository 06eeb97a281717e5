// Package errwebhook is the RoadRunner plugin entry point: it owns the
// plugin lifecycle (Init/Serve/Stop) and wires internal/config's Config
// into every internal/ component, handing the assembled pipeline.Coordinator
// to both the RPC surface and the ErrWebhookReporter interface other
// plugins can bind against. Grounded on plugin.go's own construction
// sequence, generalized from "one DSN transport" to the full component
// graph SPEC_FULL.md §A/§D describe.
package errwebhook

import (
	"context"
	"sync"
	"time"

	"github.com/roadrunner-server/endure/v2/dep"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/relayforge/errwebhook/internal/breadcrumb"
	"github.com/relayforge/errwebhook/internal/breaker"
	"github.com/relayforge/errwebhook/internal/compress"
	"github.com/relayforge/errwebhook/internal/config"
	"github.com/relayforge/errwebhook/internal/health"
	"github.com/relayforge/errwebhook/internal/model"
	"github.com/relayforge/errwebhook/internal/offlinequeue"
	"github.com/relayforge/errwebhook/internal/pipeline"
	"github.com/relayforge/errwebhook/internal/quota"
	"github.com/relayforge/errwebhook/internal/ratelimit"
	"github.com/relayforge/errwebhook/internal/redact"
	"github.com/relayforge/errwebhook/internal/retryexec"
	"github.com/relayforge/errwebhook/internal/store"
	"github.com/relayforge/errwebhook/internal/transport"
)

const PluginName = config.PluginName

// Plugin is the RoadRunner plugin structure. The fields rebuilt by
// UpdateConfig (config, transport, coordinator, offline, rateLimiter)
// are guarded by mu so a capture
// in flight during a hot-reload reads a consistent snapshot rather than
// a half-swapped set of pointers.
type Plugin struct {
	mu sync.RWMutex

	config      *config.Config
	logger      *zap.Logger
	st          store.Store
	transport   *transport.Transport
	coordinator *pipeline.Coordinator
	breadcrumbs *breadcrumb.Recorder
	monitor     *health.Monitor
	offline     *offlinequeue.Queue
	rateLimiter *ratelimit.Limiter

	watchCancel context.CancelFunc

	stopCh chan struct{}
	doneCh chan struct{}
}

// Configurer is the RoadRunner config plugin's interface.
type Configurer interface {
	UnmarshalKey(name string, out interface{}) error
	Has(name string) bool
}

// Logger is the RoadRunner logger plugin's interface.
type Logger interface {
	NamedLogger(name string) *zap.Logger
}

// Init builds every internal component and wires them into a
// pipeline.Coordinator.
func (p *Plugin) Init(cfg Configurer, log Logger) error {
	const op = errors.Op("errwebhook_init")

	if !cfg.Has(PluginName) {
		return errors.E(op, errors.Disabled)
	}

	c := &config.Config{}
	if err := cfg.UnmarshalKey(PluginName, c); err != nil {
		return errors.E(op, err)
	}

	c.InitDefaults()
	if err := c.Validate(); err != nil {
		return errors.E(op, err)
	}

	if !c.Enabled {
		return errors.E(op, errors.Disabled)
	}

	p.logger = log.NamedLogger(PluginName)

	ctx := context.Background()

	st, err := store.Open(ctx, c.Store)
	if err != nil {
		return errors.E(op, err)
	}
	p.st = st

	p.breadcrumbs = breadcrumb.New(c.MaxBreadcrumbs)
	p.monitor = health.New(func() int {
		p.mu.RLock()
		offline := p.offline
		p.mu.RUnlock()
		if offline == nil {
			return 0
		}
		return offline.Len()
	})

	built, err := p.buildPipeline(ctx, c)
	if err != nil {
		return errors.E(op, err)
	}

	p.mu.Lock()
	p.config = c
	p.rateLimiter = built.rateLimiter
	p.transport = built.transport
	p.offline = built.offline
	p.coordinator = built.coordinator
	p.mu.Unlock()

	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	p.logger.Info("errwebhook plugin initialized",
		zap.Bool("enabled", c.Enabled),
		zap.Bool("webhook_configured", c.WebhookURL != ""),
		zap.String("store_backend", c.Store.Backend),
		zap.Bool("offline_enabled", c.Offline.Enabled),
		zap.Bool("batch_enabled", c.Batch.Enabled))

	return nil
}

// builtPipeline collects the config-derived components UpdateConfig
// rebuilds wholesale on a hot-reload; the store, logger, monitor, and
// breadcrumb recorder are long-lived and carried across reloads
// unchanged.
type builtPipeline struct {
	rateLimiter *ratelimit.Limiter
	transport   *transport.Transport
	offline     *offlinequeue.Queue
	coordinator *pipeline.Coordinator
}

// buildPipeline constructs every config-derived component from c and
// wires them into a fresh Coordinator, the way Init's own construction
// sequence always has; UpdateConfig calls this same helper so a
// hot-reloaded config is wired identically to one supplied at startup.
func (p *Plugin) buildPipeline(ctx context.Context, c *config.Config) (*builtPipeline, error) {
	rateLimiter := ratelimit.New(c.RateLimit.MaxRequestsPerMinute, time.Minute, c.RateLimit.DuplicateErrorWindow)
	accountant := quota.New(ctx, p.st, c.Quota.StoreKey, c.Quota.DailyLimit, c.Quota.MonthlyLimit, c.Quota.BurstLimit, c.MaxPayloadSize, c.Quota.BurstWindow, p.logger)
	redactor := redact.New()
	validator := redact.NewValidator(c.MaxPayloadSize)
	cb := breaker.New(c.Breaker.FailureThreshold, c.Breaker.MinimumRequests, c.Breaker.MonitoringPeriod, c.Breaker.ResetTimeout)
	compressor := compress.New(c.Compress.Enabled, c.Compress.Threshold)

	var sender pipeline.Sender
	var tr *transport.Transport
	if c.WebhookURL != "" {
		requireHTTPS := c.RequireHTTPS != nil && *c.RequireHTTPS
		var err error
		tr, err = transport.New(transport.Config{
			WebhookURL:   c.WebhookURL,
			Timeout:      c.Timeout,
			RequireHTTPS: requireHTTPS,
			Retry: retryexec.Config{
				MaxRetries:     c.Retry.MaxRetries,
				InitialDelay:   c.Retry.InitialDelay,
				MaxDelay:       c.Retry.MaxDelay,
				Multiplier:     c.Retry.Multiplier,
				JitterFraction: c.Retry.JitterFraction,
			},
		}, compressor, p.monitor, p.logger)
		if err != nil {
			return nil, err
		}
		sender = tr
	} else {
		p.logger.Warn("no webhook_url configured, errors will be queued but not transmitted")
		sender = noopSender{}
	}

	var offlineQueue *offlinequeue.Queue
	if c.Offline.Enabled {
		offlineQueue = offlinequeue.New(ctx, p.st, c.Offline.StoreKey, c.Offline.MaxQueueSize, c.Offline.MaxAge, sender, p.logger)
		if c.Retry.DeadLetterQueue {
			offlineQueue.EnableDeadLetter(c.Offline.StoreKey + ":dead_letter")
		}
	}

	coordinator := pipeline.New(pipeline.Deps{
		Project:        c.ProjectName,
		Environment:    c.Environment,
		SessionID:      pipeline.NewSessionID(),
		RateLimiter:    rateLimiter,
		Quota:          accountant,
		Redactor:       redactor,
		Validator:      validator,
		Breaker:        cb,
		Transport:      sender,
		Offline:        offlineQueue,
		Monitor:        p.monitor,
		Breadcrumbs:    p.breadcrumbs,
		OfflineEnabled: c.Offline.Enabled,
		Logger:         p.logger,
	}, c.Batch.Enabled, c.Batch.MaxSize, c.Batch.MaxWaitTime, c.Batch.MaxBatchPayloadSize)

	return &builtPipeline{
		rateLimiter: rateLimiter,
		transport:   tr,
		offline:     offlineQueue,
		coordinator: coordinator,
	}, nil
}

// UpdateConfig implements the UpdateConfig public operation (spec.md
// §6): it validates and defaults newCfg, rebuilds every config-derived
// component (rate limiter, quota accountant, breaker, compressor,
// transport, offline queue, coordinator) the same way Init does, and
// atomically swaps them in. The store, logger, health monitor, and
// breadcrumb recorder carry over unchanged, so counters and recent
// breadcrumbs survive a reload. Captures concurrent with a reload see
// either the old or the new pipeline in full, never a mix, since the
// swap happens under a single write lock. The outgoing coordinator is
// flushed before being discarded so its in-flight batch isn't lost.
func (p *Plugin) UpdateConfig(ctx context.Context, newCfg *config.Config) error {
	const op = errors.Op("errwebhook_update_config")

	if p.st == nil {
		return errors.E(op, "plugin not initialized")
	}

	newCfg.InitDefaults()
	if err := newCfg.Validate(); err != nil {
		return errors.E(op, err)
	}

	built, err := p.buildPipeline(ctx, newCfg)
	if err != nil {
		return errors.E(op, err)
	}

	p.mu.Lock()
	oldCoordinator := p.coordinator
	oldTransport := p.transport
	p.config = newCfg
	p.rateLimiter = built.rateLimiter
	p.transport = built.transport
	p.offline = built.offline
	p.coordinator = built.coordinator
	p.mu.Unlock()

	if oldCoordinator != nil {
		oldCoordinator.Destroy(ctx)
	}
	if oldTransport != nil {
		if err := oldTransport.Close(); err != nil {
			p.logger.Warn("error closing previous transport after config reload", zap.Error(err))
		}
	}

	p.logger.Info("errwebhook config reloaded",
		zap.Bool("webhook_configured", newCfg.WebhookURL != ""),
		zap.Bool("offline_enabled", newCfg.Offline.Enabled),
		zap.Bool("batch_enabled", newCfg.Batch.Enabled))

	return nil
}

// UpdateConfigYAML parses raw into a Config and calls UpdateConfig; it
// is the shape the RPC surface and the fsnotify-driven Loader both feed
// through, so a host embedding (PHP worker, standalone CLI) never needs
// to know internal/config's Go struct layout.
func (p *Plugin) UpdateConfigYAML(ctx context.Context, raw []byte) error {
	c := &config.Config{}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return errors.E(errors.Op("errwebhook_update_config_yaml"), err)
	}
	return p.UpdateConfig(ctx, c)
}

// WatchConfigFile loads path once and then watches it for changes,
// calling UpdateConfig on every write that parses and validates
// (internal/config.Loader.Watch). It is for embeddings outside a
// RoadRunner container, where there is no Configurer hot-reload path
// already wired by the host (spec.md §6 updateConfig, SPEC_FULL.md
// §E.4). The watch's cancel function is stored on the Plugin, so
// Destroy (and therefore Stop) ends the watch.
func (p *Plugin) WatchConfigFile(ctx context.Context, path string) error {
	loader := config.NewLoader(path, p.logger)
	if _, err := loader.Load(); err != nil {
		return errors.E(errors.Op("errwebhook_watch_config"), err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.watchCancel = cancel
	p.mu.Unlock()

	return loader.Watch(watchCtx, func(c *config.Config) {
		if err := p.UpdateConfig(context.Background(), c); err != nil {
			p.logger.Warn("config hot-reload failed, keeping previous config", zap.Error(err))
		}
	})
}

// Serve starts background maintenance in a goroutine that runs until
// Stop is called, and returns at once.
func (p *Plugin) Serve() chan error {
	errCh := make(chan error, 1)

	if p.snapshotConfig() == nil {
		errCh <- errors.E("errwebhook_serve", "plugin not initialized")
		return errCh
	}

	go func() {
		defer close(p.doneCh)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go p.maintenanceRoutine(ctx)

		p.logger.Info("errwebhook plugin started")

		select {
		case <-p.stopCh:
			p.logger.Info("errwebhook plugin stopping")
		case <-ctx.Done():
			p.logger.Info("errwebhook plugin context cancelled")
		}

		p.Destroy(context.Background())

		if p.st != nil {
			if err := p.st.Close(); err != nil {
				p.logger.Error("error closing store", zap.Error(err))
			}
		}

		p.logger.Info("errwebhook plugin stopped")
	}()

	return errCh
}

// Stop signals Serve's goroutine to shut down and waits for it.
func (p *Plugin) Stop(ctx context.Context) error {
	if p.stopCh != nil {
		close(p.stopCh)
	}

	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		p.logger.Warn("plugin stop timed out")
		return ctx.Err()
	}
}

// Destroy implements the Destroy public operation (spec.md §6): it
// marks the coordinator disabled so new captures drop at the entry,
// attempts one best-effort final batch flush, closes the transport,
// and stops any running config-file watch, all without waiting for a
// full Stop(). It is safe to call more than once and is also what
// Serve's own teardown calls internally.
func (p *Plugin) Destroy(ctx context.Context) {
	p.mu.Lock()
	coordinator := p.coordinator
	tr := p.transport
	cancel := p.watchCancel
	p.watchCancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if coordinator != nil {
		coordinator.Destroy(ctx)
	}
	if tr != nil {
		if err := tr.Close(); err != nil {
			p.logger.Error("error closing transport", zap.Error(err))
		}
	}
}

// snapshotConfig returns the current Config under the read lock, or
// nil before Init has run.
func (p *Plugin) snapshotConfig() *config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// snapshot returns the current coordinator, monitor, and rate limiter
// under the read lock, for methods that need a consistent view across
// a possible concurrent UpdateConfig swap.
func (p *Plugin) snapshot() (*pipeline.Coordinator, *health.Monitor, *ratelimit.Limiter) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.coordinator, p.monitor, p.rateLimiter
}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return PluginName
}

// RPC returns the RPC interface consumed by host-framework adapters
// (spec.md §6, SPEC_FULL.md §E.3).
func (p *Plugin) RPC() interface{} {
	return NewRPC(p, p.logger)
}

// Provides binds the ErrWebhookReporter interface for other plugins.
func (p *Plugin) Provides() []*dep.Out {
	return []*dep.Out{
		dep.Bind((*ErrWebhookReporter)(nil), p.Reporter),
	}
}

// IsEnabled reports whether the SDK is currently accepting captures
// (spec.md §6 isEnabled).
func (p *Plugin) IsEnabled() bool {
	cfg := p.snapshotConfig()
	coordinator, _, _ := p.snapshot()
	return cfg != nil && cfg.Enabled && coordinator != nil && coordinator.IsEnabled()
}

// Reporter returns the ErrWebhookReporter interface.
func (p *Plugin) Reporter() ErrWebhookReporter {
	return p
}

// ErrWebhookReporter is the interface other plugins bind against to
// report errors without depending on this package's internals
// (mirrors the teacher's own SentryTransporter interface).
type ErrWebhookReporter interface {
	CaptureException(ctx context.Context, req CaptureExceptionRequest) CaptureResponse
	CaptureMessage(ctx context.Context, req CaptureMessageRequest) CaptureResponse
	Flush(ctx context.Context) error
	GetStats() StatsResponse
}

// CaptureException implements ErrWebhookReporter.
func (p *Plugin) CaptureException(ctx context.Context, req CaptureExceptionRequest) CaptureResponse {
	coordinator, _, _ := p.snapshot()
	if coordinator == nil {
		return CaptureResponse{Dropped: true, Reason: string(model.ReasonNotInitialized)}
	}
	outcome := coordinator.CaptureException(ctx, req.Message, req.ExceptionClass, req.StackTrace, req.Context)
	return CaptureResponse{Dropped: outcome.Dropped, Reason: string(outcome.Reason)}
}

// CaptureMessage implements ErrWebhookReporter.
func (p *Plugin) CaptureMessage(ctx context.Context, req CaptureMessageRequest) CaptureResponse {
	coordinator, _, _ := p.snapshot()
	if coordinator == nil {
		return CaptureResponse{Dropped: true, Reason: string(model.ReasonNotInitialized)}
	}
	outcome := coordinator.CaptureMessage(ctx, req.Message, req.Level, req.Context)
	return CaptureResponse{Dropped: outcome.Dropped, Reason: string(outcome.Reason)}
}

// Flush implements ErrWebhookReporter.
func (p *Plugin) Flush(ctx context.Context) error {
	coordinator, _, _ := p.snapshot()
	if coordinator == nil {
		return errors.E("errwebhook_flush", "plugin not initialized")
	}
	return coordinator.Flush(ctx)
}

// GetStats implements ErrWebhookReporter.
func (p *Plugin) GetStats() StatsResponse {
	_, monitor, _ := p.snapshot()
	if monitor == nil {
		return StatsResponse{}
	}
	snap := monitor.Snapshot()
	return StatsResponse{
		ErrorsReported:      snap.ErrorsReported,
		ErrorsSuppressed:    snap.ErrorsSuppressed,
		SuppressedByReason:  snap.SuppressedByReason,
		RetryAttempts:       snap.RetryAttempts,
		OfflineQueueSize:    snap.OfflineQueueSize,
		AverageResponseTime: snap.AverageResponseTime,
		Uptime:              snap.Uptime,
		MemoryUsageBytes:    snap.MemoryUsageBytes,
	}
}

// GetSDKHealth returns the scored health assessment (spec.md §6, §4.10).
func (p *Plugin) GetSDKHealth() HealthResponse {
	_, monitor, _ := p.snapshot()
	if monitor == nil {
		return HealthResponse{}
	}
	snap := monitor.Snapshot()
	return HealthResponse{
		Score:           snap.Score,
		Status:          string(snap.Status),
		Issues:          snap.Issues,
		Recommendations: snap.Recommendations,
	}
}

// AddBreadcrumb implements the AddBreadcrumb public operation (spec.md §6).
func (p *Plugin) AddBreadcrumb(req AddBreadcrumbRequest) {
	level := model.BreadcrumbLevel(req.Level)
	if level == "" {
		level = model.LevelInfo
	}
	p.breadcrumbs.Add(model.Breadcrumb{
		Message:   req.Message,
		Category:  req.Category,
		Level:     level,
		Timestamp: time.Now().UTC(),
		Data:      req.Data,
	})
}

// ClearBreadcrumbs implements the ClearBreadcrumbs public operation (spec.md §6).
func (p *Plugin) ClearBreadcrumbs() {
	p.breadcrumbs.Clear()
}

// SetUser implements the SetUser public operation (spec.md §6).
func (p *Plugin) SetUser(user map[string]string) {
	if coordinator, _, _ := p.snapshot(); coordinator != nil {
		coordinator.SetUser(user)
	}
}

// SetContext implements the SetContext public operation (spec.md §6).
func (p *Plugin) SetContext(key string, value any) {
	if coordinator, _, _ := p.snapshot(); coordinator != nil {
		coordinator.SetContext(key, value)
	}
}

// RemoveContext implements the RemoveContext public operation (spec.md §6).
func (p *Plugin) RemoveContext(key string) {
	if coordinator, _, _ := p.snapshot(); coordinator != nil {
		coordinator.RemoveContext(key)
	}
}

// FlushQueue implements the FlushQueue public operation (spec.md §4.9, §6).
func (p *Plugin) FlushQueue(ctx context.Context) error {
	coordinator, _, _ := p.snapshot()
	if coordinator == nil {
		return errors.E("errwebhook_flush_queue", "plugin not initialized")
	}
	return coordinator.FlushQueue(ctx)
}

// maintenanceRoutine sweeps the rate limiter periodically, matching the
// teacher's own cleanupRoutine ticker shape (there, cleaning up expired
// server-driven rate limits; here, pruning the local admission window).
// It re-reads the rate limiter on every tick rather than capturing it
// once, so a limiter swapped in by UpdateConfig keeps getting swept.
func (p *Plugin) maintenanceRoutine(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, limiter := p.snapshot(); limiter != nil {
				limiter.Sweep(time.Now())
			}
		}
	}
}

// noopSender is used when no webhook_url is configured: reports are
// still queued (if offline support is enabled) but never transmitted,
// mirroring the teacher's NoOpProcessor dry-run mode.
type noopSender struct{}

func (noopSender) SendReport(ctx context.Context, report model.ErrorReport) error {
	return errNoTransport
}

func (noopSender) SendBatch(ctx context.Context, envelope model.BatchEnvelope) error {
	return errNoTransport
}

var errNoTransport = errors.E("errwebhook_transport", "no webhook_url configured")
