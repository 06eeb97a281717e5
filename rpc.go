package errwebhook

import (
	"context"

	"go.uber.org/zap"
)

// RPC exposes the pipeline's public operations to host-framework
// adapters over RoadRunner's net/rpc-style transport (spec.md §6,
// SPEC_FULL.md §E.3). Grounded on rpc.go's RPC struct and method shape.
type RPC struct {
	plugin *Plugin
	logger *zap.Logger
}

// NewRPC creates an RPC instance bound to plugin.
func NewRPC(plugin *Plugin, logger *zap.Logger) *RPC {
	return &RPC{plugin: plugin, logger: logger}
}

// CaptureException handles the captureException RPC call.
func (r *RPC) CaptureException(req CaptureExceptionRequest, result *CaptureResponse) error {
	r.logger.Debug("received captureException via RPC", zap.String("exceptionClass", req.ExceptionClass))
	*result = r.plugin.CaptureException(context.Background(), req)
	return nil
}

// CaptureMessage handles the captureMessage RPC call.
func (r *RPC) CaptureMessage(req CaptureMessageRequest, result *CaptureResponse) error {
	r.logger.Debug("received captureMessage via RPC", zap.String("level", req.Level))
	*result = r.plugin.CaptureMessage(context.Background(), req)
	return nil
}

// AddBreadcrumb handles the addBreadcrumb RPC call.
func (r *RPC) AddBreadcrumb(req AddBreadcrumbRequest, _ *struct{}) error {
	r.plugin.AddBreadcrumb(req)
	return nil
}

// ClearBreadcrumbs handles the clearBreadcrumbs RPC call.
func (r *RPC) ClearBreadcrumbs(_ struct{}, _ *struct{}) error {
	r.plugin.ClearBreadcrumbs()
	return nil
}

// SetUser handles the setUser RPC call.
func (r *RPC) SetUser(req SetUserRequest, _ *struct{}) error {
	r.plugin.SetUser(req.User)
	return nil
}

// SetContext handles the setContext RPC call.
func (r *RPC) SetContext(req SetContextRequest, _ *struct{}) error {
	r.plugin.SetContext(req.Key, req.Value)
	return nil
}

// RemoveContext handles the removeContext RPC call.
func (r *RPC) RemoveContext(req RemoveContextRequest, _ *struct{}) error {
	r.plugin.RemoveContext(req.Key)
	return nil
}

// Flush handles the flush RPC call.
func (r *RPC) Flush(_ struct{}, _ *struct{}) error {
	return r.plugin.Flush(context.Background())
}

// FlushQueue handles the flushQueue RPC call.
func (r *RPC) FlushQueue(_ struct{}, _ *struct{}) error {
	return r.plugin.FlushQueue(context.Background())
}

// GetStats handles the getStats RPC call.
func (r *RPC) GetStats(_ struct{}, result *StatsResponse) error {
	*result = r.plugin.GetStats()
	return nil
}

// GetSDKHealth handles the getSDKHealth RPC call.
func (r *RPC) GetSDKHealth(_ struct{}, result *HealthResponse) error {
	*result = r.plugin.GetSDKHealth()
	return nil
}

// IsEnabled handles the isEnabled RPC call.
func (r *RPC) IsEnabled(_ struct{}, result *bool) error {
	*result = r.plugin.IsEnabled()
	return nil
}

// UpdateConfig handles the updateConfig RPC call (spec.md §6): req.YAML
// is parsed, defaulted, and validated, and every config-derived
// component is rebuilt and swapped in atomically.
func (r *RPC) UpdateConfig(req UpdateConfigRequest, _ *struct{}) error {
	r.logger.Debug("received updateConfig via RPC")
	return r.plugin.UpdateConfigYAML(context.Background(), req.YAML)
}

// Destroy handles the destroy RPC call (spec.md §6): it disables the
// SDK immediately so subsequent captures drop at the entry, attempts a
// final best-effort flush, and releases the transport, without tearing
// down the whole plugin the way Stop does.
func (r *RPC) Destroy(_ struct{}, _ *struct{}) error {
	r.logger.Info("received destroy via RPC")
	r.plugin.Destroy(context.Background())
	return nil
}
