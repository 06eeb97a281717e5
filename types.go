package errwebhook

import "time"

// CaptureExceptionRequest is the RPC/CLI-facing shape of a thrown-error
// capture (spec.md §6 captureException).
type CaptureExceptionRequest struct {
	Message        string         `json:"message"`
	ExceptionClass string         `json:"exceptionClass"`
	StackTrace     string         `json:"stackTrace"`
	Context        map[string]any `json:"context,omitempty"`
}

// CaptureMessageRequest is the RPC/CLI-facing shape of an explicit
// message capture (spec.md §6 captureMessage).
type CaptureMessageRequest struct {
	Message string         `json:"message"`
	Level   string         `json:"level"`
	Context map[string]any `json:"context,omitempty"`
}

// CaptureResponse reports whether a capture was admitted into the
// pipeline or dropped, and why.
type CaptureResponse struct {
	Dropped bool   `json:"dropped"`
	Reason  string `json:"reason,omitempty"`
}

// SetUserRequest carries the SetUser public operation's argument over RPC.
type SetUserRequest struct {
	User map[string]string `json:"user"`
}

// SetContextRequest carries the SetContext public operation's arguments over RPC.
type SetContextRequest struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// RemoveContextRequest carries the RemoveContext public operation's argument over RPC.
type RemoveContextRequest struct {
	Key string `json:"key"`
}

// AddBreadcrumbRequest carries the AddBreadcrumb public operation's argument over RPC.
type AddBreadcrumbRequest struct {
	Message  string         `json:"message"`
	Category string         `json:"category"`
	Level    string         `json:"level"`
	Data     map[string]any `json:"data,omitempty"`
}

// UpdateConfigRequest carries the UpdateConfig public operation's
// argument over RPC (spec.md §6 updateConfig): a raw YAML document in
// the same shape internal/config.Config's yaml tags expect, so an RPC
// caller never needs to know that struct's Go layout.
type UpdateConfigRequest struct {
	YAML []byte `json:"yaml"`
}

// StatsResponse is the RPC/CLI-facing shape of GetStats (spec.md §6, §4.10).
type StatsResponse struct {
	ErrorsReported      int64            `json:"errorsReported"`
	ErrorsSuppressed    int64            `json:"errorsSuppressed"`
	SuppressedByReason  map[string]int64 `json:"suppressedByReason"`
	RetryAttempts       int64            `json:"retryAttempts"`
	OfflineQueueSize    int              `json:"offlineQueueSize"`
	AverageResponseTime time.Duration    `json:"averageResponseTime"`
	Uptime              time.Duration    `json:"uptime"`
	MemoryUsageBytes    uint64           `json:"memoryUsageBytes"`
}

// HealthResponse is the RPC/CLI-facing shape of GetSDKHealth (spec.md §6, §4.10).
type HealthResponse struct {
	Score           int      `json:"score"`
	Status          string   `json:"status"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}
