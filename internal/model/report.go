// Package model holds the data types that flow through the ingestion
// pipeline: the error report itself, the breadcrumbs attached to it, and
// the envelopes the later pipeline stages wrap it in.
package model

import "time"

// ErrorReport is the unit that flows through the pipeline, from capture
// to delivery. Once it leaves the format stage, only the Redactor may
// mutate Message, StackTrace, Context, User, or Breadcrumbs — every
// later stage treats the rest of the report as immutable.
type ErrorReport struct {
	Message        string            `json:"message"`
	ExceptionClass string            `json:"exceptionClass"`
	StackTrace     string            `json:"stackTrace,omitempty"`
	File           string            `json:"file"`
	Line           int               `json:"line"`
	Project        string            `json:"project"`
	Environment    string            `json:"environment"`
	Timestamp      time.Time         `json:"timestamp"`
	SessionID      string            `json:"sessionId"`

	User        map[string]string `json:"user,omitempty"`
	Context     map[string]any    `json:"context,omitempty"`
	Breadcrumbs []Breadcrumb      `json:"breadcrumbs,omitempty"`
	Browser     *Environment      `json:"browser,omitempty"`
	Request     *RequestInfo      `json:"request,omitempty"`
	CommitHash  string            `json:"commitHash,omitempty"`
	Version     string            `json:"version,omitempty"`
	CustomData  map[string]any    `json:"customData,omitempty"`

	// Fingerprint is computed once by the pipeline and carried alongside
	// the report so downstream stages (rate limiter, quota) don't
	// recompute it.
	Fingerprint string `json:"-"`
}

// BreadcrumbLevel is the severity of a Breadcrumb.
type BreadcrumbLevel string

const (
	LevelDebug   BreadcrumbLevel = "debug"
	LevelInfo    BreadcrumbLevel = "info"
	LevelWarning BreadcrumbLevel = "warning"
	LevelError   BreadcrumbLevel = "error"
)

// Breadcrumb is a log crumb captured out-of-band by the external
// breadcrumb recorder and snapshotted into an ErrorReport at format
// time, oldest first.
type Breadcrumb struct {
	Message   string          `json:"message"`
	Category  string          `json:"category"`
	Level     BreadcrumbLevel `json:"level"`
	Timestamp time.Time       `json:"timestamp"`
	Data      map[string]any  `json:"data,omitempty"`
}

// Environment is a snapshot of the host environment (browser UA,
// viewport, OS, ...). The core pipeline treats it as an opaque blob
// supplied by the out-of-scope environment-metadata collaborator.
type Environment struct {
	UserAgent string            `json:"userAgent,omitempty"`
	Viewport  string            `json:"viewport,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// RequestInfo is a snapshot of the request the error occurred during.
type RequestInfo struct {
	URL       string `json:"url,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
}
