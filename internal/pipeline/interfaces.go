// Package pipeline implements the Coordinator described in spec.md
// §4.1: the eight ordered decision stages every captured error
// traverses, plus the collaborator interfaces the core consumes for
// everything spec.md §1 treats as external (breadcrumb recorder,
// network-status signal). Grounded on plugin.go's Init/Serve/Stop
// lifecycle and SendEvent/SendBatch surface, generalized from "forward
// one DSN" into the full stage ordering.
package pipeline

import "github.com/relayforge/errwebhook/internal/model"

// BreadcrumbReader is the out-of-scope breadcrumb recorder collaborator
// (spec.md §1): the Coordinator only ever reads a snapshot from it at
// format time, oldest-to-newest.
type BreadcrumbReader interface {
	Snapshot() []model.Breadcrumb
}

// NetworkSignal is the out-of-scope network-status signal collaborator
// (spec.md §6): two edges plus a synchronous predicate.
type NetworkSignal interface {
	IsOnline() bool
	OnOnline(func())
	OnOffline(func())
}

// BeforeSendHook is the user filter hook of spec.md §4.1 stage 4 and
// §9's "Replacing the dynamic hook surface": a plain synchronous
// transformer from report to report-or-drop, not a pattern requiring
// runtime type flexibility. A nil return drops the report.
type BeforeSendHook func(*model.ErrorReport) *model.ErrorReport
