// Package breadcrumb implements the out-of-scope breadcrumb recorder
// collaborator spec.md §1 specifies only through the interface the core
// consumes: a bounded ring of recent Breadcrumb values, snapshotted
// oldest-to-newest at format time. There is no teacher equivalent —
// the original plugin forwards an opaque PHP-built payload with no
// crumb concept — so this is new, stdlib-only: a bounded ring buffer
// has nothing for a third-party library to add.
package breadcrumb

import (
	"sync"

	"github.com/relayforge/errwebhook/internal/model"
)

// Recorder is a bounded, oldest-first ring of breadcrumbs.
type Recorder struct {
	mu    sync.Mutex
	max   int
	items []model.Breadcrumb
}

// New creates a Recorder holding at most max breadcrumbs.
func New(max int) *Recorder {
	if max <= 0 {
		max = 50
	}
	return &Recorder{max: max}
}

// Add appends a breadcrumb, evicting the oldest once the ring is full.
func (r *Recorder) Add(b model.Breadcrumb) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, b)
	if len(r.items) > r.max {
		r.items = r.items[len(r.items)-r.max:]
	}
}

// Snapshot returns a copy of the current breadcrumbs, oldest first
// (spec.md §3, Breadcrumb).
func (r *Recorder) Snapshot() []model.Breadcrumb {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Breadcrumb(nil), r.items...)
}

// Clear empties the ring, for the ClearBreadcrumbs public operation
// (spec.md §6).
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
