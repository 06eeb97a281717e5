package redact

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/relayforge/errwebhook/internal/model"
)

// MaxDepth bounds object traversal depth; a suggested value per spec.md §9.
const MaxDepth = 10

// Warning records a sensitive-pattern match surfaced to the health
// monitor. Pre-redaction warnings are kept even though the value itself
// gets redacted (spec.md §4.4).
type Warning struct {
	Kind Kind
	Path string
}

// Redactor applies the sensitive-pattern table to message, stack trace,
// context, user, and breadcrumb data, and wholesale-replaces any value
// whose key name matches SensitiveKeyNames.
type Redactor struct{}

// New creates a Redactor. It holds no state — the pattern table is
// package-level and read-only — but is a type so callers have something
// to hang future options on without changing every call site.
func New() *Redactor { return &Redactor{} }

// Redact mutates report in place: message, stack trace, context, user,
// and breadcrumb data are scrubbed. It returns the warnings detected
// before redaction, for the validator to surface.
func (r *Redactor) Redact(report *model.ErrorReport) []Warning {
	var warnings []Warning

	report.Message, warnings = r.scrubString(report.Message, "message", warnings)
	report.StackTrace, warnings = r.scrubString(report.StackTrace, "stackTrace", warnings)

	if report.Context != nil {
		visited := make(map[uintptr]bool)
		report.Context = r.scrubMap(report.Context, "context", 0, visited, &warnings).(map[string]any)
	}

	if report.User != nil {
		scrubbed := make(map[string]string, len(report.User))
		for k, v := range report.User {
			if keyIsSensitive(k) {
				scrubbed[k] = Redacted
				continue
			}
			var ws []Warning
			scrubbed[k], ws = r.scrubString(v, "user."+k, nil)
			warnings = append(warnings, ws...)
		}
		report.User = scrubbed
	}

	for i := range report.Breadcrumbs {
		if report.Breadcrumbs[i].Data == nil {
			continue
		}
		visited := make(map[uintptr]bool)
		path := "breadcrumbs[" + strconv.Itoa(i) + "].data"
		report.Breadcrumbs[i].Data = r.scrubMap(report.Breadcrumbs[i].Data, path, 0, visited, &warnings).(map[string]any)
	}

	return warnings
}

func keyIsSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, name := range SensitiveKeyNames {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

func (r *Redactor) scrubString(s, path string, warnings []Warning) (string, []Warning) {
	if s == "" {
		return s, warnings
	}
	for _, p := range Table {
		if p.Matcher.MatchString(s) {
			warnings = append(warnings, Warning{Kind: p.Kind, Path: path})
			s = p.Matcher.ReplaceAllString(s, Redacted)
		}
	}
	return s, warnings
}

// scrubMap/scrubSlice traverse arbitrary JSON-ish values (map[string]any,
// []any, string, or anything else passed through unchanged), guarding
// against cycles and excessive depth per spec.md §4.4 and §9. Go data
// coming from this pipeline's own JSON decoding can't actually contain
// cycles, but callers may hand the redactor values built by hand (e.g.
// test fixtures, or a future non-JSON context source), so the guard is
// real rather than decorative.
func (r *Redactor) scrubValue(v any, path string, depth int, visited map[uintptr]bool, warnings *[]Warning) any {
	if depth > MaxDepth {
		return "[Max Depth]"
	}

	switch val := v.(type) {
	case map[string]any:
		return r.scrubMap(val, path, depth, visited, warnings)
	case []any:
		return r.scrubSlice(val, path, depth, visited, warnings)
	case string:
		scrubbed, ws := r.scrubString(val, path, nil)
		*warnings = append(*warnings, ws...)
		return scrubbed
	default:
		return v
	}
}

func (r *Redactor) scrubMap(m map[string]any, path string, depth int, visited map[uintptr]bool, warnings *[]Warning) any {
	ptr := reflect.ValueOf(m).Pointer()
	if visited[ptr] {
		return "[Circular]"
	}
	visited[ptr] = true
	defer delete(visited, ptr)

	out := make(map[string]any, len(m))
	for k, v := range m {
		childPath := path + "." + k
		if keyIsSensitive(k) {
			out[k] = Redacted
			continue
		}
		out[k] = r.scrubValue(v, childPath, depth+1, visited, warnings)
	}
	return out
}

func (r *Redactor) scrubSlice(s []any, path string, depth int, visited map[uintptr]bool, warnings *[]Warning) any {
	if len(s) > 0 {
		ptr := reflect.ValueOf(s).Pointer()
		if visited[ptr] {
			return "[Circular]"
		}
		visited[ptr] = true
		defer delete(visited, ptr)
	}

	out := make([]any, len(s))
	for i, v := range s {
		out[i] = r.scrubValue(v, path+"["+strconv.Itoa(i)+"]", depth+1, visited, warnings)
	}
	return out
}

