package redact

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/errwebhook/internal/model"
)

func TestRedactContextPasswordAndEmail(t *testing.T) {
	report := &model.ErrorReport{
		Message:   "login failed",
		Timestamp: time.Now(),
		Context: map[string]any{
			"password": "hunter2",
			"email":    "a@b.c",
		},
	}

	warnings := New().Redact(report)

	assert.Equal(t, Redacted, report.Context["password"])
	assert.NotContains(t, report.Context["email"], "a@b.c")

	var found bool
	for _, w := range warnings {
		if w.Kind == KindEmail {
			found = true
		}
	}
	assert.True(t, found, "email warning must be surfaced")

	raw := dumpStrings(report.Context)
	assert.NotContains(t, raw, "hunter2")
}

func TestRedactKeyNameWholesaleReplacementRegardlessOfType(t *testing.T) {
	report := &model.ErrorReport{
		Message: "ok",
		Context: map[string]any{
			"apiToken": 123456,
			"secret":   []any{"a", "b"},
		},
	}

	New().Redact(report)

	assert.Equal(t, Redacted, report.Context["apiToken"])
	assert.Equal(t, Redacted, report.Context["secret"])
}

func TestRedactIsFixpoint(t *testing.T) {
	report := &model.ErrorReport{
		Message: "card 4111-1111-1111-1111 leaked",
		Context: map[string]any{
			"password": "hunter2",
		},
	}

	r := New()
	r.Redact(report)
	firstMessage := report.Message
	firstContext := report.Context["password"]

	warnings := r.Redact(report)
	assert.Equal(t, firstMessage, report.Message)
	assert.Equal(t, firstContext, report.Context["password"])
	assert.Empty(t, warnings, "re-redacting an already-redacted report finds nothing new")
}

func TestRedactCycleEmitsSentinel(t *testing.T) {
	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	report := &model.ErrorReport{
		Message: "ok",
		Context: cyclic,
	}

	require.NotPanics(t, func() {
		New().Redact(report)
	})
	assert.Equal(t, "[Circular]", report.Context["self"])
}

func TestRedactMaxDepthSentinel(t *testing.T) {
	inner := map[string]any{"leaf": "value"}
	var current any = inner
	for i := 0; i < MaxDepth+5; i++ {
		current = map[string]any{"nested": current}
	}

	report := &model.ErrorReport{
		Message: "ok",
		Context: current.(map[string]any),
	}

	require.NotPanics(t, func() {
		New().Redact(report)
	})
}

func dumpStrings(v any) string {
	var sb strings.Builder
	switch val := v.(type) {
	case map[string]any:
		for _, vv := range val {
			sb.WriteString(dumpStrings(vv))
		}
	case []any:
		for _, vv := range val {
			sb.WriteString(dumpStrings(vv))
		}
	case string:
		sb.WriteString(val)
	}
	return sb.String()
}
