package redact

import (
	"encoding/json"
	"fmt"

	"github.com/relayforge/errwebhook/internal/model"
)

// ValidationError is a hard failure: the report must be dropped.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validator checks required fields and size, and surfaces
// sensitive-pattern matches as warnings rather than failures (spec.md
// §4.4).
type Validator struct {
	maxPayloadSize int
}

func NewValidator(maxPayloadSize int) *Validator {
	return &Validator{maxPayloadSize: maxPayloadSize}
}

// Validate runs the required-field checks (message, exceptionClass,
// project, timestamp) and then the serialized-size check, returning the
// first failure. It also scans the not-yet-redacted payload for
// sensitive patterns and returns those as warnings when validation
// passes.
func (v *Validator) Validate(report *model.ErrorReport) (warnings []Warning, err error) {
	if report.Message == "" {
		return nil, &ValidationError{Reason: "message is required"}
	}
	if report.ExceptionClass == "" {
		return nil, &ValidationError{Reason: "exceptionClass is required"}
	}
	if report.Project == "" {
		return nil, &ValidationError{Reason: "project is required"}
	}
	if report.Timestamp.IsZero() {
		return nil, &ValidationError{Reason: "timestamp is required"}
	}

	raw, marshalErr := json.Marshal(report)
	if marshalErr != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("report is not serializable: %v", marshalErr)}
	}
	if len(raw) > v.maxPayloadSize {
		return nil, &ValidationError{Reason: "serialized size exceeds maxPayloadSize"}
	}

	warnings = scanForWarnings(string(raw))
	return warnings, nil
}

func scanForWarnings(serialized string) []Warning {
	var warnings []Warning
	for _, p := range Table {
		if p.Matcher.MatchString(serialized) {
			warnings = append(warnings, Warning{Kind: p.Kind, Path: "<serialized>"})
		}
	}
	return warnings
}
