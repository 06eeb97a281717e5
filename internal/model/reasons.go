package model

// DropReason is the accounted reason a report was dropped rather than
// delivered or queued. Every drop carries exactly one of these; the
// health monitor keeps a per-reason sub-total (spec.md §4.1, §4.10).
type DropReason string

const (
	ReasonDisabled           DropReason = "SDK disabled"
	ReasonNotInitialized     DropReason = "Not initialized"
	ReasonValidationFailed   DropReason = "Validation failed"
	ReasonFilteredByUserHook DropReason = "Filtered by user hook"
	ReasonRateLimited        DropReason = "Rate limit exceeded"
	ReasonDuplicate          DropReason = "Duplicate error"
	ReasonQuotaDaily         DropReason = "Daily quota exceeded"
	ReasonQuotaMonthly       DropReason = "Monthly quota exceeded"
	ReasonQuotaBurst         DropReason = "Burst quota exceeded"
	ReasonQuotaPayloadSize   DropReason = "Payload too large for quota"
	ReasonCircuitOpenNoQueue DropReason = "Circuit open, offline support disabled"
)

// Outcome is the terminal fate of a captured report: exactly one of
// delivered, queued, or dropped (spec.md §8 invariants).
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeQueued    Outcome = "queued"
	OutcomeDropped   Outcome = "dropped"
)
