// Package redact implements the sensitive-pattern pass and the
// object-traversal redactor described in spec.md §4.4. Detection (the
// validator's warning pass) and redaction (the pipeline's replacement
// pass) share the same ordered pattern table, as spec.md §9 recommends.
package redact

import "regexp"

// Kind names a sensitive-pattern category.
type Kind string

const (
	KindCreditCard   Kind = "credit_card"
	KindSSN          Kind = "ssn"
	KindEmail        Kind = "email"
	KindPhone        Kind = "phone"
	KindIPv4         Kind = "ipv4"
	KindJWT          Kind = "jwt"
	KindAPIKey       Kind = "api_key"
	KindPassword     Kind = "password"
	KindAccessToken  Kind = "access_token"
)

// Pattern pairs a sensitive-data kind with its matcher. Quantifiers are
// bounded ({1,N} rather than unbounded +/*) to avoid catastrophic
// backtracking on attacker-controlled strings, per spec.md §9.
type Pattern struct {
	Kind    Kind
	Matcher *regexp.Regexp
}

// Table is the ordered list of sensitive patterns applied to every
// string value the redactor visits. Order matters only in that an
// earlier match's replacement can hide a later pattern from matching
// inside the same substring — the table is ordered specific-before-generic
// where that matters (credit card before a plain digit-phone pattern).
var Table = []Pattern{
	{KindCreditCard, regexp.MustCompile(`\b\d{4}[-\s]\d{4}[-\s]\d{4}[-\s]\d{4}\b`)},
	{KindSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{KindEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+\-]{1,64}@[A-Za-z0-9.\-]{1,255}\.[A-Za-z]{1,24}\b`)},
	{KindPhone, regexp.MustCompile(`\b\d{3}[-.]\d{3}[-.]\d{4}\b`)},
	{KindIPv4, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{KindJWT, regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{1,500}\.[A-Za-z0-9_-]{1,500}\.[A-Za-z0-9_-]{1,500}\b`)},
	{KindAPIKey, regexp.MustCompile(`(?i)api[-_]?key["'\s:=]{1,5}[A-Za-z0-9_\-]{20,128}`)},
	{KindPassword, regexp.MustCompile(`(?i)password["'\s]{0,5}[:=]["'\s]{0,5}"[^"]{1,256}"`)},
	{KindAccessToken, regexp.MustCompile(`(?i)access[-_]?token["'\s:=]{1,5}[A-Za-z0-9_\-]{20,128}`)},
}

// SensitiveKeyNames are substrings (case-insensitive) that, when found
// in an object key, cause the entire value to be replaced regardless of
// its type (spec.md §4.1 stage 3).
var SensitiveKeyNames = []string{"password", "token", "secret", "key", "auth", "credential"}

const Redacted = "[REDACTED]"
