// Supplemented feature (SPEC_FULL.md §E.2): Sentry-style server
// rate-limit headers. Grounded directly on the teacher's rate_limiter.go
// RateLimiter, generalized from Sentry's envelope categories to a
// single "all" category (errwebhook POSTs one kind of body, a report
// or a batch, so there is nothing finer than "all" to key by) and kept
// as a server-driven gate independent of and downstream from
// internal/ratelimit's local pre-flight admission.
package transport

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// serverLimiter tracks a server-imposed "don't send until" deadline,
// parsed from X-Sentry-Rate-Limits-style headers or a plain
// Retry-After.
type serverLimiter struct {
	mu            sync.RWMutex
	disabledUntil time.Time
	logger        *zap.Logger
}

func newServerLimiter(logger *zap.Logger) *serverLimiter {
	return &serverLimiter{logger: logger}
}

// Limited reports whether sends are currently paused by a prior server
// response.
func (s *serverLimiter) Limited(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disabledUntil.After(now)
}

// HandleResponseHeaders inspects a response for rate-limit hints and
// updates disabledUntil. Mirrors rate_limiter.go's
// HandleRateLimitHeaders/parseRateLimitHeader/parseRetryAfterHeader,
// collapsed to a single category.
func (s *serverLimiter) HandleResponseHeaders(headers http.Header, now time.Time) {
	if v := headers.Get("X-Sentry-Rate-Limits"); v != "" {
		s.applyRateLimitsHeader(v, now)
		return
	}
	if v := headers.Get("Retry-After"); v != "" {
		s.applyRetryAfterHeader(v, now)
	}
}

func (s *serverLimiter) applyRateLimitsHeader(header string, now time.Time) {
	// Format: "retry_after:categories:scope:reason_code:namespaces";
	// we only need the first entry's retry_after since there is one
	// category.
	entries := strings.Split(header, ",")
	if len(entries) == 0 {
		return
	}
	parts := strings.Split(strings.TrimSpace(entries[0]), ":")
	if len(parts) == 0 {
		return
	}

	seconds, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		s.logger.Warn("failed to parse retry_after from rate limit header", zap.String("value", parts[0]))
		seconds = 60
	}
	s.set(now.Add(time.Duration(seconds) * time.Second))
}

func (s *serverLimiter) applyRetryAfterHeader(header string, now time.Time) {
	header = strings.TrimSpace(header)

	if seconds, err := strconv.Atoi(header); err == nil {
		s.set(now.Add(time.Duration(seconds) * time.Second))
		return
	}

	if at, err := time.Parse(time.RFC1123, header); err == nil && at.After(now) {
		s.set(at)
		return
	}

	s.set(now.Add(60 * time.Second))
}

func (s *serverLimiter) set(until time.Time) {
	s.mu.Lock()
	s.disabledUntil = until
	s.mu.Unlock()
	s.logger.Warn("transport paused by server rate limit", zap.Time("disabled_until", until))
}

// CleanupExpired clears a past deadline, mirroring rate_limiter.go's
// CleanupExpired. Not required for correctness — Limited() already
// checks freshness — but keeps the zero value tidy for status reporting.
func (s *serverLimiter) CleanupExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.disabledUntil.After(now) {
		s.disabledUntil = time.Time{}
	}
}
