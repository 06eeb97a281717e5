package pipeline

import (
	"regexp"
	"strconv"
)

// stackFramePatterns matches the first stack frame in common
// JS/Node/V8-style traces, in the order spec.md §4.1 stage 1 lists:
// "at ... (file:line:col)", "file@file:line:col", "file:line:col".
// Quantifiers are bounded to avoid catastrophic backtracking on an
// attacker- or bug-controlled stack string, matching the same
// constraint spec.md §9 imposes on the redactor's pattern table.
var stackFramePatterns = []*regexp.Regexp{
	regexp.MustCompile(`at\s+.{0,200}\(([^():]{1,500}):(\d{1,9}):(\d{1,9})\)`),
	regexp.MustCompile(`([^@():\s]{1,500})@([^():\s]{1,500}):(\d{1,9}):(\d{1,9})`),
	regexp.MustCompile(`([^():\s]{1,500}):(\d{1,9}):(\d{1,9})`),
}

// extractFileLine scans stackTrace for the first frame matching one of
// stackFramePatterns and returns its file and line. If none match, it
// returns ("unknown", 0) per spec.md §4.1 stage 1.
func extractFileLine(stackTrace string) (file string, line int) {
	for _, pattern := range stackFramePatterns {
		m := pattern.FindStringSubmatch(stackTrace)
		if m == nil {
			continue
		}
		switch len(m) {
		case 4: // "at ... (file:line:col)" or plain "file:line:col" — both capture (file, line, col)
			return m[1], atoiSafe(m[2])
		case 5: // "file@file:line:col" captures (ident, file, line, col)
			return m[2], atoiSafe(m[3])
		}
	}
	return "unknown", 0
}

// atoiSafe parses a digit run already validated by stackFramePatterns;
// a parse failure (e.g. overflow on a pathological line number) falls
// back to 0 rather than propagating an error through the format stage.
func atoiSafe(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
