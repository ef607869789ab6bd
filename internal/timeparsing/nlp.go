package timeparsing

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
)

// ParseNaturalLanguage resolves expressions like "yesterday", "next monday",
// or "2 weeks ago" relative to the given reference time.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	r, err := when.EN.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("not a recognized time expression: %q", s)
	}
	return r.Time, nil
}

// ParseRelativeTime resolves a time expression by trying each supported form
// in order: compact duration, RFC3339, date-only, then natural language.
// Exact forms run first so numeric dates never reach the fuzzy parser.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return ParseNaturalLanguage(s, now)
}
