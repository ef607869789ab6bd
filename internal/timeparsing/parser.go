// Package timeparsing resolves the time expressions accepted by flags like
// --since: compact durations (-2w), absolute dates, and natural language.
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// compactDurationRe matches [+-]?(\d+)(h|d|w|m|y), e.g. -2w or +6h.
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// IsCompactDuration reports whether s is in compact duration form.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

// ParseCompactDuration applies a compact duration to the reference time.
// Units are h (hours), d (days), w (weeks), m (months), and y (years); a
// leading sign selects the direction, defaulting to the future.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}

	switch matches[3] {
	case "h":
		return now.Add(time.Duration(amount) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, amount), nil
	case "w":
		return now.AddDate(0, 0, amount*7), nil
	case "m":
		return now.AddDate(0, amount, 0), nil
	default: // "y", guaranteed by the pattern
		return now.AddDate(amount, 0, 0), nil
	}
}
