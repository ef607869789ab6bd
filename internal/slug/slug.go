// Package slug normalizes issue titles for loose identity matching.
package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Make lowercases the title, collapses every run of non-alphanumeric
// characters to a single hyphen, and strips leading/trailing hyphens.
// Two titles with equal slugs are considered the same issue unless an
// exact title match says otherwise.
func Make(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
