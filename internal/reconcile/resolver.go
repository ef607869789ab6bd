// Package reconcile drives desired issue specs toward the live state of a
// repository and its project board: resolve or create each issue, top up
// labels, attach board items, and set the initial status on fresh items.
package reconcile

import (
	"strings"

	"github.com/boardsync/boardsync/internal/github"
	"github.com/boardsync/boardsync/internal/slug"
)

// Resolve finds the remote issue a desired title refers to, or nil when the
// issue does not exist yet. Exact title matches (whitespace-trimmed,
// case-sensitive) take precedence over slug matches; within the winning set
// the earliest-created issue is selected, so reruns keep converging onto the
// same issue no matter how many near-duplicates exist.
func Resolve(title string, snapshot []github.Issue) *github.Issue {
	want := strings.TrimSpace(title)
	if want == "" {
		return nil
	}
	wantSlug := slug.Make(want)

	var exact, slugged []*github.Issue
	for i := range snapshot {
		remote := strings.TrimSpace(snapshot[i].Title)
		if remote == want {
			exact = append(exact, &snapshot[i])
			continue
		}
		if wantSlug != "" && slug.Make(remote) == wantSlug {
			slugged = append(slugged, &snapshot[i])
		}
	}

	if len(exact) > 0 {
		return oldest(exact)
	}
	return oldest(slugged)
}

// oldest picks the candidate with the smallest creation time. Candidates
// without a creation time never win over dated ones; among equals the first
// listed wins.
func oldest(candidates []*github.Issue) *github.Issue {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.CreatedAt == nil {
			continue
		}
		if best.CreatedAt == nil || c.CreatedAt.Before(*best.CreatedAt) {
			best = c
		}
	}
	return best
}
