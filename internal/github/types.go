package github

import (
	"fmt"
	"time"
)

// API constants.
const (
	DefaultAPIEndpoint     = "https://api.github.com"
	DefaultGraphQLEndpoint = "https://api.github.com/graphql"
	DefaultTimeout         = 20 * time.Second
	// DefaultMaxAttempts bounds a single logical call: one initial attempt
	// plus retries for rate-limit and server-error responses.
	DefaultMaxAttempts = 5
	// RetryBaseDelay is the first backoff interval; it doubles per attempt
	// up to RetryMaxDelay, with jitter.
	RetryBaseDelay = 1 * time.Second
	RetryMaxDelay  = 16 * time.Second
	// RetryAfterMax clamps server-provided Retry-After hints.
	RetryAfterMax = 60 * time.Second
	MaxPageSize   = 100
	MaxPages      = 1000
	// DefaultLabelColor is used when creating labels that carry no color.
	DefaultLabelColor = "ededed"
)

// Issue represents a GitHub issue as returned by the REST API. Within one
// reconciliation pass issues are read-only snapshot data.
type Issue struct {
	ID          int64      `json:"id,omitempty"`
	Number      int        `json:"number"`
	NodeID      string     `json:"node_id,omitempty"`
	Title       string     `json:"title"`
	Body        string     `json:"body,omitempty"`
	State       string     `json:"state,omitempty"`
	Labels      []Label    `json:"labels,omitempty"`
	HTMLURL     string     `json:"html_url,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	PullRequest *PullRef   `json:"pull_request,omitempty"`
}

// Label represents a GitHub label.
type Label struct {
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// PullRef marks an issue as actually being a pull request. The issues
// endpoint returns both; reconciliation only ever deals with real issues.
type PullRef struct {
	URL string `json:"url,omitempty"`
}

// LabelNames extracts label names from an issue.
func LabelNames(issue *Issue) []string {
	names := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		names = append(names, l.Name)
	}
	return names
}

// IssuesPage is one page of an issue listing with conditional-request
// metadata. NotModified is set when the upstream answered 304 to an
// If-None-Match precondition; Issues is empty in that case.
type IssuesPage struct {
	Issues      []Issue
	ETag        string
	HasNext     bool
	NotModified bool
}

// ProjectRef identifies a Projects-v2 board in a listing.
type ProjectRef struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// StatusOption is one option of a project's Status single-select field.
type StatusOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Project is a resolved Projects-v2 board. StatusFieldID and StatusOptions
// are empty when the status field could not be read; membership work still
// proceeds and status assignment is skipped.
type Project struct {
	ID            string
	Number        int
	Title         string
	URL           string
	StatusFieldID string
	StatusOptions []StatusOption
}

// OptionID looks up a status option id by exact name.
func (p *Project) OptionID(name string) (string, bool) {
	for _, opt := range p.StatusOptions {
		if opt.Name == name {
			return opt.ID, true
		}
	}
	return "", false
}

// OwnerInfo carries the GraphQL node ids needed to resolve or create a
// project: the repository owner and the authenticated viewer (the fallback
// creation target when the owner rejects project creation).
type OwnerInfo struct {
	OwnerID     string
	OwnerType   string
	OwnerLogin  string
	ViewerID    string
	ViewerLogin string
}

// ProjectURL computes the board URL from the owner type, login, and project
// number. Organization and user projects use different path prefixes.
func ProjectURL(ownerType, login string, number int) string {
	switch ownerType {
	case "User":
		return fmt.Sprintf("https://github.com/users/%s/projects/%d", login, number)
	default:
		return fmt.Sprintf("https://github.com/orgs/%s/projects/%d", login, number)
	}
}
