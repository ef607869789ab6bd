// Package plan defines the desired-state issue model that gets reconciled
// against a remote repository, along with validation and body rendering.
package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Epic identifiers accepted in place of a literal epic label. Each maps to
// a fixed label applied before reconciliation.
var epicLabels = map[string]string{
	"E1": "epic/E1-Repo-Hygiene",
	"E2": "epic/E2-Testing",
	"E3": "epic/E3-Postgres",
	"E4": "epic/E4-Runtime",
	"E5": "epic/E5-Observability-Security",
	"E6": "epic/E6-Models-Docs",
}

// Estimates accepted in the estimate field.
var validEstimates = map[string]bool{"S": true, "M": true, "L": true}

// IssueSpec describes one desired issue.
type IssueSpec struct {
	Title     string   `json:"title" yaml:"title" toml:"title"`
	Summary   string   `json:"summary,omitempty" yaml:"summary,omitempty" toml:"summary,omitempty"`
	Body      string   `json:"body,omitempty" yaml:"body,omitempty" toml:"body,omitempty"`
	Labels    []string `json:"labels,omitempty" yaml:"labels,omitempty" toml:"labels,omitempty"`
	EpicLabel string   `json:"epic_label,omitempty" yaml:"epic_label,omitempty" toml:"epic_label,omitempty"`
	EpicID    string   `json:"epic_id,omitempty" yaml:"epic_id,omitempty" toml:"epic_id,omitempty"`
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty" toml:"depends_on,omitempty"`
	Estimate  string   `json:"estimate,omitempty" yaml:"estimate,omitempty" toml:"estimate,omitempty"`
}

// File is a batch of issue specs plus the repository and project they
// target. Owner, repo, and project title may be left empty and filled in
// from configuration by the caller.
type File struct {
	Owner        string      `json:"owner,omitempty" yaml:"owner,omitempty" toml:"owner,omitempty"`
	Repo         string      `json:"repo,omitempty" yaml:"repo,omitempty" toml:"repo,omitempty"`
	ProjectTitle string      `json:"project_title,omitempty" yaml:"project_title,omitempty" toml:"project_title,omitempty"`
	DryRun       bool        `json:"dry_run,omitempty" yaml:"dry_run,omitempty" toml:"dry_run,omitempty"`
	Items        []IssueSpec `json:"items" yaml:"items" toml:"items"`
}

// ValidationError reports a malformed spec. It is raised before any remote
// call and never aborts the rest of the batch.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("spec %d: invalid %s: %s", e.Index, e.Field, e.Reason)
}

// Normalize validates the spec and returns a copy ready for reconciliation:
// title trimmed, epic_id translated to its label, labels deduplicated and
// sorted (epic label included). The original spec is not modified.
func (s IssueSpec) Normalize(index int) (IssueSpec, error) {
	out := s
	out.Title = strings.TrimSpace(s.Title)
	if out.Title == "" {
		return out, &ValidationError{Index: index, Field: "title", Reason: "must be non-empty"}
	}

	if s.EpicLabel != "" && s.EpicID != "" {
		return out, &ValidationError{Index: index, Field: "epic", Reason: "epic_label and epic_id are mutually exclusive"}
	}
	if s.EpicID != "" {
		label, ok := epicLabels[s.EpicID]
		if !ok {
			return out, &ValidationError{Index: index, Field: "epic_id", Reason: fmt.Sprintf("unknown epic %q", s.EpicID)}
		}
		out.EpicLabel = label
		out.EpicID = ""
	}

	if s.Estimate != "" && !validEstimates[s.Estimate] {
		return out, &ValidationError{Index: index, Field: "estimate", Reason: fmt.Sprintf("must be one of S, M, L, got %q", s.Estimate)}
	}

	out.Labels = dedupLabels(s.Labels, out.EpicLabel)
	return out, nil
}

// dedupLabels merges the desired labels with the epic label, removing
// duplicates. Label names are compared exactly as given; case is distinct.
// The result is sorted for deterministic output.
func dedupLabels(labels []string, epicLabel string) []string {
	seen := make(map[string]bool, len(labels)+1)
	var out []string
	for _, l := range labels {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	if epicLabel != "" && !seen[epicLabel] {
		out = append(out, epicLabel)
	}
	sort.Strings(out)
	return out
}

// RenderBody builds the issue body for a normalized spec. An explicit Body
// is used verbatim. Otherwise the body is assembled from the summary, epic,
// dependency, estimate, and project sections; empty sections keep their bare
// header so the layout stays stable.
func (s IssueSpec) RenderBody(projectTitle string) string {
	if s.Body != "" {
		return s.Body
	}
	parts := []string{
		strings.TrimRight(fmt.Sprintf("Summary: %s", s.Summary), " "),
		strings.TrimRight(fmt.Sprintf("Epic: %s", s.EpicLabel), " "),
		strings.TrimRight(fmt.Sprintf("Depends on: %s", strings.Join(s.DependsOn, ", ")), " "),
		strings.TrimRight(fmt.Sprintf("Estimate: %s", s.Estimate), " "),
		fmt.Sprintf("Project: %s", projectTitle),
	}
	return strings.Join(parts, "\n\n")
}

// EpicIDs returns the accepted epic identifiers in order.
func EpicIDs() []string {
	ids := make([]string, 0, len(epicLabels))
	for id := range epicLabels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
