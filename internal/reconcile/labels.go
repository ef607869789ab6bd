package reconcile

import (
	"context"
	"fmt"
)

// EnsureLabels makes every desired label exist on the repository and on the
// issue. repoLabels is the run-level set of known repository labels; labels
// created here are added to it so later specs skip the create. The returned
// slice holds the labels newly attached to the issue, preserving desired
// order. Labels already on the issue, and labels on the issue but not
// desired, are left untouched.
func (e *Engine) EnsureLabels(ctx context.Context, number int, desired []string, repoLabels map[string]bool, issueLabels []string) ([]string, error) {
	missing := missingLabels(desired, issueLabels)
	if len(missing) == 0 {
		return nil, nil
	}

	for _, name := range missing {
		if repoLabels[name] {
			continue
		}
		if err := e.Client.CreateLabel(ctx, name, "", ""); err != nil {
			return nil, fmt.Errorf("ensuring label %q: %w", name, err)
		}
		repoLabels[name] = true
	}

	if err := e.Client.AddIssueLabels(ctx, number, missing); err != nil {
		return nil, err
	}
	return missing, nil
}

// ensureRepoLabels creates the repo-level labels that do not exist yet,
// without touching any issue. Used before issue creation so the labels
// attached at create time are well-defined.
func (e *Engine) ensureRepoLabels(ctx context.Context, desired []string, repoLabels map[string]bool) error {
	for _, name := range desired {
		if repoLabels[name] {
			continue
		}
		if err := e.Client.CreateLabel(ctx, name, "", ""); err != nil {
			return fmt.Errorf("ensuring label %q: %w", name, err)
		}
		repoLabels[name] = true
	}
	return nil
}

// missingLabels returns the desired labels absent from current, preserving
// desired order. Comparison is exact; case is distinct.
func missingLabels(desired, current []string) []string {
	have := make(map[string]bool, len(current))
	for _, l := range current {
		have[l] = true
	}
	var missing []string
	for _, l := range desired {
		if !have[l] {
			missing = append(missing, l)
		}
	}
	return missing
}

// fetchRepoLabels loads the repository label set once per run.
func (e *Engine) fetchRepoLabels(ctx context.Context) (map[string]bool, error) {
	labels, err := e.Client.ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l.Name] = true
	}
	return set, nil
}
