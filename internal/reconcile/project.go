package reconcile

import (
	"context"
	"fmt"

	"github.com/boardsync/boardsync/internal/github"
)

// InitialStatusNames is the priority order for the status assigned to
// freshly added board items. The first name that exists among the project's
// options wins; a board with none of them gets no status, silently.
var InitialStatusNames = []string{"To do", "Todo", "Not started", "Backlog"}

// EnsureProject resolves the board by exact title, creating it when
// createMissing is set. Creation targets the repository owner first and
// falls back to the authenticated viewer when the owner rejects it (tokens
// without org project scope). Returns nil without error when the board does
// not exist and creation is not allowed.
//
// The status field read degrades gracefully: a board without a usable
// Status single-select still reconciles membership, it just never gets
// status assignments.
func (e *Engine) EnsureProject(ctx context.Context, title string, createMissing bool) (*github.Project, error) {
	info, err := e.Client.RepoOwnerAndViewer(ctx)
	if err != nil {
		return nil, err
	}

	refs, err := e.Client.ListProjects(ctx, info.OwnerID)
	if err != nil {
		return nil, err
	}

	var ref *github.ProjectRef
	for i := range refs {
		if refs[i].Title == title {
			ref = &refs[i]
			break
		}
	}

	if ref == nil {
		if !createMissing {
			return nil, nil
		}
		ref, err = e.Client.CreateProject(ctx, info.OwnerID, title)
		if err != nil {
			e.warn("Project create under %s failed, retrying under viewer %s: %v", info.OwnerLogin, info.ViewerLogin, err)
			ref, err = e.Client.CreateProject(ctx, info.ViewerID, title)
			if err != nil {
				return nil, fmt.Errorf("creating project %q: %w", title, err)
			}
		}
		e.msg("Created project %q (#%d)", title, ref.Number)
	}

	ownerType, ownerLogin, number, err := e.Client.ProjectMeta(ctx, ref.ID)
	if err != nil {
		return nil, err
	}

	project := &github.Project{
		ID:     ref.ID,
		Number: number,
		Title:  title,
		URL:    github.ProjectURL(ownerType, ownerLogin, number),
	}

	fieldID, options, err := e.Client.StatusField(ctx, ref.ID)
	if err != nil {
		e.warn("Status field unavailable on project %q, statuses will not be set: %v", title, err)
		return project, nil
	}
	project.StatusFieldID = fieldID
	project.StatusOptions = options
	return project, nil
}

// EnsureMembership attaches the issue to the board if it is not already an
// item, and sets the initial status on the add path only. Items already on
// the board are never touched, whatever their current status.
func (e *Engine) EnsureMembership(ctx context.Context, project *github.Project, issue *github.Issue) (added bool, statusSet string, err error) {
	itemID, _, err := e.Client.ProjectItemForIssue(ctx, issue.Number, project.ID)
	if err != nil {
		return false, "", err
	}
	if itemID != "" {
		return false, "", nil
	}

	if issue.NodeID == "" {
		return false, "", fmt.Errorf("issue #%d has no node id", issue.Number)
	}
	itemID, already, err := e.Client.AddProjectItem(ctx, project.ID, issue.NodeID)
	if err != nil {
		return false, "", err
	}
	if already {
		// Lost a race with a concurrent add; the item exists, nothing to do.
		return false, "", nil
	}

	name, optionID, ok := pickInitialStatus(project)
	if !ok {
		return true, "", nil
	}
	if err := e.Client.SetItemStatus(ctx, project.ID, itemID, project.StatusFieldID, optionID); err != nil {
		return true, "", err
	}
	return true, name, nil
}

// pickInitialStatus selects the first priority status name present among
// the project's options.
func pickInitialStatus(p *github.Project) (name, optionID string, ok bool) {
	if p.StatusFieldID == "" {
		return "", "", false
	}
	for _, candidate := range InitialStatusNames {
		if id, found := p.OptionID(candidate); found {
			return candidate, id, true
		}
	}
	return "", "", false
}
