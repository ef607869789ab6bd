package github

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// itemLookupConcurrency bounds parallel per-issue item lookups.
const itemLookupConcurrency = 10

// IssueItem is an issue's board membership: its item id and current status.
type IssueItem struct {
	ItemID string
	Status string
}

// ResolveProjectByTitle finds the board with the exact title among the
// repository owner's projects. Returns nil without error when no board
// matches.
func (c *Client) ResolveProjectByTitle(ctx context.Context, title string) (*ProjectRef, error) {
	info, err := c.RepoOwnerAndViewer(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := c.ListProjects(ctx, info.OwnerID)
	if err != nil {
		return nil, err
	}
	for i := range refs {
		if refs[i].Title == title {
			return &refs[i], nil
		}
	}
	return nil, nil
}

// ProjectItemsForIssues looks up the board item for each issue number, a
// bounded number at a time. Issues without an item are absent from the
// result.
func (c *Client) ProjectItemsForIssues(ctx context.Context, projectID string, numbers []int) (map[int]IssueItem, error) {
	out := make(map[int]IssueItem, len(numbers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(itemLookupConcurrency)
	for _, number := range numbers {
		g.Go(func() error {
			itemID, status, err := c.ProjectItemForIssue(gctx, number, projectID)
			if err != nil {
				return err
			}
			if itemID == "" {
				return nil
			}
			mu.Lock()
			out[number] = IssueItem{ItemID: itemID, Status: status}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
