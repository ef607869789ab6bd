package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/boardsync/boardsync/internal/github"
	"github.com/boardsync/boardsync/internal/telemetry"
	"github.com/boardsync/boardsync/internal/timeparsing"
	"github.com/boardsync/boardsync/internal/ui"
)

var (
	issuesProject string
	issuesSince   string
	issuesState   string
	issuesPage    int
	issuesPerPage int
)

// issueRow is one listing line; mirrors the HTTP listing item shape.
type issueRow struct {
	Number        int      `json:"number"`
	Title         string   `json:"title"`
	State         string   `json:"state,omitempty"`
	URL           string   `json:"url,omitempty"`
	Labels        []string `json:"labels,omitempty"`
	ProjectItemID string   `json:"project_item_id,omitempty"`
	Status        string   `json:"status,omitempty"`
}

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List remote issues, optionally with board status",
	Long: `List the configured repository's issues. When a board title is known
(--project or the configured project_title), each issue is annotated
with its board item and status.

--since accepts natural-language times ("2 weeks ago", "yesterday") as
well as dates (2024-01-15) and RFC 3339 timestamps.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appConfig.ValidateRemote(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := telemetry.WrapClient(appConfig.Client())

		var (
			issues  []github.Issue
			hasNext bool
		)
		// Filters walk every matching issue; the plain listing stays paged.
		if issuesSince != "" || issuesState != "all" {
			var since time.Time
			if issuesSince != "" {
				var err error
				if since, err = parseSince(issuesSince); err != nil {
					return err
				}
			}
			all, err := client.FetchIssuesSince(ctx, issuesState, since)
			if err != nil {
				return err
			}
			issues = all
		} else {
			page, err := client.ListIssuesPage(ctx, issuesPage, issuesPerPage, "")
			if err != nil {
				return err
			}
			issues, hasNext = page.Issues, page.HasNext
		}

		rows := make([]issueRow, len(issues))
		for i := range issues {
			rows[i] = issueRow{
				Number: issues[i].Number,
				Title:  issues[i].Title,
				State:  issues[i].State,
				URL:    issues[i].HTMLURL,
				Labels: github.LabelNames(&issues[i]),
			}
		}

		title := issuesProject
		if title == "" {
			title = appConfig.ProjectTitle
		}
		if title != "" && len(rows) > 0 {
			if err := enrichRows(ctx, client, title, rows); err != nil {
				return err
			}
		}

		if jsonOutput {
			outputJSON(rows)
			return nil
		}

		for i := range rows {
			fmt.Println(formatIssueRow(&rows[i]))
		}
		if hasNext {
			fmt.Println(ui.RenderMuted(fmt.Sprintf("More pages available; try --page %d", issuesPage+1)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(issuesCmd)
	issuesCmd.Flags().StringVar(&issuesProject, "project", "", "Board title for status enrichment (default: configured project_title)")
	issuesCmd.Flags().StringVar(&issuesSince, "since", "", `Only issues updated since this time ("2 weeks ago", -2w, 2024-01-15)`)
	issuesCmd.Flags().StringVar(&issuesState, "state", "all", "Issue state filter: open, closed, or all")
	issuesCmd.Flags().IntVar(&issuesPage, "page", 1, "Page number")
	issuesCmd.Flags().IntVar(&issuesPerPage, "per-page", 30, "Issues per page")
}

func enrichRows(ctx context.Context, client *github.Client, title string, rows []issueRow) error {
	ref, err := client.ResolveProjectByTitle(ctx, title)
	if err != nil {
		return fmt.Errorf("resolving board %q: %w", title, err)
	}
	if ref == nil {
		fmt.Fprintf(os.Stderr, "Note: no board titled %q; listing without status\n", title)
		return nil
	}

	numbers := make([]int, len(rows))
	for i := range rows {
		numbers[i] = rows[i].Number
	}
	items, err := client.ProjectItemsForIssues(ctx, ref.ID, numbers)
	if err != nil {
		return fmt.Errorf("looking up board items: %w", err)
	}
	for i := range rows {
		if item, ok := items[rows[i].Number]; ok {
			rows[i].ProjectItemID = item.ItemID
			rows[i].Status = item.Status
		}
	}
	return nil
}

func formatIssueRow(row *issueRow) string {
	num := ui.RenderAccent(fmt.Sprintf("#%-5d", row.Number))

	state := row.State
	if state == "open" {
		state = ui.RenderPass(fmt.Sprintf("%-6s", state))
	} else {
		state = ui.RenderMuted(fmt.Sprintf("%-6s", state))
	}

	title := ui.TruncateSimple(row.Title, 50)
	title += strings.Repeat(" ", 50-len([]rune(title)))

	var extras []string
	if len(row.Labels) > 0 {
		extras = append(extras, ui.RenderMuted("["+strings.Join(row.Labels, " ")+"]"))
	}
	if row.Status != "" {
		extras = append(extras, ui.RenderAccent(row.Status))
	}

	line := fmt.Sprintf("%s %s %s", num, state, title)
	if len(extras) > 0 {
		line += " " + strings.Join(extras, " ")
	}
	return line
}

// parseSince turns a --since value into a point in time.
func parseSince(s string) (time.Time, error) {
	t, err := timeparsing.ParseRelativeTime(s, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf(`could not understand --since %q (try "2 weeks ago", -2w, or 2024-01-15)`, s)
	}
	return t, nil
}
