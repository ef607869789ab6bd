// Package ui provides terminal styling for boardsync CLI output.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/boardsync/boardsync/internal/reconcile"
)

const maxTitleWidth = 50

// RenderReport renders a reconciliation report as a terminal table: one row
// per spec in plan order, then a summary line. Styling degrades to plain
// text when the terminal has no color support.
func RenderReport(r *reconcile.Report) string {
	var b strings.Builder

	header := fmt.Sprintf("%s/%s → %q", r.Owner, r.Repo, r.ProjectTitle)
	b.WriteString(RenderHeader(header))
	if r.DryRun {
		b.WriteString(" " + RenderWarn("(dry-run)"))
	}
	b.WriteString("\n")
	b.WriteString(RenderSeparator())
	b.WriteString("\n")

	for i := range r.Outcomes {
		b.WriteString(renderOutcome(&r.Outcomes[i], r.DryRun))
		b.WriteString("\n")
	}

	b.WriteString(RenderSeparator())
	b.WriteString("\n")
	b.WriteString(summaryLine(&r.Metrics))
	b.WriteString("\n")
	if r.ProjectURL != "" {
		b.WriteString(RenderMuted("Project: " + r.ProjectURL))
		b.WriteString("\n")
	}
	return b.String()
}

func renderOutcome(o *reconcile.Outcome, dryRun bool) string {
	num := "    -"
	if o.MatchedNumber > 0 {
		num = fmt.Sprintf("#%4d", o.MatchedNumber)
	}
	title := TruncateSimple(o.Title, maxTitleWidth)
	pad := maxTitleWidth - len([]rune(title))
	if pad < 0 {
		pad = 0
	}
	row := fmt.Sprintf("%s %s  %s", icon(o), num, title+strings.Repeat(" ", pad))

	notes := outcomeNotes(o, dryRun)
	if notes != "" {
		row += "  " + notes
	}
	return row
}

func icon(o *reconcile.Outcome) string {
	switch {
	case o.NotAttempted:
		return RenderMuted(IconSkip)
	case o.Error != "":
		return RenderFail(IconFail)
	case o.Created || len(o.LabelsAdded) > 0 || o.ProjectItemAdded:
		return RenderPass(IconPass)
	default:
		return RenderMuted(IconSkip)
	}
}

func outcomeNotes(o *reconcile.Outcome, dryRun bool) string {
	if o.NotAttempted {
		return RenderMuted("not attempted")
	}

	var notes []string
	if o.Created {
		if dryRun {
			notes = append(notes, "would create")
		} else {
			notes = append(notes, "created")
		}
	}
	if len(o.LabelsAdded) > 0 {
		notes = append(notes, "+"+strings.Join(o.LabelsAdded, " +"))
	}
	if o.ProjectItemAdded {
		notes = append(notes, "+board")
	}
	if o.StatusSet != "" {
		notes = append(notes, "status: "+o.StatusSet)
	}
	if o.Error != "" {
		notes = append(notes, RenderFail(o.Reason+": "+o.Error))
	}
	if len(notes) == 0 {
		return RenderMuted("unchanged")
	}
	return strings.Join(notes, "  ")
}

func summaryLine(m *reconcile.Metrics) string {
	parts := []string{}
	if m.Created > 0 {
		parts = append(parts, fmt.Sprintf("%d created", m.Created))
	}
	if m.Matched > 0 {
		parts = append(parts, fmt.Sprintf("%d matched", m.Matched))
	}
	if m.Unchanged > 0 {
		parts = append(parts, fmt.Sprintf("%d unchanged", m.Unchanged))
	}
	if m.Failed > 0 {
		parts = append(parts, RenderFail(fmt.Sprintf("%d failed", m.Failed)))
	}
	detail := strings.Join(parts, ", ")
	if detail == "" {
		detail = "nothing to do"
	}

	elapsed := time.Duration(m.DurationMS) * time.Millisecond
	return fmt.Sprintf("%d specs: %s in %s", m.Total, detail, elapsed)
}
