package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boardsync/boardsync/internal/github"
	"github.com/boardsync/boardsync/internal/plan"
)

// Failure reasons recorded on outcomes.
const (
	ReasonValidation = "validation_failed"
	ReasonGitHub     = "github_error"
	ReasonDeadline   = "deadline_exceeded"
)

// Options configures one reconciliation run.
type Options struct {
	// DryRun computes every would-be change without mutating anything
	// remote. Read-only lookups still run.
	DryRun bool
	// CreateProject allows creating the board when it does not exist.
	// Ignored in dry-run; previews never create.
	CreateProject bool
}

// Engine reconciles issue plans against one repository and its board. It
// holds no per-run state, so a single engine can serve concurrent runs.
type Engine struct {
	Client *github.Client

	// Callbacks for UI feedback (optional).
	OnMessage func(msg string)
	OnWarning func(msg string)
}

// NewEngine creates a reconciliation engine over the given client.
func NewEngine(client *github.Client) *Engine {
	return &Engine{Client: client}
}

// Validate runs a read-only preview: every delta is computed and reported,
// nothing is mutated, and a missing board is never created.
func (e *Engine) Validate(ctx context.Context, f *plan.File) (*Report, error) {
	return e.Run(ctx, f, Options{DryRun: true})
}

// Sync reconciles the plan against the live repository. The plan's own
// dry-run flag downgrades it to a preview.
func (e *Engine) Sync(ctx context.Context, f *plan.File) (*Report, error) {
	return e.Run(ctx, f, Options{DryRun: f.DryRun, CreateProject: !f.DryRun})
}

// runState is the shared context of one run: the issue snapshot, the
// resolved board, and the known repository labels. Built once up front,
// then read by every spec in the batch.
type runState struct {
	projectTitle string
	snapshot     []github.Issue
	project      *github.Project
	repoLabels   map[string]bool
}

// Run executes one reconciliation pass in four phases: validate every spec,
// snapshot the remote issues, resolve the board, then drive each spec to its
// target state in input order. One spec failing records an error outcome and
// the batch continues; a context deadline terminates the run with the
// remaining specs marked not attempted. The returned report is always
// complete (one outcome per input spec), even alongside an error.
func (e *Engine) Run(ctx context.Context, f *plan.File, opts Options) (*Report, error) {
	started := time.Now()
	report := &Report{
		Owner:        f.Owner,
		Repo:         f.Repo,
		ProjectTitle: f.ProjectTitle,
		DryRun:       opts.DryRun,
		Outcomes:     make([]Outcome, len(f.Items)),
	}
	defer report.Finalize(started)

	specs := make([]plan.IssueSpec, len(f.Items))
	valid := make([]bool, len(f.Items))
	for i := range f.Items {
		o := &report.Outcomes[i]
		o.Title = strings.TrimSpace(f.Items[i].Title)
		normalized, err := f.Items[i].Normalize(i)
		if err != nil {
			o.fail(ReasonValidation, err)
			e.warn("Spec %d invalid: %v", i, err)
			continue
		}
		specs[i], valid[i] = normalized, true
	}

	rs := &runState{projectTitle: f.ProjectTitle}

	var err error
	rs.snapshot, err = e.Client.FetchIssues(ctx, "all")
	if err != nil {
		e.markNotAttempted(report, 0, valid, abortReason(ctx))
		return report, fmt.Errorf("fetching issue snapshot: %w", err)
	}
	e.msg("Fetched %d issues from %s/%s", len(rs.snapshot), f.Owner, f.Repo)

	rs.project, err = e.EnsureProject(ctx, f.ProjectTitle, opts.CreateProject && !opts.DryRun)
	if err != nil {
		e.markNotAttempted(report, 0, valid, abortReason(ctx))
		return report, fmt.Errorf("resolving project %q: %w", f.ProjectTitle, err)
	}
	if rs.project != nil {
		report.ProjectURL = rs.project.URL
	}

	if !opts.DryRun {
		rs.repoLabels, err = e.fetchRepoLabels(ctx)
		if err != nil {
			e.markNotAttempted(report, 0, valid, abortReason(ctx))
			return report, fmt.Errorf("listing repository labels: %w", err)
		}
	}

	for i := range f.Items {
		if !valid[i] {
			continue
		}
		if err := ctx.Err(); err != nil {
			e.markNotAttempted(report, i, valid, ReasonDeadline)
			return report, err
		}

		e.reconcileSpec(ctx, specs[i], &report.Outcomes[i], rs, opts)

		if err := ctx.Err(); err != nil {
			if o := &report.Outcomes[i]; o.Error != "" {
				o.Reason = ReasonDeadline
			}
			e.markNotAttempted(report, i+1, valid, ReasonDeadline)
			return report, err
		}
	}

	return report, nil
}

// abortReason classifies a run-level abort: a spent context is a deadline,
// anything else is the remote call that failed.
func abortReason(ctx context.Context) string {
	if ctx.Err() != nil {
		return ReasonDeadline
	}
	return ReasonGitHub
}

// reconcileSpec drives one desired issue to its target state: resolve it
// against the snapshot, create it when missing, top up labels, then board
// membership and initial status. Failures land on the outcome; partial
// progress already made stays recorded.
func (e *Engine) reconcileSpec(ctx context.Context, spec plan.IssueSpec, o *Outcome, rs *runState, opts Options) {
	matched := Resolve(spec.Title, rs.snapshot)

	if matched == nil {
		if opts.DryRun {
			o.Created = true
			o.LabelsAdded = spec.Labels
			o.ProjectItemAdded = true
			if name, _, ok := pickInitialStatus(rs.project); ok {
				o.StatusSet = name
			}
			e.msg("[dry-run] Would create %q with labels %v", spec.Title, spec.Labels)
			return
		}

		if err := e.ensureRepoLabels(ctx, spec.Labels, rs.repoLabels); err != nil {
			o.fail(ReasonGitHub, err)
			return
		}
		created, err := e.Client.CreateIssue(ctx, spec.Title, spec.RenderBody(rs.projectTitle), spec.Labels)
		if err != nil {
			o.fail(ReasonGitHub, err)
			return
		}
		o.Created = true
		o.MatchedNumber = created.Number
		o.URL = created.HTMLURL
		o.LabelsAdded = spec.Labels
		// Later specs with the same title must converge on this issue.
		rs.snapshot = append(rs.snapshot, *created)
		e.msg("Created issue #%d: %s", created.Number, spec.Title)

		if rs.project != nil {
			added, status, err := e.EnsureMembership(ctx, rs.project, created)
			o.ProjectItemAdded = added
			o.StatusSet = status
			if err != nil {
				o.fail(ReasonGitHub, err)
			}
		}
		return
	}

	o.MatchedNumber = matched.Number
	o.URL = matched.HTMLURL
	missing := missingLabels(spec.Labels, github.LabelNames(matched))

	if opts.DryRun {
		o.LabelsAdded = missing
		e.previewMembership(ctx, o, rs, matched)
		return
	}

	if len(missing) > 0 {
		added, err := e.EnsureLabels(ctx, matched.Number, spec.Labels, rs.repoLabels, github.LabelNames(matched))
		if err != nil {
			o.fail(ReasonGitHub, err)
			return
		}
		o.LabelsAdded = added
		e.msg("Added labels %v to issue #%d", added, matched.Number)
	}

	if rs.project != nil {
		added, status, err := e.EnsureMembership(ctx, rs.project, matched)
		o.ProjectItemAdded = added
		o.StatusSet = status
		if err != nil {
			o.fail(ReasonGitHub, err)
		}
	}
}

// previewMembership computes the would-be board delta without mutating. A
// board that does not exist yet would be created on sync, so every issue in
// the plan counts as a would-be addition; its status options are unknowable
// until it exists, so no status is predicted.
func (e *Engine) previewMembership(ctx context.Context, o *Outcome, rs *runState, issue *github.Issue) {
	if rs.project == nil {
		o.ProjectItemAdded = true
		return
	}

	itemID, _, err := e.Client.ProjectItemForIssue(ctx, issue.Number, rs.project.ID)
	if err != nil {
		o.fail(ReasonGitHub, err)
		return
	}
	if itemID != "" {
		return
	}
	o.ProjectItemAdded = true
	if name, _, ok := pickInitialStatus(rs.project); ok {
		o.StatusSet = name
	}
}

// markNotAttempted flags every spec from index from onward that never got a
// chance to run. Validation failures keep their own outcome.
func (e *Engine) markNotAttempted(report *Report, from int, valid []bool, reason string) {
	for i := from; i < len(report.Outcomes); i++ {
		if !valid[i] {
			continue
		}
		o := &report.Outcomes[i]
		o.NotAttempted = true
		o.Reason = reason
	}
}

func (e *Engine) msg(format string, args ...interface{}) {
	if e.OnMessage != nil {
		e.OnMessage(fmt.Sprintf(format, args...))
	}
}

func (e *Engine) warn(format string, args ...interface{}) {
	if e.OnWarning != nil {
		e.OnWarning(fmt.Sprintf(format, args...))
	}
}
