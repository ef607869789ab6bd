package reconcile

import "time"

// Outcome records what happened to one desired issue. Exactly one outcome
// is produced per input spec, in input order.
type Outcome struct {
	Title string `json:"title"`
	// MatchedNumber is the remote issue number the spec resolved to, or the
	// number of the issue created for it. Zero when neither happened.
	MatchedNumber int    `json:"matched_number,omitempty"`
	URL           string `json:"url,omitempty"`
	Created       bool   `json:"created,omitempty"`
	// LabelsAdded lists the labels attached during this run. In dry-run it
	// lists the labels that would be attached.
	LabelsAdded      []string `json:"labels_added,omitempty"`
	ProjectItemAdded bool     `json:"project_item_added,omitempty"`
	// StatusSet is the status option name assigned on the item-add path,
	// empty when no status was (or would be) set.
	StatusSet string `json:"status_set,omitempty"`
	// Reason classifies a failure: validation_failed, github_error, or
	// deadline_exceeded.
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
	// NotAttempted marks specs never processed because the run was cut
	// short by a deadline.
	NotAttempted bool `json:"not_attempted,omitempty"`
}

// Unchanged reports whether the spec was already satisfied remotely.
func (o *Outcome) Unchanged() bool {
	return o.MatchedNumber > 0 && !o.Created && len(o.LabelsAdded) == 0 &&
		!o.ProjectItemAdded && o.StatusSet == "" && o.Error == ""
}

func (o *Outcome) fail(reason string, err error) {
	o.Reason = reason
	o.Error = err.Error()
}

// Metrics aggregates outcome counters for one run.
type Metrics struct {
	Total        int   `json:"total"`
	Created      int   `json:"created"`
	Matched      int   `json:"matched"`
	Unchanged    int   `json:"unchanged"`
	Labeled      int   `json:"labeled"`
	ProjectAdded int   `json:"project_added"`
	StatusSet    int   `json:"status_set"`
	Failed       int   `json:"failed"`
	DurationMS   int64 `json:"duration_ms"`
}

// Report is the result of one reconciliation run.
type Report struct {
	Owner        string    `json:"owner"`
	Repo         string    `json:"repo"`
	ProjectTitle string    `json:"project_title"`
	ProjectURL   string    `json:"project_url,omitempty"`
	DryRun       bool      `json:"dry_run,omitempty"`
	Outcomes     []Outcome `json:"outcomes"`
	Metrics      Metrics   `json:"metrics"`
}

// Finalize computes the aggregate counters from the recorded outcomes.
func (r *Report) Finalize(started time.Time) {
	m := Metrics{Total: len(r.Outcomes)}
	for i := range r.Outcomes {
		o := &r.Outcomes[i]
		switch {
		case o.Created:
			m.Created++
		case o.MatchedNumber > 0:
			m.Matched++
		}
		if o.Unchanged() {
			m.Unchanged++
		}
		if len(o.LabelsAdded) > 0 {
			m.Labeled++
		}
		if o.ProjectItemAdded {
			m.ProjectAdded++
		}
		if o.StatusSet != "" {
			m.StatusSet++
		}
		if o.Error != "" {
			m.Failed++
		}
	}
	m.DurationMS = time.Since(started).Milliseconds()
	r.Metrics = m
}
