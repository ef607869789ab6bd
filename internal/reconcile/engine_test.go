package reconcile_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boardsync/boardsync/internal/github"
	"github.com/boardsync/boardsync/internal/plan"
	"github.com/boardsync/boardsync/internal/reconcile"
)

// fakeGitHub is an in-memory GitHub double serving the REST and GraphQL
// surfaces the engine touches. State mutations are counted so tests can
// assert exactly which remote writes a run performed.
type fakeGitHub struct {
	mu sync.Mutex

	issues     []github.Issue
	repoLabels map[string]bool
	projects   []fakeProject
	items      map[int]fakeItem

	ownerLogin  string
	ownerType   string
	ownerNodeID string
	viewerLogin string
	viewerNode  string

	statusOptions []github.StatusOption

	// Failure knobs.
	rejectOwnerCreate bool
	hideItems         bool
	addAlreadyExists  bool
	failLabelAdd      bool

	nextIssue   int
	nextItem    int
	nextProject int

	issueCreates int
	labelCreates []string
	labelAdds    int
	itemAdds     int
	statusSets   int
}

type fakeProject struct {
	ID         string
	Number     int
	Title      string
	OwnerLogin string
	OwnerType  string
}

type fakeItem struct {
	ID        string
	ProjectID string
	Status    string
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		repoLabels:  make(map[string]bool),
		items:       make(map[int]fakeItem),
		ownerLogin:  "org",
		ownerType:   "Organization",
		ownerNodeID: "ORG_NODE",
		viewerLogin: "me",
		viewerNode:  "VIEWER_NODE",
		statusOptions: []github.StatusOption{
			{ID: "S1", Name: "To do"},
			{ID: "S2", Name: "In progress"},
		},
		nextIssue:   1,
		nextItem:    1,
		nextProject: 1,
	}
}

// addIssue seeds an existing remote issue.
func (f *fakeGitHub) addIssue(title string, createdAt time.Time, labels ...string) github.Issue {
	num := f.nextIssue
	f.nextIssue++
	issue := github.Issue{
		Number:    num,
		NodeID:    fmt.Sprintf("ISSUE_NODE_%d", num),
		Title:     title,
		State:     "open",
		HTMLURL:   fmt.Sprintf("https://github.com/org/repo/issues/%d", num),
		CreatedAt: &createdAt,
	}
	for _, l := range labels {
		issue.Labels = append(issue.Labels, github.Label{Name: l})
		f.repoLabels[l] = true
	}
	f.issues = append(f.issues, issue)
	return issue
}

// addProject seeds an existing board owned by the repo owner.
func (f *fakeGitHub) addProject(title string) fakeProject {
	p := fakeProject{
		ID:         fmt.Sprintf("PROJ_%d", f.nextProject),
		Number:     f.nextProject,
		Title:      title,
		OwnerLogin: f.ownerLogin,
		OwnerType:  f.ownerType,
	}
	f.nextProject++
	f.projects = append(f.projects, p)
	return p
}

// addItem seeds a board item for an issue.
func (f *fakeGitHub) addItem(issueNumber int, projectID, status string) {
	f.items[issueNumber] = fakeItem{
		ID:        fmt.Sprintf("ITEM_%d", f.nextItem),
		ProjectID: projectID,
		Status:    status,
	}
	f.nextItem++
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/graphql":
		f.graphql(w, r)
	case strings.Contains(path, "/issues/") && strings.HasSuffix(path, "/labels"):
		f.issueLabels(w, r)
	case strings.HasSuffix(path, "/labels"):
		f.labels(w, r)
	case strings.HasSuffix(path, "/issues"):
		f.issuesEndpoint(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"message": "Not Found"})
	}
}

func (f *fakeGitHub) issuesEndpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, f.issues)
		return
	}

	var req struct {
		Title  string   `json:"title"`
		Body   string   `json:"body"`
		Labels []string `json:"labels"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	now := time.Now().UTC()
	num := f.nextIssue
	f.nextIssue++
	issue := github.Issue{
		Number:    num,
		NodeID:    fmt.Sprintf("ISSUE_NODE_%d", num),
		Title:     req.Title,
		Body:      req.Body,
		State:     "open",
		HTMLURL:   fmt.Sprintf("https://github.com/org/repo/issues/%d", num),
		CreatedAt: &now,
	}
	for _, l := range req.Labels {
		issue.Labels = append(issue.Labels, github.Label{Name: l})
	}
	f.issues = append(f.issues, issue)
	f.issueCreates++

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, issue)
}

func (f *fakeGitHub) labels(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		out := make([]github.Label, 0, len(f.repoLabels))
		for name := range f.repoLabels {
			out = append(out, github.Label{Name: name})
		}
		writeJSON(w, out)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if f.repoLabels[req.Name] {
		w.WriteHeader(http.StatusUnprocessableEntity)
		writeJSON(w, map[string]string{"message": "Validation Failed: already_exists"})
		return
	}
	f.repoLabels[req.Name] = true
	f.labelCreates = append(f.labelCreates, req.Name)
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, github.Label{Name: req.Name})
}

func (f *fakeGitHub) issueLabels(w http.ResponseWriter, r *http.Request) {
	if f.failLabelAdd {
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, map[string]string{"message": "boom"})
		return
	}

	parts := strings.Split(r.URL.Path, "/")
	num, _ := strconv.Atoi(parts[len(parts)-2])

	var req struct {
		Labels []string `json:"labels"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	for i := range f.issues {
		if f.issues[i].Number != num {
			continue
		}
		have := make(map[string]bool)
		for _, l := range f.issues[i].Labels {
			have[l.Name] = true
		}
		for _, name := range req.Labels {
			if !have[name] {
				f.issues[i].Labels = append(f.issues[i].Labels, github.Label{Name: name})
			}
		}
		f.labelAdds++
		writeJSON(w, f.issues[i].Labels)
		return
	}
	w.WriteHeader(http.StatusNotFound)
	writeJSON(w, map[string]string{"message": "Not Found"})
}

func (f *fakeGitHub) graphql(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	q := req.Query
	switch {
	case strings.Contains(q, "viewer { id login }"):
		gqlData(w, map[string]interface{}{
			"repository": map[string]interface{}{
				"owner": map[string]interface{}{
					"id": f.ownerNodeID, "login": f.ownerLogin, "__typename": f.ownerType,
				},
			},
			"viewer": map[string]interface{}{"id": f.viewerNode, "login": f.viewerLogin},
		})

	case strings.Contains(q, "projectsV2(first: 100)"):
		nodes := make([]map[string]interface{}, 0, len(f.projects))
		for _, p := range f.projects {
			nodes = append(nodes, map[string]interface{}{"id": p.ID, "number": p.Number, "title": p.Title})
		}
		gqlData(w, map[string]interface{}{
			"node": map[string]interface{}{
				"projectsV2": map[string]interface{}{"nodes": nodes},
			},
		})

	case strings.Contains(q, "createProjectV2"):
		ownerID, _ := req.Variables["ownerId"].(string)
		title, _ := req.Variables["title"].(string)
		if f.rejectOwnerCreate && ownerID == f.ownerNodeID {
			gqlError(w, "FORBIDDEN", "does not have permission to create projects")
			return
		}
		p := fakeProject{
			ID:         fmt.Sprintf("PROJ_%d", f.nextProject),
			Number:     f.nextProject,
			Title:      title,
			OwnerLogin: f.ownerLogin,
			OwnerType:  f.ownerType,
		}
		if ownerID == f.viewerNode {
			p.OwnerLogin = f.viewerLogin
			p.OwnerType = "User"
		}
		f.nextProject++
		f.projects = append(f.projects, p)
		gqlData(w, map[string]interface{}{
			"createProjectV2": map[string]interface{}{
				"projectV2": map[string]interface{}{"id": p.ID, "number": p.Number, "title": p.Title},
			},
		})

	case strings.Contains(q, "__typename }"):
		projectID, _ := req.Variables["projectId"].(string)
		for _, p := range f.projects {
			if p.ID == projectID {
				gqlData(w, map[string]interface{}{
					"node": map[string]interface{}{
						"number": p.Number,
						"title":  p.Title,
						"owner":  map[string]interface{}{"login": p.OwnerLogin, "__typename": p.OwnerType},
					},
				})
				return
			}
		}
		gqlError(w, "NOT_FOUND", "project not found")

	case strings.Contains(q, `field(name: "Status")`):
		if f.statusOptions == nil {
			gqlData(w, map[string]interface{}{"node": map[string]interface{}{"field": nil}})
			return
		}
		opts := make([]map[string]interface{}, 0, len(f.statusOptions))
		for _, o := range f.statusOptions {
			opts = append(opts, map[string]interface{}{"id": o.ID, "name": o.Name})
		}
		gqlData(w, map[string]interface{}{
			"node": map[string]interface{}{
				"field": map[string]interface{}{"id": "FIELD_STATUS", "options": opts},
			},
		})

	case strings.Contains(q, "projectItems(first: 50)"):
		number := int(req.Variables["number"].(float64))
		nodes := []map[string]interface{}{}
		if item, ok := f.items[number]; ok && !f.hideItems {
			nodes = append(nodes, map[string]interface{}{
				"id":               item.ID,
				"project":          map[string]interface{}{"id": item.ProjectID},
				"fieldValueByName": map[string]interface{}{"name": item.Status},
			})
		}
		gqlData(w, map[string]interface{}{
			"repository": map[string]interface{}{
				"issue": map[string]interface{}{
					"projectItems": map[string]interface{}{"nodes": nodes},
				},
			},
		})

	case strings.Contains(q, "addProjectV2ItemById"):
		if f.addAlreadyExists {
			gqlError(w, "UNPROCESSABLE", "The project already contains this item")
			return
		}
		projectID, _ := req.Variables["projectId"].(string)
		contentID, _ := req.Variables["contentId"].(string)
		for _, issue := range f.issues {
			if issue.NodeID != contentID {
				continue
			}
			item := fakeItem{ID: fmt.Sprintf("ITEM_%d", f.nextItem), ProjectID: projectID}
			f.nextItem++
			f.items[issue.Number] = item
			f.itemAdds++
			gqlData(w, map[string]interface{}{
				"addProjectV2ItemById": map[string]interface{}{
					"item": map[string]interface{}{"id": item.ID},
				},
			})
			return
		}
		gqlError(w, "NOT_FOUND", "content not found")

	case strings.Contains(q, "updateProjectV2ItemFieldValue"):
		itemID, _ := req.Variables["itemId"].(string)
		optionID, _ := req.Variables["optionId"].(string)
		for num, item := range f.items {
			if item.ID != itemID {
				continue
			}
			for _, o := range f.statusOptions {
				if o.ID == optionID {
					item.Status = o.Name
				}
			}
			f.items[num] = item
			f.statusSets++
			gqlData(w, map[string]interface{}{
				"updateProjectV2ItemFieldValue": map[string]interface{}{
					"projectV2Item": map[string]interface{}{"id": itemID},
				},
			})
			return
		}
		gqlError(w, "NOT_FOUND", "item not found")

	default:
		gqlError(w, "UNSUPPORTED", "unrecognized query")
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func gqlData(w http.ResponseWriter, data map[string]interface{}) {
	writeJSON(w, map[string]interface{}{"data": data})
}

func gqlError(w http.ResponseWriter, typ, msg string) {
	writeJSON(w, map[string]interface{}{
		"data":   nil,
		"errors": []map[string]string{{"type": typ, "message": msg}},
	})
}

// setupEngine wires an engine to a fake over httptest.
func setupEngine(t *testing.T, fake *fakeGitHub) *reconcile.Engine {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client := github.NewClient("test-token", "org", "repo").
		WithBaseURL(server.URL).
		WithGraphQLURL(server.URL + "/graphql")
	return reconcile.NewEngine(client)
}

func planFile(items ...plan.IssueSpec) *plan.File {
	return &plan.File{Owner: "org", Repo: "repo", ProjectTitle: "ProjX", Items: items}
}

// TestSyncCreatesMissingIssue drives one new spec against an empty repo with
// an existing board: issue created with its label, item added, status set.
func TestSyncCreatesMissingIssue(t *testing.T) {
	fake := newFakeGitHub()
	fake.addProject("ProjX")
	engine := setupEngine(t, fake)

	report, err := engine.Sync(context.Background(), planFile(
		plan.IssueSpec{Title: "Add logging", Labels: []string{"bug"}},
	))
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	o := report.Outcomes[0]
	if !o.Created {
		t.Error("outcome.Created = false, want true")
	}
	if o.MatchedNumber != 1 {
		t.Errorf("outcome.MatchedNumber = %d, want 1", o.MatchedNumber)
	}
	if len(o.LabelsAdded) != 1 || o.LabelsAdded[0] != "bug" {
		t.Errorf("outcome.LabelsAdded = %v, want [bug]", o.LabelsAdded)
	}
	if !o.ProjectItemAdded {
		t.Error("outcome.ProjectItemAdded = false, want true")
	}
	if o.StatusSet != "To do" {
		t.Errorf("outcome.StatusSet = %q, want %q", o.StatusSet, "To do")
	}

	if fake.issueCreates != 1 {
		t.Errorf("issue creates = %d, want 1", fake.issueCreates)
	}
	if len(fake.labelCreates) != 1 || fake.labelCreates[0] != "bug" {
		t.Errorf("label creates = %v, want [bug]", fake.labelCreates)
	}
	if fake.itemAdds != 1 {
		t.Errorf("item adds = %d, want 1", fake.itemAdds)
	}
	if fake.statusSets != 1 {
		t.Errorf("status sets = %d, want 1", fake.statusSets)
	}

	m := report.Metrics
	if m.Total != 1 || m.Created != 1 || m.Failed != 0 {
		t.Errorf("metrics = %+v, want total=1 created=1 failed=0", m)
	}
	if report.ProjectURL != "https://github.com/orgs/org/projects/1" {
		t.Errorf("ProjectURL = %q, want org board URL", report.ProjectURL)
	}
}

// TestSyncSecondRunUnchanged verifies convergence: running the same plan
// twice leaves zero mutations on the second pass.
func TestSyncSecondRunUnchanged(t *testing.T) {
	fake := newFakeGitHub()
	fake.addProject("ProjX")
	engine := setupEngine(t, fake)

	file := planFile(
		plan.IssueSpec{Title: "Add logging", Labels: []string{"bug"}, EpicID: "E5"},
		plan.IssueSpec{Title: "Wire metrics", Labels: []string{"area/obs"}},
	)

	if _, err := engine.Sync(context.Background(), file); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}

	creates, labelAdds, itemAdds, statusSets := fake.issueCreates, fake.labelAdds, fake.itemAdds, fake.statusSets

	report, err := engine.Sync(context.Background(), file)
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}

	m := report.Metrics
	if m.Created != 0 || m.Labeled != 0 || m.ProjectAdded != 0 || m.StatusSet != 0 {
		t.Errorf("second run metrics = %+v, want all mutation counters zero", m)
	}
	if m.Unchanged != 2 || m.Matched != 2 {
		t.Errorf("second run metrics = %+v, want unchanged=2 matched=2", m)
	}

	if fake.issueCreates != creates || fake.labelAdds != labelAdds ||
		fake.itemAdds != itemAdds || fake.statusSets != statusSets {
		t.Error("second run performed remote mutations, want none")
	}
}

// TestSyncAddsOnlyMissingLabels verifies labels are additive: extra remote
// labels survive and only the missing desired ones are attached.
func TestSyncAddsOnlyMissingLabels(t *testing.T) {
	fake := newFakeGitHub()
	p := fake.addProject("ProjX")
	issue := fake.addIssue("Fix Bug", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "bug", "urgent")
	fake.addItem(issue.Number, p.ID, "To do")
	engine := setupEngine(t, fake)

	report, err := engine.Sync(context.Background(), planFile(
		plan.IssueSpec{Title: "Fix Bug", Labels: []string{"bug", "area/db"}},
	))
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	o := report.Outcomes[0]
	if o.Created {
		t.Error("outcome.Created = true, want false")
	}
	if o.MatchedNumber != issue.Number {
		t.Errorf("outcome.MatchedNumber = %d, want %d", o.MatchedNumber, issue.Number)
	}
	if len(o.LabelsAdded) != 1 || o.LabelsAdded[0] != "area/db" {
		t.Errorf("outcome.LabelsAdded = %v, want [area/db]", o.LabelsAdded)
	}

	var names []string
	for _, l := range fake.issues[0].Labels {
		names = append(names, l.Name)
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"bug", "urgent", "area/db"} {
		if !strings.Contains(joined, want) {
			t.Errorf("remote labels = %v, want to retain %q", names, want)
		}
	}
	if o.ProjectItemAdded || o.StatusSet != "" {
		t.Errorf("member issue mutated on board: added=%v status=%q", o.ProjectItemAdded, o.StatusSet)
	}
}

// TestSyncStatusPriorityOrder verifies the initial status picks the first
// priority name present among the options, not the first option.
func TestSyncStatusPriorityOrder(t *testing.T) {
	fake := newFakeGitHub()
	fake.addProject("ProjX")
	fake.statusOptions = []github.StatusOption{
		{ID: "B1", Name: "Backlog"},
		{ID: "T1", Name: "Todo"},
		{ID: "D1", Name: "Done"},
	}
	engine := setupEngine(t, fake)

	report, err := engine.Sync(context.Background(), planFile(
		plan.IssueSpec{Title: "Pick status", Labels: []string{"x"}},
	))
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if got := report.Outcomes[0].StatusSet; got != "Todo" {
		t.Errorf("StatusSet = %q, want %q", got, "Todo")
	}
}

// TestSyncNoUsableStatusOption verifies a board without a recognized initial
// status still gets its item, silently unstatused.
func TestSyncNoUsableStatusOption(t *testing.T) {
	fake := newFakeGitHub()
	fake.addProject("ProjX")
	fake.statusOptions = []github.StatusOption{{ID: "D1", Name: "Done"}}
	engine := setupEngine(t, fake)

	report, err := engine.Sync(context.Background(), planFile(
		plan.IssueSpec{Title: "No status", Labels: nil},
	))
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	o := report.Outcomes[0]
	if !o.ProjectItemAdded {
		t.Error("ProjectItemAdded = false, want true")
	}
	if o.StatusSet != "" || o.Error != "" {
		t.Errorf("outcome = %+v, want empty status and no error", o)
	}
	if fake.statusSets != 0 {
		t.Errorf("status sets = %d, want 0", fake.statusSets)
	}
}

// TestSyncCreatesProjectWithOwnerFallback verifies a missing board is
// created under the viewer when the owner rejects creation, and the board
// URL follows the user formula.
func TestSyncCreatesProjectWithOwnerFallback(t *testing.T) {
	fake := newFakeGitHub()
	fake.rejectOwnerCreate = true
	engine := setupEngine(t, fake)

	var warnings []string
	engine.OnWarning = func(msg string) { warnings = append(warnings, msg) }

	report, err := engine.Sync(context.Background(), planFile(
		plan.IssueSpec{Title: "First", Labels: nil},
	))
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if report.ProjectURL != "https://github.com/users/me/projects/1" {
		t.Errorf("ProjectURL = %q, want viewer board URL", report.ProjectURL)
	}
	if len(fake.projects) != 1 || fake.projects[0].OwnerType != "User" {
		t.Errorf("projects = %+v, want one viewer-owned board", fake.projects)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning about the owner create fallback")
	}
}

// TestSyncRacingItemAddIsIdempotent verifies an "already contains" rejection
// from a concurrent add counts as membership, not failure.
func TestSyncRacingItemAddIsIdempotent(t *testing.T) {
	fake := newFakeGitHub()
	p := fake.addProject("ProjX")
	issue := fake.addIssue("Racy", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	fake.addItem(issue.Number, p.ID, "To do")
	fake.hideItems = true
	fake.addAlreadyExists = true
	engine := setupEngine(t, fake)

	report, err := engine.Sync(context.Background(), planFile(
		plan.IssueSpec{Title: "Racy", Labels: nil},
	))
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	o := report.Outcomes[0]
	if o.Error != "" {
		t.Errorf("outcome.Error = %q, want none", o.Error)
	}
	if o.ProjectItemAdded {
		t.Error("ProjectItemAdded = true, want false for a lost race")
	}
	if o.StatusSet != "" {
		t.Errorf("StatusSet = %q, want empty on the lost-race path", o.StatusSet)
	}
}

// TestValidateNeverMutates verifies dry-run parity: validate reports the
// same matched/created/label deltas sync would apply, with zero writes.
func TestValidateNeverMutates(t *testing.T) {
	seed := func() *fakeGitHub {
		fake := newFakeGitHub()
		fake.addProject("ProjX")
		fake.addIssue("Fix Bug", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "bug")
		return fake
	}
	file := planFile(
		plan.IssueSpec{Title: "Fix Bug", Labels: []string{"bug", "urgent"}},
		plan.IssueSpec{Title: "New Task", Labels: []string{"area/db"}},
	)

	dryFake := seed()
	dry, err := setupEngine(t, dryFake).Validate(context.Background(), file)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if dryFake.issueCreates != 0 || dryFake.labelAdds != 0 || dryFake.itemAdds != 0 ||
		dryFake.statusSets != 0 || len(dryFake.labelCreates) != 0 {
		t.Error("validate performed remote mutations, want none")
	}
	if !dry.DryRun {
		t.Error("report.DryRun = false, want true")
	}

	wetFake := seed()
	wet, err := setupEngine(t, wetFake).Sync(context.Background(), file)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	for i := range dry.Outcomes {
		d, s := dry.Outcomes[i], wet.Outcomes[i]
		if d.Created != s.Created {
			t.Errorf("outcome %d: dry Created=%v, sync Created=%v", i, d.Created, s.Created)
		}
		if strings.Join(d.LabelsAdded, ",") != strings.Join(s.LabelsAdded, ",") {
			t.Errorf("outcome %d: dry LabelsAdded=%v, sync LabelsAdded=%v", i, d.LabelsAdded, s.LabelsAdded)
		}
		if !d.Created && d.MatchedNumber != s.MatchedNumber {
			t.Errorf("outcome %d: dry MatchedNumber=%d, sync MatchedNumber=%d", i, d.MatchedNumber, s.MatchedNumber)
		}
		if d.ProjectItemAdded != s.ProjectItemAdded {
			t.Errorf("outcome %d: dry ProjectItemAdded=%v, sync ProjectItemAdded=%v", i, d.ProjectItemAdded, s.ProjectItemAdded)
		}
	}
	if wetFake.issueCreates == 0 {
		t.Error("sync performed no creates, fixture is not exercising mutation")
	}
}

// TestValidateMissingProjectNotCreated verifies previews never create the
// board and still report would-be additions against it.
func TestValidateMissingProjectNotCreated(t *testing.T) {
	fake := newFakeGitHub()
	fake.addIssue("Existing", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	engine := setupEngine(t, fake)

	report, err := engine.Validate(context.Background(), planFile(
		plan.IssueSpec{Title: "Existing", Labels: nil},
	))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if len(fake.projects) != 0 {
		t.Errorf("projects = %d, want 0 (validate must not create)", len(fake.projects))
	}
	if report.ProjectURL != "" {
		t.Errorf("ProjectURL = %q, want empty for a missing board", report.ProjectURL)
	}
	if !report.Outcomes[0].ProjectItemAdded {
		t.Error("ProjectItemAdded = false, want true (item would be added after board creation)")
	}
	if report.Outcomes[0].StatusSet != "" {
		t.Errorf("StatusSet = %q, want empty (options unknowable)", report.Outcomes[0].StatusSet)
	}
}

// TestSyncValidationFailureIsIsolated verifies a bad spec consumes its
// outcome slot without stopping the rest of the batch.
func TestSyncValidationFailureIsIsolated(t *testing.T) {
	fake := newFakeGitHub()
	fake.addProject("ProjX")
	engine := setupEngine(t, fake)

	report, err := engine.Sync(context.Background(), planFile(
		plan.IssueSpec{Title: "   "},
		plan.IssueSpec{Title: "Valid one", EpicLabel: "epic/custom", EpicID: "E1"},
		plan.IssueSpec{Title: "Good", Labels: []string{"ok"}},
	))
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if report.Outcomes[0].Reason != reconcile.ReasonValidation {
		t.Errorf("outcome 0 reason = %q, want %q", report.Outcomes[0].Reason, reconcile.ReasonValidation)
	}
	if report.Outcomes[1].Reason != reconcile.ReasonValidation {
		t.Errorf("outcome 1 reason = %q, want %q", report.Outcomes[1].Reason, reconcile.ReasonValidation)
	}
	if !report.Outcomes[2].Created {
		t.Error("outcome 2 not created, want the valid spec processed")
	}
	if report.Metrics.Failed != 2 || report.Metrics.Created != 1 {
		t.Errorf("metrics = %+v, want failed=2 created=1", report.Metrics)
	}
}

// TestSyncRemoteFailureContinuesBatch verifies one spec's exhausted retries
// fail its outcome only; later specs still reconcile.
func TestSyncRemoteFailureContinuesBatch(t *testing.T) {
	fake := newFakeGitHub()
	p := fake.addProject("ProjX")
	broken := fake.addIssue("Broken", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	fake.addItem(broken.Number, p.ID, "To do")
	fake.failLabelAdd = true
	engine := setupEngine(t, fake)
	engine.Client = engine.Client.WithMaxAttempts(1)

	report, err := engine.Sync(context.Background(), planFile(
		plan.IssueSpec{Title: "Broken", Labels: []string{"new-label"}},
		plan.IssueSpec{Title: "Fine", Labels: nil},
	))
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if report.Outcomes[0].Reason != reconcile.ReasonGitHub || report.Outcomes[0].Error == "" {
		t.Errorf("outcome 0 = %+v, want github_error with detail", report.Outcomes[0])
	}
	if !report.Outcomes[1].Created {
		t.Error("outcome 1 not created, want batch to continue past the failure")
	}
	if report.Metrics.Failed != 1 {
		t.Errorf("metrics.Failed = %d, want 1", report.Metrics.Failed)
	}
}

// TestSyncDeadlineMarksRemainingNotAttempted verifies a mid-run cancellation
// produces a partial report with untouched specs flagged, not dropped.
func TestSyncDeadlineMarksRemainingNotAttempted(t *testing.T) {
	fake := newFakeGitHub()
	fake.addProject("ProjX")
	engine := setupEngine(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.OnMessage = func(msg string) {
		if strings.HasPrefix(msg, "Created issue") {
			cancel()
		}
	}

	report, err := engine.Sync(ctx, planFile(
		plan.IssueSpec{Title: "First", Labels: nil},
		plan.IssueSpec{Title: "Second", Labels: nil},
		plan.IssueSpec{Title: "Third", Labels: nil},
	))
	if err == nil {
		t.Fatal("Sync() error = nil, want context error")
	}

	if len(report.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(report.Outcomes))
	}
	if !report.Outcomes[0].Created {
		t.Error("outcome 0 not created, want the first spec processed")
	}
	for i := 1; i < 3; i++ {
		o := report.Outcomes[i]
		if !o.NotAttempted {
			t.Errorf("outcome %d NotAttempted = false, want true", i)
		}
		if o.Reason != reconcile.ReasonDeadline {
			t.Errorf("outcome %d reason = %q, want %q", i, o.Reason, reconcile.ReasonDeadline)
		}
	}
	if fake.issueCreates != 1 {
		t.Errorf("issue creates = %d, want 1 (run stopped after the first)", fake.issueCreates)
	}
}

// TestSyncDuplicateTitlesConverge verifies two specs with the same title
// create one issue: the second spec matches what the first created.
func TestSyncDuplicateTitlesConverge(t *testing.T) {
	fake := newFakeGitHub()
	fake.addProject("ProjX")
	engine := setupEngine(t, fake)

	report, err := engine.Sync(context.Background(), planFile(
		plan.IssueSpec{Title: "Dedup me", Labels: []string{"a"}},
		plan.IssueSpec{Title: "Dedup me", Labels: []string{"a"}},
	))
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if fake.issueCreates != 1 {
		t.Errorf("issue creates = %d, want 1", fake.issueCreates)
	}
	if !report.Outcomes[0].Created {
		t.Error("outcome 0 not created")
	}
	if report.Outcomes[1].Created {
		t.Error("outcome 1 created, want matched against the first")
	}
	if report.Outcomes[1].MatchedNumber != report.Outcomes[0].MatchedNumber {
		t.Errorf("outcome 1 matched #%d, want #%d", report.Outcomes[1].MatchedNumber, report.Outcomes[0].MatchedNumber)
	}
}

// TestSyncBoardWithoutStatusFieldDegrades verifies a board lacking a Status
// single-select still gets membership reconciled.
func TestSyncBoardWithoutStatusFieldDegrades(t *testing.T) {
	fake := newFakeGitHub()
	fake.addProject("ProjX")
	fake.statusOptions = nil
	engine := setupEngine(t, fake)

	report, err := engine.Sync(context.Background(), planFile(
		plan.IssueSpec{Title: "No field", Labels: nil},
	))
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	o := report.Outcomes[0]
	if !o.ProjectItemAdded {
		t.Error("ProjectItemAdded = false, want true despite missing status field")
	}
	if o.StatusSet != "" || o.Error != "" {
		t.Errorf("outcome = %+v, want no status and no error", o)
	}
}

// TestSyncEpicLabelApplied verifies the epic id is translated and attached
// like any other label.
func TestSyncEpicLabelApplied(t *testing.T) {
	fake := newFakeGitHub()
	fake.addProject("ProjX")
	engine := setupEngine(t, fake)

	report, err := engine.Sync(context.Background(), planFile(
		plan.IssueSpec{Title: "Epic tagged", Labels: []string{"area/db"}, EpicID: "E3"},
	))
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	joined := strings.Join(report.Outcomes[0].LabelsAdded, ",")
	if !strings.Contains(joined, "epic/E3-Postgres") {
		t.Errorf("LabelsAdded = %v, want to include epic/E3-Postgres", report.Outcomes[0].LabelsAdded)
	}
	if !strings.Contains(strings.Join(fake.labelCreates, ","), "epic/E3-Postgres") {
		t.Errorf("label creates = %v, want epic label created", fake.labelCreates)
	}
}
