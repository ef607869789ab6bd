// Package server exposes reconciliation over HTTP: health, issue listing,
// and the validate/sync endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"

	"github.com/boardsync/boardsync/internal/config"
	"github.com/boardsync/boardsync/internal/github"
	"github.com/boardsync/boardsync/internal/plan"
	"github.com/boardsync/boardsync/internal/reconcile"
	"github.com/boardsync/boardsync/internal/telemetry"
)

// Server handles HTTP reconciliation requests.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	mux        *http.ServeMux
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a server bound to the given configuration. Requests may
// override the configured owner, repo, and project title per call.
func NewServer(cfg *config.Config, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/issues", s.handleIssues)
	s.mux.HandleFunc("/validate", s.handleValidate)
	s.mux.HandleFunc("/sync", s.handleSync)

	s.handler = s.withRequestID(s.withAccessLog(s.mux))
	return s
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.handler,
		ReadTimeout: 30 * time.Second,
		// A sync run spans many remote calls; the write timeout must
		// outlast a full reconciliation.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// resolveRepo fills missing owner/repo from server configuration.
func (s *Server) resolveRepo(owner, repo string) (string, string) {
	if owner == "" {
		owner = s.cfg.Owner
	}
	if repo == "" {
		repo = s.cfg.Repo
	}
	return owner, repo
}

// clientFor builds a request-scoped GitHub client targeting the given repo.
func (s *Server) clientFor(owner, repo string) *github.Client {
	return telemetry.WrapClient(s.cfg.Client().WithRepo(owner, repo))
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// handleHealth handles GET /health for load balancer checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// reconcileResponse is the report, with the run error attached when the run
// aborted early.
type reconcileResponse struct {
	*reconcile.Report
	Error string `json:"error,omitempty"`
}

// handleValidate handles POST /validate: a dry-run reconciliation that never
// creates the board and mutates nothing.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	s.handleReconcile(w, r, "server.validate", true)
}

// handleSync handles POST /sync: full reconciliation, honoring the body's
// dry_run flag.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.handleReconcile(w, r, "server.sync", false)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request, spanName string, validateOnly bool) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer func() { _ = r.Body.Close() }()

	var f plan.File
	if err := json.Unmarshal(body, &f); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	f.Owner, f.Repo = s.resolveRepo(f.Owner, f.Repo)
	if f.ProjectTitle == "" {
		f.ProjectTitle = s.cfg.ProjectTitle
	}
	if f.Owner == "" || f.Repo == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "owner and repo are required (request body or server configuration)")
		return
	}

	ctx, span := telemetry.Tracer("").Start(r.Context(), spanName)
	defer span.End()
	logger := zerolog.Ctx(ctx)

	engine := reconcile.NewEngine(s.clientFor(f.Owner, f.Repo))
	engine.OnMessage = func(msg string) { logger.Info().Msg(msg) }
	engine.OnWarning = func(msg string) { logger.Warn().Msg(msg) }

	started := time.Now()
	var report *reconcile.Report
	var runErr error
	if validateOnly {
		report, runErr = engine.Validate(ctx, &f)
	} else {
		report, runErr = engine.Sync(ctx, &f)
	}
	telemetry.RecordReconcileDuration(ctx, report.DryRun, time.Since(started))

	status := http.StatusOK
	resp := reconcileResponse{Report: report}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		resp.Error = runErr.Error()
		status = http.StatusBadGateway
		if errors.Is(runErr, context.DeadlineExceeded) || errors.Is(runErr, context.Canceled) {
			status = http.StatusGatewayTimeout
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// IssueRecord is one issue in a listing, optionally enriched with its
// project item and status.
type IssueRecord struct {
	Number        int        `json:"number"`
	Title         string     `json:"title"`
	State         string     `json:"state,omitempty"`
	URL           string     `json:"url,omitempty"`
	Labels        []string   `json:"labels,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	ProjectItemID string     `json:"project_item_id,omitempty"`
	Status        string     `json:"status,omitempty"`
}

// IssuesResponse is the envelope for GET /issues. NextPage is zero on the
// last page.
type IssuesResponse struct {
	Owner    string        `json:"owner"`
	Repo     string        `json:"repo"`
	Page     int           `json:"page"`
	PerPage  int           `json:"per_page"`
	HasNext  bool          `json:"has_next"`
	NextPage int           `json:"next_page,omitempty"`
	Issues   []IssueRecord `json:"issues"`
}

// handleIssues handles GET /issues: a paged remote listing with conditional
// request pass-through and optional project enrichment.
func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET")
		return
	}

	q := r.URL.Query()
	owner, repo := s.resolveRepo(q.Get("owner"), q.Get("repo"))
	if owner == "" || repo == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "owner and repo are required (query or server configuration)")
		return
	}

	page := intParam(q.Get("page"), 1)
	perPage := intParam(q.Get("per_page"), 30)

	ctx := r.Context()
	client := s.clientFor(owner, repo)

	result, err := client.ListIssuesPage(ctx, page, perPage, r.Header.Get("If-None-Match"))
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("failed to list issues: %v", err))
		return
	}
	if result.NotModified {
		if result.ETag != "" {
			w.Header().Set("ETag", result.ETag)
		}
		w.WriteHeader(http.StatusNotModified)
		return
	}

	records := make([]IssueRecord, len(result.Issues))
	for i := range result.Issues {
		issue := &result.Issues[i]
		records[i] = IssueRecord{
			Number:    issue.Number,
			Title:     issue.Title,
			State:     issue.State,
			URL:       issue.HTMLURL,
			Labels:    github.LabelNames(issue),
			CreatedAt: issue.CreatedAt,
			UpdatedAt: issue.UpdatedAt,
		}
	}

	title := q.Get("project_title")
	if title == "" {
		title = s.cfg.ProjectTitle
	}
	if title != "" && len(records) > 0 {
		if err := enrichWithProject(ctx, client, title, records); err != nil {
			s.writeError(w, http.StatusBadGateway, fmt.Sprintf("failed to enrich issues: %v", err))
			return
		}
	}

	if result.ETag != "" {
		w.Header().Set("ETag", result.ETag)
	}
	next := 0
	if result.HasNext {
		next = page + 1
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(IssuesResponse{
		Owner:    owner,
		Repo:     repo,
		Page:     page,
		PerPage:  perPage,
		HasNext:  result.HasNext,
		NextPage: next,
		Issues:   records,
	})
}

// enrichWithProject resolves the board by title and fills the item id and
// status for every listed issue. A title that does not resolve leaves the
// listing unenriched rather than failing it.
func enrichWithProject(ctx context.Context, client *github.Client, title string, records []IssueRecord) error {
	ref, err := client.ResolveProjectByTitle(ctx, title)
	if err != nil {
		return err
	}
	if ref == nil {
		return nil
	}

	numbers := make([]int, len(records))
	for i := range records {
		numbers[i] = records[i].Number
	}
	items, err := client.ProjectItemsForIssues(ctx, ref.ID, numbers)
	if err != nil {
		return err
	}
	for i := range records {
		if item, ok := items[records[i].Number]; ok {
			records[i].ProjectItemID = item.ItemID
			records[i].Status = item.Status
		}
	}
	return nil
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
