// Package github provides the REST and GraphQL client used for
// reconciliation: issues, labels, and Projects-v2 boards.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Client talks to the GitHub API for a single owner/repo pair.
type Client struct {
	Token       string
	Owner       string
	Repo        string
	BaseURL     string
	GraphQLURL  string
	MaxAttempts int
	HTTPClient  *http.Client

	// OnRetry, when set, observes each backoff wait: the attempt that
	// just failed and the delay before the next one.
	OnRetry func(attempt int, delay time.Duration)
}

// NewClient creates a new GitHub client.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:       token,
		Owner:       owner,
		Repo:        repo,
		BaseURL:     DefaultAPIEndpoint,
		GraphQLURL:  DefaultGraphQLEndpoint,
		MaxAttempts: DefaultMaxAttempts,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a copy of the client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c2 := *c
	c2.HTTPClient = httpClient
	return &c2
}

// WithBaseURL returns a copy with a custom REST base URL (for testing or
// GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	c2 := *c
	c2.BaseURL = baseURL
	return &c2
}

// WithGraphQLURL returns a copy with a custom GraphQL endpoint.
func (c *Client) WithGraphQLURL(graphqlURL string) *Client {
	c2 := *c
	c2.GraphQLURL = graphqlURL
	return &c2
}

// WithRepo returns a copy targeting a different owner/repo pair.
func (c *Client) WithRepo(owner, repo string) *Client {
	c2 := *c
	c2.Owner = owner
	c2.Repo = repo
	return &c2
}

// WithMaxAttempts returns a copy with a custom retry budget.
func (c *Client) WithMaxAttempts(n int) *Client {
	c2 := *c
	c2.MaxAttempts = n
	return &c2
}

// repoPath returns the "owner/repo" path segment.
func (c *Client) repoPath() string {
	return c.Owner + "/" + c.Repo
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path

	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}

	return u
}

// send performs a single HTTP attempt and classifies the outcome. Retryable
// conditions come back as rateLimitError or transportError; terminal non-2xx
// responses as APIError; 304 as ErrNotModified.
func (c *Client) send(ctx context.Context, method, urlStr string, jsonBody []byte, headers map[string]string) ([]byte, http.Header, error) {
	var reqBody io.Reader
	if jsonBody != nil {
		reqBody = bytes.NewReader(jsonBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &transportError{err: err}
	}

	const maxResponseSize = 50 * 1024 * 1024
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	_ = resp.Body.Close()
	if err != nil {
		return nil, nil, &transportError{err: err}
	}

	if resp.StatusCode == http.StatusNotModified {
		return nil, resp.Header, ErrNotModified
	}
	if retryableStatus(resp.StatusCode, resp.Header, respBody) {
		return nil, resp.Header, &rateLimitError{
			status:     resp.StatusCode,
			retryAfter: parseRetryAfter(resp.Header),
			message:    apiMessage(respBody),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.Header, &APIError{StatusCode: resp.StatusCode, Message: apiMessage(respBody)}
	}

	return respBody, resp.Header, nil
}

// doRequest performs an authenticated request with retry handling. The body
// is marshaled once and replayed on every attempt.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}, headers map[string]string) ([]byte, http.Header, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var respBody []byte
	var respHeader http.Header
	err := c.withRetry(ctx, func() error {
		var opErr error
		respBody, respHeader, opErr = c.send(ctx, method, urlStr, jsonBody, headers)
		return opErr
	})
	return respBody, respHeader, err
}

// linkNextPattern matches the "next" relation in GitHub Link headers.
var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// hasNextPage checks the Link header for a next page URL and returns it.
func hasNextPage(headers http.Header) (string, bool) {
	link := headers.Get("Link")
	if link == "" {
		return "", false
	}
	matches := linkNextPattern.FindStringSubmatch(link)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// FetchIssues retrieves all issues for the repository, following pagination.
// state can be "open", "closed", or "all". Pull requests are filtered out
// (GitHub returns them on the issues endpoint).
func (c *Client) FetchIssues(ctx context.Context, state string) ([]Issue, error) {
	return c.fetchIssuePages(ctx, state, time.Time{})
}

// FetchIssuesSince retrieves issues updated since the given time.
func (c *Client) FetchIssuesSince(ctx context.Context, state string, since time.Time) ([]Issue, error) {
	return c.fetchIssuePages(ctx, state, since)
}

func (c *Client) fetchIssuePages(ctx context.Context, state string, since time.Time) ([]Issue, error) {
	var allIssues []Issue
	page := 1

	for {
		select {
		case <-ctx.Done():
			return allIssues, ctx.Err()
		default:
		}

		params := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		if state != "" && state != "all" {
			params["state"] = state
		} else {
			params["state"] = "all"
		}
		if !since.IsZero() {
			params["since"] = since.UTC().Format(time.RFC3339)
		}

		urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", params)
		respBody, headers, err := c.doRequest(ctx, http.MethodGet, urlStr, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch issues: %w", err)
		}

		var issues []Issue
		if err := json.Unmarshal(respBody, &issues); err != nil {
			return nil, fmt.Errorf("failed to parse issues response: %w", err)
		}

		for i := range issues {
			if issues[i].PullRequest == nil {
				allIssues = append(allIssues, issues[i])
			}
		}

		if _, ok := hasNextPage(headers); !ok {
			break
		}
		page++

		if page > MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
	}

	return allIssues, nil
}

// ListIssuesPage retrieves a single page of issues with conditional-request
// support. ifNoneMatch, when non-empty, is forwarded as If-None-Match; an
// upstream 304 comes back with NotModified set and no issues.
func (c *Client) ListIssuesPage(ctx context.Context, page, perPage int, ifNoneMatch string) (*IssuesPage, error) {
	if perPage <= 0 || perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}

	params := map[string]string{
		"state":    "all",
		"per_page": strconv.Itoa(perPage),
		"page":     strconv.Itoa(page),
	}
	var headers map[string]string
	if ifNoneMatch != "" {
		headers = map[string]string{"If-None-Match": ifNoneMatch}
	}

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", params)
	respBody, respHeader, err := c.doRequest(ctx, http.MethodGet, urlStr, nil, headers)
	if err != nil {
		if errors.Is(err, ErrNotModified) {
			etag := ""
			if respHeader != nil {
				etag = respHeader.Get("ETag")
			}
			return &IssuesPage{ETag: etag, NotModified: true}, nil
		}
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}

	var issues []Issue
	if err := json.Unmarshal(respBody, &issues); err != nil {
		return nil, fmt.Errorf("failed to parse issues response: %w", err)
	}

	_, hasNext := hasNextPage(respHeader)
	result := &IssuesPage{
		ETag:    respHeader.Get("ETag"),
		HasNext: hasNext,
	}
	for i := range issues {
		if issues[i].PullRequest == nil {
			result.Issues = append(result.Issues, issues[i])
		}
	}
	return result, nil
}

// CreateIssue creates a new issue.
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (*Issue, error) {
	reqBody := map[string]interface{}{
		"title": title,
		"body":  body,
	}
	if len(labels) > 0 {
		reqBody["labels"] = labels
	}

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, reqBody, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse create response: %w", err)
	}

	return &issue, nil
}

// FetchIssue retrieves a single issue by number.
func (c *Client) FetchIssue(ctx context.Context, number int) (*Issue, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issue #%d: %w", number, err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse issue response: %w", err)
	}

	return &issue, nil
}

// ListLabels retrieves all labels defined on the repository.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var allLabels []Label
	page := 1

	for {
		params := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		urlStr := c.buildURL("/repos/"+c.repoPath()+"/labels", params)
		respBody, headers, err := c.doRequest(ctx, http.MethodGet, urlStr, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list labels: %w", err)
		}

		var labels []Label
		if err := json.Unmarshal(respBody, &labels); err != nil {
			return nil, fmt.Errorf("failed to parse labels response: %w", err)
		}
		allLabels = append(allLabels, labels...)

		if _, ok := hasNextPage(headers); !ok {
			break
		}
		page++

		if page > MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
	}

	return allLabels, nil
}

// CreateLabel creates a repository label. Creation racing another caller is
// idempotent: a 422 already_exists response counts as success.
func (c *Client) CreateLabel(ctx context.Context, name, color, description string) error {
	if color == "" {
		color = DefaultLabelColor
	}
	reqBody := map[string]interface{}{
		"name":        name,
		"color":       color,
		"description": description,
	}

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/labels", nil)
	_, _, err := c.doRequest(ctx, http.MethodPost, urlStr, reqBody, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity &&
			strings.Contains(apiErr.Message, "already_exists") {
			return nil
		}
		return fmt.Errorf("failed to create label %q: %w", name, err)
	}
	return nil
}

// ListIssueLabels retrieves the labels currently on an issue.
func (c *Client) ListIssueLabels(ctx context.Context, number int) ([]Label, error) {
	params := map[string]string{"per_page": strconv.Itoa(MaxPageSize)}
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number)+"/labels", params)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels on issue #%d: %w", number, err)
	}

	var labels []Label
	if err := json.Unmarshal(respBody, &labels); err != nil {
		return nil, fmt.Errorf("failed to parse issue labels response: %w", err)
	}
	return labels, nil
}

// AddIssueLabels attaches labels to an issue. The call is additive; labels
// already on the issue are unaffected.
func (c *Client) AddIssueLabels(ctx context.Context, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	reqBody := map[string]interface{}{"labels": labels}

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number)+"/labels", nil)
	if _, _, err := c.doRequest(ctx, http.MethodPost, urlStr, reqBody, nil); err != nil {
		return fmt.Errorf("failed to add labels to issue #%d: %w", number, err)
	}
	return nil
}
