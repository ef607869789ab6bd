package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// classifyGraphQLErrors maps the errors array of a 200 response onto the
// retry model. RATE_LIMITED and secondary-limit errors are retryable; the
// rest are terminal.
func classifyGraphQLErrors(errs []graphQLError) error {
	if len(errs) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	joined := strings.Join(msgs, "; ")

	for _, e := range errs {
		if e.Type == "RATE_LIMITED" || strings.Contains(strings.ToLower(e.Message), secondaryLimitSubstr) {
			return &rateLimitError{status: http.StatusOK, message: joined}
		}
	}
	return &APIError{StatusCode: http.StatusOK, Message: joined}
}

// doGraphQL executes a GraphQL query with retry handling and unmarshals the
// data payload into out.
func (c *Client) doGraphQL(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	jsonBody, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("failed to marshal GraphQL request: %w", err)
	}

	var data json.RawMessage
	err = c.withRetry(ctx, func() error {
		respBody, _, opErr := c.send(ctx, http.MethodPost, c.GraphQLURL, jsonBody, nil)
		if opErr != nil {
			return opErr
		}

		var envelope graphQLEnvelope
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return fmt.Errorf("failed to parse GraphQL response: %w", err)
		}
		if err := classifyGraphQLErrors(envelope.Errors); err != nil {
			return err
		}
		data = envelope.Data
		return nil
	})
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse GraphQL data: %w", err)
		}
	}
	return nil
}

const queryRepoOwner = `
query($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    owner { id login __typename }
  }
  viewer { id login }
}`

// RepoOwnerAndViewer resolves the repository owner node and the token's
// viewer node. Projects are created under the owner when possible, falling
// back to the viewer.
func (c *Client) RepoOwnerAndViewer(ctx context.Context) (*OwnerInfo, error) {
	var resp struct {
		Repository struct {
			Owner struct {
				ID       string `json:"id"`
				Login    string `json:"login"`
				TypeName string `json:"__typename"`
			} `json:"owner"`
		} `json:"repository"`
		Viewer struct {
			ID    string `json:"id"`
			Login string `json:"login"`
		} `json:"viewer"`
	}

	vars := map[string]interface{}{"owner": c.Owner, "name": c.Repo}
	if err := c.doGraphQL(ctx, queryRepoOwner, vars, &resp); err != nil {
		return nil, fmt.Errorf("failed to resolve repository owner: %w", err)
	}
	if resp.Repository.Owner.ID == "" {
		return nil, fmt.Errorf("repository %s not found or not accessible", c.repoPath())
	}

	return &OwnerInfo{
		OwnerID:     resp.Repository.Owner.ID,
		OwnerType:   resp.Repository.Owner.TypeName,
		OwnerLogin:  resp.Repository.Owner.Login,
		ViewerID:    resp.Viewer.ID,
		ViewerLogin: resp.Viewer.Login,
	}, nil
}

const queryListProjects = `
query($nodeId: ID!) {
  node(id: $nodeId) {
    ... on Organization {
      projectsV2(first: 100) { nodes { id number title } }
    }
    ... on User {
      projectsV2(first: 100) { nodes { id number title } }
    }
  }
}`

// ListProjects returns the Projects-v2 boards owned by the given node.
func (c *Client) ListProjects(ctx context.Context, ownerNodeID string) ([]ProjectRef, error) {
	var resp struct {
		Node struct {
			ProjectsV2 struct {
				Nodes []ProjectRef `json:"nodes"`
			} `json:"projectsV2"`
		} `json:"node"`
	}

	vars := map[string]interface{}{"nodeId": ownerNodeID}
	if err := c.doGraphQL(ctx, queryListProjects, vars, &resp); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return resp.Node.ProjectsV2.Nodes, nil
}

const mutationCreateProject = `
mutation($ownerId: ID!, $title: String!) {
  createProjectV2(input: {ownerId: $ownerId, title: $title}) {
    projectV2 { id number title }
  }
}`

// CreateProject creates a Projects-v2 board under the given owner node.
func (c *Client) CreateProject(ctx context.Context, ownerID, title string) (*ProjectRef, error) {
	var resp struct {
		CreateProjectV2 struct {
			ProjectV2 ProjectRef `json:"projectV2"`
		} `json:"createProjectV2"`
	}

	vars := map[string]interface{}{"ownerId": ownerID, "title": title}
	if err := c.doGraphQL(ctx, mutationCreateProject, vars, &resp); err != nil {
		return nil, fmt.Errorf("failed to create project %q: %w", title, err)
	}
	if resp.CreateProjectV2.ProjectV2.ID == "" {
		return nil, fmt.Errorf("create project %q returned no project", title)
	}
	return &resp.CreateProjectV2.ProjectV2, nil
}

const queryProjectMeta = `
query($projectId: ID!) {
  node(id: $projectId) {
    ... on ProjectV2 {
      number
      title
      owner {
        ... on Organization { login __typename }
        ... on User { login __typename }
      }
    }
  }
}`

// ProjectMeta reads the owner type, owner login, and number of a project so
// its board URL can be computed. A project created under the viewer fallback
// has a different owner than the repository, which this resolves.
func (c *Client) ProjectMeta(ctx context.Context, projectID string) (ownerType, ownerLogin string, number int, err error) {
	var resp struct {
		Node struct {
			Number int    `json:"number"`
			Title  string `json:"title"`
			Owner  struct {
				Login    string `json:"login"`
				TypeName string `json:"__typename"`
			} `json:"owner"`
		} `json:"node"`
	}

	vars := map[string]interface{}{"projectId": projectID}
	if err := c.doGraphQL(ctx, queryProjectMeta, vars, &resp); err != nil {
		return "", "", 0, fmt.Errorf("failed to read project metadata: %w", err)
	}
	return resp.Node.Owner.TypeName, resp.Node.Owner.Login, resp.Node.Number, nil
}

const queryStatusField = `
query($projectId: ID!) {
  node(id: $projectId) {
    ... on ProjectV2 {
      field(name: "Status") {
        ... on ProjectV2SingleSelectField {
          id
          options { id name }
        }
      }
    }
  }
}`

// StatusField reads the single-select Status field of a project. A project
// without one returns an empty field ID and no options.
func (c *Client) StatusField(ctx context.Context, projectID string) (string, []StatusOption, error) {
	var resp struct {
		Node struct {
			Field struct {
				ID      string         `json:"id"`
				Options []StatusOption `json:"options"`
			} `json:"field"`
		} `json:"node"`
	}

	vars := map[string]interface{}{"projectId": projectID}
	if err := c.doGraphQL(ctx, queryStatusField, vars, &resp); err != nil {
		return "", nil, fmt.Errorf("failed to read status field: %w", err)
	}
	return resp.Node.Field.ID, resp.Node.Field.Options, nil
}

const queryIssueProjectItems = `
query($owner: String!, $name: String!, $number: Int!) {
  repository(owner: $owner, name: $name) {
    issue(number: $number) {
      projectItems(first: 50) {
        nodes {
          id
          project { id }
          fieldValueByName(name: "Status") {
            ... on ProjectV2ItemFieldSingleSelectValue { name }
          }
        }
      }
    }
  }
}`

// ProjectItemForIssue finds the project item linking an issue to the given
// project. It returns the item ID and current status name, or empty strings
// when the issue is not on the board.
func (c *Client) ProjectItemForIssue(ctx context.Context, issueNumber int, projectID string) (string, string, error) {
	var resp struct {
		Repository struct {
			Issue struct {
				ProjectItems struct {
					Nodes []struct {
						ID      string `json:"id"`
						Project struct {
							ID string `json:"id"`
						} `json:"project"`
						FieldValueByName struct {
							Name string `json:"name"`
						} `json:"fieldValueByName"`
					} `json:"nodes"`
				} `json:"projectItems"`
			} `json:"issue"`
		} `json:"repository"`
	}

	vars := map[string]interface{}{"owner": c.Owner, "name": c.Repo, "number": issueNumber}
	if err := c.doGraphQL(ctx, queryIssueProjectItems, vars, &resp); err != nil {
		return "", "", fmt.Errorf("failed to look up project items for issue #%d: %w", issueNumber, err)
	}

	for _, node := range resp.Repository.Issue.ProjectItems.Nodes {
		if node.Project.ID == projectID {
			return node.ID, node.FieldValueByName.Name, nil
		}
	}
	return "", "", nil
}

const mutationAddProjectItem = `
mutation($projectId: ID!, $contentId: ID!) {
  addProjectV2ItemById(input: {projectId: $projectId, contentId: $contentId}) {
    item { id }
  }
}`

// AddProjectItem adds an issue to a project board. An "already exists"
// rejection from the API counts as the item being present: already is true
// and no item ID is returned for that case.
func (c *Client) AddProjectItem(ctx context.Context, projectID, contentID string) (itemID string, already bool, err error) {
	var resp struct {
		AddProjectV2ItemByID struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemById"`
	}

	vars := map[string]interface{}{"projectId": projectID, "contentId": contentID}
	if err := c.doGraphQL(ctx, mutationAddProjectItem, vars, &resp); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already") {
			return "", true, nil
		}
		return "", false, fmt.Errorf("failed to add item to project: %w", err)
	}
	return resp.AddProjectV2ItemByID.Item.ID, false, nil
}

const mutationSetItemStatus = `
mutation($projectId: ID!, $itemId: ID!, $fieldId: ID!, $optionId: String!) {
  updateProjectV2ItemFieldValue(input: {
    projectId: $projectId,
    itemId: $itemId,
    fieldId: $fieldId,
    value: { singleSelectOptionId: $optionId }
  }) {
    projectV2Item { id }
  }
}`

// SetItemStatus sets the Status single-select value on a project item.
func (c *Client) SetItemStatus(ctx context.Context, projectID, itemID, fieldID, optionID string) error {
	vars := map[string]interface{}{
		"projectId": projectID,
		"itemId":    itemID,
		"fieldId":   fieldID,
		"optionId":  optionID,
	}
	if err := c.doGraphQL(ctx, mutationSetItemStatus, vars, nil); err != nil {
		return fmt.Errorf("failed to set item status: %w", err)
	}
	return nil
}
