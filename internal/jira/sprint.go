package jira

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/drewfead/sprintexport/internal/logging"
	"github.com/drewfead/sprintexport/internal/ticket"
)

// ListSprintIssueKeys returns the keys of the issues in a sprint, in the
// order the agile API lists them. At most MaxResults keys are returned.
func (c *Client) ListSprintIssueKeys(ctx context.Context, sprintID ticket.SprintID) ([]string, error) {
	id := sprintID.Normalize()
	if id == "" {
		return nil, fmt.Errorf("sprint ID cannot be empty")
	}

	query := url.Values{}
	query.Set("fields", "key")
	query.Set("maxResults", strconv.Itoa(c.config.MaxResults))

	var resp sprintIssuesResponse
	path := fmt.Sprintf("/rest/agile/1.0/sprint/%s/issue", url.PathEscape(string(id)))
	if err := c.get(ctx, CallListSprintIssueKeys, path, query, &resp); err != nil {
		return nil, err
	}
	if resp.Issues == nil {
		return nil, malformed(CallListSprintIssueKeys, "missing issues array")
	}

	keys := make([]string, 0, len(resp.Issues))
	for i, issue := range resp.Issues {
		if issue.Key == "" {
			return nil, malformed(CallListSprintIssueKeys, "issue %d has no key", i)
		}
		keys = append(keys, issue.Key)
	}

	if resp.Total > len(keys) {
		logging.Warn("sprint issue list truncated",
			"sprint", string(id),
			"returned", len(keys),
			"total", resp.Total,
		)
	}
	logging.Debug("listed sprint issues", "sprint", string(id), "count", len(keys))
	return keys, nil
}

// SearchIssuesWithSubtasks fetches the issues with the given keys and every
// issue whose parent is one of them, in one JQL search. Issues that come back
// both as results and nested under another result are only kept nested.
// Empty keys return nil without calling the API.
func (c *Client) SearchIssuesWithSubtasks(ctx context.Context, keys []string) ([]ticket.Issue, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	jql, err := BuildJQL(keys)
	if err != nil {
		return nil, &UpstreamError{Call: CallSearchIssuesWithSubtasks, Err: err}
	}

	req := searchRequest{
		JQL:        jql,
		Fields:     searchFields,
		Expand:     []string{"subtasks"},
		MaxResults: c.config.MaxResults,
	}

	var resp searchResponse
	if err := c.post(ctx, CallSearchIssuesWithSubtasks, "/rest/api/3/search", req, &resp); err != nil {
		return nil, err
	}
	if resp.Issues == nil {
		return nil, malformed(CallSearchIssuesWithSubtasks, "missing issues array")
	}

	if resp.Total > len(resp.Issues) {
		logging.Warn("issue search truncated",
			"returned", len(resp.Issues),
			"total", resp.Total,
			"max_results", c.config.MaxResults,
		)
	}

	nested := make(map[string]struct{})
	for _, issue := range resp.Issues {
		for _, sub := range issue.Fields.Subtasks {
			nested[sub.Key] = struct{}{}
		}
	}

	issues := make([]ticket.Issue, 0, len(resp.Issues))
	orphans := 0
	for i, issue := range resp.Issues {
		if issue.Key == "" {
			return nil, malformed(CallSearchIssuesWithSubtasks, "issue %d has no key", i)
		}
		if _, ok := nested[issue.Key]; ok {
			continue
		}
		t := issue.toTicket()
		if t.ParentKey != "" {
			orphans++
		}
		issues = append(issues, t)
	}

	logging.Debug("searched sprint issues",
		"keys", len(keys),
		"results", len(resp.Issues),
		"top_level", len(issues),
		"orphans", orphans,
	)
	return issues, nil
}

// BuildJQL selects the given issues and their children:
// key IN (A-1,A-2) OR parent IN (A-1,A-2)
func BuildJQL(keys []string) (string, error) {
	for _, k := range keys {
		if !ticket.ValidKey(k) {
			return "", fmt.Errorf("invalid issue key %q", k)
		}
	}
	list := strings.Join(keys, ",")
	return fmt.Sprintf("key IN (%s) OR parent IN (%s)", list, list), nil
}

// GetSprint returns the sprint's name and state.
func (c *Client) GetSprint(ctx context.Context, sprintID ticket.SprintID) (*ticket.Sprint, error) {
	id := sprintID.Normalize()
	if id == "" {
		return nil, fmt.Errorf("sprint ID cannot be empty")
	}

	var sprint ticket.Sprint
	path := fmt.Sprintf("/rest/agile/1.0/sprint/%s", url.PathEscape(string(id)))
	if err := c.get(ctx, CallGetSprint, path, nil, &sprint); err != nil {
		return nil, err
	}
	return &sprint, nil
}

// ListBoards returns the agile boards of a project (key or numeric ID).
func (c *Client) ListBoards(ctx context.Context, project string) ([]Board, error) {
	query := url.Values{}
	query.Set("projectKeyOrId", project)

	var resp boardList
	if err := c.get(ctx, CallListBoards, "/rest/agile/1.0/board", query, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// ListSprints returns a board's sprints, optionally filtered by state.
func (c *Client) ListSprints(ctx context.Context, boardID int, states ...string) ([]ticket.Sprint, error) {
	query := url.Values{}
	if len(states) > 0 {
		query.Set("state", strings.Join(states, ","))
	}

	var resp sprintList
	path := fmt.Sprintf("/rest/agile/1.0/board/%d/sprint", boardID)
	if err := c.get(ctx, CallListSprints, path, query, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// ResolveSprint picks the sprint to export for a project: on the project's
// first board, the first future sprint, else the first active one.
func (c *Client) ResolveSprint(ctx context.Context, project string) (*ticket.Sprint, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return nil, fmt.Errorf("project cannot be empty")
	}

	boards, err := c.ListBoards(ctx, project)
	if err != nil {
		return nil, err
	}
	if len(boards) == 0 {
		return nil, fmt.Errorf("project %s has no boards: %w", project, ErrNoSprint)
	}
	board := boards[0]

	sprints, err := c.ListSprints(ctx, board.ID, "active", "future")
	if err != nil {
		return nil, err
	}

	sprint := pickSprint(sprints)
	if sprint == nil {
		return nil, fmt.Errorf("project %s (board %d): %w", project, board.ID, ErrNoSprint)
	}
	logging.Debug("resolved sprint", "project", project, "board", board.ID, "sprint", sprint.ID, "state", sprint.State)
	return sprint, nil
}

func pickSprint(sprints []ticket.Sprint) *ticket.Sprint {
	for _, state := range []string{"future", "active"} {
		for i := range sprints {
			if sprints[i].State == state {
				s := sprints[i]
				return &s
			}
		}
	}
	return nil
}
