package jira

import "github.com/drewfead/sprintexport/internal/ticket"

// searchFields are the issue fields the export reads.
var searchFields = []string{"summary", "parent", "subtasks"}

// sprintIssuesResponse is the relevant subset of GET /rest/agile/1.0/sprint/{id}/issue.
type sprintIssuesResponse struct {
	StartAt    int        `json:"startAt"`
	MaxResults int        `json:"maxResults"`
	Total      int        `json:"total"`
	Issues     []issueRef `json:"issues"`
}

// searchRequest is the POST body for /rest/api/3/search.
type searchRequest struct {
	JQL        string   `json:"jql"`
	Fields     []string `json:"fields"`
	Expand     []string `json:"expand,omitempty"`
	MaxResults int      `json:"maxResults"`
}

// searchResponse is the relevant subset of the search response.
type searchResponse struct {
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
	Total      int         `json:"total"`
	Issues     []jiraIssue `json:"issues"`
}

type jiraIssue struct {
	ID     string          `json:"id"`
	Key    string          `json:"key"`
	Self   string          `json:"self"`
	Fields jiraIssueFields `json:"fields"`
}

type jiraIssueFields struct {
	Summary  string      `json:"summary"`
	Parent   *issueRef   `json:"parent"`
	Subtasks []jiraIssue `json:"subtasks"`
}

type issueRef struct {
	Key string `json:"key"`
}

type boardList struct {
	Values []Board `json:"values"`
}

// Board is an agile board.
type Board struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type sprintList struct {
	Values []ticket.Sprint `json:"values"`
}

func (i jiraIssue) toTicket() ticket.Issue {
	out := ticket.Issue{
		Key:     i.Key,
		Summary: i.Fields.Summary,
		Self:    i.Self,
	}
	if i.Fields.Parent != nil {
		out.ParentKey = i.Fields.Parent.Key
	}
	if len(i.Fields.Subtasks) > 0 {
		out.Subtasks = make([]ticket.Subtask, 0, len(i.Fields.Subtasks))
		for _, s := range i.Fields.Subtasks {
			out.Subtasks = append(out.Subtasks, ticket.Subtask{
				Key:     s.Key,
				Summary: s.Fields.Summary,
				Self:    s.Self,
			})
		}
	}
	return out
}
