// Package ticket defines the issue records an export is built from and the
// source interface the export pipeline reads them through.
package ticket

import (
	"context"
	"strings"
)

// SprintID names a sprint. Jira assigns numeric IDs but callers may pass any
// opaque string.
type SprintID string

// Normalize trims surrounding whitespace.
func (id SprintID) Normalize() SprintID {
	return SprintID(strings.TrimSpace(string(id)))
}

// Empty reports whether the ID is blank.
func (id SprintID) Empty() bool {
	return id.Normalize() == ""
}

func (id SprintID) String() string {
	return string(id)
}

// Issue is a top-level issue returned by the search, with its subtasks.
type Issue struct {
	Key       string    // e.g., "PROJ-123"
	Summary   string    // Short title/summary
	ParentKey string    // Empty when the issue has no parent
	Subtasks  []Subtask // In the order the API returned them
	Self      string    // REST self-reference URL
}

// Subtask is a child of the Issue that contains it.
type Subtask struct {
	Key     string
	Summary string
	Self    string
}

// Row is one flattened CSV record.
type Row struct {
	TicketID       string
	ParentTicketID string // Empty for top-level issues
	URL            string
	Title          string
}

// Sprint describes a sprint as reported by the agile API.
type Sprint struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"` // "future", "active", "closed"
}

// Source defines the two ordered reads an export needs.
type Source interface {
	// ListSprintIssueKeys returns the keys of the issues in a sprint.
	ListSprintIssueKeys(ctx context.Context, sprintID SprintID) ([]string, error)

	// SearchIssuesWithSubtasks returns the issues with the given keys plus any
	// issue whose parent is one of them. Empty keys return nil without a call.
	SearchIssuesWithSubtasks(ctx context.Context, keys []string) ([]Issue, error)

	// Name returns the name of the ticket system (e.g., "Jira").
	Name() string
}

// SprintSource is implemented by sources that can describe and discover sprints.
type SprintSource interface {
	Source
	GetSprint(ctx context.Context, sprintID SprintID) (*Sprint, error)
	ResolveSprint(ctx context.Context, project string) (*Sprint, error)
}

// ParseTicketID extracts the prefix and number from a ticket ID.
// e.g., "ENG-123" -> ("ENG", "123")
func ParseTicketID(id string) (prefix, number string) {
	for i, c := range id {
		if c == '-' {
			return id[:i], id[i+1:]
		}
	}
	return id, ""
}

// ValidKey reports whether id looks like an issue key: a project prefix of
// letters, digits or underscores starting with a letter, a dash, and a number.
// Keys are interpolated into JQL so anything else is rejected.
func ValidKey(id string) bool {
	prefix, number := ParseTicketID(id)
	if prefix == "" || number == "" {
		return false
	}
	for i, c := range prefix {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case i > 0 && (c >= '0' && c <= '9' || c == '_'):
		default:
			return false
		}
	}
	for _, c := range number {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
