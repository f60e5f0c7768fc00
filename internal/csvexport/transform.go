// Package csvexport flattens sprint issues into rows and renders them as CSV.
package csvexport

import (
	"strings"

	"github.com/drewfead/sprintexport/internal/ticket"
)

// apiMarker is where a REST self-reference stops being the site URL.
const apiMarker = "/rest"

// Flatten turns issues into rows: each issue, then its subtasks, in input order.
// base is used for URLs whose self-reference carries no API path.
func Flatten(issues []ticket.Issue, base string) []ticket.Row {
	n := len(issues)
	for _, issue := range issues {
		n += len(issue.Subtasks)
	}

	rows := make([]ticket.Row, 0, n)
	for _, issue := range issues {
		rows = append(rows, ticket.Row{
			TicketID: issue.Key,
			URL:      BrowseURL(issue.Self, issue.Key, base),
			Title:    issue.Summary,
		})
		for _, sub := range issue.Subtasks {
			rows = append(rows, ticket.Row{
				TicketID:       sub.Key,
				ParentTicketID: issue.Key,
				URL:            BrowseURL(sub.Self, sub.Key, base),
				Title:          sub.Summary,
			})
		}
	}
	return rows
}

// BrowseURL derives the browsable URL of an issue from its REST self-reference:
// everything before the first "/rest", then "/browse/<key>".
//
//	https://x.atlassian.net/rest/api/3/issue/10001 + PROJ-1 -> https://x.atlassian.net/browse/PROJ-1
func BrowseURL(self, key, base string) string {
	prefix := strings.TrimRight(base, "/")
	if i := strings.Index(self, apiMarker); i >= 0 {
		prefix = self[:i]
	}
	return prefix + "/browse/" + key
}
