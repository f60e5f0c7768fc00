package csvexport

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewfead/sprintexport/internal/ticket"
)

const site = "https://x.atlassian.net"

func self(id string) string {
	return site + "/rest/api/3/issue/" + id
}

func sampleIssues() []ticket.Issue {
	return []ticket.Issue{
		{Key: "A-1", Summary: "Fix bug", Self: self("10001")},
		{Key: "A-2", Summary: "Add feature", Self: self("10002"), Subtasks: []ticket.Subtask{
			{Key: "A-3", Summary: "Add tests", Self: self("10003")},
		}},
	}
}

func TestBrowseURL(t *testing.T) {
	assert.Equal(t, "https://x.atlassian.net/browse/PROJ-1",
		BrowseURL("https://x.atlassian.net/rest/api/3/issue/10001", "PROJ-1", ""))

	t.Run("FirstMarkerWins", func(t *testing.T) {
		got := BrowseURL("https://h/jira/rest/agile/1.0/rest/x", "K-9", "")
		assert.Equal(t, "https://h/jira/browse/K-9", got)
	})

	t.Run("NoMarkerFallsBackToBase", func(t *testing.T) {
		assert.Equal(t, "https://base.example/browse/K-1", BrowseURL("", "K-1", "https://base.example/"))
		assert.Equal(t, "/browse/K-1", BrowseURL("", "K-1", ""))
	})
}

func TestFlattenOrderAndParents(t *testing.T) {
	issues := []ticket.Issue{
		{Key: "P-1", Self: self("1"), Subtasks: []ticket.Subtask{
			{Key: "P-4", Self: self("4")},
			{Key: "P-3", Self: self("3")},
		}},
		{Key: "P-2", Self: self("2")},
		{Key: "P-5", Self: self("5"), Subtasks: []ticket.Subtask{{Key: "P-6", Self: self("6")}}},
	}

	rows := Flatten(issues, "")

	var keys, parents []string
	for _, r := range rows {
		keys = append(keys, r.TicketID)
		parents = append(parents, r.ParentTicketID)
	}
	assert.Equal(t, []string{"P-1", "P-4", "P-3", "P-2", "P-5", "P-6"}, keys)
	assert.Equal(t, []string{"", "P-1", "P-1", "", "", "P-5"}, parents)
}

func TestFlattenOrphanHasNoParentColumn(t *testing.T) {
	rows := Flatten([]ticket.Issue{{Key: "B-5", ParentKey: "B-1", Summary: "orphan", Self: self("5")}}, "")
	require.Len(t, rows, 1)
	assert.Equal(t, "B-5", rows[0].TicketID)
	assert.Empty(t, rows[0].ParentTicketID)
}

func TestFlattenRowCount(t *testing.T) {
	for n := 0; n < 5; n++ {
		var issues []ticket.Issue
		want := 0
		for i := 0; i < n; i++ {
			issue := ticket.Issue{Key: "K-" + strings.Repeat("1", i+1)}
			for j := 0; j < i; j++ {
				issue.Subtasks = append(issue.Subtasks, ticket.Subtask{Key: "S-1"})
			}
			want += 1 + i
			issues = append(issues, issue)
		}
		assert.Len(t, Flatten(issues, ""), want)
	}
}

func TestRenderEmpty(t *testing.T) {
	assert.Equal(t, "Ticket ID,Parent Ticket ID,Ticket URL,Ticket Title\n", Render(nil, QuoteAll))
	assert.Equal(t, "Ticket ID,Parent Ticket ID,Ticket URL,Ticket Title\n", Render(nil, QuoteText))
}

func TestRenderScenario(t *testing.T) {
	rows := Flatten(sampleIssues(), "")

	t.Run("QuoteAll", func(t *testing.T) {
		want := "Ticket ID,Parent Ticket ID,Ticket URL,Ticket Title\n" +
			`"A-1","","https://x.atlassian.net/browse/A-1","Fix bug"` + "\n" +
			`"A-2","","https://x.atlassian.net/browse/A-2","Add feature"` + "\n" +
			`"A-3","A-2","https://x.atlassian.net/browse/A-3","Add tests"` + "\n"
		assert.Equal(t, want, Render(rows, QuoteAll))
	})

	t.Run("QuoteText", func(t *testing.T) {
		want := "Ticket ID,Parent Ticket ID,Ticket URL,Ticket Title\n" +
			`A-1,,https://x.atlassian.net/browse/A-1,"Fix bug"` + "\n" +
			`A-2,,https://x.atlassian.net/browse/A-2,"Add feature"` + "\n" +
			`A-3,A-2,https://x.atlassian.net/browse/A-3,"Add tests"` + "\n"
		assert.Equal(t, want, Render(rows, QuoteText))
	})

	t.Run("PoliciesParseIdentically", func(t *testing.T) {
		all := readAll(t, Render(rows, QuoteAll))
		text := readAll(t, Render(rows, QuoteText))
		assert.Equal(t, all, text)
		assert.Equal(t, []string{"A-3", "A-2", "https://x.atlassian.net/browse/A-3", "Add tests"}, all[3])
	})
}

func TestQuoteDoubling(t *testing.T) {
	rows := []ticket.Row{{TicketID: "Q-1", Title: `He said "hi"`}}

	out := Render(rows, QuoteText)
	assert.Contains(t, out, `"He said ""hi"""`)

	for _, policy := range []QuotePolicy{QuoteAll, QuoteText} {
		records := readAll(t, Render(rows, policy))
		require.Len(t, records, 2)
		assert.Equal(t, `He said "hi"`, records[1][3])
	}
}

func TestQuoteTextEscapesSpecialIdentifiers(t *testing.T) {
	rows := []ticket.Row{{TicketID: "Q-1", URL: "https://h/browse/Q-1?a=1,2", Title: "multi\nline, title"}}

	records := readAll(t, Render(rows, QuoteText))
	require.Len(t, records, 2)
	assert.Equal(t, "https://h/browse/Q-1?a=1,2", records[1][2])
	assert.Equal(t, "multi\nline, title", records[1][3])
}

func TestParseQuotePolicy(t *testing.T) {
	p, err := ParseQuotePolicy("")
	require.NoError(t, err)
	assert.Equal(t, QuoteAll, p)

	p, err = ParseQuotePolicy("TEXT")
	require.NoError(t, err)
	assert.Equal(t, QuoteText, p)
	assert.Equal(t, "text", p.String())

	_, err = ParseQuotePolicy("some")
	assert.Error(t, err)
}

func readAll(t *testing.T, doc string) [][]string {
	t.Helper()
	r := csv.NewReader(strings.NewReader(doc))
	records, err := r.ReadAll()
	require.NoError(t, err)
	return records
}
