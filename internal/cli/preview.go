package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/drewfead/sprintexport/internal/ticket"
)

// previewHeaders mirror the CSV header.
var previewHeaders = []string{"Ticket ID", "Parent Ticket ID", "Ticket URL", "Ticket Title"}

// RenderTable draws rows as a bordered terminal table. Subtask rows are
// indented under their parent.
func RenderTable(rows []ticket.Row) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	subtaskStyle := cellStyle.Foreground(lipgloss.Color("#565f89"))

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))).
		Headers(previewHeaders...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(rows) && rows[row].ParentTicketID != "":
				return subtaskStyle
			default:
				return cellStyle
			}
		})

	for _, r := range rows {
		id := r.TicketID
		if r.ParentTicketID != "" {
			id = "└ " + id
		}
		t.Row(id, r.ParentTicketID, r.URL, r.Title)
	}
	return t.String()
}

// Markdown returns rows as a GitHub-flavoured markdown table with linked keys.
func Markdown(title string, rows []ticket.Row) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	b.WriteString("| " + strings.Join(previewHeaders, " | ") + " |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "| [%s](%s) | %s | %s | %s |\n",
			mdEscape(r.TicketID), mdLinkTarget(r.URL), mdEscape(r.ParentTicketID), mdEscape(r.URL), mdEscape(r.Title))
	}
	if len(rows) == 0 {
		b.WriteString("\n_No issues in this sprint._\n")
	}
	return b.String()
}

// RenderMarkdown renders Markdown(title, rows) for the terminal, falling back
// to the raw markdown if glamour fails.
func RenderMarkdown(title string, rows []ticket.Row, width int) string {
	md := Markdown(title, rows)
	if width < 40 {
		width = 40
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

var linkTargetReplacer = strings.NewReplacer(" ", "%20", "<", "%3C", ">", "%3E", "|", "%7C")

// mdLinkTarget wraps u in angle brackets so parentheses and spaces stay
// inside the link.
func mdLinkTarget(u string) string {
	return "<" + linkTargetReplacer.Replace(u) + ">"
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
