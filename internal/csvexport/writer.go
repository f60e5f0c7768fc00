package csvexport

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/drewfead/sprintexport/internal/ticket"
)

// Header is the fixed first line of every export.
const Header = "Ticket ID,Parent Ticket ID,Ticket URL,Ticket Title"

// QuotePolicy controls which fields of a data row are wrapped in quotes.
type QuotePolicy int

const (
	// QuoteAll quotes every data field (RFC 4180).
	QuoteAll QuotePolicy = iota
	// QuoteText quotes the title always and other fields only when needed.
	QuoteText
)

// ParseQuotePolicy maps the config value ("all", "text") to a policy.
func ParseQuotePolicy(s string) (QuotePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return QuoteAll, nil
	case "text":
		return QuoteText, nil
	default:
		return QuoteAll, fmt.Errorf("invalid quote policy %q: must be one of all, text", s)
	}
}

func (p QuotePolicy) String() string {
	if p == QuoteText {
		return "text"
	}
	return "all"
}

// Write renders the header and one line per row to w. Every line, the
// header included, ends with "\n".
func Write(w io.Writer, rows []ticket.Row, policy QuotePolicy) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return err
	}
	for _, r := range rows {
		fields := [4]string{
			field(r.TicketID, policy == QuoteAll),
			field(r.ParentTicketID, policy == QuoteAll),
			field(r.URL, policy == QuoteAll),
			field(r.Title, true),
		}
		if _, err := bw.WriteString(strings.Join(fields[:], ",") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Render returns the CSV document as a string.
func Render(rows []ticket.Row, policy QuotePolicy) string {
	var sb strings.Builder
	// strings.Builder never fails a write
	_ = Write(&sb, rows, policy)
	return sb.String()
}

func field(s string, always bool) string {
	if !always && !strings.ContainsAny(s, ",\"\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
