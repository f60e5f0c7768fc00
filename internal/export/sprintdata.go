package export

import (
	"context"
	"fmt"
	"strconv"

	"github.com/drewfead/sprintexport/internal/ticket"
)

// SprintData is the structured view of a sprint export.
type SprintData struct {
	Sprint ticket.Sprint `json:"sprint"`
	Issues []IssueView   `json:"issues"`
}

// IssueView is one flattened row in SprintData.
type IssueView struct {
	Key    string `json:"key"`
	Parent string `json:"parent,omitempty"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// SprintData returns the sprint's rows as structured data. The sprint's name
// and state are filled in when the source can describe sprints.
func (e *Exporter) SprintData(ctx context.Context, sprintID ticket.SprintID) (data *SprintData, fault *Fault) {
	id := sprintID.Normalize()
	if id == "" {
		return nil, &Fault{Kind: KindMissingInput, Message: "sprint ID is required"}
	}

	defer func() {
		if r := recover(); r != nil {
			data, fault = nil, &Fault{Kind: KindUnknown, Message: fmt.Sprint(r)}
		}
	}()

	sprint := ticket.Sprint{}
	if n, err := strconv.Atoi(string(id)); err == nil {
		sprint.ID = n
	}
	if ss, ok := e.Source.(ticket.SprintSource); ok {
		s, err := ss.GetSprint(ctx, id)
		if err != nil {
			return nil, FaultFrom(err)
		}
		sprint = *s
	}

	rows, err := e.rows(ctx, id, logWith(ctx, id))
	if err != nil {
		return nil, FaultFrom(err)
	}

	views := make([]IssueView, 0, len(rows))
	for _, r := range rows {
		views = append(views, IssueView{Key: r.TicketID, Parent: r.ParentTicketID, Title: r.Title, URL: r.URL})
	}
	return &SprintData{Sprint: sprint, Issues: views}, nil
}
