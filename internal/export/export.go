// Package export runs a sprint export end to end: the two Jira reads, the
// flatten and the CSV encoding, and turns the outcome into a Result that
// delivery surfaces can hand back without further interpretation.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/drewfead/sprintexport/internal/csvexport"
	"github.com/drewfead/sprintexport/internal/jira"
	"github.com/drewfead/sprintexport/internal/logging"
	"github.com/drewfead/sprintexport/internal/ticket"
)

// ContentType of a successful export body.
const ContentType = "text/csv"

// FaultKind classifies a failed export.
type FaultKind string

const (
	KindMissingInput  FaultKind = "MissingInput"
	KindUpstreamError FaultKind = "UpstreamError"
	KindUnknown       FaultKind = "Unknown"
)

// Fault describes why an export produced no body.
type Fault struct {
	Kind    FaultKind `json:"kind"`
	Message string    `json:"error"`
	Call    string    `json:"call,omitempty"` // Failed upstream read, UpstreamError only
}

func (f *Fault) Error() string {
	if f.Call != "" {
		return fmt.Sprintf("%s (%s): %s", f.Kind, f.Call, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// HTTPStatus maps the fault kind to a response status.
func (f *Fault) HTTPStatus() int {
	switch f.Kind {
	case KindMissingInput:
		return http.StatusBadRequest
	case KindUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Result is the outcome of one export. Exactly one of Body or Fault is set.
type Result struct {
	SprintID           string `json:"sprintId"`
	Body               string `json:"body,omitempty"`
	ContentType        string `json:"contentType,omitempty"`
	Filename           string `json:"filename,omitempty"`
	ContentDisposition string `json:"contentDisposition,omitempty"`
	Rows               int    `json:"rows"`
	Fault              *Fault `json:"fault,omitempty"`
}

// OK reports whether the export succeeded.
func (r *Result) OK() bool {
	return r.Fault == nil
}

// Filename returns the download name for a sprint's export.
func Filename(id ticket.SprintID) string {
	return fmt.Sprintf("sprint_%s_export.csv", id.Normalize())
}

// Exporter turns a sprint into a CSV Result.
type Exporter struct {
	Source ticket.Source
	Base   string // Site URL used when an issue's self URL has no /rest segment
	Policy csvexport.QuotePolicy
}

// New returns an Exporter reading from src.
func New(src ticket.Source, base string, policy csvexport.QuotePolicy) *Exporter {
	return &Exporter{Source: src, Base: base, Policy: policy}
}

// Export fetches, flattens and encodes a sprint. It never panics and never
// returns a nil Result. A blank id fails with MissingInput before any read.
func (e *Exporter) Export(ctx context.Context, sprintID ticket.SprintID) (res *Result) {
	id := sprintID.Normalize()
	log := logWith(ctx, id)
	ctx = logging.NewContext(ctx, log)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logging.CapturePanic(r, "sprint", string(id))
			res = &Result{SprintID: string(id), Fault: &Fault{Kind: KindUnknown, Message: fmt.Sprint(r)}}
		}
	}()

	if id == "" {
		return &Result{Fault: &Fault{Kind: KindMissingInput, Message: "sprint ID is required"}}
	}

	rows, err := e.rows(ctx, id, log)
	if err != nil {
		f := FaultFrom(err)
		if f.Kind == KindUnknown {
			logging.CaptureError(ctx, err, "export failed", "kind", f.Kind)
		} else {
			log.Warn("export failed", "kind", f.Kind, "call", f.Call, "error", f.Message)
		}
		return &Result{SprintID: string(id), Fault: f}
	}

	name := Filename(id)
	res = &Result{
		SprintID:           string(id),
		Body:               csvexport.Render(rows, e.Policy),
		ContentType:        ContentType,
		Filename:           name,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", name),
		Rows:               len(rows),
	}
	log.Info("export finished", "rows", len(rows), "duration", time.Since(start))
	return res
}

// rows performs the two ordered reads and flattens the result.
func (e *Exporter) rows(ctx context.Context, id ticket.SprintID, log *slog.Logger) ([]ticket.Row, error) {
	keys, err := e.Source.ListSprintIssueKeys(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Debug("sprint issue keys", "count", len(keys))

	var issues []ticket.Issue
	if len(keys) > 0 {
		issues, err = e.Source.SearchIssuesWithSubtasks(ctx, keys)
		if err != nil {
			return nil, err
		}
	}
	return csvexport.Flatten(issues, e.Base), nil
}

// logWith extends the caller's request logger with the sprint. Callers
// without one get a fresh request_id.
func logWith(ctx context.Context, id ticket.SprintID) *slog.Logger {
	log, ok := logging.ContextLogger(ctx)
	if !ok {
		log = logging.With("request_id", uuid.NewString())
	}
	return log.With("sprint", string(id))
}

// FaultFrom classifies err. Upstream failures keep the name of the read.
func FaultFrom(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	if ue, ok := jira.AsUpstream(err); ok {
		return &Fault{Kind: KindUpstreamError, Message: ue.Error(), Call: ue.Call}
	}
	return &Fault{Kind: KindUnknown, Message: err.Error()}
}
