package jira

import (
	"errors"
	"fmt"
	"net/http"
)

// Upstream call names, reported with every UpstreamError.
const (
	CallListSprintIssueKeys      = "listSprintIssueKeys"
	CallSearchIssuesWithSubtasks = "searchIssuesWithSubtasks"
	CallGetSprint                = "getSprint"
	CallListBoards               = "listBoards"
	CallListSprints              = "listSprints"
)

// ErrNoSprint is returned when a project has no future or active sprint.
var ErrNoSprint = errors.New("no future or active sprint found")

// UpstreamError reports a failed read against the Jira API: a transport
// failure, a non-success status, or a body that could not be understood.
type UpstreamError struct {
	Call       string // Which read failed, e.g. "listSprintIssueKeys"
	StatusCode int    // HTTP status, 0 when no response was received
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: jira returned status %d: %v", e.Call, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Call, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the request may succeed if sent again.
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// AsUpstream extracts an UpstreamError from err's chain.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

func malformed(call, format string, args ...any) *UpstreamError {
	return &UpstreamError{Call: call, Err: fmt.Errorf("malformed response: "+format, args...)}
}
