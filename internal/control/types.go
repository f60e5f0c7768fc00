package control

import (
	"github.com/drewfead/sprintexport/internal/export"
	"github.com/drewfead/sprintexport/internal/ticket"
)

// EventExportFinished is broadcast after every export, successful or not.
const EventExportFinished = "export_finished"

// ExportRequest names the sprint to export.
type ExportRequest struct {
	SprintID string `json:"sprintId"`
}

// ResolveRequest names the project whose sprint should be resolved.
type ResolveRequest struct {
	Project string `json:"project"`
}

// SprintInfo is the resolved sprint.
type SprintInfo = ticket.Sprint

// ExportResult is the export outcome as carried over the socket.
type ExportResult = export.Result

// SprintDataResult is the structured sprint view.
type SprintDataResult = export.SprintData

// ExportFinished is the payload of EventExportFinished.
type ExportFinished struct {
	SprintID string `json:"sprintId"`
	Rows     int    `json:"rows"`
	Kind     string `json:"kind,omitempty"` // Fault kind when the export failed
}

// StatusInfo describes the running daemon.
type StatusInfo struct {
	Version   string `json:"version"`
	PID       int    `json:"pid"`
	StartedAt string `json:"started_at"`
	Uptime    string `json:"uptime"`
	JiraURL   string `json:"jira_url"`
	HTTPAddr  string `json:"http_addr,omitempty"`
	Quote     string `json:"quote"`
	Exports   int64  `json:"exports"`
	Failures  int64  `json:"failures"`
}
