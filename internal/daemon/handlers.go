package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/drewfead/sprintexport/internal/control"
	"github.com/drewfead/sprintexport/internal/ticket"
)

func (d *Daemon) registerHandlers() {
	d.server.Handle(control.MethodExportSprintData, d.handleExportSprintData)
	d.server.Handle(control.MethodResolveSprint, d.handleResolveSprint)
	d.server.Handle(control.MethodGetSprintData, d.handleGetSprintData)
	d.server.Handle(control.MethodStatus, d.handleStatus)
}

// decodeParams tolerates absent params so a missing sprint ID surfaces as a
// MissingInput fault rather than a transport error.
func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func (d *Daemon) handleExportSprintData(ctx context.Context, params json.RawMessage) (any, error) {
	var req control.ExportRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return d.export(ctx, ticket.SprintID(req.SprintID)), nil
}

func (d *Daemon) handleResolveSprint(ctx context.Context, params json.RawMessage) (any, error) {
	var req control.ResolveRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return d.source.ResolveSprint(ctx, req.Project)
}

func (d *Daemon) handleGetSprintData(ctx context.Context, params json.RawMessage) (any, error) {
	var req control.ExportRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	data, fault := d.Exporter().SprintData(ctx, ticket.SprintID(req.SprintID))
	if fault != nil {
		return nil, fault
	}
	return data, nil
}

func (d *Daemon) handleStatus(ctx context.Context, params json.RawMessage) (any, error) {
	return d.Status(), nil
}
