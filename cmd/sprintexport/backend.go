package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/drewfead/sprintexport/internal/config"
	"github.com/drewfead/sprintexport/internal/control"
	"github.com/drewfead/sprintexport/internal/csvexport"
	"github.com/drewfead/sprintexport/internal/export"
	"github.com/drewfead/sprintexport/internal/jira"
	"github.com/drewfead/sprintexport/internal/ticket"
)

// backend runs exports either through the daemon or in-process.
type backend interface {
	Export(ctx context.Context, sprintID string) (*export.Result, error)
	SprintData(ctx context.Context, sprintID string) (*export.SprintData, error)
	Resolve(ctx context.Context, project string) (*ticket.Sprint, error)
	Close() error
}

// openBackend connects to the daemon, or builds a Jira client with --direct.
// quote overrides the configured policy in direct mode.
func openBackend(cfg *config.Config, direct bool, quote string) (backend, error) {
	if direct {
		return newDirectBackend(cfg, quote)
	}
	if quote != "" {
		return nil, fmt.Errorf("--quote only applies with --direct; the daemon uses its configured policy")
	}
	client, err := control.NewClient(cfg.Daemon.Socket)
	if err != nil {
		return nil, fmt.Errorf("%w\n\nIs sprintexportd running? Start it with: sprintexportd, or pass --direct", err)
	}
	return &daemonBackend{client: client}, nil
}

type daemonBackend struct {
	client *control.Client
}

func (b *daemonBackend) Export(ctx context.Context, sprintID string) (*export.Result, error) {
	return b.client.ExportSprintData(ctx, sprintID)
}

func (b *daemonBackend) SprintData(ctx context.Context, sprintID string) (*export.SprintData, error) {
	return b.client.GetSprintData(ctx, sprintID)
}

func (b *daemonBackend) Resolve(ctx context.Context, project string) (*ticket.Sprint, error) {
	return b.client.ResolveSprint(ctx, project)
}

func (b *daemonBackend) Close() error {
	return b.client.Close()
}

type directBackend struct {
	client   *jira.Client
	exporter *export.Exporter
}

func newDirectBackend(cfg *config.Config, quote string) (*directBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if quote == "" {
		quote = cfg.Export.Quote
	}
	policy, err := csvexport.ParseQuotePolicy(quote)
	if err != nil {
		return nil, err
	}
	client, err := jira.NewClientFromConfig(cfg.Jira)
	if err != nil {
		return nil, err
	}
	return &directBackend{
		client:   client,
		exporter: export.New(client, client.BaseURL(), policy),
	}, nil
}

func (b *directBackend) Export(ctx context.Context, sprintID string) (*export.Result, error) {
	return b.exporter.Export(ctx, ticket.SprintID(sprintID)), nil
}

func (b *directBackend) SprintData(ctx context.Context, sprintID string) (*export.SprintData, error) {
	data, fault := b.exporter.SprintData(ctx, ticket.SprintID(sprintID))
	if fault != nil {
		return nil, fault
	}
	return data, nil
}

func (b *directBackend) Resolve(ctx context.Context, project string) (*ticket.Sprint, error) {
	return b.client.ResolveSprint(ctx, project)
}

func (b *directBackend) Close() error {
	return nil
}

// boardSprints lists the active and future sprints on a project's first board.
func (b *directBackend) boardSprints(ctx context.Context, project string) ([]ticket.Sprint, error) {
	boards, err := b.client.ListBoards(ctx, strings.TrimSpace(project))
	if err != nil {
		return nil, err
	}
	if len(boards) == 0 {
		return nil, fmt.Errorf("project %s has no boards: %w", project, jira.ErrNoSprint)
	}
	return b.client.ListSprints(ctx, boards[0].ID, "active", "future")
}
