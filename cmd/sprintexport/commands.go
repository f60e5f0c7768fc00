package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/drewfead/sprintexport/internal/cli"
	"github.com/drewfead/sprintexport/internal/control"
	"github.com/drewfead/sprintexport/internal/export"
	"github.com/drewfead/sprintexport/internal/ticket"
	"github.com/drewfead/sprintexport/internal/tui"
)

func runExport(ctx context.Context, sprintID, project, output, quote string) error {
	b, err := openBackend(cfg, direct, quote)
	if err != nil {
		return err
	}
	defer b.Close()

	if project != "" {
		sprint, err := b.Resolve(ctx, project)
		if err != nil {
			return fmt.Errorf("resolve sprint for %s: %w", project, err)
		}
		fmt.Fprintf(os.Stderr, "%s %s (%s)\n", cli.GrayText("Using sprint"), describeSprint(sprint), sprint.State)
		sprintID = strconv.Itoa(sprint.ID)
	}

	res, err := b.Export(ctx, sprintID)
	if err != nil {
		return err
	}
	return saveResult(res, output, os.Stdout)
}

// saveResult writes a successful export to output: "-" is stdout, empty is
// the result's own filename. A fault becomes the returned error.
func saveResult(res *export.Result, output string, stdout io.Writer) error {
	if res.Fault != nil {
		return res.Fault
	}

	if output == "-" {
		_, err := io.WriteString(stdout, res.Body)
		return err
	}
	if output == "" {
		output = res.Filename
	}
	if err := os.WriteFile(output, []byte(res.Body), 0644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Fprintf(os.Stderr, "%s wrote %d rows to %s\n", cli.GreenText("✓"), res.Rows, cli.Bolden(output))
	return nil
}

func runPreview(ctx context.Context, sprintID, format string) error {
	b, err := openBackend(cfg, direct, "")
	if err != nil {
		return err
	}
	defer b.Close()

	data, err := b.SprintData(ctx, sprintID)
	if err != nil {
		return err
	}
	rows := rowsFromData(data)

	title := fmt.Sprintf("Sprint %s", sprintID)
	if data.Sprint.Name != "" {
		title = data.Sprint.Name
	}

	switch strings.ToLower(format) {
	case "markdown", "md":
		fmt.Print(cli.RenderMarkdown(title, rows, cli.TerminalWidth(100)-4))
	case "table", "":
		fmt.Println(cli.Bolden(title))
		fmt.Println(cli.RenderTable(rows))
		fmt.Println(cli.GrayText(fmt.Sprintf("%d rows", len(rows))))
	default:
		return fmt.Errorf("invalid format %q: must be one of table, markdown", format)
	}
	return nil
}

func rowsFromData(data *export.SprintData) []ticket.Row {
	rows := make([]ticket.Row, 0, len(data.Issues))
	for _, i := range data.Issues {
		rows = append(rows, ticket.Row{TicketID: i.Key, ParentTicketID: i.Parent, URL: i.URL, Title: i.Title})
	}
	return rows
}

func runPick(ctx context.Context, project, output string) error {
	b, err := newDirectBackend(cfg, "")
	if err != nil {
		return err
	}

	picker := tui.NewPicker("Sprints for "+project, func(ctx context.Context) ([]ticket.Sprint, error) {
		return b.boardSprints(ctx, project)
	})
	final, err := tea.NewProgram(picker).Run()
	if err != nil {
		return err
	}

	p := final.(tui.Picker)
	if p.Err() != nil {
		return p.Err()
	}
	chosen := p.Chosen()
	if chosen == nil {
		fmt.Fprintln(os.Stderr, cli.YellowText("No sprint selected."))
		return nil
	}

	res, err := b.Export(ctx, strconv.Itoa(chosen.ID))
	if err != nil {
		return err
	}
	return saveResult(res, output, os.Stdout)
}

func runResolve(ctx context.Context, project string) error {
	b, err := openBackend(cfg, direct, "")
	if err != nil {
		return err
	}
	defer b.Close()

	sprint, err := b.Resolve(ctx, project)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\t%s\n", strconv.Itoa(sprint.ID), sprint.Name, sprint.State)
	return nil
}

func runDaemonStatus(ctx context.Context) error {
	client, err := control.NewClient(cfg.Daemon.Socket)
	if err != nil {
		fmt.Printf("Daemon status: %s\n", cli.RedText("NOT RUNNING"))
		fmt.Printf("Socket: %s\n", cfg.Daemon.Socket)
		return nil
	}
	defer client.Close()

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("daemon status: %w", err)
	}

	fmt.Printf("Daemon status: %s\n", cli.GreenText("RUNNING"))
	fmt.Printf("Socket:   %s\n", cfg.Daemon.Socket)
	fmt.Printf("Version:  %s (pid %d)\n", status.Version, status.PID)
	fmt.Printf("Uptime:   %s\n", status.Uptime)
	fmt.Printf("Jira:     %s\n", status.JiraURL)
	if status.HTTPAddr != "" {
		fmt.Printf("HTTP:     %s\n", status.HTTPAddr)
	}
	fmt.Printf("Quote:    %s\n", status.Quote)
	fmt.Printf("Exports:  %d (%d failed)\n", status.Exports, status.Failures)
	return nil
}

func describeSprint(s *ticket.Sprint) string {
	if s.Name != "" {
		return fmt.Sprintf("%d %q", s.ID, s.Name)
	}
	return strconv.Itoa(s.ID)
}
