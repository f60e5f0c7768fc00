package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/drewfead/sprintexport/internal/ticket"
)

// SprintLoader fetches the sprints offered by the picker.
type SprintLoader func(ctx context.Context) ([]ticket.Sprint, error)

type sprintsLoadedMsg struct {
	sprints []ticket.Sprint
	err     error
}

// Picker lets the user choose one sprint from a board.
type Picker struct {
	title    string
	load     SprintLoader
	spinner  spinner.Model
	loading  bool
	sprints  []ticket.Sprint
	cursor   int
	chosen   *ticket.Sprint
	err      error
	quitting bool
}

// NewPicker returns a picker that loads its sprints with load.
func NewPicker(title string, load SprintLoader) Picker {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StyleAccent
	return Picker{title: title, load: load, spinner: s, loading: true}
}

// Chosen returns the selected sprint, or nil if the user cancelled.
func (m Picker) Chosen() *ticket.Sprint {
	return m.chosen
}

// Err returns the load error, if any.
func (m Picker) Err() error {
	return m.err
}

func (m Picker) Init() tea.Cmd {
	load := m.load
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		sprints, err := load(context.Background())
		return sprintsLoadedMsg{sprints: sprints, err: err}
	})
}

func (m Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case sprintsLoadedMsg:
		m.loading = false
		m.sprints = msg.sprints
		m.err = msg.err
		if m.err != nil || len(m.sprints) == 0 {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.sprints)-1 {
				m.cursor++
			}
		case "enter":
			if len(m.sprints) > 0 {
				s := m.sprints[m.cursor]
				m.chosen = &s
				m.quitting = true
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m Picker) View() string {
	if m.quitting {
		return ""
	}
	if m.loading {
		return fmt.Sprintf("%s Loading sprints...\n", m.spinner.View())
	}

	var b strings.Builder
	b.WriteString(StyleTitle.Render(m.title))
	b.WriteString("\n")
	for i, s := range m.sprints {
		line := fmt.Sprintf("%-8d %-40s %s", s.ID, truncate(s.Name, 40), StateStyle(s.State).Render(s.State))
		if i == m.cursor {
			b.WriteString(StyleSelected.Render("> " + line))
		} else {
			b.WriteString(StyleNormal.Render("  " + line))
		}
		b.WriteString("\n")
	}
	b.WriteString(StyleHelp.Render("↑/↓ move • enter export • q quit"))
	b.WriteString("\n")
	return b.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
