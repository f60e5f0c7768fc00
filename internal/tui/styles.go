// Package tui holds the interactive terminal views of the sprintexport CLI.
package tui

import "github.com/charmbracelet/lipgloss"

// Tokyo Night inspired color palette
var (
	ColorBgAlt   = lipgloss.Color("#24283b")
	ColorFg      = lipgloss.Color("#c0caf5")
	ColorFgMuted = lipgloss.Color("#565f89")
	ColorActive  = lipgloss.Color("#9ece6a")
	ColorFuture  = lipgloss.Color("#7aa2f7")
	ColorError   = lipgloss.Color("#f7768e")
	ColorAccent  = lipgloss.Color("#d4a373")
)

// SprintStateColor returns the color for a sprint state.
func SprintStateColor(state string) lipgloss.Color {
	switch state {
	case "active":
		return ColorActive
	case "future":
		return ColorFuture
	default:
		return ColorFgMuted
	}
}

// Common styles
var (
	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorFg).
			Bold(true).
			MarginBottom(1)

	StyleSelected = lipgloss.NewStyle().
			Background(ColorBgAlt).
			Foreground(ColorFg).
			Bold(true)

	StyleNormal = lipgloss.NewStyle().
			Foreground(ColorFg)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	StyleAccent = lipgloss.NewStyle().
			Foreground(ColorAccent)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError)

	StyleHelp = lipgloss.NewStyle().
			Foreground(ColorFgMuted).
			MarginTop(1)
)

// StateStyle returns styled text for a sprint state.
func StateStyle(state string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(SprintStateColor(state))
}
