// Package cli provides shared terminal output helpers for the sprintexport
// commands.
package cli

import (
	"os"

	"golang.org/x/term"
)

// ANSI style codes
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[90m"
)

// colorsEnabled caches whether colors should be used
var colorsEnabled *bool

// ColorsEnabled reports whether stdout is a terminal and NO_COLOR is unset.
func ColorsEnabled() bool {
	if colorsEnabled != nil {
		return *colorsEnabled
	}
	enabled := term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""
	colorsEnabled = &enabled
	return enabled
}

// ForceColors enables or disables colors regardless of terminal detection.
func ForceColors(enabled bool) {
	colorsEnabled = &enabled
}

// TerminalWidth returns the width of stdout, or fallback when it is not a
// terminal.
func TerminalWidth(fallback int) int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}

// Styled wraps text with a style code and reset.
func Styled(text, code string) string {
	if !ColorsEnabled() {
		return text
	}
	return code + text + Reset
}

func Bolden(text string) string {
	return Styled(text, Bold)
}

func RedText(text string) string {
	return Styled(text, Red)
}

func GreenText(text string) string {
	return Styled(text, Green)
}

func YellowText(text string) string {
	return Styled(text, Yellow)
}

func CyanText(text string) string {
	return Styled(text, Cyan)
}

func GrayText(text string) string {
	return Styled(text, Gray)
}
