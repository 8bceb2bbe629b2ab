// Package tui provides the Bubble Tea live reveal view for the inlet CLI.
//
// The view consumes StreamingState snapshots only; it never parses
// protocol records itself. Quitting the view mid-stream aborts the
// session.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/inletlabs/inlet/types"
)

// Color palette.
var (
	primaryColor = lipgloss.Color("#7C3AED") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#EF4444") // Red
	mutedColor   = lipgloss.Color("#6B7280") // Gray
)

// Styles for TUI components.
var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(12)

	// ValueStyle for field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// TextStyle for the revealed stream text.
	TextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5E7EB"))

	// SuccessStyle for terminal success states.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WarningStyle for in-flight states.
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// ErrorStyle for error states.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// BoxStyle for bordered containers.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// StageStyle returns a style for a session stage.
func StageStyle(stage types.SessionStatus) lipgloss.Style {
	switch {
	case stage == types.StatusComplete:
		return SuccessStyle
	case stage == types.StatusError:
		return ErrorStyle
	case stage == types.StatusAborted:
		return ErrorStyle
	case stage.IsToolPhase(), stage == types.StatusStreaming, stage == types.StatusConnecting:
		return WarningStyle
	default:
		return ValueStyle
	}
}
