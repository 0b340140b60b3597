package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	colorPrimary = lipgloss.Color("39")  // blue
	colorSuccess = lipgloss.Color("76")  // green
	colorWarning = lipgloss.Color("214") // orange
	colorError   = lipgloss.Color("196") // red
	colorMuted   = lipgloss.Color("242") // gray
	colorWhite   = lipgloss.Color("15")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginBottom(1)

	logoStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	entryStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Padding(0, 2)

	entrySelectedStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true).
				Padding(0, 1)

	commandStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)

	stateRunningStyle = lipgloss.NewStyle().
				Foreground(colorWarning).
				Bold(true)

	stateDoneStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	stateFailedStyle = lipgloss.NewStyle().
				Foreground(colorError).
				Bold(true)

	stderrStyle = lipgloss.NewStyle().
			Foreground(colorError)

	outputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)
