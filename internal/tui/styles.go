package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorRed    = lipgloss.Color("#E53935")
	ColorOrange = lipgloss.Color("#FF8C00")
	ColorGray   = lipgloss.Color("#808080")
	ColorWhite  = lipgloss.Color("#FFFFFF")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorRed).
			MarginBottom(1)

	countdownStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorOrange)

	counterStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite).
			Padding(0, 2).
			Border(lipgloss.RoundedBorder())

	stateStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	buttonStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray)

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorOrange).
			Border(lipgloss.DoubleBorder()).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	helpStyle = lipgloss.NewStyle().
			Foreground(ColorGray)
)
