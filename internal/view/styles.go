// Package view renders trace sessions in the terminal, either as a static
// per-thread listing or as an interactive stepper.
package view

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - metadata

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	classStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")) // Blue

	lineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	seqStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(8).
			Align(lipgloss.Right)

	currentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("14")) // Cyan bar under the cursor

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	// Tabs
	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	// Fault-localization bands
	scoreHighStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // Red

	scoreMidStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")) // Yellow

	scoreLowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // Green

	divider = dimStyle.Render(strings.Repeat("━", 60))
)

func scoreStyle(v float64) lipgloss.Style {
	switch {
	case v >= 0.7:
		return scoreHighStyle
	case v >= 0.4:
		return scoreMidStyle
	default:
		return scoreLowStyle
	}
}
