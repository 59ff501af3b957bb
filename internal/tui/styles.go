// Package tui provides a live terminal dashboard for the SIPp swarm.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It shows instance ramp-up, call rates against target, response time
// percentiles, failures and a per-instance table.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-sipp-swarm/internal/supervisor"
)

var (
	colorAccent = lipgloss.Color("#7C3AED")
	colorHead   = lipgloss.Color("#06B6D4")
	colorGood   = lipgloss.Color("#10B981")
	colorWarn   = lipgloss.Color("#F59E0B")
	colorBad    = lipgloss.Color("#EF4444")
	colorInfo   = lipgloss.Color("#3B82F6")
	colorText   = lipgloss.Color("#E5E7EB")
	colorMuted  = lipgloss.Color("#9CA3AF")
	colorDim    = lipgloss.Color("#6B7280")
	colorBorder = lipgloss.Color("#374151")
)

var (
	bold = lipgloss.NewStyle().Bold(true)

	valueStyle = bold.Foreground(colorText)
	goodStyle  = bold.Foreground(colorGood)
	warnStyle  = bold.Foreground(colorWarn)
	badStyle   = bold.Foreground(colorBad)
	infoStyle  = bold.Foreground(colorInfo)

	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)

	// Percentile rows use the narrow label, call counters the wide one.
	labelStyle     = mutedStyle.Width(20)
	labelWideStyle = mutedStyle.Width(25)

	headerStyle = bold.
			Foreground(colorText).
			Background(colorAccent).
			Padding(0, 1).
			MarginBottom(1)

	tableHeaderStyle = bold.
				Foreground(colorHead).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder)

	sectionHeaderStyle = tableHeaderStyle.MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	footerStyle = mutedStyle.MarginTop(1)

	barFullStyle  = lipgloss.NewStyle().Foreground(colorAccent)
	barEmptyStyle = lipgloss.NewStyle().Foreground(colorBorder)
)

// stateStyle colours a worker state in the instance table.
func stateStyle(s supervisor.State) lipgloss.Style {
	switch s {
	case supervisor.StateRunning:
		return goodStyle
	case supervisor.StateStarting, supervisor.StateStopping:
		return infoStyle
	default:
		return mutedStyle
	}
}

// attainmentStyle grades achieved/target call rate.
func attainmentStyle(ratio float64) lipgloss.Style {
	switch {
	case ratio >= 0.95:
		return goodStyle
	case ratio >= 0.80:
		return warnStyle
	default:
		return badStyle
	}
}

func attainmentLabel(ratio float64) string {
	if ratio == 0 {
		return attainmentStyle(ratio).Render("N/A")
	}
	return attainmentStyle(ratio).Render(fmt.Sprintf("%.0f%%", ratio*100))
}

// failureRateStyle grades failed calls over completed calls. Any failure
// is a warning, 1% or more is bad.
func failureRateStyle(rate float64) lipgloss.Style {
	switch {
	case rate == 0:
		return goodStyle
	case rate < 0.01:
		return warnStyle
	default:
		return badStyle
	}
}

func renderKeyValue(label string, ls lipgloss.Style, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		ls.Render(label+":"),
		valueStyle.Render(value),
	)
}

// renderBar draws a bar of at least 10 cells filled to ratio, followed by
// the percentage. ratio is clamped to [0, 1] for the bar only.
func renderBar(ratio float64, width int) string {
	width = max(width, 10)
	filled := min(max(int(ratio*float64(width)), 0), width)

	return barFullStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled)) +
		valueStyle.Render(fmt.Sprintf(" %3.0f%%", ratio*100))
}
