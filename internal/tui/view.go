package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main summary dashboard.
func (m Model) renderSummaryView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderProgress())

	if m.stats != nil {
		sections = append(sections, m.renderCallStats())
		if len(m.stats.ResponseTimes) > 0 {
			sections = append(sections, m.renderResponseTimes())
		}
		if m.hasFailures() {
			sections = append(sections, m.renderFailures())
		}
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView renders the per-instance table.
func (m Model) renderDetailedView() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderInstanceTable(),
		m.renderFooter(),
	)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-sipp-swarm │ %s │ Instances: %d/%d │ Elapsed: %s ",
		m.scenarioLabel(),
		m.RunningInstances(),
		m.targetInstances,
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

func (m Model) scenarioLabel() string {
	if m.scenario == "" {
		return "mixed"
	}
	return m.scenario
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	progress := m.RampProgress()

	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}
	progressBar := renderBar(progress, barWidth)

	var status string
	switch {
	case m.targetInstances == 0:
		status = infoStyle.Render("Waiting for instances (REST API)")
	case progress >= 1.0:
		status = goodStyle.Render("✓ All instances running")
	default:
		status = infoStyle.Render(fmt.Sprintf("Ramping up... %d/%d", m.RunningInstances(), m.targetInstances))
	}

	rows := []string{sectionHeaderStyle.Render("Ramp Progress"), progressBar, status}
	if m.stats != nil && m.stats.StartingOrStopping > 0 {
		rows = append(rows, warnStyle.Render(fmt.Sprintf("%d starting or stopping", m.stats.StartingOrStopping)))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Call Statistics
// =============================================================================

func (m Model) renderCallStats() string {
	s := m.stats

	failureRate := 0.0
	if done := s.SuccessfulCalls + s.FailedCalls; done > 0 {
		failureRate = float64(s.FailedCalls) / float64(done)
	}

	rows := []string{
		renderStatRow("Call Rate", formatRate(s.CallRate), "target "+formatRate(s.TargetRate)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelWideStyle.Render("Rate Attainment:"),
			attainmentLabel(m.RateAttainment()),
		),
		renderKeyValue("Current Calls", labelWideStyle, formatNumberWithCommas(s.CurrentCalls)),
		renderStatRow("Calls Created", formatNumber(s.TotalCalls), formatRate(s.AverageCallRate)+" avg"),
		renderStatRow("Created Rate", formatRate(s.CreatedRates.Avg30s),
			fmt.Sprintf("1s %s, 5m %s", formatRate(s.CreatedRates.Avg1s), formatRate(s.CreatedRates.Avg300s))),
		renderKeyValue("Successful", labelWideStyle, formatNumberWithCommas(s.SuccessfulCalls)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelWideStyle.Render("Failed:"),
			failureRateStyle(failureRate).Render(
				fmt.Sprintf("%s (%s)", formatNumberWithCommas(s.FailedCalls), formatPercent(failureRate))),
		),
	}

	retransStyle := valueStyle
	if s.Retransmissions > 0 {
		retransStyle = warnStyle
	}
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
		labelWideStyle.Render("Retransmissions:"),
		retransStyle.Render(fmt.Sprintf("%d last period, %s total",
			s.Retransmissions, formatNumber(s.RetransmissionsTotal))),
	))

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Call Statistics")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func renderStatRow(label, value, note string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelWideStyle.Render(label+":"),
		valueStyle.Width(12).Render(value),
		mutedStyle.Render(" ("),
		mutedStyle.Render(note),
		mutedStyle.Render(")"),
	)
}

// =============================================================================
// Response Times
// =============================================================================

func (m Model) renderResponseTimes() string {
	s := m.stats

	rows := []string{
		renderKeyValue("P50 (median)", labelStyle, formatMs(s.ResponseTimeP50)),
		renderKeyValue("P95", labelStyle, formatMs(s.ResponseTimeP95)),
		renderKeyValue("P99", labelStyle, formatMs(s.ResponseTimeP99)),
	}

	total := 0
	for _, b := range s.ResponseTimes {
		total += b.Count
	}
	barWidth := m.width - 40
	if barWidth < 10 {
		barWidth = 10
	}
	for _, b := range s.ResponseTimes {
		ratio := 0.0
		if total > 0 {
			ratio = float64(b.Count) / float64(total)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render(bucketLabel(b.Lower, b.Upper)),
			renderBar(ratio, barWidth),
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Response Times")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

func bucketLabel(lower, upper int) string {
	if upper < 0 {
		return fmt.Sprintf(">= %d ms", lower)
	}
	return fmt.Sprintf("%d-%d ms", lower, upper)
}

// =============================================================================
// Failures
// =============================================================================

func (m Model) hasFailures() bool {
	if m.stats == nil {
		return false
	}
	for _, n := range m.stats.Failures {
		if n > 0 {
			return true
		}
	}
	return false
}

func (m Model) renderFailures() string {
	labels := make([]string, 0, len(m.stats.Failures))
	for label, n := range m.stats.Failures {
		if n > 0 {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)

	rows := make([]string, 0, len(labels))
	for _, label := range labels {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelWideStyle.Render(strings.TrimSuffix(label, "(P)")+":"),
			badStyle.Render(formatNumberWithCommas(m.stats.Failures[label])),
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Failures")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Instance Table (Detailed View)
// =============================================================================

func (m Model) renderInstanceTable() string {
	if len(m.instances) == 0 {
		return boxStyle.Width(m.width - 2).Render(
			dimStyle.Render("No instances yet. Press 'd' to toggle."),
		)
	}

	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-20s %-10s %7s %8s %8s %8s %7s %8s",
			"Name", "State", "Target", "Rate", "Calls", "Failed", "Retr", "RT"),
	)

	maxRows := m.height - 10
	if maxRows < 5 {
		maxRows = 5
	}

	var rows []string
	for i, in := range m.instances {
		if i >= maxRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d more instances", len(m.instances)-maxRows)))
			break
		}

		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}

		state := in.State.String()
		row := fmt.Sprintf("%-20s %-10s %7d %8s %8s %8s %7d %8s",
			truncate(in.Name, 20),
			stateStyle(in.State).Render(fmt.Sprintf("%-10s", state)),
			in.TargetRate,
			fmt.Sprintf("%.1f", in.CallRate),
			formatNumber(in.TotalCalls),
			formatNumber(in.FailedCalls),
			in.Retransmissions,
			formatMs(in.ResponseTime),
		)
		rows = append(rows, rowStyle.Render(row))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{
			sectionHeaderStyle.Render("Instances"),
			header,
		}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"d: toggle details",
		"r: refresh",
	}
	if m.controller != nil {
		shortcuts = append(shortcuts, "*: rate +10", "/: rate -10")
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))

	var right string
	switch {
	case m.lastAction != "":
		right = infoStyle.Render(m.lastAction)
	case m.metricsAddr != "" && m.apiEnabled:
		right = dimStyle.Render("API: http://" + m.metricsAddr + "/sipp/instances")
	case m.metricsAddr != "":
		right = dimStyle.Render("Metrics: http://" + m.metricsAddr + "/metrics")
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}
