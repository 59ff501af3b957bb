package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-sipp-swarm/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatsMsg carries updated statistics.
type StatsMsg struct {
	Stats     *stats.AggregatedStats
	Instances []stats.InstanceStats
}

// RateChangedMsg reports the result of a swarm-wide rate change.
type RateChangedMsg struct {
	Delta    int
	Affected int
	Err      error
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	targetInstances int
	scenario        string
	metricsAddr     string
	apiEnabled      bool

	// Current state
	stats        *stats.AggregatedStats
	instances    []stats.InstanceStats
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool
	lastAction   string

	// Display options
	width  int
	height int

	statsSource StatsSource
	controller  Controller

	quitting bool
}

// StatsSource provides aggregated statistics.
type StatsSource interface {
	Aggregate() *stats.AggregatedStats
	Instances() []stats.InstanceStats
}

// Controller applies swarm-wide rate changes. Optional: without one the
// rate keys are ignored.
type Controller interface {
	// AdjustRate changes the rate of every running instance by delta
	// steps of 10 calls/s and returns how many instances were affected.
	AdjustRate(delta int) (int, error)
}

// Config holds TUI configuration.
type Config struct {
	TargetInstances int
	Scenario        string
	MetricsAddr     string
	APIEnabled      bool
	StatsSource     StatsSource
	Controller      Controller
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		targetInstances: cfg.TargetInstances,
		scenario:        cfg.Scenario,
		metricsAddr:     cfg.MetricsAddr,
		apiEnabled:      cfg.APIEnabled,
		statsSource:     cfg.StatsSource,
		controller:      cfg.Controller,
		startTime:       time.Now(),
		lastUpdate:      time.Now(),
		width:           80,
		height:          24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// tea.WithAltScreen() is passed when creating the program.
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			return m, tickCmd()
		case "*":
			return m, m.adjustRateCmd(1)
		case "/":
			return m, m.adjustRateCmd(-1)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.statsSource != nil {
			m.stats = m.statsSource.Aggregate()
			m.instances = m.statsSource.Instances()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case StatsMsg:
		m.stats = msg.Stats
		if msg.Instances != nil {
			m.instances = msg.Instances
		}
		m.lastUpdate = time.Now()
		return m, nil

	case RateChangedMsg:
		m.lastAction = describeRateChange(msg)
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.detailedView && len(m.instances) > 0 {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) adjustRateCmd(delta int) tea.Cmd {
	if m.controller == nil {
		return nil
	}
	c := m.controller
	return func() tea.Msg {
		n, err := c.AdjustRate(delta)
		return RateChangedMsg{Delta: delta, Affected: n, Err: err}
	}
}

func describeRateChange(msg RateChangedMsg) string {
	verb := "raised"
	if msg.Delta < 0 {
		verb = "lowered"
	}
	if msg.Err != nil {
		return fmt.Sprintf("rate change failed: %v", msg.Err)
	}
	return fmt.Sprintf("%s rate by %d on %d instances", verb, abs(msg.Delta)*10, msg.Affected)
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the run started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// RunningInstances returns the current running instance count.
func (m Model) RunningInstances() int {
	if m.stats == nil {
		return 0
	}
	return m.stats.RunningInstances
}

// TargetInstances returns the configured instance count.
func (m Model) TargetInstances() int {
	return m.targetInstances
}

// RampProgress returns the ramp-up progress (0.0 to 1.0).
func (m Model) RampProgress() float64 {
	if m.targetInstances == 0 {
		return 0
	}
	return float64(m.RunningInstances()) / float64(m.targetInstances)
}

// RateAttainment returns the achieved share of the target call rate, or 0
// when no target is known.
func (m Model) RateAttainment() float64 {
	if m.stats == nil || m.stats.TargetRate <= 0 {
		return 0
	}
	return m.stats.CallRate / m.stats.TargetRate
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendStats sends a stats update to the TUI.
func SendStats(p *tea.Program, s *stats.AggregatedStats, instances []stats.InstanceStats) {
	if p != nil {
		p.Send(StatsMsg{Stats: s, Instances: instances})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	return stats.FormatDuration(d)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	return stats.FormatNumber(n)
}

// formatRate formats a rate with appropriate precision.
func formatRate(rate float64) string {
	return stats.FormatRate(rate)
}

// formatMs formats a duration as milliseconds.
func formatMs(d time.Duration) string {
	return stats.FormatMs(d)
}

// formatPercent formats a ratio as a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

// formatNumberWithCommas formats a number with thousand separators.
func formatNumberWithCommas(n int64) string {
	if n < 0 {
		return "0"
	}
	str := fmt.Sprintf("%d", n)
	if n < 1000 {
		return str
	}

	result := make([]byte, 0, len(str)+len(str)/3)
	for i := range len(str) {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, str[i])
	}
	return string(result)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
