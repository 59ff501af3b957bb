// This file implements the exit summary printed when the swarm shuts down.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════════════════════════\n"
	ruleLight = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// TargetInstances is the number of instances that were configured
	TargetInstances int

	// PeakActive is the highest number of simultaneously active instances
	PeakActive int

	// Duration is the total run duration
	Duration time.Duration

	// MetricsAddr is the metrics endpoint address
	MetricsAddr string

	// APIEnabled adds the REST endpoint to the footer
	APIEnabled bool

	// ShowPerInstanceStats enables the per-instance table
	ShowPerInstanceStats bool

	// ExitCodes is a map of exit codes to counts (from metrics.Collector)
	ExitCodes map[int]int64

	// TotalStarts is the total number of sipp launches
	TotalStarts int64

	// UptimeP50, UptimeP95, UptimeP99 are uptime percentiles
	UptimeP50 time.Duration
	UptimeP95 time.Duration
	UptimeP99 time.Duration
}

// FormatExitSummary formats aggregated stats for display at program exit.
//
// Sections are skipped when they have nothing to show.
func FormatExitSummary(stats *AggregatedStats, instances []InstanceStats, cfg SummaryConfig) string {
	if stats == nil {
		return formatBasicSummary(cfg)
	}

	var b strings.Builder

	writeTitle(&b)

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Target Instances:       %d\n", cfg.TargetInstances)
	fmt.Fprintf(&b, "Peak Active Instances:  %d\n\n", cfg.PeakActive)

	// Calls
	writeSection(&b, "Call Statistics")

	fmt.Fprintf(&b, "  Calls Created:        %s  (%s avg)\n",
		FormatNumber(stats.TotalCalls), FormatRate(stats.AverageCallRate))
	fmt.Fprintf(&b, "  Successful:           %s\n", FormatNumber(stats.SuccessfulCalls))
	fmt.Fprintf(&b, "  Failed:               %s\n", FormatNumber(stats.FailedCalls))
	if stats.SuccessfulCalls+stats.FailedCalls > 0 {
		fmt.Fprintf(&b, "  Success Rate:         %.2f%%\n", stats.SuccessRate*100)
	}
	fmt.Fprintf(&b, "  Last Target Rate:     %s\n", FormatRate(stats.TargetRate))
	fmt.Fprintf(&b, "  Last Call Rate:       %s\n", FormatRate(stats.CallRate))
	fmt.Fprintf(&b, "  Retransmissions:      %s\n\n", FormatNumber(stats.RetransmissionsTotal))

	// Response times
	if len(stats.ResponseTimes) > 0 {
		writeSection(&b, "Response Times")

		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(stats.ResponseTimeP50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(stats.ResponseTimeP95))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatMs(stats.ResponseTimeP99))
		b.WriteString("\n")
		for _, bk := range stats.ResponseTimes {
			fmt.Fprintf(&b, "  %-14s %10d\n", bucketRange(bk.Lower, bk.Upper), bk.Count)
		}
		b.WriteString("\n")
	}

	// Failures
	if len(stats.Failures) > 0 {
		writeSection(&b, "Failures")

		labels := make([]string, 0, len(stats.Failures))
		for label := range stats.Failures {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			fmt.Fprintf(&b, "  %-30s %10d\n", failureName(label), stats.Failures[label])
		}
		b.WriteString("\n")
	}

	// Uptime distribution (from metrics.Collector)
	if cfg.UptimeP50 > 0 || cfg.UptimeP95 > 0 {
		writeSection(&b, "Uptime Distribution")

		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatDuration(cfg.UptimeP50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatDuration(cfg.UptimeP95))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatDuration(cfg.UptimeP99))
		b.WriteString("\n")
	}

	if cfg.TotalStarts > 0 {
		writeSection(&b, "Lifecycle")
		fmt.Fprintf(&b, "  Total Starts:         %d\n\n", cfg.TotalStarts)
	}

	// Exit codes (from metrics.Collector)
	if len(cfg.ExitCodes) > 0 {
		writeSection(&b, "Exit Codes")

		codes := make([]int, 0, len(cfg.ExitCodes))
		for code := range cfg.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, exitCodeLabel(code), cfg.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	if cfg.ShowPerInstanceStats && len(instances) > 0 {
		writeSection(&b, "Instances")

		fmt.Fprintf(&b, "  %-24s %8s %10s %10s %8s %6s\n", "Name", "Starts", "Calls", "Failed", "Retrans", "Exit")
		b.WriteString("  " + strings.Repeat("─", 71) + "\n")
		for _, in := range instances {
			exit := "-"
			if in.LastExitCode >= 0 {
				exit = fmt.Sprintf("%d", in.LastExitCode)
			}
			fmt.Fprintf(&b, "  %-24s %8d %10s %10s %8d %6s\n",
				truncate(in.Name, 24),
				in.Starts,
				FormatNumber(in.TotalCalls),
				FormatNumber(in.FailedCalls),
				in.Retransmissions,
				exit,
			)
		}
		b.WriteString("\n")
	}

	writeEndpoints(&b, cfg)
	b.WriteString(ruleHeavy)

	return b.String()
}

// formatBasicSummary formats a basic summary when stats are not available.
func formatBasicSummary(cfg SummaryConfig) string {
	var b strings.Builder

	writeTitle(&b)

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Target Instances:       %d\n\n", cfg.TargetInstances)

	b.WriteString("(No telemetry was collected)\n\n")

	writeEndpoints(&b, cfg)
	b.WriteString(ruleHeavy)

	return b.String()
}

func writeTitle(b *strings.Builder) {
	b.WriteString("\n")
	b.WriteString(ruleHeavy)
	b.WriteString("                          go-sipp-swarm Exit Summary\n")
	b.WriteString(ruleHeavy)
	b.WriteString("\n")
}

// writeSection writes a centered section header.
func writeSection(b *strings.Builder, title string) {
	pad := (79 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(ruleLight)
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(ruleLight)
	b.WriteString("\n")
}

func writeEndpoints(b *strings.Builder, cfg SummaryConfig) {
	if cfg.MetricsAddr == "" {
		return
	}
	fmt.Fprintf(b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	if cfg.APIEnabled {
		fmt.Fprintf(b, "REST API was:         http://%s/sipp/instances\n", cfg.MetricsAddr)
	}
}

func bucketRange(lower, upper int) string {
	if upper < 0 {
		return fmt.Sprintf(">= %d ms", lower)
	}
	return fmt.Sprintf("%d-%d ms", lower, upper)
}

// failureName strips the periodic suffix from a failure column label.
func failureName(label string) string {
	return strings.TrimSuffix(label, "(P)")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(calls failed)"
	case 97:
		return "(internal cmd)"
	case 99:
		return "(no calls)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	case 255:
		return "(fatal)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n uint64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
