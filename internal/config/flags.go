package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

// ErrHelp is returned when -h or --help was requested.
var ErrHelp = pflag.ErrHelp

// flagKeys maps every flag to its configuration key.
var flagKeys = map[string]string{
	"ramp-rate":      "ramp_rate",
	"ramp-jitter":    "ramp_jitter",
	"duration":       "duration",
	"workers":        "workers",
	"count":          "count",
	"scenario":       "scenario",
	"remote":         "remote_host",
	"remote-port":    "remote_port",
	"rate":           "rate",
	"sipp":           "sipp_path",
	"sipp-version":   "sipp_version",
	"work-dir":       "work_dir",
	"scenario-dir":   "scenario_dir",
	"start-timeout":  "start_timeout",
	"stop-wait":      "stop_wait",
	"tail-interval":  "tail_interval",
	"cleanup":        "cleanup",
	"metrics":        "metrics_addr",
	"api":            "api",
	"poll-interval":  "poll_interval",
	"verbose":        "verbose",
	"log-format":     "log_format",
	"log-level":      "log_level",
	"tui":            "tui",
	"print-cmd":      "print_cmd",
	"check":          "check",
	"skip-preflight": "skip_preflight",
	"config":         "config_file",
}

// ParseFlags parses os.Args and the optional config file into a Config.
func ParseFlags() (*Config, error) {
	cfg, err := Load(os.Args[1:], os.Stderr)
	if errors.Is(err, ErrHelp) {
		os.Exit(0)
	}
	return cfg, err
}

// Load parses args, reads the --config file if given and merges both over
// the defaults. Explicit flags win over the file.
func Load(args []string, usageOut io.Writer) (*Config, error) {
	fs := newFlagSet(DefaultConfig(), usageOut)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := merge(fs, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newFlagSet(cfg *Config, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("go-sipp-swarm", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false

	fs.Usage = func() {
		fmt.Fprintf(out, `go-sipp-swarm - SIPp load generation with process orchestration

Usage:
  go-sipp-swarm [flags]

Orchestration Flags:
`)
		printFlagCategory(out, fs, []string{"count", "ramp-rate", "ramp-jitter", "duration", "workers"})

		fmt.Fprintf(out, "\nQuick Instances:\n")
		printFlagCategory(out, fs, []string{"scenario", "remote", "remote-port", "rate"})

		fmt.Fprintf(out, "\nSIPp:\n")
		printFlagCategory(out, fs, []string{"sipp", "sipp-version", "work-dir", "scenario-dir", "start-timeout", "stop-wait", "tail-interval", "cleanup"})

		fmt.Fprintf(out, "\nSafety & Diagnostics:\n")
		printFlagCategory(out, fs, []string{"print-cmd", "check", "skip-preflight", "config"})

		fmt.Fprintf(out, "\nObservability:\n")
		printFlagCategory(out, fs, []string{"metrics", "api", "poll-interval", "verbose", "log-format", "log-level"})

		fmt.Fprintf(out, "\nDashboard:\n")
		printFlagCategory(out, fs, []string{"tui"})

		fmt.Fprintf(out, `
Examples:
  # Ten uac callers against one proxy, 20 calls/s each
  go-sipp-swarm --count 10 --remote 10.0.0.5 --rate 20

  # Instances from a file, REST API and metrics on :17092
  go-sipp-swarm --config swarm.yaml

  # Show the sipp command line and exit
  go-sipp-swarm --remote 10.0.0.5 --print-cmd

`)
	}

	// Orchestration
	fs.IntVarP(&cfg.Count, "count", "n", cfg.Count, "Quick instances to create when the config has none")
	fs.IntVar(&cfg.RampRate, "ramp-rate", cfg.RampRate, "Instances to start per second")
	fs.DurationVar(&cfg.RampJitter, "ramp-jitter", cfg.RampJitter, "Random jitter per instance start")
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Run duration (0 = forever)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Shared worker pool size")

	// Quick instances
	fs.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, `Scenario: "uac", "uas" or a scenario XML file`)
	fs.StringVar(&cfg.RemoteHost, "remote", cfg.RemoteHost, "Remote host for uac scenarios")
	fs.IntVar(&cfg.RemotePort, "remote-port", cfg.RemotePort, "Remote port")
	fs.IntVar(&cfg.Rate, "rate", cfg.Rate, "Initial call rate per instance (0 = sipp default)")

	// SIPp
	fs.StringVar(&cfg.SIPpPath, "sipp", cfg.SIPpPath, "Path to sipp binary")
	fs.StringVar(&cfg.SIPpVersion, "sipp-version", cfg.SIPpVersion, "Statistics schema version (empty = probe the binary)")
	fs.StringVar(&cfg.WorkDir, "work-dir", cfg.WorkDir, "Directory sipp runs in and writes telemetry to")
	fs.StringVar(&cfg.ScenarioDir, "scenario-dir", cfg.ScenarioDir, "Directory for relative scenario files")
	fs.DurationVar(&cfg.StartTimeout, "start-timeout", cfg.StartTimeout, "Maximum time for a sipp start")
	fs.DurationVar(&cfg.StopWait, "stop-wait", cfg.StopWait, "Grace period after sending quit")
	fs.DurationVar(&cfg.TailInterval, "tail-interval", cfg.TailInterval, "Telemetry poll interval")
	fs.BoolVar(&cfg.CleanUp, "cleanup", cfg.CleanUp, "Delete telemetry files on exit")

	// Safety & Diagnostics
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print sipp commands and exit")
	fs.BoolVar(&cfg.Check, "check", cfg.Check, "Validate config and run 1 instance for 10 seconds")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.StringVarP(&cfg.ConfigFile, "config", "c", cfg.ConfigFile, "YAML, JSON or TOML config file")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Metrics, health and API address (empty = disabled)")
	fs.BoolVar(&cfg.API, "api", cfg.API, "Serve the REST API on the metrics address")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Stats and resource sampling interval")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)

	// Dashboard
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard (use --tui=false to disable)")

	return fs
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(out io.Writer, fs *pflag.FlagSet, names []string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		flagName := "--" + f.Name
		if f.Shorthand != "" {
			flagName = "-" + f.Shorthand + ", " + flagName
		}
		fmt.Fprintf(out, "  %s %s\n    \t%s", flagName, flagType(f), f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
			fmt.Fprintf(out, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(out)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *pflag.Flag) string {
	if t := f.Value.Type(); t != "bool" {
		return t
	}
	return ""
}
