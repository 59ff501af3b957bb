// Package main provides the go-sipp-swarm CLI entry point.
//
// go-sipp-swarm supervises a swarm of SIPp processes, adjusts their call
// rates at runtime and exports their statistics over Prometheus, a REST
// API and a terminal dashboard.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/randomizedcoder/go-sipp-swarm/internal/config"
	"github.com/randomizedcoder/go-sipp-swarm/internal/logging"
	"github.com/randomizedcoder/go-sipp-swarm/internal/orchestrator"
	"github.com/randomizedcoder/go-sipp-swarm/internal/process"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-sipp-swarm
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-sipp-swarm %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	logger := logging.New(logging.Options{
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Verbose: cfg.Verbose,
		// The dashboard owns the terminal while it runs.
		Quiet: cfg.TUIEnabled && !cfg.PrintCmd,
	})
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if cfg.Check {
		config.ApplyCheckMode(cfg)
		logger.Info("check_mode_enabled", "instances", 1, "duration", cfg.Duration)
	}

	if cfg.PrintCmd {
		printSIPpCommands(os.Stdout, cfg)
		return 0
	}

	specs := cfg.InstanceSpecs()
	logger.Info("starting",
		"version", version,
		"instances", len(specs),
		"ramp_rate", cfg.RampRate,
		"sipp", cfg.SIPpPath,
		"metrics_addr", cfg.MetricsAddr,
		"api", cfg.API,
	)

	if !cfg.TUIEnabled {
		printBanner(os.Stdout, cfg, len(specs))
	}

	orch := orchestrator.New(cfg, logger, orchestrator.Options{Version: version})
	if err := orch.Run(context.Background()); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

// printBanner prints the startup banner.
func printBanner(w io.Writer, cfg *config.Config, instances int) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                          go-sipp-swarm                            ║")
	fmt.Fprintln(w, "║          SIP Load Generation with SIPp Process Supervision        ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Instances:   %d at %d/sec\n", instances, cfg.RampRate)
	fmt.Fprintf(w, "  SIPp:        %s\n", cfg.SIPpPath)
	fmt.Fprintf(w, "  Work dir:    %s\n", cfg.WorkDir)
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
		if cfg.API {
			fmt.Fprintf(w, "  REST API:    http://%s/sipp/instances\n", cfg.MetricsAddr)
		}
	}
	if cfg.Duration > 0 {
		fmt.Fprintf(w, "  Duration:    %s\n", cfg.Duration)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}

// printSIPpCommands prints the sipp command line of every configured instance.
func printSIPpCommands(w io.Writer, cfg *config.Config) {
	specs := cfg.InstanceSpecs()
	if len(specs) == 0 {
		fmt.Fprintln(w, "# No instances configured (use --count or a config file)")
		return
	}

	fmt.Fprintln(w, "# SIPp commands that would be run:")
	fmt.Fprintln(w)
	for _, spec := range specs {
		spec = spec.WithDefaults()
		runner := process.NewSIPpRunner(spec.SIPpConfig(cfg.SIPpPath, cfg.WorkDir))
		fmt.Fprintln(w, runner.CommandString())
	}
}
