// Package config provides configuration management for go-sipp-swarm.
package config

import (
	"time"

	"github.com/randomizedcoder/go-sipp-swarm/internal/instance"
)

// Config holds all configuration options for the orchestrator.
type Config struct {
	// Orchestration
	RampRate   int           `json:"ramp_rate" mapstructure:"ramp_rate"`
	RampJitter time.Duration `json:"ramp_jitter" mapstructure:"ramp_jitter"`
	Duration   time.Duration `json:"duration" mapstructure:"duration"` // 0 = forever
	Workers    int           `json:"workers" mapstructure:"workers"`

	// Quick instances, used when no instances are configured
	Count      int    `json:"count" mapstructure:"count"`
	Scenario   string `json:"scenario" mapstructure:"scenario"`
	RemoteHost string `json:"remote_host" mapstructure:"remote_host"`
	RemotePort int    `json:"remote_port" mapstructure:"remote_port"`
	Rate       int    `json:"rate" mapstructure:"rate"`

	// Instances from the config file
	Instances []instance.Spec `json:"instances" mapstructure:"instances"`

	// SIPp
	SIPpPath     string        `json:"sipp_path" mapstructure:"sipp_path"`
	SIPpVersion  string        `json:"sipp_version" mapstructure:"sipp_version"` // empty = probe
	WorkDir      string        `json:"work_dir" mapstructure:"work_dir"`
	ScenarioDir  string        `json:"scenario_dir" mapstructure:"scenario_dir"`
	StartTimeout time.Duration `json:"start_timeout" mapstructure:"start_timeout"`
	StopWait     time.Duration `json:"stop_wait" mapstructure:"stop_wait"`
	TailInterval time.Duration `json:"tail_interval" mapstructure:"tail_interval"`
	CleanUp      bool          `json:"cleanup" mapstructure:"cleanup"`

	// Observability
	MetricsAddr  string        `json:"metrics_addr" mapstructure:"metrics_addr"`
	API          bool          `json:"api" mapstructure:"api"`
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	Verbose      bool          `json:"verbose" mapstructure:"verbose"`
	LogFormat    string        `json:"log_format" mapstructure:"log_format"` // json, text
	LogLevel     string        `json:"log_level" mapstructure:"log_level"`
	TUIEnabled   bool          `json:"tui" mapstructure:"tui"`

	// Diagnostic modes
	PrintCmd      bool   `json:"print_cmd" mapstructure:"print_cmd"`
	Check         bool   `json:"check" mapstructure:"check"`
	SkipPreflight bool   `json:"skip_preflight" mapstructure:"skip_preflight"`
	ConfigFile    string `json:"config_file" mapstructure:"config_file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Orchestration
		RampRate:   5,
		RampJitter: 200 * time.Millisecond,
		Duration:   0, // Forever
		Workers:    16,

		// Quick instances
		Count:      0,
		Scenario:   "uac",
		RemotePort: 5060,

		// SIPp
		SIPpPath:     "sipp",
		WorkDir:      ".",
		StartTimeout: 10 * time.Second,
		StopWait:     time.Second,
		TailInterval: 500 * time.Millisecond,

		// Observability
		MetricsAddr:  "0.0.0.0:17092",
		API:          true,
		PollInterval: time.Second,
		LogFormat:    "json",
		LogLevel:     "info",
		TUIEnabled:   true,
	}
}

// InstanceSpecs returns the configured instances, or Count quick instances
// built from the scenario flags. Quick instances always autostart.
func (c *Config) InstanceSpecs() []instance.Spec {
	specs := make([]instance.Spec, 0, max(len(c.Instances), c.Count))
	for _, s := range c.Instances {
		if s.ScenarioDir == "" {
			s.ScenarioDir = c.ScenarioDir
		}
		specs = append(specs, s)
	}
	if len(specs) > 0 {
		return specs
	}

	for i := 0; i < c.Count; i++ {
		specs = append(specs, instance.Spec{
			Scenario:    c.Scenario,
			ScenarioDir: c.ScenarioDir,
			InitialRate: c.Rate,
			RemoteHost:  c.RemoteHost,
			RemotePort:  c.RemotePort,
			Autostart:   true,
		})
	}
	return specs
}

// ApplyCheckMode modifies config for --check mode.
func ApplyCheckMode(cfg *Config) {
	cfg.Count = 1
	cfg.Instances = nil
	cfg.Duration = 10 * time.Second
	cfg.Verbose = true
}
