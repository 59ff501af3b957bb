package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/randomizedcoder/go-sipp-swarm/internal/parser"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.SIPpPath == "" {
		errs = append(errs, ValidationError{
			Field:   "sipp_path",
			Message: "must not be empty",
		})
	}

	if cfg.SIPpVersion != "" {
		if _, err := parser.ParseVersion(cfg.SIPpVersion); err != nil {
			errs = append(errs, ValidationError{
				Field:   "sipp_version",
				Message: err.Error(),
			})
		}
	}

	if cfg.Count < 0 {
		errs = append(errs, ValidationError{
			Field:   "count",
			Message: "must not be negative",
		})
	}

	// Something to run, unless only printing commands
	if cfg.Count == 0 && len(cfg.Instances) == 0 && !cfg.API && !cfg.PrintCmd {
		errs = append(errs, ValidationError{
			Field:   "instances",
			Message: "nothing to run: set --count, configure instances or enable --api",
		})
	}

	if cfg.RampRate < 1 {
		errs = append(errs, ValidationError{
			Field:   "ramp_rate",
			Message: "must be at least 1",
		})
	}
	if cfg.RampJitter < 0 {
		errs = append(errs, ValidationError{
			Field:   "ramp_jitter",
			Message: "must not be negative",
		})
	}
	if cfg.Workers < 1 {
		errs = append(errs, ValidationError{
			Field:   "workers",
			Message: "must be at least 1",
		})
	}

	if cfg.Rate < 0 {
		errs = append(errs, ValidationError{
			Field:   "rate",
			Message: "must not be negative",
		})
	}
	if cfg.RemotePort < 1 || cfg.RemotePort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "remote_port",
			Message: fmt.Sprintf("must be 1-65535 (got %d)", cfg.RemotePort),
		})
	}

	// uac quick instances need somewhere to call
	if cfg.Count > 0 && len(cfg.Instances) == 0 &&
		strings.EqualFold(cfg.Scenario, "uac") && cfg.RemoteHost == "" {
		errs = append(errs, ValidationError{
			Field:   "remote_host",
			Message: "required for uac scenario",
		})
	}
	if cfg.RemoteHost != "" {
		if err := validateHost(cfg.RemoteHost); err != nil {
			errs = append(errs, ValidationError{
				Field:   "remote_host",
				Message: err.Error(),
			})
		}
	}

	names := make(map[string]int, len(cfg.Instances))
	for i, spec := range cfg.Instances {
		field := fmt.Sprintf("instances[%d]", i)
		if err := spec.WithDefaults().Validate(); err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: err.Error(),
			})
		}
		if spec.Name == "" {
			continue
		}
		if prev, dup := names[spec.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate name %q (also instances[%d])", spec.Name, prev),
			})
		}
		names[spec.Name] = i
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be debug, info, warn or error (got %q)", cfg.LogLevel),
		})
	}

	if cfg.StartTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "start_timeout",
			Message: "must be positive",
		})
	}
	if cfg.StopWait < 0 {
		errs = append(errs, ValidationError{
			Field:   "stop_wait",
			Message: "must not be negative",
		})
	}
	if cfg.TailInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "tail_interval",
			Message: "must be positive",
		})
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "poll_interval",
			Message: "must be positive",
		})
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: err.Error(),
			})
		}
	} else if cfg.API {
		errs = append(errs, ValidationError{
			Field:   "api",
			Message: "requires a metrics address",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateHost accepts an IP address or a host name.
func validateHost(host string) error {
	if strings.Contains(host, "://") {
		return errors.New("must be a host, not a URL")
	}
	if strings.ContainsAny(host, " /") {
		return fmt.Errorf("invalid host %q", host)
	}
	return nil
}
