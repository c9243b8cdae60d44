package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/robfig/cron/v3"

	"github.com/flemzord/streamexec/internal/remote"
)

// Validate checks the structural validity of a Config. All problems are
// collected and returned together so an operator can fix a config in one
// pass.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: logging.format %q is not text or json", cfg.Logging.Format))
	}

	errs = append(errs, validateProviders(cfg.Providers)...)

	if cfg.Gateway.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Gateway.Listen); err != nil {
			errs = append(errs, fmt.Errorf("config: gateway.listen %q: %w", cfg.Gateway.Listen, err))
		}
	}

	errs = append(errs, validateSchedule("checkpoint.prune_schedule", cfg.Checkpoint.PruneSchedule)...)
	errs = append(errs, validateSchedule("gateway.health_schedule", cfg.Gateway.HealthSchedule)...)

	return errors.Join(errs...)
}

func validateProviders(providers []ProviderConfig) []error {
	var errs []error
	seen := make(map[string]bool)

	for i, p := range providers {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("config: providers[%d]: id is required", i))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("config: providers[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true

		spec := remote.ProviderSpec{
			ID:        p.ID,
			Transport: remote.Transport(p.Transport),
			Command:   p.Command,
			URL:       p.URL,
		}
		if err := spec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: providers[%d] (%s): %w", i, p.ID, err))
		}
	}
	return errs
}

func validateSchedule(field, expr string) []error {
	if expr == "" {
		return nil
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return []error{fmt.Errorf("config: %s %q: %w", field, expr, err)}
	}
	return nil
}
