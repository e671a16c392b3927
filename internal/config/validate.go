package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/flemzord/aamo/internal/core"
)

const (
	// providerPrefix is the namespace of completion provider modules.
	providerPrefix = "provider."

	maxWindow = 1000
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present and
// registered, allows at most one completion provider, and range-checks
// the relay, logging, telemetry and rate limit sections.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	var providers []string
	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
		if strings.HasPrefix(id, providerPrefix) {
			providers = append(providers, id)
		}
	}
	// Each exchange makes at most one upstream call, so there is nothing
	// to fall back to.
	if len(providers) > 1 {
		errs = append(errs, fmt.Errorf("config: at most one provider module may be configured, got %s", strings.Join(providers, ", ")))
	}

	errs = append(errs, validateRelay(&cfg.Relay)...)
	errs = append(errs, validateLogging(cfg.Logging)...)

	if err := cfg.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: telemetry: %w", err))
	}

	rl := cfg.Security.RateLimit
	if rl.MessagesPerMin < 0 || rl.Burst < 0 || rl.MaxKeys < 0 {
		errs = append(errs, errors.New("config: security.rate_limit values must not be negative"))
	}

	return errors.Join(errs...)
}

func validateRelay(r *RelayConfig) []error {
	var errs []error

	if r.Window < 0 || r.Window > maxWindow {
		errs = append(errs, fmt.Errorf("config: relay.window must be between 1 and %d, got %d", maxWindow, r.Window))
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		errs = append(errs, fmt.Errorf("config: relay.temperature must be between 0 and 2, got %g", *r.Temperature))
	}
	if r.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("config: relay.max_tokens must not be negative, got %d", r.MaxTokens))
	}
	if r.MaxMessageRunes != nil && *r.MaxMessageRunes < 0 {
		errs = append(errs, fmt.Errorf("config: relay.max_message_runes must not be negative, got %d", *r.MaxMessageRunes))
	}
	if r.Timeout < 0 {
		errs = append(errs, errors.New("config: relay.timeout must not be negative"))
	}
	if r.IdleTTL < 0 {
		errs = append(errs, errors.New("config: relay.idle_ttl must not be negative"))
	}
	if r.IdleTTL > 0 && r.PruneSchedule != "" {
		if _, err := cron.ParseStandard(r.PruneSchedule); err != nil {
			errs = append(errs, fmt.Errorf("config: relay.prune_schedule: %w", err))
		}
	}

	return errs
}

func validateLogging(l LoggingConfig) []error {
	var errs []error
	if l.Level != "" {
		if _, err := ParseLevel(l.Level); err != nil {
			errs = append(errs, err)
		}
	}
	switch strings.ToLower(l.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: logging.format must be text or json, got %q", l.Format))
	}
	return errs
}

// ParseLevel converts a level name to a slog.Level. An empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	var lvl slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: logging.level %q: must be debug, info, warn or error", name)
	}
	return lvl, nil
}
