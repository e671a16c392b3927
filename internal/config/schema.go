// Package config handles YAML configuration loading, environment variable
// expansion, defaults, and structural validation for aamo.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/aamo/internal/guard"
	"github.com/flemzord/aamo/internal/persona"
	"github.com/flemzord/aamo/internal/security"
	"github.com/flemzord/aamo/internal/telemetry"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "gateway.http").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Relay tunes the chat pipeline.
	Relay RelayConfig `yaml:"relay"`

	// Logging selects log level and format.
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry configures trace export.
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Security holds rate limiting settings.
	Security SecurityConfig `yaml:"security"`
}

// RelayConfig tunes the chat pipeline.
type RelayConfig struct {
	// Window is the number of turns kept per session.
	Window int `yaml:"window"`

	// DefaultSession is used when a request names no session.
	DefaultSession string `yaml:"default_session"`

	// Placeholder replaces a blank message.
	Placeholder string `yaml:"placeholder"`

	// MaxMessageRunes truncates longer messages. Zero disables truncation.
	MaxMessageRunes *int `yaml:"max_message_runes"`

	// Temperature is the sampling temperature sent upstream.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens caps the completion length.
	MaxTokens int `yaml:"max_tokens"`

	// Timeout bounds each upstream call. Zero means none.
	Timeout time.Duration `yaml:"timeout"`

	Persona persona.Config `yaml:"persona"`
	Guard   guard.Config   `yaml:"guard"`

	// IdleTTL enables pruning of sessions idle for longer. Zero keeps
	// sessions for the process lifetime.
	IdleTTL time.Duration `yaml:"idle_ttl"`

	// PruneSchedule is the cron expression of the pruning job.
	PruneSchedule string `yaml:"prune_schedule"`
}

// Relay defaults.
const (
	DefaultWindow          = 10
	DefaultSession         = "session1"
	DefaultPlaceholder     = "..."
	DefaultMaxMessageRunes = 1000
	DefaultTemperature     = 0.7
	DefaultMaxTokens       = 160
	DefaultPruneSchedule   = "*/5 * * * *"
)

// Defaults fills unset relay fields.
func (c *RelayConfig) Defaults() {
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.DefaultSession == "" {
		c.DefaultSession = DefaultSession
	}
	if c.Placeholder == "" {
		c.Placeholder = DefaultPlaceholder
	}
	if c.MaxMessageRunes == nil {
		n := DefaultMaxMessageRunes
		c.MaxMessageRunes = &n
	}
	if c.Temperature == nil {
		t := DefaultTemperature
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.PruneSchedule == "" {
		c.PruneSchedule = DefaultPruneSchedule
	}
}

// LoggingConfig selects the log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default info.
	Level string `yaml:"level"`

	// Format is text or json. Default text.
	Format string `yaml:"format"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	RateLimit security.RateLimitConfig `yaml:"rate_limit"`
}
