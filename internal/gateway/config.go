package gateway

import (
	"cmp"
	"time"
)

// Config is the gateway.http section of the modules: map.
type Config struct {
	// Bind is host:port. The PORT environment variable feeds it through
	// the default configuration.
	Bind string `yaml:"bind"`

	Auth AuthConfig `yaml:"auth"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes is how much of a chat body is read. The rest is dropped.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// AllowedOrigins for CORS and WebSocket upgrades. Empty allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// DebugPage serves a bare HTML chat page at /debug-chat.
	DebugPage bool `yaml:"debug_page"`
}

func (c *Config) defaults() {
	c.Bind = cmp.Or(c.Bind, "0.0.0.0:3000")
	c.ReadTimeout = positive(c.ReadTimeout, 10*time.Second)
	c.WriteTimeout = positive(c.WriteTimeout, time.Minute)
	c.ShutdownTimeout = positive(c.ShutdownTimeout, 5*time.Second)
	c.MaxBodyBytes = positive(c.MaxBodyBytes, 64<<10)
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
}

func positive[T time.Duration | int64](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

// AuthConfig guards the /admin routes. With neither a bearer token nor a
// full basic pair set, the admin API is not mounted.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured reports whether any credential is set.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || a.BasicUser != "" && a.BasicPass != ""
}
