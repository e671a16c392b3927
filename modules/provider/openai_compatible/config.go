package openaicompat

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/flemzord/aamo/internal/provider"
)

// Defaults target Groq's OpenAI-compatible endpoint.
const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.1-8b-instant"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	BaseURL string `yaml:"base_url"`

	// APIKey is the bearer credential. APIKeys adds more keys that are
	// rotated through when the upstream rate limits. With no key at all
	// the module stays loaded but registers no upstream.
	APIKey  string   `yaml:"api_key"`
	APIKeys []string `yaml:"api_keys"`

	Model     string                `yaml:"model"`
	MaxTokens int                   `yaml:"max_tokens"`
	Headers   map[string]string     `yaml:"headers"`
	Timeout   time.Duration         `yaml:"timeout"`
	Health    provider.HealthConfig `yaml:"health"`
}

// defaults sets default values for unset fields.
func (c *Config) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
}

// keys returns the non-blank configured keys, primary first.
func (c *Config) keys() []string {
	var out []string
	for _, k := range append([]string{c.APIKey}, c.APIKeys...) {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// validate returns an error if the configuration cannot work. A missing
// key is not an error.
func (c *Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("provider.openai_compatible: base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("provider.openai_compatible: base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.Model == "" {
		return errMissingField("model")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("provider.openai_compatible: max_tokens must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("provider.openai_compatible: timeout must not be negative")
	}
	return nil
}
