package openai

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/flemzord/aamo/internal/provider"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Config holds the configuration for the OpenAI provider module.
type Config struct {
	// BaseURL overrides the SDK's default endpoint, for proxies and
	// compatible services.
	BaseURL string `yaml:"base_url"`

	APIKey       string   `yaml:"api_key"`
	APIKeys      []string `yaml:"api_keys"`
	Organization string   `yaml:"organization"`

	Model     string                `yaml:"model"`
	MaxTokens int                   `yaml:"max_tokens"`
	Timeout   time.Duration         `yaml:"timeout"`
	Health    provider.HealthConfig `yaml:"health"`
}

// defaults fills zero-valued fields with sensible defaults.
func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
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

func (c *Config) validate() error {
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("provider.openai: base_url must be an http(s) URL, got %q", c.BaseURL)
		}
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("provider.openai: max_tokens must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("provider.openai: timeout must not be negative")
	}
	return nil
}
