package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSource names the embedded configuration in messages.
const DefaultSource = "<built-in>"

// defaultYAML is used when no configuration file exists. It serves the
// gateway on $PORT and talks to Groq with $GROQ_API_KEY.
//
//go:embed default.yaml
var defaultYAML []byte

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands environment variables,
// and parses it into a Config struct.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(raw, path)
}

// Default returns the embedded configuration with the environment applied.
func Default() (*Config, error) {
	return Parse(defaultYAML, DefaultSource)
}

// DefaultYAML returns the raw embedded configuration.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultYAML))
	copy(out, defaultYAML)
	return out
}

// Parse expands environment variables in raw and decodes it. source is
// used in error messages only.
func Parse(raw []byte, source string) (*Config, error) {
	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", source, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", source, err)
	}
	cfg.Relay.Defaults()

	return &cfg, nil
}

// expandEnv substitutes ${VAR} and ${VAR:-default}. A default also
// replaces a variable that is set but empty. A variable that is unset and
// has no default is an error naming every such variable.
func expandEnv(raw []byte) ([]byte, error) {
	var (
		out     bytes.Buffer
		missing []string
		last    int
	)
	for _, m := range envPattern.FindAllSubmatchIndex(raw, -1) {
		out.Write(raw[last:m[0]])
		last = m[1]

		name := string(raw[m[2]:m[3]])
		value, set := os.LookupEnv(name)
		hasDefault := m[4] >= 0
		switch {
		case hasDefault && value == "":
			out.Write(raw[m[4]:m[5]])
		case set:
			out.WriteString(value)
		default:
			missing = append(missing, name)
		}
	}
	out.Write(raw[last:])

	if len(missing) > 0 {
		return nil, fmt.Errorf("unset variables without a default: %s", strings.Join(missing, ", "))
	}
	return out.Bytes(), nil
}
