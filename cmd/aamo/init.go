package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/aamo/internal/config"
)

var envNamePattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// initAnswers holds what `aamo init` asks for.
type initAnswers struct {
	Port     string
	Provider string
	Model    string
	KeyEnv   string
	Window   string
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Port:     "3000",
		Provider: "provider.openai_compatible",
		Model:    "llama-3.1-8b-instant",
		KeyEnv:   "GROQ_API_KEY",
		Window:   strconv.Itoa(config.DefaultWindow),
	}
}

func initCmd() *cobra.Command {
	var (
		force bool
		yes   bool
	)
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "aamo.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			answers := defaultAnswers()
			if !yes {
				if err := initForm(&answers).Run(); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						return nil
					}
					return err
				}
			}

			raw, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(path, raw, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Accept the defaults without prompting")
	return cmd
}

func initForm(a *initAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Port").
				Description("Used when $PORT is not set.").
				Value(&a.Port).
				Validate(validatePort),
			huh.NewSelect[string]().
				Title("Provider").
				Options(
					huh.NewOption("Groq / OpenAI-compatible endpoint", "provider.openai_compatible"),
					huh.NewOption("OpenAI", "provider.openai"),
				).
				Value(&a.Provider),
			huh.NewInput().
				Title("Model").
				Value(&a.Model),
			huh.NewInput().
				Title("API key environment variable").
				Value(&a.KeyEnv).
				Validate(validateEnvName),
			huh.NewInput().
				Title("Turns remembered per session").
				Value(&a.Window).
				Validate(validateWindow),
		),
	)
}

func validatePort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return errors.New("port must be a number between 1 and 65535")
	}
	return nil
}

func validateEnvName(s string) error {
	if !envNamePattern.MatchString(s) {
		return errors.New("use an upper-case variable name like GROQ_API_KEY")
	}
	return nil
}

func validateWindow(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 2 {
		return errors.New("window must be a number of at least 2")
	}
	return nil
}

// renderConfig turns answers into a configuration file and checks that
// it loads and validates.
func renderConfig(a initAnswers) ([]byte, error) {
	for _, check := range []error{validatePort(a.Port), validateEnvName(a.KeyEnv), validateWindow(a.Window)} {
		if check != nil {
			return nil, check
		}
	}
	window, _ := strconv.Atoi(a.Window)

	providerCfg := map[string]string{
		"api_key": "${" + a.KeyEnv + ":-}",
	}
	if a.Model != "" {
		providerCfg["model"] = a.Model
	}

	doc := map[string]any{
		"version": "1",
		"modules": map[string]any{
			"gateway.http": map[string]string{
				"bind": "0.0.0.0:${PORT:-" + a.Port + "}",
			},
			a.Provider: providerCfg,
		},
		"relay": map[string]int{
			"window": window,
		},
		"logging": map[string]string{
			"level": "${LOG_LEVEL:-info}",
		},
	}

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	cfg, err := config.Parse(raw, "aamo init")
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return raw, nil
}
