package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/flemzord/aamo/internal/config"
	"github.com/flemzord/aamo/internal/core"
	"github.com/flemzord/aamo/internal/security"
	"github.com/flemzord/aamo/pkg/app"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and check configuration files",
	}
	check := &cobra.Command{
		Use:   "check <path>",
		Short: "Validate a configuration and provision its modules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkConfig(cmd.OutOrStdout(), args[0])
		},
	}
	def := &cobra.Command{
		Use:   "default",
		Short: "Print the built-in configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(config.DefaultYAML())
			return err
		},
	}
	cmd.AddCommand(check, def)
	return cmd
}

// checkConfig goes as far as Provision and Validate, then releases every
// module without starting any.
func checkConfig(w io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	logger, err := app.NewLogger(io.Discard, cfg.Logging, security.NewRedactor())
	if err != nil {
		return err
	}

	ids := config.Resolve(cfg)
	a := core.NewApp(core.NewAppContext(logger, app.DefaultDataDir()).WithModuleConfigs(cfg.Modules))
	if err := a.LoadModules(ids); err != nil {
		return err
	}
	defer a.Abort()

	fmt.Fprintf(w, "Configuration OK (%d modules)\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(w, "  %s\n", id)
	}
	return nil
}
