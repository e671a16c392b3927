// Command aamo runs the relay and the tooling around it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flemzord/aamo/internal/core"
	"github.com/flemzord/aamo/pkg/app"
)

// Stamped by goreleaser.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aamo: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aamo",
		Short:         "A small conversational relay in front of a chat completion API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCmd(),
		versionCmd(),
		configCmd(),
		initCmd(),
		serviceCmd(),
	)
	return root
}

func serveCmd() *cobra.Command {
	var params app.RunParams
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runUntil(ctx, params)
		},
	}
	addRunFlags(cmd, &params)
	return cmd
}

// addRunFlags binds the flags shared by serve and service run.
func addRunFlags(cmd *cobra.Command, params *app.RunParams) {
	f := cmd.Flags()
	f.StringVarP(&params.ConfigPath, "config", "c", "", "configuration file (default: built-in)")
	f.StringVar(&params.LogLevel, "log-level", "", "override logging.level: debug, info, warn or error")
	f.StringVar(&params.DataDir, "data-dir", "", "directory for persistent data")
}

func runUntil(ctx context.Context, params app.RunParams) error {
	params.Version, params.Commit, params.Date = version, commit, date
	return app.Run(ctx, params)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build and the modules compiled in",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "aamo %s (commit: %s, built: %s)\n\nCompiled modules:\n", version, commit, date)
			for _, info := range core.GetModules() {
				fmt.Fprintf(w, "  %s\n", info.ID)
			}
		},
	}
}
