package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/aamo/pkg/app"
)

// program adapts the relay to the service manager's Start/Stop calls.
type program struct {
	params app.RunParams
	cancel context.CancelFunc
	done   chan error
	logger service.Logger
}

func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		err := runUntil(ctx, p.params)
		if err != nil && p.logger != nil {
			_ = p.logger.Error(err)
		}
		p.done <- err
	}()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

func serviceConfig(params app.RunParams) (*service.Config, error) {
	args := []string{"service", "run"}
	if params.ConfigPath != "" {
		abs, err := filepath.Abs(params.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		args = append(args, "--config", abs)
	}
	if params.DataDir != "" {
		abs, err := filepath.Abs(params.DataDir)
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		args = append(args, "--data-dir", abs)
	}
	if params.LogLevel != "" {
		args = append(args, "--log-level", params.LogLevel)
	}
	return &service.Config{
		Name:        "aamo",
		DisplayName: "Aamo relay",
		Description: "Conversational relay in front of a chat completion API.",
		Arguments:   args,
	}, nil
}

func serviceCmd() *cobra.Command {
	var params app.RunParams
	cmd := &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart|run>",
		Short:     "Manage aamo as a system service",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: append([]string{"run"}, service.ControlAction[:]...),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcCfg, err := serviceConfig(params)
			if err != nil {
				return err
			}
			prg := &program{params: params}
			svc, err := service.New(prg, svcCfg)
			if err != nil {
				return fmt.Errorf("service: %w", err)
			}

			if args[0] == "run" {
				if prg.logger, err = svc.Logger(nil); err != nil {
					return fmt.Errorf("service logger: %w", err)
				}
				return svc.Run()
			}

			if err := service.Control(svc, args[0]); err != nil {
				return fmt.Errorf("service %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", args[0])
			return nil
		},
	}
	addRunFlags(cmd, &params)
	return cmd
}
