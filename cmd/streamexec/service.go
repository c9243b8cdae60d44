package main

import (
	"context"
	"fmt"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/streamexec/internal/config"
)

// program adapts the serve loop to the system service manager.
type program struct {
	cfg    *config.Config
	cancel context.CancelFunc
	done   chan error
}

// Start implements service.Interface. Service managers expect Start to
// return promptly, so the serve loop runs in the background.
func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)

	go func() {
		p.done <- serve(ctx, p.cfg, "")
	}()
	return nil
}

// Stop implements service.Interface.
func (p *program) Stop(_ service.Service) error {
	p.cancel()
	return <-p.done
}

func serviceConfig(cfgPath string) *service.Config {
	args := []string{"service", "run"}
	if cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}
	return &service.Config{
		Name:        "streamexec",
		DisplayName: "streamexec execution engine",
		Description: "Streaming tool-call execution engine with admin gateway",
		Arguments:   args,
	}
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "service [install|uninstall|start|stop|run]",
		Short:     "Manage streamexec as a system service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"install", "uninstall", "start", "stop", "run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")

			prg := &program{}
			if args[0] == "run" {
				cfg, err := loadConfig(cfgPath)
				if err != nil {
					return err
				}
				prg.cfg = cfg
			}

			svc, err := service.New(prg, serviceConfig(cfgPath))
			if err != nil {
				return err
			}

			switch args[0] {
			case "run":
				return svc.Run()
			case "install":
				if err := svc.Install(); err != nil {
					return err
				}
				fmt.Println("service installed")
			case "uninstall":
				if err := svc.Uninstall(); err != nil {
					return err
				}
				fmt.Println("service uninstalled")
			case "start":
				return svc.Start()
			case "stop":
				return svc.Stop()
			}
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}
