package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/un5af3/kapibara/common/klog"
	"github.com/un5af3/kapibara/config"
	"github.com/un5af3/kapibara/dispatch"
)

// exitInitFailure is returned when the dispatcher fails to load its config
// or initialize its collaborators, as opposed to a clean shutdown.
const exitInitFailure = 23

func newRunCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "load a config and run the dispatcher until terminated",
		RunE: func(*cobra.Command, []string) error {
			runDispatcher(configPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML or JSON config file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runDispatcher(configPath string) {
	logger, err := klog.New(logLevel, os.Stderr)
	if err != nil {
		os.Exit(exitInitFailure)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Error("failed to load config")
		os.Exit(exitInitFailure)
	}

	dispatchCfg, err := config.Build(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to build dispatcher config")
		os.Exit(exitInitFailure)
	}

	d := dispatch.New(logger)
	if err := d.Init(dispatchCfg); err != nil {
		logger.WithError(err).Error("failed to initialize dispatcher")
		os.Exit(exitInitFailure)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		logger.WithError(err).Error("failed to start dispatcher")
		os.Exit(exitInitFailure)
	}

	logger.Info("kapibara running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if err := d.Close(); err != nil {
		logger.WithError(err).Error("error during shutdown")
	}
}
