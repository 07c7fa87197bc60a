package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go_bridge/internal/app"
	"go_bridge/internal/config"
	"go_bridge/internal/logger"
)

const shutdownTimeout = 15 * time.Second

func NewRunCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"r"},
		Short:   "Start the bridge and forward messages until interrupted",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBridge(cmd.Context(), debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func runBridge(parent context.Context, debug bool) error {
	logger.Init()
	if debug {
		logger.SetLevel("debug")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.L().Errorf("Failed to load config: %v", err)
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge, err := app.New(cfg)
	if err != nil {
		logger.L().Errorf("Failed to initialize bridge: %v", err)
		return err
	}
	logger.L().Infof("Bridge started: tenants=%d workers=%d", len(cfg.Tenants), cfg.WorkerCount)

	runErr := bridge.Run(ctx)
	logger.L().Info("Shutting down bridge...")

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := bridge.Close(closeCtx); err != nil {
		logger.L().Errorf("Shutdown finished with errors: %v", err)
	}

	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	logger.L().Info("Bridge stopped")
	return nil
}
