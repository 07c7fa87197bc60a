package main

import (
	"os"

	"github.com/spf13/cobra"

	"go_bridge/cmd/bridge/internal/pair"
	"go_bridge/cmd/bridge/internal/run"
)

func NewBridgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "OneBot v11 <-> Telegram message bridge",
		Example: `  bridge run
  bridge pair list --instance 0
  bridge pair bind --instance 0 --room 123456 --chat -1001234567890`,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		run.NewRunCommand(),
		pair.NewPairCommand(),
	)

	return cmd
}

func main() {
	cmd := NewBridgeCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
