package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "microsense",
		Short:        "Community weather reports: sync, submit and summarize",
		SilenceUsage: true,
	}
	root.AddCommand(
		serveCommand(),
		submitCommand(),
		dashboardCommand(),
		historyCommand(),
	)
	return root
}
