package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single index check and deliver whatever is new, then exit",
		RunE:  runOnce,
	}
	addWatchFlags(onceCmd)
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, shutdown, err := buildRuntime(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	rt.log.Info("single cycle requested")
	return rt.watcher.RunCycle(ctx)
}
