package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	storage    string
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "quiz",
		Short:         "Timed multiple-choice quiz competition client",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&opts.storage, "storage", "", "storage driver override: file, memory, redis or postgres")
	cmd.AddCommand(newPlayCmd(opts))
	cmd.AddCommand(newLeaderboardCmd(opts))
	cmd.AddCommand(newReviewCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newAdminCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	return cmd
}
