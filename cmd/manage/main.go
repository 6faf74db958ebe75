// Command manage is the operator CLI: deploy, migrate, seed, test and profile.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chirp/internal/config"
	"chirp/internal/observability"

	"github.com/spf13/cobra"
)

const (
	exitSuccess = 0
	exitError   = 1
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

var appConfig *config.Config

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "manage",
		Short:         "Operator commands for the chirp backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := cmd.Annotations[skipConfig]; ok {
				return nil
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			observability.ConfigureLogger(os.Stdout, cfg.Env, cfg.LogLevel)
			appConfig = cfg
			return nil
		},
	}

	root.AddCommand(
		newDeployCmd(),
		newMigrateCmd(),
		newSeedCmd(),
		newTestCmd(),
		newProfileCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}
