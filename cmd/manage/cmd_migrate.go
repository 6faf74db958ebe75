package main

import (
	"fmt"
	"strconv"

	"chirp/internal/bootstrap"
	"chirp/internal/database"
	"chirp/internal/observability"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect and apply schema migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply the schema policy (SQL migrations and/or AutoMigrate)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := bootstrap.InitRuntime(appConfig, bootstrap.Options{SkipRedis: true})
				if err != nil {
					return err
				}
				defer func() { _ = rt.Close(cmd.Context()) }()

				if err := database.ApplySchema(cmd.Context(), rt.DB, appConfig); err != nil {
					return fmt.Errorf("apply schema: %w", err)
				}
				observability.Logger.Info("Schema is up to date")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := bootstrap.InitRuntime(appConfig, bootstrap.Options{SkipRedis: true})
				if err != nil {
					return err
				}
				defer func() { _ = rt.Close(cmd.Context()) }()

				status, err := database.GetSchemaStatus(cmd.Context(), rt.DB, appConfig)
				if err != nil {
					return fmt.Errorf("schema status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "mode=%s env=%s run_sql=%t run_auto=%t applied=%d pending=%d\n",
					status.Mode, status.Environment, status.WillRunSQL, status.WillRunAutoMigrate,
					len(status.AppliedVersions), len(status.PendingMigrations))
				for _, m := range status.PendingMigrations {
					fmt.Fprintf(out, "pending: %s\n", m)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "down <version>",
			Short: "Roll back one applied migration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}

				rt, err := bootstrap.InitRuntime(appConfig, bootstrap.Options{SkipRedis: true})
				if err != nil {
					return err
				}
				defer func() { _ = rt.Close(cmd.Context()) }()

				if err := database.RollbackMigration(cmd.Context(), rt.DB, version); err != nil {
					return fmt.Errorf("rollback: %w", err)
				}
				observability.Logger.Info("Rolled back migration", "version", version)
				return nil
			},
		},
	)
	return cmd
}
