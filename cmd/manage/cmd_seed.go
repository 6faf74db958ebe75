package main

import (
	"context"
	"fmt"

	"chirp/internal/bootstrap"
	"chirp/internal/config"
	"chirp/internal/reconcile"
	"chirp/internal/repository"
	"chirp/internal/seed"
	"chirp/internal/service"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newSeedCmd() *cobra.Command {
	var opts seed.Options

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create fake users and random follows (development only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if appConfig.IsProduction() {
				return fmt.Errorf("refusing to seed a %s database", appConfig.Env)
			}

			rt, err := bootstrap.InitRuntime(appConfig, bootstrap.Options{ApplySchema: true})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(cmd.Context()) }()

			sum, err := seedDatabase(cmd.Context(), rt.DB, appConfig, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users, %d follows (%d skipped)\n",
				sum.Users, sum.Follows, sum.SkippedFollows)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.NumUsers, "users", 20, "number of users to create")
	cmd.Flags().IntVar(&opts.NumFollows, "follows", 100, "number of random follows to attempt")
	cmd.Flags().StringVar(&opts.Password, "password", "password123", "password for every seeded user")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "fixed random seed (0 = random)")
	return cmd
}

// seedDatabase reconciles roles first so seeded users get the default role
// and the admin address can be given the Administrator role.
func seedDatabase(ctx context.Context, db *gorm.DB, cfg *config.Config, opts seed.Options) (seed.Summary, error) {
	table, err := reconcile.LoadRoleTable(cfg.RolesFile)
	if err != nil {
		return seed.Summary{}, err
	}
	roles := repository.NewRoleRepository(db)
	if _, err := reconcile.Roles(ctx, roles, table); err != nil {
		return seed.Summary{}, fmt.Errorf("reconcile roles before seeding: %w", err)
	}

	users := service.NewUserService(repository.NewUserRepository(db), roles, cfg.AdminEmail).
		WithHashCost(bcrypt.MinCost)
	follows := service.NewFollowService(repository.NewFollowRepository(db))

	return seed.NewSeeder(users, follows, opts).Run(ctx)
}
