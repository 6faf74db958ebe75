package main

import (
	"chirp/internal/bootstrap"
	"chirp/internal/deploy"

	"github.com/spf13/cobra"
)

func newDeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Upgrade the schema, reconcile roles and backfill self-follows",
		Long: `Runs the post-release steps in a fixed order:

  1. schema        apply pending migrations
  2. roles         converge the role table (ROLES_FILE or built-in)
  3. self_follows  make every user follow itself

Every step is idempotent. The first failing step aborts the deploy and the
command exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: runDeploy,
	}
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	rt, err := bootstrap.InitRuntime(appConfig, bootstrap.Options{SkipRedis: !appConfig.DeployLock})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(ctx) }()

	runner, err := deploy.New(rt.DB, appConfig, rt.Redis)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}
