package main

import (
	"chirp/internal/testrunner"

	"github.com/spf13/cobra"
)

func newTestCmd() *cobra.Command {
	var opts testrunner.Options

	cmd := &cobra.Command{
		Use:         "test [packages...]",
		Short:       "Run the test suite, optionally with a coverage report",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Packages = args
			return testrunner.NewRunner(cmd.OutOrStdout(), cmd.ErrOrStderr()).Run(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Coverage, "coverage", false, "collect coverage and write an HTML report")
	cmd.Flags().StringVar(&opts.CoverageDir, "coverage-dir", testrunner.DefaultCoverageDir, "where coverage output is written")
	cmd.Flags().StringVar(&opts.Run, "run", "", "only run tests matching this pattern")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "go test timeout")
	return cmd
}
