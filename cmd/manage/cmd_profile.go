package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chirp/internal/bootstrap"
	"chirp/internal/observability"
	"chirp/internal/server"

	"github.com/spf13/cobra"
)

func newProfileCmd() *cobra.Command {
	var (
		profileDir string
		length     int
	)

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Run the ops server under the CPU profiler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			rt, err := bootstrap.InitRuntime(appConfig, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()

			var profiler *server.CPUProfiler
			if profileDir != "" {
				profiler, err = server.StartCPUProfile(profileDir)
				if err != nil {
					return err
				}
			}

			srv := server.NewServer(appConfig, rt.DB, rt.Redis)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err = <-errCh:
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				err = srv.Shutdown(shutdownCtx)
				cancel()
			}

			if profiler != nil {
				top, perr := profiler.Stop(length)
				if perr != nil {
					return errors.Join(err, perr)
				}
				observability.Logger.Info("CPU profile written", slog.String("path", profiler.Path()))
				for i, fn := range top {
					observability.Logger.Info("Profile hot spot",
						slog.Int("rank", i+1),
						slog.String("function", fn.Name),
						slog.Duration("flat", fn.Flat),
					)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&profileDir, "profile-dir", "", "directory to write the CPU profile to")
	cmd.Flags().IntVar(&length, "length", 25, "number of functions to include in the profile summary")
	return cmd
}
