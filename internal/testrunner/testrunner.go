// Package testrunner drives `go test` for the manage CLI, optionally under
// a coverage harness that writes a text summary and an HTML report.
package testrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"chirp/internal/observability"
)

// DefaultCoverageDir mirrors the report location used by the old tooling.
const DefaultCoverageDir = "tmp/coverage"

// Options select what to test and whether to collect coverage.
type Options struct {
	Packages    []string
	Coverage    bool
	CoverageDir string
	Run         string
	Timeout     time.Duration
}

// Command is one process invocation.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return fmt.Sprintf("%s %v", c.Name, c.Args)
}

// ProfilePath is where the coverage profile is written.
func (o Options) ProfilePath() string {
	return filepath.Join(o.coverageDir(), "coverage.out")
}

// ReportPath is the HTML coverage report.
func (o Options) ReportPath() string {
	return filepath.Join(o.coverageDir(), "index.html")
}

func (o Options) coverageDir() string {
	if o.CoverageDir == "" {
		return DefaultCoverageDir
	}
	return o.CoverageDir
}

// Plan returns the commands a run executes, in order.
func Plan(opts Options) []Command {
	args := []string{"test", "-v"}
	if opts.Run != "" {
		args = append(args, "-run", opts.Run)
	}
	if opts.Timeout > 0 {
		args = append(args, "-timeout", opts.Timeout.String())
	}
	if opts.Coverage {
		args = append(args, "-covermode=atomic", "-coverprofile="+opts.ProfilePath())
	}
	pkgs := opts.Packages
	if len(pkgs) == 0 {
		pkgs = []string{"./..."}
	}
	args = append(args, pkgs...)

	cmds := []Command{{Name: "go", Args: args}}
	if opts.Coverage {
		cmds = append(cmds,
			Command{Name: "go", Args: []string{"tool", "cover", "-func=" + opts.ProfilePath()}},
			Command{Name: "go", Args: []string{"tool", "cover", "-html=" + opts.ProfilePath(), "-o", opts.ReportPath()}},
		)
	}
	return cmds
}

// ExecFunc runs a single command with the given output streams.
type ExecFunc func(ctx context.Context, cmd Command, stdout, stderr io.Writer) error

// Runner executes a Plan.
type Runner struct {
	exec   ExecFunc
	stdout io.Writer
	stderr io.Writer
}

// NewRunner returns a Runner that spawns real processes.
func NewRunner(stdout, stderr io.Writer) *Runner {
	return &Runner{exec: execCommand, stdout: stdout, stderr: stderr}
}

// WithExec swaps the process launcher.
func (r *Runner) WithExec(fn ExecFunc) *Runner {
	r.exec = fn
	return r
}

// Run executes the plan. A failing test run still produces the coverage
// summary so the report reflects what ran; its error is returned last.
func (r *Runner) Run(ctx context.Context, opts Options) error {
	if opts.Coverage {
		if err := os.MkdirAll(opts.coverageDir(), 0o755); err != nil {
			return fmt.Errorf("create coverage dir: %w", err)
		}
	}

	cmds := Plan(opts)
	start := time.Now()
	testErr := r.exec(ctx, cmds[0], r.stdout, r.stderr)
	observability.Logger.InfoContext(ctx, "Test run finished",
		slog.Duration("duration", time.Since(start)),
		slog.Bool("passed", testErr == nil),
	)

	if opts.Coverage {
		if _, err := os.Stat(opts.ProfilePath()); err != nil {
			return errors.Join(testErr, fmt.Errorf("coverage profile missing: %w", err))
		}
		for _, cmd := range cmds[1:] {
			if err := r.exec(ctx, cmd, r.stdout, r.stderr); err != nil {
				return errors.Join(testErr, fmt.Errorf("%s: %w", cmd, err))
			}
		}
		observability.Logger.InfoContext(ctx, "Coverage report written", slog.String("path", opts.ReportPath()))
	}

	if testErr != nil {
		return fmt.Errorf("go test: %w", testErr)
	}
	return nil
}

func execCommand(ctx context.Context, c Command, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}
