// Package deploy runs the ordered, idempotent steps that bring a database
// up to date after a release: schema upgrade, role reconciliation and the
// self-follow backfill.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chirp/internal/cache"
	"chirp/internal/config"
	"chirp/internal/database"
	"chirp/internal/observability"
	"chirp/internal/reconcile"
	"chirp/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// Step names in execution order.
const (
	StepSchema      = "schema"
	StepRoles       = "roles"
	StepSelfFollows = "self_follows"
)

// LockKey is the Redis key guarding concurrent deploys.
const LockKey = "chirp:deploy:lock"

// ErrInProgress is returned when another deploy holds the lock.
var ErrInProgress = errors.New("deploy already in progress")

// Step is one unit of deploy work.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Options tune a Runner.
type Options struct {
	// Redis enables the deploy lock when non-nil.
	Redis   *redis.Client
	LockTTL time.Duration
}

// Runner executes steps sequentially and stops at the first failure.
type Runner struct {
	steps []Step
	opts  Options
}

// NewRunner builds a runner over explicit steps.
func NewRunner(steps []Step, opts Options) *Runner {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &Runner{steps: steps, opts: opts}
}

// New builds the standard deploy. The role table is loaded up front so a
// bad ROLES_FILE fails before anything is written.
func New(db *gorm.DB, cfg *config.Config, rdb *redis.Client) (*Runner, error) {
	table, err := reconcile.LoadRoleTable(cfg.RolesFile)
	if err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}

	users := repository.NewUserRepository(db)
	follows := repository.NewFollowRepository(db)
	roles := repository.NewRoleRepository(db)

	steps := []Step{
		{Name: StepSchema, Run: func(ctx context.Context) error {
			return database.ApplySchema(ctx, db, cfg)
		}},
		{Name: StepRoles, Run: func(ctx context.Context) error {
			_, err := reconcile.Roles(ctx, roles, table)
			return err
		}},
		{Name: StepSelfFollows, Run: func(ctx context.Context) error {
			_, err := reconcile.SelfFollows(ctx, users, follows, cfg.BackfillBatchSize)
			return err
		}},
	}

	opts := Options{LockTTL: time.Duration(cfg.DeployLockTTLSeconds) * time.Second}
	if cfg.DeployLock {
		opts.Redis = rdb
	}
	return NewRunner(steps, opts), nil
}

// StepNames lists the configured steps in order.
func (r *Runner) StepNames() []string {
	names := make([]string, len(r.steps))
	for i, s := range r.steps {
		names[i] = s.Name
	}
	return names
}

// Run executes every step in order.
func (r *Runner) Run(ctx context.Context) error {
	deployID := uuid.NewString()
	ctx = observability.WithDeployID(ctx, deployID)

	if r.opts.Redis != nil {
		lock, err := cache.AcquireLock(ctx, r.opts.Redis, LockKey, r.opts.LockTTL)
		if errors.Is(err, cache.ErrLockHeld) {
			return ErrInProgress
		}
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				observability.Logger.WarnContext(ctx, "Failed to release deploy lock", slog.String("error", err.Error()))
			}
		}()
	} else {
		observability.Logger.InfoContext(ctx, "Deploy lock disabled; relying on step idempotence")
	}

	span, ctx := observability.NewSpan(ctx, "deploy", attribute.String("deploy.id", deployID))
	defer span.End()

	started := time.Now()
	observability.Logger.InfoContext(ctx, "Deploy started", slog.Any("steps", r.StepNames()))

	for _, step := range r.steps {
		if err := r.runStep(ctx, step); err != nil {
			span.SetError(err)
			observability.Logger.ErrorContext(ctx, "Deploy failed",
				slog.String("step", step.Name),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("deploy step %q: %w", step.Name, err)
		}
	}

	observability.Logger.InfoContext(ctx, "Deploy finished", slog.Duration("duration", time.Since(started)))
	return nil
}

func (r *Runner) runStep(ctx context.Context, step Step) error {
	ctx = observability.WithStep(ctx, step.Name)
	span, ctx := observability.NewSpan(ctx, "deploy."+step.Name, attribute.String("deploy.step", step.Name))
	defer span.End()

	start := time.Now()
	observability.Logger.InfoContext(ctx, "Deploy step started")

	err := step.Run(ctx)
	observability.DeployStepDuration.WithLabelValues(step.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.SetError(err)
		observability.DeploySteps.WithLabelValues(step.Name, "error").Inc()
		return err
	}

	observability.DeploySteps.WithLabelValues(step.Name, "ok").Inc()
	observability.Logger.InfoContext(ctx, "Deploy step finished", slog.Duration("duration", time.Since(start)))
	return nil
}
