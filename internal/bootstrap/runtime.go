// Package bootstrap wires the shared runtime used by every command.
package bootstrap

import (
	"context"
	"fmt"

	"chirp/internal/cache"
	"chirp/internal/config"
	"chirp/internal/database"
	"chirp/internal/observability"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// ApplySchema runs the schema policy while connecting. Deploy leaves
	// this off and upgrades the schema as its own step.
	ApplySchema bool
	// SkipRedis leaves the cache and deploy lock disabled.
	SkipRedis bool
}

// Runtime holds the connections a command needs.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client

	shutdownTracing func(context.Context) error
}

// InitRuntime sets up tracing, connects to DB and Redis.
func InitRuntime(cfg *config.Config, opts Options) (*Runtime, error) {
	shutdown, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "chirp",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		DBDriver:       cfg.DBDriver,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}

	// Connect DB
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: opts.ApplySchema})
	if err != nil {
		_ = shutdown(context.Background())
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Init Redis (may result in nil client if unreachable)
	if !opts.SkipRedis && cfg.RedisURL != "" {
		cache.InitRedis(cfg.RedisURL)
	}

	return &Runtime{DB: db, Redis: cache.GetClient(), shutdownTracing: shutdown}, nil
}

// Close releases every connection held by the runtime.
func (r *Runtime) Close(ctx context.Context) error {
	var firstErr error
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		cache.SetClient(nil)
	}
	if r.DB != nil {
		if sqlDB, err := r.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if r.shutdownTracing != nil {
		if err := r.shutdownTracing(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
