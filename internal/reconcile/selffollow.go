package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chirp/internal/models"
	"chirp/internal/observability"
)

// UserScanner walks user ids in batches.
type UserScanner interface {
	EachIDBatch(ctx context.Context, size int, fn func(ids []uint) error) error
}

// SelfFollowStore is the follow surface SelfFollows needs.
type SelfFollowStore interface {
	SelfFollowing(ctx context.Context, ids []uint) (map[uint]struct{}, error)
	CreateBatch(ctx context.Context, edges []models.Follow) (int64, error)
}

// Result summarises a backfill run.
type Result struct {
	Scanned int64
	Created int64
}

// PlanSelfFollows returns the self-edges missing for ids. Repeated ids
// yield a single edge.
func PlanSelfFollows(ids []uint, existing map[uint]struct{}, now time.Time) []models.Follow {
	var out []models.Follow
	planned := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := existing[id]; ok {
			continue
		}
		if _, ok := planned[id]; ok {
			continue
		}
		planned[id] = struct{}{}
		out = append(out, models.Follow{FollowerID: id, FollowedID: id, Timestamp: now})
	}
	return out
}

// SelfFollows makes every user follow itself. Edges are only ever added.
func SelfFollows(ctx context.Context, users UserScanner, follows SelfFollowStore, batchSize int) (Result, error) {
	var res Result
	err := users.EachIDBatch(ctx, batchSize, func(ids []uint) error {
		res.Scanned += int64(len(ids))

		existing, err := follows.SelfFollowing(ctx, ids)
		if err != nil {
			return fmt.Errorf("load self edges: %w", err)
		}

		missing := PlanSelfFollows(ids, existing, time.Now().UTC())
		if len(missing) == 0 {
			return nil
		}

		created, err := follows.CreateBatch(ctx, missing)
		if err != nil {
			return fmt.Errorf("insert self edges: %w", err)
		}
		res.Created += created
		return nil
	})
	if err != nil {
		return res, err
	}

	observability.ReconcileChanges.WithLabelValues("self_follow", "create").Add(float64(res.Created))
	observability.Logger.InfoContext(ctx, "Self-follow backfill complete",
		slog.Int64("scanned", res.Scanned),
		slog.Int64("created", res.Created),
	)
	return res, nil
}
