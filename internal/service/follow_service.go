// Package service contains the application's business logic.
package service

import (
	"context"
	"log/slog"

	"chirp/internal/cache"
	"chirp/internal/models"
	"chirp/internal/observability"
	"chirp/internal/repository"
)

// FollowService provides follow graph business logic.
type FollowService struct {
	followRepo repository.FollowRepository
}

// NewFollowService returns a new FollowService.
func NewFollowService(followRepo repository.FollowRepository) *FollowService {
	return &FollowService{followRepo: followRepo}
}

// Follow makes followerID follow followedID.
func (s *FollowService) Follow(ctx context.Context, followerID, followedID uint) (*models.Follow, error) {
	edge, err := s.followRepo.Create(ctx, followerID, followedID)
	observability.RecordFollowMutation("follow", err)
	if err != nil {
		return nil, err
	}

	cache.InvalidateFollowCounts(ctx, followerID, followedID)
	observability.Logger.InfoContext(ctx, "Follow edge created",
		slog.Uint64("follower_id", uint64(followerID)),
		slog.Uint64("followed_id", uint64(followedID)),
	)
	return edge, nil
}

// Unfollow removes the edge. Removing an edge that does not exist is a no-op.
func (s *FollowService) Unfollow(ctx context.Context, followerID, followedID uint) error {
	if followerID == followedID {
		return models.NewValidationError("Cannot unfollow yourself")
	}

	err := s.followRepo.Delete(ctx, followerID, followedID)
	if models.HasCode(err, models.CodeEdgeNotFound) {
		observability.RecordFollowMutation("unfollow", nil)
		return nil
	}
	observability.RecordFollowMutation("unfollow", err)
	if err != nil {
		return err
	}

	cache.InvalidateFollowCounts(ctx, followerID, followedID)
	return nil
}

// IsFollowing reports whether followerID follows followedID.
func (s *FollowService) IsFollowing(ctx context.Context, followerID, followedID uint) (bool, error) {
	return s.followRepo.Exists(ctx, followerID, followedID)
}

// IsFollowedBy reports whether userID is followed by otherID.
func (s *FollowService) IsFollowedBy(ctx context.Context, userID, otherID uint) (bool, error) {
	return s.followRepo.Exists(ctx, otherID, userID)
}

func (s *FollowService) Followers(ctx context.Context, userID uint, limit, offset int) ([]models.User, error) {
	return s.followRepo.Followers(ctx, userID, limit, offset)
}

func (s *FollowService) Following(ctx context.Context, userID uint, limit, offset int) ([]models.User, error) {
	return s.followRepo.Following(ctx, userID, limit, offset)
}

// FollowerCount returns how many other users follow userID.
func (s *FollowService) FollowerCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := cache.Aside(ctx, cache.FollowerCountKey(userID), &n, cache.FollowCountTTL, func() error {
		var err error
		n, err = s.followRepo.CountFollowers(ctx, userID)
		return err
	})
	return n, err
}

// FollowingCount returns how many other users userID follows.
func (s *FollowService) FollowingCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := cache.Aside(ctx, cache.FollowingCountKey(userID), &n, cache.FollowCountTTL, func() error {
		var err error
		n, err = s.followRepo.CountFollowing(ctx, userID)
		return err
	})
	return n, err
}

// CountEdges returns the number of stored edges, self-edges included.
func (s *FollowService) CountEdges(ctx context.Context) (int64, error) {
	return s.followRepo.CountEdges(ctx)
}
