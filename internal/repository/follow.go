package repository

import (
	"context"

	"chirp/internal/models"
	"chirp/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRepository defines data operations on the follow graph.
type FollowRepository interface {
	Create(ctx context.Context, followerID, followedID uint) (*models.Follow, error)
	Delete(ctx context.Context, followerID, followedID uint) error
	Exists(ctx context.Context, followerID, followedID uint) (bool, error)
	Get(ctx context.Context, followerID, followedID uint) (*models.Follow, error)
	Followers(ctx context.Context, userID uint, limit, offset int) ([]models.User, error)
	Following(ctx context.Context, userID uint, limit, offset int) ([]models.User, error)
	CountFollowers(ctx context.Context, userID uint) (int64, error)
	CountFollowing(ctx context.Context, userID uint) (int64, error)
	CountEdges(ctx context.Context) (int64, error)
	SelfFollowing(ctx context.Context, ids []uint) (map[uint]struct{}, error)
	CreateBatch(ctx context.Context, edges []models.Follow) (int64, error)
}

type followRepository struct {
	db    *gorm.DB
	users UserRepository
	log   *observability.RepoLogger
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{
		db:    db,
		users: NewUserRepository(db),
		log:   observability.NewRepoLogger("follows"),
	}
}

// Create inserts the edge. Both endpoints must exist; an existing edge is
// reported as a duplicate and left untouched.
func (r *followRepository) Create(ctx context.Context, followerID, followedID uint) (*models.Follow, error) {
	defer observability.TrackQuery("create", "follows")()

	ok, err := r.users.Exists(ctx, followerID, followedID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewNotFoundError("User", []uint{followerID, followedID})
	}

	edge := &models.Follow{FollowerID: followerID, FollowedID: followedID}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(edge).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, models.NewDuplicateEdgeError(followerID, followedID)
		}
		r.log.LogError(ctx, err, "create")
		return nil, models.NewPersistenceError(err)
	}

	r.log.LogCreate(ctx, map[string]any{"follower_id": followerID, "followed_id": followedID})
	return edge, nil
}

func (r *followRepository) Delete(ctx context.Context, followerID, followedID uint) error {
	defer observability.TrackQuery("delete", "follows")()

	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Delete(&models.Follow{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "delete")
		return models.NewPersistenceError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewEdgeNotFoundError(followerID, followedID)
	}

	r.log.LogDelete(ctx, map[string]any{"follower_id": followerID, "followed_id": followedID})
	return nil
}

func (r *followRepository) Exists(ctx context.Context, followerID, followedID uint) (bool, error) {
	defer observability.TrackQuery("exists", "follows")()

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&count).Error; err != nil {
		return false, models.NewPersistenceError(err)
	}
	return count > 0, nil
}

func (r *followRepository) Get(ctx context.Context, followerID, followedID uint) (*models.Follow, error) {
	var edges []models.Follow
	if err := r.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Limit(1).Find(&edges).Error; err != nil {
		return nil, models.NewPersistenceError(err)
	}
	if len(edges) == 0 {
		return nil, models.NewEdgeNotFoundError(followerID, followedID)
	}
	return &edges[0], nil
}

// Followers lists the users following userID, newest edge first. The
// self-edge is not listed.
func (r *followRepository) Followers(ctx context.Context, userID uint, limit, offset int) ([]models.User, error) {
	return r.listUsers(ctx, "follows.follower_id", "follows.followed_id", userID, limit, offset)
}

// Following lists the users userID follows, newest edge first.
func (r *followRepository) Following(ctx context.Context, userID uint, limit, offset int) ([]models.User, error) {
	return r.listUsers(ctx, "follows.followed_id", "follows.follower_id", userID, limit, offset)
}

func (r *followRepository) listUsers(ctx context.Context, joinCol, filterCol string, userID uint, limit, offset int) ([]models.User, error) {
	defer observability.TrackQuery("list", "follows")()

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var users []models.User
	err := r.db.WithContext(ctx).
		Joins("JOIN follows ON "+joinCol+" = users.id").
		Where(filterCol+" = ? AND follows.follower_id <> follows.followed_id", userID).
		Order("follows.timestamp DESC").
		Limit(limit).Offset(offset).
		Find(&users).Error
	if err != nil {
		return nil, models.NewPersistenceError(err)
	}
	return users, nil
}

// CountFollowers counts inbound edges, excluding the self-edge.
func (r *followRepository) CountFollowers(ctx context.Context, userID uint) (int64, error) {
	return r.count(ctx, "followed_id = ? AND follower_id <> followed_id", userID)
}

// CountFollowing counts outbound edges, excluding the self-edge.
func (r *followRepository) CountFollowing(ctx context.Context, userID uint) (int64, error) {
	return r.count(ctx, "follower_id = ? AND follower_id <> followed_id", userID)
}

// CountEdges counts every stored edge, self-edges included.
func (r *followRepository) CountEdges(ctx context.Context) (int64, error) {
	return r.count(ctx, "1 = 1")
}

func (r *followRepository) count(ctx context.Context, query string, args ...any) (int64, error) {
	defer observability.TrackQuery("count", "follows")()

	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).Where(query, args...).Count(&n).Error; err != nil {
		return 0, models.NewPersistenceError(err)
	}
	return n, nil
}

// SelfFollowing returns the subset of ids that already follow themselves.
func (r *followRepository) SelfFollowing(ctx context.Context, ids []uint) (map[uint]struct{}, error) {
	found := make(map[uint]struct{}, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	defer observability.TrackQuery("select", "follows")()
	var existing []uint
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id IN ? AND follower_id = followed_id", ids).
		Pluck("follower_id", &existing).Error; err != nil {
		return nil, models.NewPersistenceError(err)
	}
	for _, id := range existing {
		found[id] = struct{}{}
	}
	return found, nil
}

// CreateBatch inserts edges, skipping any that already exist, and returns
// how many rows were written.
func (r *followRepository) CreateBatch(ctx context.Context, edges []models.Follow) (int64, error) {
	if len(edges) == 0 {
		return 0, nil
	}
	defer observability.TrackQuery("create_batch", "follows")()

	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&edges)
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "create_batch")
		return 0, models.NewPersistenceError(res.Error)
	}
	return res.RowsAffected, nil
}
