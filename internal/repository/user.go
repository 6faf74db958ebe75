// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"chirp/internal/cache"
	"chirp/internal/models"
	"chirp/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Exists(ctx context.Context, ids ...uint) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uint) error
	EachIDBatch(ctx context.Context, size int, fn func(ids []uint) error) error
}

type userRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db, log: observability.NewRepoLogger("users")}
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Preload("Role").
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", email)
		}
		return nil, models.NewPersistenceError(err)
	}
	return &user, nil
}

// Exists reports whether every id names a stored user.
func (r *userRepository) Exists(ctx context.Context, ids ...uint) (bool, error) {
	unique := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	if len(unique) == 0 {
		return false, nil
	}
	keys := make([]uint, 0, len(unique))
	for id := range unique {
		keys = append(keys, id)
	}

	defer observability.TrackQuery("exists", "users")()
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id IN ?", keys).Count(&count).Error; err != nil {
		return false, models.NewPersistenceError(err)
	}
	return count == int64(len(keys)), nil
}

// Create stores the user and its self-follow edge in one transaction. Users
// without an explicit role get the default role when one exists.
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	defer observability.TrackQuery("create", "users")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if user.RoleID == nil {
			var role models.Role
			err := tx.Where("is_default = ?", true).First(&role).Error
			switch {
			case err == nil:
				user.RoleID = &role.ID
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}

		if err := tx.Omit(clause.Associations).Create(user).Error; err != nil {
			return err
		}

		self := models.Follow{FollowerID: user.ID, FollowedID: user.ID, Timestamp: time.Now().UTC()}
		return tx.Omit(clause.Associations).Create(&self).Error
	})
	if err != nil {
		r.log.LogError(ctx, err, "create")
		if isUniqueConstraintError(err) {
			return models.NewValidationError("email or username already registered")
		}
		return models.NewPersistenceError(err)
	}

	r.log.LogCreate(ctx, map[string]any{"id": user.ID, "username": user.Username})
	return nil
}

// Delete removes the user together with every edge that references it.
// Cached counts of the removed edges' endpoints are dropped after commit.
func (r *userRepository) Delete(ctx context.Context, id uint) error {
	defer observability.TrackQuery("delete", "users")()

	var edges []models.Follow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Follow{}).Select("follower_id", "followed_id").
			Where("follower_id = ? OR followed_id = ?", id, id).
			Find(&edges).Error; err != nil {
			return err
		}

		if err := tx.Where("follower_id = ? OR followed_id = ?", id, id).Delete(&models.Follow{}).Error; err != nil {
			return err
		}

		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("User", id)
		}
		return nil
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		r.log.LogError(ctx, err, "delete")
		return models.NewPersistenceError(err)
	}

	cache.Invalidate(ctx, cache.FollowerCountKey(id), cache.FollowingCountKey(id))
	for _, e := range edges {
		cache.InvalidateFollowCounts(ctx, e.FollowerID, e.FollowedID)
	}
	r.log.LogDelete(ctx, map[string]any{"id": id, "edges_removed": len(edges)})
	return nil
}

// EachIDBatch walks all user ids in ascending order, size at a time.
func (r *userRepository) EachIDBatch(ctx context.Context, size int, fn func(ids []uint) error) error {
	if size <= 0 {
		return models.NewValidationError("batch size must be positive")
	}

	var batch []models.User
	var cbErr error
	res := r.db.WithContext(ctx).Model(&models.User{}).Select("id").
		FindInBatches(&batch, size, func(_ *gorm.DB, _ int) error {
			ids := make([]uint, len(batch))
			for i := range batch {
				ids[i] = batch[i].ID
			}
			if err := fn(ids); err != nil {
				cbErr = err
				return err
			}
			return nil
		})
	if cbErr != nil {
		return cbErr
	}
	if res.Error != nil {
		return models.NewPersistenceError(res.Error)
	}
	return nil
}
