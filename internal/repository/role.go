package repository

import (
	"context"
	"errors"
	"fmt"

	"chirp/internal/models"
	"chirp/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoleRepository defines persistence operations for roles.
type RoleRepository interface {
	List(ctx context.Context) ([]models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
	GetDefault(ctx context.Context) (*models.Role, error)
	ApplyChanges(ctx context.Context, roles []models.Role) error
}

type roleRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewRoleRepository returns a new RoleRepository implementation.
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db, log: observability.NewRepoLogger("roles")}
}

func (r *roleRepository) List(ctx context.Context) ([]models.Role, error) {
	defer observability.TrackQuery("list", "roles")()

	var roles []models.Role
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&roles).Error; err != nil {
		return nil, models.NewPersistenceError(err)
	}
	return roles, nil
}

func (r *roleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Role", name)
		}
		return nil, models.NewPersistenceError(err)
	}
	return &role, nil
}

func (r *roleRepository) GetDefault(ctx context.Context) (*models.Role, error) {
	var role models.Role
	if err := r.db.WithContext(ctx).Where("is_default = ?", true).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Role", "default")
		}
		return nil, models.NewPersistenceError(err)
	}
	return &role, nil
}

// ApplyChanges upserts roles by name in a single transaction. The
// transaction is rolled back unless exactly one role is default afterwards.
func (r *roleRepository) ApplyChanges(ctx context.Context, roles []models.Role) error {
	if len(roles) == 0 {
		return nil
	}
	defer observability.TrackQuery("upsert", "roles")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range roles {
			role := roles[i]
			role.ID = 0
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"permissions"}),
			}).Create(&role).Error; err != nil {
				return err
			}
			// Create skips zero values for columns with a default tag, so
			// the flag and mask are always written explicitly.
			if err := tx.Model(&models.Role{}).Where("name = ?", role.Name).Updates(map[string]any{
				"is_default":  roles[i].IsDefault,
				"permissions": roles[i].Permissions,
			}).Error; err != nil {
				return err
			}
		}

		var defaults int64
		if err := tx.Model(&models.Role{}).Where("is_default = ?", true).Count(&defaults).Error; err != nil {
			return err
		}
		if defaults != 1 {
			return models.NewConfigurationError(fmt.Sprintf("role reconciliation would leave %d default roles", defaults))
		}
		return nil
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		r.log.LogError(ctx, err, "apply_changes")
		return models.NewPersistenceError(err)
	}

	for _, role := range roles {
		r.log.LogUpdate(ctx, map[string]any{"name": role.Name, "permissions": role.Permissions, "default": role.IsDefault})
	}
	return nil
}
