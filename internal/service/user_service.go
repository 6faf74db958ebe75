package service

import (
	"context"
	"log/slog"
	"strings"

	"chirp/internal/models"
	"chirp/internal/observability"
	"chirp/internal/repository"
	"chirp/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	userRepo   repository.UserRepository
	roleRepo   repository.RoleRepository
	adminEmail string
	hashCost   int
}

// RegisterInput carries the fields needed to create an account.
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

func NewUserService(userRepo repository.UserRepository, roleRepo repository.RoleRepository, adminEmail string) *UserService {
	return &UserService{
		userRepo:   userRepo,
		roleRepo:   roleRepo,
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
		hashCost:   bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost; seeding uses the minimum.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.hashCost = cost
	return s
}

// Register creates a user with a hashed password. The configured admin
// address gets the Administrator role, everyone else the default role.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)

	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, models.NewValidationError("Password cannot be hashed")
	}

	user := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
	}

	if s.adminEmail != "" && email == s.adminEmail {
		role, err := s.roleRepo.GetByName(ctx, models.RoleAdministrator)
		if err != nil {
			return nil, err
		}
		user.RoleID = &role.ID
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	observability.Logger.InfoContext(ctx, "User registered",
		slog.Uint64("user_id", uint64(user.ID)),
		slog.String("username", user.Username),
	)
	return user, nil
}

// VerifyPassword reports whether password matches the stored hash.
func (s *UserService) VerifyPassword(user *models.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// DeleteUser removes the user and every edge touching it.
func (s *UserService) DeleteUser(ctx context.Context, id uint) error {
	if err := s.userRepo.Delete(ctx, id); err != nil {
		return err
	}
	observability.Logger.InfoContext(ctx, "User deleted", slog.Uint64("user_id", uint64(id)))
	return nil
}
