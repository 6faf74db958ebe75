// Package seed provides database seeding utilities for development and testing.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"chirp/internal/models"
	"chirp/internal/observability"
	"chirp/internal/service"

	"github.com/brianvoe/gofakeit/v6"
)

// Options configuration for the seeder
type Options struct {
	NumUsers   int
	NumFollows int
	Password   string
	// Seed fixes the fake data generator; zero picks a random seed.
	Seed int64
}

// Summary reports what a seeding run wrote.
type Summary struct {
	Users          int
	Follows        int
	SkippedFollows int
}

// Seeder creates fake users and random follow edges through the services,
// so every seeded user gets its self-edge and default role.
type Seeder struct {
	users   *service.UserService
	follows *service.FollowService
	faker   *gofakeit.Faker
	opts    Options
}

// NewSeeder returns a Seeder bound to the given services.
func NewSeeder(users *service.UserService, follows *service.FollowService, opts Options) *Seeder {
	if opts.Password == "" {
		opts.Password = "password123"
	}
	return &Seeder{
		users:   users,
		follows: follows,
		faker:   gofakeit.New(opts.Seed),
		opts:    opts,
	}
}

// Run seeds users first, then follow edges between them.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	created := make([]*models.User, 0, s.opts.NumUsers)
	for i := 0; i < s.opts.NumUsers; i++ {
		user, err := s.users.Register(ctx, s.buildUser(i))
		if err != nil {
			return sum, fmt.Errorf("seed user %d: %w", i, err)
		}
		created = append(created, user)
		sum.Users++
	}

	if len(created) < 2 {
		if s.opts.NumFollows > 0 {
			observability.Logger.WarnContext(ctx, "Not enough users to seed follows", slog.Int("users", len(created)))
		}
		return sum, nil
	}

	for i := 0; i < s.opts.NumFollows; i++ {
		a := created[s.faker.Number(0, len(created)-1)]
		b := created[s.faker.Number(0, len(created)-1)]
		if a.ID == b.ID {
			sum.SkippedFollows++
			continue
		}
		if _, err := s.follows.Follow(ctx, a.ID, b.ID); err != nil {
			if models.HasCode(err, models.CodeDuplicateEdge) {
				sum.SkippedFollows++
				continue
			}
			return sum, fmt.Errorf("seed follow %d -> %d: %w", a.ID, b.ID, err)
		}
		sum.Follows++
	}

	observability.Logger.InfoContext(ctx, "Seeding complete",
		slog.Int("users", sum.Users),
		slog.Int("follows", sum.Follows),
		slog.Int("skipped_follows", sum.SkippedFollows),
	)
	return sum, nil
}

func (s *Seeder) buildUser(i int) service.RegisterInput {
	first := slug(s.faker.FirstName(), "user")
	last := slug(s.faker.LastName(), "seed")
	username := fmt.Sprintf("%s_%s_%d", first, last, i)
	return service.RegisterInput{
		Email:    fmt.Sprintf("%s.%s.%d@example.com", first, last, i),
		Username: username,
		Password: s.opts.Password,
	}
}

// slug keeps only lowercase ASCII letters and digits, capped at 16 runes.
func slug(s, fallback string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 16 {
			break
		}
	}
	if b.Len() == 0 {
		return fallback
	}
	return b.String()
}
