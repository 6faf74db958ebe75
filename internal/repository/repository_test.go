package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"chirp/internal/models"
	"chirp/internal/testutil"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedDefaultRole(t *testing.T, db *gorm.DB) *models.Role {
	t.Helper()
	role := &models.Role{Name: models.RoleUser, IsDefault: true, Permissions: models.PermFollow | models.PermComment | models.PermWrite}
	require.NoError(t, db.Create(role).Error)
	return role
}

func TestUserRepository_CreateAddsSelfFollow(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	role := seedDefaultRole(t, db)
	users := NewUserRepository(db)
	follows := NewFollowRepository(db)
	ctx := context.Background()

	u := &models.User{Username: "alice", Email: "alice@example.com"}
	require.NoError(t, users.Create(ctx, u))
	require.NotNil(t, u.RoleID)
	assert.Equal(t, role.ID, *u.RoleID)

	self, err := follows.Exists(ctx, u.ID, u.ID)
	require.NoError(t, err)
	assert.True(t, self)

	dup := &models.User{Username: "alice", Email: "other@example.com"}
	err = users.Create(ctx, dup)
	assert.True(t, models.HasCode(err, models.CodeValidation))
}

func TestUserRepository_DeleteCascadesEdges(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	users := NewUserRepository(db)
	ctx := context.Background()

	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	c := testutil.CreateUser(t, db, "c")
	testutil.CreateEdge(t, db, a.ID, a.ID)
	testutil.CreateEdge(t, db, a.ID, b.ID)
	testutil.CreateEdge(t, db, b.ID, a.ID)
	testutil.CreateEdge(t, db, b.ID, c.ID)

	require.NoError(t, users.Delete(ctx, a.ID))

	var remaining []models.Follow
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, b.ID, remaining[0].FollowerID)
	assert.Equal(t, c.ID, remaining[0].FollowedID)

	err := users.Delete(ctx, a.ID)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestUserRepository_EachIDBatch(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	users := NewUserRepository(db)
	for i := 0; i < 7; i++ {
		testutil.CreateUser(t, db, fmt.Sprintf("user%d", i))
	}

	var sizes []int
	var seen []uint
	err := users.EachIDBatch(context.Background(), 3, func(ids []uint) error {
		sizes = append(sizes, len(ids))
		seen = append(seen, ids...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Len(t, seen, 7)
	assert.IsIncreasing(t, seen)

	stop := errors.New("stop")
	err = users.EachIDBatch(context.Background(), 3, func([]uint) error { return stop })
	assert.ErrorIs(t, err, stop)

	err = users.EachIDBatch(context.Background(), 0, func([]uint) error { return nil })
	assert.True(t, models.HasCode(err, models.CodeValidation))
}

func TestUserRepository_Exists(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	users := NewUserRepository(db)
	ctx := context.Background()

	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")

	ok, err := users.Exists(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = users.Exists(ctx, a.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, ok, "repeated ids count once")

	ok, err = users.Exists(ctx, a.ID, 9999)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = users.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFollowRepository_CreateAndDelete(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")

	edge, err := repo.Create(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, edge.Timestamp.IsZero())

	_, err = repo.Create(ctx, a.ID, b.ID)
	assert.True(t, models.HasCode(err, models.CodeDuplicateEdge))

	_, err = repo.Create(ctx, a.ID, 9999)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
	_, err = repo.Create(ctx, 9999, 9999)
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	ok, err := repo.Exists(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Exists(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Delete(ctx, a.ID, b.ID))
	err = repo.Delete(ctx, a.ID, b.ID)
	assert.True(t, models.HasCode(err, models.CodeEdgeNotFound))

	_, err = repo.Get(ctx, a.ID, b.ID)
	assert.True(t, models.HasCode(err, models.CodeEdgeNotFound))
}

func TestFollowRepository_ListsAndCountsSkipSelfEdge(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	c := testutil.CreateUser(t, db, "c")
	for _, u := range []*models.User{a, b, c} {
		testutil.CreateEdge(t, db, u.ID, u.ID)
	}
	testutil.CreateEdge(t, db, b.ID, a.ID)
	testutil.CreateEdge(t, db, c.ID, a.ID)

	followers, err := repo.Followers(ctx, a.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, followers, 2)

	following, err := repo.Following(ctx, b.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, a.ID, following[0].ID)

	n, err := repo.CountFollowers(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.CountFollowing(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = repo.CountEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestFollowRepository_SelfFollowingAndCreateBatch(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	testutil.CreateEdge(t, db, a.ID, a.ID)
	testutil.CreateEdge(t, db, b.ID, a.ID)

	found, err := repo.SelfFollowing(ctx, []uint{a.ID, b.ID})
	require.NoError(t, err)
	assert.Contains(t, found, a.ID)
	assert.NotContains(t, found, b.ID)

	created, err := repo.CreateBatch(ctx, []models.Follow{
		{FollowerID: a.ID, FollowedID: a.ID},
		{FollowerID: b.ID, FollowedID: b.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created)

	n, err := repo.CountEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRoleRepository_ApplyChanges(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewRoleRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.ApplyChanges(ctx, []models.Role{
		{Name: models.RoleUser, IsDefault: true, Permissions: models.PermFollow},
		{Name: models.RoleAdministrator, Permissions: models.PermAdmin},
	}))

	def, err := repo.GetDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, def.Name)

	require.NoError(t, repo.ApplyChanges(ctx, []models.Role{
		{Name: models.RoleUser, IsDefault: false, Permissions: models.PermFollow | models.PermWrite},
		{Name: models.RoleAdministrator, IsDefault: true, Permissions: models.PermAdmin},
	}))
	user, err := repo.GetByName(ctx, models.RoleUser)
	require.NoError(t, err)
	assert.False(t, user.IsDefault)
	assert.Equal(t, models.PermFollow|models.PermWrite, user.Permissions)

	roles, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 2)
}

func TestRoleRepository_ApplyChangesRollsBackOnSecondDefault(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewRoleRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Role{Name: "Legacy", IsDefault: true}).Error)

	err := repo.ApplyChanges(ctx, []models.Role{
		{Name: models.RoleUser, IsDefault: true, Permissions: models.PermFollow},
	})
	assert.True(t, models.HasCode(err, models.CodeConfiguration))

	_, err = repo.GetByName(ctx, models.RoleUser)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestIsUniqueConstraintError(t *testing.T) {
	assert.True(t, isUniqueConstraintError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueConstraintError(&pgconn.PgError{Code: "23503"}))
	assert.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: follows.follower_id, follows.followed_id")))
	assert.True(t, isUniqueConstraintError(gorm.ErrDuplicatedKey))
	assert.False(t, isUniqueConstraintError(errors.New("connection refused")))
	assert.False(t, isUniqueConstraintError(nil))
}
