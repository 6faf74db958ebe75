package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"chirp/internal/models"
	"chirp/internal/repository"
	"chirp/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRoleTable(t *testing.T) {
	table := DefaultRoleTable()
	require.NoError(t, table.Validate())

	plan, err := PlanRoles(nil, table)
	require.NoError(t, err)
	require.Len(t, plan.Create, 3)
	assert.Equal(t, models.PermFollow|models.PermComment|models.PermWrite, plan.Create[0].Permissions)
	assert.True(t, plan.Create[0].IsDefault)
	assert.Equal(t, models.Permission(31), plan.Create[2].Permissions)
}

func TestRoleTable_Validate(t *testing.T) {
	cases := []struct {
		name  string
		table RoleTable
	}{
		{"empty", RoleTable{}},
		{"no default", RoleTable{{Name: "User"}}},
		{"two defaults", RoleTable{{Name: "A", Default: true}, {Name: "B", Default: true}}},
		{"duplicate", RoleTable{{Name: "A", Default: true}, {Name: "A"}}},
		{"blank name", RoleTable{{Name: " ", Default: true}}},
		{"unknown permission", RoleTable{{Name: "A", Default: true, Permissions: []string{"FLY"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.table.Validate()
			assert.True(t, models.HasCode(err, models.CodeConfiguration), "got %v", err)
		})
	}
}

func TestParseRoleTable(t *testing.T) {
	table, err := ParseRoleTable([]byte(`
roles:
  - name: User
    permissions: [follow, comment]
    default: true
  - name: Moderator
    permissions: [FOLLOW, COMMENT, MODERATE]
`))
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.True(t, table[0].Default)

	_, err = ParseRoleTable([]byte("roles:\n  - name: User\n    colour: red\n    default: true\n"))
	assert.True(t, models.HasCode(err, models.CodeConfiguration))

	_, err = LoadRoleTable("/nonexistent/roles.yml")
	assert.True(t, models.HasCode(err, models.CodeConfiguration))

	def, err := LoadRoleTable("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRoleTable(), def)
}

func TestPlanRoles_DiffsAgainstCurrent(t *testing.T) {
	table := RoleTable{
		{Name: "User", Permissions: []string{"FOLLOW"}, Default: true},
		{Name: "Moderator", Permissions: []string{"FOLLOW", "MODERATE"}},
	}
	current := []models.Role{
		{ID: 1, Name: "User", Permissions: models.PermFollow, IsDefault: true},
		{ID: 2, Name: "Moderator", Permissions: models.PermFollow},
		{ID: 3, Name: "Guest"},
	}

	plan, err := PlanRoles(current, table)
	require.NoError(t, err)
	assert.Empty(t, plan.Create)
	require.Len(t, plan.Update, 1)
	assert.Equal(t, uint(2), plan.Update[0].ID)
	assert.Equal(t, models.PermFollow|models.PermModerate, plan.Update[0].Permissions)
	assert.Equal(t, 1, plan.Defaults)
}

func TestPlanRoles_UnmanagedDefaultConflicts(t *testing.T) {
	table := RoleTable{{Name: "User", Permissions: []string{"FOLLOW"}, Default: true}}
	current := []models.Role{{ID: 7, Name: "Legacy", IsDefault: true}}

	_, err := PlanRoles(current, table)
	assert.True(t, models.HasCode(err, models.CodeConfiguration))
}

func TestPlanSelfFollows(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	existing := map[uint]struct{}{2: {}}

	edges := PlanSelfFollows([]uint{1, 2, 3, 3}, existing, now)
	require.Len(t, edges, 2)
	for _, e := range edges {
		assert.True(t, e.IsSelf())
		assert.Equal(t, now, e.Timestamp)
	}
	assert.Equal(t, uint(1), edges[0].FollowerID)
	assert.Equal(t, uint(3), edges[1].FollowerID)
	assert.Len(t, existing, 1)

	assert.Empty(t, PlanSelfFollows(nil, nil, now))
}

// Running the role reconciler twice leaves identical contents and one default.
func TestRoles_Idempotent(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	store := repository.NewRoleRepository(db)
	ctx := context.Background()

	first, err := Roles(ctx, store, DefaultRoleTable())
	require.NoError(t, err)
	assert.Len(t, first.Create, 3)

	after1, err := store.List(ctx)
	require.NoError(t, err)

	second, err := Roles(ctx, store, DefaultRoleTable())
	require.NoError(t, err)
	assert.True(t, second.Empty())

	after2, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, after1, after2)

	for _, snapshot := range [][]models.Role{after1, after2} {
		defaults := 0
		for _, r := range snapshot {
			if r.IsDefault {
				defaults++
			}
		}
		assert.Equal(t, 1, defaults)
	}
}

func TestRoles_FromEmptyTable(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	store := repository.NewRoleRepository(db)
	ctx := context.Background()

	p1 := models.PermFollow | models.PermComment
	p2 := p1 | models.PermModerate
	table := RoleTable{
		{Name: "User", Permissions: []string{"FOLLOW", "COMMENT"}, Default: true},
		{Name: "Moderator", Permissions: []string{"FOLLOW", "COMMENT", "MODERATE"}},
	}
	_, err := Roles(ctx, store, table)
	require.NoError(t, err)

	roles, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 2)

	user, err := store.GetByName(ctx, "User")
	require.NoError(t, err)
	assert.Equal(t, p1, user.Permissions)
	assert.True(t, user.IsDefault)

	mod, err := store.GetByName(ctx, "Moderator")
	require.NoError(t, err)
	assert.Equal(t, p2, mod.Permissions)
	assert.False(t, mod.IsDefault)
}

func TestRoles_MovesDefault(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	store := repository.NewRoleRepository(db)
	ctx := context.Background()

	_, err := Roles(ctx, store, DefaultRoleTable())
	require.NoError(t, err)

	table := DefaultRoleTable()
	table[0].Default = false
	table[1].Default = true
	plan, err := Roles(ctx, store, table)
	require.NoError(t, err)
	assert.Len(t, plan.Update, 2)

	def, err := store.GetDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RoleModerator, def.Name)
}

func TestRoles_InvalidTableDoesNotTouchStore(t *testing.T) {
	store := &stubRoleStore{}
	_, err := Roles(context.Background(), store, RoleTable{{Name: "A"}})
	assert.True(t, models.HasCode(err, models.CodeConfiguration))
	assert.Zero(t, store.listCalls)
	assert.Zero(t, store.applyCalls)
}

func TestRoles_PropagatesStoreErrors(t *testing.T) {
	store := &stubRoleStore{listErr: models.NewPersistenceError(errors.New("boom"))}
	_, err := Roles(context.Background(), store, DefaultRoleTable())
	assert.True(t, models.HasCode(err, models.CodePersistence))
}

// After the backfill every user follows itself; a second run adds nothing.
func TestSelfFollows_Backfill(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	users := repository.NewUserRepository(db)
	follows := repository.NewFollowRepository(db)
	ctx := context.Background()

	var created []*models.User
	for i := 0; i < 5; i++ {
		created = append(created, testutil.CreateUser(t, db, fmt.Sprintf("legacy%d", i)))
	}
	testutil.CreateEdge(t, db, created[0].ID, created[0].ID)
	testutil.CreateEdge(t, db, created[1].ID, created[2].ID)

	res, err := SelfFollows(ctx, users, follows, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Scanned)
	assert.Equal(t, int64(4), res.Created)

	for _, u := range created {
		ok, err := follows.Exists(ctx, u.ID, u.ID)
		require.NoError(t, err)
		assert.True(t, ok, "user %d", u.ID)
	}

	before, err := follows.CountEdges(ctx)
	require.NoError(t, err)

	res, err = SelfFollows(ctx, users, follows, 2)
	require.NoError(t, err)
	assert.Zero(t, res.Created)

	after, err := follows.CountEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, int64(6), after)
}

func TestSelfFollows_StopsOnStoreError(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	testutil.CreateUser(t, db, "x")
	users := repository.NewUserRepository(db)

	_, err := SelfFollows(context.Background(), users, failingFollowStore{}, 10)
	assert.True(t, models.HasCode(err, models.CodePersistence))
}

type stubRoleStore struct {
	listErr    error
	listCalls  int
	applyCalls int
}

func (s *stubRoleStore) List(context.Context) ([]models.Role, error) {
	s.listCalls++
	return nil, s.listErr
}

func (s *stubRoleStore) ApplyChanges(context.Context, []models.Role) error {
	s.applyCalls++
	return nil
}

type failingFollowStore struct{}

func (failingFollowStore) SelfFollowing(context.Context, []uint) (map[uint]struct{}, error) {
	return nil, models.NewPersistenceError(errors.New("disk full"))
}

func (failingFollowStore) CreateBatch(context.Context, []models.Follow) (int64, error) {
	return 0, nil
}
