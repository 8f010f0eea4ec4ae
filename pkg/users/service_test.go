package users

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/kikubooks/kiku/pkg/migrations"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := NewService(db)

	t.Run("creates user", func(t *testing.T) {
		user, err := svc.Create(ctx, CreateUserOptions{
			Username: "alice",
			Password: "password123",
			IsAdmin:  true,
		})
		require.NoError(t, err)
		assert.NotZero(t, user.ID)
		assert.True(t, user.IsAdmin)
		assert.True(t, user.IsActive)
		assert.NotEqual(t, "password123", user.PasswordHash)
	})

	t.Run("rejects duplicate username case-insensitively", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateUserOptions{
			Username: "ALICE",
			Password: "password123",
		})
		assert.EqualError(t, err, "Username already exists")
	})
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := NewService(db)

	user, err := svc.Create(ctx, CreateUserOptions{
		Username: "bob",
		Password: "password123",
	})
	require.NoError(t, err)

	user.IsAdmin = true
	require.NoError(t, svc.Update(ctx, user, UpdateOptions{Columns: []string{"is_admin"}}))

	loaded, err := svc.Retrieve(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, loaded.IsAdmin)
}

func TestResetAndVerifyPassword(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := NewService(db)

	user, err := svc.Create(ctx, CreateUserOptions{
		Username: "carol",
		Password: "oldpassword",
	})
	require.NoError(t, err)

	valid, err := svc.VerifyPassword(ctx, user.ID, "oldpassword")
	require.NoError(t, err)
	assert.True(t, valid)

	require.NoError(t, svc.ResetPassword(ctx, user.ID, "newpassword"))

	valid, err = svc.VerifyPassword(ctx, user.ID, "oldpassword")
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = svc.VerifyPassword(ctx, user.ID, "newpassword")
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestDeactivateUser(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := NewService(db)

	user, err := svc.Create(ctx, CreateUserOptions{
		Username: "dave",
		Password: "password123",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, user.ID))

	loaded, err := svc.Retrieve(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, loaded.IsActive)
}

func TestListUsers(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := NewService(db)

	for _, username := range []string{"u1", "u2", "u3"} {
		_, err := svc.Create(ctx, CreateUserOptions{
			Username: username,
			Password: "password123",
		})
		require.NoError(t, err)
	}

	users, total, err := svc.List(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].Username)
}
