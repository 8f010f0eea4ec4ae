package devices

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
	"github.com/kikubooks/kiku/pkg/models"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

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

func createTestUser(t *testing.T, db *bun.DB) *models.User {
	t.Helper()
	user := &models.User{Username: "tester", PasswordHash: "x"}
	_, err := db.NewInsert().Model(user).Exec(context.Background())
	require.NoError(t, err)
	return user
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("client supplied id keys the row", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewService(db)
		user := createTestUser(t, db)

		client := &ClientDeviceInfo{
			DeviceID:      "abcd-1234",
			ClientName:    "Kiku Android",
			ClientVersion: "1.2.0",
			Manufacturer:  "Google",
			Model:         "Pixel 8",
			SDKVersion:    "34",
		}
		device, err := svc.Resolve(ctx, user.ID, "10.0.0.5", "", client)
		require.NoError(t, err)
		assert.Equal(t, "abcd-1234", device.ID)
		assert.Equal(t, "Pixel 8", device.Model)

		// Second resolve with fewer fields clears the ones not sent.
		device, err = svc.Resolve(ctx, user.ID, "10.0.0.6", "", &ClientDeviceInfo{
			DeviceID:      "abcd-1234",
			ClientName:    "Kiku Android",
			ClientVersion: "1.3.0",
		})
		require.NoError(t, err)
		assert.Equal(t, "1.3.0", device.ClientVersion)
		assert.Empty(t, device.Model)
		assert.Equal(t, "10.0.0.6", device.IPAddress)

		count, err := db.NewSelect().Model((*models.Device)(nil)).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("fallback id is stable across requests", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewService(db)
		user := createTestUser(t, db)

		first, err := svc.Resolve(ctx, user.ID, "10.0.0.5", chromeUA, nil)
		require.NoError(t, err)
		second, err := svc.Resolve(ctx, user.ID, "10.0.0.5", chromeUA, nil)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "Chrome", first.BrowserName)
		assert.Equal(t, "Windows", first.OSName)
		assert.Equal(t, "desktop", first.DeviceType)

		count, err := db.NewSelect().Model((*models.Device)(nil)).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("different users get different fallback ids", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewService(db)
		user := createTestUser(t, db)
		other := &models.User{Username: "other", PasswordHash: "x"}
		_, err := db.NewInsert().Model(other).Exec(ctx)
		require.NoError(t, err)

		first, err := svc.Resolve(ctx, user.ID, "10.0.0.5", chromeUA, nil)
		require.NoError(t, err)
		second, err := svc.Resolve(ctx, other.ID, "10.0.0.5", chromeUA, nil)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
	})
}
