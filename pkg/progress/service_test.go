package progress

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/kikubooks/kiku/pkg/events"
	"github.com/kikubooks/kiku/pkg/migrations"
	"github.com/kikubooks/kiku/pkg/models"
)

// recordingBroadcaster captures emitted events for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	toUser []recordedEvent
}

type recordedEvent struct {
	UserID  int
	Name    string
	Payload interface{}
}

func (b *recordingBroadcaster) EmitToUser(userID int, name string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toUser = append(b.toUser, recordedEvent{UserID: userID, Name: name, Payload: payload})
}

func (b *recordingBroadcaster) EmitToAdmins(string, interface{}) {}

func (b *recordingBroadcaster) userEvents() []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedEvent(nil), b.toUser...)
}

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

func seedUserAndBook(t *testing.T, db *bun.DB) (*models.User, *models.Book) {
	t.Helper()
	ctx := context.Background()

	library := &models.Library{Name: "Audiobooks", MediaType: models.MediaTypeBook}
	_, err := db.NewInsert().Model(library).Exec(ctx)
	require.NoError(t, err)

	user := &models.User{Username: "tester", PasswordHash: "x"}
	_, err = db.NewInsert().Model(user).Exec(ctx)
	require.NoError(t, err)

	book := &models.Book{
		LibraryID: library.ID,
		MediaType: models.MediaTypeBook,
		Filepath:  "/books/test",
		Title:     "Test Book",
	}
	_, err = db.NewInsert().Model(book).Exec(ctx)
	require.NoError(t, err)

	return user, book
}

func TestApplyUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates then updates a record", func(t *testing.T) {
		db := setupTestDB(t)
		broadcaster := &recordingBroadcaster{}
		svc := NewService(db, broadcaster)
		user, book := seedUserAndBook(t, db)

		record, outcome, err := svc.ApplyUpdate(ctx, user.ID, Update{
			BookID:             book.ID,
			DurationSeconds:    pointerutil.Float64(300),
			CurrentTimeSeconds: pointerutil.Float64(30),
			Progress:           pointerutil.Float64(0.1),
			LastUpdate:         time.Now(),
		}, FinishPolicy{}, "play_abc")
		require.NoError(t, err)
		assert.Equal(t, OutcomeCreated, outcome)
		assert.NotZero(t, record.ID)

		record, outcome, err = svc.ApplyUpdate(ctx, user.ID, Update{
			BookID:             book.ID,
			CurrentTimeSeconds: pointerutil.Float64(60),
			Progress:           pointerutil.Float64(0.2),
			LastUpdate:         time.Now(),
		}, FinishPolicy{}, "play_abc")
		require.NoError(t, err)
		assert.Equal(t, OutcomeUpdated, outcome)
		assert.Equal(t, 60.0, record.CurrentTimeSeconds)

		count, err := db.NewSelect().Model((*models.MediaProgress)(nil)).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		emitted := broadcaster.userEvents()
		require.Len(t, emitted, 2)
		assert.Equal(t, events.ProgressUpdated, emitted[0].Name)
		assert.Equal(t, user.ID, emitted[0].UserID)
		payload, ok := emitted[0].Payload.(UpdatePayload)
		require.True(t, ok)
		assert.Equal(t, "play_abc", payload.SessionID)
	})

	t.Run("stale update is a silent no-op", func(t *testing.T) {
		db := setupTestDB(t)
		broadcaster := &recordingBroadcaster{}
		svc := NewService(db, broadcaster)
		user, book := seedUserAndBook(t, db)

		now := time.Now()
		_, _, err := svc.ApplyUpdate(ctx, user.ID, Update{
			BookID:             book.ID,
			DurationSeconds:    pointerutil.Float64(300),
			CurrentTimeSeconds: pointerutil.Float64(150),
			Progress:           pointerutil.Float64(0.5),
			LastUpdate:         now,
		}, FinishPolicy{}, "")
		require.NoError(t, err)

		record, outcome, err := svc.ApplyUpdate(ctx, user.ID, Update{
			BookID:             book.ID,
			CurrentTimeSeconds: pointerutil.Float64(10),
			Progress:           pointerutil.Float64(0.03),
			LastUpdate:         now.Add(-time.Hour),
		}, FinishPolicy{}, "")
		require.NoError(t, err)
		assert.Equal(t, OutcomeRejectedStale, outcome)
		assert.Equal(t, 150.0, record.CurrentTimeSeconds)

		stored, err := svc.Retrieve(ctx, user.ID, book.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 150.0, stored.CurrentTimeSeconds)
		assert.Equal(t, 0.5, stored.Progress)

		// Only the first update was broadcast.
		assert.Len(t, broadcaster.userEvents(), 1)
	})

	t.Run("episode progress is tracked separately from the book", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewService(db, &recordingBroadcaster{})
		user, book := seedUserAndBook(t, db)

		episode := &models.Episode{BookID: book.ID, Title: "Episode 1", Index: 1}
		_, err := db.NewInsert().Model(episode).Exec(ctx)
		require.NoError(t, err)

		_, _, err = svc.ApplyUpdate(ctx, user.ID, Update{
			BookID:             book.ID,
			EpisodeID:          &episode.ID,
			CurrentTimeSeconds: pointerutil.Float64(100),
			DurationSeconds:    pointerutil.Float64(1000),
			Progress:           pointerutil.Float64(0.1),
			LastUpdate:         time.Now(),
		}, FinishPolicy{}, "")
		require.NoError(t, err)

		bookProgress, err := svc.Retrieve(ctx, user.ID, book.ID, nil)
		require.NoError(t, err)
		assert.Nil(t, bookProgress)

		episodeProgress, err := svc.Retrieve(ctx, user.ID, book.ID, &episode.ID)
		require.NoError(t, err)
		require.NotNil(t, episodeProgress)
		assert.Equal(t, 100.0, episodeProgress.CurrentTimeSeconds)
	})
}
