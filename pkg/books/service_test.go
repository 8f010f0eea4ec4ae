package books

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

func createTestLibrary(t *testing.T, db *bun.DB) *models.Library {
	t.Helper()
	library := &models.Library{Name: "Audiobooks", MediaType: models.MediaTypeBook}
	_, err := db.NewInsert().Model(library).Exec(context.Background())
	require.NoError(t, err)
	return library
}

func TestCreateBook(t *testing.T) {
	ctx := context.Background()

	t.Run("audiobook with files", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewService(db)
		library := createTestLibrary(t, db)

		book := &models.Book{
			LibraryID: library.ID,
			MediaType: models.MediaTypeBook,
			Filepath:  "/books/wool",
			Title:     "Wool",
			AudioFiles: []*models.AudioFile{
				{Ino: "1", Filepath: "/books/wool/02.mp3", Index: 2, DurationSeconds: 100},
				{Ino: "2", Filepath: "/books/wool/01.mp3", Index: 1, DurationSeconds: 100},
			},
		}
		require.NoError(t, svc.CreateBook(ctx, book))
		assert.NotZero(t, book.ID)

		loaded, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
		require.NoError(t, err)
		require.Len(t, loaded.AudioFiles, 2)
		// Files come back in play order.
		assert.Equal(t, 1, loaded.AudioFiles[0].Index)
		assert.Equal(t, library.ID, loaded.AudioFiles[0].LibraryID)
		assert.Equal(t, 200.0, loaded.Duration())
	})

	t.Run("podcast with episodes", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewService(db)
		library := createTestLibrary(t, db)

		book := &models.Book{
			LibraryID: library.ID,
			MediaType: models.MediaTypePodcast,
			Filepath:  "/podcasts/show",
			Title:     "Show",
			Episodes: []*models.Episode{
				{
					Title: "Episode 1",
					Index: 1,
					AudioFile: &models.AudioFile{
						Ino:             "10",
						Filepath:        "/podcasts/show/ep1.mp3",
						Index:           1,
						DurationSeconds: 1800,
					},
				},
			},
		}
		require.NoError(t, svc.CreateBook(ctx, book))

		loaded, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
		require.NoError(t, err)
		require.Len(t, loaded.Episodes, 1)
		require.NotNil(t, loaded.Episodes[0].AudioFile)
		assert.Equal(t, 1800.0, loaded.Episodes[0].Duration())
	})
}

func TestRetrieveBook(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := NewService(db)
	library := createTestLibrary(t, db)

	book := &models.Book{
		LibraryID: library.ID,
		MediaType: models.MediaTypeBook,
		Filepath:  "/books/wool",
		Title:     "Wool",
	}
	require.NoError(t, svc.CreateBook(ctx, book))

	t.Run("by filepath", func(t *testing.T) {
		path := "/books/wool"
		loaded, err := svc.RetrieveBook(ctx, RetrieveBookOptions{Filepath: &path})
		require.NoError(t, err)
		assert.Equal(t, book.ID, loaded.ID)
		require.NotNil(t, loaded.Library)
		assert.Equal(t, library.ID, loaded.Library.ID)
	})

	t.Run("not found", func(t *testing.T) {
		id := 999
		_, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
		assert.EqualError(t, err, "Book not found.")
	})
}

func TestListBooks(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := NewService(db)
	library := createTestLibrary(t, db)
	other := createTestLibrary(t, db)

	for _, title := range []string{"Zebra", "Aardvark"} {
		require.NoError(t, svc.CreateBook(ctx, &models.Book{
			LibraryID: library.ID,
			MediaType: models.MediaTypeBook,
			Filepath:  "/books/" + title,
			Title:     title,
		}))
	}
	require.NoError(t, svc.CreateBook(ctx, &models.Book{
		LibraryID: other.ID,
		MediaType: models.MediaTypeBook,
		Filepath:  "/other/book",
		Title:     "Other",
	}))

	books, total, err := svc.ListBooksWithTotal(ctx, ListBooksOptions{LibraryID: &library.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, books, 2)
	assert.Equal(t, "Aardvark", books[0].Title)
}

func TestUpdateAudioFile(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := NewService(db)
	library := createTestLibrary(t, db)

	book := &models.Book{
		LibraryID: library.ID,
		MediaType: models.MediaTypeBook,
		Filepath:  "/books/wool",
		Title:     "Wool",
		AudioFiles: []*models.AudioFile{
			{Ino: "1", Filepath: "/books/wool/01.mp3", Index: 1, DurationSeconds: 100},
			{Ino: "2", Filepath: "/books/wool/02.mp3", Index: 2, DurationSeconds: 100},
		},
	}
	require.NoError(t, svc.CreateBook(ctx, book))

	file := book.AudioFiles[0]
	file.Exclude = true
	require.NoError(t, svc.UpdateAudioFile(ctx, file, UpdateAudioFileOptions{Columns: []string{"exclude"}}))

	loaded, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
	require.NoError(t, err)
	// Excluded files drop out of the computed track list.
	assert.Len(t, loaded.Tracks(), 1)
	assert.Equal(t, 100.0, loaded.Duration())
}

func TestDeleteBook(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := NewService(db)
	library := createTestLibrary(t, db)

	book := &models.Book{
		LibraryID: library.ID,
		MediaType: models.MediaTypeBook,
		Filepath:  "/books/wool",
		Title:     "Wool",
		AudioFiles: []*models.AudioFile{
			{Ino: "1", Filepath: "/books/wool/01.mp3", Index: 1},
		},
	}
	require.NoError(t, svc.CreateBook(ctx, book))
	require.NoError(t, svc.DeleteBook(ctx, book.ID))

	_, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
	assert.Error(t, err)

	count, err := db.NewSelect().Model((*models.AudioFile)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
