package audio

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikubooks/kiku/pkg/models"
)

func file(path string, trackMeta, discMeta, trackName, discName *int) *models.AudioFile {
	return &models.AudioFile{
		Filepath:             path,
		TrackNumFromMeta:     trackMeta,
		DiscNumFromMeta:      discMeta,
		TrackNumFromFilename: trackName,
		DiscNumFromFilename:  discName,
	}
}

func indexes(files []*models.AudioFile) map[string]int {
	m := make(map[string]int, len(files))
	for _, af := range files {
		m[af.Filepath] = af.Index
	}
	return m
}

func TestResolveOrder(t *testing.T) {
	t.Run("single file gets index 1 with no inference", func(t *testing.T) {
		files := []*models.AudioFile{file("/b/whole-book.m4b", nil, nil, nil, nil)}
		ordered := ResolveOrder(files)
		require.Len(t, ordered, 1)
		assert.Equal(t, 1, ordered[0].Index)
		assert.Nil(t, ordered[0].Error)
	})

	t.Run("metadata track numbers order the files", func(t *testing.T) {
		files := []*models.AudioFile{
			file("/b/c.mp3", pointerutil.Int(3), nil, nil, nil),
			file("/b/a.mp3", pointerutil.Int(1), nil, nil, nil),
			file("/b/b.mp3", pointerutil.Int(2), nil, nil, nil),
		}
		ordered := ResolveOrder(files)
		require.Len(t, ordered, 3)
		assert.Equal(t, "/b/a.mp3", ordered[0].Filepath)
		assert.Equal(t, "/b/b.mp3", ordered[1].Filepath)
		assert.Equal(t, "/b/c.mp3", ordered[2].Filepath)
		assert.Equal(t, map[string]int{"/b/a.mp3": 1, "/b/b.mp3": 2, "/b/c.mp3": 3}, indexes(ordered))
	})

	t.Run("filename tracks win when they have more distinct values", func(t *testing.T) {
		// Every file carries the same album-level metadata track number, so
		// the filename numbers are the only usable ordering source.
		files := []*models.AudioFile{
			file("/b/part 02.mp3", pointerutil.Int(1), nil, pointerutil.Int(2), nil),
			file("/b/part 01.mp3", pointerutil.Int(1), nil, pointerutil.Int(1), nil),
			file("/b/part 03.mp3", pointerutil.Int(1), nil, pointerutil.Int(3), nil),
		}
		ordered := ResolveOrder(files)
		assert.Equal(t, map[string]int{"/b/part 01.mp3": 1, "/b/part 02.mp3": 2, "/b/part 03.mp3": 3}, indexes(ordered))
	})

	t.Run("equal distinct counts favor metadata", func(t *testing.T) {
		// Filename numbers disagree with metadata, both sources fully
		// distinct. Metadata wins the tie.
		files := []*models.AudioFile{
			file("/b/10 intro.mp3", pointerutil.Int(2), nil, pointerutil.Int(10), nil),
			file("/b/20 outro.mp3", pointerutil.Int(1), nil, pointerutil.Int(20), nil),
		}
		ordered := ResolveOrder(files)
		assert.Equal(t, map[string]int{"/b/20 outro.mp3": 1, "/b/10 intro.mp3": 2}, indexes(ordered))
	})

	t.Run("sequential metadata discs are preferred over gapped filename discs", func(t *testing.T) {
		files := []*models.AudioFile{
			file("/b/w.mp3", pointerutil.Int(1), pointerutil.Int(1), pointerutil.Int(1), pointerutil.Int(1)),
			file("/b/x.mp3", pointerutil.Int(2), pointerutil.Int(1), pointerutil.Int(2), pointerutil.Int(3)),
			file("/b/y.mp3", pointerutil.Int(1), pointerutil.Int(2), pointerutil.Int(3), pointerutil.Int(5)),
			file("/b/z.mp3", pointerutil.Int(2), pointerutil.Int(2), pointerutil.Int(4), pointerutil.Int(7)),
		}
		ordered := ResolveOrder(files)
		// Filename tracks have 4 distinct values vs metadata's 2, so tracks
		// come from filenames, but the disc key must come from metadata:
		// [1,1,2,2] is sequential while [1,3,5,7] has gaps > 1.
		assert.Equal(t, map[string]int{"/b/w.mp3": 1, "/b/x.mp3": 2, "/b/y.mp3": 3, "/b/z.mp3": 4}, indexes(ordered))
	})

	t.Run("file without a track number under the chosen key is excluded", func(t *testing.T) {
		files := []*models.AudioFile{
			file("/b/a.mp3", pointerutil.Int(1), nil, nil, nil),
			file("/b/b.mp3", pointerutil.Int(2), nil, nil, nil),
			file("/b/notes.mp3", nil, nil, nil, nil),
		}
		ordered := ResolveOrder(files)
		require.Len(t, ordered, 3)
		assert.Equal(t, -1, ordered[2].Index)
		require.NotNil(t, ordered[2].Error)
		assert.Equal(t, "failed to get track number", *ordered[2].Error)
		assert.Equal(t, 1, ordered[0].Index)
		assert.Equal(t, 2, ordered[1].Index)
	})

	t.Run("deterministic regardless of input order", func(t *testing.T) {
		build := func() []*models.AudioFile {
			files := make([]*models.AudioFile, 0, 10)
			for i := 1; i <= 10; i++ {
				files = append(files, file(
					fmt.Sprintf("/b/track %02d.mp3", i),
					pointerutil.Int(i), pointerutil.Int(1+i/6),
					pointerutil.Int(i), pointerutil.Int(1+i/6),
				))
			}
			return files
		}

		want := indexes(ResolveOrder(build()))
		r := rand.New(rand.NewSource(42))
		for i := 0; i < 20; i++ {
			files := build()
			r.Shuffle(len(files), func(a, b int) { files[a], files[b] = files[b], files[a] })
			assert.Equal(t, want, indexes(ResolveOrder(files)))
		}
	})
}

func TestParseTrackAndDisc(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		ctx   BookContext
		track *int
		disc  *int
	}{
		{
			name:  "plain track number",
			path:  "/books/Some Book/Part 03.mp3",
			track: pointerutil.Int(3),
		},
		{
			name:  "disc and track in name",
			path:  "/books/Some Book/Disc 2 - 04.mp3",
			track: pointerutil.Int(4),
			disc:  pointerutil.Int(2),
		},
		{
			name:  "cd marker",
			path:  "/books/Some Book/cd 1 track 12.mp3",
			track: pointerutil.Int(12),
			disc:  pointerutil.Int(1),
		},
		{
			name:  "disc from parent directory",
			path:  "/books/Some Book/CD01/07.mp3",
			track: pointerutil.Int(7),
			disc:  pointerutil.Int(1),
		},
		{
			name:  "parent directory overrides name",
			path:  "/books/Some Book/CD03/disc 1 - 02.mp3",
			track: pointerutil.Int(2),
			disc:  pointerutil.Int(3),
		},
		{
			name:  "title digits are stripped before parsing",
			path:  "/books/1984/1984 - 05.mp3",
			ctx:   BookContext{Title: "1984"},
			track: pointerutil.Int(5),
		},
		{
			name:  "published year stripped",
			path:  "/books/Some Book/Some Book 2019 - 11.mp3",
			ctx:   BookContext{Title: "Some Book", PublishedYear: "2019"},
			track: pointerutil.Int(11),
		},
		{
			name: "no numbers at all",
			path: "/books/Some Book/intro.mp3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track, disc := ParseTrackAndDisc(tt.path, tt.ctx)
			assert.Equal(t, tt.track, track)
			assert.Equal(t, tt.disc, disc)
		})
	}
}
