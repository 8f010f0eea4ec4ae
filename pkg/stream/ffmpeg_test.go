package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikubooks/kiku/pkg/models"
)

func TestConcatListContents(t *testing.T) {
	t.Run("lists tracks in order", func(t *testing.T) {
		tracks := []models.AudioTrack{
			{AudioFileID: 1},
			{AudioFileID: 2},
		}
		paths := map[int]string{
			1: "/books/b/01.mp3",
			2: "/books/b/02.mp3",
		}

		contents, err := concatListContents(tracks, paths)
		require.NoError(t, err)
		assert.Equal(t, "file '/books/b/01.mp3'\nfile '/books/b/02.mp3'\n", contents)
	})

	t.Run("escapes single quotes", func(t *testing.T) {
		tracks := []models.AudioTrack{{AudioFileID: 1}}
		paths := map[int]string{1: "/books/o'brien/01.mp3"}

		contents, err := concatListContents(tracks, paths)
		require.NoError(t, err)
		assert.Equal(t, `file '/books/o'\''brien/01.mp3'`+"\n", contents)
	})

	t.Run("errors on a missing path", func(t *testing.T) {
		tracks := []models.AudioTrack{{AudioFileID: 7}}
		_, err := concatListContents(tracks, nil)
		assert.Error(t, err)
	})
}

func TestTranscodeArgs(t *testing.T) {
	t.Run("includes a seek only when starting mid-book", func(t *testing.T) {
		args := transcodeArgs("/streams/play_x/files.txt", "/streams/play_x", 0)
		assert.NotContains(t, args, "-ss")

		args = transcodeArgs("/streams/play_x/files.txt", "/streams/play_x", 125.5)
		assert.Contains(t, args, "-ss")
		assert.Contains(t, args, "125.500")
	})

	t.Run("writes the playlist into the session dir", func(t *testing.T) {
		args := transcodeArgs("/streams/play_x/files.txt", "/streams/play_x", 0)
		assert.Equal(t, "/streams/play_x/output.m3u8", args[len(args)-1])
	})
}
