package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikubooks/kiku/internal/testgen"
)

func TestProbeMP4(t *testing.T) {
	testgen.SkipIfNoFFmpeg(t)

	t.Run("reads duration and tags", func(t *testing.T) {
		path := testgen.GenerateM4B(t, t.TempDir(), "book.m4b", testgen.M4BOptions{
			Title:    "Chapter One",
			Artist:   "Some Author",
			Album:    "Some Book",
			Track:    "1/2",
			Duration: 2,
		})

		info, err := probeMP4(path)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, info.DurationSeconds, 0.2)
		assert.Equal(t, "Chapter One", info.Tags.Title)
		assert.Equal(t, "Some Author", info.Tags.Artist)
		assert.Equal(t, "Some Book", info.Tags.Album)
		assert.Equal(t, "1/2", info.Tags.TrackNumber)
	})

	t.Run("default prober agrees with fast path", func(t *testing.T) {
		path := testgen.GenerateM4B(t, t.TempDir(), "track.m4b", testgen.M4BOptions{
			Title:    "Track",
			Duration: 1,
		})

		// The default prober should agree with the fast path.
		info, err := New().Probe(t.Context(), path)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, info.DurationSeconds, 0.2)
		assert.Equal(t, "Track", info.Tags.Title)
	})
}
