package chapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikubooks/kiku/pkg/models"
)

func audioFile(path string, duration float64) *models.AudioFile {
	return &models.AudioFile{Filepath: path, DurationSeconds: duration}
}

func markersXML(entries ...[2]string) string {
	xml := "<Markers>"
	for _, e := range entries {
		xml += "<Marker><Name>" + e[0] + "</Name><Time>" + e[1] + "</Time></Marker>"
	}
	return xml + "</Markers>"
}

// assertContiguous checks the chapter timeline covers [0, totalDuration]
// with no gaps.
func assertContiguous(t *testing.T, chapters models.ChapterList, totalDuration float64) {
	t.Helper()
	require.NotEmpty(t, chapters)
	assert.Equal(t, 0.0, chapters[0].Start)
	for i := 0; i < len(chapters)-1; i++ {
		assert.Equal(t, chapters[i].End, chapters[i+1].Start, "gap after chapter %d", i)
	}
	assert.InDelta(t, totalDuration, chapters[len(chapters)-1].End, 0.001)
}

func TestAssemble(t *testing.T) {
	ctx := context.Background()

	t.Run("no files", func(t *testing.T) {
		assert.Nil(t, Assemble(ctx, nil, Options{}))
	})

	t.Run("single file without chapters yields none", func(t *testing.T) {
		files := []*models.AudioFile{audioFile("/b/book.m4b", 3600)}
		assert.Nil(t, Assemble(ctx, files, Options{}))
	})

	t.Run("single file with embedded chapters uses them", func(t *testing.T) {
		af := audioFile("/b/book.m4b", 300)
		af.EmbeddedChapters = models.ChapterList{
			{ID: 0, Start: 0, End: 100, Title: "One"},
			{ID: 1, Start: 100, End: 300, Title: "Two"},
		}
		chapters := Assemble(ctx, []*models.AudioFile{af}, Options{})
		require.Len(t, chapters, 2)
		assert.Equal(t, "One", chapters[0].Title)
		assert.Equal(t, "Two", chapters[1].Title)
		assertContiguous(t, chapters, 300)
	})

	t.Run("embedded list starting above zero is pinned to zero", func(t *testing.T) {
		af := audioFile("/b/book.m4b", 300)
		af.EmbeddedChapters = models.ChapterList{
			{ID: 0, Start: 1.5, End: 100, Title: "One"},
			{ID: 1, Start: 100, End: 300, Title: "Two"},
		}
		chapters := Assemble(ctx, []*models.AudioFile{af}, Options{})
		require.Len(t, chapters, 2)
		assertContiguous(t, chapters, 300)
	})

	t.Run("synthesizes one chapter per file", func(t *testing.T) {
		files := []*models.AudioFile{
			audioFile("/b/Part 01.mp3", 100),
			audioFile("/b/Part 02.mp3", 150),
			audioFile("/b/Part 03.mp3", 50),
		}
		chapters := Assemble(ctx, files, Options{})
		require.Len(t, chapters, 3)
		assert.Equal(t, "Part 01", chapters[0].Title)
		assert.Equal(t, 100.0, chapters[1].Start)
		assert.Equal(t, 250.0, chapters[2].Start)
		assertContiguous(t, chapters, 300)
	})

	t.Run("synthesized titles prefer metadata when asked", func(t *testing.T) {
		files := []*models.AudioFile{
			audioFile("/b/Part 01.mp3", 100),
			audioFile("/b/Part 02.mp3", 100),
		}
		files[0].MetaTags.Title = "Prologue"
		files[1].MetaTags.Title = "The Book" // same as book title, ignored
		opts := Options{PreferAudioMetadataTitle: true, BookTitle: "The Book"}
		chapters := Assemble(ctx, files, opts)
		require.Len(t, chapters, 2)
		assert.Equal(t, "Prologue", chapters[0].Title)
		assert.Equal(t, "Part 02", chapters[1].Title)
	})

	t.Run("identical embedded chapter shapes collapse to one list", func(t *testing.T) {
		shape := models.ChapterList{
			{ID: 0, Start: 0, End: 150, Title: "One"},
			{ID: 1, Start: 150, End: 300, Title: "Two"},
		}
		files := []*models.AudioFile{
			audioFile("/b/01.mp3", 150),
			audioFile("/b/02.mp3", 150),
		}
		files[0].EmbeddedChapters = shape
		files[1].EmbeddedChapters = shape
		chapters := Assemble(ctx, files, Options{})
		require.Len(t, chapters, 2)
		assert.Equal(t, "One", chapters[0].Title)
		assert.Equal(t, "Two", chapters[1].Title)
		assertContiguous(t, chapters, 300)
	})

	t.Run("differing embedded chapters concatenate with offsets", func(t *testing.T) {
		files := []*models.AudioFile{
			audioFile("/b/01.mp3", 200),
			audioFile("/b/02.mp3", 100),
		}
		files[0].EmbeddedChapters = models.ChapterList{
			{ID: 0, Start: 0, End: 120, Title: "One"},
			{ID: 1, Start: 120, End: 200, Title: "Two"},
		}
		files[1].EmbeddedChapters = models.ChapterList{
			{ID: 0, Start: 0, End: 100, Title: "Three"},
		}
		chapters := Assemble(ctx, files, Options{})
		require.Len(t, chapters, 3)
		assert.Equal(t, []string{"One", "Two", "Three"}, []string{chapters[0].Title, chapters[1].Title, chapters[2].Title})
		assert.Equal(t, 120.0, chapters[1].Start)
		assert.Equal(t, 200.0, chapters[2].Start)
		assertContiguous(t, chapters, 300)
	})

	t.Run("overdrive markers build the timeline when preferred", func(t *testing.T) {
		files := []*models.AudioFile{
			audioFile("/b/Part01.mp3", 600),
			audioFile("/b/Part02.mp3", 400),
		}
		files[0].MetaTags.OverdriveMediaMarker = markersXML(
			[2]string{"Chapter 1", "0:00.000"},
			[2]string{"Chapter 2", "5:30.000"},
		)
		files[1].MetaTags.OverdriveMediaMarker = markersXML(
			[2]string{"Chapter 3", "0:00.000"},
			[2]string{"Chapter 3 (03:45)", "3:45.000"}, // subchapter noise
		)
		chapters := Assemble(ctx, files, Options{PreferOverdriveMarkers: true})
		require.Len(t, chapters, 3)
		assert.Equal(t, "Chapter 1", chapters[0].Title)
		assert.Equal(t, 330.0, chapters[1].Start)
		assert.Equal(t, "Chapter 3", chapters[2].Title)
		assert.Equal(t, 600.0, chapters[2].Start)
		assertContiguous(t, chapters, 1000)
	})

	t.Run("missing marker on one file abandons the overdrive path", func(t *testing.T) {
		files := []*models.AudioFile{
			audioFile("/b/Part01.mp3", 100),
			audioFile("/b/Part02.mp3", 100),
		}
		files[0].MetaTags.OverdriveMediaMarker = markersXML([2]string{"Chapter 1", "0:00.000"})
		chapters := Assemble(ctx, files, Options{PreferOverdriveMarkers: true})
		require.Len(t, chapters, 2)
		assert.Equal(t, "Part01", chapters[0].Title)
		assertContiguous(t, chapters, 200)
	})

	t.Run("malformed marker xml falls back", func(t *testing.T) {
		files := []*models.AudioFile{
			audioFile("/b/Part01.mp3", 100),
			audioFile("/b/Part02.mp3", 100),
		}
		files[0].MetaTags.OverdriveMediaMarker = "<Markers><Marker>"
		files[1].MetaTags.OverdriveMediaMarker = "<Markers><Marker>"
		chapters := Assemble(ctx, files, Options{PreferOverdriveMarkers: true})
		require.Len(t, chapters, 2)
		assertContiguous(t, chapters, 200)
	})
}

func TestParseMarkerTime(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		wantErr  bool
	}{
		{input: "0:00.000", expected: 0},
		{input: "15:51.000", expected: 951},
		{input: "75:00.500", expected: 4500.5},
		{input: "1:02:03.000", expected: 3723},
		{input: "42", wantErr: true},
		{input: "a:b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseMarkerTime(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 0.001)
		})
	}
}
