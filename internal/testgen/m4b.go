package testgen

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// GenerateM4B creates a valid M4B file at the specified path with the given
// options. The generated file contains a short sine-wave audio track, iTunes
// style metadata, and optionally embedded chapters.
func GenerateM4B(t *testing.T, dir, filename string, opts M4BOptions) string {
	t.Helper()
	SkipIfNoFFmpeg(t)

	path := filepath.Join(dir, filename)

	duration := opts.Duration
	if duration <= 0 {
		duration = 1.0
	}

	// ffmpeg is sensitive to option order: inputs first, then mapping, then
	// output options.
	args := []string{
		"-f", "lavfi",
		"-i", "sine=frequency=440:duration=" + strconv.FormatFloat(duration, 'f', 1, 64),
	}

	hasChapters := len(opts.Chapters) > 0
	if hasChapters {
		metadataPath := filepath.Join(dir, "ffmetadata.txt")
		if err := os.WriteFile(metadataPath, []byte(buildFFMetadata(opts.Chapters, duration)), 0o600); err != nil {
			t.Fatalf("failed to write ffmetadata file: %v", err)
		}
		defer os.Remove(metadataPath)

		args = append(args, "-i", metadataPath)
	}

	args = append(args, "-y")

	if opts.Title != "" {
		args = append(args, "-metadata", "title="+opts.Title)
	}
	if opts.Artist != "" {
		args = append(args, "-metadata", "artist="+opts.Artist)
	}
	if opts.Album != "" {
		args = append(args, "-metadata", "album="+opts.Album)
	}
	if opts.Track != "" {
		args = append(args, "-metadata", "track="+opts.Track)
	}
	if opts.Disc != "" {
		args = append(args, "-metadata", "disc="+opts.Disc)
	}

	if hasChapters {
		args = append(args, "-map", "0:a", "-map_metadata", "1")
	}

	args = append(args,
		"-c:a", "aac",
		"-b:a", "64k",
		path,
	)

	cmd := exec.CommandContext(t.Context(), "ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("ffmpeg failed: %v\nOutput: %s", err, output)
	}

	return path
}

// buildFFMetadata creates an ffmetadata format string with chapters.
// See https://ffmpeg.org/ffmpeg-formats.html#Metadata-1 for the format.
func buildFFMetadata(chapters []M4BChapter, totalDuration float64) string {
	var content strings.Builder
	content.WriteString(";FFMETADATA1\n")

	for i, ch := range chapters {
		end := totalDuration
		if i+1 < len(chapters) {
			end = chapters[i+1].Start
		}

		content.WriteString("[CHAPTER]\n")
		content.WriteString("TIMEBASE=1/1000000000\n")
		content.WriteString("START=")
		content.WriteString(strconv.FormatInt(int64(ch.Start*1e9), 10))
		content.WriteString("\n")
		content.WriteString("END=")
		content.WriteString(strconv.FormatInt(int64(end*1e9), 10))
		content.WriteString("\n")
		content.WriteString("title=")
		content.WriteString(ch.Title)
		content.WriteString("\n")
	}

	return content.String()
}
