// Package testgen generates real audio fixture files for tests that need to
// exercise probing end to end. Generation shells out to ffmpeg, so callers
// should skip when it isn't installed.
package testgen

import (
	"os/exec"
	"testing"
)

// M4BChapter is one chapter to embed in a generated M4B file.
type M4BChapter struct {
	Start float64
	Title string
}

// M4BOptions configures the generated M4B file.
type M4BOptions struct {
	Title    string
	Artist   string // Author
	Album    string
	Track    string // "3" or "3/12"
	Disc     string
	Duration float64 // Duration in seconds
	Chapters []M4BChapter
}

// FFmpegAvailable checks if ffmpeg is available on the system.
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// SkipIfNoFFmpeg skips the test if ffmpeg is not available.
func SkipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if !FFmpegAvailable() {
		t.Skip("ffmpeg not available, skipping audio fixture test")
	}
}
