// Package probe extracts duration, codec, tags, and embedded chapters from
// audio files. The default prober shells out to ffprobe, with a native fast
// path for MPEG-4 audiobooks.
package probe

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kikubooks/kiku/pkg/models"
)

// MediaInfo is everything the scanner needs to know about one audio file.
type MediaInfo struct {
	DurationSeconds float64
	BitrateBps      int
	Codec           string
	Channels        int
	SampleRate      int
	SizeBytes       int64
	Tags            models.AudioMetaTags
	Chapters        models.ChapterList
}

// Prober probes a single media file. Implementations must be safe for
// concurrent use; the scanner fans probes out across a worker pool.
type Prober interface {
	Probe(ctx context.Context, path string) (*MediaInfo, error)
}

// prober routes .m4b/.m4a files to the native MP4 reader and everything else
// to ffprobe. A failed fast path falls back to ffprobe rather than erroring.
type prober struct {
	ffprobe *FFProbe
}

// New returns the default Prober.
func New() Prober {
	return &prober{ffprobe: NewFFProbe("")}
}

func (p *prober) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m4b", ".m4a":
		info, err := probeMP4(path)
		if err == nil {
			return info, nil
		}
	}
	return p.ffprobe.Probe(ctx, path)
}

// ParseNumberPair parses tag values like "3" or "3/12", returning the first
// number. Track and disc tags commonly carry the total after a slash.
func ParseNumberPair(value string) *int {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if i := strings.IndexByte(value, '/'); i >= 0 {
		value = value[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return nil
	}
	return &n
}
