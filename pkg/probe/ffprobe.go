package probe

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"

	"github.com/kikubooks/kiku/pkg/models"
)

// FFProbe probes files by shelling out to the ffprobe binary.
type FFProbe struct {
	binPath string
}

// NewFFProbe returns an FFProbe using the given binary path, or "ffprobe"
// from PATH when empty.
func NewFFProbe(binPath string) *FFProbe {
	if binPath == "" {
		binPath = "ffprobe"
	}
	return &FFProbe{binPath: binPath}
}

func (p *FFProbe) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx, p.binPath,
		"-loglevel", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-show_chapters",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "ffprobe %q: %s", path, strings.TrimSpace(stderr.String()))
	}

	info, err := parseFFProbeOutput(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	if info.SizeBytes == 0 {
		if fi, err := os.Stat(path); err == nil {
			info.SizeBytes = fi.Size()
		}
	}
	return info, nil
}

// ffprobe's JSON output. Numeric fields come back as strings.
type ffprobeOutput struct {
	Format struct {
		Duration string            `json:"duration"`
		BitRate  string            `json:"bit_rate"`
		Size     string            `json:"size"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		BitRate    string `json:"bit_rate"`
		Channels   int    `json:"channels"`
		SampleRate string `json:"sample_rate"`
	} `json:"streams"`
	Chapters []struct {
		StartTime string            `json:"start_time"`
		EndTime   string            `json:"end_time"`
		Tags      map[string]string `json:"tags"`
	} `json:"chapters"`
}

func parseFFProbeOutput(data []byte) (*MediaInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.WithStack(err)
	}

	info := &MediaInfo{
		DurationSeconds: parseFloat(out.Format.Duration),
		BitrateBps:      int(parseFloat(out.Format.BitRate)),
		SizeBytes:       int64(parseFloat(out.Format.Size)),
	}

	foundAudio := false
	for _, stream := range out.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		foundAudio = true
		info.Codec = stream.CodecName
		info.Channels = stream.Channels
		info.SampleRate = int(parseFloat(stream.SampleRate))
		if rate := int(parseFloat(stream.BitRate)); rate > 0 {
			info.BitrateBps = rate
		}
		break
	}
	if !foundAudio {
		return nil, errors.New("no audio stream")
	}

	info.Tags = models.AudioMetaTags{
		Title:                grabTag(out.Format.Tags, "title"),
		Artist:               grabTag(out.Format.Tags, "artist", "album_artist"),
		Album:                grabTag(out.Format.Tags, "album"),
		TrackNumber:          grabTag(out.Format.Tags, "track", "trck", "trk"),
		DiscNumber:           grabTag(out.Format.Tags, "discnumber", "disc", "disk", "tpos"),
		OverdriveMediaMarker: grabTag(out.Format.Tags, "OverDrive MediaMarkers"),
	}

	for i, ch := range out.Chapters {
		info.Chapters = append(info.Chapters, models.Chapter{
			ID:    i,
			Start: parseFloat(ch.StartTime),
			End:   parseFloat(ch.EndTime),
			Title: grabTag(ch.Tags, "title"),
		})
	}

	return info, nil
}

// grabTag finds the first matching tag, case-insensitively. ffprobe preserves
// whatever casing the container used.
func grabTag(tags map[string]string, names ...string) string {
	for _, name := range names {
		for key, value := range tags {
			if strings.EqualFold(key, name) && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
