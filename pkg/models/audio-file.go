package models

import (
	"database/sql/driver"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

// AudioMetaTags are the metadata tags read from an audio file during probing.
// Stored as a JSON column on the audio file row.
type AudioMetaTags struct {
	Title                string `json:"title,omitempty"`
	Artist               string `json:"artist,omitempty"`
	Album                string `json:"album,omitempty"`
	TrackNumber          string `json:"track_number,omitempty"` // "3" or "3/12"
	DiscNumber           string `json:"disc_number,omitempty"`  // "1" or "1/2"
	OverdriveMediaMarker string `json:"overdrive_media_marker,omitempty"`
}

func (t AudioMetaTags) Value() (driver.Value, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return string(data), nil
}

func (t *AudioMetaTags) Scan(src interface{}) error {
	if src == nil {
		*t = AudioMetaTags{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("unsupported meta tags column type %T", src)
	}
	if len(data) == 0 {
		*t = AudioMetaTags{}
		return nil
	}
	return errors.WithStack(json.Unmarshal(data, t))
}

type AudioFile struct {
	bun.BaseModel `bun:"table:audio_files,alias:af"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LibraryID int       `bun:",nullzero" json:"library_id"`
	BookID    int       `bun:",nullzero" json:"book_id"`
	EpisodeID *int      `json:"episode_id,omitempty"`

	// Ino is the filesystem inode, used to match files across rescans even
	// when they are renamed.
	Ino      string `bun:",nullzero" json:"ino"`
	Filepath string `bun:",nullzero" json:"filepath"`

	// Index is the 1-based play order assigned by the track order resolver,
	// or -1 when the file is excluded from the track list.
	Index int `bun:",nullzero" json:"index"`

	DurationSeconds float64 `json:"duration_seconds"`
	BitrateBps      int     `json:"bitrate_bps"`
	Codec           string  `bun:",nullzero" json:"codec"`
	MimeType        string  `bun:",nullzero" json:"mime_type"`
	SizeBytes       int64   `json:"size_bytes"`

	TrackNumFromMeta     *int `json:"track_num_from_meta"`
	DiscNumFromMeta      *int `json:"disc_num_from_meta"`
	TrackNumFromFilename *int `json:"track_num_from_filename"`
	DiscNumFromFilename  *int `json:"disc_num_from_filename"`

	Exclude          bool    `json:"exclude"`
	ManuallyVerified bool    `json:"manually_verified"`
	Error            *string `json:"error,omitempty"`

	MetaTags         AudioMetaTags `bun:",nullzero" json:"meta_tags"`
	EmbeddedChapters ChapterList   `bun:",nullzero" json:"embedded_chapters,omitempty"`
}

// Filename returns the base filename without its extension.
func (af *AudioFile) Filename() string {
	base := filepath.Base(af.Filepath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// TrackNum returns the track number from the given source key.
func (af *AudioFile) TrackNum(fromFilename bool) *int {
	if fromFilename {
		return af.TrackNumFromFilename
	}
	return af.TrackNumFromMeta
}

// DiscNum returns the disc number from the given source key.
func (af *AudioFile) DiscNum(fromFilename bool) *int {
	if fromFilename {
		return af.DiscNumFromFilename
	}
	return af.DiscNumFromMeta
}
