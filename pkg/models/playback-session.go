package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	PlayMethodDirectPlay = "direct_play"
	PlayMethodTranscode  = "transcode"
)

// PlaybackSession is the durable record of one playback attempt. The live
// session (track list, stream handle) is held in memory by the playback
// manager; a row is only written once the session has accumulated listening
// time.
type PlaybackSession struct {
	bun.BaseModel `bun:"table:playback_sessions,alias:ps"`

	ID        string    `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    int       `bun:",nullzero" json:"user_id"`
	DeviceID  string    `bun:",nullzero" json:"device_id"`
	BookID    int       `bun:",nullzero" json:"book_id"`
	EpisodeID *int      `json:"episode_id,omitempty"`
	MediaType string    `bun:",nullzero" json:"media_type"`

	DisplayTitle  string `bun:",nullzero" json:"display_title"`
	DisplayAuthor string `bun:",nullzero" json:"display_author,omitempty"`
	MediaPlayer   string `bun:",nullzero" json:"media_player"`
	PlayMethod    string `bun:",nullzero" json:"play_method"`
	ServerVersion string `bun:",nullzero" json:"server_version"`

	DurationSeconds float64 `json:"duration_seconds"`
	// StartTimeSeconds is the media position when the session was opened.
	StartTimeSeconds float64 `json:"start_time_seconds"`
	// CurrentTimeSeconds is the last synced position.
	CurrentTimeSeconds float64 `json:"current_time_seconds"`
	// TimeListeningSeconds accumulates across syncs and is what listening
	// stats are computed from.
	TimeListeningSeconds float64 `json:"time_listening_seconds"`

	Date time.Time `bun:",nullzero" json:"date"`
}
