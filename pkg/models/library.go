package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	MediaTypeBook    = "book"
	MediaTypePodcast = "podcast"
)

type Library struct {
	bun.BaseModel `bun:"table:libraries,alias:l"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `bun:",nullzero" json:"name"`
	MediaType string    `bun:",nullzero,default:'book'" json:"media_type"`

	// Scan-time preferences.
	PreferAudioMetadata         bool `json:"prefer_audio_metadata"`
	PreferOverdriveMediaMarkers bool `json:"prefer_overdrive_media_markers"`

	// Finish-detection thresholds applied by the progress engine. The time
	// threshold is in seconds of remaining audio; the percent threshold is a
	// fraction of total duration. Either may be null to leave it unset.
	MarkAsFinishedTimeRemaining   *float64 `json:"mark_as_finished_time_remaining"`
	MarkAsFinishedPercentComplete *float64 `json:"mark_as_finished_percent_complete"`

	LibraryPaths []*LibraryPath `bun:"rel:has-many,join:id=library_id" json:"library_paths,omitempty"`
	DeletedAt    *time.Time     `json:"deleted_at,omitempty"`
}

type LibraryPath struct {
	bun.BaseModel `bun:"table:library_paths,alias:lp"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LibraryID int       `bun:",nullzero" json:"library_id"`
	Filepath  string    `bun:",nullzero" json:"filepath"`
}
