package models

import (
	"time"

	"github.com/uptrace/bun"
)

// MediaProgress is one user's durable listening progress for one media item:
// a book, or a single podcast episode. There is at most one row per
// (user, book, episode) and it is updated by every progress sync.
type MediaProgress struct {
	bun.BaseModel `bun:"table:media_progress,alias:mp"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    int       `bun:",nullzero" json:"user_id"`
	BookID    int       `bun:",nullzero" json:"book_id"`
	EpisodeID *int      `json:"episode_id,omitempty"`

	DurationSeconds float64 `json:"duration_seconds"`
	// Progress is the fraction listened, 0 to 1. Clamped to 1 when finished.
	Progress float64 `json:"progress"`
	// CurrentTimeSeconds is retained even after a finish so that re-opening
	// the item keeps its last real position.
	CurrentTimeSeconds        float64 `json:"current_time_seconds"`
	IsFinished                bool    `json:"is_finished"`
	HideFromContinueListening bool    `json:"hide_from_continue_listening"`

	LastUpdate time.Time  `bun:",nullzero" json:"last_update"`
	StartedAt  time.Time  `bun:",nullzero" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// InProgress reports whether the item should show up in continue listening.
func (mp *MediaProgress) InProgress() bool {
	return !mp.IsFinished && mp.Progress > 0
}
