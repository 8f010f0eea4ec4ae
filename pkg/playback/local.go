package playback

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/kikubooks/kiku/pkg/errcodes"
	"github.com/kikubooks/kiku/pkg/models"
	"github.com/kikubooks/kiku/pkg/progress"
	"github.com/kikubooks/kiku/pkg/version"
)

// LocalSessionPayload is a session recorded entirely on the client while
// offline, synced back in one shot. The client owns the id and the
// timestamps; its UpdatedAt drives the last-write-wins check so a long-idle
// device can't clobber newer progress.
type LocalSessionPayload struct {
	ID                   string    `json:"id" validate:"required"`
	BookID               int       `json:"book_id" validate:"required"`
	EpisodeID            *int      `json:"episode_id"`
	MediaPlayer          string    `json:"media_player"`
	DurationSeconds      float64   `json:"duration_seconds"`
	StartTimeSeconds     float64   `json:"start_time_seconds"`
	CurrentTimeSeconds   float64   `json:"current_time_seconds"`
	TimeListeningSeconds float64   `json:"time_listening_seconds"`
	StartedAt            time.Time `json:"started_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// SyncLocal upserts the client-recorded session row and feeds the progress
// engine with the client's own timestamp.
func (m *Manager) SyncLocal(ctx context.Context, user *models.User, device *models.Device, payload LocalSessionPayload) (*models.MediaProgress, error) {
	m.mu.Lock()
	open := m.byID[payload.ID]
	m.mu.Unlock()
	if open != nil {
		return nil, errcodes.Conflict("Session id belongs to an open session.")
	}

	book, episode, err := m.resolveItem(ctx, payload.BookID, payload.EpisodeID)
	if err != nil {
		return nil, err
	}

	duration := payload.DurationSeconds
	if duration <= 0 {
		_, duration, _ = itemTracks(book, episode)
	}

	startedAt := payload.StartedAt
	if startedAt.IsZero() {
		startedAt = payload.UpdatedAt
	}

	session := &models.PlaybackSession{
		ID:                   payload.ID,
		CreatedAt:            startedAt,
		UpdatedAt:            payload.UpdatedAt,
		UserID:               user.ID,
		DeviceID:             device.ID,
		BookID:               payload.BookID,
		EpisodeID:            payload.EpisodeID,
		MediaType:            book.MediaType,
		DisplayTitle:         book.Title,
		DisplayAuthor:        displayAuthor(book),
		MediaPlayer:          payload.MediaPlayer,
		PlayMethod:           models.PlayMethodDirectPlay,
		ServerVersion:        version.Version,
		DurationSeconds:      duration,
		StartTimeSeconds:     payload.StartTimeSeconds,
		CurrentTimeSeconds:   payload.CurrentTimeSeconds,
		TimeListeningSeconds: payload.TimeListeningSeconds,
		Date:                 startedAt,
	}
	if episode != nil {
		session.DisplayTitle = episode.Title
	}

	_, err = m.db.NewInsert().
		Model(session).
		On("CONFLICT (id) DO UPDATE").
		Set("updated_at = EXCLUDED.updated_at").
		Set("current_time_seconds = EXCLUDED.current_time_seconds").
		Set("time_listening_seconds = EXCLUDED.time_listening_seconds").
		Set("duration_seconds = EXCLUDED.duration_seconds").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	lastUpdate := payload.UpdatedAt
	if lastUpdate.IsZero() {
		lastUpdate = time.Now()
	}
	fraction := 0.0
	if duration > 0 {
		fraction = payload.CurrentTimeSeconds / duration
	}

	record, _, err := m.progress.ApplyUpdate(ctx, user.ID, progress.Update{
		BookID:             payload.BookID,
		EpisodeID:          payload.EpisodeID,
		DurationSeconds:    &duration,
		CurrentTimeSeconds: &payload.CurrentTimeSeconds,
		Progress:           &fraction,
		LastUpdate:         lastUpdate,
	}, progress.PolicyForLibrary(book.Library), payload.ID)
	if err != nil {
		return nil, err
	}

	return record, nil
}
