package progress

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"

	"github.com/kikubooks/kiku/pkg/events"
	"github.com/kikubooks/kiku/pkg/models"
)

type Service struct {
	db          *bun.DB
	broadcaster events.Broadcaster
}

func NewService(db *bun.DB, broadcaster events.Broadcaster) *Service {
	return &Service{db: db, broadcaster: broadcaster}
}

// UpdatePayload is the event payload sent to the owning user's clients after
// a successful merge. SessionID identifies the originating playback session
// so clients can deduplicate their own updates.
type UpdatePayload struct {
	SessionID string                `json:"session_id,omitempty"`
	Progress  *models.MediaProgress `json:"progress"`
}

// Retrieve loads the user's progress for one media item. Returns nil (not an
// error) when no progress exists yet.
func (svc *Service) Retrieve(ctx context.Context, userID, bookID int, episodeID *int) (*models.MediaProgress, error) {
	record := &models.MediaProgress{}
	q := svc.db.NewSelect().
		Model(record).
		Where("mp.user_id = ?", userID).
		Where("mp.book_id = ?", bookID)
	if episodeID != nil {
		q = q.Where("mp.episode_id = ?", *episodeID)
	} else {
		q = q.Where("mp.episode_id IS NULL")
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return record, nil
}

// List returns all progress records for a user, most recently updated first.
func (svc *Service) List(ctx context.Context, userID int) ([]*models.MediaProgress, error) {
	records := []*models.MediaProgress{}
	err := svc.db.NewSelect().
		Model(&records).
		Where("mp.user_id = ?", userID).
		Order("mp.last_update DESC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return records, nil
}

// ApplyUpdate runs the reconciliation and persists the result. A stale
// report is a silent no-op: the stored record is returned untouched and
// nothing is emitted. On success the merged record is broadcast to the
// owning user, tagged with the originating session id.
func (svc *Service) ApplyUpdate(ctx context.Context, userID int, update Update, policy FinishPolicy, sessionID string) (*models.MediaProgress, Outcome, error) {
	log := logger.FromContext(ctx)

	existing, err := svc.Retrieve(ctx, userID, update.BookID, update.EpisodeID)
	if err != nil {
		return nil, 0, err
	}

	record, outcome := Reconcile(existing, userID, update, policy)
	switch outcome {
	case OutcomeRejectedStale:
		log.Data(logger.Data{
			"user_id":     userID,
			"book_id":     update.BookID,
			"last_update": existing.LastUpdate,
			"incoming":    update.LastUpdate,
		}).Info("rejected stale progress update")
		return record, outcome, nil

	case OutcomeCreated:
		now := time.Now()
		record.CreatedAt = now
		record.UpdatedAt = now
		_, err = svc.db.NewInsert().Model(record).Returning("*").Exec(ctx)
		if err != nil {
			return nil, 0, errors.WithStack(err)
		}

	case OutcomeUpdated:
		record.UpdatedAt = time.Now()
		_, err = svc.db.NewUpdate().Model(record).WherePK().Exec(ctx)
		if err != nil {
			return nil, 0, errors.WithStack(err)
		}
	}

	svc.broadcaster.EmitToUser(userID, events.ProgressUpdated, UpdatePayload{
		SessionID: sessionID,
		Progress:  record,
	})

	return record, outcome, nil
}
