// Package progress merges incoming listening-progress reports into durable
// per-user per-media progress records. Reports arrive out of order from
// multiple devices (including offline sessions syncing back), so conflicts
// resolve by last-write-wins on the client's own timestamp.
package progress

import (
	"time"

	"github.com/kikubooks/kiku/pkg/models"
)

// Outcome says what Reconcile did with an incoming report.
type Outcome int

const (
	// OutcomeCreated means no prior record existed and one was created.
	OutcomeCreated Outcome = iota
	// OutcomeUpdated means the report won and the record was merged.
	OutcomeUpdated
	// OutcomeRejectedStale means the stored record is newer than the report.
	// Not an error: a stale offline device must not clobber newer progress.
	OutcomeRejectedStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeRejectedStale:
		return "rejected_stale"
	}
	return "unknown"
}

// minTimeRemainingSeconds is the absolute finish floor: with fewer than this
// many seconds left, the item counts as finished no matter what the library
// thresholds say.
const minTimeRemainingSeconds = 5.0

// FinishPolicy holds the library-configurable finish thresholds. When both
// are set, the more permissive wins: a finish is detected if either
// threshold is met. The absolute 5-second rule always applies on top.
type FinishPolicy struct {
	// TimeRemainingSeconds marks the item finished once less than this many
	// seconds remain.
	TimeRemainingSeconds *float64
	// PercentComplete marks the item finished once progress reaches this
	// percentage (e.g. 95).
	PercentComplete *float64
}

// PolicyForLibrary builds the finish policy from a library's settings. A nil
// library yields the default policy.
func PolicyForLibrary(library *models.Library) FinishPolicy {
	if library == nil {
		return FinishPolicy{}
	}
	return FinishPolicy{
		TimeRemainingSeconds: library.MarkAsFinishedTimeRemaining,
		PercentComplete:      library.MarkAsFinishedPercentComplete,
	}
}

// isFinished applies the finish-detection heuristics.
func (p FinishPolicy) isFinished(duration, currentTime, progress float64) bool {
	if progress >= 1 {
		return true
	}
	if duration <= 0 {
		return false
	}
	remaining := duration - currentTime
	if remaining <= minTimeRemainingSeconds {
		return true
	}
	if p.TimeRemainingSeconds != nil && remaining < *p.TimeRemainingSeconds {
		return true
	}
	if p.PercentComplete != nil && progress*100 >= *p.PercentComplete {
		return true
	}
	return false
}

// Update is one incoming progress report. Only non-nil fields change the
// stored record; LastUpdate is the client's own clock and drives the
// last-write-wins check.
type Update struct {
	BookID    int  `json:"book_id"`
	EpisodeID *int `json:"episode_id"`

	DurationSeconds           *float64 `json:"duration_seconds"`
	CurrentTimeSeconds        *float64 `json:"current_time_seconds"`
	Progress                  *float64 `json:"progress"`
	IsFinished                *bool    `json:"is_finished"`
	HideFromContinueListening *bool    `json:"hide_from_continue_listening"`

	LastUpdate time.Time  `json:"last_update"`
	FinishedAt *time.Time `json:"finished_at"`
}

// Reconcile merges an incoming report into the existing record. It never
// mutates existing; the returned record is a fresh value. With no existing
// record the report is treated as authoritative and a new record is built.
func Reconcile(existing *models.MediaProgress, userID int, update Update, policy FinishPolicy) (*models.MediaProgress, Outcome) {
	now := time.Now()
	lastUpdate := update.LastUpdate
	if lastUpdate.IsZero() {
		lastUpdate = now
	}

	if existing == nil {
		return createFromUpdate(userID, update, policy, lastUpdate, now), OutcomeCreated
	}

	// The critical last-write-wins rule: a strictly newer stored record
	// rejects the incoming report outright.
	if existing.LastUpdate.After(lastUpdate) {
		return existing, OutcomeRejectedStale
	}

	merged := *existing

	if update.DurationSeconds != nil && *update.DurationSeconds > 0 {
		merged.DurationSeconds = *update.DurationSeconds
	}
	if update.CurrentTimeSeconds != nil {
		merged.CurrentTimeSeconds = *update.CurrentTimeSeconds
	}
	if update.Progress != nil {
		merged.Progress = clampProgress(*update.Progress)
	}

	if update.IsFinished != nil && *update.IsFinished != merged.IsFinished {
		if *update.IsFinished {
			merged.IsFinished = true
			merged.Progress = 1
			if merged.FinishedAt == nil {
				merged.FinishedAt = finishedAt(update, now)
			}
		} else {
			// Explicitly marking unfinished restarts the item.
			merged.IsFinished = false
			merged.FinishedAt = nil
			merged.Progress = 0
			merged.CurrentTimeSeconds = 0
		}
	}

	applyFinishDetection(&merged, update, policy, now)

	if merged.StartedAt.IsZero() {
		merged.StartedAt = startedAt(&merged, now)
	}

	// Fresh activity makes the item visible in continue listening again,
	// unless the caller set the flag in this same update.
	if update.HideFromContinueListening != nil {
		merged.HideFromContinueListening = *update.HideFromContinueListening
	} else {
		merged.HideFromContinueListening = false
	}

	merged.LastUpdate = lastUpdate
	return &merged, OutcomeUpdated
}

func createFromUpdate(userID int, update Update, policy FinishPolicy, lastUpdate, now time.Time) *models.MediaProgress {
	record := &models.MediaProgress{
		UserID:    userID,
		BookID:    update.BookID,
		EpisodeID: update.EpisodeID,
	}
	if update.DurationSeconds != nil {
		record.DurationSeconds = *update.DurationSeconds
	}
	if update.CurrentTimeSeconds != nil {
		record.CurrentTimeSeconds = *update.CurrentTimeSeconds
	}
	if update.Progress != nil {
		record.Progress = clampProgress(*update.Progress)
	}
	if update.IsFinished != nil && *update.IsFinished {
		record.IsFinished = true
		record.Progress = 1
	}
	if update.HideFromContinueListening != nil {
		record.HideFromContinueListening = *update.HideFromContinueListening
	}

	applyFinishDetection(record, update, policy, now)

	record.StartedAt = startedAt(record, now)
	record.LastUpdate = lastUpdate
	return record
}

// applyFinishDetection recomputes isFinished from the policy, handling both
// transitions: into finished (clamp progress to 1, stamp finishedAt once)
// and out of it (clear finishedAt).
func applyFinishDetection(record *models.MediaProgress, update Update, policy FinishPolicy, now time.Time) {
	if policy.isFinished(record.DurationSeconds, record.CurrentTimeSeconds, record.Progress) {
		record.Progress = 1
		if !record.IsFinished || record.FinishedAt == nil {
			record.IsFinished = true
			record.FinishedAt = finishedAt(update, now)
		}
	} else if record.Progress < 1 && record.IsFinished {
		record.IsFinished = false
		record.FinishedAt = nil
	}
}

func finishedAt(update Update, now time.Time) *time.Time {
	if update.FinishedAt != nil {
		return update.FinishedAt
	}
	return &now
}

func startedAt(record *models.MediaProgress, now time.Time) time.Time {
	if record.FinishedAt != nil {
		return *record.FinishedAt
	}
	return now
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
