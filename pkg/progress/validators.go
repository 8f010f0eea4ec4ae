package progress

// RetrieveProgressQuery represents the query parameters for retrieving
// progress for one item.
type RetrieveProgressQuery struct {
	EpisodeID *int `query:"episode_id" json:"episode_id,omitempty"`
}

// UpdateProgressPayload represents the request body for a manual progress
// update (marking items finished, hiding them, or scrubbing the position).
type UpdateProgressPayload struct {
	EpisodeID                 *int     `json:"episode_id,omitempty"`
	CurrentTimeSeconds        *float64 `json:"current_time_seconds,omitempty" validate:"omitempty,gte=0"`
	Progress                  *float64 `json:"progress,omitempty" validate:"omitempty,gte=0,lte=1"`
	IsFinished                *bool    `json:"is_finished,omitempty"`
	HideFromContinueListening *bool    `json:"hide_from_continue_listening,omitempty"`
}
