package libraries

type CreateLibraryPayload struct {
	Name                          string   `json:"name" validate:"required,max=100"`
	MediaType                     string   `json:"media_type" validate:"required,oneof=book podcast"`
	PreferAudioMetadata           *bool    `json:"prefer_audio_metadata,omitempty"`
	PreferOverdriveMediaMarkers   *bool    `json:"prefer_overdrive_media_markers,omitempty"`
	MarkAsFinishedTimeRemaining   *float64 `json:"mark_as_finished_time_remaining,omitempty" validate:"omitempty,gt=0"`
	MarkAsFinishedPercentComplete *float64 `json:"mark_as_finished_percent_complete,omitempty" validate:"omitempty,gt=0,lte=100"`
	LibraryPaths                  []string `json:"library_paths" validate:"required,min=1,max=50,dive,required"`
}

type ListLibrariesQuery struct {
	Limit   int  `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=100"`
	Offset  int  `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Deleted bool `query:"deleted" json:"deleted,omitempty"`
}

type UpdateLibraryPayload struct {
	Name                          *string  `json:"name,omitempty" validate:"omitempty,max=100"`
	PreferAudioMetadata           *bool    `json:"prefer_audio_metadata,omitempty"`
	PreferOverdriveMediaMarkers   *bool    `json:"prefer_overdrive_media_markers,omitempty"`
	MarkAsFinishedTimeRemaining   *float64 `json:"mark_as_finished_time_remaining,omitempty" validate:"omitempty,gt=0"`
	MarkAsFinishedPercentComplete *float64 `json:"mark_as_finished_percent_complete,omitempty" validate:"omitempty,gt=0,lte=100"`
	ClearMarkAsFinished           bool     `json:"clear_mark_as_finished,omitempty"`
	LibraryPaths                  []string `json:"library_paths,omitempty" validate:"omitempty,min=1,max=50,dive,required"`
	Deleted                       *bool    `json:"deleted,omitempty" validate:"omitempty"`
}
