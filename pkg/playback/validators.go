package playback

import (
	"github.com/kikubooks/kiku/pkg/devices"
	"github.com/kikubooks/kiku/pkg/models"
)

// StartPayload is the request body for starting a session.
type StartPayload struct {
	BookID             int                       `json:"book_id" validate:"required"`
	EpisodeID          *int                      `json:"episode_id"`
	DeviceInfo         *devices.ClientDeviceInfo `json:"device_info"`
	MediaPlayer        string                    `json:"media_player"`
	ForceDirectPlay    bool                      `json:"force_direct_play"`
	ForceTranscode     bool                      `json:"force_transcode"`
	SupportedMimeTypes []string                  `json:"supported_mime_types"`
}

// SyncParams is the request body for syncing an open session.
type SyncParams struct {
	CurrentTime  float64  `json:"current_time" validate:"gte=0"`
	TimeListened float64  `json:"time_listened" validate:"gte=0"`
	Duration     *float64 `json:"duration"`
}

// ClosePayload optionally carries a final sync with the close.
type ClosePayload struct {
	SyncData *SyncParams `json:"sync_data"`
}

// LocalSyncPayload wraps the client-recorded session with its device info.
type LocalSyncPayload struct {
	Session    LocalSessionPayload       `json:"session" validate:"required"`
	DeviceInfo *devices.ClientDeviceInfo `json:"device_info"`
}

// SyncResponse is returned by sync and local sync.
type SyncResponse struct {
	Progress *models.MediaProgress `json:"progress"`
}

// OpenSessionsResponse is the admin view of currently open sessions.
type OpenSessionsResponse struct {
	Sessions []*Session `json:"sessions"`
}
