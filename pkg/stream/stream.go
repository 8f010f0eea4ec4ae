// Package stream manages transcode sessions. A Stream is one running HLS
// segmenter writing into the session's directory under the streams dir; the
// playback manager treats it as a black box with a playlist, a close, and a
// closed signal.
package stream

import (
	"context"

	"github.com/kikubooks/kiku/pkg/models"
)

// Stream is one live transcode session.
type Stream interface {
	// PlaylistPath is the on-disk path of the HLS playlist being written.
	PlaylistPath() string
	// Close stops the transcode process and removes the session directory.
	// Safe to call more than once.
	Close() error
	// Closed is closed when the transcode process exits, whether it finished,
	// failed, or was stopped. Consumers use it to detach their handle.
	Closed() <-chan struct{}
}

// StartRequest describes the transcode to begin.
type StartRequest struct {
	// SessionID names the output directory under the streams dir.
	SessionID string
	// Tracks is the ordered track list to stitch into one timeline.
	Tracks []models.AudioTrack
	// FilePaths maps audio file ids to their on-disk paths.
	FilePaths map[int]string
	// StartTimeSeconds is the seek offset into the whole timeline.
	StartTimeSeconds float64
}

// Starter begins transcode sessions.
type Starter interface {
	Start(ctx context.Context, req StartRequest) (Stream, error)
}
