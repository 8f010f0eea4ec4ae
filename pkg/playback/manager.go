// Package playback owns the set of open playback sessions. Sessions live in
// memory, keyed by id and by (user, device); at most one session is open per
// device, and replacing it is atomic with closing the old one. Rows are only
// written to the database once a session has accumulated listening time.
package playback

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"

	"github.com/kikubooks/kiku/pkg/config"
	"github.com/kikubooks/kiku/pkg/errcodes"
	"github.com/kikubooks/kiku/pkg/events"
	"github.com/kikubooks/kiku/pkg/models"
	"github.com/kikubooks/kiku/pkg/progress"
	"github.com/kikubooks/kiku/pkg/stream"
	"github.com/kikubooks/kiku/pkg/version"
)

const sessionIDPrefix = "play_"

// ErrItemNotFound is returned by Sync when the session's book or library can
// no longer be resolved. The session is left open; the caller surfaces this
// as a failure code.
var ErrItemNotFound = errors.New("library item for session not found")

// Session is one open playback session: the durable record plus the live
// state that never hits the database.
type Session struct {
	*models.PlaybackSession

	// Tracks is the ordered track list the client plays from. For direct
	// play the content URLs point at the raw files; for transcode the client
	// plays the HLS playlist instead.
	Tracks       []models.AudioTrack `json:"tracks"`
	PlaylistPath string              `json:"playlist_path,omitempty"`

	stream       stream.Stream
	persisted    bool
	lastActivity time.Time
}

type deviceKey struct {
	userID   int
	deviceID string
}

// Manager owns all open sessions. One mutex guards both indexes and all
// mutable session state; every lifecycle operation runs start to finish
// under it, so a superseding start can never race its predecessor's close.
type Manager struct {
	db          *bun.DB
	progress    *progress.Service
	broadcaster events.Broadcaster
	starter     stream.Starter
	streamsDir  string
	staleAge    time.Duration

	mu       sync.Mutex
	byID     map[string]*Session
	byDevice map[deviceKey]*Session
}

func NewManager(db *bun.DB, progressSvc *progress.Service, broadcaster events.Broadcaster, starter stream.Starter, cfg *config.Config) *Manager {
	return &Manager{
		db:          db,
		progress:    progressSvc,
		broadcaster: broadcaster,
		starter:     starter,
		streamsDir:  cfg.StreamsDir(),
		staleAge:    cfg.SessionStaleAge,
		byID:        map[string]*Session{},
		byDevice:    map[deviceKey]*Session{},
	}
}

// StartOptions carries the client's playback capabilities and preferences.
type StartOptions struct {
	EpisodeID          *int
	MediaPlayer        string
	ForceDirectPlay    bool
	ForceTranscode     bool
	SupportedMimeTypes []string
}

// Start opens a new session for the user on the given device, closing any
// session the device already has open first. The start position comes from
// the user's existing progress; a finished item restarts from the beginning.
func (m *Manager) Start(ctx context.Context, user *models.User, device *models.Device, bookID int, opts StartOptions) (*Session, error) {
	book, episode, err := m.resolveItem(ctx, bookID, opts.EpisodeID)
	if err != nil {
		return nil, err
	}

	tracks, duration, displayTitle := itemTracks(book, episode)

	record, err := m.progress.Retrieve(ctx, user.ID, bookID, opts.EpisodeID)
	if err != nil {
		return nil, err
	}
	startTime := 0.0
	if record != nil && !record.IsFinished {
		startTime = record.CurrentTimeSeconds
	}

	playMethod := models.PlayMethodTranscode
	if opts.ForceDirectPlay || (!opts.ForceTranscode && mimeTypesCover(tracks, opts.SupportedMimeTypes)) {
		playMethod = models.PlayMethodDirectPlay
	}

	now := time.Now()
	session := &Session{
		PlaybackSession: &models.PlaybackSession{
			ID:                 newSessionID(),
			UserID:             user.ID,
			DeviceID:           device.ID,
			BookID:             bookID,
			EpisodeID:          opts.EpisodeID,
			MediaType:          book.MediaType,
			DisplayTitle:       displayTitle,
			DisplayAuthor:      displayAuthor(book),
			MediaPlayer:        opts.MediaPlayer,
			PlayMethod:         playMethod,
			ServerVersion:      version.Version,
			DurationSeconds:    duration,
			StartTimeSeconds:   startTime,
			CurrentTimeSeconds: startTime,
			Date:               now,
		},
		Tracks:       tracks,
		lastActivity: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := deviceKey{userID: user.ID, deviceID: device.ID}
	if existing := m.byDevice[key]; existing != nil {
		m.closeLocked(ctx, existing, nil)
	}

	if playMethod == models.PlayMethodTranscode {
		st, err := m.starter.Start(ctx, stream.StartRequest{
			SessionID:        session.ID,
			Tracks:           tracks,
			FilePaths:        trackFilePaths(book, episode),
			StartTimeSeconds: startTime,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to start transcode")
		}
		session.stream = st
		session.PlaylistPath = st.PlaylistPath()
		go m.watchStream(session, st)
	}

	m.byID[session.ID] = session
	m.byDevice[key] = session

	m.broadcaster.EmitToAdmins(events.SessionStarted, session)

	return session, nil
}

// SyncPayload is the per-sync report from the client. Duration is optional;
// when omitted the session's known duration is used.
type SyncPayload struct {
	CurrentTime  float64  `json:"current_time"`
	TimeListened float64  `json:"time_listened"`
	Duration     *float64 `json:"duration"`
}

// Sync records the client's position, accumulates listening time, and feeds
// the progress engine. Returns ErrItemNotFound, leaving the session open,
// when the book or its library has disappeared since the session started.
func (m *Manager) Sync(ctx context.Context, userID int, sessionID string, payload SyncPayload) (*models.MediaProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := m.byID[sessionID]
	if session == nil || session.UserID != userID {
		return nil, errcodes.NotFound("Playback session")
	}

	return m.syncLocked(ctx, session, payload)
}

func (m *Manager) syncLocked(ctx context.Context, session *Session, payload SyncPayload) (*models.MediaProgress, error) {
	book, _, err := m.resolveItem(ctx, session.BookID, session.EpisodeID)
	if err != nil {
		var apiErr *errcodes.Error
		if errors.As(err, &apiErr) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	now := time.Now()
	session.CurrentTimeSeconds = payload.CurrentTime
	session.TimeListeningSeconds += payload.TimeListened
	if payload.Duration != nil && *payload.Duration > 0 {
		session.DurationSeconds = *payload.Duration
	}
	session.lastActivity = now

	duration := session.DurationSeconds
	update := progress.Update{
		BookID:             session.BookID,
		EpisodeID:          session.EpisodeID,
		DurationSeconds:    &duration,
		CurrentTimeSeconds: &payload.CurrentTime,
		LastUpdate:         now,
	}
	if duration > 0 {
		fraction := payload.CurrentTime / duration
		update.Progress = &fraction
	}

	record, _, err := m.progress.ApplyUpdate(ctx, session.UserID, update, progress.PolicyForLibrary(book.Library), session.ID)
	if err != nil {
		return nil, err
	}

	if err := m.saveLocked(ctx, session); err != nil {
		return nil, err
	}

	return record, nil
}

// saveLocked persists the session row once it has accumulated listening
// time: insert on the first save, update after.
func (m *Manager) saveLocked(ctx context.Context, session *Session) error {
	if session.TimeListeningSeconds <= 0 {
		return nil
	}

	now := time.Now()
	session.UpdatedAt = now
	if !session.persisted {
		session.CreatedAt = now
		_, err := m.db.NewInsert().Model(session.PlaybackSession).Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		session.persisted = true
		return nil
	}

	_, err := m.db.NewUpdate().Model(session.PlaybackSession).WherePK().Exec(ctx)
	return errors.WithStack(err)
}

// Close syncs (when syncData is present), persists, and removes the session,
// releasing any transcode stream.
func (m *Manager) Close(ctx context.Context, userID int, sessionID string, syncData *SyncPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := m.byID[sessionID]
	if session == nil || session.UserID != userID {
		return errcodes.NotFound("Playback session")
	}

	m.closeLocked(ctx, session, syncData)
	return nil
}

// closeLocked is the one removal path: best-effort final persistence, stream
// release, index removal, events. Never fails; a dying session must always
// come out of the maps.
func (m *Manager) closeLocked(ctx context.Context, session *Session, syncData *SyncPayload) {
	log := logger.FromContext(ctx)

	if syncData != nil {
		if _, err := m.syncLocked(ctx, session, *syncData); err != nil {
			log.Err(err).Data(logger.Data{"session_id": session.ID}).Warn("final sync on close failed")
		}
	} else if err := m.saveLocked(ctx, session); err != nil {
		log.Err(err).Data(logger.Data{"session_id": session.ID}).Warn("failed to persist session on close")
	}

	if session.stream != nil {
		st := session.stream
		session.stream = nil
		// Close blocks until the transcode process exits.
		go func() {
			if err := st.Close(); err != nil {
				log.Err(err).Data(logger.Data{"session_id": session.ID}).Warn("failed to close stream")
			}
		}()
	}

	delete(m.byID, session.ID)
	key := deviceKey{userID: session.UserID, deviceID: session.DeviceID}
	if m.byDevice[key] == session {
		delete(m.byDevice, key)
	}

	m.broadcaster.EmitToUser(session.UserID, events.SessionClosed, session)
	m.broadcaster.EmitToAdmins(events.OpenSessionsChanged, m.openSessionsLocked())
}

// CloseStaleOpenSessions closes every open session with no activity for the
// stale age (36h by default), persisting whatever was last recorded.
func (m *Manager) CloseStaleOpenSessions(ctx context.Context) {
	log := logger.FromContext(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.staleAge)
	for _, session := range m.byID {
		if session.lastActivity.Before(cutoff) {
			log.Data(logger.Data{
				"session_id":    session.ID,
				"user_id":       session.UserID,
				"last_activity": session.lastActivity,
			}).Info("closing stale playback session")
			m.closeLocked(ctx, session, nil)
		}
	}
}

// CloseAllSessions closes every open session, persisting whatever was last
// recorded. Called on graceful shutdown so listening time isn't lost.
func (m *Manager) CloseAllSessions(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, session := range m.byID {
		m.closeLocked(ctx, session, nil)
	}
}

// RemoveOrphanStreams deletes stream directories left behind by sessions
// that no longer exist, e.g. after an unclean shutdown. Run on startup.
func (m *Manager) RemoveOrphanStreams(ctx context.Context) {
	log := logger.FromContext(ctx)

	entries, err := os.ReadDir(m.streamsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Err(err).Warn("failed to read streams dir")
		}
		return
	}

	m.mu.Lock()
	live := make(map[string]struct{}, len(m.byID))
	for id := range m.byID {
		live[id] = struct{}{}
	}
	m.mu.Unlock()

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), sessionIDPrefix) {
			continue
		}
		if _, ok := live[entry.Name()]; ok {
			continue
		}
		log.Data(logger.Data{"dir": entry.Name()}).Info("removing orphan stream dir")
		if err := os.RemoveAll(m.streamsDir + "/" + entry.Name()); err != nil {
			log.Err(err).Data(logger.Data{"dir": entry.Name()}).Warn("failed to remove orphan stream dir")
		}
	}
}

// Run sweeps stale sessions on the given interval until the context ends.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CloseStaleOpenSessions(ctx)
		}
	}
}

// OpenSessions returns a snapshot of the currently open sessions.
func (m *Manager) OpenSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openSessionsLocked()
}

func (m *Manager) openSessionsLocked() []*Session {
	sessions := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		sessions = append(sessions, s)
	}
	return sessions
}

// watchStream detaches the session's stream handle once the transcode
// process exits. The session itself stays open; only the handle goes away.
func (m *Manager) watchStream(session *Session, st stream.Stream) {
	<-st.Closed()

	m.mu.Lock()
	defer m.mu.Unlock()
	if session.stream == st {
		session.stream = nil
	}
}

func (m *Manager) resolveItem(ctx context.Context, bookID int, episodeID *int) (*models.Book, *models.Episode, error) {
	book := &models.Book{}
	err := m.db.NewSelect().
		Model(book).
		Relation("Library").
		Relation("AudioFiles", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("af.index ASC")
		}).
		Where("b.id = ?", bookID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, errcodes.NotFound("Book")
		}
		return nil, nil, errors.WithStack(err)
	}
	if book.Library == nil {
		return nil, nil, errcodes.NotFound("Library")
	}

	if episodeID == nil {
		return book, nil, nil
	}

	episode := &models.Episode{}
	err = m.db.NewSelect().
		Model(episode).
		Relation("AudioFile").
		Where("e.id = ?", *episodeID).
		Where("e.book_id = ?", bookID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, errcodes.NotFound("Episode")
		}
		return nil, nil, errors.WithStack(err)
	}

	return book, episode, nil
}

func itemTracks(book *models.Book, episode *models.Episode) (tracks []models.AudioTrack, duration float64, displayTitle string) {
	if episode != nil {
		return episode.Tracks(), episode.Duration(), episode.Title
	}
	return book.Tracks(), book.Duration(), book.Title
}

func displayAuthor(book *models.Book) string {
	if book.Author == nil {
		return ""
	}
	return *book.Author
}

func trackFilePaths(book *models.Book, episode *models.Episode) map[int]string {
	paths := map[int]string{}
	if episode != nil {
		if episode.AudioFile != nil {
			paths[episode.AudioFile.ID] = episode.AudioFile.Filepath
		}
		return paths
	}
	for _, af := range book.IncludedAudioFiles() {
		paths[af.ID] = af.Filepath
	}
	return paths
}

// mimeTypesCover reports whether the client's declared mime types cover
// every track. An empty declaration covers nothing.
func mimeTypesCover(tracks []models.AudioTrack, supported []string) bool {
	if len(supported) == 0 || len(tracks) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(supported))
	for _, mt := range supported {
		set[strings.ToLower(mt)] = struct{}{}
	}
	for _, track := range tracks {
		if _, ok := set[strings.ToLower(track.MimeType)]; !ok {
			return false
		}
	}
	return true
}

func newSessionID() string {
	return sessionIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
