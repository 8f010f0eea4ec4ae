package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Book is a single library item: an audiobook, or a podcast whose episodes
// each carry their own audio file.
type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LibraryID int       `bun:",nullzero" json:"library_id"`
	Library   *Library  `bun:"rel:belongs-to,join:library_id=id" json:"library,omitempty"`
	MediaType string    `bun:",nullzero,default:'book'" json:"media_type"`
	Filepath  string    `bun:",nullzero" json:"filepath"`
	Title     string    `bun:",nullzero" json:"title"`
	Author    *string   `json:"author,omitempty"`
	Series    *string   `json:"series,omitempty"`

	Chapters   ChapterList  `bun:",nullzero" json:"chapters,omitempty"`
	AudioFiles []*AudioFile `bun:"rel:has-many,join:id=book_id" json:"audio_files,omitempty"`
	Episodes   []*Episode   `bun:"rel:has-many,join:id=book_id" json:"episodes,omitempty"`
}

// AudioTrack is a computed playable unit: one included audio file plus its
// start offset within the whole book. Tracks are derived, never stored.
type AudioTrack struct {
	Index           int     `json:"index"`
	StartOffset     float64 `json:"start_offset"`
	DurationSeconds float64 `json:"duration_seconds"`
	Title           string  `json:"title"`
	ContentURL      string  `json:"content_url"`
	MimeType        string  `json:"mime_type"`
	AudioFileID     int     `json:"audio_file_id"`
}

// IncludedAudioFiles returns the book's audio files that are part of the
// track list, in play order.
func (b *Book) IncludedAudioFiles() []*AudioFile {
	included := make([]*AudioFile, 0, len(b.AudioFiles))
	for _, af := range b.AudioFiles {
		if af.Exclude || af.Index < 1 {
			continue
		}
		included = append(included, af)
	}
	return included
}

// Tracks computes the ordered track list with cumulative start offsets.
func (b *Book) Tracks() []AudioTrack {
	included := b.IncludedAudioFiles()
	tracks := make([]AudioTrack, 0, len(included))
	startOffset := 0.0
	for _, af := range included {
		tracks = append(tracks, AudioTrack{
			Index:           af.Index,
			StartOffset:     startOffset,
			DurationSeconds: af.DurationSeconds,
			Title:           af.Filename(),
			MimeType:        af.MimeType,
			AudioFileID:     af.ID,
		})
		startOffset += af.DurationSeconds
	}
	return tracks
}

// Duration is the total duration of the included audio files in seconds.
func (b *Book) Duration() float64 {
	total := 0.0
	for _, af := range b.IncludedAudioFiles() {
		total += af.DurationSeconds
	}
	return total
}

// FindFileWithIno returns the audio file matching the given inode, if any.
func (b *Book) FindFileWithIno(ino string) *AudioFile {
	for _, af := range b.AudioFiles {
		if af.Ino == ino {
			return af
		}
	}
	return nil
}

// Episode is a single podcast episode. Its playable audio is the one audio
// file row pointing at it.
type Episode struct {
	bun.BaseModel `bun:"table:episodes,alias:e"`

	ID          int        `bun:",pk,nullzero" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	BookID      int        `bun:",nullzero" json:"book_id"`
	Title       string     `bun:",nullzero" json:"title"`
	Index       int        `bun:",nullzero" json:"index"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	AudioFile *AudioFile `bun:"rel:has-one,join:id=episode_id" json:"audio_file,omitempty"`
}

// Tracks computes the single-track list for the episode.
func (e *Episode) Tracks() []AudioTrack {
	if e.AudioFile == nil {
		return nil
	}
	af := e.AudioFile
	return []AudioTrack{{
		Index:           1,
		StartOffset:     0,
		DurationSeconds: af.DurationSeconds,
		Title:           af.Filename(),
		MimeType:        af.MimeType,
		AudioFileID:     af.ID,
	}}
}

// Duration is the duration of the episode's audio file in seconds.
func (e *Episode) Duration() float64 {
	if e.AudioFile == nil {
		return 0
	}
	return e.AudioFile.DurationSeconds
}
