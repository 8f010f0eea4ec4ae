// Package chapters builds a single book-wide chapter timeline from a set of
// ordered audio files. Chapters can come from OverDrive media markers,
// embedded per-file chapters, or be synthesized one per file.
package chapters

import (
	"context"

	"github.com/robinjoseph08/golib/logger"

	"github.com/kikubooks/kiku/pkg/models"
)

// Options control which chapter sources are preferred. Both flags come from
// the library's settings.
type Options struct {
	// PreferOverdriveMarkers uses the proprietary OverDrive marker tags when
	// every included file carries one.
	PreferOverdriveMarkers bool
	// PreferAudioMetadataTitle titles synthesized chapters from the file's
	// title tag instead of its filename.
	PreferAudioMetadataTitle bool
	// BookTitle filters out title tags that just repeat the book title.
	BookTitle string
}

// Assemble builds the chapter list for the given included audio files, which
// must already be in play order. The result is contiguous: each chapter ends
// where the next starts, and the last chapter ends at the sum of the file
// durations. A single file without embedded chapters yields no chapters.
func Assemble(ctx context.Context, files []*models.AudioFile, opts Options) models.ChapterList {
	if len(files) == 0 {
		return nil
	}
	log := logger.FromContext(ctx)

	if opts.PreferOverdriveMarkers && allHaveOverdriveMarkers(files) {
		chapters, err := assembleFromOverdriveMarkers(files)
		if err == nil {
			return chapters
		}
		log.Err(err).Warn("falling back from overdrive media markers")
	}

	if len(files[0].EmbeddedChapters) > 0 {
		if allShareChapterShape(files) {
			return copyFirstFileChapters(files)
		}
		return concatEmbeddedChapters(files)
	}

	if len(files) == 1 {
		return nil
	}

	return synthesizeFromFiles(files, opts)
}

func allHaveOverdriveMarkers(files []*models.AudioFile) bool {
	for _, af := range files {
		if af.MetaTags.OverdriveMediaMarker == "" {
			return false
		}
	}
	return true
}

// allShareChapterShape reports whether every file embeds the same chapter
// list (same count, same titles). Audiobooks authored as one file per
// chapter often repeat the master chapter list in every file.
func allShareChapterShape(files []*models.AudioFile) bool {
	if len(files) < 2 {
		return true
	}
	first := files[0].EmbeddedChapters
	for _, af := range files[1:] {
		if len(af.EmbeddedChapters) != len(first) {
			return false
		}
		for i, ch := range af.EmbeddedChapters {
			if ch.Title != first[i].Title {
				return false
			}
		}
	}
	return true
}

// copyFirstFileChapters treats the first file's embedded chapters as the
// book-wide list, pinning the first chapter to 0 and stretching the last to
// the full duration so the timeline has no gaps.
func copyFirstFileChapters(files []*models.AudioFile) models.ChapterList {
	chapters := make(models.ChapterList, 0, len(files[0].EmbeddedChapters))
	for i, ch := range files[0].EmbeddedChapters {
		chapters = append(chapters, models.Chapter{
			ID:    i,
			Start: ch.Start,
			Title: ch.Title,
		})
	}
	if len(chapters) > 0 {
		chapters[0].Start = 0
	}
	setEndTimes(chapters, totalDuration(files))
	return chapters
}

// concatEmbeddedChapters lays each file's chapters onto the book timeline at
// that file's offset. Files without chapters contribute one chapter covering
// the whole file. The first chapter is pinned to 0 so the timeline has no
// leading gap.
func concatEmbeddedChapters(files []*models.AudioFile) models.ChapterList {
	chapters := models.ChapterList{}
	offset := 0.0
	for _, af := range files {
		if len(af.EmbeddedChapters) == 0 {
			chapters = append(chapters, models.Chapter{
				ID:    len(chapters),
				Start: offset,
				Title: af.Filename(),
			})
			offset += af.DurationSeconds
			continue
		}
		for _, ch := range af.EmbeddedChapters {
			start := ch.Start
			if start < 0 {
				start = 0
			}
			if start > af.DurationSeconds {
				start = af.DurationSeconds
			}
			chapters = append(chapters, models.Chapter{
				ID:    len(chapters),
				Start: offset + start,
				Title: ch.Title,
			})
		}
		offset += af.DurationSeconds
	}
	if len(chapters) > 0 {
		chapters[0].Start = 0
	}
	setEndTimes(chapters, offset)
	return chapters
}

// synthesizeFromFiles makes one chapter per file.
func synthesizeFromFiles(files []*models.AudioFile, opts Options) models.ChapterList {
	chapters := make(models.ChapterList, 0, len(files))
	offset := 0.0
	for i, af := range files {
		title := af.Filename()
		if opts.PreferAudioMetadataTitle && af.MetaTags.Title != "" && af.MetaTags.Title != opts.BookTitle {
			title = af.MetaTags.Title
		}
		chapters = append(chapters, models.Chapter{
			ID:    i,
			Start: offset,
			End:   offset + af.DurationSeconds,
			Title: title,
		})
		offset += af.DurationSeconds
	}
	return chapters
}

func totalDuration(files []*models.AudioFile) float64 {
	total := 0.0
	for _, af := range files {
		total += af.DurationSeconds
	}
	return total
}
