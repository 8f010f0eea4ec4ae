package worker

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"

	"github.com/kikubooks/kiku/pkg/audio"
	"github.com/kikubooks/kiku/pkg/books"
	"github.com/kikubooks/kiku/pkg/chapters"
	"github.com/kikubooks/kiku/pkg/errcodes"
	"github.com/kikubooks/kiku/pkg/libraries"
	"github.com/kikubooks/kiku/pkg/models"
	"github.com/kikubooks/kiku/pkg/probe"
)

// audioExtensions are the file extensions considered for scanning. The
// detected mime type still has to agree before a file is picked up.
var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".m4a":  {},
	".m4b":  {},
	".flac": {},
	".ogg":  {},
	".opus": {},
	".aac":  {},
	".wav":  {},
}

// discoveredFile is one audio file found on disk, before probing.
type discoveredFile struct {
	path     string
	ino      string
	size     int64
	mimeType string
}

func (w *Worker) ProcessScanJob(ctx context.Context, job *models.Job) error {
	log := logger.FromContext(ctx)
	log.Info("processing scan job")

	var libs []*models.Library
	if job.LibraryID != nil {
		library, err := w.libraryService.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{ID: job.LibraryID})
		if err != nil {
			return errors.WithStack(err)
		}
		libs = append(libs, library)
	} else {
		var err error
		libs, err = w.libraryService.ListLibraries(ctx, libraries.ListLibrariesOptions{})
		if err != nil {
			return errors.WithStack(err)
		}
	}

	log.Info("processing libraries", logger.Data{"count": len(libs)})

	for _, library := range libs {
		err := w.scanLibrary(ctx, library)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	log.Info("finished scan job")
	return nil
}

func (w *Worker) scanLibrary(ctx context.Context, library *models.Library) error {
	log := logger.FromContext(ctx).Data(logger.Data{"library_id": library.ID})
	log.Info("processing library")

	discovered, err := w.discoverAudioFiles(ctx, library)
	if err != nil {
		return errors.WithStack(err)
	}

	// Deterministic book order keeps rescans stable.
	dirs := make([]string, 0, len(discovered))
	for dir := range discovered {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		err := w.syncBook(ctx, library, dir, discovered[dir])
		if err != nil {
			return errors.WithStack(err)
		}
	}

	return w.removeVanishedBooks(ctx, library, discovered)
}

// discoverAudioFiles walks the library paths and groups audio files by the
// directory of the book they belong to. Files inside a disc subfolder (like
// "CD01") group under the parent folder.
func (w *Worker) discoverAudioFiles(ctx context.Context, library *models.Library) (map[string][]discoveredFile, error) {
	log := logger.FromContext(ctx)
	discovered := map[string][]discoveredFile{}

	for _, libraryPath := range library.LibraryPaths {
		log := log.Data(logger.Data{"library_path_id": libraryPath.ID, "library_path": libraryPath.Filepath})
		log.Info("processing library path")

		err := filepath.WalkDir(libraryPath.Filepath, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return errors.WithStack(err)
			}
			if entry.IsDir() {
				return nil
			}
			base := filepath.Base(path)
			if strings.HasPrefix(base, ".") {
				return nil
			}
			if _, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
				return nil
			}

			mtype, err := mimetype.DetectFile(path)
			if err != nil {
				log.Warn("can't detect the mime type of a file with a valid extension", logger.Data{"path": path, "err": err.Error()})
				return nil
			}
			// m4b audiobooks detect as an mp4 container rather than audio/*.
			if !strings.HasPrefix(mtype.String(), "audio/") && mtype.String() != "video/mp4" {
				log.Warn("mime type is not expected for extension", logger.Data{"path": path, "mimetype": mtype.String()})
				return nil
			}

			info, err := entry.Info()
			if err != nil {
				return errors.WithStack(err)
			}

			dir := filepath.Dir(path)
			if audio.IsDiscFolder(filepath.Base(dir)) {
				dir = filepath.Dir(dir)
			}

			discovered[dir] = append(discovered[dir], discoveredFile{
				path:     path,
				ino:      fileIno(info),
				size:     info.Size(),
				mimeType: mtype.String(),
			})
			return nil
		})
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return discovered, nil
}

// probeFiles probes the discovered files concurrently, bounded by the worker
// process count. Files that fail to probe are logged and skipped.
func (w *Worker) probeFiles(ctx context.Context, title string, files []discoveredFile) []*models.AudioFile {
	log := logger.FromContext(ctx)

	probed := make([]*models.AudioFile, len(files))
	sem := make(chan struct{}, w.config.WorkerProcesses)
	var wg sync.WaitGroup

	for i, df := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, df discoveredFile) {
			defer wg.Done()
			defer func() { <-sem }()

			info, err := w.prober.Probe(ctx, df.path)
			if err != nil {
				log.Err(err).Data(logger.Data{"path": df.path}).Warn("probe error; skipping file")
				return
			}

			af := &models.AudioFile{
				Ino:              df.ino,
				Filepath:         df.path,
				DurationSeconds:  info.DurationSeconds,
				BitrateBps:       info.BitrateBps,
				Codec:            info.Codec,
				MimeType:         df.mimeType,
				SizeBytes:        df.size,
				MetaTags:         info.Tags,
				EmbeddedChapters: info.Chapters,
			}
			af.TrackNumFromMeta = probe.ParseNumberPair(info.Tags.TrackNumber)
			af.DiscNumFromMeta = probe.ParseNumberPair(info.Tags.DiscNumber)
			af.TrackNumFromFilename, af.DiscNumFromFilename = audio.ParseTrackAndDisc(df.path, audio.BookContext{Title: title})

			probed[i] = af
		}(i, df)
	}
	wg.Wait()

	out := make([]*models.AudioFile, 0, len(probed))
	for _, af := range probed {
		if af != nil {
			out = append(out, af)
		}
	}
	return out
}

func (w *Worker) syncBook(ctx context.Context, library *models.Library, dir string, files []discoveredFile) error {
	log := logger.FromContext(ctx).Data(logger.Data{"path": dir})
	log.Info("processing book folder")

	title := filepath.Base(dir)
	probed := w.probeFiles(ctx, title, files)
	if len(probed) == 0 {
		return nil
	}

	if library.MediaType == models.MediaTypePodcast {
		// Podcast episodes play standalone, ordered by filename.
		sort.Slice(probed, func(i, j int) bool {
			return probed[i].Filepath < probed[j].Filepath
		})
		for _, af := range probed {
			af.Index = 1
			af.LibraryID = library.ID
		}
	} else {
		probed = audio.ResolveOrder(probed)
		for _, af := range probed {
			af.LibraryID = library.ID
		}
	}

	existing, err := w.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{
		Filepath:  &dir,
		LibraryID: &library.ID,
	})
	if err != nil && !errors.Is(err, errcodes.NotFound("Book")) {
		return errors.WithStack(err)
	}

	if existing == nil {
		return w.createBook(ctx, library, dir, title, probed)
	}
	return w.updateBook(ctx, library, existing, probed)
}

func (w *Worker) createBook(ctx context.Context, library *models.Library, dir, title string, probed []*models.AudioFile) error {
	log := logger.FromContext(ctx)
	log.Info("creating book", logger.Data{"title": title})

	book := &models.Book{
		LibraryID: library.ID,
		MediaType: library.MediaType,
		Filepath:  dir,
		Title:     title,
	}

	if library.MediaType == models.MediaTypePodcast {
		for i, af := range probed {
			book.Episodes = append(book.Episodes, &models.Episode{
				Title:     af.Filename(),
				Index:     i + 1,
				AudioFile: af,
			})
		}
	} else {
		book.AudioFiles = probed
		book.Chapters = assembleChapters(ctx, library, title, probed)
	}

	return errors.WithStack(w.bookService.CreateBook(ctx, book))
}

// updateBook merges a rescan into an existing book. Files are matched by
// inode so renames don't lose per-file flags; vanished files are deleted.
func (w *Worker) updateBook(ctx context.Context, library *models.Library, book *models.Book, probed []*models.AudioFile) error {
	log := logger.FromContext(ctx).Data(logger.Data{"book_id": book.ID})
	log.Info("book already exists")

	seen := map[string]struct{}{}
	for _, af := range probed {
		seen[af.Ino] = struct{}{}

		existingFile := book.FindFileWithIno(af.Ino)
		if existingFile == nil {
			af.BookID = book.ID
			if library.MediaType == models.MediaTypePodcast {
				episode := &models.Episode{
					BookID:    book.ID,
					Title:     af.Filename(),
					Index:     len(book.Episodes) + 1,
					AudioFile: af,
				}
				if err := w.bookService.CreateEpisode(ctx, episode); err != nil {
					return errors.WithStack(err)
				}
				book.Episodes = append(book.Episodes, episode)
			} else {
				if err := w.bookService.CreateAudioFile(ctx, af); err != nil {
					return errors.WithStack(err)
				}
			}
			continue
		}

		// Per-file flags survive the rescan.
		af.ID = existingFile.ID
		af.CreatedAt = existingFile.CreatedAt
		af.BookID = existingFile.BookID
		af.EpisodeID = existingFile.EpisodeID
		af.Exclude = existingFile.Exclude
		af.ManuallyVerified = existingFile.ManuallyVerified
		if af.ManuallyVerified {
			// A manually verified order is never overwritten by the resolver.
			af.Index = existingFile.Index
			af.Error = existingFile.Error
		}

		err := w.bookService.UpdateAudioFile(ctx, af, books.UpdateAudioFileOptions{
			Columns: []string{
				"filepath", "size_bytes", "duration_seconds", "bitrate_bps",
				"codec", "mime_type", "index", "error", "meta_tags",
				"embedded_chapters", "track_num_from_meta", "disc_num_from_meta",
				"track_num_from_filename", "disc_num_from_filename",
			},
		})
		if err != nil {
			return errors.WithStack(err)
		}
	}

	for _, existingFile := range book.AudioFiles {
		if _, ok := seen[existingFile.Ino]; ok {
			continue
		}
		log.Info("removing vanished file", logger.Data{"file_id": existingFile.ID, "path": existingFile.Filepath})
		if err := w.bookService.DeleteAudioFile(ctx, existingFile.ID); err != nil {
			return errors.WithStack(err)
		}
	}

	if library.MediaType != models.MediaTypePodcast {
		book.Chapters = assembleChapters(ctx, library, book.Title, probed)
		err := w.bookService.UpdateBook(ctx, book, books.UpdateBookOptions{Columns: []string{"chapters"}})
		if err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}

// removeVanishedBooks deletes the library's books whose folders no longer
// contain any audio files.
func (w *Worker) removeVanishedBooks(ctx context.Context, library *models.Library, discovered map[string][]discoveredFile) error {
	log := logger.FromContext(ctx)

	existing, err := w.bookService.ListBooks(ctx, books.ListBooksOptions{LibraryID: &library.ID})
	if err != nil {
		return errors.WithStack(err)
	}

	for _, book := range existing {
		if _, ok := discovered[book.Filepath]; ok {
			continue
		}
		log.Info("removing vanished book", logger.Data{"book_id": book.ID, "path": book.Filepath})
		if err := w.bookService.DeleteBook(ctx, book.ID); err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}

func assembleChapters(ctx context.Context, library *models.Library, title string, probed []*models.AudioFile) models.ChapterList {
	included := make([]*models.AudioFile, 0, len(probed))
	for _, af := range probed {
		if af.Exclude || af.Index < 1 {
			continue
		}
		included = append(included, af)
	}
	return chapters.Assemble(ctx, included, chapters.Options{
		PreferOverdriveMarkers:   library.PreferOverdriveMediaMarkers,
		PreferAudioMetadataTitle: library.PreferAudioMetadata,
		BookTitle:                title,
	})
}

// fileIno returns the filesystem inode as a string, the stable identity used
// to match files across renames.
func fileIno(info fs.FileInfo) string {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return strconv.FormatUint(st.Ino, 10)
	}
	return ""
}
