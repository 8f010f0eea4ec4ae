package stream

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"

	"github.com/kikubooks/kiku/pkg/models"
)

const (
	// hlsSegmentSeconds is the target segment length. Short enough that seeks
	// land close to the requested position, long enough to keep the playlist
	// small for multi-hour audiobooks.
	hlsSegmentSeconds = 6

	playlistFilename   = "output.m3u8"
	concatListFilename = "files.txt"
)

// FFmpeg starts transcode sessions by shelling out to ffmpeg.
type FFmpeg struct {
	binPath    string
	streamsDir string
}

// NewFFmpeg returns a Starter that writes session directories under
// streamsDir. binPath defaults to "ffmpeg" on PATH.
func NewFFmpeg(binPath, streamsDir string) *FFmpeg {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &FFmpeg{binPath: binPath, streamsDir: streamsDir}
}

func (f *FFmpeg) Start(ctx context.Context, req StartRequest) (Stream, error) {
	log := logger.FromContext(ctx)

	dir := filepath.Join(f.streamsDir, req.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WithStack(err)
	}

	concatPath := filepath.Join(dir, concatListFilename)
	contents, err := concatListContents(req.Tracks, req.FilePaths)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if err := os.WriteFile(concatPath, []byte(contents), 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, errors.WithStack(err)
	}

	// The process outlives the request context; Close cancels it.
	cmdCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(cmdCtx, f.binPath, transcodeArgs(concatPath, dir, req.StartTimeSeconds)...)
	if err := cmd.Start(); err != nil {
		cancel()
		os.RemoveAll(dir)
		return nil, errors.Wrap(err, "failed to start ffmpeg")
	}

	s := &ffmpegStream{
		dir:    dir,
		cancel: cancel,
		closed: make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		if err != nil && cmdCtx.Err() == nil {
			log.Err(err).Data(logger.Data{"dir": dir}).Warn("ffmpeg transcode exited with error")
		}
		close(s.closed)
	}()

	return s, nil
}

// concatListContents builds the ffmpeg concat demuxer list stitching the
// ordered tracks into one timeline. Single quotes in paths are escaped per
// the demuxer's quoting rules.
func concatListContents(tracks []models.AudioTrack, paths map[int]string) (string, error) {
	var b strings.Builder
	for _, track := range tracks {
		path, ok := paths[track.AudioFileID]
		if !ok {
			return "", errors.Errorf("no path for audio file %d", track.AudioFileID)
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(path, "'", `'\''`))
	}
	return b.String(), nil
}

func transcodeArgs(concatPath, dir string, startTime float64) []string {
	args := []string{
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
	}
	if startTime > 0 {
		args = append(args, "-ss", strconv.FormatFloat(startTime, 'f', 3, 64))
	}
	args = append(args,
		"-i", concatPath,
		"-map", "0:a",
		"-c:a", "aac",
		"-f", "hls",
		"-hls_time", strconv.Itoa(hlsSegmentSeconds),
		"-hls_playlist_type", "event",
		"-hls_segment_filename", filepath.Join(dir, "segment-%d.ts"),
		filepath.Join(dir, playlistFilename),
	)
	return args
}

type ffmpegStream struct {
	dir       string
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (s *ffmpegStream) PlaylistPath() string {
	return filepath.Join(s.dir, playlistFilename)
}

func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.closed
		s.closeErr = errors.WithStack(os.RemoveAll(s.dir))
	})
	return s.closeErr
}

func (s *ffmpegStream) Closed() <-chan struct{} {
	return s.closed
}
