package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ytmusicdl/types"

	"github.com/lrstanley/go-ytdlp"
)

// AudioExtensions are the container extensions yt-dlp leaves behind after audio extraction
var AudioExtensions = map[string]bool{
	".opus": true,
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".flac": true,
	".wav":  true,
	".ogg":  true,
	".weba": true,
}

// thumbnailFormats are the audio formats yt-dlp can embed cover art into.
// mp3 is left out because WriteTags attaches the album cover itself.
var thumbnailFormats = map[string]bool{
	"m4a":    true,
	"opus":   true,
	"flac":   true,
	"vorbis": true,
}

// Downloaded is one fetched audio file
type Downloaded struct {
	Track TrackRef
	Path  string
}

// DownloadRequest is one track to fetch into Dir as Format, tagged with Tags
type DownloadRequest struct {
	Track  TrackRef
	Tags   TrackTags
	Dir    string
	Format string
}

// Downloader fetches a single track, reporting its own completion fraction
type Downloader interface {
	Download(ctx context.Context, req DownloadRequest, progress func(float64)) (*Downloaded, error)
}

// YTDLPDownloader shells out to yt-dlp through go-ytdlp
type YTDLPDownloader struct {
	quality      string
	cookies      *CookieStore
	progressTick time.Duration
}

// NewYTDLPDownloader creates a downloader with the given audio quality (yt-dlp --audio-quality).
// cookies may be nil.
func NewYTDLPDownloader(quality string, cookies *CookieStore) *YTDLPDownloader {
	return &YTDLPDownloader{
		quality:      quality,
		cookies:      cookies,
		progressTick: 500 * time.Millisecond,
	}
}

// command builds the yt-dlp invocation for req. Tags are written by ffmpeg
// during the metadata post-processing step so every container carries them.
func (d *YTDLPDownloader) command(req DownloadRequest) *ytdlp.Command {
	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		NoPlaylist().
		ExtractAudio().
		AudioFormat(req.Format).
		EmbedMetadata().
		Output(filepath.Join(req.Dir, "%(id)s.%(ext)s"))
	if d.quality != "" {
		dl.AudioQuality(d.quality)
	}
	if d.cookies != nil && d.cookies.Configured() {
		dl.Cookies(d.cookies.Path())
	}
	if args := MetadataArgs(req.Tags); args != "" {
		dl.PostProcessorArgs("Metadata+ffmpeg_o:" + args)
	}
	if thumbnailFormats[req.Format] {
		dl.EmbedThumbnail().ConvertThumbnails("jpg")
	}
	return dl
}

// Download extracts the audio of one track as req.Format
func (d *YTDLPDownloader) Download(ctx context.Context, req DownloadRequest, progress func(float64)) (*Downloaded, error) {
	track := req.Track
	dl := d.command(req)

	var (
		mu       sync.Mutex
		title    = track.Title
		finished bool
	)
	dl.ProgressFunc(d.progressTick, func(update ytdlp.ProgressUpdate) {
		mu.Lock()
		defer mu.Unlock()
		if finished {
			return
		}
		if update.Info != nil && update.Info.Title != nil && title == "" {
			title = *update.Info.Title
		}
		if progress != nil && update.TotalBytes > 0 {
			progress(float64(update.DownloadedBytes) / float64(update.TotalBytes))
		}
	})

	result, err := dl.Run(ctx, track.URL)
	mu.Lock()
	finished = true
	mu.Unlock()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewPipelineError(types.ErrDownload, "Download failed", fmt.Errorf("yt-dlp %s: %w", track.VideoID, err))
	}

	mu.Lock()
	defer mu.Unlock()
	out := track
	if result != nil {
		if info, err := result.GetExtractedInfo(); err == nil && len(info) > 0 {
			if title == "" && info[0].Title != nil {
				title = *info[0].Title
			}
			if out.Duration == 0 && info[0].Duration != nil {
				out.Duration = int(*info[0].Duration)
			}
		}
	}

	path, err := findAudioFile(req.Dir, track.VideoID)
	if err != nil {
		return nil, types.NewPipelineError(types.ErrDownload, "Download produced no audio file", err)
	}

	if out.Title == "" {
		out.Title = title
	}
	return &Downloaded{Track: out, Path: path}, nil
}

// findAudioFile locates the post-processed file yt-dlp wrote for videoID
func findAudioFile(dir, videoID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, globEscape(videoID)+".*"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if AudioExtensions[strings.ToLower(filepath.Ext(m))] {
			return m, nil
		}
	}
	return "", fmt.Errorf("no audio file for %s in %s", videoID, dir)
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(s)
}

// CleanupPartFiles removes *.part and *.ytdl leftovers of interrupted downloads under dir
func CleanupPartFiles(dir string) (int, error) {
	removed := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext == ".part" || ext == ".ytdl" {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
