package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ytmusicdl/types"

	"github.com/charmbracelet/log"
)

// AlbumResolver resolves a URL into a download plan
type AlbumResolver interface {
	Resolve(ctx context.Context, rawURL string) (*Album, error)
}

// SyncPipeline is the real extract, download, tag and compose pipeline
type SyncPipeline struct {
	resolver      AlbumResolver
	downloader    Downloader
	covers        *CoverCache
	composer      *Composer
	index         *LibraryIndex
	lyrics        *LyricsClient
	skipExisting  bool
	tempDir       string
	defaultFormat string
	logger        *log.Logger
}

// SyncConfig wires the pipeline's collaborators. Index, Covers and Lyrics are optional.
type SyncConfig struct {
	Resolver   AlbumResolver
	Downloader Downloader
	Covers     *CoverCache
	Composer   *Composer
	Index      *LibraryIndex
	Lyrics     *LyricsClient
	// SkipExisting skips tracks the index already holds
	SkipExisting  bool
	TempDir       string
	DefaultFormat string
	Logger        *log.Logger
}

// NewSyncPipeline creates the pipeline
func NewSyncPipeline(cfg SyncConfig) *SyncPipeline {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = "mp3"
	}
	return &SyncPipeline{
		resolver:      cfg.Resolver,
		downloader:    cfg.Downloader,
		covers:        cfg.Covers,
		composer:      cfg.Composer,
		index:         cfg.Index,
		lyrics:        cfg.Lyrics,
		skipExisting:  cfg.SkipExisting,
		tempDir:       cfg.TempDir,
		defaultFormat: cfg.DefaultFormat,
		logger:        cfg.Logger,
	}
}

// Run implements Pipeline
func (p *SyncPipeline) Run(ctx context.Context, req Request, token *CancelToken) Stream {
	return NewStream(ctx, func(ctx context.Context, emit func(ProgressEvent) bool) (*types.JobResult, error) {
		return p.sync(ctx, req, token, emit)
	})
}

func (p *SyncPipeline) sync(ctx context.Context, req Request, token *CancelToken, emit func(ProgressEvent) bool) (*types.JobResult, error) {
	format := req.AudioFormat
	if format == "" {
		format = p.defaultFormat
	}

	emit(ProgressEvent{Phase: PhaseFetchingInfo, Current: 0, Total: 1, Message: "Fetching album info"})
	album, err := p.resolver.Resolve(ctx, req.URL)
	if err != nil {
		if token.Cancelled() {
			return nil, ErrCancelled
		}
		return nil, err
	}
	info := album.Info
	emit(ProgressEvent{
		Phase:   PhaseFetchingInfo,
		Current: 1,
		Total:   1,
		Tracks:  len(album.Tracks),
		Message: fmt.Sprintf("Found %q by %s (%d tracks)", info.Title, info.Artist, len(album.Tracks)),
		Album:   &info,
	})
	if token.Cancelled() {
		return nil, ErrCancelled
	}

	workDir := filepath.Join(p.tempDir, "ytmusicdl-"+req.JobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, types.NewPipelineError(types.ErrDownload, "Could not create work directory", err)
	}
	defer p.cleanup(workDir)

	downloaded, skipped, err := p.downloadAll(ctx, album, workDir, format, token, emit)
	if err != nil {
		return nil, err
	}
	if len(downloaded) == 0 {
		emit(ProgressEvent{Phase: PhaseImporting, Current: 1, Total: 1, Message: fmt.Sprintf("All %d tracks already in library", skipped)})
		return &types.JobResult{
			Album:       &info,
			Destination: p.composer.AlbumDir(info),
			Skipped:     skipped,
		}, nil
	}

	result, err := p.importAll(ctx, req.JobID, album, downloaded, token, emit)
	if err != nil {
		return nil, err
	}
	result.Skipped = skipped
	return result, nil
}

// planTags is what a track should carry before any file exists
func planTags(info types.AlbumInfo, track TrackRef) TrackTags {
	tags := TrackTags{
		Title:       track.Title,
		Artist:      track.Artist,
		AlbumArtist: info.Artist,
		Album:       info.Title,
		Year:        info.Year,
		Track:       track.Number,
		TrackTotal:  info.TrackCount,
	}
	if tags.Artist == "" {
		tags.Artist = info.Artist
	}
	return tags
}

func (p *SyncPipeline) alreadyImported(ctx context.Context, videoID string) bool {
	if !p.skipExisting || p.index == nil {
		return false
	}
	found, err := p.index.HasVideo(ctx, videoID)
	if err != nil {
		p.logger.Warn("library lookup failed", "video", videoID, "err", err)
		return false
	}
	return found
}

// downloadAll fetches every track not yet in the library. Failed tracks are
// skipped; it fails only when nothing was downloaded and something failed.
func (p *SyncPipeline) downloadAll(ctx context.Context, album *Album, workDir, format string, token *CancelToken, emit func(ProgressEvent) bool) ([]Downloaded, int, error) {
	n := len(album.Tracks)
	total := n * 100
	var (
		downloaded []Downloaded
		skipped    int
		lastErr    error
	)
	for i, track := range album.Tracks {
		if token.Cancelled() {
			return nil, 0, ErrCancelled
		}
		label := track.Title
		if label == "" {
			label = track.VideoID
		}
		base := i * 100

		if p.alreadyImported(ctx, track.VideoID) {
			skipped++
			emit(ProgressEvent{
				Phase:   PhaseDownloading,
				Current: base + 100,
				Total:   total,
				Track:   i + 1,
				Tracks:  n,
				Message: fmt.Sprintf("Already in library: %s", label),
			})
			continue
		}

		emit(ProgressEvent{
			Phase:   PhaseDownloading,
			Current: base,
			Total:   total,
			Track:   i + 1,
			Tracks:  n,
			Message: fmt.Sprintf("Downloading %d/%d: %s", i+1, n, label),
		})

		req := DownloadRequest{Track: track, Tags: planTags(album.Info, track), Dir: workDir, Format: format}
		d, err := p.downloader.Download(ctx, req, func(frac float64) {
			emit(ProgressEvent{Phase: PhaseDownloading, Current: base + int(frac*100), Total: total, Track: i + 1, Tracks: n})
		})
		if err != nil {
			if token.Cancelled() || errors.Is(err, context.Canceled) {
				return nil, 0, ErrCancelled
			}
			lastErr = err
			p.logger.Warn("track download failed", "video", track.VideoID, "err", err)
			emit(ProgressEvent{
				Phase:   PhaseDownloading,
				Current: base + 100,
				Total:   total,
				Track:   i + 1,
				Tracks:  n,
				Message: fmt.Sprintf("Skipped %s: %s", label, types.PublicMessage(err)),
			})
			continue
		}
		downloaded = append(downloaded, *d)
	}

	emit(ProgressEvent{
		Phase:   PhaseDownloading,
		Current: total,
		Total:   total,
		Track:   n,
		Tracks:  n,
		Message: fmt.Sprintf("Downloaded %d/%d tracks", len(downloaded), n),
	})
	if len(downloaded) == 0 && (lastErr != nil || skipped == 0) {
		return nil, 0, types.NewPipelineError(types.ErrDownload, "No tracks could be downloaded", lastErr)
	}
	return downloaded, skipped, nil
}

func (p *SyncPipeline) importAll(ctx context.Context, jobID string, album *Album, downloaded []Downloaded, token *CancelToken, emit func(ProgressEvent) bool) (*types.JobResult, error) {
	m := len(downloaded)
	info := album.Info
	emit(ProgressEvent{Phase: PhaseImporting, Current: 0, Total: m, Message: fmt.Sprintf("Tagging and importing %d tracks", m)})

	var cover *Cover
	if p.covers != nil && info.Thumbnail != "" {
		c, err := p.covers.Fetch(ctx, info.Thumbnail)
		if err != nil {
			p.logger.Warn("cover fetch failed", "url", info.Thumbnail, "err", err)
		} else {
			cover = c
		}
	}

	// fill album fields the resolver could not know from the first file's embedded tags
	if existing, err := ReadTags(downloaded[0].Path); err == nil {
		merged := MergeTags(TrackTags{Artist: info.Artist, Album: info.Title, Year: info.Year}, existing)
		info.Artist, info.Title, info.Year = merged.Artist, merged.Album, merged.Year
	}

	files := make([]string, 0, m)
	lyricsSaved := 0
	for j, d := range downloaded {
		if token.Cancelled() {
			return nil, ErrCancelled
		}

		tags := planTags(info, d.Track)
		if existing, err := ReadTags(d.Path); err == nil {
			tags = MergeTags(tags, existing)
		}
		if cover != nil {
			tags.Cover, tags.CoverMIME = cover.Data, cover.MIME
		}
		if _, err := WriteTags(d.Path, tags); err != nil {
			return nil, err
		}

		dst, err := p.composer.Place(d.Path, info, tags.Track, tags.Title)
		if err != nil {
			return nil, err
		}
		files = append(files, dst)

		if p.saveLyrics(ctx, tags, d.Track.Duration, dst) {
			lyricsSaved++
		}

		if p.index != nil {
			_, err := p.index.Record(ctx, types.LibraryTrack{
				JobID:       jobID,
				VideoID:     d.Track.VideoID,
				Title:       tags.Title,
				Artist:      tags.Artist,
				Album:       info.Title,
				TrackNumber: tags.Track,
				Path:        p.composer.RelPath(dst),
			})
			if err != nil {
				p.logger.Warn("failed to index track", "path", dst, "err", err)
			}
		}

		emit(ProgressEvent{
			Phase:   PhaseImporting,
			Current: j + 1,
			Total:   m,
			Track:   j + 1,
			Tracks:  m,
			Message: fmt.Sprintf("Imported %s", filepath.Base(dst)),
			Album:   &info,
		})
	}

	return &types.JobResult{
		Album:       &info,
		Destination: p.composer.AlbumDir(info),
		TrackCount:  len(files),
		LyricsCount: lyricsSaved,
		Files:       files,
	}, nil
}

// saveLyrics writes an .lrc sidecar next to dst. Lyrics never fail an import.
func (p *SyncPipeline) saveLyrics(ctx context.Context, tags TrackTags, duration int, dst string) bool {
	if p.lyrics == nil {
		return false
	}
	lyrics, err := p.lyrics.Fetch(ctx, LyricsQuery{Title: tags.Title, Artist: tags.Artist, Album: tags.Album, Duration: duration})
	if err != nil {
		p.logger.Warn("lyrics lookup failed", "title", tags.Title, "err", err)
		return false
	}
	if lyrics == "" {
		p.logger.Debug("no lyrics found", "title", tags.Title, "artist", tags.Artist)
		return false
	}
	if _, err := SaveLyrics(lyrics, dst); err != nil {
		p.logger.Warn("failed to save lyrics", "path", dst, "err", err)
		return false
	}
	return true
}

// cleanup drops the work directory with any partial or unimported downloads
func (p *SyncPipeline) cleanup(workDir string) {
	if n, err := CleanupPartFiles(workDir); err != nil {
		p.logger.Warn("part file cleanup failed", "dir", workDir, "err", err)
	} else if n > 0 {
		p.logger.Info("removed partial downloads", "dir", workDir, "count", n)
	}
	if err := os.RemoveAll(workDir); err != nil {
		p.logger.Warn("work directory not removed", "dir", workDir, "err", err)
	}
}
