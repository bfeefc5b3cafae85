package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"ytmusicdl/config"
	"ytmusicdl/logging"
	"ytmusicdl/services"
	"ytmusicdl/websocket"

	"github.com/charmbracelet/log"
)

// Services bundles the long-lived components shared by the server and the CLI
type Services struct {
	Config   *config.Config
	Logger   *log.Logger
	Bus      *services.Broadcaster
	Store    *services.JobStore
	Executor *services.Executor
	Resolver services.AlbumResolver
	Index    *services.LibraryIndex
	Files    services.FileService
	Cookies  *services.CookieStore
	Hub      *websocket.Hub
}

// NewServices wires the job coordinator and the real download pipeline from cfg.
// Log output goes to stderr and into the broadcaster's log history.
func NewServices(ctx context.Context, cfg *config.Config, stderr io.Writer) (*Services, error) {
	if stderr == nil {
		stderr = os.Stderr
	}

	bus := services.NewBroadcaster(cfg.Log.BufferLines)
	logger := logging.NewLogger(io.MultiWriter(stderr, bus.LogWriter()), cfg.Log.Level)

	store := services.NewJobStore(
		services.WithNotifier(bus),
		services.WithMaxJobs(cfg.Jobs.MaxJobs),
		services.WithMaxLogs(cfg.Jobs.MaxLogs),
	)
	bus.SetSnapshotSource(store)

	if err := os.MkdirAll(cfg.Paths.LibraryDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}

	var index *services.LibraryIndex
	if cfg.Paths.IndexPath != "" {
		idx, err := services.OpenIndex(cfg.Paths.IndexPath)
		if err != nil {
			return nil, err
		}
		index = idx
	}

	var proxy *services.MetadataProxy
	if cfg.Metadata.ProxyURL != "" {
		proxy = services.NewMetadataProxy(cfg.Metadata.ProxyURL, cfg.Metadata.RateLimit)
	}
	resolver := services.NewResolver(proxy)

	var lyrics *services.LyricsClient
	if cfg.Lyrics.Enabled {
		lyrics = services.NewLyricsClient(cfg.Lyrics.URL, cfg.Lyrics.RateLimit)
	}
	cookies := services.NewCookieStore(cfg.Metadata.CookiesFile)

	pipeline := services.NewSyncPipeline(services.SyncConfig{
		Resolver:      resolver,
		Downloader:    services.NewYTDLPDownloader(cfg.Audio.Quality, cookies),
		Covers:        services.NewCoverCache(0),
		Composer:      services.NewComposer(cfg.Paths.LibraryDir),
		Index:         index,
		Lyrics:        lyrics,
		SkipExisting:  cfg.Audio.SkipExisting,
		TempDir:       cfg.Paths.TempDir,
		DefaultFormat: cfg.Audio.Format,
		Logger:        logger.WithPrefix("pipeline"),
	})

	executor := services.NewExecutor(store, pipeline, logger.WithPrefix("executor"),
		services.WithTimeout(cfg.Jobs.JobTimeout.Duration),
		services.WithBaseContext(ctx),
	)

	return &Services{
		Config:   cfg,
		Logger:   logger,
		Bus:      bus,
		Store:    store,
		Executor: executor,
		Resolver: resolver,
		Index:    index,
		Files:    services.NewFileService(logger),
		Cookies:  cookies,
		Hub:      websocket.NewHub(bus, logger.WithPrefix("ws"), cfg.Server.CORSOrigins),
	}, nil
}

// Close releases the library index
func (s *Services) Close() error {
	if s.Index != nil {
		return s.Index.Close()
	}
	return nil
}
