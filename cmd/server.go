package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ytmusicdl/handlers"
	"ytmusicdl/middleware"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 15 * time.Second

// NewRouter builds the HTTP API over s
func NewRouter(s *Services) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(s.Config.Server.CORSOrigins))
	r.Use(middleware.Logging(s.Logger.WithPrefix("http")))
	r.Use(middleware.Security())

	jobHandler := handlers.NewJobHandler(s.Store, s.Executor, s.Config.Audio.Format, s.Logger)
	eventHandler := handlers.NewEventHandler(s.Bus, s.Store, s.Hub, s.Logger)
	fileHandler := handlers.NewFileHandler(s.Files, s.Config.Paths.LibraryDir, s.Logger)
	libraryHandler := handlers.NewLibraryHandler(s.Index, s.Logger)
	resolveHandler := handlers.NewResolveHandler(s.Resolver, s.Logger)
	healthHandler := handlers.NewHealthHandler(s.Store, s.Bus, s.Hub, s.Config.Paths.LibraryDir)
	settingsHandler := handlers.NewSettingsHandler(s.Config)
	cookiesHandler := handlers.NewCookiesHandler(s.Cookies, s.Logger)

	setupRoutes(r, jobHandler, eventHandler, fileHandler, libraryHandler, resolveHandler, healthHandler, settingsHandler, cookiesHandler)
	return r
}

// setupRoutes configures all the HTTP routes
func setupRoutes(
	r *gin.Engine,
	jobHandler *handlers.JobHandler,
	eventHandler *handlers.EventHandler,
	fileHandler *handlers.FileHandler,
	libraryHandler *handlers.LibraryHandler,
	resolveHandler *handlers.ResolveHandler,
	healthHandler *handlers.HealthHandler,
	settingsHandler *handlers.SettingsHandler,
	cookiesHandler *handlers.CookiesHandler,
) {
	r.GET("/health", healthHandler.HealthCheck)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", healthHandler.APIStatus)
		apiGroup.GET("/resolve", resolveHandler.Resolve)

		jobsGroup := apiGroup.Group("/jobs")
		{
			jobsGroup.POST("", jobHandler.CreateJob)
			jobsGroup.GET("", jobHandler.ListJobs)
			jobsGroup.DELETE("", jobHandler.ClearJobs)
			jobsGroup.GET("/:id", jobHandler.GetJob)
			jobsGroup.GET("/:id/stream", eventHandler.StreamJob)
			jobsGroup.POST("/:id/cancel", jobHandler.CancelJob)
			jobsGroup.DELETE("/:id", jobHandler.DeleteJob)
		}

		apiGroup.GET("/events", eventHandler.StreamEvents)
		apiGroup.GET("/logs", eventHandler.History)
		apiGroup.GET("/logs/sse", eventHandler.StreamLogs)
		apiGroup.GET("/ws/events", eventHandler.ServeWebSocket)

		apiGroup.GET("/library", libraryHandler.ListTracks)
		apiGroup.GET("/files", fileHandler.ListFiles)
		apiGroup.GET("/files/stream/*filepath", fileHandler.StreamFile)

		apiGroup.GET("/settings", settingsHandler.GetSettings)

		apiGroup.GET("/cookies/status", cookiesHandler.Status)
		apiGroup.POST("/cookies", cookiesHandler.Upload)
		apiGroup.DELETE("/cookies", cookiesHandler.Delete)
	}
}

// Serve runs the HTTP server until ctx is cancelled, then cancels the running
// job, closes every event stream and waits for the executor.
func Serve(ctx context.Context, s *Services) error {
	gin.SetMode(s.Config.Server.GinMode)

	srv := &http.Server{
		Addr:              s.Config.Addr(),
		Handler:           NewRouter(s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("ytmusicdl server starting", "addr", srv.Addr, "library", s.Config.Paths.LibraryDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	s.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.Executor.CancelAll()
	s.Hub.Shutdown()
	s.Bus.CloseAll()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.Logger.Warn("http shutdown incomplete", "err", err)
	}
	if err := s.Executor.Wait(shutdownCtx); err != nil {
		s.Logger.Warn("job did not stop before the shutdown deadline", "err", err)
	}
	return nil
}
