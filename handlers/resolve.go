package handlers

import (
	"net/http"
	"strings"

	"ytmusicdl/services"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// ResolveHandler previews what a URL would download without creating a job
type ResolveHandler struct {
	resolver services.AlbumResolver
	logger   *log.Logger
}

// NewResolveHandler creates a new resolve handler
func NewResolveHandler(resolver services.AlbumResolver, logger *log.Logger) *ResolveHandler {
	return &ResolveHandler{resolver: resolver, logger: logger}
}

type resolvedTrack struct {
	Number  int    `json:"number"`
	VideoID string `json:"videoId"`
	Title   string `json:"title"`
	Artist  string `json:"artist,omitempty"`
	URL     string `json:"url"`
}

// Resolve looks up the album behind ?url=
func (h *ResolveHandler) Resolve(c *gin.Context) {
	rawURL := strings.TrimSpace(c.Query("url"))
	if rawURL == "" {
		badRequest(c, "query parameter 'url' is required")
		return
	}

	album, err := h.resolver.Resolve(c.Request.Context(), rawURL)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	tracks := make([]resolvedTrack, 0, len(album.Tracks))
	for _, t := range album.Tracks {
		tracks = append(tracks, resolvedTrack{
			Number:  t.Number,
			VideoID: t.VideoID,
			Title:   t.Title,
			Artist:  t.Artist,
			URL:     t.URL,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"album":  album.Info,
		"tracks": tracks,
	})
}
