package handlers

import (
	"net/http"
	"strconv"

	"ytmusicdl/services"
	"ytmusicdl/types"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

const defaultLibraryLimit = 100

// LibraryHandler lists tracks recorded in the library index
type LibraryHandler struct {
	index  *services.LibraryIndex
	logger *log.Logger
}

// NewLibraryHandler creates a new library handler. index may be nil when indexing is disabled.
func NewLibraryHandler(index *services.LibraryIndex, logger *log.Logger) *LibraryHandler {
	return &LibraryHandler{index: index, logger: logger}
}

// ListTracks returns the most recent imports, or the imports of one job with ?job=<id>
func (h *LibraryHandler) ListTracks(c *gin.Context) {
	if h.index == nil {
		c.JSON(http.StatusOK, gin.H{"tracks": []types.LibraryTrack{}, "count": 0})
		return
	}

	var (
		tracks []types.LibraryTrack
		err    error
	)
	if jobID := c.Query("job"); jobID != "" {
		tracks, err = h.index.ByJob(c.Request.Context(), jobID)
	} else {
		limit := defaultLibraryLimit
		if v := c.Query("limit"); v != "" {
			n, convErr := strconv.Atoi(v)
			if convErr != nil || n < 1 {
				badRequest(c, "limit must be a positive integer")
				return
			}
			limit = n
		}
		tracks, err = h.index.List(c.Request.Context(), limit)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if tracks == nil {
		tracks = []types.LibraryTrack{}
	}

	c.JSON(http.StatusOK, gin.H{
		"tracks": tracks,
		"count":  len(tracks),
	})
}
