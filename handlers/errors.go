package handlers

import (
	"errors"
	"net/http"

	"ytmusicdl/types"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// Error codes returned in ErrorResponse.Error
const (
	codeJobNotFound      = "job_not_found"
	codeJobConflict      = "job_conflict"
	codeInvalidState     = "invalid_state"
	codeInvalidRequest   = "invalid_request"
	codeInvalidURL       = "invalid_url"
	codePlaylistNotFound = "playlist_not_found"
	codeUpstream         = "upstream_error"
	codeInternal         = "internal_error"
)

// respondError maps service errors onto status codes and the shared error body
func respondError(c *gin.Context, logger *log.Logger, err error) {
	var admission *types.AdmissionError
	switch {
	case errors.As(err, &admission):
		c.JSON(http.StatusConflict, types.ErrorResponse{
			Error:       codeJobConflict,
			Message:     "Another job is already running",
			ActiveJobID: admission.ActiveJobID,
		})
	case errors.Is(err, types.ErrNotFound):
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   codeJobNotFound,
			Message: "Job not found",
			JobID:   c.Param("id"),
		})
	case errors.Is(err, types.ErrInvalidState):
		c.JSON(http.StatusConflict, types.ErrorResponse{
			Error:   codeInvalidState,
			Message: "Job is still active; cancel it first",
			JobID:   c.Param("id"),
		})
	case errors.Is(err, types.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, types.ErrorResponse{
			Error:   codeJobConflict,
			Message: "Another job is already running",
		})
	case errors.Is(err, types.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   codeInvalidURL,
			Message: types.PublicMessage(err),
		})
	case errors.Is(err, types.ErrPlaylistNotFound):
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   codePlaylistNotFound,
			Message: types.PublicMessage(err),
		})
	case errors.Is(err, types.ErrUpstreamAPI):
		logger.Warn("upstream request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusBadGateway, types.ErrorResponse{
			Error:   codeUpstream,
			Message: types.PublicMessage(err),
		})
	default:
		logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   codeInternal,
			Message: "Internal server error",
		})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, types.ErrorResponse{
		Error:   codeInvalidRequest,
		Message: message,
	})
}
