package handlers

import (
	"errors"
	"net/http"

	"ytmusicdl/services"
	"ytmusicdl/types"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

const codeInvalidCookies = "invalid_cookies"

// CookiesHandler manages the cookie file yt-dlp uses for private and age-restricted content
type CookiesHandler struct {
	store  *services.CookieStore
	logger *log.Logger
}

// NewCookiesHandler creates a new cookies handler
func NewCookiesHandler(store *services.CookieStore, logger *log.Logger) *CookiesHandler {
	return &CookiesHandler{store: store, logger: logger}
}

// Status reports whether a cookie file is present
func (h *CookiesHandler) Status(c *gin.Context) {
	n, err := h.store.Count()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, types.CookiesStatusResponse{
		Configured: h.store.Configured(),
		Cookies:    n,
	})
}

// Upload replaces the cookie file with a Netscape cookies.txt export
func (h *CookiesHandler) Upload(c *gin.Context) {
	var req types.CookiesUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Request body must be {\"content\": \"<cookies.txt>\"}")
		return
	}

	if err := h.store.Save(req.Content); err != nil {
		if errors.Is(err, services.ErrInvalidCookies) {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{
				Error:   codeInvalidCookies,
				Message: err.Error(),
			})
			return
		}
		respondError(c, h.logger, err)
		return
	}

	n, _ := h.store.Count()
	h.logger.Info("cookie file updated", "cookies", n)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "cookies": n})
}

// Delete removes the cookie file
func (h *CookiesHandler) Delete(c *gin.Context) {
	if err := h.store.Delete(); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("cookie file removed")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
