package handlers

import (
	"net/http"

	"ytmusicdl/config"

	"github.com/gin-gonic/gin"
)

// SettingsHandler exposes the effective configuration
type SettingsHandler struct {
	cfg *config.Config
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(cfg *config.Config) *SettingsHandler {
	return &SettingsHandler{cfg: cfg}
}

// GetSettings returns the loaded configuration. Secrets are tagged json:"-".
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"settings":         h.cfg,
		"supportedFormats": config.SupportedFormats,
	})
}
