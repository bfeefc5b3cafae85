package handlers

import (
	"net/http"
	"time"

	"ytmusicdl/services"
	"ytmusicdl/websocket"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoints
var Version = "dev"

// HealthHandler handles health check endpoints
type HealthHandler struct {
	store      *services.JobStore
	bus        *services.Broadcaster
	hub        *websocket.Hub
	libraryDir string
	started    time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store *services.JobStore, bus *services.Broadcaster, hub *websocket.Hub, libraryDir string) *HealthHandler {
	return &HealthHandler{
		store:      store,
		bus:        bus,
		hub:        hub,
		libraryDir: libraryDir,
		started:    time.Now(),
	}
}

// HealthCheck returns the health status of the service
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "ytmusicdl",
		"version":   Version,
		"timestamp": time.Now().Unix(),
	})
}

// APIStatus reports the coordinator state
func (h *HealthHandler) APIStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":          "ytmusicdl API is running",
		"libraryDir":       h.libraryDir,
		"activeJobId":      h.store.ActiveID(),
		"jobs":             len(h.store.List()),
		"subscribers":      h.bus.Count(),
		"websocketClients": h.hub.Count(),
		"uptimeSeconds":    int64(time.Since(h.started).Seconds()),
	})
}
