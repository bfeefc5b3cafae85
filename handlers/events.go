package handlers

import (
	"io"
	"net/http"
	"time"

	"ytmusicdl/services"
	"ytmusicdl/types"
	"ytmusicdl/websocket"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

const keepAliveInterval = 15 * time.Second

// EventHandler serves the live job feed over SSE and WebSocket
type EventHandler struct {
	bus    *services.Broadcaster
	store  *services.JobStore
	hub    *websocket.Hub
	logger *log.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(bus *services.Broadcaster, store *services.JobStore, hub *websocket.Hub, logger *log.Logger) *EventHandler {
	return &EventHandler{
		bus:    bus,
		store:  store,
		hub:    hub,
		logger: logger,
	}
}

func sseHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}

// StreamEvents pushes the snapshot and then every job event as SSE.
// The SSE event name is the event type.
func (h *EventHandler) StreamEvents(c *gin.Context) {
	sub := h.bus.Subscribe()
	defer sub.Close()

	sseHeaders(c)
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	events := sub.Events()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"timestamp": time.Now().Unix()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// StreamJob follows a single job: its current state as a "job" event, then
// one per change. A terminal state is repeated as "complete" and ends the stream.
func (h *EventHandler) StreamJob(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.store.Get(id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	sub := h.bus.Subscribe()
	defer sub.Close()

	sseHeaders(c)
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	events := sub.Events()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			ev, keep := services.FilterJobEvent(ev, id)
			if !keep {
				return true
			}

			var job *types.Job
			switch ev.Type {
			case types.EventSnapshot:
				if len(ev.Jobs) == 0 {
					c.SSEvent("deleted", gin.H{"jobId": id})
					return false
				}
				job = &ev.Jobs[0]
			case types.EventCreated, types.EventUpdated:
				job = ev.Job
			case types.EventDeleted:
				c.SSEvent("deleted", gin.H{"jobId": id})
				return false
			case types.EventCleared:
				if _, err := h.store.Get(id); err != nil {
					c.SSEvent("deleted", gin.H{"jobId": id})
					return false
				}
				return true
			default:
				return true
			}

			c.SSEvent("job", job)
			if job.Status.IsTerminal() {
				c.SSEvent("complete", job)
				return false
			}
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"timestamp": time.Now().Unix()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// StreamLogs pushes the log history and then new log lines as SSE
func (h *EventHandler) StreamLogs(c *gin.Context) {
	sub := h.bus.Subscribe()
	defer sub.Close()

	sseHeaders(c)
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	events := sub.Events()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			switch ev.Type {
			case types.EventSnapshot:
				for _, line := range ev.Lines {
					c.SSEvent("log", line)
				}
			case types.EventLog:
				c.SSEvent("log", ev.Line)
			}
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// ServeWebSocket upgrades to the WebSocket feed. ?job=<id> narrows it to one job.
func (h *EventHandler) ServeWebSocket(c *gin.Context) {
	if err := h.hub.Serve(c.Writer, c.Request, c.Query("job")); err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
}

// History returns the recent log lines
func (h *EventHandler) History(c *gin.Context) {
	lines := h.bus.LogHistory()
	c.JSON(http.StatusOK, gin.H{
		"lines": lines,
		"count": len(lines),
	})
}
