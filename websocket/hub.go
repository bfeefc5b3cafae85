package websocket

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"ytmusicdl/services"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Hub tracks the connected WebSocket clients of the job event feed
type Hub struct {
	bus      *services.Broadcaster
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
}

// NewHub creates a hub feeding clients from bus. allowedOrigins may contain "*".
func NewHub(bus *services.Broadcaster, logger *log.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		bus:     bus,
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// originChecker accepts same-host requests and the configured origins
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// Serve upgrades the request and streams events until either side goes away.
// A non-empty jobID restricts the feed to that job.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, jobID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := newClient(h, conn, h.bus.Subscribe(), jobID)
	if !h.register(client) {
		client.sub.Close()
		conn.Close()
		return nil
	}

	client.StartPumps()
	return nil
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Debug("websocket client connected", "job", c.filterLabel(), "clients", len(h.clients))
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.logger.Debug("websocket client disconnected", "job", c.filterLabel(), "clients", len(h.clients))
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown ends every client's subscription; their write pumps send a close frame and exit
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.sub.Close()
	}
}
