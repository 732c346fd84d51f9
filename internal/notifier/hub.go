package notifier

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"scanhub/internal/models"
	"scanhub/pkg/logger"
)

const (
	EventConnection      = "connection"
	EventScanStarted     = "scan_started"
	EventScanUpdate      = "scan_update"
	EventScanCompleted   = "scan_completed"
	EventScanDeleted     = "scan_deleted"
	EventAllScansDeleted = "all_scans_deleted"
)

// CompletionSummary rides along with scan_completed events.
type CompletionSummary struct {
	Repository           string `json:"repository"`
	TotalVulnerabilities int    `json:"total_vulnerabilities"`
	DurationSeconds      int    `json:"duration_seconds,omitempty"`
	FilesScanned         int    `json:"files_scanned,omitempty"`
}

// Event is one message pushed to every connected client.
type Event struct {
	Type         string             `json:"type"`
	Scan         *models.Scan       `json:"scan,omitempty"`
	ScanID       string             `json:"scan_id,omitempty"`
	Repository   string             `json:"repository,omitempty"`
	DeletedCount int64              `json:"deleted_count,omitempty"`
	Summary      *CompletionSummary `json:"summary,omitempty"`
	Message      string             `json:"message,omitempty"`
	Timestamp    string             `json:"timestamp"`
}

// Broadcaster is the fan-out surface the service layer depends on.
type Broadcaster interface {
	Broadcast(event Event)
}

const writeTimeout = 5 * time.Second

// Hub owns the set of live WebSocket connections. Delivery is best-effort,
// at-most-once: a client whose write fails is closed and removed, and must
// resynchronize through the list endpoint after reconnecting.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewLogger(logrus.InfoLevel)
	}
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The REST surface is already CORS-open; the push channel follows.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log,
	}
}

// ServeWS upgrades an HTTP request and keeps the connection registered until
// the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	// The greeting goes out before the connection is registered. Once a
	// connection is visible to Broadcast every write to it must happen under
	// the hub lock; gorilla allows only one concurrent writer per connection.
	greeting := Event{
		Type:      EventConnection,
		Message:   "WebSocket connection established",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.writeEvent(conn, greeting); err != nil {
		conn.Close()
		return
	}

	h.register(conn)
	h.logger.WithFields(logger.Fields{"clients": h.ClientCount()}).Info("WebSocket client connected")

	// Clients never send application messages; the read loop only detects
	// disconnects.
	go func() {
		defer h.unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends the event to every connected client. Slow or broken clients
// are dropped rather than awaited.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal broadcast event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.logger.WithFields(logger.Fields{
		"type":    event.Type,
		"clients": len(h.clients),
	}).Debug("Broadcasting event")

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.WithError(err).Warn("Dropping WebSocket client after failed write")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *Hub) writeEvent(conn *websocket.Conn, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
