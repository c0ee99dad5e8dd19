package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/coffersTech/logalytics/internal/engine"
)

const maxStreamClients = 100

// AlertStream fans fired alerts out to websocket clients. Its Broadcast
// method satisfies engine.NotifyFunc.
type AlertStream struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*websocket.Conn]bool
	logger   *slog.Logger
}

func NewAlertStream(logger *slog.Logger) *AlertStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertStream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*websocket.Conn]bool),
		logger:  logger,
	}
}

// HandleWS upgrades the connection and registers the client.
func (as *AlertStream) HandleWS(w http.ResponseWriter, r *http.Request) {
	as.mu.Lock()
	if len(as.clients) >= maxStreamClients {
		as.mu.Unlock()
		http.Error(w, "Too many stream clients", http.StatusServiceUnavailable)
		return
	}
	as.mu.Unlock()

	conn, err := as.upgrader.Upgrade(w, r, nil)
	if err != nil {
		as.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	as.mu.Lock()
	as.clients[conn] = true
	as.mu.Unlock()

	// Read pump: drains control frames and detects disconnect.
	go func() {
		defer as.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends the alert to every connected client, dropping clients
// whose writes fail.
func (as *AlertStream) Broadcast(alert engine.Alert) error {
	as.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(as.clients))
	for conn := range as.clients {
		conns = append(conns, conn)
	}
	as.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(alert); err != nil {
			as.logger.Warn("dropping stream client", "error", err)
			as.drop(conn)
		}
	}
	return nil
}

// Close disconnects every client.
func (as *AlertStream) Close() {
	as.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(as.clients))
	for conn := range as.clients {
		conns = append(conns, conn)
	}
	as.clients = make(map[*websocket.Conn]bool)
	as.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (as *AlertStream) drop(conn *websocket.Conn) {
	as.mu.Lock()
	delete(as.clients, conn)
	as.mu.Unlock()
	conn.Close()
}
