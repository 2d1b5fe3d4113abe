package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPingInterval   = 30 * time.Second
	clientBufferSize = 64
)

// Event is one message pushed to streaming clients
type Event struct {
	Type    string      `json:"type"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload"`
}

type eventClient struct {
	conn *websocket.Conn
	send chan Event
}

// EventsHandler streams alarm events to WebSocket clients on /ws/events.
// A client that cannot keep up with the event rate is disconnected rather
// than allowed to block the hub.
type EventsHandler struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*eventClient]struct{}
}

// NewEventsHandler creates a new events handler
func NewEventsHandler() *EventsHandler {
	return &EventsHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from the UI origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*eventClient]struct{}),
	}
}

// SetupRoutes sets up WebSocket routes
func (h *EventsHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/events", h.handleWS)
}

// Broadcast sends an event to every connected client
func (h *EventsHandler) Broadcast(event string, payload interface{}) {
	msg := Event{
		Type:    event,
		Time:    time.Now(),
		Payload: payload,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Slow client, drop the event and let the write pump close it
			log.Debug().Str("event", event).Msg("dropping event for slow websocket client")
		}
	}
}

// ClientCount returns how many clients are currently connected
func (h *EventsHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *EventsHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := &eventClient{
		conn: conn,
		send: make(chan Event, clientBufferSize),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	log.Info().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	go h.writePump(client)
	h.readPump(client)
}

func (h *EventsHandler) writePump(client *eventClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client messages until disconnect. Incoming messages are
// ignored, the stream is one-way.
func (h *EventsHandler) readPump(client *eventClient) {
	defer h.removeClient(client)

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventsHandler) removeClient(client *eventClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	client.conn.Close()
}
