// Package realtime fans conversation events out to WebSocket
// subscribers.
package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Frame is what subscribers receive.
type Frame struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversation_id"`
	Data           any    `json:"data,omitempty"`
}

// Hub keeps one room per conversation.
type Hub struct {
	mu    sync.RWMutex
	rooms map[int64]map[string]*Conn

	Upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[int64]map[string]*Conn),
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Serve upgrades the request and streams conversationID's events to it
// until the client disconnects. Authorization is the caller's job.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, conversationID, userID int64) error {
	ws, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	conn := newConn(userID, ws)
	h.join(conversationID, conn)
	go conn.writeLoop()

	if payload, err := json.Marshal(Frame{Type: "connected", ConversationID: conversationID}); err == nil {
		_ = conn.Send(payload)
	}
	conn.readLoop()

	h.leave(conversationID, conn)
	conn.Close(websocket.CloseNormalClosure, "session closed")
	return nil
}

// Publish sends an event to every subscriber of conversationID and
// returns how many accepted it.
func (h *Hub) Publish(conversationID int64, event string, data any) int {
	payload, err := json.Marshal(Frame{Type: event, ConversationID: conversationID, Data: data})
	if err != nil {
		slog.Error("realtime: encode frame", "type", event, "err", err)
		return 0
	}
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[conversationID]))
	for _, c := range h.rooms[conversationID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if c.Send(payload) == nil {
			delivered++
		}
	}
	return delivered
}

// Subscribers reports the number of live connections on a conversation.
func (h *Hub) Subscribers(conversationID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Close disconnects everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Conn
	for _, room := range h.rooms {
		for _, c := range room {
			all = append(all, c)
		}
	}
	h.rooms = make(map[int64]map[string]*Conn)
	h.mu.Unlock()
	for _, c := range all {
		c.Close(websocket.CloseGoingAway, "server shutdown")
	}
}

func (h *Hub) join(conversationID int64, c *Conn) {
	h.mu.Lock()
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[string]*Conn)
		h.rooms[conversationID] = room
	}
	room[c.ID] = c
	h.mu.Unlock()
}

func (h *Hub) leave(conversationID int64, c *Conn) {
	h.mu.Lock()
	if room := h.rooms[conversationID]; room != nil {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	h.mu.Unlock()
}
