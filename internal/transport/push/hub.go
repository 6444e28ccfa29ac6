package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nudge/pkg/logx"
)

// Hub keeps the per-user websocket connection registry. One user may be
// connected from several devices; an event goes to all of them.
//
// The user→connection mapping is process-local. Running more than one
// nudged instance would need a shared subscription layer; see DESIGN.md.
type Hub struct {
	log      logx.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]map[*client]struct{} // userID -> clients
}

type event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func NewHub(log logx.Logger) *Hub {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy belongs to the fronting CRUD app, which also
			// authenticates the session before proxying the upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: map[string]map[*client]struct{}{},
	}
}

// ServeHTTP upgrades a connection for the user named in the user_id query
// parameter. Session authentication happens upstream of this engine.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logx.Err(err))
		return
	}
	c := newClient(userID, ws)
	h.add(c)
	h.log.Debug("client connected", logx.String("user", userID))

	go c.writePump()
	go func() {
		c.readPump()
		h.remove(c)
		h.log.Debug("client disconnected", logx.String("user", userID))
	}()
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	set, ok := h.conns[c.userID]
	if !ok {
		set = map[*client]struct{}{}
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if set, ok := h.conns[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.userID)
		}
	}
	h.mu.Unlock()
	c.close()
}

// SendToUser enqueues the event for every live connection of the user.
// A user with no connections is not an error; a full client queue drops
// the frame for that client only.
func (h *Hub) SendToUser(_ context.Context, userID, name string, payload any) error {
	frame, err := json.Marshal(event{Event: name, Payload: payload})
	if err != nil {
		return err
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.enqueue(frame) {
			h.log.Warn("client send queue full, dropping event",
				logx.String("user", userID), logx.String("event", name))
		}
	}
	return nil
}

// ConnectedUsers reports how many distinct users are connected.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close tears down every connection. Called on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*client
	for _, set := range h.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	h.conns = map[string]map[*client]struct{}{}
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)
