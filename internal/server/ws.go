package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	stateInterval = 200 * time.Millisecond
	writeTimeout  = time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// StateHub pushes State to websocket clients whenever it changes.
type StateHub struct {
	state    func() State
	interval time.Duration

	mu      sync.Mutex // guards clients and serialises writes
	clients map[*websocket.Conn]bool
	last    []byte // changeKey of the last push

	stop     chan struct{}
	stopOnce sync.Once
}

// NewStateHub creates a hub and starts its broadcaster.
func NewStateHub(state func() State, interval time.Duration) *StateHub {
	h := &StateHub{
		state:    state,
		interval: interval,
		clients:  make(map[*websocket.Conn]bool),
		stop:     make(chan struct{}),
	}
	go h.broadcast()
	return h
}

// ServeHTTP handles WebSocket upgrade requests. The current state is sent
// immediately, then on every change.
func (h *StateHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	st := h.state()
	msg, err := json.Marshal(st)
	if err != nil {
		return
	}
	key, err := changeKey(st)
	if err != nil {
		return
	}

	h.mu.Lock()
	select {
	case <-h.stop:
		h.mu.Unlock()
		return
	default:
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		h.mu.Unlock()
		return
	}
	h.clients[conn] = true
	if h.last == nil {
		h.last = key
	}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *StateHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops the broadcaster and disconnects every client.
func (h *StateHub) Close() {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.mu.Lock()
		for conn := range h.clients {
			conn.Close()
		}
		h.mu.Unlock()
	})
}

// broadcast sends state changes to all connected clients.
func (h *StateHub) broadcast() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
		}

		if h.Clients() == 0 {
			continue
		}

		st := h.state()
		msg, err := json.Marshal(st)
		if err != nil {
			continue
		}
		key, err := changeKey(st)
		if err != nil {
			continue
		}

		h.mu.Lock()
		if bytes.Equal(key, h.last) {
			h.mu.Unlock()
			continue
		}
		h.last = key
		for conn := range h.clients {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				conn.Close()
				delete(h.clients, conn)
			}
		}
		h.mu.Unlock()
	}
}

// changeKey encodes st without the fields that move every cycle.
func changeKey(st State) ([]byte, error) {
	st.Seq = 0
	st.Time = ""
	return json.Marshal(st)
}
