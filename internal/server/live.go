package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jcdickinson/ferrisnav/internal/registry"
	"github.com/jcdickinson/ferrisnav/internal/rpc"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 32
)

// hub fans updates out to websocket clients. It is the registry's consumer
// only while at least one client is connected.
type hub struct {
	updates *registry.Registry[rpc.Update]

	// membership serializes join/leave with Attach/Detach so the attached
	// state always matches whether clients exist.
	membership sync.Mutex

	mu      sync.Mutex
	clients map[*liveClient]struct{}
	done    chan struct{}
	closed  bool
}

type liveClient struct {
	send chan rpc.Update
}

func newHub(updates *registry.Registry[rpc.Update]) *hub {
	return &hub{
		updates: updates,
		clients: make(map[*liveClient]struct{}),
		done:    make(chan struct{}),
	}
}

// join registers a client; the first one attaches to the registry and so
// receives any update that was queued while nobody listened.
func (h *hub) join() (*liveClient, bool) {
	h.membership.Lock()
	defer h.membership.Unlock()

	c := &liveClient{send: make(chan rpc.Update, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, false
	}
	h.clients[c] = struct{}{}
	first := len(h.clients) == 1
	h.mu.Unlock()

	if first {
		h.updates.Attach(h.broadcast)
		slog.Debug("live: first client attached")
	}
	return c, true
}

func (h *hub) leave(c *liveClient) {
	h.membership.Lock()
	defer h.membership.Unlock()

	h.mu.Lock()
	delete(h.clients, c)
	last := len(h.clients) == 0
	h.mu.Unlock()

	if last {
		h.updates.Detach()
		slog.Debug("live: last client left, queueing updates")
	}
}

// broadcast declines u when no client is left, which happens when the last
// client leaves while a publish is in flight. The registry then queues u for
// the next client.
func (h *hub) broadcast(u rpc.Update) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return false
	}
	for c := range h.clients {
		select {
		case c.send <- u:
		default:
			slog.Warn("live: client too slow, dropping update", "path", u.Path)
		}
	}
	return true
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// close tells every connected client to hang up.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browsers on another port of the same host open the docs too.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("live: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c, ok := s.hub.join()
	if !ok {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		return
	}
	defer s.hub.leave(c)

	// Clients never send anything meaningful; reading detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case u := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(u); err != nil {
				slog.Debug("live: write failed", "error", err)
				return
			}
		case <-gone:
			return
		case <-s.hub.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}
