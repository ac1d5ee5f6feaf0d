package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

const (
	hubClientBuffer = 64
	hubWriteTimeout = 10 * time.Second
)

// Hub broadcasts events to websocket subscribers. It is a live view, not a
// durable sink: Emit never fails, and a subscriber that falls more than
// hubClientBuffer events behind is disconnected.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
	addr string
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*hubClient]struct{})}
}

// ServeHTTP upgrades the request and streams events until the subscriber
// goes away or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)

		return
	}

	c := &hubClient{conn: conn, send: make(chan []byte, hubClientBuffer), addr: r.RemoteAddr}
	if !h.add(c) {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}

	h.logger.Info("subscriber connected", slog.String("remote", c.addr))

	// Subscribers never send; CloseRead handles control frames and cancels
	// ctx once the peer disconnects.
	ctx := conn.CloseRead(r.Context())
	h.writeLoop(ctx, c)
	h.remove(c)

	h.logger.Info("subscriber disconnected", slog.String("remote", c.addr))
}

func (h *Hub) writeLoop(ctx context.Context, c *hubClient) {
	for {
		select {
		case <-ctx.Done():
			c.conn.Close(websocket.StatusNormalClosure, "")

			return
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusPolicyViolation, "subscriber too slow or hub closed")
				return
			}

			wctx, cancel := context.WithTimeout(ctx, hubWriteTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			cancel()

			if err != nil {
				h.logger.Debug("subscriber write failed",
					slog.String("remote", c.addr),
					slog.String("error", err.Error()),
				)

				return
			}
		}
	}
}

func (h *Hub) add(c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.clients[c] = struct{}{}

	return true
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Emit implements poll.Sink.
func (h *Hub) Emit(_ context.Context, ev poll.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("emit: encoding event %s: %w", ev.ID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow subscriber", slog.String("remote", c.addr))
			delete(h.clients, c)
			close(c.send)
		}
	}

	return nil
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}

	return nil
}
