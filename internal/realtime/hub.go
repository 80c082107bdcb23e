// Package realtime fans events out to every connected websocket subscriber. Delivery
// is at-most-once: there is no per-client filtering, no acknowledgement and no replay.
package realtime

import (
	"context"
	"net/http"
	"sync"

	"github.com/ButyrinIA/forum/internal/events"
	"github.com/ButyrinIA/forum/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const DefaultSendBuffer = 256

// Hub implements events.Publisher over websocket connections.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool
	pumps   conc.WaitGroup

	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *zap.Logger
	metrics    *metrics.Collector
}

var _ events.Publisher = (*Hub)(nil)

// NewHub returns a hub whose clients each queue up to sendBuffer frames before they
// are dropped. collector may be nil.
func NewHub(logger *zap.Logger, collector *metrics.Collector, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sendBuffer: sendBuffer,
		logger:     logger.Named("hub"),
		metrics:    collector,
	}
}

func (h *Hub) Publish(ctx context.Context, event events.Event) error {
	data, err := events.Encode(event)
	if err != nil {
		return err
	}
	delivered := h.Broadcast(data)
	h.logger.Debug("event broadcast", zap.String("event", event.Name), zap.Int("clients", delivered))
	return nil
}

// Broadcast queues an encoded envelope to every client and returns how many accepted
// it. A client whose queue is full is disconnected.
func (h *Hub) Broadcast(data []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for c := range h.clients {
		select {
		case c.send <- data:
			delivered++
		default:
			h.logger.Warn("dropping slow client", zap.String("connectionID", c.id))
			h.detach(c)
			if h.metrics != nil {
				h.metrics.DroppedClients.Inc()
			}
		}
	}
	if h.metrics != nil {
		h.metrics.Deliveries.Add(float64(delivered))
	}
	return delivered
}

// ServeHTTP upgrades the request and subscribes the connection to every event.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("upgrade failed", zap.Error(err), zap.String("remoteAddr", r.RemoteAddr))
		return
	}

	c := newClient(h, conn, h.sendBuffer)
	if !h.attach(c) {
		conn.Close()
		return
	}
	c.logger.Info("client connected", zap.String("remoteAddr", r.RemoteAddr))
}

func (h *Hub) attach(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.pumps.Go(c.writePump)
	h.pumps.Go(c.readPump)
	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
	}
	return true
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.detach(c) {
		c.logger.Info("client disconnected")
	}
}

// detach must be called with mu held. It reports whether c was still attached.
func (h *Hub) detach(c *Client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	if h.metrics != nil {
		h.metrics.ActiveConnections.Dec()
	}
	return true
}

// Count returns the number of attached clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client, rejects new ones and waits for all pumps to stop.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		h.detach(c)
	}
	h.mu.Unlock()

	h.pumps.Wait()
	h.logger.Info("hub closed")
	return nil
}
