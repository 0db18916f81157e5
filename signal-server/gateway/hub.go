package gateway

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// frame is the wire envelope for one named event.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// marshalFrame encodes a named event and its payload into a single wire
// frame.
func marshalFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "could not marshal %s payload", event)
	}
	return json.Marshal(&frame{Event: event, Data: data})
}

// client is one endpoint's connection and its order-preserving outbound
// queue. The write pump is the only goroutine that touches conn for writes.
type client struct {
	id   string
	ip   string
	conn *websocket.Conn
	send chan []byte
}

// Hub owns the live endpoint connections. It is the outbound half of the
// transport: the signaling core emits events through it without knowing
// anything about sockets.
type Hub struct {
	lock    sync.RWMutex
	clients map[string]*client
}

// NewHub instantiates an empty connection table.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

func (h *Hub) add(c *client) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) remove(id string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.clients, id)
}

func (h *Hub) get(id string) (*client, bool) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// snapshot returns the current connections for bulk operations such as
// shutdown.
func (h *Hub) snapshot() []*client {
	h.lock.RLock()
	defer h.lock.RUnlock()
	out := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// NumClients returns the number of live connections.
func (h *Hub) NumClients() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// Emit queues a named event for one endpoint. Delivery is at-most-once:
// events for unknown endpoints vanish, and a consumer that cannot drain its
// queue loses the event rather than stalling the server.
func (h *Hub) Emit(endpointID, event string, payload interface{}) {
	c, ok := h.get(endpointID)
	if !ok {
		return
	}
	raw, err := marshalFrame(event, payload)
	if err != nil {
		log.WithError(err).WithField("event", event).Error("Could not encode outbound event")
		return
	}
	select {
	case c.send <- raw:
	default:
		framesDroppedTotal.WithLabelValues("slow_consumer").Inc()
		log.WithFields(logrus.Fields{
			"endpoint": endpointID,
			"event":    event,
		}).Debug("Dropping event for slow consumer")
	}
}
