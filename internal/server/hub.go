// Realtime delivery hub: fans appended events out to websocket watchers.
// Delivery is push-based, unordered, and at-least-once; clients reconcile
// through their idempotent append and order-independent projection, so a
// dropped or duplicated frame is recovered by the next pull.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/meshline/syncd/pkg/types"
)

// subscriber is one websocket watcher. Frames are dropped when the send
// buffer is full rather than blocking the hub; the pull loop recovers.
type subscriber struct {
	send  chan []byte
	owner string
	admin bool
}

// frame is one broadcast unit: the serialized events plus the owner scope
// they belong to.
type frame struct {
	owner string
	data  []byte
}

// Hub distributes appended events to subscribers. A subscriber receives a
// frame when it is privileged or when the frame's owner matches its own.
type Hub struct {
	subscribe   chan *subscriber
	unsubscribe chan *subscriber
	broadcast   chan frame
	stopped     chan struct{}
	log         *slog.Logger
}

// NewHub creates a hub; call Run to start distribution.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribe:   make(chan *subscriber),
		unsubscribe: make(chan *subscriber),
		broadcast:   make(chan frame, 64),
		stopped:     make(chan struct{}),
		log:         logger,
	}
}

// Run owns the subscriber set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	subs := make(map[*subscriber]bool)
	for {
		select {
		case sub := <-h.subscribe:
			subs[sub] = true
		case sub := <-h.unsubscribe:
			if subs[sub] {
				delete(subs, sub)
				close(sub.send)
			}
		case fr := <-h.broadcast:
			for sub := range subs {
				if !sub.admin && sub.owner != fr.owner {
					continue
				}
				select {
				case sub.send <- fr.data:
				default:
					h.log.Warn("dropping frame for slow watcher")
				}
			}
		case <-ctx.Done():
			for sub := range subs {
				close(sub.send)
			}
			return
		}
	}
}

// Publish queues events for delivery to matching watchers. It never blocks
// the append path: when the hub is saturated the frame is dropped.
func (h *Hub) Publish(owner string, events []*types.Event) {
	data, err := json.Marshal(eventsEnvelope{Events: events})
	if err != nil {
		h.log.Error("marshal broadcast", "err", err)
		return
	}
	select {
	case h.broadcast <- frame{owner: owner, data: data}:
	default:
		h.log.Warn("hub saturated, dropping broadcast")
	}
}

// add registers a subscriber. Returns false when the hub is no longer
// running.
func (h *Hub) add(sub *subscriber) bool {
	select {
	case h.subscribe <- sub:
		return true
	case <-h.stopped:
		return false
	}
}

// remove deregisters a subscriber. A stopped hub has already closed every
// send channel.
func (h *Hub) remove(sub *subscriber) {
	select {
	case h.unsubscribe <- sub:
	case <-h.stopped:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWatch upgrades the connection and streams event frames until the
// client disconnects.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	sub := &subscriber{
		send:  make(chan []byte, 16),
		owner: caller.owner,
		admin: caller.admin,
	}
	if !s.hub.add(sub) {
		return
	}
	defer s.hub.remove(sub)

	// Reader goroutine: drain control frames and detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data, ok := <-sub.send:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
