// Package pushhub implements the live push hub of spec section 4.C:
// per-subject connection sets for table/user/station channels, JSON
// frame fan-out, and dead-connection reaping. Grounded on the donor
// repo's nhooyr.io/websocket finality stream (accept options, per-write
// write timeout, channel-driven send loop).
package pushhub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/saborhub/ordercore/internal/events"
)

const writeTimeout = 10 * time.Second

// Conn is one subscriber's outbound frame channel; the hub writes into
// it and a per-connection goroutine drains it onto the socket.
type Conn struct {
	id     uuid.UUID
	send   chan events.Frame
	closed chan struct{}
	once   sync.Once
}

func newConn() *Conn {
	return &Conn{id: uuid.New(), send: make(chan events.Frame, 16), closed: make(chan struct{})}
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.closed) })
}

// Hub maintains the three subject→connection-set mappings of spec 4.C.
// One RWMutex guards all three maps; fan-out iterates over a copy of a
// subject's set so connect/disconnect never races a fan-out in progress.
type Hub struct {
	mu       sync.RWMutex
	table    map[uuid.UUID]map[*Conn]struct{}
	user     map[uuid.UUID]map[*Conn]struct{}
	station  map[uuid.UUID]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		table:   make(map[uuid.UUID]map[*Conn]struct{}),
		user:    make(map[uuid.UUID]map[*Conn]struct{}),
		station: make(map[uuid.UUID]map[*Conn]struct{}),
	}
}

func (h *Hub) setFor(ch events.Channel) map[uuid.UUID]map[*Conn]struct{} {
	switch ch {
	case events.ChannelTable:
		return h.table
	case events.ChannelUser:
		return h.user
	case events.ChannelStation:
		return h.station
	default:
		return nil
	}
}

// Subscribe registers a new connection for subjectID on channel ch and
// returns it; call Unsubscribe when the socket goes away.
func (h *Hub) Subscribe(ch events.Channel, subjectID uuid.UUID) *Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.setFor(ch)
	if set == nil {
		return nil
	}
	c := newConn()
	if set[subjectID] == nil {
		set[subjectID] = make(map[*Conn]struct{})
	}
	set[subjectID][c] = struct{}{}
	return c
}

// Unsubscribe removes c from subjectID's set and closes its channel.
func (h *Hub) Unsubscribe(ch events.Channel, subjectID uuid.UUID, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.setFor(ch)
	if set == nil {
		return
	}
	if conns, ok := set[subjectID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(set, subjectID)
		}
	}
	c.close()
}

func (h *Hub) evict(ch events.Channel, subjectID uuid.UUID, c *Conn) {
	h.Unsubscribe(ch, subjectID, c)
}

// Publish subscribes the event bus to this hub: call as an
// events.Subscriber. Routed events are fanned out to the matching
// subject's connection set; non-routed events are ignored.
func (h *Hub) Publish(e events.Event) {
	routed, ok := e.(events.Routed)
	if !ok {
		return
	}
	frame := events.ToFrame(e)
	h.mu.RLock()
	set := h.setFor(routed.Channel())
	var conns []*Conn
	if set != nil {
		for c := range set[routed.SubjectID()] {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.send <- frame:
		default:
			// Slow consumer: evict per spec 4.C back-pressure policy
			// instead of buffering unboundedly.
			h.evict(routed.Channel(), routed.SubjectID(), c)
		}
	}
}

// Serve writes every frame pushed to c onto the already-accepted
// websocket ws until the connection closes or a write fails, then
// unsubscribes c.
func (h *Hub) Serve(ctx context.Context, ws *websocket.Conn, ch events.Channel, subjectID uuid.UUID, c *Conn) {
	defer h.Unsubscribe(ch, subjectID, c)
	defer ws.Close(websocket.StatusNormalClosure, "done")

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case frame := <-c.send:
			if err := writeFrame(ctx, ws, frame); err != nil {
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, ws *websocket.Conn, frame events.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
