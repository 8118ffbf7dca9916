package realtime

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"workhub/internal/core/domain"
	"workhub/internal/infrastructure/monitoring"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub is the room index. A connection is visible to Deliver only after
// Register has placed it in every room it joins.
type Hub struct {
	mu    sync.RWMutex
	rooms map[domain.Room]map[*Connection]struct{}
	users map[domain.UserID]map[*Connection]struct{}

	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
}

func NewHub(metrics *monitoring.PrometheusCollector, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		rooms:   make(map[domain.Room]map[*Connection]struct{}),
		users:   make(map[domain.UserID]map[*Connection]struct{}),
		metrics: metrics,
		logger:  logger,
	}
}

func (h *Hub) Register(c *Connection, rooms []domain.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.rooms = make(map[domain.Room]struct{}, len(rooms))
	for _, room := range rooms {
		h.addLocked(c, room)
	}
	conns, ok := h.users[c.userID]
	if !ok {
		conns = make(map[*Connection]struct{})
		h.users[c.userID] = conns
	}
	conns[c] = struct{}{}
	c.registered = true
	c.setState(StateJoined)

	h.metrics.RecordConnectionOpened(len(c.rooms))
}

// Unregister removes c from every room. It reports false when c was not
// registered, so callers can tell who performed the removal.
func (h *Hub) Unregister(c *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !c.registered {
		return false
	}
	for room := range c.rooms {
		h.removeLocked(c, room)
	}
	if conns, ok := h.users[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.userID)
		}
	}
	c.registered = false

	h.metrics.RecordConnectionClosed(time.Since(c.openedAt))
	return true
}

// Join adds every live connection of userID to room and returns how many
// connections were added.
func (h *Hub) Join(userID domain.UserID, room domain.Room) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined := 0
	for c := range h.users[userID] {
		if h.addLocked(c, room) {
			joined++
		}
	}
	if joined > 0 {
		h.metrics.RecordRoomJoins(joined)
	}
	return joined
}

// Leave removes every live connection of userID from room.
func (h *Hub) Leave(userID domain.UserID, room domain.Room) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	left := 0
	for c := range h.users[userID] {
		if h.removeLocked(c, room) {
			left++
		}
	}
	return left
}

func (h *Hub) addLocked(c *Connection, room domain.Room) bool {
	if _, ok := c.rooms[room]; ok {
		return false
	}
	c.rooms[room] = struct{}{}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Connection]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	return true
}

func (h *Hub) removeLocked(c *Connection, room domain.Room) bool {
	if _, ok := c.rooms[room]; !ok {
		return false
	}
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	return true
}

// Deliver queues the event's frame once on every connection joined to any
// of its rooms and returns the number of connections it reached.
// Connections whose queue is full are dropped.
func (h *Hub) Deliver(ev domain.Event) (int, error) {
	data, err := json.Marshal(ev.Frame())
	if err != nil {
		return 0, fmt.Errorf("encode %s frame: %w", ev.Kind, err)
	}

	h.mu.RLock()
	targets := make(map[*Connection]struct{})
	for _, room := range ev.Rooms {
		for c := range h.rooms[room] {
			targets[c] = struct{}{}
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for c := range targets {
		switch err := c.enqueue(data); err {
		case nil:
			delivered++
		case errQueueFull:
			h.drop(c)
		}
	}
	return delivered, nil
}

func (h *Hub) drop(c *Connection) {
	if !h.Unregister(c) {
		return
	}
	c.close(websocket.CloseTryAgainLater, errQueueFull.Error())
	h.metrics.RecordConnectionDropped()
	h.logger.Warnw("dropping slow realtime connection",
		"conn_id", c.id,
		"user_id", c.userID,
		"queue", cap(c.send),
	)
}

// RoomsOf returns the rooms c is joined to, sorted.
func (h *Hub) RoomsOf(c *Connection) []domain.Room {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]domain.Room, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

func (h *Hub) RoomSize(room domain.Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, conns := range h.users {
		n += len(conns)
	}
	return n
}

// CloseAll unregisters and closes every connection.
func (h *Hub) CloseAll(code int, text string) {
	h.mu.RLock()
	all := make([]*Connection, 0)
	for _, conns := range h.users {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.Unregister(c)
		c.close(code, text)
	}
}
