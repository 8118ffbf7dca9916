package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"workhub/internal/core/domain"

	"github.com/gorilla/websocket"
)

var (
	errQueueFull  = errors.New("send queue full")
	errConnClosed = errors.New("connection closed")
)

// ConnState tracks a connection through its lifecycle:
// Connecting → Authenticating → Joined → (Active ⇄ Idle) → Disconnected.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticating
	StateJoined
	StateActive
	StateIdle
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Connection is one authenticated websocket client. Only the write pump
// writes data frames to ws.
type Connection struct {
	id       string
	userID   domain.UserID
	ws       *websocket.Conn
	openedAt time.Time

	send chan []byte
	done chan struct{}

	// guarded by Hub.mu
	rooms      map[domain.Room]struct{}
	registered bool

	state      atomic.Int32
	lastActive atomic.Int64

	closeOnce sync.Once
	closeCode int
	closeText string
}

func newConnection(id string, buffer int) *Connection {
	if buffer <= 0 {
		buffer = 1
	}
	c := &Connection{
		id:       id,
		openedAt: time.Now(),
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
	c.setState(StateConnecting)
	return c
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) UserID() domain.UserID {
	return c.userID
}

func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Connection) setState(s ConnState) {
	c.state.Store(int32(s))
}

// touch marks traffic on the connection.
func (c *Connection) touch() {
	c.lastActive.Store(time.Now().UnixNano())
	for {
		cur := c.State()
		if cur != StateJoined && cur != StateIdle {
			return
		}
		if c.state.CompareAndSwap(int32(cur), int32(StateActive)) {
			return
		}
	}
}

// markIdleSince moves an active connection to Idle when it saw no traffic
// after cutoff.
func (c *Connection) markIdleSince(cutoff time.Time) {
	if c.lastActive.Load() >= cutoff.UnixNano() {
		return
	}
	c.state.CompareAndSwap(int32(StateActive), int32(StateIdle))
}

// enqueue never blocks.
func (c *Connection) enqueue(msg []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return errQueueFull
	}
}

// close stops both pumps. The first call decides the close frame.
func (c *Connection) close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		c.setState(StateDisconnected)
		close(c.done)
		if c.ws == nil {
			return
		}
		// Unblocks the reader; the writer may still be sending the close frame.
		_ = c.ws.SetReadDeadline(time.Now())
	})
}

func (c *Connection) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Connection) writePump(cfg Config) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
			c.touch()

		case <-ticker.C:
			c.markIdleSince(time.Now().Add(-cfg.PingInterval))
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}

		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeText),
				time.Now().Add(cfg.WriteTimeout))
			return
		}
	}
}

// readPump consumes inbound frames until the peer goes away. Clients do not
// send commands; reads only drive pong handling and liveness.
func (c *Connection) readPump(cfg Config) error {
	if cfg.MaxMessageSize > 0 {
		c.ws.SetReadLimit(cfg.MaxMessageSize)
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		return c.ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return err
		}
		if c.closed() {
			return errConnClosed
		}
		c.touch()
		_ = c.ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	}
}
