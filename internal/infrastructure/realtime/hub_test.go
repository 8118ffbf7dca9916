package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"workhub/internal/core/domain"
	"workhub/internal/infrastructure/monitoring"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHub() *Hub {
	return NewHub(monitoring.NewPrometheusCollector(prometheus.NewRegistry()), zap.NewNop().Sugar())
}

func newTestConn(id string, user domain.UserID, buffer int) *Connection {
	c := newConnection(id, buffer)
	c.userID = user
	return c
}

func rawEvent(kind domain.EventKind, payload string, rooms ...domain.Room) domain.Event {
	return domain.Event{Kind: kind, Rooms: rooms, Payload: json.RawMessage(payload), OccurredAt: time.Now()}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	h := newTestHub()
	c := newTestConn("c1", "u1", 4)

	h.Register(c, []domain.Room{domain.UserRoom("u1"), domain.WorkspaceRoom("w1")})
	assert.Equal(t, StateJoined, c.State())
	assert.Equal(t, 1, h.Connections())
	assert.Equal(t, 1, h.RoomSize(domain.WorkspaceRoom("w1")))
	assert.Equal(t, []domain.Room{"user:u1", "workspace:w1"}, h.RoomsOf(c))

	assert.True(t, h.Unregister(c))
	assert.False(t, h.Unregister(c))
	assert.Equal(t, 0, h.Connections())
	assert.Equal(t, 0, h.RoomSize(domain.WorkspaceRoom("w1")))
	assert.Empty(t, h.RoomsOf(c))
}

func TestHub_DeliverDeduplicatesAcrossRooms(t *testing.T) {
	h := newTestHub()
	c := newTestConn("c1", "u1", 4)
	other := newTestConn("c2", "u2", 4)
	h.Register(c, []domain.Room{domain.UserRoom("u1"), domain.WorkspaceRoom("w1")})
	h.Register(other, []domain.Room{domain.UserRoom("u2")})

	n, err := h.Deliver(rawEvent(domain.KindNotificationUpdated, `{"is_read":true}`, "user:u1", "workspace:w1"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, c.send, 1)
	assert.Len(t, other.send, 0)

	var frame domain.Frame
	require.NoError(t, json.Unmarshal(<-c.send, &frame))
	assert.Equal(t, "notification_updated", frame.Type)
	assert.JSONEq(t, `{"is_read":true}`, string(frame.Payload))
}

func TestHub_DeliverOnlyToJoinedAtDeliveryTime(t *testing.T) {
	h := newTestHub()
	c := newTestConn("c1", "u1", 4)

	n, err := h.Deliver(rawEvent(domain.KindNotificationCreated, `{}`, "user:u1"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	h.Register(c, []domain.Room{domain.UserRoom("u1")})
	h.Unregister(c)
	n, err = h.Deliver(rawEvent(domain.KindNotificationCreated, `{}`, "user:u1"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, c.send, 0)
}

func TestHub_FullQueueDropsConnection(t *testing.T) {
	h := newTestHub()
	slow := newTestConn("slow", "u1", 1)
	fast := newTestConn("fast", "u2", 8)
	h.Register(slow, []domain.Room{domain.UserRoom("u1"), domain.WorkspaceRoom("w1")})
	h.Register(fast, []domain.Room{domain.UserRoom("u2"), domain.WorkspaceRoom("w1")})

	ev := rawEvent(domain.EntityKind(domain.EntityTask, domain.ActionUpdated), `{"id":"t1"}`, "workspace:w1")
	n, err := h.Deliver(ev)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = h.Deliver(ev)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, StateDisconnected, slow.State())
	assert.True(t, slow.closed())
	assert.Equal(t, 1, h.Connections())
	assert.Equal(t, 1, h.RoomSize(domain.WorkspaceRoom("w1")))
	assert.Len(t, fast.send, 2)
}

func TestHub_JoinAndLeaveAllUserConnections(t *testing.T) {
	h := newTestHub()
	a := newTestConn("a", "u1", 4)
	b := newTestConn("b", "u1", 4)
	h.Register(a, []domain.Room{domain.UserRoom("u1")})
	h.Register(b, []domain.Room{domain.UserRoom("u1")})

	room := domain.WorkspaceRoom("w2")
	assert.Equal(t, 2, h.Join("u1", room))
	assert.Equal(t, 0, h.Join("u1", room))
	assert.Equal(t, 0, h.Join("nobody", room))
	assert.Equal(t, 2, h.RoomSize(room))

	assert.Equal(t, 2, h.Leave("u1", room))
	assert.Equal(t, 0, h.Leave("u1", room))
	assert.Equal(t, 0, h.RoomSize(room))
	assert.Equal(t, []domain.Room{"user:u1"}, h.RoomsOf(a))
}

func TestHub_CloseAll(t *testing.T) {
	h := newTestHub()
	a := newTestConn("a", "u1", 1)
	b := newTestConn("b", "u2", 1)
	h.Register(a, []domain.Room{domain.UserRoom("u1")})
	h.Register(b, []domain.Room{domain.UserRoom("u2")})

	h.CloseAll(1001, "bye")
	assert.Equal(t, 0, h.Connections())
	assert.True(t, a.closed())
	assert.True(t, b.closed())
	assert.Equal(t, 1001, a.closeCode)
}

func TestConnection_StateTransitions(t *testing.T) {
	c := newConnection("c", 1)
	assert.Equal(t, StateConnecting, c.State())

	c.touch()
	assert.Equal(t, StateConnecting, c.State())

	c.setState(StateJoined)
	c.touch()
	assert.Equal(t, StateActive, c.State())

	c.markIdleSince(time.Now().Add(-time.Hour))
	assert.Equal(t, StateActive, c.State())
	c.markIdleSince(time.Now().Add(time.Hour))
	assert.Equal(t, StateIdle, c.State())

	c.touch()
	assert.Equal(t, StateActive, c.State())

	c.close(1000, "")
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, "disconnected", c.State().String())
	assert.ErrorIs(t, c.enqueue([]byte("x")), errConnClosed)
}
