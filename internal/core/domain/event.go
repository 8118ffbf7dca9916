package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type EventKind string

const (
	KindNotificationCreated EventKind = "notification_created"
	KindNotificationUpdated EventKind = "notification_updated"
	KindMemberAdded         EventKind = "workspace_member_added"
	KindMemberRemoved       EventKind = "workspace_member_removed"
)

type EntityType string

const (
	EntityProject    EntityType = "project"
	EntitySection    EntityType = "section"
	EntityTask       EntityType = "task"
	EntityComment    EntityType = "comment"
	EntityAttachment EntityType = "attachment"
)

type EntityAction string

const (
	ActionCreated   EntityAction = "created"
	ActionUpdated   EntityAction = "updated"
	ActionDeleted   EntityAction = "deleted"
	ActionMoved     EntityAction = "moved"
	ActionReordered EntityAction = "reordered"
)

var (
	entityTypes   = []EntityType{EntityProject, EntitySection, EntityTask, EntityComment, EntityAttachment}
	entityActions = []EntityAction{ActionCreated, ActionUpdated, ActionDeleted, ActionMoved, ActionReordered}
)

// EntityKind builds the lifecycle kind, e.g. "task_moved".
func EntityKind(entity EntityType, action EntityAction) EventKind {
	return EventKind(string(entity) + "_" + string(action))
}

// ParseEntityKind splits an entity lifecycle kind into its parts.
func ParseEntityKind(kind EventKind) (EntityType, EntityAction, bool) {
	for _, e := range entityTypes {
		prefix := string(e) + "_"
		if !strings.HasPrefix(string(kind), prefix) {
			continue
		}
		rest := EntityAction(strings.TrimPrefix(string(kind), prefix))
		for _, a := range entityActions {
			if rest == a {
				return e, a, true
			}
		}
	}
	return "", "", false
}

func (k EventKind) Known() bool {
	switch k {
	case KindNotificationCreated, KindNotificationUpdated, KindMemberAdded, KindMemberRemoved:
		return true
	}
	_, _, ok := ParseEntityKind(k)
	return ok
}

// Event is a server-originated change addressed to one or more rooms.
type Event struct {
	Kind       EventKind       `json:"kind"`
	Rooms      []Room          `json:"rooms"`
	Payload    json.RawMessage `json:"payload"`
	ActorID    UserID          `json:"actor_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Frame is what realtime clients receive.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (e Event) Frame() Frame {
	return Frame{Type: string(e.Kind), Payload: e.Payload}
}

func (e Event) Validate() error {
	if !e.Kind.Known() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	if len(e.Rooms) == 0 {
		return fmt.Errorf("%w: %s has no rooms", ErrInvalidEvent, e.Kind)
	}
	for _, r := range e.Rooms {
		if _, err := ParseRoom(string(r)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
	}
	if len(e.Payload) == 0 || !json.Valid(e.Payload) {
		return fmt.Errorf("%w: %s payload is not valid json", ErrInvalidEvent, e.Kind)
	}
	return nil
}

// Notification is the full object carried by notification_created.
type Notification struct {
	ID         string     `json:"id"`
	UserID     UserID     `json:"user_id"`
	ActorID    UserID     `json:"actor_id,omitempty"`
	Type       string     `json:"type"`
	EntityType EntityType `json:"entity_type,omitempty"`
	EntityID   string     `json:"entity_id,omitempty"`
	Message    string     `json:"message"`
	IsRead     bool       `json:"is_read"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NotificationUpdate is the notification_updated payload.
type NotificationUpdate struct {
	NotificationID string `json:"notification_id,omitempty"`
	IsRead         bool   `json:"is_read"`
	AllRead        bool   `json:"all_read,omitempty"`
}

// MemberChange is the payload of membership events.
type MemberChange struct {
	WorkspaceID WorkspaceID `json:"workspace_id"`
	UserID      UserID      `json:"user_id"`
	Role        Role        `json:"role,omitempty"`
	JoinedAt    *time.Time  `json:"joined_at,omitempty"`
}

func newEvent(kind EventKind, payload any, actor UserID, rooms ...Room) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	ev := Event{
		Kind:       kind,
		Rooms:      rooms,
		Payload:    raw,
		ActorID:    actor,
		OccurredAt: time.Now().UTC(),
	}
	return ev, ev.Validate()
}

func NotificationCreated(n Notification) (Event, error) {
	return newEvent(KindNotificationCreated, n, n.ActorID, UserRoom(n.UserID))
}

func NotificationUpdated(userID UserID, notificationID string, isRead bool) (Event, error) {
	return newEvent(KindNotificationUpdated, NotificationUpdate{
		NotificationID: notificationID,
		IsRead:         isRead,
	}, userID, UserRoom(userID))
}

func NotificationsAllRead(userID UserID) (Event, error) {
	return newEvent(KindNotificationUpdated, NotificationUpdate{IsRead: true, AllRead: true}, userID, UserRoom(userID))
}

// EntityChanged addresses a lifecycle event to the workspace room; entity is the object itself.
func EntityChanged(entity EntityType, action EntityAction, workspaceID WorkspaceID, actor UserID, object any) (Event, error) {
	return newEvent(EntityKind(entity, action), object, actor, WorkspaceRoom(workspaceID))
}

func MemberAdded(m Membership, actor UserID) (Event, error) {
	joined := m.JoinedAt
	return newEvent(KindMemberAdded, MemberChange{
		WorkspaceID: m.WorkspaceID,
		UserID:      m.UserID,
		Role:        m.Role,
		JoinedAt:    &joined,
	}, actor, WorkspaceRoom(m.WorkspaceID))
}

// MemberRemoved also targets the removed user's room so their own
// connections are told after they leave the workspace room.
func MemberRemoved(workspaceID WorkspaceID, userID, actor UserID) (Event, error) {
	return newEvent(KindMemberRemoved, MemberChange{
		WorkspaceID: workspaceID,
		UserID:      userID,
	}, actor, WorkspaceRoom(workspaceID), UserRoom(userID))
}
