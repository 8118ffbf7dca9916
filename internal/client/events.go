package client

import (
	"encoding/json"
	"errors"
	"fmt"

	"workhub/internal/core/domain"
)

var ErrMalformedFrame = errors.New("malformed realtime frame")

// Event is a realtime frame decoded into one of the variants below.
type Event interface {
	FrameType() string
}

// Connected is the first frame of every connection.
type Connected struct {
	UserID domain.UserID `json:"user_id"`
	Rooms  []domain.Room `json:"rooms"`
}

type NotificationCreated struct {
	Notification domain.Notification
}

type NotificationUpdated struct {
	domain.NotificationUpdate
}

// EntityEvent carries the lifecycle of a project, section, task, comment or
// attachment. Object is the entity as the server rendered it.
type EntityEvent struct {
	Entity domain.EntityType
	Action domain.EntityAction
	Object json.RawMessage
}

type MemberEvent struct {
	Kind   domain.EventKind
	Change domain.MemberChange
}

func (Connected) FrameType() string           { return "connected" }
func (NotificationCreated) FrameType() string { return string(domain.KindNotificationCreated) }
func (NotificationUpdated) FrameType() string { return string(domain.KindNotificationUpdated) }
func (e EntityEvent) FrameType() string       { return string(domain.EntityKind(e.Entity, e.Action)) }
func (e MemberEvent) FrameType() string       { return string(e.Kind) }

// Removed reports whether the event is a workspace_member_removed.
func (e MemberEvent) Removed() bool { return e.Kind == domain.KindMemberRemoved }

// DecodeFrame parses a {type, payload} frame. Unknown types and payloads that
// do not match their type fail with ErrMalformedFrame.
func DecodeFrame(data []byte) (Event, error) {
	var frame domain.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(frame.Payload) == 0 || string(frame.Payload) == "null" {
		return nil, fmt.Errorf("%w: %q has no payload", ErrMalformedFrame, frame.Type)
	}

	switch kind := domain.EventKind(frame.Type); kind {
	case "connected":
		var c Connected
		if err := decodePayload(frame, &c); err != nil {
			return nil, err
		}
		if c.UserID == "" {
			return nil, fmt.Errorf("%w: connected frame without user_id", ErrMalformedFrame)
		}
		return c, nil

	case domain.KindNotificationCreated:
		var n domain.Notification
		if err := decodePayload(frame, &n); err != nil {
			return nil, err
		}
		return NotificationCreated{Notification: n}, nil

	case domain.KindNotificationUpdated:
		var u NotificationUpdated
		if err := decodePayload(frame, &u.NotificationUpdate); err != nil {
			return nil, err
		}
		return u, nil

	case domain.KindMemberAdded, domain.KindMemberRemoved:
		var change domain.MemberChange
		if err := decodePayload(frame, &change); err != nil {
			return nil, err
		}
		if change.WorkspaceID == "" || change.UserID == "" {
			return nil, fmt.Errorf("%w: %s without workspace_id or user_id", ErrMalformedFrame, kind)
		}
		return MemberEvent{Kind: kind, Change: change}, nil

	default:
		entity, action, ok := domain.ParseEntityKind(kind)
		if !ok {
			return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, frame.Type)
		}
		if !json.Valid(frame.Payload) {
			return nil, fmt.Errorf("%w: %s payload is not json", ErrMalformedFrame, kind)
		}
		return EntityEvent{Entity: entity, Action: action, Object: frame.Payload}, nil
	}
}

func decodePayload(frame domain.Frame, v any) error {
	if err := json.Unmarshal(frame.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedFrame, frame.Type, err)
	}
	return nil
}
