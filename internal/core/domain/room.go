package domain

import (
	"fmt"
	"strings"
)

// Room is a derived broadcast target: "user:<id>" or "workspace:<id>".
type Room string

const (
	userRoomPrefix      = "user:"
	workspaceRoomPrefix = "workspace:"
)

func UserRoom(id UserID) Room {
	return Room(userRoomPrefix + string(id))
}

func WorkspaceRoom(id WorkspaceID) Room {
	return Room(workspaceRoomPrefix + string(id))
}

// ParseRoom checks the prefix and that an id follows it.
func ParseRoom(s string) (Room, error) {
	for _, prefix := range []string{userRoomPrefix, workspaceRoomPrefix} {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
			return Room(s), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRoom, s)
}

// RoomsFor returns the rooms a user's connection joins given its memberships.
func RoomsFor(userID UserID, memberships []Membership) []Room {
	rooms := make([]Room, 0, len(memberships)+1)
	rooms = append(rooms, UserRoom(userID))
	seen := make(map[WorkspaceID]struct{}, len(memberships))
	for _, m := range memberships {
		if _, ok := seen[m.WorkspaceID]; ok {
			continue
		}
		seen[m.WorkspaceID] = struct{}{}
		rooms = append(rooms, WorkspaceRoom(m.WorkspaceID))
	}
	return rooms
}

func (r Room) String() string {
	return string(r)
}
