package domain

import "time"

type WorkspaceID string

type Workspace struct {
	ID        WorkspaceID `json:"id"`
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Membership is unique per (WorkspaceID, UserID).
type Membership struct {
	WorkspaceID WorkspaceID `json:"workspace_id"`
	UserID      UserID      `json:"user_id"`
	Role        Role        `json:"role"`
	JoinedAt    time.Time   `json:"joined_at"`
}

// WorkspaceWithRole is a workspace as seen by one of its members.
type WorkspaceWithRole struct {
	Workspace
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
)

type Invite struct {
	ID          string       `json:"id"`
	WorkspaceID WorkspaceID  `json:"workspace_id"`
	Email       string       `json:"email"`
	Token       string       `json:"-"`
	Status      InviteStatus `json:"status"`
	InvitedBy   UserID       `json:"invited_by"`
	CreatedAt   time.Time    `json:"created_at"`
	RespondedAt *time.Time   `json:"responded_at,omitempty"`
}
