package domain

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrWorkspaceNotFound  = errors.New("workspace not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrTokenNotFound      = errors.New("token not found")
	ErrInviteNotFound     = errors.New("invite not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrAlreadyMember      = errors.New("user is already a member")
	ErrInvalidRoom        = errors.New("invalid room")
	ErrInvalidEvent       = errors.New("invalid event")
)
