package ports

import (
	"context"
	"time"

	"workhub/internal/core/domain"
)

type UserRepository interface {
	// Create fails with domain.ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id domain.UserID, passwordHash string, at time.Time) error
	UpdateEmail(ctx context.Context, id domain.UserID, email string, at time.Time) error
}

type TokenRepository interface {
	Create(ctx context.Context, token *domain.OneTimeToken) error
	// FindUsable returns a token that is unused and not expired at now.
	FindUsable(ctx context.Context, purpose domain.TokenPurpose, token string, now time.Time) (*domain.OneTimeToken, error)
	MarkUsed(ctx context.Context, id string, at time.Time) error
}

type EmailChangeRepository interface {
	Create(ctx context.Context, req *domain.EmailChangeRequest) error
	FindPending(ctx context.Context, token string, now time.Time) (*domain.EmailChangeRequest, error)
	MarkConfirmed(ctx context.Context, id string, at time.Time) error
}

type WorkspaceRepository interface {
	Create(ctx context.Context, ws *domain.Workspace) error
	GetByID(ctx context.Context, id domain.WorkspaceID) (*domain.Workspace, error)
	ListForUser(ctx context.Context, userID domain.UserID) ([]domain.WorkspaceWithRole, error)
}

// MembershipLister is the only lookup the realtime gateway needs.
type MembershipLister interface {
	ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Membership, error)
}

type MembershipRepository interface {
	MembershipLister
	// Add fails with domain.ErrAlreadyMember when (workspace, user) exists.
	Add(ctx context.Context, m *domain.Membership) error
	Get(ctx context.Context, workspaceID domain.WorkspaceID, userID domain.UserID) (*domain.Membership, error)
	Remove(ctx context.Context, workspaceID domain.WorkspaceID, userID domain.UserID) error
}

type InviteRepository interface {
	Create(ctx context.Context, invite *domain.Invite) error
	FindPending(ctx context.Context, token string) (*domain.Invite, error)
	MarkAccepted(ctx context.Context, id string, at time.Time) error
}

// Repositories groups the repositories that share one transaction.
type Repositories interface {
	Users() UserRepository
	Tokens() TokenRepository
	EmailChanges() EmailChangeRepository
	Workspaces() WorkspaceRepository
	Memberships() MembershipRepository
	Invites() InviteRepository
}

// CredentialStore runs fn inside a transaction: any error returned by fn
// rolls back every write made through the given Repositories.
type CredentialStore interface {
	Repositories
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
	Ping(ctx context.Context) error
	Close() error
}
