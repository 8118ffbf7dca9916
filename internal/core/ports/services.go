package ports

import (
	"context"
	"time"

	"workhub/internal/core/domain"
)

// TokenService issues and verifies stateless session tokens.
type TokenService interface {
	Issue(subject domain.UserID) (token string, expiresAt time.Time, err error)
	Verify(token string) (domain.UserID, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type MailKind string

const (
	MailVerifyEmail     MailKind = "verify_email"
	MailResetPassword   MailKind = "reset_password"
	MailWorkspaceInvite MailKind = "workspace_invite"
	MailEmailChange     MailKind = "email_change"
)

// Mail is a templated message carrying a one-time link.
type Mail struct {
	Kind  MailKind
	To    string
	Token string
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

type EventHandler func(ctx context.Context, event domain.Event)

type EventSubscriber interface {
	// Subscribe delivers events to handler until ctx is done.
	Subscribe(ctx context.Context, handler EventHandler) error
}

type EventQueue interface {
	EventPublisher
	EventSubscriber
	Close() error
}

type SignUpResult struct {
	User                  domain.PublicUser `json:"user"`
	VerificationExpiresAt time.Time         `json:"verification_expires_at"`
}

type LogInResult struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      domain.PublicUser `json:"user"`
}

type InviteAcceptResult struct {
	WorkspaceID domain.WorkspaceID `json:"workspace_id"`
	JoinedAt    time.Time          `json:"joined_at"`
}

type EmailChangeResult struct {
	RequestID string    `json:"request_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AuthService interface {
	SignUp(ctx context.Context, name, email, password string) (*SignUpResult, error)
	LogIn(ctx context.Context, email, password string) (*LogInResult, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	VerifyEmail(ctx context.Context, token string) error
	RequestEmailChange(ctx context.Context, userID domain.UserID, newEmail string) (*EmailChangeResult, error)
	ConfirmEmailChange(ctx context.Context, token string) (*domain.User, error)
	Me(ctx context.Context, userID domain.UserID) (*domain.User, error)
}

type WorkspaceService interface {
	List(ctx context.Context, userID domain.UserID) ([]domain.WorkspaceWithRole, error)
	Create(ctx context.Context, userID domain.UserID, name string) (*domain.WorkspaceWithRole, error)
	Invite(ctx context.Context, inviter domain.UserID, workspaceID domain.WorkspaceID, email string) (*domain.Invite, error)
	AcceptInvite(ctx context.Context, userID domain.UserID, token string) (*InviteAcceptResult, error)
	RemoveMember(ctx context.Context, actor domain.UserID, workspaceID domain.WorkspaceID, userID domain.UserID) error
}
