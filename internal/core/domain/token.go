package domain

import "time"

// OneTimeTokenTTL is the lifetime of verification, reset and email change tokens.
const OneTimeTokenTTL = 24 * time.Hour

type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

// OneTimeToken is valid while unused and not expired.
type OneTimeToken struct {
	ID        string
	UserID    UserID
	Purpose   TokenPurpose
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (t *OneTimeToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

type EmailChangeStatus string

const (
	EmailChangePending   EmailChangeStatus = "pending"
	EmailChangeConfirmed EmailChangeStatus = "confirmed"
)

type EmailChangeRequest struct {
	ID          string
	UserID      UserID
	NewEmail    string
	Token       string
	Status      EmailChangeStatus
	ExpiresAt   time.Time
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

func (r *EmailChangeRequest) Usable(now time.Time) bool {
	return r.Status == EmailChangePending && now.Before(r.ExpiresAt)
}
