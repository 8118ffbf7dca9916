package domain

import "time"

type UserID string

type User struct {
	ID           UserID    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	AvatarURL    *string   `json:"avatar_url"`
	NotifyInApp  bool      `json:"notify_in_app"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PublicUser is the user shape returned by onboarding endpoints.
type PublicUser struct {
	ID          UserID    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	AvatarURL   *string   `json:"avatar_url"`
	NotifyInApp bool      `json:"notify_in_app"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		AvatarURL:   u.AvatarURL,
		NotifyInApp: u.NotifyInApp,
		CreatedAt:   u.CreatedAt,
	}
}
