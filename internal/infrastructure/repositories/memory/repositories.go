package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"workhub/internal/core/domain"
)

type userRepository struct{ access }

func (r userRepository) Create(ctx context.Context, user *domain.User) error {
	return r.write(func(d *data) error {
		if _, exists := d.emails[user.Email]; exists {
			return domain.ErrEmailTaken
		}
		if _, exists := d.users[user.ID]; exists {
			return fmt.Errorf("user already exists: %s", user.ID)
		}
		d.users[user.ID] = *user
		d.emails[user.Email] = user.ID
		return nil
	})
}

func (r userRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var out domain.User
	err := r.read(func(d *data) error {
		u, ok := d.users[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var out domain.User
	err := r.read(func(d *data) error {
		id, ok := d.emails[email]
		if !ok {
			return domain.ErrUserNotFound
		}
		out = d.users[id]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r userRepository) UpdatePassword(ctx context.Context, id domain.UserID, passwordHash string, at time.Time) error {
	return r.write(func(d *data) error {
		u, ok := d.users[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		u.PasswordHash = passwordHash
		u.UpdatedAt = at
		d.users[id] = u
		return nil
	})
}

func (r userRepository) UpdateEmail(ctx context.Context, id domain.UserID, email string, at time.Time) error {
	return r.write(func(d *data) error {
		u, ok := d.users[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		if owner, taken := d.emails[email]; taken && owner != id {
			return domain.ErrEmailTaken
		}
		delete(d.emails, u.Email)
		u.Email = email
		u.UpdatedAt = at
		d.users[id] = u
		d.emails[email] = id
		return nil
	})
}

type tokenRepository struct{ access }

func (r tokenRepository) Create(ctx context.Context, token *domain.OneTimeToken) error {
	return r.write(func(d *data) error {
		d.tokens[token.ID] = *token
		return nil
	})
}

func (r tokenRepository) FindUsable(ctx context.Context, purpose domain.TokenPurpose, token string, now time.Time) (*domain.OneTimeToken, error) {
	var out domain.OneTimeToken
	err := r.read(func(d *data) error {
		for _, t := range d.tokens {
			if t.Purpose == purpose && t.Token == token && t.Usable(now) {
				out = t
				return nil
			}
		}
		return domain.ErrTokenNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r tokenRepository) MarkUsed(ctx context.Context, id string, at time.Time) error {
	return r.write(func(d *data) error {
		t, ok := d.tokens[id]
		if !ok {
			return domain.ErrTokenNotFound
		}
		t.UsedAt = &at
		d.tokens[id] = t
		return nil
	})
}

type emailChangeRepository struct{ access }

func (r emailChangeRepository) Create(ctx context.Context, req *domain.EmailChangeRequest) error {
	return r.write(func(d *data) error {
		d.emailChanges[req.ID] = *req
		return nil
	})
}

func (r emailChangeRepository) FindPending(ctx context.Context, token string, now time.Time) (*domain.EmailChangeRequest, error) {
	var out domain.EmailChangeRequest
	err := r.read(func(d *data) error {
		for _, req := range d.emailChanges {
			if req.Token == token && req.Usable(now) {
				out = req
				return nil
			}
		}
		return domain.ErrTokenNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r emailChangeRepository) MarkConfirmed(ctx context.Context, id string, at time.Time) error {
	return r.write(func(d *data) error {
		req, ok := d.emailChanges[id]
		if !ok {
			return domain.ErrTokenNotFound
		}
		req.Status = domain.EmailChangeConfirmed
		req.ConfirmedAt = &at
		d.emailChanges[id] = req
		return nil
	})
}

type workspaceRepository struct{ access }

func (r workspaceRepository) Create(ctx context.Context, ws *domain.Workspace) error {
	return r.write(func(d *data) error {
		if _, exists := d.workspaces[ws.ID]; exists {
			return fmt.Errorf("workspace already exists: %s", ws.ID)
		}
		d.workspaces[ws.ID] = *ws
		return nil
	})
}

func (r workspaceRepository) GetByID(ctx context.Context, id domain.WorkspaceID) (*domain.Workspace, error) {
	var out domain.Workspace
	err := r.read(func(d *data) error {
		ws, ok := d.workspaces[id]
		if !ok {
			return domain.ErrWorkspaceNotFound
		}
		out = ws
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r workspaceRepository) ListForUser(ctx context.Context, userID domain.UserID) ([]domain.WorkspaceWithRole, error) {
	var out []domain.WorkspaceWithRole
	err := r.read(func(d *data) error {
		for key, m := range d.memberships {
			if key.user != userID {
				continue
			}
			ws, ok := d.workspaces[key.workspace]
			if !ok {
				continue
			}
			out = append(out, domain.WorkspaceWithRole{Workspace: ws, Role: m.Role, JoinedAt: m.JoinedAt})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, err
}

type membershipRepository struct{ access }

func (r membershipRepository) Add(ctx context.Context, m *domain.Membership) error {
	return r.write(func(d *data) error {
		key := memberKey{workspace: m.WorkspaceID, user: m.UserID}
		if _, exists := d.memberships[key]; exists {
			return domain.ErrAlreadyMember
		}
		d.memberships[key] = *m
		return nil
	})
}

func (r membershipRepository) Get(ctx context.Context, workspaceID domain.WorkspaceID, userID domain.UserID) (*domain.Membership, error) {
	var out domain.Membership
	err := r.read(func(d *data) error {
		m, ok := d.memberships[memberKey{workspace: workspaceID, user: userID}]
		if !ok {
			return domain.ErrMembershipNotFound
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r membershipRepository) Remove(ctx context.Context, workspaceID domain.WorkspaceID, userID domain.UserID) error {
	return r.write(func(d *data) error {
		key := memberKey{workspace: workspaceID, user: userID}
		if _, ok := d.memberships[key]; !ok {
			return domain.ErrMembershipNotFound
		}
		delete(d.memberships, key)
		return nil
	})
}

func (r membershipRepository) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Membership, error) {
	var out []domain.Membership
	err := r.read(func(d *data) error {
		for key, m := range d.memberships {
			if key.user == userID {
				out = append(out, m)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, err
}

type inviteRepository struct{ access }

func (r inviteRepository) Create(ctx context.Context, invite *domain.Invite) error {
	return r.write(func(d *data) error {
		d.invites[invite.ID] = *invite
		return nil
	})
}

func (r inviteRepository) FindPending(ctx context.Context, token string) (*domain.Invite, error) {
	var out domain.Invite
	err := r.read(func(d *data) error {
		for _, inv := range d.invites {
			if inv.Token == token && inv.Status == domain.InvitePending {
				out = inv
				return nil
			}
		}
		return domain.ErrInviteNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r inviteRepository) MarkAccepted(ctx context.Context, id string, at time.Time) error {
	return r.write(func(d *data) error {
		inv, ok := d.invites[id]
		if !ok {
			return domain.ErrInviteNotFound
		}
		inv.Status = domain.InviteAccepted
		inv.RespondedAt = &at
		d.invites[id] = inv
		return nil
	})
}
