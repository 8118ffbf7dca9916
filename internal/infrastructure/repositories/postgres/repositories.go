package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"workhub/internal/core/domain"
)

type userRepository struct{ q querier }

const userColumns = `id, name, email, avatar_url, notify_in_app, password_hash, created_at, updated_at`

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var avatar sql.NullString
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &avatar, &u.NotifyInApp, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if avatar.Valid {
		u.AvatarURL = &avatar.String
	}
	return &u, nil
}

func (r userRepository) Create(ctx context.Context, u *domain.User) error {
	const q = `
INSERT INTO users (id, name, email, avatar_url, notify_in_app, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.ExecContext(ctx, q, u.ID, u.Name, u.Email, u.AvatarURL, u.NotifyInApp, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r userRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r userRepository) UpdatePassword(ctx context.Context, id domain.UserID, passwordHash string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, passwordHash, at, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectOne(res, domain.ErrUserNotFound)
}

func (r userRepository) UpdateEmail(ctx context.Context, id domain.UserID, email string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE users SET email = $1, updated_at = $2 WHERE id = $3`, email, at, id)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("update email: %w", err)
	}
	return expectOne(res, domain.ErrUserNotFound)
}

type tokenRepository struct{ q querier }

func (r tokenRepository) Create(ctx context.Context, t *domain.OneTimeToken) error {
	const q = `
INSERT INTO one_time_tokens (id, user_id, purpose, token, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.q.ExecContext(ctx, q, t.ID, t.UserID, t.Purpose, t.Token, t.ExpiresAt, t.CreatedAt); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (r tokenRepository) FindUsable(ctx context.Context, purpose domain.TokenPurpose, token string, now time.Time) (*domain.OneTimeToken, error) {
	const q = `
SELECT id, user_id, purpose, token, expires_at, created_at
FROM one_time_tokens
WHERE purpose = $1 AND token = $2 AND used_at IS NULL AND expires_at >= $3`
	var t domain.OneTimeToken
	err := r.q.QueryRowContext(ctx, q, purpose, token, now).
		Scan(&t.ID, &t.UserID, &t.Purpose, &t.Token, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("query token: %w", err)
	}
	return &t, nil
}

func (r tokenRepository) MarkUsed(ctx context.Context, id string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE one_time_tokens SET used_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("mark token used: %w", err)
	}
	return expectOne(res, domain.ErrTokenNotFound)
}

type emailChangeRepository struct{ q querier }

func (r emailChangeRepository) Create(ctx context.Context, req *domain.EmailChangeRequest) error {
	const q = `
INSERT INTO email_change_requests (id, user_id, new_email, token, status, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.q.ExecContext(ctx, q, req.ID, req.UserID, req.NewEmail, req.Token, req.Status, req.CreatedAt, req.ExpiresAt); err != nil {
		return fmt.Errorf("insert email change request: %w", err)
	}
	return nil
}

func (r emailChangeRepository) FindPending(ctx context.Context, token string, now time.Time) (*domain.EmailChangeRequest, error) {
	const q = `
SELECT id, user_id, new_email, token, status, expires_at, created_at
FROM email_change_requests
WHERE token = $1 AND status = 'pending' AND expires_at >= $2`
	var req domain.EmailChangeRequest
	err := r.q.QueryRowContext(ctx, q, token, now).
		Scan(&req.ID, &req.UserID, &req.NewEmail, &req.Token, &req.Status, &req.ExpiresAt, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("query email change request: %w", err)
	}
	return &req, nil
}

func (r emailChangeRepository) MarkConfirmed(ctx context.Context, id string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE email_change_requests SET status = 'confirmed', confirmed_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("confirm email change: %w", err)
	}
	return expectOne(res, domain.ErrTokenNotFound)
}

type workspaceRepository struct{ q querier }

func (r workspaceRepository) Create(ctx context.Context, ws *domain.Workspace) error {
	const q = `INSERT INTO workspaces (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.q.ExecContext(ctx, q, ws.ID, ws.Name, ws.CreatedAt, ws.UpdatedAt); err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (r workspaceRepository) GetByID(ctx context.Context, id domain.WorkspaceID) (*domain.Workspace, error) {
	var ws domain.Workspace
	err := r.q.QueryRowContext(ctx, `SELECT id, name, created_at, updated_at FROM workspaces WHERE id = $1`, id).
		Scan(&ws.ID, &ws.Name, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("query workspace: %w", err)
	}
	return &ws, nil
}

func (r workspaceRepository) ListForUser(ctx context.Context, userID domain.UserID) ([]domain.WorkspaceWithRole, error) {
	const q = `
SELECT w.id, w.name, w.created_at, w.updated_at, m.role, m.joined_at
FROM workspace_members m
JOIN workspaces w ON w.id = m.workspace_id
WHERE m.user_id = $1
ORDER BY m.joined_at`
	rows, err := r.q.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []domain.WorkspaceWithRole
	for rows.Next() {
		var w domain.WorkspaceWithRole
		if err := rows.Scan(&w.ID, &w.Name, &w.CreatedAt, &w.UpdatedAt, &w.Role, &w.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

type membershipRepository struct{ q querier }

func (r membershipRepository) Add(ctx context.Context, m *domain.Membership) error {
	const q = `INSERT INTO workspace_members (workspace_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.q.ExecContext(ctx, q, m.WorkspaceID, m.UserID, m.Role, m.JoinedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyMember
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (r membershipRepository) Get(ctx context.Context, workspaceID domain.WorkspaceID, userID domain.UserID) (*domain.Membership, error) {
	const q = `SELECT workspace_id, user_id, role, joined_at FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`
	var m domain.Membership
	if err := r.q.QueryRowContext(ctx, q, workspaceID, userID).Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("query membership: %w", err)
	}
	return &m, nil
}

func (r membershipRepository) Remove(ctx context.Context, workspaceID domain.WorkspaceID, userID domain.UserID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return expectOne(res, domain.ErrMembershipNotFound)
}

func (r membershipRepository) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Membership, error) {
	const q = `SELECT workspace_id, user_id, role, joined_at FROM workspace_members WHERE user_id = $1 ORDER BY joined_at`
	rows, err := r.q.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type inviteRepository struct{ q querier }

func (r inviteRepository) Create(ctx context.Context, inv *domain.Invite) error {
	const q = `
INSERT INTO workspace_invites (id, workspace_id, email, token, status, invited_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.q.ExecContext(ctx, q, inv.ID, inv.WorkspaceID, inv.Email, inv.Token, inv.Status, inv.InvitedBy, inv.CreatedAt); err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (r inviteRepository) FindPending(ctx context.Context, token string) (*domain.Invite, error) {
	const q = `
SELECT id, workspace_id, email, token, status, invited_by, created_at
FROM workspace_invites
WHERE token = $1 AND status = 'pending'`
	var inv domain.Invite
	err := r.q.QueryRowContext(ctx, q, token).
		Scan(&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.Token, &inv.Status, &inv.InvitedBy, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInviteNotFound
		}
		return nil, fmt.Errorf("query invite: %w", err)
	}
	return &inv, nil
}

func (r inviteRepository) MarkAccepted(ctx context.Context, id string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE workspace_invites SET status = 'accepted', responded_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("accept invite: %w", err)
	}
	return expectOne(res, domain.ErrInviteNotFound)
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
