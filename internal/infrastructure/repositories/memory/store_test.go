package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"workhub/internal/core/domain"
	"workhub/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, s *Store, id domain.UserID, email string) {
	t.Helper()
	require.NoError(t, s.Users().Create(context.Background(), &domain.User{ID: id, Email: email, Name: "n"}))
}

func TestStore_UserUniqueEmail(t *testing.T) {
	s := NewStore()
	seedUser(t, s, "u1", "ana@x.com")

	err := s.Users().Create(context.Background(), &domain.User{ID: "u2", Email: "ana@x.com"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	got, err := s.Users().GetByEmail(context.Background(), "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), got.ID)

	_, err = s.Users().GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	boom := errors.New("mail relay down")

	err := s.WithinTx(ctx, func(r ports.Repositories) error {
		require.NoError(t, r.Users().Create(ctx, &domain.User{ID: "u1", Email: "ana@x.com"}))
		require.NoError(t, r.Tokens().Create(ctx, &domain.OneTimeToken{ID: "t1", UserID: "u1", Token: "abc"}))

		_, err := r.Users().GetByEmail(ctx, "ana@x.com")
		require.NoError(t, err, "writes are visible inside the transaction")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Users().GetByEmail(ctx, "ana@x.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = s.Tokens().FindUsable(ctx, "", "abc", time.Now())
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestStore_WithinTxCommits(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.WithinTx(ctx, func(r ports.Repositories) error {
		return r.Users().Create(ctx, &domain.User{ID: "u1", Email: "ana@x.com"})
	}))

	_, err := s.Users().GetByID(ctx, "u1")
	assert.NoError(t, err)
}

func TestStore_ReadsDoNotWaitForTx(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedUser(t, s, "u1", "ana@x.com")

	inTx := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(r ports.Repositories) error {
			if err := r.Users().Create(ctx, &domain.User{ID: "u2", Email: "bo@x.com"}); err != nil {
				return err
			}
			close(inTx)
			<-release
			return nil
		})
	}()
	<-inTx

	read := make(chan error, 1)
	go func() {
		_, err := s.Users().GetByEmail(ctx, "ana@x.com")
		read <- err
	}()
	select {
	case err := <-read:
		require.NoError(t, err)
	case <-time.After(time.Second):
		close(release)
		t.Fatal("read blocked by an open transaction")
	}

	_, err := s.Users().GetByEmail(ctx, "bo@x.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	wrote := make(chan error, 1)
	go func() {
		wrote <- s.Users().Create(ctx, &domain.User{ID: "u3", Email: "bo@x.com"})
	}()
	select {
	case <-wrote:
		t.Fatal("write ran while a transaction was open")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	assert.ErrorIs(t, <-wrote, domain.ErrEmailTaken)
}

func TestStore_TokensUsableOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Tokens().Create(ctx, &domain.OneTimeToken{
		ID: "t1", UserID: "u1", Purpose: domain.PurposePasswordReset, Token: "tok", ExpiresAt: now.Add(time.Hour),
	}))

	_, err := s.Tokens().FindUsable(ctx, domain.PurposeEmailVerification, "tok", now)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound, "purpose must match")

	tok, err := s.Tokens().FindUsable(ctx, domain.PurposePasswordReset, "tok", now)
	require.NoError(t, err)
	require.NoError(t, s.Tokens().MarkUsed(ctx, tok.ID, now))

	_, err = s.Tokens().FindUsable(ctx, domain.PurposePasswordReset, "tok", now)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestStore_Memberships(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Workspaces().Create(ctx, &domain.Workspace{ID: "w1", Name: "Acme"}))
	require.NoError(t, s.Workspaces().Create(ctx, &domain.Workspace{ID: "w2", Name: "Beta"}))
	require.NoError(t, s.Memberships().Add(ctx, &domain.Membership{WorkspaceID: "w1", UserID: "u1", Role: domain.RoleAdmin, JoinedAt: now}))
	require.NoError(t, s.Memberships().Add(ctx, &domain.Membership{WorkspaceID: "w2", UserID: "u1", Role: domain.RoleMember, JoinedAt: now.Add(time.Minute)}))

	err := s.Memberships().Add(ctx, &domain.Membership{WorkspaceID: "w1", UserID: "u1"})
	assert.ErrorIs(t, err, domain.ErrAlreadyMember)

	list, err := s.Memberships().ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.WorkspaceID("w1"), list[0].WorkspaceID)

	ws, err := s.Workspaces().ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.Equal(t, "Acme", ws[0].Name)
	assert.Equal(t, domain.RoleAdmin, ws[0].Role)

	require.NoError(t, s.Memberships().Remove(ctx, "w1", "u1"))
	assert.ErrorIs(t, s.Memberships().Remove(ctx, "w1", "u1"), domain.ErrMembershipNotFound)
}

func TestStore_UpdateEmail(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedUser(t, s, "u1", "ana@x.com")
	seedUser(t, s, "u2", "bob@x.com")

	assert.ErrorIs(t, s.Users().UpdateEmail(ctx, "u1", "bob@x.com", time.Now()), domain.ErrEmailTaken)
	require.NoError(t, s.Users().UpdateEmail(ctx, "u1", "ana@y.com", time.Now()))

	_, err := s.Users().GetByEmail(ctx, "ana@x.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	got, err := s.Users().GetByEmail(ctx, "ana@y.com")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), got.ID)
}

func TestStore_Invites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Invites().Create(ctx, &domain.Invite{ID: "i1", WorkspaceID: "w1", Token: "tok", Status: domain.InvitePending}))
	inv, err := s.Invites().FindPending(ctx, "tok")
	require.NoError(t, err)
	require.NoError(t, s.Invites().MarkAccepted(ctx, inv.ID, time.Now()))

	_, err = s.Invites().FindPending(ctx, "tok")
	assert.ErrorIs(t, err, domain.ErrInviteNotFound)
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewStore().WithinTx(ctx, func(ports.Repositories) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
