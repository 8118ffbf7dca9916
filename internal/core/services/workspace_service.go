package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"workhub/internal/core/domain"
	"workhub/internal/core/ports"
	apperrors "workhub/pkg/errors"
	"workhub/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type workspaceService struct {
	store     ports.CredentialStore
	mailer    ports.Mailer
	publisher ports.EventPublisher
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewWorkspaceService(
	store ports.CredentialStore,
	mailer ports.Mailer,
	publisher ports.EventPublisher,
	logger *zap.SugaredLogger,
) ports.WorkspaceService {
	return &workspaceService{
		store:     store,
		mailer:    mailer,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *workspaceService) List(ctx context.Context, userID domain.UserID) ([]domain.WorkspaceWithRole, error) {
	workspaces, err := s.store.Workspaces().ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to list workspaces", err)
	}
	if workspaces == nil {
		workspaces = []domain.WorkspaceWithRole{}
	}
	return workspaces, nil
}

// Create makes userID the workspace admin and announces the membership so
// the creator's live connections join the new room.
func (s *workspaceService) Create(ctx context.Context, userID domain.UserID, name string) (*domain.WorkspaceWithRole, error) {
	name = strings.TrimSpace(name)
	if err := validation.ValidateName(name); err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}

	now := s.now().UTC()
	ws := domain.Workspace{
		ID:        domain.WorkspaceID(uuid.NewString()),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	membership := domain.Membership{
		WorkspaceID: ws.ID,
		UserID:      userID,
		Role:        domain.RoleAdmin,
		JoinedAt:    now,
	}

	err := s.store.WithinTx(ctx, func(repos ports.Repositories) error {
		if err := repos.Workspaces().Create(ctx, &ws); err != nil {
			return err
		}
		return repos.Memberships().Add(ctx, &membership)
	})
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to create workspace", err)
	}

	s.announce(ctx, func() (domain.Event, error) { return domain.MemberAdded(membership, userID) })
	return &domain.WorkspaceWithRole{Workspace: ws, Role: membership.Role, JoinedAt: membership.JoinedAt}, nil
}

func (s *workspaceService) Invite(ctx context.Context, inviter domain.UserID, workspaceID domain.WorkspaceID, email string) (*domain.Invite, error) {
	if err := validation.RequireFields([]string{"email"}, email); err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}
	if err := s.requireAdmin(ctx, workspaceID, inviter); err != nil {
		return nil, err
	}

	invite := &domain.Invite{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Email:       email,
		Token:       uuid.NewString(),
		Status:      domain.InvitePending,
		InvitedBy:   inviter,
		CreatedAt:   s.now().UTC(),
	}
	err := s.store.WithinTx(ctx, func(repos ports.Repositories) error {
		if err := repos.Invites().Create(ctx, invite); err != nil {
			return err
		}
		return s.mailer.Send(ctx, ports.Mail{Kind: ports.MailWorkspaceInvite, To: email, Token: invite.Token})
	})
	if err != nil {
		s.logger.Errorw("invite failed", "workspace_id", workspaceID, "error", err)
		return nil, apperrors.NewInternalError(err.Error(), err)
	}
	return invite, nil
}

func (s *workspaceService) AcceptInvite(ctx context.Context, userID domain.UserID, token string) (*ports.InviteAcceptResult, error) {
	if err := validation.RequireFields([]string{"token"}, token); err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}

	var membership domain.Membership
	err := s.store.WithinTx(ctx, func(repos ports.Repositories) error {
		invite, err := repos.Invites().FindPending(ctx, token)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := repos.Invites().MarkAccepted(ctx, invite.ID, now); err != nil {
			return err
		}
		membership = domain.Membership{
			WorkspaceID: invite.WorkspaceID,
			UserID:      userID,
			Role:        domain.RoleMember,
			JoinedAt:    now,
		}
		return repos.Memberships().Add(ctx, &membership)
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInviteNotFound):
			return nil, apperrors.NewBadRequestError("Invalid or already used invite")
		case errors.Is(err, domain.ErrAlreadyMember):
			return nil, apperrors.NewConflictError("Already a member of this workspace")
		}
		return nil, apperrors.NewInternalError("Invite acceptance failed", err)
	}

	s.announce(ctx, func() (domain.Event, error) { return domain.MemberAdded(membership, userID) })
	return &ports.InviteAcceptResult{WorkspaceID: membership.WorkspaceID, JoinedAt: membership.JoinedAt}, nil
}

// RemoveMember lets admins remove anyone and members remove themselves.
func (s *workspaceService) RemoveMember(ctx context.Context, actor domain.UserID, workspaceID domain.WorkspaceID, userID domain.UserID) error {
	if actor != userID {
		if err := s.requireAdmin(ctx, workspaceID, actor); err != nil {
			return err
		}
	}

	if err := s.store.Memberships().Remove(ctx, workspaceID, userID); err != nil {
		if errors.Is(err, domain.ErrMembershipNotFound) {
			return apperrors.NewNotFoundError("Member not found")
		}
		return apperrors.NewInternalError("Failed to remove member", err)
	}

	s.announce(ctx, func() (domain.Event, error) { return domain.MemberRemoved(workspaceID, userID, actor) })
	return nil
}

func (s *workspaceService) requireAdmin(ctx context.Context, workspaceID domain.WorkspaceID, userID domain.UserID) error {
	m, err := s.store.Memberships().Get(ctx, workspaceID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrMembershipNotFound) {
			return apperrors.NewNotFoundError("Workspace not found")
		}
		return apperrors.NewInternalError("Failed to load membership", err)
	}
	if m.Role != domain.RoleAdmin {
		return apperrors.NewForbiddenError("Admin role required")
	}
	return nil
}

// announce publishes best-effort; the write has already committed.
func (s *workspaceService) announce(ctx context.Context, build func() (domain.Event, error)) {
	event, err := build()
	if err == nil {
		err = s.publisher.Publish(ctx, event)
	}
	if err != nil {
		s.logger.Warnw("failed to publish event", "kind", event.Kind, "error", err)
	}
}
