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

const (
	msgInvalidCredentials = "Invalid credentials"
	msgInvalidToken       = "Invalid or expired token"
	msgEmailTaken         = "Email already registered"
)

type authService struct {
	store   ports.CredentialStore
	tokens  ports.TokenService
	hasher  ports.PasswordHasher
	mailer  ports.Mailer
	logger  *zap.SugaredLogger
	now     func() time.Time
	linkTTL time.Duration
}

type AuthOption func(*authService)

func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *authService) { s.now = now }
}

// WithOneTimeTokenTTL overrides the lifetime of verification, reset and email change tokens.
func WithOneTimeTokenTTL(ttl time.Duration) AuthOption {
	return func(s *authService) {
		if ttl > 0 {
			s.linkTTL = ttl
		}
	}
}

func NewAuthService(
	store ports.CredentialStore,
	tokens ports.TokenService,
	hasher ports.PasswordHasher,
	mailer ports.Mailer,
	logger *zap.SugaredLogger,
	opts ...AuthOption,
) ports.AuthService {
	s := &authService{
		store:   store,
		tokens:  tokens,
		hasher:  hasher,
		mailer:  mailer,
		logger:  logger,
		now:     time.Now,
		linkTTL: domain.OneTimeTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *authService) SignUp(ctx context.Context, name, email, password string) (*ports.SignUpResult, error) {
	if err := validation.RequireFields([]string{"name", "email", "password"}, name, email, password); err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}
	name = strings.TrimSpace(name)
	email = validation.NormalizeEmail(email)
	if err := validateSignUp(name, email, password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.NewInternalError("Sign up failed", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           domain.UserID(uuid.NewString()),
		Name:         name,
		Email:        email,
		NotifyInApp:  true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	verification := &domain.OneTimeToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Purpose:   domain.PurposeEmailVerification,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(s.linkTTL),
		CreatedAt: now,
	}

	err = s.store.WithinTx(ctx, func(repos ports.Repositories) error {
		if _, err := repos.Users().GetByEmail(ctx, email); err == nil {
			return domain.ErrEmailTaken
		} else if !errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		if err := repos.Users().Create(ctx, user); err != nil {
			return err
		}
		if err := repos.Tokens().Create(ctx, verification); err != nil {
			return err
		}
		return s.mailer.Send(ctx, ports.Mail{Kind: ports.MailVerifyEmail, To: email, Token: verification.Token})
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, apperrors.NewConflictError(msgEmailTaken)
		}
		s.logger.Errorw("sign up failed", "email", email, "error", err)
		return nil, apperrors.NewInternalError(err.Error(), err)
	}

	s.logger.Infow("user signed up", "user_id", user.ID)
	return &ports.SignUpResult{
		User:                  user.Public(),
		VerificationExpiresAt: verification.ExpiresAt,
	}, nil
}

func validateSignUp(name, email, password string) error {
	if err := validation.ValidateName(name); err != nil {
		return apperrors.NewBadRequestError(err.Error())
	}
	if err := validation.ValidateEmail(email); err != nil {
		return apperrors.NewBadRequestError(err.Error())
	}
	if err := validation.ValidatePassword(password); err != nil {
		return apperrors.NewBadRequestError(err.Error())
	}
	return nil
}

func (s *authService) LogIn(ctx context.Context, email, password string) (*ports.LogInResult, error) {
	if err := validation.RequireFields([]string{"email", "password"}, email, password); err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}

	user, err := s.store.Users().GetByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, apperrors.NewUnauthorizedError(msgInvalidCredentials)
		}
		return nil, apperrors.NewInternalError("Login failed", err)
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorizedError(msgInvalidCredentials)
	}

	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, apperrors.NewInternalError("Login failed", err)
	}

	return &ports.LogInResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.Public(),
	}, nil
}

func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	if err := validation.RequireFields([]string{"email"}, email); err != nil {
		return apperrors.NewBadRequestError(err.Error())
	}
	email = validation.NormalizeEmail(email)

	err := s.store.WithinTx(ctx, func(repos ports.Repositories) error {
		user, err := repos.Users().GetByEmail(ctx, email)
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		now := s.now().UTC()
		reset := &domain.OneTimeToken{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			Purpose:   domain.PurposePasswordReset,
			Token:     uuid.NewString(),
			ExpiresAt: now.Add(s.linkTTL),
			CreatedAt: now,
		}
		if err := repos.Tokens().Create(ctx, reset); err != nil {
			return err
		}
		return s.mailer.Send(ctx, ports.Mail{Kind: ports.MailResetPassword, To: email, Token: reset.Token})
	})
	if err != nil {
		s.logger.Errorw("forgot password failed", "error", err)
		return apperrors.NewInternalError("Failed to send reset email", err)
	}
	return nil
}

func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validation.RequireFields([]string{"token", "new_password"}, token, newPassword); err != nil {
		return apperrors.NewBadRequestError(err.Error())
	}
	if err := validation.ValidatePassword(newPassword); err != nil {
		return apperrors.NewBadRequestError(err.Error())
	}

	err := s.store.WithinTx(ctx, func(repos ports.Repositories) error {
		now := s.now().UTC()
		reset, err := repos.Tokens().FindUsable(ctx, domain.PurposePasswordReset, token, now)
		if err != nil {
			return err
		}
		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return err
		}
		if err := repos.Users().UpdatePassword(ctx, reset.UserID, hash, now); err != nil {
			return err
		}
		return repos.Tokens().MarkUsed(ctx, reset.ID, now)
	})
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return apperrors.NewNotFoundError(msgInvalidToken)
		}
		return apperrors.NewInternalError("Reset failed", err)
	}
	return nil
}

func (s *authService) VerifyEmail(ctx context.Context, token string) error {
	if err := validation.RequireFields([]string{"token"}, token); err != nil {
		return apperrors.NewBadRequestError(err.Error())
	}

	err := s.store.WithinTx(ctx, func(repos ports.Repositories) error {
		now := s.now().UTC()
		verification, err := repos.Tokens().FindUsable(ctx, domain.PurposeEmailVerification, token, now)
		if err != nil {
			return err
		}
		return repos.Tokens().MarkUsed(ctx, verification.ID, now)
	})
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return apperrors.NewNotFoundError(msgInvalidToken)
		}
		return apperrors.NewInternalError("Verification failed", err)
	}
	return nil
}

func (s *authService) RequestEmailChange(ctx context.Context, userID domain.UserID, newEmail string) (*ports.EmailChangeResult, error) {
	if err := validation.RequireFields([]string{"new_email"}, newEmail); err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}
	newEmail = validation.NormalizeEmail(newEmail)
	if err := validation.ValidateEmail(newEmail); err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}

	now := s.now().UTC()
	req := &domain.EmailChangeRequest{
		ID:        uuid.NewString(),
		UserID:    userID,
		NewEmail:  newEmail,
		Token:     uuid.NewString(),
		Status:    domain.EmailChangePending,
		ExpiresAt: now.Add(s.linkTTL),
		CreatedAt: now,
	}

	err := s.store.WithinTx(ctx, func(repos ports.Repositories) error {
		if _, err := repos.Users().GetByEmail(ctx, newEmail); err == nil {
			return domain.ErrEmailTaken
		} else if !errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		if err := repos.EmailChanges().Create(ctx, req); err != nil {
			return err
		}
		return s.mailer.Send(ctx, ports.Mail{Kind: ports.MailEmailChange, To: newEmail, Token: req.Token})
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, apperrors.NewConflictError(msgEmailTaken)
		}
		s.logger.Errorw("email change request failed", "user_id", userID, "error", err)
		return nil, apperrors.NewInternalError(err.Error(), err)
	}

	return &ports.EmailChangeResult{RequestID: req.ID, ExpiresAt: req.ExpiresAt}, nil
}

func (s *authService) ConfirmEmailChange(ctx context.Context, token string) (*domain.User, error) {
	if err := validation.RequireFields([]string{"token"}, token); err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}

	var user *domain.User
	err := s.store.WithinTx(ctx, func(repos ports.Repositories) error {
		now := s.now().UTC()
		req, err := repos.EmailChanges().FindPending(ctx, token, now)
		if err != nil {
			return err
		}
		if err := repos.Users().UpdateEmail(ctx, req.UserID, req.NewEmail, now); err != nil {
			return err
		}
		if err := repos.EmailChanges().MarkConfirmed(ctx, req.ID, now); err != nil {
			return err
		}
		user, err = repos.Users().GetByID(ctx, req.UserID)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTokenNotFound):
			return nil, apperrors.NewNotFoundError(msgInvalidToken)
		case errors.Is(err, domain.ErrEmailTaken):
			return nil, apperrors.NewConflictError(msgEmailTaken)
		}
		return nil, apperrors.NewInternalError("Confirm email change failed", err)
	}
	return user, nil
}

func (s *authService) Me(ctx context.Context, userID domain.UserID) (*domain.User, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, apperrors.NewNotFoundError("User not found")
		}
		return nil, apperrors.NewInternalError("Failed to load user", err)
	}
	return user, nil
}
