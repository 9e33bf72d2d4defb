package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/bookleaf/api/internal/domain"
	"github.com/bookleaf/api/internal/platform/auth"
	"github.com/bookleaf/api/internal/repositories"
)

const (
	userIDPrefix = "user_"

	minPasswordLength = 6
	maxPasswordLength = 20
	maxNameLength     = 60
)

var (
	// ErrUserInvalidInput signals the caller provided invalid data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the user could not be located.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserEmailTaken indicates the email address is already registered.
	ErrUserEmailTaken = errors.New("user: email already registered")
	// ErrUserInvalidCredentials indicates the email/password pair did not match.
	ErrUserInvalidCredentials = errors.New("user: invalid credentials")
	// ErrUserTokenInvalid indicates the presented refresh token is unusable.
	ErrUserTokenInvalid = errors.New("user: refresh token invalid")
	// ErrUserBlocked indicates the account is blocked from authenticating.
	ErrUserBlocked = errors.New("user: account blocked")
	// ErrUserAccessDenied indicates the actor may not perform the operation.
	ErrUserAccessDenied = errors.New("user: access denied")
)

// TokenIssuer issues and verifies the JWT pairs used by authentication flows.
type TokenIssuer interface {
	IssueTokenPair(ctx context.Context, identity auth.Identity) (*auth.TokenPair, error)
	VerifyRefreshToken(ctx context.Context, token string) (*auth.RefreshClaims, error)
}

// CredentialHasher hashes and verifies account passwords.
type CredentialHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// UserServiceDeps bundles collaborators required to construct the user service.
type UserServiceDeps struct {
	Users         repositories.UserRepository
	RefreshTokens repositories.RefreshTokenRepository
	Tokens        TokenIssuer
	Passwords     CredentialHasher
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users     repositories.UserRepository
	refresh   repositories.RefreshTokenRepository
	tokens    TokenIssuer
	passwords CredentialHasher
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.RefreshTokens == nil {
		return nil, errors.New("user service: refresh token repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("user service: token issuer is required")
	}
	if deps.Passwords == nil {
		return nil, errors.New("user service: credential hasher is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &userService{
		users:     deps.Users,
		refresh:   deps.RefreshTokens,
		tokens:    deps.Tokens,
		passwords: deps.Passwords,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *userService) Register(ctx context.Context, cmd RegisterCommand) (AuthSession, error) {
	email, err := normaliseAndValidateEmail(cmd.Email)
	if err != nil {
		return AuthSession{}, err
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return AuthSession{}, fmt.Errorf("%w: name is required", ErrUserInvalidInput)
	}
	if len([]rune(name)) > maxNameLength {
		return AuthSession{}, fmt.Errorf("%w: name exceeds %d characters", ErrUserInvalidInput, maxNameLength)
	}
	if err := validatePassword(cmd.Password); err != nil {
		return AuthSession{}, err
	}

	hash, err := s.passwords.Hash(cmd.Password)
	if err != nil {
		return AuthSession{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock()
	user := domain.User{
		ID:           userIDPrefix + s.newID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Insert(ctx, user); err != nil {
		return AuthSession{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "user.registered", map[string]any{"userId": user.ID})
	return s.issueSession(ctx, user, now)
}

func (s *userService) Login(ctx context.Context, cmd LoginCommand) (AuthSession, error) {
	email, err := normaliseAndValidateEmail(cmd.Email)
	if err != nil {
		return AuthSession{}, err
	}
	if strings.TrimSpace(cmd.Password) == "" {
		return AuthSession{}, fmt.Errorf("%w: password is required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return AuthSession{}, ErrUserInvalidCredentials
		}
		return AuthSession{}, err
	}
	if user.Role == domain.RoleBlocked {
		return AuthSession{}, ErrUserBlocked
	}
	if err := s.passwords.Verify(user.PasswordHash, cmd.Password); err != nil {
		return AuthSession{}, ErrUserInvalidCredentials
	}

	return s.issueSession(ctx, user, s.clock())
}

func (s *userService) Refresh(ctx context.Context, cmd RefreshCommand) (AuthSession, error) {
	stored, claims, err := s.verifyStoredRefreshToken(ctx, cmd.RefreshToken)
	if err != nil {
		return AuthSession{}, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if isNotFound(err) {
			return AuthSession{}, ErrUserTokenInvalid
		}
		return AuthSession{}, err
	}
	if user.Role == domain.RoleBlocked {
		return AuthSession{}, ErrUserBlocked
	}

	// Rotate: the presented token is single use.
	now := s.clock()
	if err := s.refresh.Revoke(ctx, stored.ID, now); err != nil {
		return AuthSession{}, s.mapRepositoryError(err)
	}

	return s.issueSession(ctx, user, now)
}

func (s *userService) Logout(ctx context.Context, cmd LogoutCommand) error {
	stored, _, err := s.verifyStoredRefreshToken(ctx, cmd.RefreshToken)
	if err != nil {
		return err
	}
	if err := s.refresh.Revoke(ctx, stored.ID, s.clock()); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *userService) GetUser(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context, pager Pagination) (domain.CursorPage[User], error) {
	page, err := s.users.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[User]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *userService) ChangeRole(ctx context.Context, cmd ChangeRoleCommand) (User, error) {
	if !cmd.Actor.IsAdmin() {
		return User{}, ErrUserAccessDenied
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if userID == cmd.Actor.ID {
		return User{}, fmt.Errorf("%w: cannot change own role", ErrUserInvalidInput)
	}
	role := domain.Role(strings.ToLower(strings.TrimSpace(cmd.Role)))
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrUserInvalidInput, cmd.Role)
	}

	now := s.clock()
	user, err := s.users.UpdateRole(ctx, userID, role, now)
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}

	// A blocked account must not keep working refresh tokens.
	if role == domain.RoleBlocked {
		if _, err := s.refresh.RevokeAllForUser(ctx, userID, now); err != nil {
			s.logger(ctx, "user.revoke_tokens_failed", map[string]any{
				"userId": userID,
				"error":  err.Error(),
			})
		}
	}

	return user, nil
}

func (s *userService) PruneExpiredTokens(ctx context.Context, limit int) (int, error) {
	deleted, err := s.refresh.DeleteExpired(ctx, s.clock(), limit)
	if err != nil {
		return deleted, s.mapRepositoryError(err)
	}
	return deleted, nil
}

func (s *userService) issueSession(ctx context.Context, user domain.User, now time.Time) (AuthSession, error) {
	pair, err := s.tokens.IssueTokenPair(ctx, auth.Identity{
		UID:   user.ID,
		Email: user.Email,
		Role:  string(user.Role),
	})
	if err != nil {
		return AuthSession{}, fmt.Errorf("issue token pair: %w", err)
	}

	if err := s.refresh.Insert(ctx, domain.RefreshToken{
		ID:        pair.RefreshTokenID,
		UserID:    user.ID,
		TokenHash: auth.HashToken(pair.RefreshToken),
		ExpiresAt: pair.RefreshExpiresAt,
		CreatedAt: now,
	}); err != nil {
		return AuthSession{}, s.mapRepositoryError(err)
	}

	return AuthSession{
		User:             user,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

func (s *userService) verifyStoredRefreshToken(ctx context.Context, token string) (domain.RefreshToken, *auth.RefreshClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.RefreshToken{}, nil, fmt.Errorf("%w: refresh token is required", ErrUserInvalidInput)
	}

	claims, err := s.tokens.VerifyRefreshToken(ctx, token)
	if err != nil {
		return domain.RefreshToken{}, nil, ErrUserTokenInvalid
	}

	stored, err := s.refresh.FindByID(ctx, claims.TokenID)
	if err != nil {
		if isNotFound(err) {
			return domain.RefreshToken{}, nil, ErrUserTokenInvalid
		}
		return domain.RefreshToken{}, nil, err
	}
	if stored.RevokedAt != nil {
		return domain.RefreshToken{}, nil, ErrUserTokenInvalid
	}
	if stored.UserID != claims.UserID {
		return domain.RefreshToken{}, nil, ErrUserTokenInvalid
	}
	if stored.TokenHash != auth.HashToken(token) {
		return domain.RefreshToken{}, nil, ErrUserTokenInvalid
	}
	if !s.clock().Before(stored.ExpiresAt) {
		return domain.RefreshToken{}, nil, ErrUserTokenInvalid
	}

	return stored, claims, nil
}

func (s *userService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrUserNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrUserEmailTaken, err)
		}
	}
	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func normaliseAndValidateEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrUserInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: malformed email address", ErrUserInvalidInput)
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrUserInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password exceeds %d characters", ErrUserInvalidInput, maxPasswordLength)
	}
	return nil
}
