package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"
)

// Sentinel errors surfaced by token verification.
var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: token invalid")
)

const (
	tokenKindAccess  = "access"
	tokenKindRefresh = "refresh"
)

// Claims carries the Bookleaf-specific claims embedded in issued tokens.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Kind  string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenPair bundles the access and refresh tokens returned on login.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	RefreshTokenID   string
}

// TokenManagerConfig captures the signing material and lifetimes for issued tokens.
type TokenManagerConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenManager issues and verifies HS256-signed access and refresh tokens.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	clock         func() time.Time
	idGenerator   func() string
}

// TokenManagerOption customises TokenManager construction.
type TokenManagerOption func(*TokenManager)

// WithClock overrides the time source used when stamping token lifetimes.
func WithClock(clock func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithTokenIDGenerator overrides the generator used for the jti claim.
func WithTokenIDGenerator(generator func() string) TokenManagerOption {
	return func(m *TokenManager) {
		if generator != nil {
			m.idGenerator = generator
		}
	}
}

// NewTokenManager validates the configuration and builds a TokenManager.
func NewTokenManager(cfg TokenManagerConfig, opts ...TokenManagerOption) (*TokenManager, error) {
	if strings.TrimSpace(cfg.AccessSecret) == "" {
		return nil, errors.New("auth: access secret is required")
	}
	if strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, errors.New("auth: refresh secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}

	manager := &TokenManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		clock:         time.Now,
		idGenerator: func() string {
			return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
		},
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager, nil
}

// IssueTokenPair mints a fresh access/refresh token pair for the identity.
func (m *TokenManager) IssueTokenPair(_ context.Context, identity Identity) (*TokenPair, error) {
	now := m.clock().UTC()
	accessExpiry := now.Add(m.accessTTL)
	refreshExpiry := now.Add(m.refreshTTL)
	refreshID := m.idGenerator()

	access, err := m.sign(m.accessSecret, Claims{
		Email: identity.Email,
		Role:  identity.Role,
		Kind:  tokenKindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   identity.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
			ID:        m.idGenerator(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("auth: sign access token: %w", err)
	}

	refresh, err := m.sign(m.refreshSecret, Claims{
		Kind: tokenKindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   identity.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExpiry),
			ID:        refreshID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("auth: sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
		RefreshTokenID:   refreshID,
	}, nil
}

// VerifyAccessToken validates an access token and returns the embedded identity.
func (m *TokenManager) VerifyAccessToken(_ context.Context, token string) (*Identity, error) {
	claims, err := m.parse(m.accessSecret, token)
	if err != nil {
		return nil, err
	}
	if claims.Kind != tokenKindAccess {
		return nil, fmt.Errorf("%w: unexpected token kind %q", ErrTokenInvalid, claims.Kind)
	}
	return &Identity{
		UID:   claims.Subject,
		Email: claims.Email,
		Role:  normaliseRole(claims.Role),
	}, nil
}

// RefreshClaims describes the verified contents of a refresh token.
type RefreshClaims struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
}

// VerifyRefreshToken validates a refresh token and returns its subject and jti.
func (m *TokenManager) VerifyRefreshToken(_ context.Context, token string) (*RefreshClaims, error) {
	claims, err := m.parse(m.refreshSecret, token)
	if err != nil {
		return nil, err
	}
	if claims.Kind != tokenKindRefresh {
		return nil, fmt.Errorf("%w: unexpected token kind %q", ErrTokenInvalid, claims.Kind)
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return &RefreshClaims{
		UserID:    claims.Subject,
		TokenID:   claims.ID,
		ExpiresAt: expiresAt,
	}, nil
}

func (m *TokenManager) sign(secret []byte, claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (m *TokenManager) parse(secret []byte, raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	// Claims validation is done manually against the injected clock; the
	// library's automatic validation only consults the package-global TimeFunc.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := m.clock().UTC()
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrTokenInvalid)
	}
	if now.After(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("%w: expired at %s", ErrTokenExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return nil, fmt.Errorf("%w: not yet valid", ErrTokenInvalid)
	}
	if m.issuer != "" && claims.Issuer != m.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrTokenInvalid, claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

// HashToken derives the hex-encoded SHA-256 digest stored for refresh tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
