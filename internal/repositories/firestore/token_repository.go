package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/bookleaf/api/internal/domain"
	pfirestore "github.com/bookleaf/api/internal/platform/firestore"
)

const refreshTokensCollection = "refreshTokens"

// RefreshTokenRepository stores hashed refresh tokens for rotation and revocation.
type RefreshTokenRepository struct {
	provider *pfirestore.Provider
	tokens   *pfirestore.BaseRepository[refreshTokenDocument]
}

// NewRefreshTokenRepository constructs a Firestore-backed refresh token repository.
func NewRefreshTokenRepository(provider *pfirestore.Provider) (*RefreshTokenRepository, error) {
	if provider == nil {
		return nil, errors.New("refresh token repository requires firestore provider")
	}
	tokens := pfirestore.NewBaseRepository[refreshTokenDocument](provider, refreshTokensCollection, nil, nil)
	return &RefreshTokenRepository{provider: provider, tokens: tokens}, nil
}

func (r *RefreshTokenRepository) Insert(ctx context.Context, token domain.RefreshToken) error {
	if r == nil || r.tokens == nil {
		return errors.New("refresh token repository not initialised")
	}
	if strings.TrimSpace(token.ID) == "" {
		return errors.New("refresh token insert: id is required")
	}

	ref, err := r.tokens.DocumentRef(ctx, token.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newRefreshTokenDocument(token)); err != nil {
		return pfirestore.WrapError("refreshTokens.insert", err)
	}
	return nil
}

func (r *RefreshTokenRepository) FindByID(ctx context.Context, tokenID string) (domain.RefreshToken, error) {
	if r == nil || r.tokens == nil {
		return domain.RefreshToken{}, errors.New("refresh token repository not initialised")
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return domain.RefreshToken{}, errors.New("refresh token find: id is required")
	}

	doc, err := r.tokens.Get(ctx, tokenID)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenID string, now time.Time) error {
	if r == nil || r.tokens == nil {
		return errors.New("refresh token repository not initialised")
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return errors.New("refresh token revoke: id is required")
	}

	if _, err := r.tokens.Update(ctx, tokenID, []firestore.Update{
		{Path: "revokedAt", Value: now.UTC()},
	}); err != nil {
		return err
	}
	return nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("refresh token repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errors.New("refresh token revoke all: user id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("refreshTokens.revokeAll", err)
	}

	iter := client.Collection(refreshTokensCollection).
		Where("userId", "==", userID).
		Where("revokedAt", "==", nil).
		Documents(ctx)
	defer iter.Stop()

	revoked := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return revoked, pfirestore.WrapError("refreshTokens.revokeAll", err)
		}
		if _, err := snap.Ref.Update(ctx, []firestore.Update{
			{Path: "revokedAt", Value: now.UTC()},
		}); err != nil {
			return revoked, pfirestore.WrapError("refreshTokens.revokeAll", err)
		}
		revoked++
	}
	return revoked, nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("refresh token repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("refreshTokens.deleteExpired", err)
	}

	iter := client.Collection(refreshTokensCollection).
		Where("expiresAt", "<", now.UTC()).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	deleted := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return deleted, pfirestore.WrapError("refreshTokens.deleteExpired", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return deleted, pfirestore.WrapError("refreshTokens.deleteExpired", err)
		}
		deleted++
	}
	return deleted, nil
}

// Helper structures ---------------------------------------------------------

type refreshTokenDocument struct {
	UserID    string     `firestore:"userId"`
	TokenHash string     `firestore:"tokenHash"`
	ExpiresAt time.Time  `firestore:"expiresAt"`
	CreatedAt time.Time  `firestore:"createdAt"`
	RevokedAt *time.Time `firestore:"revokedAt"`
}

func newRefreshTokenDocument(token domain.RefreshToken) refreshTokenDocument {
	return refreshTokenDocument{
		UserID:    strings.TrimSpace(token.UserID),
		TokenHash: token.TokenHash,
		ExpiresAt: token.ExpiresAt.UTC(),
		CreatedAt: token.CreatedAt.UTC(),
		RevokedAt: token.RevokedAt,
	}
}

func (d refreshTokenDocument) toDomain(id string) domain.RefreshToken {
	return domain.RefreshToken{
		ID:        id,
		UserID:    d.UserID,
		TokenHash: d.TokenHash,
		ExpiresAt: d.ExpiresAt,
		CreatedAt: d.CreatedAt,
		RevokedAt: d.RevokedAt,
	}
}
