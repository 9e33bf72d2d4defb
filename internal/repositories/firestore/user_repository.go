package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/bookleaf/api/internal/domain"
	pfirestore "github.com/bookleaf/api/internal/platform/firestore"
)

const (
	usersCollection      = "users"
	userEmailsCollection = "userEmails"
)

// UserRepository implements repositories.UserRepository backed by Firestore.
// Email uniqueness is enforced through an index document keyed by the
// normalised address, created in the same transaction as the user.
type UserRepository struct {
	provider *pfirestore.Provider
	users    *pfirestore.BaseRepository[userDocument]
	emails   *pfirestore.BaseRepository[emailIndexDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	users := pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil, nil)
	emails := pfirestore.NewBaseRepository[emailIndexDocument](provider, userEmailsCollection, nil, nil)
	return &UserRepository{provider: provider, users: users, emails: emails}, nil
}

func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if r == nil || r.provider == nil {
		return errors.New("user repository not initialised")
	}
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user insert: id is required")
	}
	emailKey := normaliseEmail(user.Email)
	if emailKey == "" {
		return errors.New("user insert: email is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		userRef, err := r.users.DocumentRef(ctx, user.ID)
		if err != nil {
			return err
		}
		emailRef, err := r.emails.DocumentRef(ctx, emailKey)
		if err != nil {
			return err
		}

		if err := tx.Create(emailRef, emailIndexDocument{UserID: user.ID, CreatedAt: user.CreatedAt.UTC()}); err != nil {
			return err
		}
		return tx.Create(userRef, newUserDocument(user))
	})
	if err != nil {
		return pfirestore.WrapError("users.insert", err)
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	if r == nil || r.users == nil {
		return errors.New("user repository not initialised")
	}
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user update: id is required")
	}

	ref, err := r.users.DocumentRef(ctx, user.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, newUserDocument(user)); err != nil {
		return pfirestore.WrapError("users.update", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.users == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, errors.New("user find: id is required")
	}

	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if r == nil || r.emails == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	emailKey := normaliseEmail(email)
	if emailKey == "" {
		return domain.User{}, errors.New("user find by email: email is required")
	}

	index, err := r.emails.Get(ctx, emailKey)
	if err != nil {
		return domain.User{}, err
	}
	return r.FindByID(ctx, index.Data.UserID)
}

func (r *UserRepository) UpdateRole(ctx context.Context, userID string, role domain.Role, now time.Time) (domain.User, error) {
	if r == nil || r.provider == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, errors.New("user update role: id is required")
	}
	if !role.Valid() {
		return domain.User{}, fmt.Errorf("user update role: invalid role %q", role)
	}

	var updated domain.User
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.users.DocumentRef(ctx, userID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc userDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode user %s: %w", userID, err)
		}
		doc.Role = string(role)
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(userID)
		return nil
	})
	if err != nil {
		return domain.User{}, pfirestore.WrapError("users.updateRole", err)
	}
	return updated, nil
}

func (r *UserRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.User], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.User]{}, errors.New("user repository not initialised")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.User]{}, pfirestore.WrapError("users.list", err)
	}

	query := client.Collection(usersCollection).Query.
		OrderBy("createdAt", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		decoded, err := decodeUserPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.User]{}, pfirestore.WrapError("users.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var users []domain.User
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.User]{}, pfirestore.WrapError("users.list", err)
		}
		var doc userDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.User]{}, fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
		}
		users = append(users, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(users) > pageSize
	if hasMore {
		users = users[:pageSize]
	}
	var nextToken string
	if hasMore && len(users) > 0 {
		last := users[len(users)-1]
		encoded, err := encodeUserPageToken(userPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.User]{}, pfirestore.WrapError("users.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.User]{
		Items:         users,
		NextPageToken: nextToken,
	}, nil
}

// Helper structures ---------------------------------------------------------

type userDocument struct {
	Email        string    `firestore:"email"`
	Name         string    `firestore:"name"`
	PasswordHash string    `firestore:"passwordHash"`
	Role         string    `firestore:"role"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

type emailIndexDocument struct {
	UserID    string    `firestore:"userId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newUserDocument(user domain.User) userDocument {
	return userDocument{
		Email:        normaliseEmail(user.Email),
		Name:         strings.TrimSpace(user.Name),
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}
}

func (d userDocument) toDomain(id string) domain.User {
	return domain.User{
		ID:           id,
		Email:        d.Email,
		Name:         d.Name,
		PasswordHash: d.PasswordHash,
		Role:         domain.Role(d.Role),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type userPageToken struct {
	ID        string
	CreatedAt time.Time
}

func encodeUserPageToken(token userPageToken) (string, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	if err := enc.Encode(token); err != nil {
		return "", fmt.Errorf("encode user page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeUserPageToken(encoded string) (*userPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode user page token: %w", err)
	}
	var token userPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode user page token json: %w", err)
	}
	return &token, nil
}
