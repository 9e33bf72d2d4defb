package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/bookleaf/api/internal/platform/firestore"
	"github.com/bookleaf/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry interface for dependency injection.
type Registry struct {
	provider *pfirestore.Provider
	books    *BookRepository
	orders   *OrderRepository
	users    *UserRepository
	tokens   *RefreshTokenRepository
	counters *CounterRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises registry construction.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	extraChecks []repositories.DependencyCheck
}

// WithDependencyChecks registers additional probes evaluated by the health repository.
func WithDependencyChecks(checks ...repositories.DependencyCheck) RegistryOption {
	return func(o *registryOptions) {
		o.extraChecks = append(o.extraChecks, checks...)
	}
}

// NewRegistry constructs every Firestore-backed repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	options := registryOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	books, err := NewBookRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	tokens, err := NewRefreshTokenRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	checks := append([]repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
	}, options.extraChecks...)

	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		books:    books,
		orders:   orders,
		users:    users,
		tokens:   tokens,
		counters: counters,
		health:   health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Books() repositories.BookRepository { return r.books }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Users() repositories.UserRepository { return r.users }

func (r *Registry) RefreshTokens() repositories.RefreshTokenRepository { return r.tokens }

func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx groups repository operations inside a single Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}
