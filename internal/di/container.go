package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookleaf/api/internal/platform/auth"
	"github.com/bookleaf/api/internal/platform/config"
	"github.com/bookleaf/api/internal/repositories"
	"github.com/bookleaf/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Books  services.BookService
	Orders services.OrderService
	Users  services.UserService
	System services.SystemService
}

// Container wires repositories, services, and the auth stack for runtime use.
type Container struct {
	Config        config.Config
	Repositories  repositories.Registry
	Services      Services
	TokenManager  *auth.TokenManager
	Authenticator *auth.Authenticator
}

// Option customises container construction.
type Option func(*options)

type options struct {
	events services.OrderEventPublisher
	logger func(ctx context.Context, event string, fields map[string]any)
	clock  func() time.Time
}

// WithOrderEventPublisher injects the broker used for order lifecycle events.
// Without one the order service runs with publishing disabled.
func WithOrderEventPublisher(events services.OrderEventPublisher) Option {
	return func(o *options) {
		o.events = events
	}
}

// WithServiceLogger injects the structured event logger passed to services.
func WithServiceLogger(logger func(ctx context.Context, event string, fields map[string]any)) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock overrides the time source used by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry, while tests can supply in-memory registries.
func NewContainer(_ context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	tokens, err := auth.NewTokenManager(auth.TokenManagerConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
		Issuer:        cfg.Auth.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("build token manager: %w", err)
	}
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	authenticator := auth.NewAuthenticator(tokens)

	svc, err := buildServices(reg, tokens, hasher, o)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:        cfg,
		Repositories:  reg,
		Services:      svc,
		TokenManager:  tokens,
		Authenticator: authenticator,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, tokens *auth.TokenManager, hasher *auth.PasswordHasher, o options) (Services, error) {
	var svc Services

	books, err := services.NewBookService(services.BookServiceDeps{
		Books: reg.Books(),
		Clock: o.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build book service: %w", err)
	}
	svc.Books = books

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Counters: reg.Counters(),
		Clock:    o.clock,
		Events:   o.events,
		Logger:   o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	users, err := services.NewUserService(services.UserServiceDeps{
		Users:         reg.Users(),
		RefreshTokens: reg.RefreshTokens(),
		Tokens:        tokens,
		Passwords:     hasher,
		Clock:         o.clock,
		Logger:        o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = users

	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            o.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = system

	return svc, nil
}
