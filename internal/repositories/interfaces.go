package repositories

import (
	"context"
	"time"

	domain "github.com/bookleaf/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Books() BookRepository
	Orders() OrderRepository
	Users() UserRepository
	RefreshTokens() RefreshTokenRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// BookRepository persists catalog entries together with their live stock counts.
type BookRepository interface {
	Insert(ctx context.Context, book domain.Book) error
	Update(ctx context.Context, book domain.Book) error
	Delete(ctx context.Context, bookID string) error
	FindByID(ctx context.Context, bookID string) (domain.Book, error)
	List(ctx context.Context, filter BookListFilter) (domain.CursorPage[domain.Book], error)
}

// BookListFilter controls filtering, ordering, and paging for catalog listings.
type BookListFilter struct {
	Category   *domain.Category
	InStock    *bool
	Search     string
	PriceRange domain.RangeQuery[int64]
	Pagination domain.Pagination
}

// OrderRepository persists orders and owns the transactional coupling between
// order state and book stock.
type OrderRepository interface {
	// Create reads the requested books, verifies availability, snapshots unit
	// prices, decrements stock, and writes the pending order in one transaction.
	Create(ctx context.Context, req OrderCreateRequest) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// UpdateStatus transitions the order inside a transaction, failing with a
	// conflict when the current status is not in the allowed set.
	UpdateStatus(ctx context.Context, orderID string, req OrderStatusUpdate) (domain.Order, error)
	// Cancel marks the order cancelled and restores the reserved quantities to
	// each book in the same transaction.
	Cancel(ctx context.Context, orderID string, req OrderCancelRequest) (domain.Order, error)
	// Delete removes the order document; only cancelled orders may be deleted.
	Delete(ctx context.Context, orderID string) error
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	// Revenue aggregates total revenue and order count across completed orders.
	Revenue(ctx context.Context) (domain.RevenueReport, error)
}

// OrderLine names a requested book and quantity before prices are snapshotted.
type OrderLine struct {
	BookID   string
	Quantity int
}

// OrderCreateRequest carries the identifiers and lines for a transactional order creation.
type OrderCreateRequest struct {
	OrderID     string
	OrderNumber string
	UserID      string
	Lines       []OrderLine
	Now         time.Time
}

// OrderStatusUpdate describes a guarded status transition.
type OrderStatusUpdate struct {
	From []domain.OrderStatus
	To   domain.OrderStatus
	Now  time.Time
}

// OrderCancelRequest describes a cancellation with stock restoration.
type OrderCancelRequest struct {
	From []domain.OrderStatus
	Now  time.Time
}

// OrderListFilter controls filtering, sorting, and offset paging for order listings.
type OrderListFilter struct {
	UserID    string
	Status    []domain.OrderStatus
	DateRange domain.RangeQuery[time.Time]
	SortBy    domain.OrderSort
	SortOrder domain.SortOrder
	Page      domain.PageQuery
}

// UserRepository stores account records keyed by ID with unique email lookup.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	Update(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	UpdateRole(ctx context.Context, userID string, role domain.Role, now time.Time) (domain.User, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.User], error)
}

// RefreshTokenRepository stores hashed refresh tokens for rotation and revocation.
type RefreshTokenRepository interface {
	Insert(ctx context.Context, token domain.RefreshToken) error
	FindByID(ctx context.Context, tokenID string) (domain.RefreshToken, error)
	Revoke(ctx context.Context, tokenID string, now time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error)
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
