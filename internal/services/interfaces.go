package services

import (
	"context"
	"time"

	domain "github.com/bookleaf/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Book               = domain.Book
	Category           = domain.Category
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	User               = domain.User
	Role               = domain.Role
	RevenueReport      = domain.RevenueReport
	SystemHealthReport = domain.SystemHealthReport
)

// Actor identifies the authenticated caller for authorisation decisions made
// inside services. Route-level role gating happens in middleware; services
// enforce the finer-grained rules such as resource ownership.
type Actor struct {
	ID   string
	Role domain.Role
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == domain.RoleAdmin
}

// BookService manages the catalog: validation, sanitisation, and persistence
// of book entries together with their stock counts.
type BookService interface {
	CreateBook(ctx context.Context, cmd CreateBookCommand) (Book, error)
	GetBook(ctx context.Context, bookID string) (Book, error)
	ListBooks(ctx context.Context, query BookListQuery) (domain.CursorPage[Book], error)
	UpdateBook(ctx context.Context, cmd UpdateBookCommand) (Book, error)
	DeleteBook(ctx context.Context, bookID string) error
}

// CreateBookCommand carries the fields for a new catalog entry.
type CreateBookCommand struct {
	Title       string
	Author      string
	Price       int64
	Category    string
	Description string
	Quantity    int
}

// UpdateBookCommand carries a partial update; nil fields are left unchanged.
type UpdateBookCommand struct {
	BookID      string
	Title       *string
	Author      *string
	Price       *int64
	Category    *string
	Description *string
	Quantity    *int
}

// BookListQuery controls filtering and paging for catalog listings.
type BookListQuery struct {
	Category   string
	InStock    *bool
	Search     string
	PriceMin   *int64
	PriceMax   *int64
	Pagination Pagination
}

// OrderService encapsulates order placement, the status machine, cancellation
// with stock restoration, and revenue reporting.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, actor Actor, orderID string) (Order, error)
	ListMyOrders(ctx context.Context, actor Actor, query OrderListQuery) (domain.Page[Order], error)
	ListAllOrders(ctx context.Context, query OrderListQuery) (domain.Page[Order], error)
	UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) error
	Revenue(ctx context.Context) (RevenueReport, error)
}

// OrderLineInput names a requested book and quantity.
type OrderLineInput struct {
	BookID   string
	Quantity int
}

// CreateOrderCommand places an order for the acting user.
type CreateOrderCommand struct {
	Actor Actor
	Lines []OrderLineInput
}

// OrderStatusCommand requests a status transition on an order.
type OrderStatusCommand struct {
	Actor   Actor
	OrderID string
	Target  string
}

// CancelOrderCommand cancels an order, restoring reserved stock.
type CancelOrderCommand struct {
	Actor   Actor
	OrderID string
}

// DeleteOrderCommand removes a cancelled order.
type DeleteOrderCommand struct {
	Actor   Actor
	OrderID string
}

// OrderListQuery controls filtering, sorting, and offset paging for order listings.
type OrderListQuery struct {
	Status    string
	From      *time.Time
	To        *time.Time
	SortBy    string
	SortOrder string
	Page      domain.PageQuery
}

// Order event types published for downstream consumers.
const (
	OrderEventCreated       = "order.created"
	OrderEventStatusChanged = "order.status_changed"
	OrderEventCancelled     = "order.cancelled"
)

// OrderEventMessage is the payload published for order lifecycle events.
type OrderEventMessage struct {
	EventID        string    `json:"eventId"`
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	UserID         string    `json:"userId"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	TotalPrice     int64     `json:"totalPrice,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// OrderEventPublisher publishes order lifecycle events, returning the broker
// message ID on success.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEventMessage) (string, error)
}

// UserService manages registration, authentication, token rotation, and
// account administration.
type UserService interface {
	Register(ctx context.Context, cmd RegisterCommand) (AuthSession, error)
	Login(ctx context.Context, cmd LoginCommand) (AuthSession, error)
	Refresh(ctx context.Context, cmd RefreshCommand) (AuthSession, error)
	Logout(ctx context.Context, cmd LogoutCommand) error
	GetUser(ctx context.Context, userID string) (User, error)
	ListUsers(ctx context.Context, pager Pagination) (domain.CursorPage[User], error)
	ChangeRole(ctx context.Context, cmd ChangeRoleCommand) (User, error)
	PruneExpiredTokens(ctx context.Context, limit int) (int, error)
}

// RegisterCommand creates a new account.
type RegisterCommand struct {
	Email    string
	Name     string
	Password string
}

// LoginCommand authenticates by email and password.
type LoginCommand struct {
	Email    string
	Password string
}

// RefreshCommand rotates a refresh token into a new token pair.
type RefreshCommand struct {
	RefreshToken string
}

// LogoutCommand revokes the presented refresh token.
type LogoutCommand struct {
	RefreshToken string
}

// ChangeRoleCommand assigns a role to a user.
type ChangeRoleCommand struct {
	Actor  Actor
	UserID string
	Role   string
}

// AuthSession bundles the authenticated user with the issued token pair.
type AuthSession struct {
	User             User
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// SystemService exposes operational surfaces such as dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
