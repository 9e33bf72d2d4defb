package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of items with the continuation token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// PageQuery defines page/limit paging inputs for offset-based listings.
type PageQuery struct {
	Page  int
	Limit int
}

// PageMeta summarises an offset-paginated result set.
type PageMeta struct {
	Page       int
	Limit      int
	Total      int64
	TotalPages int
}

// Page wraps a slice of items together with offset pagination metadata.
type Page[T any] struct {
	Items []T
	Meta  PageMeta
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// Category classifies a book within the catalog.
type Category string

const (
	// CategoryFiction covers novels and other fictional works.
	CategoryFiction Category = "Fiction"
	// CategoryScience covers scientific and technical titles.
	CategoryScience Category = "Science"
	// CategorySelfDevelopment covers personal growth titles.
	CategorySelfDevelopment Category = "SelfDevelopment"
	// CategoryPoetry covers poetry collections.
	CategoryPoetry Category = "Poetry"
	// CategoryReligious covers religious and spiritual titles.
	CategoryReligious Category = "Religious"
)

// Categories lists every supported catalog category.
func Categories() []Category {
	return []Category{
		CategoryFiction,
		CategoryScience,
		CategorySelfDevelopment,
		CategoryPoetry,
		CategoryReligious,
	}
}

// Valid reports whether the category is one of the supported values.
func (c Category) Valid() bool {
	switch c {
	case CategoryFiction, CategoryScience, CategorySelfDevelopment, CategoryPoetry, CategoryReligious:
		return true
	default:
		return false
	}
}

// Book represents a catalog entry with live inventory counts.
// Price is stored in minor currency units.
type Book struct {
	ID          string
	Title       string
	Author      string
	Price       int64
	Category    Category
	Description string
	Quantity    int
	InStock     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderStatus describes lifecycle states for an order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was accepted and stock reserved.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates staff started fulfilling the order.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusCompleted indicates the order was fulfilled; terminal.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled and stock restored; terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether the status is one of the supported values.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// OrderItem captures a single order line with the unit price snapshotted at
// order time.
type OrderItem struct {
	BookID    string
	Title     string
	UnitPrice int64
	Quantity  int
}

// Order aggregates the purchase of one or more books by a user.
type Order struct {
	ID          string
	OrderNumber string
	UserID      string
	Items       []OrderItem
	TotalPrice  int64
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// OrderSort indicates the field used to order admin order listings.
type OrderSort string

const (
	// OrderSortCreatedAt sorts orders by creation time.
	OrderSortCreatedAt OrderSort = "createdAt"
	// OrderSortTotalPrice sorts orders by their total price.
	OrderSortTotalPrice OrderSort = "totalPrice"
)

// RevenueReport aggregates revenue across completed orders.
type RevenueReport struct {
	TotalRevenue    int64
	CompletedOrders int64
}

// Role enumerates authorisation roles assigned to users.
type Role string

const (
	// RoleAdmin grants full administrative access.
	RoleAdmin Role = "admin"
	// RoleUser grants standard customer access.
	RoleUser Role = "user"
	// RoleBlocked denies all authenticated access.
	RoleBlocked Role = "blocked"
)

// Valid reports whether the role is one of the supported values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleBlocked:
		return true
	default:
		return false
	}
}

// User represents an account able to authenticate against the API.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken stores the hash of an issued refresh token so it can be
// rotated or revoked.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}
