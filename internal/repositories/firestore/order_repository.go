package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/bookleaf/api/internal/domain"
	pfirestore "github.com/bookleaf/api/internal/platform/firestore"
	"github.com/bookleaf/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository implements repositories.OrderRepository backed by Firestore.
// Order state and book stock always move together inside a single transaction.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	books    *pfirestore.BaseRepository[bookDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	orders := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	books := pfirestore.NewBaseRepository[bookDocument](provider, booksCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: orders, books: books}, nil
}

// Create reads every requested book, verifies availability, snapshots unit
// prices, decrements stock, and writes the pending order atomically.
func (r *OrderRepository) Create(ctx context.Context, req repositories.OrderCreateRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return domain.Order{}, errors.New("order create: order id is required")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return domain.Order{}, errors.New("order create: user id is required")
	}
	if len(req.Lines) == 0 {
		return domain.Order{}, errors.New("order create: at least one line is required")
	}

	now := req.Now.UTC()
	var created domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, req.OrderID)
		if err != nil {
			return err
		}

		type reservedBook struct {
			ref *firestore.DocumentRef
			doc bookDocument
		}
		reserved := make([]reservedBook, 0, len(req.Lines))
		items := make([]domain.OrderItem, 0, len(req.Lines))

		for _, line := range req.Lines {
			bookID := strings.TrimSpace(line.BookID)
			if bookID == "" {
				return repositories.NewInventoryError(repositories.InventoryErrorBookNotFound, "order create: book id is required", nil)
			}
			if line.Quantity <= 0 {
				return repositories.NewInventoryError(repositories.InventoryErrorUnknown, fmt.Sprintf("order create: quantity for %s must be > 0", bookID), nil)
			}

			bookRef, err := r.books.DocumentRef(ctx, bookID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(bookRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewInventoryError(repositories.InventoryErrorBookNotFound, fmt.Sprintf("book %s not found", bookID), err)
				}
				return err
			}
			var bookDoc bookDocument
			if err := snap.DataTo(&bookDoc); err != nil {
				return fmt.Errorf("decode book %s: %w", bookID, err)
			}
			if bookDoc.Quantity < line.Quantity {
				return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, fmt.Sprintf("insufficient stock for %s", bookID), nil)
			}

			bookDoc.Quantity -= line.Quantity
			bookDoc.InStock = bookDoc.Quantity > 0
			bookDoc.UpdatedAt = now
			reserved = append(reserved, reservedBook{ref: bookRef, doc: bookDoc})

			items = append(items, domain.OrderItem{
				BookID:    bookID,
				Title:     bookDoc.Title,
				UnitPrice: bookDoc.Price,
				Quantity:  line.Quantity,
			})
		}

		for _, rb := range reserved {
			if err := tx.Set(rb.ref, rb.doc); err != nil {
				return err
			}
		}

		order := domain.Order{
			ID:          req.OrderID,
			OrderNumber: strings.TrimSpace(req.OrderNumber),
			UserID:      strings.TrimSpace(req.UserID),
			Items:       items,
			TotalPrice:  domain.OrderTotal(items),
			Status:      domain.OrderStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return repositories.NewInventoryError(repositories.InventoryErrorInvalidOrderState, fmt.Sprintf("order %s already exists", req.OrderID), err)
			}
			return err
		}

		created = order
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.create", err)
	}
	return created, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// UpdateStatus transitions the order status after verifying the current status
// is within the allowed set, guarding against concurrent transitions.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, req repositories.OrderStatusUpdate) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order update status: id is required")
	}
	if !req.To.Valid() {
		return domain.Order{}, fmt.Errorf("order update status: invalid status %q", req.To)
	}

	now := req.Now.UTC()
	var updated domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		orderDoc, err := r.getOrderTx(tx, orderRef, orderID)
		if err != nil {
			return err
		}
		if !statusAllowed(domain.OrderStatus(orderDoc.Status), req.From) {
			return repositories.NewInventoryError(repositories.InventoryErrorInvalidOrderState, fmt.Sprintf("order %s cannot move from %s to %s", orderID, orderDoc.Status, req.To), nil)
		}

		orderDoc.Status = string(req.To)
		orderDoc.UpdatedAt = now
		if req.To == domain.OrderStatusCompleted {
			orderDoc.CompletedAt = &now
		}

		if err := tx.Set(orderRef, orderDoc); err != nil {
			return err
		}
		updated = orderDoc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.updateStatus", err)
	}
	return updated, nil
}

// Cancel marks the order cancelled and restores the purchased quantities to
// each book in the same transaction.
func (r *OrderRepository) Cancel(ctx context.Context, orderID string, req repositories.OrderCancelRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order cancel: id is required")
	}

	now := req.Now.UTC()
	var cancelled domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		orderDoc, err := r.getOrderTx(tx, orderRef, orderID)
		if err != nil {
			return err
		}
		if !statusAllowed(domain.OrderStatus(orderDoc.Status), req.From) {
			return repositories.NewInventoryError(repositories.InventoryErrorInvalidOrderState, fmt.Sprintf("order %s cannot be cancelled from status %s", orderID, orderDoc.Status), nil)
		}

		type restockedBook struct {
			ref *firestore.DocumentRef
			doc bookDocument
		}
		restocked := make([]restockedBook, 0, len(orderDoc.Items))

		for _, item := range orderDoc.Items {
			bookRef, err := r.books.DocumentRef(ctx, item.BookID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(bookRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					// The book was removed from the catalog; its stock cannot be restored.
					continue
				}
				return err
			}
			var bookDoc bookDocument
			if err := snap.DataTo(&bookDoc); err != nil {
				return fmt.Errorf("decode book %s: %w", item.BookID, err)
			}
			bookDoc.Quantity += item.Quantity
			bookDoc.InStock = bookDoc.Quantity > 0
			bookDoc.UpdatedAt = now
			restocked = append(restocked, restockedBook{ref: bookRef, doc: bookDoc})
		}

		for _, rb := range restocked {
			if err := tx.Set(rb.ref, rb.doc); err != nil {
				return err
			}
		}

		orderDoc.Status = string(domain.OrderStatusCancelled)
		orderDoc.UpdatedAt = now
		orderDoc.CancelledAt = &now

		if err := tx.Set(orderRef, orderDoc); err != nil {
			return err
		}
		cancelled = orderDoc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.cancel", err)
	}
	return cancelled, nil
}

// Delete removes an order document. Only cancelled orders may be deleted.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order delete: id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		orderDoc, err := r.getOrderTx(tx, orderRef, orderID)
		if err != nil {
			return err
		}
		if domain.OrderStatus(orderDoc.Status) != domain.OrderStatusCancelled {
			return repositories.NewInventoryError(repositories.InventoryErrorInvalidOrderState, fmt.Sprintf("order %s is not cancelled", orderID), nil)
		}
		return tx.Delete(orderRef)
	})
	if err != nil {
		return wrapOrderError("orders.delete", err)
	}
	return nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.Page[domain.Order]{}, errors.New("order repository not initialised")
	}

	page := filter.Page.Page
	if page <= 0 {
		page = 1
	}
	limit := filter.Page.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("userId", "==", userID)
	}
	if len(filter.Status) == 1 {
		query = query.Where("status", "==", string(filter.Status[0]))
	} else if len(filter.Status) > 1 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		query = query.Where("status", "in", statuses)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}

	total, err := countOrders(ctx, query)
	if err != nil {
		return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	sortField := "createdAt"
	if filter.SortBy == domain.OrderSortTotalPrice {
		sortField = "totalPrice"
	}
	direction := firestore.Desc
	if filter.SortOrder == domain.SortAsc {
		direction = firestore.Asc
	}
	query = query.OrderBy(sortField, direction).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Offset((page - 1) * limit).
		Limit(limit)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return domain.Page[domain.Order]{
		Items: orders,
		Meta: domain.PageMeta{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

// Revenue aggregates total revenue and order count across completed orders
// using a server-side aggregation query.
func (r *OrderRepository) Revenue(ctx context.Context) (domain.RevenueReport, error) {
	if r == nil || r.provider == nil {
		return domain.RevenueReport{}, errors.New("order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.RevenueReport{}, pfirestore.WrapError("orders.revenue", err)
	}

	query := client.Collection(ordersCollection).Query.
		Where("status", "==", string(domain.OrderStatusCompleted))

	results, err := query.NewAggregationQuery().
		WithSum("totalPrice", "revenue").
		WithCount("orders").
		Get(ctx)
	if err != nil {
		return domain.RevenueReport{}, pfirestore.WrapError("orders.revenue", err)
	}

	report := domain.RevenueReport{}
	if raw, ok := results["revenue"]; ok {
		report.TotalRevenue = aggregationInt(raw)
	}
	if raw, ok := results["orders"]; ok {
		report.CompletedOrders = aggregationInt(raw)
	}
	return report, nil
}

func (r *OrderRepository) getOrderTx(tx *firestore.Transaction, ref *firestore.DocumentRef, orderID string) (orderDocument, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return orderDocument{}, pfirestore.WrapError("orders.get", err)
		}
		return orderDocument{}, err
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return orderDocument{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return doc, nil
}

func statusAllowed(current domain.OrderStatus, allowed []domain.OrderStatus) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, s := range allowed {
		if s == current {
			return true
		}
	}
	return false
}

func countOrders(ctx context.Context, query firestore.Query) (int64, error) {
	results, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, err
	}
	raw, ok := results["total"]
	if !ok {
		return 0, nil
	}
	return aggregationInt(raw), nil
}

func aggregationInt(raw any) int64 {
	value, ok := raw.(*firestorepb.Value)
	if !ok || value == nil {
		return 0
	}
	switch v := value.ValueType.(type) {
	case *firestorepb.Value_IntegerValue:
		return v.IntegerValue
	case *firestorepb.Value_DoubleValue:
		return int64(v.DoubleValue)
	default:
		return 0
	}
}

// Helper structures ---------------------------------------------------------

type orderDocument struct {
	OrderNumber string              `firestore:"orderNumber"`
	UserID      string              `firestore:"userId"`
	Items       []orderItemDocument `firestore:"items"`
	TotalPrice  int64               `firestore:"totalPrice"`
	Status      string              `firestore:"status"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt"`
	CompletedAt *time.Time          `firestore:"completedAt,omitempty"`
	CancelledAt *time.Time          `firestore:"cancelledAt,omitempty"`
}

type orderItemDocument struct {
	BookID    string `firestore:"bookId"`
	Title     string `firestore:"title"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"qty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			BookID:    strings.TrimSpace(item.BookID),
			Title:     strings.TrimSpace(item.Title),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return orderDocument{
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		UserID:      strings.TrimSpace(order.UserID),
		Items:       items,
		TotalPrice:  order.TotalPrice,
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),
		CompletedAt: order.CompletedAt,
		CancelledAt: order.CancelledAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			BookID:    item.BookID,
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		UserID:      d.UserID,
		Items:       items,
		TotalPrice:  d.TotalPrice,
		Status:      domain.OrderStatus(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		CompletedAt: d.CompletedAt,
		CancelledAt: d.CancelledAt,
	}
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
