package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/bookleaf/api/internal/domain"
	"github.com/bookleaf/api/internal/repositories"
)

const (
	orderIDPrefix      = "ord_"
	orderNumberCounter = "orders"
	orderNumberFormat  = "BL-%06d"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderBookNotFound indicates a requested book does not exist in the catalog.
	ErrOrderBookNotFound = errors.New("order: book not found")
	// ErrOrderInsufficientStock indicates a requested quantity exceeds availability.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderAccessDenied indicates the actor may not operate on the order.
	ErrOrderAccessDenied = errors.New("order: access denied")
	// ErrOrderConflict indicates concurrent modification or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
)

// orderStateTransitions lists the permitted target statuses per current status.
// Completed and cancelled are terminal.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusCompleted, domain.OrderStatusCancelled},
}

// cancellableStatuses enumerates statuses from which an order may be cancelled.
var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusProcessing,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	counters repositories.CounterRepository
	clock    func() time.Time
	newID    func() string
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
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

	return &orderService{
		orders:   deps.Orders,
		counters: deps.Counters,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.Actor.ID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}

	lines := make([]repositories.OrderLine, 0, len(cmd.Lines))
	seen := make(map[string]bool, len(cmd.Lines))
	for _, line := range cmd.Lines {
		bookID := strings.TrimSpace(line.BookID)
		if bookID == "" {
			return Order{}, fmt.Errorf("%w: book id is required", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: quantity for book %s must be positive", ErrOrderInvalidInput, bookID)
		}
		if seen[bookID] {
			return Order{}, fmt.Errorf("%w: book %s listed more than once", ErrOrderInvalidInput, bookID)
		}
		seen[bookID] = true
		lines = append(lines, repositories.OrderLine{BookID: bookID, Quantity: line.Quantity})
	}

	now := s.now()

	number, err := s.generateOrderNumber(ctx)
	if err != nil {
		return Order{}, err
	}

	order, err := s.orders.Create(ctx, repositories.OrderCreateRequest{
		OrderID:     orderIDPrefix + s.newID(),
		OrderNumber: number,
		UserID:      userID,
		Lines:       lines,
		Now:         now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEventMessage{
		Type:        OrderEventCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		TotalPrice:  order.TotalPrice,
		OccurredAt:  now,
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor Actor, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !canAccessOrder(actor, order) {
		return Order{}, ErrOrderAccessDenied
	}
	return order, nil
}

func (s *orderService) ListMyOrders(ctx context.Context, actor Actor, query OrderListQuery) (domain.Page[Order], error) {
	userID := strings.TrimSpace(actor.ID)
	if userID == "" {
		return domain.Page[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	filter, err := buildOrderListFilter(query)
	if err != nil {
		return domain.Page[Order]{}, err
	}
	filter.UserID = userID

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListAllOrders(ctx context.Context, query OrderListQuery) (domain.Page[Order], error) {
	filter, err := buildOrderListFilter(query)
	if err != nil {
		return domain.Page[Order]{}, err
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(cmd.Target)))
	if !target.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Target)
	}
	if target == domain.OrderStatusPending {
		return Order{}, fmt.Errorf("%w: orders cannot return to pending", ErrOrderInvalidState)
	}
	// Cancellation flows through the restocking path even when requested
	// through the status endpoint, and is open to the order's owner.
	// Every other transition is an admin operation.
	if target == domain.OrderStatusCancelled {
		return s.CancelOrder(ctx, CancelOrderCommand{Actor: cmd.Actor, OrderID: orderID})
	}
	if !cmd.Actor.IsAdmin() {
		return Order{}, ErrOrderAccessDenied
	}

	now := s.now()
	order, err := s.orders.UpdateStatus(ctx, orderID, repositories.OrderStatusUpdate{
		From: allowedSources(target),
		To:   target,
		Now:  now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEventMessage{
		Type:           OrderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		Status:         string(order.Status),
		PreviousStatus: string(previousStatus(target)),
		TotalPrice:     order.TotalPrice,
		OccurredAt:     now,
	})

	return order, nil
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	existing, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !canAccessOrder(cmd.Actor, existing) {
		return Order{}, ErrOrderAccessDenied
	}

	now := s.now()
	order, err := s.orders.Cancel(ctx, orderID, repositories.OrderCancelRequest{
		From: cancellableStatuses,
		Now:  now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEventMessage{
		Type:           OrderEventCancelled,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		Status:         string(order.Status),
		PreviousStatus: string(existing.Status),
		TotalPrice:     order.TotalPrice,
		OccurredAt:     now,
	})

	return order, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	existing, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if !canAccessOrder(cmd.Actor, existing) {
		return ErrOrderAccessDenied
	}
	if existing.Status != domain.OrderStatusCancelled {
		return fmt.Errorf("%w: only cancelled orders can be deleted", ErrOrderInvalidState)
	}

	if err := s.orders.Delete(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *orderService) Revenue(ctx context.Context) (RevenueReport, error) {
	report, err := s.orders.Revenue(ctx)
	if err != nil {
		return RevenueReport{}, s.mapRepositoryError(err)
	}
	return report, nil
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) generateOrderNumber(ctx context.Context) (string, error) {
	value, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	return fmt.Sprintf(orderNumberFormat, value), nil
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEventMessage) {
	if s.events == nil {
		return
	}
	event.EventID = "evt_" + s.newID()
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"orderId":   event.OrderID,
			"eventType": event.Type,
			"error":     err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrOrderInsufficientStock, invErr.Message)
		case repositories.InventoryErrorBookNotFound:
			return fmt.Errorf("%w: %s", ErrOrderBookNotFound, invErr.Message)
		case repositories.InventoryErrorInvalidOrderState:
			return fmt.Errorf("%w: %s", ErrOrderInvalidState, invErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		}
	}
	return err
}

func canAccessOrder(actor Actor, order Order) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.ID != "" && actor.ID == order.UserID
}

func allowedSources(target domain.OrderStatus) []domain.OrderStatus {
	var sources []domain.OrderStatus
	for from, targets := range orderStateTransitions {
		for _, to := range targets {
			if to == target {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

func previousStatus(target domain.OrderStatus) domain.OrderStatus {
	switch target {
	case domain.OrderStatusProcessing:
		return domain.OrderStatusPending
	case domain.OrderStatusCompleted:
		return domain.OrderStatusProcessing
	default:
		return ""
	}
}

func buildOrderListFilter(query OrderListQuery) (repositories.OrderListFilter, error) {
	filter := repositories.OrderListFilter{
		Page: query.Page,
	}

	if status := strings.ToLower(strings.TrimSpace(query.Status)); status != "" {
		parsed := domain.OrderStatus(status)
		if !parsed.Valid() {
			return repositories.OrderListFilter{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, query.Status)
		}
		filter.Status = []domain.OrderStatus{parsed}
	}

	filter.DateRange = domain.RangeQuery[time.Time]{From: query.From, To: query.To}

	switch strings.TrimSpace(query.SortBy) {
	case "", string(domain.OrderSortCreatedAt):
		filter.SortBy = domain.OrderSortCreatedAt
	case string(domain.OrderSortTotalPrice):
		filter.SortBy = domain.OrderSortTotalPrice
	default:
		return repositories.OrderListFilter{}, fmt.Errorf("%w: unknown sort field %q", ErrOrderInvalidInput, query.SortBy)
	}

	switch strings.ToLower(strings.TrimSpace(query.SortOrder)) {
	case "", string(domain.SortDesc):
		filter.SortOrder = domain.SortDesc
	case string(domain.SortAsc):
		filter.SortOrder = domain.SortAsc
	default:
		return repositories.OrderListFilter{}, fmt.Errorf("%w: unknown sort order %q", ErrOrderInvalidInput, query.SortOrder)
	}

	return filter, nil
}
