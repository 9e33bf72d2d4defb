package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/bookleaf/api/internal/domain"
	"github.com/bookleaf/api/internal/platform/auth"
	"github.com/bookleaf/api/internal/platform/httpx"
	"github.com/bookleaf/api/internal/platform/pagination"
	"github.com/bookleaf/api/internal/services"
)

const maxOrderBodySize = 64 * 1024

// OrderHandlers serves order placement, lifecycle, and reporting endpoints.
// Every route requires authentication; admin-only routes are gated separately.
type OrderHandlers struct {
	orders services.OrderService
	authn  *auth.Authenticator
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService, authn *auth.Authenticator) *OrderHandlers {
	return &OrderHandlers{orders: orders, authn: authn}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Group(func(g chi.Router) {
		g.Use(h.authn.RequireAuth(auth.RoleAdmin, auth.RoleUser))
		g.Post("/", h.create)
		g.Get("/my-orders", h.listMine)
		g.Get("/{orderID}", h.get)
		g.Post("/{orderID}/cancel", h.cancel)
		g.Patch("/{orderID}/status", h.updateStatus)
		g.Delete("/{orderID}", h.delete)
	})

	r.Group(func(g chi.Router) {
		g.Use(h.authn.RequireAuth(auth.RoleAdmin))
		g.Get("/all", h.listAll)
		g.Get("/revenue", h.revenue)
	})
}

type createOrderRequest struct {
	Books []orderLineRequest `json:"books"`
}

type orderLineRequest struct {
	BookID   string `json:"book"`
	Quantity int    `json:"quantity"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type orderItemPayload struct {
	BookID    string `json:"bookId"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

type orderPayload struct {
	ID          string             `json:"id"`
	OrderNumber string             `json:"orderNumber"`
	UserID      string             `json:"userId"`
	Items       []orderItemPayload `json:"items"`
	TotalPrice  int64              `json:"totalPrice"`
	Status      string             `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
	CancelledAt *time.Time         `json:"cancelledAt,omitempty"`
}

type pageMetaPayload struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

func (h *OrderHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeOrderBody(ctx, w, r, &req) {
		return
	}

	lines := make([]services.OrderLineInput, 0, len(req.Books))
	for _, line := range req.Books {
		lines = append(lines, services.OrderLineInput{
			BookID:   line.BookID,
			Quantity: line.Quantity,
		})
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Actor: actor,
		Lines: lines,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, "order placed", buildOrderPayload(order))
}

func (h *OrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, actor, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "", buildOrderPayload(order))
}

func (h *OrderHandlers) listMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	query, err := parseOrderListQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListMyOrders(ctx, actor, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "", buildOrderPagePayload(page))
}

func (h *OrderHandlers) listAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query, err := parseOrderListQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListAllOrders(ctx, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "", buildOrderPagePayload(page))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	var req updateOrderStatusRequest
	if !decodeOrderBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.OrderStatusCommand{
		Actor:   actor,
		OrderID: chi.URLParam(r, "orderID"),
		Target:  req.Status,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "order status updated", buildOrderPayload(order))
}

func (h *OrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		Actor:   actor,
		OrderID: chi.URLParam(r, "orderID"),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "order cancelled", buildOrderPayload(order))
}

func (h *OrderHandlers) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	err := h.orders.DeleteOrder(ctx, services.DeleteOrderCommand{
		Actor:   actor,
		OrderID: chi.URLParam(r, "orderID"),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "order deleted", nil)
}

func (h *OrderHandlers) revenue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.orders.Revenue(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "", map[string]any{
		"totalRevenue":    report.TotalRevenue,
		"completedOrders": report.CompletedOrders,
	})
}

func (h *OrderHandlers) requireActor(ctx context.Context, w http.ResponseWriter) (services.Actor, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return services.Actor{}, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.Actor{}, false
	}
	return services.Actor{
		ID:   identity.UID,
		Role: domain.Role(strings.ToLower(identity.Role)),
	}, true
}

func parseOrderListQuery(r *http.Request) (services.OrderListQuery, error) {
	values := r.URL.Query()

	params, err := pagination.ParseOffset(values, pagination.OffsetOptions{
		DefaultLimit: 20,
		MaxLimit:     pagination.DefaultMaxPageSize,
	})
	if err != nil {
		return services.OrderListQuery{}, err
	}

	query := services.OrderListQuery{
		Status:    strings.TrimSpace(values.Get("status")),
		SortBy:    strings.TrimSpace(values.Get("sortBy")),
		SortOrder: strings.TrimSpace(values.Get("sortOrder")),
		Page: domain.PageQuery{
			Page:  params.Page,
			Limit: params.Limit,
		},
	}

	if raw := strings.TrimSpace(values.Get("startDate")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return services.OrderListQuery{}, errors.New("startDate must be an RFC 3339 timestamp")
		}
		query.From = &from
	}

	if raw := strings.TrimSpace(values.Get("endDate")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return services.OrderListQuery{}, errors.New("endDate must be an RFC 3339 timestamp")
		}
		query.To = &to
	}

	return query, nil
}

func decodeOrderBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOrderBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			BookID:    item.BookID,
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Items:       items,
		TotalPrice:  order.TotalPrice,
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
		CompletedAt: order.CompletedAt,
		CancelledAt: order.CancelledAt,
	}
}

func buildOrderPagePayload(page domain.Page[domain.Order]) map[string]any {
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	return map[string]any{
		"items": items,
		"meta": pageMetaPayload{
			Page:       page.Meta.Page,
			Limit:      page.Meta.Limit,
			Total:      page.Meta.Total,
			TotalPages: page.Meta.TotalPages,
		},
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderBookNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("book_not_found", "one or more books do not exist", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "requested quantity exceeds available stock", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderAccessDenied):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions for this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "order was modified concurrently", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
