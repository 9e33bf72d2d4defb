package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/bookleaf/api/internal/domain"
	"github.com/bookleaf/api/internal/services"
)

type stubOrderService struct {
	createFn  func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error)
	getFn     func(ctx context.Context, actor services.Actor, orderID string) (domain.Order, error)
	listMyFn  func(ctx context.Context, actor services.Actor, query services.OrderListQuery) (domain.Page[domain.Order], error)
	listAllFn func(ctx context.Context, query services.OrderListQuery) (domain.Page[domain.Order], error)
	statusFn  func(ctx context.Context, cmd services.OrderStatusCommand) (domain.Order, error)
	cancelFn  func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error)
	deleteFn  func(ctx context.Context, cmd services.DeleteOrderCommand) error
	revenueFn func(ctx context.Context) (domain.RevenueReport, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFn == nil {
		return domain.Order{}, errors.New("unexpected CreateOrder call")
	}
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, actor services.Actor, orderID string) (domain.Order, error) {
	if s.getFn == nil {
		return domain.Order{}, errors.New("unexpected GetOrder call")
	}
	return s.getFn(ctx, actor, orderID)
}

func (s *stubOrderService) ListMyOrders(ctx context.Context, actor services.Actor, query services.OrderListQuery) (domain.Page[domain.Order], error) {
	if s.listMyFn == nil {
		return domain.Page[domain.Order]{}, errors.New("unexpected ListMyOrders call")
	}
	return s.listMyFn(ctx, actor, query)
}

func (s *stubOrderService) ListAllOrders(ctx context.Context, query services.OrderListQuery) (domain.Page[domain.Order], error) {
	if s.listAllFn == nil {
		return domain.Page[domain.Order]{}, errors.New("unexpected ListAllOrders call")
	}
	return s.listAllFn(ctx, query)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.OrderStatusCommand) (domain.Order, error) {
	if s.statusFn == nil {
		return domain.Order{}, errors.New("unexpected UpdateStatus call")
	}
	return s.statusFn(ctx, cmd)
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFn == nil {
		return domain.Order{}, errors.New("unexpected CancelOrder call")
	}
	return s.cancelFn(ctx, cmd)
}

func (s *stubOrderService) DeleteOrder(ctx context.Context, cmd services.DeleteOrderCommand) error {
	if s.deleteFn == nil {
		return errors.New("unexpected DeleteOrder call")
	}
	return s.deleteFn(ctx, cmd)
}

func (s *stubOrderService) Revenue(ctx context.Context) (domain.RevenueReport, error) {
	if s.revenueFn == nil {
		return domain.RevenueReport{}, errors.New("unexpected Revenue call")
	}
	return s.revenueFn(ctx)
}

func testOrder(id, userID string, status domain.OrderStatus) domain.Order {
	created := time.Date(2025, 5, 2, 14, 30, 0, 0, time.UTC)
	return domain.Order{
		ID:          id,
		OrderNumber: "BL-000042",
		UserID:      userID,
		Items: []domain.OrderItem{
			{BookID: "book-1", Title: "The Pragmatic Shelf", UnitPrice: 2499, Quantity: 2},
		},
		TotalPrice: 4998,
		Status:     status,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func newOrderTestRouter(orders services.OrderService) chi.Router {
	r := chi.NewRouter()
	NewOrderHandlers(orders, newTestAuthenticator()).Routes(r)
	return r
}

func TestCreateOrderAsUser(t *testing.T) {
	var got services.CreateOrderCommand
	orders := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			got = cmd
			return testOrder("ord-1", cmd.Actor.ID, domain.OrderStatusPending), nil
		},
	}
	router := newOrderTestRouter(orders)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"books":[{"book":"book-1","quantity":2}]}`))
	req.Header.Set("Authorization", "Bearer user-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.Actor.ID != "user-1" || got.Actor.Role != domain.RoleUser {
		t.Fatalf("unexpected actor: %+v", got.Actor)
	}
	if len(got.Lines) != 1 || got.Lines[0].BookID != "book-1" || got.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected lines: %+v", got.Lines)
	}

	env := decodeEnvelope(t, rec)
	var payload orderPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.OrderNumber != "BL-000042" || payload.TotalPrice != 4998 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestCreateOrderRequiresAuth(t *testing.T) {
	router := newOrderTestRouter(&stubOrderService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"books":[]}`)))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateOrderMapsStockErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"insufficient stock", services.ErrOrderInsufficientStock, http.StatusBadRequest, "insufficient_stock"},
		{"unknown book", services.ErrOrderBookNotFound, http.StatusNotFound, "book_not_found"},
		{"invalid input", services.ErrOrderInvalidInput, http.StatusBadRequest, "invalid_request"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders := &stubOrderService{
				createFn: func(context.Context, services.CreateOrderCommand) (domain.Order, error) {
					return domain.Order{}, tc.err
				},
			}
			router := newOrderTestRouter(orders)

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"books":[{"book":"book-1","quantity":99}]}`))
			req.Header.Set("Authorization", "Bearer user-token")

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			if env := decodeEnvelope(t, rec); env.Error != tc.wantCode {
				t.Fatalf("expected %q, got %q", tc.wantCode, env.Error)
			}
		})
	}
}

func TestGetOrderForbiddenForOtherUser(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(_ context.Context, actor services.Actor, _ string) (domain.Order, error) {
			if actor.ID != "user-1" {
				return domain.Order{}, services.ErrOrderAccessDenied
			}
			return testOrder("ord-1", "user-1", domain.OrderStatusPending), nil
		},
	}
	router := newOrderTestRouter(orders)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodGet, "/ord-1", "other-token"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for stranger, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodGet, "/ord-1", "user-token"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d", rec.Code)
	}
}

func TestListMyOrdersParsesQuery(t *testing.T) {
	var gotActor services.Actor
	var gotQuery services.OrderListQuery
	orders := &stubOrderService{
		listMyFn: func(_ context.Context, actor services.Actor, query services.OrderListQuery) (domain.Page[domain.Order], error) {
			gotActor = actor
			gotQuery = query
			return domain.Page[domain.Order]{
				Items: []domain.Order{testOrder("ord-1", actor.ID, domain.OrderStatusCompleted)},
				Meta:  domain.PageMeta{Page: 2, Limit: 5, Total: 11, TotalPages: 3},
			}, nil
		},
	}
	router := newOrderTestRouter(orders)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodGet, "/my-orders?page=2&limit=5&status=completed&sortBy=totalPrice&sortOrder=asc&startDate=2025-05-01T00:00:00Z", "user-token"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotActor.ID != "user-1" {
		t.Fatalf("unexpected actor: %+v", gotActor)
	}
	if gotQuery.Status != "completed" || gotQuery.SortBy != "totalPrice" || gotQuery.SortOrder != "asc" {
		t.Fatalf("unexpected query: %+v", gotQuery)
	}
	if gotQuery.Page.Page != 2 || gotQuery.Page.Limit != 5 {
		t.Fatalf("unexpected paging: %+v", gotQuery.Page)
	}
	if gotQuery.From == nil || !gotQuery.From.Equal(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from: %+v", gotQuery.From)
	}

	env := decodeEnvelope(t, rec)
	var payload struct {
		Items []orderPayload  `json:"items"`
		Meta  pageMetaPayload `json:"meta"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Meta.Total != 11 || payload.Meta.TotalPages != 3 {
		t.Fatalf("unexpected meta: %+v", payload.Meta)
	}
}

func TestListMyOrdersRejectsBadPage(t *testing.T) {
	router := newOrderTestRouter(&stubOrderService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodGet, "/my-orders?page=0", "user-token"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListAllOrdersRequiresAdmin(t *testing.T) {
	orders := &stubOrderService{
		listAllFn: func(context.Context, services.OrderListQuery) (domain.Page[domain.Order], error) {
			return domain.Page[domain.Order]{Meta: domain.PageMeta{Page: 1, Limit: 20}}, nil
		},
	}
	router := newOrderTestRouter(orders)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodGet, "/all", "user-token"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user role, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodGet, "/all", "admin-token"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateStatusAsAdmin(t *testing.T) {
	var got services.OrderStatusCommand
	orders := &stubOrderService{
		statusFn: func(_ context.Context, cmd services.OrderStatusCommand) (domain.Order, error) {
			got = cmd
			return testOrder(cmd.OrderID, "user-1", domain.OrderStatusProcessing), nil
		},
	}
	router := newOrderTestRouter(orders)

	req := httptest.NewRequest(http.MethodPatch, "/ord-1/status", strings.NewReader(`{"status":"processing"}`))
	req.Header.Set("Authorization", "Bearer admin-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.OrderID != "ord-1" || got.Target != "processing" {
		t.Fatalf("unexpected command: %+v", got)
	}
	if got.Actor.Role != domain.RoleAdmin {
		t.Fatalf("expected admin actor, got %+v", got.Actor)
	}
}

func TestUpdateStatusForbiddenForUserRole(t *testing.T) {
	orders := &stubOrderService{
		statusFn: func(context.Context, services.OrderStatusCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderAccessDenied
		},
	}
	router := newOrderTestRouter(orders)

	req := httptest.NewRequest(http.MethodPatch, "/ord-1/status", strings.NewReader(`{"status":"processing"}`))
	req.Header.Set("Authorization", "Bearer user-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error != "forbidden" {
		t.Fatalf("expected forbidden, got %q", env.Error)
	}
}

func TestUpdateStatusOwnerCanCancel(t *testing.T) {
	var got services.OrderStatusCommand
	orders := &stubOrderService{
		statusFn: func(_ context.Context, cmd services.OrderStatusCommand) (domain.Order, error) {
			got = cmd
			return testOrder(cmd.OrderID, cmd.Actor.ID, domain.OrderStatusCancelled), nil
		},
	}
	router := newOrderTestRouter(orders)

	req := httptest.NewRequest(http.MethodPatch, "/ord-1/status", strings.NewReader(`{"status":"cancelled"}`))
	req.Header.Set("Authorization", "Bearer user-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.OrderID != "ord-1" || got.Target != "cancelled" {
		t.Fatalf("unexpected command: %+v", got)
	}
	if got.Actor.ID != "user-1" || got.Actor.Role != domain.RoleUser {
		t.Fatalf("unexpected actor: %+v", got.Actor)
	}
}

func TestCancelOrder(t *testing.T) {
	var got services.CancelOrderCommand
	orders := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			got = cmd
			return testOrder(cmd.OrderID, cmd.Actor.ID, domain.OrderStatusCancelled), nil
		},
	}
	router := newOrderTestRouter(orders)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodPost, "/ord-1/cancel", "user-token"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.OrderID != "ord-1" || got.Actor.ID != "user-1" {
		t.Fatalf("unexpected command: %+v", got)
	}
}

func TestDeleteOrderInvalidStateMapsToConflict(t *testing.T) {
	orders := &stubOrderService{
		deleteFn: func(context.Context, services.DeleteOrderCommand) error {
			return services.ErrOrderInvalidState
		},
	}
	router := newOrderTestRouter(orders)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodDelete, "/ord-1", "user-token"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error != "invalid_status_transition" {
		t.Fatalf("expected invalid_status_transition, got %q", env.Error)
	}
}

func TestRevenueAdminOnly(t *testing.T) {
	orders := &stubOrderService{
		revenueFn: func(context.Context) (domain.RevenueReport, error) {
			return domain.RevenueReport{TotalRevenue: 123450, CompletedOrders: 17}, nil
		},
	}
	router := newOrderTestRouter(orders)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodGet, "/revenue", "user-token"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user role, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodGet, "/revenue", "admin-token"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}

	env := decodeEnvelope(t, rec)
	var payload struct {
		TotalRevenue    int64 `json:"totalRevenue"`
		CompletedOrders int64 `json:"completedOrders"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.TotalRevenue != 123450 || payload.CompletedOrders != 17 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestBlockedTokenRejected(t *testing.T) {
	router := newOrderTestRouter(&stubOrderService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodGet, "/my-orders", "blocked-token"))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for blocked account, got %d", rec.Code)
	}
}
