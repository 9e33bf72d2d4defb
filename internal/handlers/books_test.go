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

type stubBookService struct {
	createFn func(ctx context.Context, cmd services.CreateBookCommand) (domain.Book, error)
	getFn    func(ctx context.Context, bookID string) (domain.Book, error)
	listFn   func(ctx context.Context, query services.BookListQuery) (domain.CursorPage[domain.Book], error)
	updateFn func(ctx context.Context, cmd services.UpdateBookCommand) (domain.Book, error)
	deleteFn func(ctx context.Context, bookID string) error
}

func (s *stubBookService) CreateBook(ctx context.Context, cmd services.CreateBookCommand) (domain.Book, error) {
	if s.createFn == nil {
		return domain.Book{}, errors.New("unexpected CreateBook call")
	}
	return s.createFn(ctx, cmd)
}

func (s *stubBookService) GetBook(ctx context.Context, bookID string) (domain.Book, error) {
	if s.getFn == nil {
		return domain.Book{}, errors.New("unexpected GetBook call")
	}
	return s.getFn(ctx, bookID)
}

func (s *stubBookService) ListBooks(ctx context.Context, query services.BookListQuery) (domain.CursorPage[domain.Book], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Book]{}, errors.New("unexpected ListBooks call")
	}
	return s.listFn(ctx, query)
}

func (s *stubBookService) UpdateBook(ctx context.Context, cmd services.UpdateBookCommand) (domain.Book, error) {
	if s.updateFn == nil {
		return domain.Book{}, errors.New("unexpected UpdateBook call")
	}
	return s.updateFn(ctx, cmd)
}

func (s *stubBookService) DeleteBook(ctx context.Context, bookID string) error {
	if s.deleteFn == nil {
		return errors.New("unexpected DeleteBook call")
	}
	return s.deleteFn(ctx, bookID)
}

func testBook(id string) domain.Book {
	created := time.Date(2025, 4, 20, 10, 0, 0, 0, time.UTC)
	return domain.Book{
		ID:          id,
		Title:       "The Pragmatic Shelf",
		Author:      "A. Librarian",
		Price:       2499,
		Category:    domain.CategoryScience,
		Description: "A field guide to running a small bookstore.",
		Quantity:    7,
		InStock:     true,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func newBookTestRouter(books services.BookService) chi.Router {
	r := chi.NewRouter()
	NewBookHandlers(books, newTestAuthenticator()).Routes(r)
	return r
}

func TestListBooksForwardsFilters(t *testing.T) {
	var got services.BookListQuery
	books := &stubBookService{
		listFn: func(_ context.Context, query services.BookListQuery) (domain.CursorPage[domain.Book], error) {
			got = query
			return domain.CursorPage[domain.Book]{
				Items:         []domain.Book{testBook("book-1")},
				NextPageToken: "tok-2",
			}, nil
		},
	}
	router := newBookTestRouter(books)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?category=Science&inStock=true&search=guide&priceMin=1000&priceMax=5000&pageSize=10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.Category != "Science" || got.Search != "guide" {
		t.Fatalf("unexpected query: %+v", got)
	}
	if got.InStock == nil || !*got.InStock {
		t.Fatalf("expected inStock filter, got %+v", got.InStock)
	}
	if got.PriceMin == nil || *got.PriceMin != 1000 || got.PriceMax == nil || *got.PriceMax != 5000 {
		t.Fatalf("unexpected price range: %+v %+v", got.PriceMin, got.PriceMax)
	}
	if got.Pagination.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", got.Pagination.PageSize)
	}

	env := decodeEnvelope(t, rec)
	var payload struct {
		Items         []bookPayload `json:"items"`
		NextPageToken string        `json:"nextPageToken"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].ID != "book-1" {
		t.Fatalf("unexpected items: %+v", payload.Items)
	}
	if payload.NextPageToken != "tok-2" {
		t.Fatalf("unexpected token: %q", payload.NextPageToken)
	}
}

func TestListBooksRejectsBadBoolean(t *testing.T) {
	router := newBookTestRouter(&stubBookService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?inStock=maybe", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetBookNotFoundMapsTo404(t *testing.T) {
	books := &stubBookService{
		getFn: func(context.Context, string) (domain.Book, error) {
			return domain.Book{}, services.ErrBookNotFound
		},
	}
	router := newBookTestRouter(books)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/book-missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error != "book_not_found" {
		t.Fatalf("expected book_not_found, got %q", env.Error)
	}
}

func TestCreateBookRequiresAdmin(t *testing.T) {
	router := newBookTestRouter(&stubBookService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer user-token")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user role, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestCreateBookAsAdmin(t *testing.T) {
	var got services.CreateBookCommand
	books := &stubBookService{
		createFn: func(_ context.Context, cmd services.CreateBookCommand) (domain.Book, error) {
			got = cmd
			return testBook("book-1"), nil
		},
	}
	router := newBookTestRouter(books)

	body := `{"title":"The Pragmatic Shelf","author":"A. Librarian","price":2499,"category":"Science","description":"A field guide to running a small bookstore.","quantity":7}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer admin-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.Title != "The Pragmatic Shelf" || got.Category != "Science" || got.Quantity != 7 {
		t.Fatalf("unexpected command: %+v", got)
	}
}

func TestUpdateBookSendsOnlyProvidedFields(t *testing.T) {
	var got services.UpdateBookCommand
	books := &stubBookService{
		updateFn: func(_ context.Context, cmd services.UpdateBookCommand) (domain.Book, error) {
			got = cmd
			return testBook("book-1"), nil
		},
	}
	router := newBookTestRouter(books)

	req := httptest.NewRequest(http.MethodPut, "/book-1", strings.NewReader(`{"price":1999,"quantity":0}`))
	req.Header.Set("Authorization", "Bearer admin-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.BookID != "book-1" {
		t.Fatalf("unexpected book id %q", got.BookID)
	}
	if got.Price == nil || *got.Price != 1999 {
		t.Fatalf("expected price pointer, got %+v", got.Price)
	}
	if got.Quantity == nil || *got.Quantity != 0 {
		t.Fatalf("expected quantity pointer, got %+v", got.Quantity)
	}
	if got.Title != nil || got.Author != nil || got.Category != nil || got.Description != nil {
		t.Fatalf("expected omitted fields to stay nil: %+v", got)
	}
}

func TestDeleteBookAsAdmin(t *testing.T) {
	var deleted string
	books := &stubBookService{
		deleteFn: func(_ context.Context, bookID string) error {
			deleted = bookID
			return nil
		},
	}
	router := newBookTestRouter(books)

	req := httptest.NewRequest(http.MethodDelete, "/book-1", nil)
	req.Header.Set("Authorization", "Bearer admin-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if deleted != "book-1" {
		t.Fatalf("expected book-1, got %q", deleted)
	}
}
