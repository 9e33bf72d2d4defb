package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bookleaf/api/internal/platform/auth"
	"github.com/bookleaf/api/internal/platform/httpx"
	"github.com/bookleaf/api/internal/platform/pagination"
	"github.com/bookleaf/api/internal/services"
)

const maxBookBodySize = 64 * 1024

// BookHandlers serves the public catalog endpoints and the admin-only
// mutations behind them.
type BookHandlers struct {
	books services.BookService
	authn *auth.Authenticator
}

// NewBookHandlers constructs a new BookHandlers instance.
func NewBookHandlers(books services.BookService, authn *auth.Authenticator) *BookHandlers {
	return &BookHandlers{books: books, authn: authn}
}

// Routes registers the /books endpoints. Reads are public; writes require the
// admin role.
func (h *BookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Get("/", h.list)
	r.Get("/{bookID}", h.get)

	r.Group(func(g chi.Router) {
		g.Use(h.authn.RequireAuth(auth.RoleAdmin))
		g.Post("/", h.create)
		g.Put("/{bookID}", h.update)
		g.Delete("/{bookID}", h.delete)
	})
}

type createBookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Price       int64  `json:"price"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

type updateBookRequest struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Price       *int64  `json:"price"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
	Quantity    *int    `json:"quantity"`
}

type bookPayload struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Price       int64     `json:"price"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	InStock     bool      `json:"inStock"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (h *BookHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.books == nil {
		httpx.WriteError(ctx, w, httpx.NewError("book_service_unavailable", "book service unavailable", http.StatusServiceUnavailable))
		return
	}

	query, err := parseBookListQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.books.ListBooks(ctx, query)
	if err != nil {
		writeBookError(ctx, w, err)
		return
	}

	items := make([]bookPayload, 0, len(page.Items))
	for _, book := range page.Items {
		items = append(items, buildBookPayload(book))
	}

	httpx.WriteJSON(w, http.StatusOK, "", map[string]any{
		"items":         items,
		"nextPageToken": page.NextPageToken,
	})
}

func (h *BookHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.books == nil {
		httpx.WriteError(ctx, w, httpx.NewError("book_service_unavailable", "book service unavailable", http.StatusServiceUnavailable))
		return
	}

	bookID := chi.URLParam(r, "bookID")
	book, err := h.books.GetBook(ctx, bookID)
	if err != nil {
		writeBookError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "", buildBookPayload(book))
}

func (h *BookHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.books == nil {
		httpx.WriteError(ctx, w, httpx.NewError("book_service_unavailable", "book service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createBookRequest
	if !decodeBookBody(ctx, w, r, &req) {
		return
	}

	book, err := h.books.CreateBook(ctx, services.CreateBookCommand{
		Title:       req.Title,
		Author:      req.Author,
		Price:       req.Price,
		Category:    req.Category,
		Description: req.Description,
		Quantity:    req.Quantity,
	})
	if err != nil {
		writeBookError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, "book created", buildBookPayload(book))
}

func (h *BookHandlers) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.books == nil {
		httpx.WriteError(ctx, w, httpx.NewError("book_service_unavailable", "book service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updateBookRequest
	if !decodeBookBody(ctx, w, r, &req) {
		return
	}

	book, err := h.books.UpdateBook(ctx, services.UpdateBookCommand{
		BookID:      chi.URLParam(r, "bookID"),
		Title:       req.Title,
		Author:      req.Author,
		Price:       req.Price,
		Category:    req.Category,
		Description: req.Description,
		Quantity:    req.Quantity,
	})
	if err != nil {
		writeBookError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "book updated", buildBookPayload(book))
}

func (h *BookHandlers) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.books == nil {
		httpx.WriteError(ctx, w, httpx.NewError("book_service_unavailable", "book service unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.books.DeleteBook(ctx, chi.URLParam(r, "bookID")); err != nil {
		writeBookError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "book deleted", nil)
}

func parseBookListQuery(r *http.Request) (services.BookListQuery, error) {
	values := r.URL.Query()

	params, err := pagination.Parse(values, pagination.Options{
		DefaultPageSize: 20,
		MaxPageSize:     pagination.DefaultMaxPageSize,
	})
	if err != nil {
		return services.BookListQuery{}, err
	}

	query := services.BookListQuery{
		Category: strings.TrimSpace(values.Get("category")),
		Search:   strings.TrimSpace(values.Get("search")),
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}

	if raw := strings.TrimSpace(values.Get("inStock")); raw != "" {
		inStock, err := strconv.ParseBool(raw)
		if err != nil {
			return services.BookListQuery{}, errors.New("inStock must be a boolean")
		}
		query.InStock = &inStock
	}

	if raw := strings.TrimSpace(values.Get("priceMin")); raw != "" {
		min, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return services.BookListQuery{}, errors.New("priceMin must be an integer")
		}
		query.PriceMin = &min
	}

	if raw := strings.TrimSpace(values.Get("priceMax")); raw != "" {
		max, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return services.BookListQuery{}, errors.New("priceMax must be an integer")
		}
		query.PriceMax = &max
	}

	return query, nil
}

func decodeBookBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBookBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func buildBookPayload(book services.Book) bookPayload {
	return bookPayload{
		ID:          book.ID,
		Title:       book.Title,
		Author:      book.Author,
		Price:       book.Price,
		Category:    string(book.Category),
		Description: book.Description,
		Quantity:    book.Quantity,
		InStock:     book.InStock,
		CreatedAt:   book.CreatedAt,
		UpdatedAt:   book.UpdatedAt,
	}
}

func writeBookError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrBookInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrBookNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("book_not_found", "book not found", http.StatusNotFound))
	case errors.Is(err, services.ErrBookConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "book was modified concurrently", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
