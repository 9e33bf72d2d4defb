package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/bookleaf/api/internal/domain"
	"github.com/bookleaf/api/internal/repositories"
)

type stubBookRepo struct {
	insertFn func(context.Context, domain.Book) error
	updateFn func(context.Context, domain.Book) error
	deleteFn func(context.Context, string) error
	findFn   func(context.Context, string) (domain.Book, error)
	listFn   func(context.Context, repositories.BookListFilter) (domain.CursorPage[domain.Book], error)
}

func (s *stubBookRepo) Insert(ctx context.Context, book domain.Book) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, book)
	}
	return nil
}

func (s *stubBookRepo) Update(ctx context.Context, book domain.Book) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, book)
	}
	return nil
}

func (s *stubBookRepo) Delete(ctx context.Context, bookID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, bookID)
	}
	return nil
}

func (s *stubBookRepo) FindByID(ctx context.Context, bookID string) (domain.Book, error) {
	if s.findFn != nil {
		return s.findFn(ctx, bookID)
	}
	return domain.Book{}, errors.New("not implemented")
}

func (s *stubBookRepo) List(ctx context.Context, filter repositories.BookListFilter) (domain.CursorPage[domain.Book], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Book]{}, nil
}

type stubRepoError struct {
	notFound bool
	conflict bool
}

func (e *stubRepoError) Error() string       { return "repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return false }

func newTestBookService(t *testing.T, books *stubBookRepo, now time.Time) BookService {
	t.Helper()
	svc, err := NewBookService(BookServiceDeps{
		Books:       books,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "000TEST" },
	})
	if err != nil {
		t.Fatalf("new book service: %v", err)
	}
	return svc
}

func validCreateBookCommand() CreateBookCommand {
	return CreateBookCommand{
		Title:       "The Go Programming Language",
		Author:      "Alan Donovan",
		Price:       3499,
		Category:    "Science",
		Description: "A thorough introduction to Go for working programmers.",
		Quantity:    12,
	}
}

func TestBookServiceCreateBook(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 2, 11, 0, 0, 0, time.UTC)

	var inserted domain.Book
	books := &stubBookRepo{
		insertFn: func(_ context.Context, book domain.Book) error {
			inserted = book
			return nil
		},
	}
	svc := newTestBookService(t, books, now)

	book, err := svc.CreateBook(ctx, validCreateBookCommand())
	if err != nil {
		t.Fatalf("create book: %v", err)
	}

	if inserted.ID != "book_000TEST" {
		t.Fatalf("unexpected id %s", inserted.ID)
	}
	if !inserted.InStock {
		t.Fatal("expected book to be in stock")
	}
	if inserted.Category != domain.CategoryScience {
		t.Fatalf("unexpected category %s", inserted.Category)
	}
	if !book.CreatedAt.Equal(now) || !book.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected timestamps %v %v", book.CreatedAt, book.UpdatedAt)
	}
}

func TestBookServiceCreateBookValidation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 2, 11, 0, 0, 0, time.UTC)
	svc := newTestBookService(t, &stubBookRepo{}, now)

	cases := []struct {
		name   string
		mutate func(*CreateBookCommand)
	}{
		{name: "missing title", mutate: func(c *CreateBookCommand) { c.Title = "  " }},
		{name: "title too long", mutate: func(c *CreateBookCommand) { c.Title = strings.Repeat("x", 101) }},
		{name: "missing author", mutate: func(c *CreateBookCommand) { c.Author = "" }},
		{name: "author too long", mutate: func(c *CreateBookCommand) { c.Author = strings.Repeat("y", 51) }},
		{name: "description too short", mutate: func(c *CreateBookCommand) { c.Description = "too short" }},
		{name: "description too long", mutate: func(c *CreateBookCommand) { c.Description = strings.Repeat("z", 501) }},
		{name: "zero price", mutate: func(c *CreateBookCommand) { c.Price = 0 }},
		{name: "negative quantity", mutate: func(c *CreateBookCommand) { c.Quantity = -1 }},
		{name: "unknown category", mutate: func(c *CreateBookCommand) { c.Category = "Cooking" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := validCreateBookCommand()
			tc.mutate(&cmd)
			if _, err := svc.CreateBook(ctx, cmd); !errors.Is(err, ErrBookInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestBookServiceCreateBookBoundaryLengths(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 2, 11, 0, 0, 0, time.UTC)
	svc := newTestBookService(t, &stubBookRepo{}, now)

	cmd := validCreateBookCommand()
	cmd.Title = strings.Repeat("t", 100)
	cmd.Author = strings.Repeat("a", 50)
	cmd.Description = strings.Repeat("d", 500)

	if _, err := svc.CreateBook(ctx, cmd); err != nil {
		t.Fatalf("boundary lengths should pass: %v", err)
	}

	cmd.Description = strings.Repeat("d", 10)
	if _, err := svc.CreateBook(ctx, cmd); err != nil {
		t.Fatalf("minimum description should pass: %v", err)
	}
}

func TestBookServiceCreateBookStripsMarkup(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 2, 11, 0, 0, 0, time.UTC)

	var inserted domain.Book
	books := &stubBookRepo{
		insertFn: func(_ context.Context, book domain.Book) error {
			inserted = book
			return nil
		},
	}
	svc := newTestBookService(t, books, now)

	cmd := validCreateBookCommand()
	cmd.Title = "<b>Clean Architecture</b>"
	cmd.Description = "A guide to <i>software structure</i> and design for practitioners."

	if _, err := svc.CreateBook(ctx, cmd); err != nil {
		t.Fatalf("create book: %v", err)
	}
	if inserted.Title != "Clean Architecture" {
		t.Fatalf("expected markup stripped from title, got %q", inserted.Title)
	}
	if strings.Contains(inserted.Description, "<") {
		t.Fatalf("expected markup stripped from description, got %q", inserted.Description)
	}
}

func TestBookServiceUpdateBookAppliesPartialFields(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC)

	existing := domain.Book{
		ID:          "book-1",
		Title:       "Original Title",
		Author:      "Original Author",
		Price:       1500,
		Category:    domain.CategoryFiction,
		Description: "An original description of sufficient length.",
		Quantity:    3,
		InStock:     true,
		CreatedAt:   now.Add(-24 * time.Hour),
		UpdatedAt:   now.Add(-24 * time.Hour),
	}

	var updated domain.Book
	books := &stubBookRepo{
		findFn: func(context.Context, string) (domain.Book, error) {
			return existing, nil
		},
		updateFn: func(_ context.Context, book domain.Book) error {
			updated = book
			return nil
		},
	}
	svc := newTestBookService(t, books, now)

	newQuantity := 0
	newPrice := int64(1800)
	book, err := svc.UpdateBook(ctx, UpdateBookCommand{
		BookID:   "book-1",
		Price:    &newPrice,
		Quantity: &newQuantity,
	})
	if err != nil {
		t.Fatalf("update book: %v", err)
	}

	if updated.Title != existing.Title {
		t.Fatalf("title should be unchanged, got %q", updated.Title)
	}
	if updated.Price != 1800 {
		t.Fatalf("unexpected price %d", updated.Price)
	}
	if updated.InStock {
		t.Fatal("expected book to drop out of stock at zero quantity")
	}
	if !book.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected updatedAt %v", book.UpdatedAt)
	}
}

func TestBookServiceGetBookNotFound(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC)
	books := &stubBookRepo{
		findFn: func(context.Context, string) (domain.Book, error) {
			return domain.Book{}, &stubRepoError{notFound: true}
		},
	}
	svc := newTestBookService(t, books, now)

	if _, err := svc.GetBook(ctx, "missing"); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBookServiceDeleteBookChecksExistence(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC)

	deleted := false
	books := &stubBookRepo{
		findFn: func(context.Context, string) (domain.Book, error) {
			return domain.Book{}, &stubRepoError{notFound: true}
		},
		deleteFn: func(context.Context, string) error {
			deleted = true
			return nil
		},
	}
	svc := newTestBookService(t, books, now)

	if err := svc.DeleteBook(ctx, "missing"); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if deleted {
		t.Fatal("delete should not run for a missing book")
	}
}

func TestBookServiceListBooksValidatesQuery(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC)
	svc := newTestBookService(t, &stubBookRepo{}, now)

	if _, err := svc.ListBooks(ctx, BookListQuery{Category: "Gardening"}); !errors.Is(err, ErrBookInvalidInput) {
		t.Fatalf("expected invalid category, got %v", err)
	}

	low, high := int64(5000), int64(1000)
	if _, err := svc.ListBooks(ctx, BookListQuery{PriceMin: &low, PriceMax: &high}); !errors.Is(err, ErrBookInvalidInput) {
		t.Fatalf("expected inverted range rejection, got %v", err)
	}
}

func TestBookServiceListBooksBuildsFilter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC)

	var captured repositories.BookListFilter
	books := &stubBookRepo{
		listFn: func(_ context.Context, filter repositories.BookListFilter) (domain.CursorPage[domain.Book], error) {
			captured = filter
			return domain.CursorPage[domain.Book]{}, nil
		},
	}
	svc := newTestBookService(t, books, now)

	inStock := true
	if _, err := svc.ListBooks(ctx, BookListQuery{
		Category: "Poetry",
		InStock:  &inStock,
		Search:   "  rilke  ",
	}); err != nil {
		t.Fatalf("list books: %v", err)
	}

	if captured.Category == nil || *captured.Category != domain.CategoryPoetry {
		t.Fatalf("unexpected category filter %v", captured.Category)
	}
	if captured.InStock == nil || !*captured.InStock {
		t.Fatal("expected inStock filter")
	}
	if captured.Search != "rilke" {
		t.Fatalf("unexpected search %q", captured.Search)
	}
}
