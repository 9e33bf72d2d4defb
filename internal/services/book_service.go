package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/bookleaf/api/internal/domain"
	"github.com/bookleaf/api/internal/repositories"
)

const (
	bookIDPrefix = "book_"

	maxTitleLength       = 100
	maxAuthorLength      = 50
	minDescriptionLength = 10
	maxDescriptionLength = 500
)

var (
	// ErrBookInvalidInput signals the caller provided invalid data.
	ErrBookInvalidInput = errors.New("book: invalid input")
	// ErrBookNotFound indicates the book could not be located.
	ErrBookNotFound = errors.New("book: not found")
	// ErrBookConflict indicates a duplicate or concurrent modification.
	ErrBookConflict = errors.New("book: conflict")
)

// BookServiceDeps bundles collaborators required to construct the book service.
type BookServiceDeps struct {
	Books       repositories.BookRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type bookService struct {
	books     repositories.BookRepository
	clock     func() time.Time
	newID     func() string
	sanitiser *bluemonday.Policy
}

// NewBookService wires dependencies into a concrete BookService implementation.
func NewBookService(deps BookServiceDeps) (BookService, error) {
	if deps.Books == nil {
		return nil, errors.New("book service: book repository is required")
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

	return &bookService{
		books: deps.Books,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		sanitiser: bluemonday.StrictPolicy(),
	}, nil
}

func (s *bookService) CreateBook(ctx context.Context, cmd CreateBookCommand) (Book, error) {
	now := s.clock()

	book := domain.Book{
		ID:          bookIDPrefix + s.newID(),
		Title:       s.sanitise(cmd.Title),
		Author:      s.sanitise(cmd.Author),
		Price:       cmd.Price,
		Category:    domain.Category(strings.TrimSpace(cmd.Category)),
		Description: s.sanitise(cmd.Description),
		Quantity:    cmd.Quantity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	book.InStock = book.Quantity > 0

	if err := validateBook(book); err != nil {
		return Book{}, err
	}

	if err := s.books.Insert(ctx, book); err != nil {
		return Book{}, s.mapRepositoryError(err)
	}
	return book, nil
}

func (s *bookService) GetBook(ctx context.Context, bookID string) (Book, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return Book{}, fmt.Errorf("%w: book id is required", ErrBookInvalidInput)
	}

	book, err := s.books.FindByID(ctx, bookID)
	if err != nil {
		return Book{}, s.mapRepositoryError(err)
	}
	return book, nil
}

func (s *bookService) ListBooks(ctx context.Context, query BookListQuery) (domain.CursorPage[Book], error) {
	filter := repositories.BookListFilter{
		InStock:    query.InStock,
		Search:     strings.TrimSpace(query.Search),
		PriceRange: domain.RangeQuery[int64]{From: query.PriceMin, To: query.PriceMax},
		Pagination: query.Pagination,
	}

	if raw := strings.TrimSpace(query.Category); raw != "" {
		category := domain.Category(raw)
		if !category.Valid() {
			return domain.CursorPage[Book]{}, fmt.Errorf("%w: unknown category %q", ErrBookInvalidInput, raw)
		}
		filter.Category = &category
	}

	if query.PriceMin != nil && *query.PriceMin < 0 {
		return domain.CursorPage[Book]{}, fmt.Errorf("%w: minimum price cannot be negative", ErrBookInvalidInput)
	}
	if query.PriceMin != nil && query.PriceMax != nil && *query.PriceMin > *query.PriceMax {
		return domain.CursorPage[Book]{}, fmt.Errorf("%w: price range is inverted", ErrBookInvalidInput)
	}

	page, err := s.books.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Book]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *bookService) UpdateBook(ctx context.Context, cmd UpdateBookCommand) (Book, error) {
	bookID := strings.TrimSpace(cmd.BookID)
	if bookID == "" {
		return Book{}, fmt.Errorf("%w: book id is required", ErrBookInvalidInput)
	}

	book, err := s.books.FindByID(ctx, bookID)
	if err != nil {
		return Book{}, s.mapRepositoryError(err)
	}

	if cmd.Title != nil {
		book.Title = s.sanitise(*cmd.Title)
	}
	if cmd.Author != nil {
		book.Author = s.sanitise(*cmd.Author)
	}
	if cmd.Price != nil {
		book.Price = *cmd.Price
	}
	if cmd.Category != nil {
		book.Category = domain.Category(strings.TrimSpace(*cmd.Category))
	}
	if cmd.Description != nil {
		book.Description = s.sanitise(*cmd.Description)
	}
	if cmd.Quantity != nil {
		book.Quantity = *cmd.Quantity
	}
	book.InStock = book.Quantity > 0
	book.UpdatedAt = s.clock()

	if err := validateBook(book); err != nil {
		return Book{}, err
	}

	if err := s.books.Update(ctx, book); err != nil {
		return Book{}, s.mapRepositoryError(err)
	}
	return book, nil
}

func (s *bookService) DeleteBook(ctx context.Context, bookID string) error {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return fmt.Errorf("%w: book id is required", ErrBookInvalidInput)
	}

	if _, err := s.books.FindByID(ctx, bookID); err != nil {
		return s.mapRepositoryError(err)
	}
	if err := s.books.Delete(ctx, bookID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// sanitise strips any markup from free-text fields. The strict policy escapes
// entities, so the result is unescaped back to plain text.
func (s *bookService) sanitise(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitiser.Sanitize(value)))
}

func (s *bookService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrBookNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrBookConflict, err)
		}
	}
	return err
}

func validateBook(book domain.Book) error {
	if book.Title == "" {
		return fmt.Errorf("%w: title is required", ErrBookInvalidInput)
	}
	if len([]rune(book.Title)) > maxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrBookInvalidInput, maxTitleLength)
	}
	if book.Author == "" {
		return fmt.Errorf("%w: author is required", ErrBookInvalidInput)
	}
	if len([]rune(book.Author)) > maxAuthorLength {
		return fmt.Errorf("%w: author exceeds %d characters", ErrBookInvalidInput, maxAuthorLength)
	}
	if length := len([]rune(book.Description)); length < minDescriptionLength || length > maxDescriptionLength {
		return fmt.Errorf("%w: description must be between %d and %d characters", ErrBookInvalidInput, minDescriptionLength, maxDescriptionLength)
	}
	if book.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrBookInvalidInput)
	}
	if book.Quantity < 0 {
		return fmt.Errorf("%w: quantity cannot be negative", ErrBookInvalidInput)
	}
	if !book.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrBookInvalidInput, book.Category)
	}
	return nil
}
