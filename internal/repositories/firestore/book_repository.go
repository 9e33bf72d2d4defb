package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/bookleaf/api/internal/domain"
	pfirestore "github.com/bookleaf/api/internal/platform/firestore"
	"github.com/bookleaf/api/internal/platform/textutil"
	"github.com/bookleaf/api/internal/repositories"
)

const booksCollection = "books"

// BookRepository implements repositories.BookRepository backed by Firestore.
type BookRepository struct {
	provider *pfirestore.Provider
	books    *pfirestore.BaseRepository[bookDocument]
}

// NewBookRepository constructs a Firestore-backed book repository.
func NewBookRepository(provider *pfirestore.Provider) (*BookRepository, error) {
	if provider == nil {
		return nil, errors.New("book repository requires firestore provider")
	}
	books := pfirestore.NewBaseRepository[bookDocument](provider, booksCollection, nil, nil)
	return &BookRepository{provider: provider, books: books}, nil
}

func (r *BookRepository) Insert(ctx context.Context, book domain.Book) error {
	if r == nil || r.books == nil {
		return errors.New("book repository not initialised")
	}
	if strings.TrimSpace(book.ID) == "" {
		return errors.New("book insert: id is required")
	}

	ref, err := r.books.DocumentRef(ctx, book.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newBookDocument(book)); err != nil {
		return pfirestore.WrapError("books.insert", err)
	}
	return nil
}

func (r *BookRepository) Update(ctx context.Context, book domain.Book) error {
	if r == nil || r.books == nil {
		return errors.New("book repository not initialised")
	}
	if strings.TrimSpace(book.ID) == "" {
		return errors.New("book update: id is required")
	}

	ref, err := r.books.DocumentRef(ctx, book.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, newBookDocument(book)); err != nil {
		return pfirestore.WrapError("books.update", err)
	}
	return nil
}

func (r *BookRepository) Delete(ctx context.Context, bookID string) error {
	if r == nil || r.books == nil {
		return errors.New("book repository not initialised")
	}
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return errors.New("book delete: id is required")
	}

	ref, err := r.books.DocumentRef(ctx, bookID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("books.delete", err)
	}
	return nil
}

func (r *BookRepository) FindByID(ctx context.Context, bookID string) (domain.Book, error) {
	if r == nil || r.books == nil {
		return domain.Book{}, errors.New("book repository not initialised")
	}
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return domain.Book{}, errors.New("book find: id is required")
	}

	doc, err := r.books.Get(ctx, bookID)
	if err != nil {
		return domain.Book{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *BookRepository) List(ctx context.Context, filter repositories.BookListFilter) (domain.CursorPage[domain.Book], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Book]{}, errors.New("book repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Book]{}, pfirestore.WrapError("books.list", err)
	}

	query := client.Collection(booksCollection).Query
	if filter.Category != nil {
		query = query.Where("category", "==", string(*filter.Category))
	}
	if filter.InStock != nil {
		query = query.Where("inStock", "==", *filter.InStock)
	}
	if term := textutil.FoldSearchTerm(filter.Search); term != "" {
		// Firestore permits a single array-contains clause per query.
		if fields := strings.Fields(term); len(fields) > 0 {
			query = query.Where("searchKeywords", "array-contains", fields[0])
		}
	}

	priceOrdered := false
	if filter.PriceRange.From != nil {
		query = query.Where("price", ">=", *filter.PriceRange.From)
		priceOrdered = true
	}
	if filter.PriceRange.To != nil {
		query = query.Where("price", "<=", *filter.PriceRange.To)
		priceOrdered = true
	}

	if priceOrdered {
		query = query.OrderBy("price", firestore.Asc)
	} else {
		query = query.OrderBy("createdAt", firestore.Desc)
	}
	query = query.OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeBookPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Book]{}, pfirestore.WrapError("books.list", err)
		}
		if priceOrdered {
			query = query.StartAfter(decoded.Price, decoded.ID)
		} else {
			query = query.StartAfter(decoded.CreatedAt, decoded.ID)
		}
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var books []domain.Book
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Book]{}, pfirestore.WrapError("books.list", err)
		}
		var doc bookDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Book]{}, fmt.Errorf("decode book %s: %w", snap.Ref.ID, err)
		}
		books = append(books, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(books) > pageSize
	if hasMore {
		books = books[:pageSize]
	}
	var nextToken string
	if hasMore && len(books) > 0 {
		last := books[len(books)-1]
		encoded, err := encodeBookPageToken(bookPageToken{ID: last.ID, Price: last.Price, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Book]{}, pfirestore.WrapError("books.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Book]{
		Items:         books,
		NextPageToken: nextToken,
	}, nil
}

// Helper structures ---------------------------------------------------------

type bookDocument struct {
	Title          string    `firestore:"title"`
	Author         string    `firestore:"author"`
	SearchKeywords []string  `firestore:"searchKeywords"`
	Price          int64     `firestore:"price"`
	Category       string    `firestore:"category"`
	Description    string    `firestore:"description"`
	Quantity       int       `firestore:"quantity"`
	InStock        bool      `firestore:"inStock"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func newBookDocument(book domain.Book) bookDocument {
	return bookDocument{
		Title:          strings.TrimSpace(book.Title),
		Author:         strings.TrimSpace(book.Author),
		SearchKeywords: textutil.SearchKeywords(book.Title, book.Author),
		Price:          book.Price,
		Category:       string(book.Category),
		Description:    strings.TrimSpace(book.Description),
		Quantity:       book.Quantity,
		InStock:        book.Quantity > 0,
		CreatedAt:      book.CreatedAt.UTC(),
		UpdatedAt:      book.UpdatedAt.UTC(),
	}
}

func (d bookDocument) toDomain(id string) domain.Book {
	return domain.Book{
		ID:          id,
		Title:       d.Title,
		Author:      d.Author,
		Price:       d.Price,
		Category:    domain.Category(d.Category),
		Description: d.Description,
		Quantity:    d.Quantity,
		InStock:     d.InStock,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type bookPageToken struct {
	ID        string
	Price     int64
	CreatedAt time.Time
}

func encodeBookPageToken(token bookPageToken) (string, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	if err := enc.Encode(token); err != nil {
		return "", fmt.Errorf("encode book page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeBookPageToken(encoded string) (*bookPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode book page token: %w", err)
	}
	var token bookPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode book page token json: %w", err)
	}
	return &token, nil
}
