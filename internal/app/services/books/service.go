// Package books manages the shared catalog readers log against.
package books

import (
	"context"
	"strings"

	"github.com/readspeed/backend/internal/app/domain/book"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/services/subscriptions"
	"github.com/readspeed/backend/internal/app/storage"
	apperrors "github.com/readspeed/backend/internal/errors"
	"github.com/readspeed/backend/internal/logging"
)

// Service manages catalog entries.
type Service struct {
	books storage.BookStore
	subs  *subscriptions.Service
	log   *logging.Logger
}

// New constructs a book service. The subscription service gates catalog
// writes by tier.
func New(books storage.BookStore, subs *subscriptions.Service, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("books")
	}
	return &Service{books: books, subs: subs, log: log}
}

// List returns one page of the catalog plus the total match count.
func (s *Service) List(ctx context.Context, filter book.Filter) ([]book.Book, int, error) {
	return s.books.ListBooks(ctx, filter.Normalize())
}

// Get returns a single catalog entry.
func (s *Service) Get(ctx context.Context, id string) (book.Book, error) {
	return s.books.GetBook(ctx, id)
}

// CreateInput is the payload for a new catalog entry.
type CreateInput struct {
	Title       string
	Author      string
	Description string
	Genre       string
	TotalPages  int
	ISBN        string
}

// Create adds a book to the catalog. Non-admin callers need a tier whose
// policy allows catalog writes.
func (s *Service) Create(ctx context.Context, owner profile.Profile, in CreateInput) (book.Book, error) {
	if !owner.IsAdmin() {
		limits := s.subs.LimitsFor(ctx, owner.Tier)
		if !limits.CanCreateBooks {
			return book.Book{}, apperrors.Forbidden("your tier cannot add books").WithDetails("tier", owner.Tier)
		}
	}

	b := book.Book{
		Title:       strings.TrimSpace(in.Title),
		Author:      strings.TrimSpace(in.Author),
		Description: strings.TrimSpace(in.Description),
		Genre:       strings.ToLower(strings.TrimSpace(in.Genre)),
		TotalPages:  in.TotalPages,
		CreatedBy:   owner.ID,
	}
	if err := validateBook(b); err != nil {
		return book.Book{}, err
	}
	isbn, err := normalizeISBN(in.ISBN)
	if err != nil {
		return book.Book{}, err
	}
	b.ISBN = isbn

	created, err := s.books.CreateBook(ctx, b)
	if err != nil {
		return book.Book{}, err
	}
	s.log.WithContext(ctx).
		WithField("book_id", created.ID).
		WithField("title", created.Title).
		Info("book created")
	return created, nil
}

// UpdateInput carries a partial book edit; nil fields are untouched.
type UpdateInput struct {
	Title       *string
	Author      *string
	Description *string
	Genre       *string
	TotalPages  *int
	ISBN        *string
}

// Update edits a catalog entry. Only the creator or an admin may edit.
func (s *Service) Update(ctx context.Context, caller profile.Profile, id string, in UpdateInput) (book.Book, error) {
	b, err := s.books.GetBook(ctx, id)
	if err != nil {
		return book.Book{}, err
	}
	if !canManage(caller, b) {
		return book.Book{}, apperrors.Forbidden("not the book owner")
	}

	if in.Title != nil {
		b.Title = strings.TrimSpace(*in.Title)
	}
	if in.Author != nil {
		b.Author = strings.TrimSpace(*in.Author)
	}
	if in.Description != nil {
		b.Description = strings.TrimSpace(*in.Description)
	}
	if in.Genre != nil {
		b.Genre = strings.ToLower(strings.TrimSpace(*in.Genre))
	}
	if in.TotalPages != nil {
		b.TotalPages = *in.TotalPages
	}
	if err := validateBook(b); err != nil {
		return book.Book{}, err
	}
	if in.ISBN != nil {
		isbn, err := normalizeISBN(*in.ISBN)
		if err != nil {
			return book.Book{}, err
		}
		b.ISBN = isbn
	}

	return s.books.UpdateBook(ctx, b)
}

// Delete removes a catalog entry. Only the creator or an admin may
// delete.
func (s *Service) Delete(ctx context.Context, caller profile.Profile, id string) error {
	b, err := s.books.GetBook(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(caller, b) {
		return apperrors.Forbidden("not the book owner")
	}
	if err := s.books.DeleteBook(ctx, id); err != nil {
		return err
	}
	s.log.WithContext(ctx).WithField("book_id", id).Info("book deleted")
	return nil
}

// SetCoverURL records a freshly uploaded cover image.
func (s *Service) SetCoverURL(ctx context.Context, caller profile.Profile, id, url string) (book.Book, error) {
	b, err := s.books.GetBook(ctx, id)
	if err != nil {
		return book.Book{}, err
	}
	if !canManage(caller, b) {
		return book.Book{}, apperrors.Forbidden("not the book owner")
	}
	b.CoverURL = url
	return s.books.UpdateBook(ctx, b)
}

func canManage(caller profile.Profile, b book.Book) bool {
	return caller.IsAdmin() || (b.CreatedBy != "" && b.CreatedBy == caller.ID)
}

func validateBook(b book.Book) error {
	if b.Title == "" || len(b.Title) > 200 {
		return apperrors.InvalidFormat("title", "must be 1-200 characters")
	}
	if b.Author == "" || len(b.Author) > 120 {
		return apperrors.InvalidFormat("author", "must be 1-120 characters")
	}
	if len(b.Description) > 2000 {
		return apperrors.InvalidFormat("description", "must be at most 2000 characters")
	}
	if len(b.Genre) > 50 {
		return apperrors.InvalidFormat("genre", "must be at most 50 characters")
	}
	if b.TotalPages < 1 || b.TotalPages > 20000 {
		return apperrors.InvalidFormat("total_pages", "must be between 1 and 20000")
	}
	return nil
}

func normalizeISBN(raw string) (string, error) {
	cleaned := strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return "", nil
	}
	if len(cleaned) != 10 && len(cleaned) != 13 {
		return "", apperrors.InvalidFormat("isbn", "must be 10 or 13 characters")
	}
	for i, r := range cleaned {
		if r >= '0' && r <= '9' {
			continue
		}
		// ISBN-10 check digit may be X.
		if (r == 'X' || r == 'x') && len(cleaned) == 10 && i == 9 {
			continue
		}
		return "", apperrors.InvalidFormat("isbn", "must be digits, optionally ending in X")
	}
	return strings.ToUpper(cleaned), nil
}
