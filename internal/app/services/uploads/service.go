// Package uploads validates and stores avatar and book cover images.
package uploads

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/readspeed/backend/internal/app/domain/book"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/services/books"
	"github.com/readspeed/backend/internal/app/services/profiles"
	apperrors "github.com/readspeed/backend/internal/errors"
	"github.com/readspeed/backend/internal/httputil"
	"github.com/readspeed/backend/internal/logging"
	"github.com/readspeed/backend/internal/objectstore"
)

// DefaultMaxBytes caps image uploads at 2 MiB unless configured
// otherwise.
const DefaultMaxBytes = 2 << 20

// extensions maps the accepted content types to the stored file
// extension.
var extensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// Service stores uploaded images and records their URL on the owning
// row.
type Service struct {
	store    objectstore.Store
	profiles *profiles.Service
	books    *books.Service
	maxBytes int64
	log      *logging.Logger
}

// New constructs an upload service. maxBytes <= 0 selects the default
// cap.
func New(store objectstore.Store, profileSvc *profiles.Service, bookSvc *books.Service, maxBytes int64, log *logging.Logger) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if log == nil {
		log = logging.NewDefault("uploads")
	}
	return &Service{
		store:    store,
		profiles: profileSvc,
		books:    bookSvc,
		maxBytes: maxBytes,
		log:      log,
	}
}

// MaxBytes returns the configured upload cap.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// StoreAvatar uploads the caller's avatar image and records its URL on
// the profile.
func (s *Service) StoreAvatar(ctx context.Context, caller profile.Profile, contentType string, body io.Reader) (profile.Profile, error) {
	key, data, err := s.readImage("avatars/"+caller.ID, contentType, body)
	if err != nil {
		return profile.Profile{}, err
	}

	url, err := s.store.Put(ctx, key, contentType, data)
	if err != nil {
		return profile.Profile{}, apperrors.Internal("store avatar", err)
	}

	updated, err := s.profiles.SetAvatarURL(ctx, caller.ID, url)
	if err != nil {
		return profile.Profile{}, err
	}
	s.log.WithContext(ctx).
		WithField("user_id", caller.ID).
		WithField("bytes", len(data)).
		Info("avatar uploaded")
	return updated, nil
}

// StoreBookCover uploads a cover image and records its URL on the book.
// Ownership is enforced by the book service.
func (s *Service) StoreBookCover(ctx context.Context, caller profile.Profile, bookID, contentType string, body io.Reader) (book.Book, error) {
	key, data, err := s.readImage("covers/"+bookID, contentType, body)
	if err != nil {
		return book.Book{}, err
	}

	url, err := s.store.Put(ctx, key, contentType, data)
	if err != nil {
		return book.Book{}, apperrors.Internal("store cover", err)
	}

	updated, err := s.books.SetCoverURL(ctx, caller, bookID, url)
	if err != nil {
		return book.Book{}, err
	}
	s.log.WithContext(ctx).
		WithField("book_id", bookID).
		WithField("bytes", len(data)).
		Info("cover uploaded")
	return updated, nil
}

// readImage validates the content type and size and returns the object
// key with the raw bytes.
func (s *Service) readImage(prefix, contentType string, body io.Reader) (string, []byte, error) {
	ext, ok := extensions[normalizeContentType(contentType)]
	if !ok {
		return "", nil, apperrors.InvalidFormat("content-type", "must be image/png, image/jpeg or image/webp")
	}

	data, truncated, err := httputil.ReadAllWithLimit(body, s.maxBytes)
	if err != nil {
		return "", nil, apperrors.Internal("read upload", err)
	}
	if truncated {
		return "", nil, apperrors.PayloadTooLarge(s.maxBytes)
	}
	if len(data) == 0 {
		return "", nil, apperrors.InvalidInput("empty upload")
	}

	key := fmt.Sprintf("%s/%s.%s", prefix, uuid.NewString(), ext)
	return key, data, nil
}

func normalizeContentType(ct string) string {
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
