// Package profiles manages registration, authentication and profile
// upkeep for readers.
package profiles

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/subscription"
	"github.com/readspeed/backend/internal/app/storage"
	"github.com/readspeed/backend/internal/auth"
	apperrors "github.com/readspeed/backend/internal/errors"
	"github.com/readspeed/backend/internal/logging"
)

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,24}$`)
)

// Config carries token signing settings and the bootstrap admin
// allowlist.
type Config struct {
	JWTSecret   string
	TokenTTL    time.Duration
	AdminEmails []string
}

// Service manages reader accounts and login sessions.
type Service struct {
	profiles storage.ProfileStore
	sessions storage.SessionStore
	secret   []byte
	tokenTTL time.Duration
	admins   map[string]struct{}
	log      *logging.Logger
}

// New constructs a profile service.
func New(profiles storage.ProfileStore, sessions storage.SessionStore, cfg Config, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("profiles")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	admins := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, email := range cfg.AdminEmails {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			admins[email] = struct{}{}
		}
	}
	return &Service{
		profiles: profiles,
		sessions: sessions,
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: cfg.TokenTTL,
		admins:   admins,
		log:      log,
	}
}

// RegisterInput is the payload for a new account.
type RegisterInput struct {
	Email       string
	Password    string
	Username    string
	DisplayName string
}

// Register creates an account on the free tier. Emails on the bootstrap
// allowlist become admins.
func (s *Service) Register(ctx context.Context, in RegisterInput) (profile.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !emailPattern.MatchString(email) {
		return profile.Profile{}, apperrors.InvalidFormat("email", "must be a valid address")
	}
	username := strings.ToLower(strings.TrimSpace(in.Username))
	if !usernamePattern.MatchString(username) {
		return profile.Profile{}, apperrors.InvalidFormat("username", "3-24 lower-case letters, digits or underscores")
	}
	if len(in.Password) < 8 {
		return profile.Profile{}, apperrors.InvalidFormat("password", "must be at least 8 characters")
	}
	if len(in.Password) > 72 {
		return profile.Profile{}, apperrors.InvalidFormat("password", "must be at most 72 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return profile.Profile{}, apperrors.Internal("hash password", err)
	}

	role := profile.RoleUser
	if _, ok := s.admins[email]; ok {
		role = profile.RoleAdmin
	}
	display := strings.TrimSpace(in.DisplayName)
	if display == "" {
		display = username
	}

	created, err := s.profiles.CreateProfile(ctx, profile.Profile{
		Email:        email,
		PasswordHash: string(hash),
		Username:     username,
		DisplayName:  display,
		Role:         role,
		Tier:         subscription.TierFree,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return profile.Profile{}, apperrors.Conflict("email or username already registered")
		}
		return profile.Profile{}, err
	}

	s.log.WithContext(ctx).
		WithField("user_id", created.ID).
		WithField("username", created.Username).
		WithField("role", created.Role).
		Info("profile registered")
	return created, nil
}

// Login is the result of a successful authentication.
type Login struct {
	Profile   profile.Profile
	Token     string
	ExpiresAt time.Time
}

// Authenticate verifies credentials and opens a session. The identifier
// is an email when it contains '@', otherwise a username.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (Login, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	var (
		p   profile.Profile
		err error
	)
	if strings.Contains(identifier, "@") {
		p, err = s.profiles.GetProfileByEmail(ctx, identifier)
	} else {
		p, err = s.profiles.GetProfileByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Login{}, apperrors.Unauthorized("invalid credentials")
		}
		return Login{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) != nil {
		return Login{}, apperrors.Unauthorized("invalid credentials")
	}

	sessionID := uuid.NewString()
	token, expires, err := auth.Sign(s.secret, p.ID, p.Role, sessionID, s.tokenTTL)
	if err != nil {
		return Login{}, apperrors.Internal("issue token", err)
	}
	_, err = s.sessions.CreateSession(ctx, profile.Session{
		ID:        sessionID,
		UserID:    p.ID,
		TokenHash: auth.HashToken(token),
		ExpiresAt: expires,
	})
	if err != nil {
		return Login{}, err
	}

	s.log.WithContext(ctx).WithField("user_id", p.ID).Info("login")
	return Login{Profile: p, Token: token, ExpiresAt: expires}, nil
}

// VerifyToken checks a bearer token against its signature and its
// server-side session. Used by the auth middleware on every request.
func (s *Service) VerifyToken(ctx context.Context, raw string) (*auth.Claims, error) {
	claims, err := auth.Parse(s.secret, raw)
	if err != nil {
		return nil, apperrors.InvalidToken(err)
	}

	session, err := s.sessions.GetSessionByTokenHash(ctx, auth.HashToken(raw))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.Unauthorized("session revoked")
		}
		return nil, err
	}
	if session.Expired(time.Now()) {
		return nil, apperrors.Unauthorized("session expired")
	}

	// Best effort; a stale last_seen_at is not worth failing the request.
	if err := s.sessions.TouchSession(ctx, session.ID, time.Now().UTC()); err != nil {
		s.log.WithContext(ctx).WithError(err).Debug("touch session failed")
	}
	return claims, nil
}

// Logout closes one session. Closing an already-closed session is fine.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	err := s.sessions.DeleteSession(ctx, sessionID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// LogoutAll closes every session the user holds.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	return s.sessions.DeleteSessionsByUser(ctx, userID)
}

// Get returns a profile by id.
func (s *Service) Get(ctx context.Context, id string) (profile.Profile, error) {
	return s.profiles.GetProfile(ctx, id)
}

// GetByUsername returns a profile by its (case-insensitive) username.
func (s *Service) GetByUsername(ctx context.Context, username string) (profile.Profile, error) {
	return s.profiles.GetProfileByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
}

// UpdateInput carries a partial profile edit; nil fields are untouched.
type UpdateInput struct {
	Username        *string
	DisplayName     *string
	Bio             *string
	ReadingGoal     *int
	PreferredGenres *[]string
}

// Update applies a partial edit to the caller's profile.
func (s *Service) Update(ctx context.Context, userID string, in UpdateInput) (profile.Profile, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}

	if in.Username != nil {
		username := strings.ToLower(strings.TrimSpace(*in.Username))
		if !usernamePattern.MatchString(username) {
			return profile.Profile{}, apperrors.InvalidFormat("username", "3-24 lower-case letters, digits or underscores")
		}
		if username != p.Username {
			if _, err := s.profiles.GetProfileByUsername(ctx, username); err == nil {
				return profile.Profile{}, apperrors.Conflict("username already taken")
			} else if !errors.Is(err, storage.ErrNotFound) {
				return profile.Profile{}, err
			}
			p.Username = username
		}
	}
	if in.DisplayName != nil {
		display := strings.TrimSpace(*in.DisplayName)
		if display == "" || len(display) > 80 {
			return profile.Profile{}, apperrors.InvalidFormat("display_name", "must be 1-80 characters")
		}
		p.DisplayName = display
	}
	if in.Bio != nil {
		if len(*in.Bio) > 1000 {
			return profile.Profile{}, apperrors.InvalidFormat("bio", "must be at most 1000 characters")
		}
		p.Bio = strings.TrimSpace(*in.Bio)
	}
	if in.ReadingGoal != nil {
		if *in.ReadingGoal < 0 || *in.ReadingGoal > 10000 {
			return profile.Profile{}, apperrors.InvalidFormat("reading_goal", "must be between 0 and 10000 pages per day")
		}
		p.ReadingGoal = *in.ReadingGoal
	}
	if in.PreferredGenres != nil {
		genres := make([]string, 0, len(*in.PreferredGenres))
		for _, g := range *in.PreferredGenres {
			if g = strings.ToLower(strings.TrimSpace(g)); g != "" {
				genres = append(genres, g)
			}
		}
		if len(genres) > 10 {
			return profile.Profile{}, apperrors.InvalidFormat("preferred_genres", "must be at most 10 entries")
		}
		p.PreferredGenres = genres
	}

	updated, err := s.profiles.UpdateProfile(ctx, p)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return profile.Profile{}, apperrors.Conflict("username already taken")
		}
		return profile.Profile{}, err
	}
	return updated, nil
}

// SetAvatarURL records a freshly uploaded avatar.
func (s *Service) SetAvatarURL(ctx context.Context, userID, url string) (profile.Profile, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	p.AvatarURL = url
	return s.profiles.UpdateProfile(ctx, p)
}

// SetRole grants or revokes the admin role.
func (s *Service) SetRole(ctx context.Context, userID, role string) (profile.Profile, error) {
	if role != profile.RoleUser && role != profile.RoleAdmin {
		return profile.Profile{}, apperrors.InvalidInput("role must be user or admin")
	}
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	if p.Role == role {
		return p, nil
	}
	p.Role = role
	updated, err := s.profiles.UpdateProfile(ctx, p)
	if err != nil {
		return profile.Profile{}, err
	}
	s.log.WithContext(ctx).
		WithField("user_id", userID).
		WithField("role", role).
		Info("role changed")
	return updated, nil
}

// List pages through all profiles for the admin user table.
func (s *Service) List(ctx context.Context, page, per int) ([]profile.Profile, int, error) {
	if page < 1 {
		page = 1
	}
	if per < 1 || per > 100 {
		per = 20
	}

	total, err := s.profiles.CountProfiles(ctx)
	if err != nil {
		return nil, 0, err
	}
	list, err := s.profiles.ListProfiles(ctx, (page-1)*per, per)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}
