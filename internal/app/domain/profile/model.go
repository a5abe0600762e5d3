package profile

import "time"

// Roles assignable to a profile.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Profile represents a registered reader, including credentials and
// subscription state.
type Profile struct {
	ID              string
	Email           string
	PasswordHash    string
	Username        string
	DisplayName     string
	Bio             string
	AvatarURL       string
	Role            string
	Tier            string
	ReadingGoal     int
	PreferredGenres []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsAdmin reports whether the profile carries the admin role.
func (p Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Session is a server-side login session, addressed by the SHA-256 hash
// of the bearer token.
type Session struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
