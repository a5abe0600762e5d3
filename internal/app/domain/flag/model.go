package flag

import "time"

// Flag is a feature toggle. MinTier, when set, restricts the feature to
// that tier and above; AdminOnly restricts it to admins regardless of
// tier.
type Flag struct {
	Key         string
	Description string
	Enabled     bool
	MinTier     string
	AdminOnly   bool
	UpdatedAt   time.Time
}
