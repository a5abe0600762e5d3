package subscription

import "time"

// Subscription tiers, ordered free < reader < pro.
const (
	TierFree   = "free"
	TierReader = "reader"
	TierPro    = "pro"
)

// Unlimited marks a numeric limit as unenforced.
const Unlimited = -1

// Limits is the per-tier usage policy.
type Limits struct {
	Tier                string
	AssessmentsPerMonth int
	SubmissionsPerDay   int
	CanCreateBooks      bool
	LiveLeaderboard     bool
	UpdatedAt           time.Time
}

// Usage holds a reader's counters for one calendar month.
type Usage struct {
	UserID           string
	Month            string
	AssessmentsTaken int
	SubmissionsCount int
	PagesRead        int
	UpdatedAt        time.Time
}

// ValidTier reports whether t names a known tier.
func ValidTier(t string) bool {
	switch t {
	case TierFree, TierReader, TierPro:
		return true
	}
	return false
}

// TierRank orders tiers for comparisons; unknown tiers rank below free.
func TierRank(t string) int {
	switch t {
	case TierFree:
		return 0
	case TierReader:
		return 1
	case TierPro:
		return 2
	}
	return -1
}

// MonthKey formats t's UTC month as used by Usage.Month.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// DefaultLimits is the built-in policy applied until an admin edits a
// tier's row.
func DefaultLimits(tier string) Limits {
	switch tier {
	case TierReader:
		return Limits{
			Tier:                TierReader,
			AssessmentsPerMonth: 20,
			SubmissionsPerDay:   10,
			CanCreateBooks:      true,
			LiveLeaderboard:     false,
		}
	case TierPro:
		return Limits{
			Tier:                TierPro,
			AssessmentsPerMonth: Unlimited,
			SubmissionsPerDay:   Unlimited,
			CanCreateBooks:      true,
			LiveLeaderboard:     true,
		}
	default:
		return Limits{
			Tier:                TierFree,
			AssessmentsPerMonth: 5,
			SubmissionsPerDay:   3,
			CanCreateBooks:      false,
			LiveLeaderboard:     false,
		}
	}
}

// Allows reports whether a limit admits another unit on top of used.
func Allows(limit, used int) bool {
	if limit == Unlimited {
		return true
	}
	return used < limit
}
